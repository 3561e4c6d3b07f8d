package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zero-day-ai/uuidkit"
	"github.com/zero-day-ai/uuidkit/serial"
	"github.com/zero-day-ai/uuidkit/session"
	"github.com/zero-day-ai/uuidkit/uuid"
)

// errUnhealthy makes the health command exit non-zero after it has printed
// the status.
var errUnhealthy = errors.New("state backend is unhealthy")

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "uuidgen",
		Short:         "Generate and inspect RFC 4122 UUIDs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "", "uuidkit.yaml file or directory containing one")

	root.AddCommand(
		newTimeCommand(),
		newRandomCommand(),
		newNameCommand(),
		newParseCommand(),
		newSerialCommand(),
		newSessionCommand(),
		newHealthCommand(),
	)
	return root
}

func newTimeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "time",
		Aliases: []string{"v1"},
		Short:   "Print time-based (version 1) UUIDs",
		Long: `Print time-based (version 1) UUIDs.

Node state is read from and written to the state backend named in the
configuration, so identifiers stay unique across invocations when the
backend is file, redis or etcd. A file backend serves one process at a
time. Processes sharing a redis or etcd key claim their nodes there and
never issue identifiers under the same node.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			count, _ := cmd.Flags().GetInt("count")
			return withKit(cmd, func(kit *uuidkit.Kit) error {
				for i := 0; i < count; i++ {
					id, err := kit.V1(cmd.Context())
					if err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), id)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntP("count", "n", 1, "number of identifiers")
	return cmd
}

func newRandomCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "random",
		Aliases: []string{"v4"},
		Short:   "Print random (version 4) UUIDs",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			count, _ := cmd.Flags().GetInt("count")
			for i := 0; i < count; i++ {
				id, err := uuid.NewRandom()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}
	cmd.Flags().IntP("count", "n", 1, "number of identifiers")
	return cmd
}

func newNameCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "name <name>",
		Short: "Print the name-based (version 3 or 5) UUID of a name",
		Long: `Print the name-based UUID of a name within a namespace.

The namespace is one of dns, url, oid, x500 or any UUID. The hash is md5
(version 3) or sha1 (version 5).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			nsFlag, _ := cmd.Flags().GetString("namespace")
			hashFlag, _ := cmd.Flags().GetString("hash")

			ns, err := parseNamespace(nsFlag)
			if err != nil {
				return err
			}
			h, err := uuid.ParseHash(hashFlag)
			if err != nil {
				return err
			}
			id, err := uuid.NameFromString(args[0], ns, h)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
	cmd.Flags().String("namespace", "dns", "namespace name or UUID")
	cmd.Flags().String("hash", "sha1", "md5 or sha1")
	return cmd
}

func parseNamespace(s string) (uuid.UUID, error) {
	switch strings.ToLower(s) {
	case "dns":
		return uuid.NamespaceDNS, nil
	case "url":
		return uuid.NamespaceURL, nil
	case "oid":
		return uuid.NamespaceOID, nil
	case "x500":
		return uuid.NamespaceX500, nil
	}
	return uuid.Parse(s)
}

// parsed is the JSON form printed by the parse command.
type parsed struct {
	UUID          string `json:"uuid"`
	Version       int    `json:"version"`
	Variant       string `json:"variant"`
	Timestamp     uint64 `json:"timestamp,omitempty"`
	Time          string `json:"time,omitempty"`
	ClockSequence *int   `json:"clock_sequence,omitempty"`
	Node          string `json:"node,omitempty"`
}

func newParseCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "parse <uuid>...",
		Short: "Print the fields of UUIDs as JSON lines",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, arg := range args {
				u, err := uuid.Parse(arg)
				if err != nil {
					return err
				}
				if err := enc.Encode(describe(u)); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func describe(u uuid.UUID) parsed {
	p := parsed{
		UUID:    u.String(),
		Version: int(u.Version()),
		Variant: u.Variant().String(),
	}
	ts, err := u.Timestamp()
	if err != nil {
		return p
	}
	seq, _ := u.ClockSequence()
	node, _ := u.Node()
	s := int(seq)
	p.Timestamp = ts
	p.Time = uuid.TimestampTime(ts).Format("2006-01-02T15:04:05.0000000Z07:00")
	p.ClockSequence = &s
	p.Node = node.String()
	return p
}

func newSerialCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serial",
		Short: "Print a run of serial numbers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			count, _ := cmd.Flags().GetInt("count")
			minFlag, _ := cmd.Flags().GetInt64("min")
			maxFlag, _ := cmd.Flags().GetInt64("max")
			policyFlag, _ := cmd.Flags().GetString("policy")

			policy, err := serial.ParsePolicy(policyFlag)
			if err != nil {
				return err
			}
			opts := []serial.Option{serial.WithRange(minFlag, maxFlag), serial.WithPolicy(policy)}
			if cmd.Flags().Changed("start") {
				start, _ := cmd.Flags().GetInt64("start")
				opts = append(opts, serial.WithStart(start))
			}
			gen, err := serial.New(opts...)
			if err != nil {
				return err
			}
			for i := 0; i < count; i++ {
				v, err := gen.NextString()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), v)
			}
			return nil
		},
	}
	cmd.Flags().IntP("count", "n", 1, "number of values")
	cmd.Flags().Int64("min", 0, "smallest value")
	cmd.Flags().Int64("max", 1<<63-1, "largest value")
	cmd.Flags().Int64("start", 0, "first value (default min)")
	cmd.Flags().String("policy", "fail", "fail or wrap past max")
	return cmd
}

func newSessionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Print session identifiers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			count, _ := cmd.Flags().GetInt("count")
			gen := session.New()
			for i := 0; i < count; i++ {
				id, err := gen.Next()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}
	cmd.Flags().IntP("count", "n", 1, "number of identifiers")
	return cmd
}

func newHealthCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the configured state backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withKit(cmd, func(kit *uuidkit.Kit) error {
				status := kit.Health(cmd.Context())
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(status); err != nil {
					return err
				}
				if status.IsUnhealthy() {
					return errUnhealthy
				}
				return nil
			})
		},
	}
}

// printError writes err with its kind to the command's error stream.
func printError(cmd *cobra.Command, err error) {
	if errors.Is(err, errUnhealthy) {
		return
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "uuidgen: %v (%s)\n", err, uuidkit.KindOf(err))
}
