package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/zero-day-ai/uuidkit"
)

const closeTimeout = 5 * time.Second

// withKit builds a Kit from the --config flag and the UUIDKIT_* environment,
// runs fn and closes the kit so that node state is written back.
func withKit(cmd *cobra.Command, fn func(*uuidkit.Kit) error) (err error) {
	opts := []uuidkit.Option{uuidkit.WithEnv()}
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		opts = append(opts, uuidkit.WithConfigFile(path))
	}
	kit, err := uuidkit.New(opts...)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		if cerr := kit.Close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(kit)
}
