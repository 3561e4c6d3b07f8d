// Package uuidkit generates RFC 4122 universally unique identifiers.
//
// The kit covers the four standard versions: time-based (1), name-based with
// MD5 (3) or SHA-1 (5), and random (4). Two non-UUID generators live beside
// it: serial for bounded numeric sequences and session for short,
// time-ordered session identifiers.
//
// # Core Concepts
//
//   - uuid: the 128-bit value, its text form and its field accessors
//   - clock: the 100ns tick sources behind version 1 timestamps
//   - node: node identities and their clock sequences
//   - state: where node state is persisted between runs
//   - generator: the version 1 generator tying the three together
//
// # Getting Started
//
// A Kit wires a store, a clock and a node manager from a configuration:
//
//	kit, err := uuidkit.New(uuidkit.WithConfigFile("uuidkit.yaml"))
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer kit.Close(context.Background())
//
//	id, err := kit.V1(ctx)
//
// The zero configuration keeps node state in memory and reads the system
// clock. Setting state.backend to file, redis or etcd persists node state so
// that identifiers stay unique across restarts.
//
// # Errors
//
// Kit methods return *Error values. KindOf classifies any error returned by
// the kit or its packages:
//
//	if uuidkit.KindOf(err) == uuidkit.KindMalformedInput {
//		// reject the request
//	}
package uuidkit
