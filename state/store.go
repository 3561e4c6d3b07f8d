// Package state persists the clock state of version 1 nodes across process
// restarts.
//
// A Store loads and saves a list of Records, one per node identity. The node
// manager is the only caller of Store and never holds its own lock while the
// store performs I/O. Failures are reported to the caller and never stop
// identifier generation: a failed Load falls back to freshly seeded nodes and
// a failed Store is retried at the next interval.
//
// Backends:
//
//   - Memory: nothing persisted; a new random node every process.
//   - File: a yaml document on local disk, written atomically.
//   - ReadOnly: a yaml document in an fs.FS such as an embed.FS.
//   - Redis: a yaml document under one redis key.
//   - Etcd: a yaml document under one etcd key.
//
// Redis and Etcd may be shared by several processes. They implement Claimer:
// a process only issues identifiers under nodes it has claimed, and writes
// merge with the records of the other processes. File and ReadOnly assume a
// single process per document.
package state

import (
	"context"
	"errors"
	"time"

	"github.com/zero-day-ai/uuidkit/uuid"
)

// DefaultSyncInterval is the minimum time between two persists when a store
// is created without an explicit interval.
const DefaultSyncInterval = 5 * time.Second

// Never is returned by SyncInterval for stores that persist nothing.
const Never time.Duration = -1

var (
	// ErrStoreUnavailable is returned by Load when the medium is missing,
	// unreadable or holds no nodes.
	ErrStoreUnavailable = errors.New("state: store unavailable")

	// ErrStore is returned when a document cannot be decoded or written.
	ErrStore = errors.New("state: store error")
)

// Record is the persisted clock state of one node.
type Record struct {
	Node          uuid.NodeID
	ClockSequence uint16
	LastTimestamp uint64
}

// Store loads and saves node records.
type Store interface {
	// Load returns the persisted records. It returns an error wrapping
	// ErrStoreUnavailable when nothing usable is stored.
	Load(ctx context.Context) ([]Record, error)

	// Store replaces the persisted records.
	Store(ctx context.Context, records []Record) error

	// SyncInterval is the minimum time between two persists, or Never.
	SyncInterval() time.Duration
}

func intervalOrDefault(d time.Duration) time.Duration {
	if d == 0 {
		return DefaultSyncInterval
	}
	return d
}

func cloneRecords(records []Record) []Record {
	if records == nil {
		return nil
	}
	out := make([]Record, len(records))
	copy(out, records)
	return out
}
