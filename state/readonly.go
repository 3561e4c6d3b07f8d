package state

import (
	"context"
	"fmt"
	"io/fs"
	"time"
)

// ReadOnly loads the document from an fs.FS, typically an embed.FS shipped
// with the binary. Store is a no-op, so every process starting from the same
// ReadOnly document must use distinct node ids or rely on the clock sequence
// bump on regression.
type ReadOnly struct {
	fsys fs.FS
	name string
}

var _ Store = (*ReadOnly)(nil)

// NewReadOnly returns a store reading name from fsys.
func NewReadOnly(fsys fs.FS, name string) *ReadOnly {
	return &ReadOnly{fsys: fsys, name: name}
}

// Load reads and decodes the document.
func (r *ReadOnly) Load(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := fs.ReadFile(r.fsys, r.name)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read %s: %v", ErrStoreUnavailable, r.name, err)
	}
	return decodeRecords(data, r.name)
}

// Store discards records.
func (r *ReadOnly) Store(context.Context, []Record) error { return nil }

// SyncInterval returns Never.
func (r *ReadOnly) SyncInterval() time.Duration { return Never }
