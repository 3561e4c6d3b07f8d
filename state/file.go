package state

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// File stores the document at a path on local disk. Writes go to a temporary
// file in the same directory which is synced and renamed over the target, so
// a crash leaves either the old or the new document.
type File struct {
	path     string
	interval time.Duration
	perm     fs.FileMode
}

var _ Store = (*File)(nil)

// NewFile returns a File store at path. A zero interval selects
// DefaultSyncInterval.
func NewFile(path string, interval time.Duration) *File {
	return &File{path: path, interval: intervalOrDefault(interval), perm: 0o600}
}

// Path returns the document location.
func (f *File) Path() string { return f.path }

// Load reads and decodes the document. A missing or unreadable file wraps
// ErrStoreUnavailable.
func (f *File) Load(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s does not exist", ErrStoreUnavailable, f.path)
		}
		return nil, fmt.Errorf("%w: failed to read %s: %v", ErrStoreUnavailable, f.path, err)
	}
	return decodeRecords(data, f.path)
}

// Store writes the document atomically.
func (f *File) Store(ctx context.Context, records []Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := Encode(Document{SyncInterval: f.interval, Records: records})
	if err != nil {
		return err
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: failed to create directory %s: %v", ErrStore, dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(f.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: failed to create temp file: %v", ErrStore, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: failed to write %s: %v", ErrStore, tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: failed to sync %s: %v", ErrStore, tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: failed to close %s: %v", ErrStore, tmpName, err)
	}
	if err := os.Chmod(tmpName, f.perm); err != nil {
		return fmt.Errorf("%w: failed to chmod %s: %v", ErrStore, tmpName, err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("%w: failed to rename %s: %v", ErrStore, tmpName, err)
	}
	if err := syncDir(dir); err != nil {
		return fmt.Errorf("%w: failed to sync directory %s: %v", ErrStore, dir, err)
	}
	return nil
}

// syncDir flushes the directory entry written by a rename. Windows cannot
// sync a directory handle.
var syncDir = func(dir string) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	if err := d.Sync(); err != nil {
		d.Close()
		return err
	}
	return d.Close()
}

// SyncInterval returns the configured interval.
func (f *File) SyncInterval() time.Duration { return f.interval }
