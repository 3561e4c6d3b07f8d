package state

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/zero-day-ai/uuidkit/uuid"
)

// Memory keeps nothing between processes. Every Load returns a single node
// with a fresh random identifier, so uniqueness across restarts rests on the
// 47 random bits of the node id alone.
type Memory struct{}

var _ Store = Memory{}

// NewMemory returns a Memory store.
func NewMemory() Memory { return Memory{} }

// Load returns one freshly seeded record.
func (Memory) Load(context.Context) ([]Record, error) {
	r, err := NewRecord()
	if err != nil {
		return nil, err
	}
	return []Record{r}, nil
}

// Store discards records.
func (Memory) Store(context.Context, []Record) error { return nil }

// SyncInterval returns Never.
func (Memory) SyncInterval() time.Duration { return Never }

// NewRecord returns a record for a new random node with a random clock
// sequence and no issued timestamps.
func NewRecord() (Record, error) {
	id, err := uuid.NewRandomNodeID()
	if err != nil {
		return Record{}, err
	}
	seq, err := randomClockSequence()
	if err != nil {
		return Record{}, err
	}
	return Record{Node: id, ClockSequence: seq}, nil
}

func randomClockSequence() (uint16, error) {
	var b [2]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("failed to read random clock sequence: %w", err)
	}
	return binary.BigEndian.Uint16(b[:]) & uuid.MaxClockSequence, nil
}
