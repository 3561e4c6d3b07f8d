package uuid

import (
	"fmt"
	"io"

	guuid "github.com/google/uuid"
)

// NewRandom returns a version 4 UUID filled from crypto/rand.
func NewRandom() (UUID, error) {
	g, err := guuid.NewRandom()
	if err != nil {
		return Nil, fmt.Errorf("failed to read random bytes: %w", err)
	}
	return FromGoogle(g), nil
}

// NewRandomFromReader returns a version 4 UUID filled from r.
func NewRandomFromReader(r io.Reader) (UUID, error) {
	g, err := guuid.NewRandomFromReader(r)
	if err != nil {
		return Nil, fmt.Errorf("failed to read random bytes: %w", err)
	}
	return FromGoogle(g), nil
}

// Must panics if err is non-nil and returns u otherwise.
//
//	id := uuid.Must(uuid.NewRandom())
func Must(u UUID, err error) UUID {
	if err != nil {
		panic(err)
	}
	return u
}
