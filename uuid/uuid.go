package uuid

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Size is the length in bytes of a UUID.
const Size = 16

// Common errors returned by this package.
var (
	// ErrMalformed is returned when text or binary input cannot be decoded
	// into a UUID.
	ErrMalformed = errors.New("uuid: malformed input")

	// ErrUnsupportedField is returned when a version 1 field is requested
	// from a value that is not an RFC 4122 version 1 UUID.
	ErrUnsupportedField = errors.New("uuid: field not supported for this version or variant")

	// ErrUnsupportedHash is returned by NameFromString for an unknown hash.
	ErrUnsupportedHash = errors.New("uuid: unsupported hash algorithm")
)

// UUID is a 128-bit identifier.
type UUID [Size]byte

// Nil is the UUID with all 128 bits set to zero.
var Nil UUID

// FromBytes returns the UUID held in b. The slice must be exactly 16 bytes
// long; the bytes are copied.
func FromBytes(b []byte) (UUID, error) {
	var u UUID
	if len(b) != Size {
		return u, fmt.Errorf("%w: expected %d bytes, got %d", ErrMalformed, Size, len(b))
	}
	copy(u[:], b)
	return u, nil
}

// FromHalves builds a UUID from its most and least significant 64 bits.
func FromHalves(msb, lsb uint64) UUID {
	var u UUID
	binary.BigEndian.PutUint64(u[0:8], msb)
	binary.BigEndian.PutUint64(u[8:16], lsb)
	return u
}

// Bytes returns a copy of the raw 16 bytes.
func (u UUID) Bytes() []byte {
	b := make([]byte, Size)
	copy(b, u[:])
	return b
}

// MostSignificantBits returns bytes 0-7 as a big-endian integer.
func (u UUID) MostSignificantBits() uint64 {
	return binary.BigEndian.Uint64(u[0:8])
}

// LeastSignificantBits returns bytes 8-15 as a big-endian integer.
func (u UUID) LeastSignificantBits() uint64 {
	return binary.BigEndian.Uint64(u[8:16])
}

// Compare returns -1, 0 or 1 depending on whether u sorts before, equal to or
// after other.
func (u UUID) Compare(other UUID) int {
	for i := 0; i < Size; i++ {
		switch {
		case u[i] < other[i]:
			return -1
		case u[i] > other[i]:
			return 1
		}
	}
	return 0
}

// Less reports whether u sorts before other.
func (u UUID) Less(other UUID) bool {
	return u.Compare(other) < 0
}

// IsNil reports whether u is the Nil UUID.
func (u UUID) IsNil() bool {
	return u == Nil
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (u UUID) MarshalBinary() ([]byte, error) {
	return u.Bytes(), nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (u *UUID) UnmarshalBinary(data []byte) error {
	v, err := FromBytes(data)
	if err != nil {
		return err
	}
	*u = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (u UUID) MarshalText() ([]byte, error) {
	return u.Google().MarshalText()
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (u *UUID) UnmarshalText(text []byte) error {
	v, err := Parse(string(text))
	if err != nil {
		return err
	}
	*u = v
	return nil
}

// setVersionVariant forces the version nibble of byte 6 and the RFC 4122
// variant bits of byte 8. Only version 1 packing needs it; the other
// versions come from github.com/google/uuid.
func (u *UUID) setVersionVariant(v Version) {
	u[6] = (u[6] & 0x0f) | byte(v)<<4
	u[8] = (u[8] & 0x3f) | 0x80
}
