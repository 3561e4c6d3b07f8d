package uuid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
)

// NodeID is the 48-bit node field of a version 1 UUID.
type NodeID [6]byte

// NewRandomNodeID returns a random node identifier with the multicast bit
// set, as RFC 4122 section 4.5 requires for ids not taken from a network card.
func NewRandomNodeID() (NodeID, error) {
	return NewRandomNodeIDFromReader(rand.Reader)
}

// NewRandomNodeIDFromReader is NewRandomNodeID reading from r.
func NewRandomNodeIDFromReader(r io.Reader) (NodeID, error) {
	var n NodeID
	if _, err := io.ReadFull(r, n[:]); err != nil {
		return n, fmt.Errorf("failed to read random node id: %w", err)
	}
	n[0] |= 0x01
	return n, nil
}

// Uint64 returns the node identifier as an integer.
func (n NodeID) Uint64() uint64 {
	var v uint64
	for _, b := range n {
		v = v<<8 | uint64(b)
	}
	return v
}

// String returns the colon separated MAC style form, e.g. "3d:8f:2a:11:c0:7e".
func (n NodeID) String() string {
	var sb strings.Builder
	sb.Grow(17)
	for i, b := range n {
		if i > 0 {
			sb.WriteByte(':')
		}
		sb.WriteString(hex.EncodeToString([]byte{b}))
	}
	return sb.String()
}

// MarshalText implements encoding.TextMarshaler.
func (n NodeID) MarshalText() ([]byte, error) {
	return []byte(n.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (n *NodeID) UnmarshalText(text []byte) error {
	v, err := ParseNodeID(string(text))
	if err != nil {
		return err
	}
	*n = v
	return nil
}

// ParseNodeID decodes a node identifier written as 12 hex digits, either
// contiguous or separated by ':' or '-'.
func ParseNodeID(s string) (NodeID, error) {
	var n NodeID
	lean := strings.NewReplacer(":", "", "-", "").Replace(strings.TrimSpace(s))
	if len(lean) != 2*len(n) {
		return n, fmt.Errorf("%w: node id %q: expected 12 hex digits", ErrMalformed, s)
	}
	if _, err := hex.Decode(n[:], []byte(lean)); err != nil {
		return n, fmt.Errorf("%w: node id %q: %v", ErrMalformed, s, err)
	}
	return n, nil
}
