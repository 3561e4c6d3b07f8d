package uuid

import (
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	formattedLength   = 36
	unformattedLength = 32

	// URNPrefix is the namespace prefix used by URN.
	URNPrefix = "urn:uuid:"
)

// hyphen positions within the canonical form
var hyphens = [...]int{8, 13, 18, 23}

// String returns the canonical lowercase 8-4-4-4-12 form.
func (u UUID) String() string {
	return u.Google().String()
}

// URN returns the canonical form prefixed with "urn:uuid:".
func (u UUID) URN() string {
	return u.Google().URN()
}

// Parse decodes s into a UUID.
//
// An optional namespace prefix ending in ':' is stripped first, so both
// "urn:uuid:f81d4fae-7dec-11d0-a765-00a0c91e6bf6" and the bare form parse.
// The remainder must be either the 36 character hyphenated form or exactly
// 32 hex digits. Hex digits may be upper or lower case.
func Parse(s string) (UUID, error) {
	var u UUID

	lean := s
	if pos := strings.LastIndexByte(s, ':'); pos > 1 {
		lean = s[pos+1:]
	}

	var digits [unformattedLength]byte
	switch len(lean) {
	case formattedLength:
		for _, p := range hyphens {
			if lean[p] != '-' {
				return u, fmt.Errorf("%w: %q: expected '-' at position %d", ErrMalformed, s, p)
			}
		}
		n := 0
		for i := 0; i < formattedLength; i++ {
			if lean[i] == '-' {
				if !isHyphenPosition(i) {
					return u, fmt.Errorf("%w: %q: unexpected '-' at position %d", ErrMalformed, s, i)
				}
				continue
			}
			digits[n] = lean[i]
			n++
		}
	case unformattedLength:
		copy(digits[:], lean)
	default:
		return u, fmt.Errorf("%w: %q: invalid length %d", ErrMalformed, s, len(lean))
	}

	if _, err := hex.Decode(u[:], digits[:]); err != nil {
		return Nil, fmt.Errorf("%w: %q: %v", ErrMalformed, s, err)
	}
	return u, nil
}

// MustParse is like Parse but panics on malformed input. It is intended for
// package level constants.
func MustParse(s string) UUID {
	u, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return u
}

func isHyphenPosition(i int) bool {
	for _, p := range hyphens {
		if p == i {
			return true
		}
	}
	return false
}
