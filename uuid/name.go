package uuid

import (
	"fmt"
	"strings"

	guuid "github.com/google/uuid"
)

// Hash selects the digest used for name-based UUIDs.
type Hash string

// Supported name-based hashes.
const (
	MD5  Hash = "MD5"
	SHA1 Hash = "SHA1"
)

// Namespaces defined in RFC 4122 appendix C.
var (
	NamespaceDNS  = MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	NamespaceURL  = MustParse("6ba7b811-9dad-11d1-80b4-00c04fd430c8")
	NamespaceOID  = MustParse("6ba7b812-9dad-11d1-80b4-00c04fd430c8")
	NamespaceX500 = MustParse("6ba7b814-9dad-11d1-80b4-00c04fd430c8")
)

// NewMD5 returns the version 3 UUID of data within namespace ns.
func NewMD5(ns UUID, data []byte) UUID {
	return FromGoogle(guuid.NewMD5(ns.Google(), data))
}

// NewSHA1 returns the version 5 UUID of data within namespace ns. The SHA-1
// digest is truncated to 16 bytes.
func NewSHA1(ns UUID, data []byte) UUID {
	return FromGoogle(guuid.NewSHA1(ns.Google(), data))
}

// NameFromString returns the name-based UUID of name within namespace ns
// using the given hash. The name is hashed as its UTF-8 bytes.
func NameFromString(name string, ns UUID, h Hash) (UUID, error) {
	switch h {
	case MD5:
		return NewMD5(ns, []byte(name)), nil
	case SHA1:
		return NewSHA1(ns, []byte(name)), nil
	default:
		return Nil, fmt.Errorf("%w: %q", ErrUnsupportedHash, string(h))
	}
}

// ParseHash maps a case-insensitive hash name ("md5", "sha1", "sha-1") to a
// Hash.
func ParseHash(s string) (Hash, error) {
	switch strings.ToLower(s) {
	case "md5", "3":
		return MD5, nil
	case "sha1", "sha-1", "5":
		return SHA1, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedHash, s)
	}
}
