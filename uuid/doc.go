// Package uuid implements the 128-bit identifier value described by RFC 4122.
//
// A UUID is an immutable 16-byte array. Every field (version, variant and,
// for version 1 values, timestamp, clock sequence and node) is a pure
// function of the bytes, so values can be compared with == and used as map
// keys.
//
// # Versions
//
//   - Version 1: time-based. Built by the generator package through NewTime.
//   - Version 3: name-based, MD5. See NewMD5 and NameFromString.
//   - Version 4: random. See NewRandom.
//   - Version 5: name-based, SHA-1 truncated to 16 bytes. See NewSHA1.
//
// # Text form
//
// String returns the canonical 36 character form
//
//	xxxxxxxx-xxxx-Mxxx-Nxxx-xxxxxxxxxxxx
//
// in lowercase hex, and URN prefixes it with "urn:uuid:". Parse accepts an
// optional "<namespace>:" prefix followed by either the hyphenated form or
// 32 bare hex digits, in any case.
//
// # Ordering
//
// Compare orders values byte-wise, most significant byte first, treating
// bytes as unsigned.
package uuid
