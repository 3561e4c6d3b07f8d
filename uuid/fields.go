package uuid

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Version is the 4-bit version number held in the high nibble of byte 6.
type Version byte

// Versions defined by RFC 4122.
const (
	VersionTimeBased   Version = 1
	VersionDCESecurity Version = 2
	VersionNameMD5     Version = 3
	VersionRandom      Version = 4
	VersionNameSHA1    Version = 5
)

func (v Version) String() string {
	switch v {
	case VersionTimeBased:
		return "time-based"
	case VersionDCESecurity:
		return "dce-security"
	case VersionNameMD5:
		return "name-based-md5"
	case VersionRandom:
		return "random"
	case VersionNameSHA1:
		return "name-based-sha1"
	default:
		return fmt.Sprintf("version-%d", byte(v))
	}
}

// Variant identifies the layout family of a UUID, taken from the top bits of
// byte 8.
type Variant byte

// Variants defined by RFC 4122.
const (
	VariantNCS Variant = iota
	VariantRFC4122
	VariantMicrosoft
	VariantFuture
)

func (v Variant) String() string {
	switch v {
	case VariantNCS:
		return "ncs"
	case VariantRFC4122:
		return "rfc4122"
	case VariantMicrosoft:
		return "microsoft"
	default:
		return "future"
	}
}

const (
	// TicksPerMilli is the number of 100ns ticks in one millisecond.
	TicksPerMilli = 10000

	// EpochOffsetMillis is the distance in milliseconds between the UUID
	// epoch (1582-10-15 00:00:00 UTC) and the Unix epoch.
	EpochOffsetMillis = 12219292800000

	// MaxTimestamp is the largest 60-bit timestamp.
	MaxTimestamp = 1<<60 - 1

	// MaxClockSequence is the largest 14-bit clock sequence.
	MaxClockSequence = 1<<14 - 1
)

// Version returns the version nibble.
func (u UUID) Version() Version {
	return Version(u[6] >> 4)
}

// Variant returns the variant encoded in byte 8.
func (u UUID) Variant() Variant {
	switch {
	case u[8]&0x80 == 0:
		return VariantNCS
	case u[8]&0x40 == 0:
		return VariantRFC4122
	case u[8]&0x20 == 0:
		return VariantMicrosoft
	default:
		return VariantFuture
	}
}

func (u UUID) requireTimeBased(field string) error {
	if u.Variant() != VariantRFC4122 || u.Version() != VersionTimeBased {
		return fmt.Errorf("%w: %s of %s/%s uuid %s", ErrUnsupportedField, field, u.Variant(), u.Version(), u)
	}
	return nil
}

// Timestamp returns the 60-bit count of 100ns ticks since 1582-10-15.
func (u UUID) Timestamp() (uint64, error) {
	if err := u.requireTimeBased("timestamp"); err != nil {
		return 0, err
	}
	low := uint64(binary.BigEndian.Uint32(u[0:4]))
	mid := uint64(binary.BigEndian.Uint16(u[4:6]))
	high := uint64(binary.BigEndian.Uint16(u[6:8]) & 0x0fff)
	return high<<48 | mid<<32 | low, nil
}

// ClockSequence returns the 14-bit clock sequence.
func (u UUID) ClockSequence() (uint16, error) {
	if err := u.requireTimeBased("clock sequence"); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(u[8:10]) & MaxClockSequence, nil
}

// Node returns the 48-bit node identifier.
func (u UUID) Node() (NodeID, error) {
	var n NodeID
	if err := u.requireTimeBased("node"); err != nil {
		return n, err
	}
	copy(n[:], u[10:16])
	return n, nil
}

// Time returns the version 1 timestamp as a wall clock time, truncated to
// 100ns.
func (u UUID) Time() (time.Time, error) {
	ts, err := u.Timestamp()
	if err != nil {
		return time.Time{}, err
	}
	return TimestampTime(ts), nil
}

// TimestampTime converts a 60-bit tick count into a time.Time.
func TimestampTime(ts uint64) time.Time {
	const offsetTicks = EpochOffsetMillis * TicksPerMilli
	const ticksPerSecond = 1000 * TicksPerMilli
	unix100ns := int64(ts&MaxTimestamp) - offsetTicks
	sec, rem := unix100ns/ticksPerSecond, unix100ns%ticksPerSecond
	if rem < 0 {
		sec--
		rem += ticksPerSecond
	}
	return time.Unix(sec, rem*100).UTC()
}

// NewTime packs a version 1 UUID from a 60-bit timestamp, a 14-bit clock
// sequence and a node identifier. Bits above the field widths are discarded.
func NewTime(timestamp uint64, clockSeq uint16, node NodeID) UUID {
	var u UUID
	binary.BigEndian.PutUint32(u[0:4], uint32(timestamp))
	binary.BigEndian.PutUint16(u[4:6], uint16(timestamp>>32))
	binary.BigEndian.PutUint16(u[6:8], uint16(timestamp>>48)&0x0fff)
	binary.BigEndian.PutUint16(u[8:10], clockSeq&MaxClockSequence)
	copy(u[10:], node[:])
	u.setVersionVariant(VersionTimeBased)
	return u
}
