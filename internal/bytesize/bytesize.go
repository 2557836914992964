// Package bytesize parses human-readable size strings used in the
// scheduler's configuration (cache block size, pool water marks).
package bytesize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ByteSize is a size in bytes with a human-friendly string form.
type ByteSize uint64

const (
	KB ByteSize = 1 << (10 * (iota + 1))
	MB
	GB
	TB
)

var sizePattern = regexp.MustCompile(`^(?i)\s*([0-9]+(?:\.[0-9]+)?)\s*([KMGT]i?B?|B)?\s*$`)

// Parse converts a human-readable size string ("64Ki", "8MB", "1073741824")
// into a ByteSize. A bare number is interpreted as bytes.
func Parse(s string) (ByteSize, error) {
	m := sizePattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("bytesize: invalid size %q", s)
	}

	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, fmt.Errorf("bytesize: invalid numeric part in %q: %w", s, err)
	}

	unit := strings.ToUpper(strings.TrimSuffix(m[2], "B"))
	unit = strings.TrimSuffix(unit, "I")

	var multiplier float64
	switch unit {
	case "":
		multiplier = 1
	case "K":
		multiplier = float64(KB)
	case "M":
		multiplier = float64(MB)
	case "G":
		multiplier = float64(GB)
	case "T":
		multiplier = float64(TB)
	default:
		return 0, fmt.Errorf("bytesize: unrecognized unit in %q", s)
	}

	return ByteSize(value * multiplier), nil
}

// MustParse is like Parse but panics on error. Intended for use with
// compile-time-known constants such as default config values.
func MustParse(s string) ByteSize {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// String renders the size using the largest whole unit that divides it
// evenly, falling back to a plain byte count otherwise.
func (b ByteSize) String() string {
	switch {
	case b == 0:
		return "0B"
	case b%ByteSize(TB) == 0:
		return fmt.Sprintf("%dTi", b/ByteSize(TB))
	case b%ByteSize(GB) == 0:
		return fmt.Sprintf("%dGi", b/ByteSize(GB))
	case b%ByteSize(MB) == 0:
		return fmt.Sprintf("%dMi", b/ByteSize(MB))
	case b%ByteSize(KB) == 0:
		return fmt.Sprintf("%dKi", b/ByteSize(KB))
	default:
		return fmt.Sprintf("%dB", uint64(b))
	}
}

// Bytes returns the size as a plain byte count.
func (b ByteSize) Bytes() uint64 { return uint64(b) }
