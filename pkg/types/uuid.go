package types

import (
	"crypto/rand"
	"fmt"
	"strings"
)

// uuidAlphabet is LVM's own UUID alphabet: no hyphens, no padding.
const uuidAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// uuidLen is the number of alphabet characters in an LVM UUID.
const uuidLen = 32

// hyphenOffsets are the character offsets (into the bare 32-char form)
// after which String inserts a hyphen, per the 6-4-4-4-4-4-6 grouping.
var hyphenOffsets = []int{6, 10, 14, 18, 22, 26}

// Uuid is a 32-character LVM identifier. The zero value is not a valid
// UUID; construct one with Create or ParseUuid.
type Uuid struct {
	raw string // always exactly uuidLen characters from uuidAlphabet
}

// Create draws a fresh UUID from a cryptographic RNG.
func Create() (Uuid, error) {
	buf := make([]byte, uuidLen)
	if _, err := rand.Read(buf); err != nil {
		return Uuid{}, fmt.Errorf("uuid: reading entropy: %w", err)
	}
	chars := make([]byte, uuidLen)
	for i, b := range buf {
		chars[i] = uuidAlphabet[int(b)%len(uuidAlphabet)]
	}
	return Uuid{raw: string(chars)}, nil
}

// ParseUuid accepts both the hyphenated (display) and bare forms and
// rejects bad length or unknown characters.
func ParseUuid(s string) (Uuid, error) {
	bare := strings.ReplaceAll(s, "-", "")
	if len(bare) != uuidLen {
		return Uuid{}, fmt.Errorf("uuid: %q has length %d, want %d", s, len(bare), uuidLen)
	}
	for _, c := range bare {
		if strings.IndexRune(uuidAlphabet, c) < 0 {
			return Uuid{}, fmt.Errorf("uuid: %q contains invalid character %q", s, c)
		}
	}
	return Uuid{raw: bare}, nil
}

// String renders the UUID with hyphens at the fixed 6-4-4-4-4-4-6 offsets.
func (u Uuid) String() string {
	var b strings.Builder
	b.Grow(uuidLen + len(hyphenOffsets))
	last := 0
	for _, off := range hyphenOffsets {
		b.WriteString(u.raw[last:off])
		b.WriteByte('-')
		last = off
	}
	b.WriteString(u.raw[last:])
	return b.String()
}

// Bare returns the 32-character form with no hyphens, as stored on disk
// in the pv_header and in textual metadata.
func (u Uuid) Bare() string {
	return u.raw
}

// IsZero reports whether u is the zero value (never a valid UUID).
func (u Uuid) IsZero() bool {
	return u.raw == ""
}

// Equal reports whether two UUIDs denote the same identifier.
func (u Uuid) Equal(other Uuid) bool {
	return u.raw == other.raw
}
