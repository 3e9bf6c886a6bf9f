package types

import "fmt"

// maxTagLen bounds a Tag the same way PvName is bounded: generous enough
// for any real deployment, small enough to keep metadata text sane.
const maxTagLen = 128

// Tag is a bounded ASCII label attachable to a logical volume.
type Tag struct {
	value string
}

// NewTag validates s and returns a Tag, mirroring LVM's own tag character
// set: letters, digits, and a handful of punctuation marks, never empty.
func NewTag(s string) (Tag, error) {
	if s == "" {
		return Tag{}, fmt.Errorf("tag: empty")
	}
	if len(s) > maxTagLen {
		return Tag{}, fmt.Errorf("tag: %q exceeds %d characters", s, maxTagLen)
	}
	for _, c := range s {
		if !isTagChar(c) {
			return Tag{}, fmt.Errorf("tag: %q contains invalid character %q", s, c)
		}
	}
	return Tag{value: s}, nil
}

func isTagChar(c rune) bool {
	switch {
	case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		return true
	case c == '_' || c == '+' || c == '.' || c == '-' || c == '/' || c == '=' || c == '!' || c == ':' || c == '#' || c == '&':
		return true
	default:
		return false
	}
}

// String returns the underlying tag text.
func (t Tag) String() string {
	return t.value
}

// Equal reports whether two tags have the same text.
func (t Tag) Equal(other Tag) bool {
	return t.value == other.value
}
