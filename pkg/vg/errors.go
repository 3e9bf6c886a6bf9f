package vg

import (
	"fmt"

	"github.com/simonjbeaumont/mirage-block-volume/pkg/allocator"
)

// UnknownLV is returned when an Op names an LV (by id or name) that
// isn't present in the volume group, except for LvRemove, which treats
// a missing id as a successful no-op.
type UnknownLV struct {
	Ref string
}

func (e *UnknownLV) Error() string {
	return fmt.Sprintf("no such logical volume %q", e.Ref)
}

// DuplicateLV is raised by the higher-level Create wrapper, never by
// Apply itself, when the requested name already exists in the group.
type DuplicateLV struct {
	Name string
}

func (e *DuplicateLV) Error() string {
	return fmt.Sprintf("logical volume %q already exists", e.Name)
}

// Msg is the catch-all error: parse errors, CRC failures, device I/O
// errors, sector-size mismatches, unsupported segment types, and
// internal invariant violations that are programmer errors rather than
// something a caller can recover from.
type Msg string

func (e Msg) Error() string { return string(e) }

// Msgf builds a Msg error with fmt.Sprintf formatting.
func Msgf(format string, args ...any) error {
	return Msg(fmt.Sprintf(format, args...))
}

// PPError pretty-prints an error from this package's taxonomy (or the
// allocator's OnlyThisMuchFree, which callers often see wrapped in the
// same return path) into a single-line, caller-facing message. It never
// panics on an unrecognized error: anything it doesn't know about falls
// through to err.Error().
func PPError(err error) string {
	if err == nil {
		return ""
	}
	switch e := err.(type) {
	case *UnknownLV:
		return fmt.Sprintf("unknown logical volume: %s", e.Ref)
	case *DuplicateLV:
		return fmt.Sprintf("duplicate logical volume: %s", e.Name)
	case *allocator.OnlyThisMuchFree:
		return fmt.Sprintf("not enough free extents: needed %d, only %d available", e.Needed, e.Available)
	case Msg:
		return string(e)
	default:
		return err.Error()
	}
}
