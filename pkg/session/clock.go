package session

import "time"

// Clock is the session's time capability, kept to the one method
// callers actually need: a Unix timestamp for
// Lv.CreationTime/Metadata.CreationTime.
type Clock interface {
	Now() time.Time
}

// SystemClock is the default Clock, backed by the real wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
