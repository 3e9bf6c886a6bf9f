// Package logging provides the structured-logging capability the VG
// session is parameterized over.
//
// Logger is a small interface rather than a concrete zerolog type so
// pkg/session never imports zerolog directly; the default
// implementation in this package wraps github.com/rs/zerolog, but
// callers that want a test double or a different backend only need to
// satisfy the interface.
package logging
