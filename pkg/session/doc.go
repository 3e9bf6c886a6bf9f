// Package session implements the volume group session: format a set
// of physical volumes, connect to an existing group, and apply and
// durably commit mutations to it.
//
// Session is parameterized over its capabilities: a logging.Logger,
// the block.Device map the caller already opened, and a Clock for
// stamping creation times. It holds one vg.Metadata value behind an
// atomic pointer for lock-free reads, a mutex serializing Update
// calls, and — when the group was formatted with types.MagicJournalled
// and connected read-write — a *redolog.Log batching writes to the PV
// metadata areas instead of rewriting them on every call.
//
// A Session owns a mutable store behind a mutex, an event broker, and
// a command-apply entrypoint; there is exactly one writer, so there is
// no consensus protocol to run.
package session
