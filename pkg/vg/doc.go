// Package vg implements the pure volume-group model: the in-memory
// Metadata value, the tagged Op mutations that transform it, and the
// textual-metadata emitter/parser that round-trips Metadata through
// pkg/configtext.
//
// Apply is the heart of the package: a pure function, free of any I/O,
// that takes a Metadata and an Op and returns the next Metadata. It is
// built to be replayed — applying the same already-applied Op a second
// time must succeed and produce an identical result — so that
// pkg/redolog can replay its journal after a crash without asking
// "was this one already done?" first.
package vg
