// Package types holds the small value types shared across the volume
// group engine: UUIDs in LVM's own 32-character alphabet, tags, physical
// volume names, and extent intervals. Nothing in this package performs
// I/O; everything here is constructed, validated, and compared in memory.
package types
