package block

import "io"

// SectorSize is the fixed sector size assumed throughout the on-disk
// layout (pv label, mda_header, extents), matching LVM2's own fixed
// 512-byte sector.
const SectorSize = 512

// Device is the capability every layer above it (pkg/label, pkg/redolog,
// pkg/volume) uses to read and write physical storage. It is
// sector-addressed: callers pass byte offsets that are always multiples
// of SectorSize and buffer lengths that are always multiples of
// SectorSize, but Device itself doesn't enforce that — callers that
// violate it get whatever the backend does with a misaligned io.ReaderAt.
type Device interface {
	io.ReaderAt
	io.WriterAt

	// SizeBytes returns the device's total addressable size in bytes.
	SizeBytes() int64

	// Sync forces any buffered writes to stable storage.
	Sync() error

	// Close releases the underlying resource. A closed Device must not
	// be used again.
	Close() error
}

// Info summarizes a Device the way pkg/volume's Volume.GetInfo needs to
// expose it for an LV: whether it's writable, and its sector size.
type Info struct {
	ReadWrite  bool
	SectorSize int
	SizeSectors uint64
}
