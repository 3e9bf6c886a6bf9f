// Package block defines the Device capability consumed by every layer
// that touches physical storage (pkg/label, pkg/redolog, pkg/volume),
// and two implementations: UnixFile, backed by a real file or block
// special device via os.File.ReadAt/WriteAt, and Memory, a plain byte
// buffer for tests — an interface first, swappable backends behind it,
// addressing fixed-size sectors instead of documents keyed by ID.
package block
