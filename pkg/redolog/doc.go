// Package redolog implements the idempotent operation journal: a
// single-producer/single-consumer ring buffer of pkg/vg.Op records kept
// on a dedicated LV, so that pkg/session can batch metadata-area
// rewrites instead of paying a full fsync-to-every-PV cost on every
// mutation.
//
// On-disk layout of the dedicated LV:
//
//	sector 0        ring header: producer/consumer offsets, next seqno, crc
//	sector 1..N     circular record area
//
// Each record is length-prefixed and checksummed (grounded on
// grailbio-base's logio.go record header: checksum, length, sequence
// number, then payload) so a reader can always tell a torn tail record
// from a committed one and stop there rather than misinterpreting
// garbage as a record.
//
// Push appends a record and returns a Waiter that resolves once Flush
// has successfully handed that record (and everything before it) to the
// perform callback installed at Open. Replay, called once at Open, feeds
// any already-committed-but-unflushed records to perform before Push is
// usable, recovering the in-memory state a crash left mid-batch.
package redolog
