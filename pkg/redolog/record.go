package redolog

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/simonjbeaumont/mirage-block-volume/pkg/configtext"
	"github.com/simonjbeaumont/mirage-block-volume/pkg/vg"
)

// recordHeaderSize is the fixed prefix before a record's payload:
// length, seqno, checksum — the same checksum-length-sequence shape
// grailbio-base's logio.go uses for its own record headers, adapted
// here to one record per logical entry rather than leveldb's
// block-chunked framing, since ops are always small enough to fit in
// one record.
const recordHeaderSize = 4 + 8 + 4

// record is one journaled Op, ready to be written into the ring.
type record struct {
	Seqno   uint64
	Payload []byte // configtext.Emit(vg.EncodeOp(op)), as bytes
}

func encodeRecord(seqno uint64, op vg.Op) record {
	text := configtext.Emit(vg.EncodeOp(op))
	return record{Seqno: seqno, Payload: []byte(text)}
}

// bytes renders r as its on-disk form: length, seqno, checksum, then
// the payload itself.
func (r record) bytes() []byte {
	buf := make([]byte, recordHeaderSize+len(r.Payload))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(r.Payload)))
	binary.LittleEndian.PutUint64(buf[4:12], r.Seqno)
	copy(buf[recordHeaderSize:], r.Payload)
	crc := crc32.ChecksumIEEE(buf[recordHeaderSize:])
	binary.LittleEndian.PutUint32(buf[12:16], crc)
	return buf
}

func (r record) op() (vg.Op, error) {
	n, err := configtext.Parse(string(r.Payload))
	if err != nil {
		return nil, vg.Msgf("redolog: decoding record %d: %v", r.Seqno, err)
	}
	op, err := vg.DecodeOp(n)
	if err != nil {
		return nil, vg.Msgf("redolog: decoding record %d: %v", r.Seqno, err)
	}
	return op, nil
}

// decodeRecordHeader parses just the fixed header, returning the
// payload length and checksum a caller needs to know how many more
// bytes to read.
func decodeRecordHeader(buf []byte) (payloadLen uint32, seqno uint64, checksum uint32, ok bool) {
	if len(buf) < recordHeaderSize {
		return 0, 0, 0, false
	}
	payloadLen = binary.LittleEndian.Uint32(buf[0:4])
	seqno = binary.LittleEndian.Uint64(buf[4:12])
	checksum = binary.LittleEndian.Uint32(buf[12:16])
	return payloadLen, seqno, checksum, payloadLen > 0 || seqno > 0
}
