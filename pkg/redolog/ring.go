package redolog

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/simonjbeaumont/mirage-block-volume/pkg/block"
	"github.com/simonjbeaumont/mirage-block-volume/pkg/vg"
)

const (
	// LvName is the reserved name for the redo-log LV within a VG.
	LvName = "mirage_block_volume_redo_log"
	// SizeBytes is the redo-log LV's fixed size.
	SizeBytes = 32 * 1024 * 1024

	ringHeaderMagic = "RLOGHDR1"
	ringHeaderSize  = block.SectorSize
	recordAreaStart = block.SectorSize
)

// ringHeader is the sector-0 control block of the redo-log ring: where
// the producer is about to write next, where the consumer has
// committed up to, and the next sequence number to hand out.
type ringHeader struct {
	ProducerOffset uint64 // byte offset within the record area, wraps at recordAreaSize
	ConsumerOffset uint64
	NextSeqno      uint64
}

func recordAreaSize(dev block.Device) uint64 {
	return uint64(dev.SizeBytes()) - recordAreaStart
}

func (h ringHeader) encode() []byte {
	buf := make([]byte, ringHeaderSize)
	copy(buf[0:8], ringHeaderMagic)
	binary.LittleEndian.PutUint64(buf[8:16], h.ProducerOffset)
	binary.LittleEndian.PutUint64(buf[16:24], h.ConsumerOffset)
	binary.LittleEndian.PutUint64(buf[24:32], h.NextSeqno)
	crc := crc32.ChecksumIEEE(buf[:32])
	binary.LittleEndian.PutUint32(buf[32:36], crc)
	return buf
}

func decodeRingHeader(buf []byte) (ringHeader, error) {
	if len(buf) < ringHeaderSize {
		return ringHeader{}, vg.Msgf("redolog: header truncated")
	}
	if string(buf[0:8]) != ringHeaderMagic {
		return ringHeader{}, vg.Msgf("redolog: not a redo log")
	}
	wantCRC := binary.LittleEndian.Uint32(buf[32:36])
	if got := crc32.ChecksumIEEE(buf[:32]); got != wantCRC {
		return ringHeader{}, vg.Msgf("redolog: corrupt ring header")
	}
	return ringHeader{
		ProducerOffset: binary.LittleEndian.Uint64(buf[8:16]),
		ConsumerOffset: binary.LittleEndian.Uint64(buf[16:24]),
		NextSeqno:      binary.LittleEndian.Uint64(buf[24:32]),
	}, nil
}

func readRingHeader(dev block.Device) (ringHeader, error) {
	buf := make([]byte, ringHeaderSize)
	if _, err := dev.ReadAt(buf, 0); err != nil {
		return ringHeader{}, vg.Msgf("redolog: reading ring header: %v", err)
	}
	return decodeRingHeader(buf)
}

func writeRingHeader(dev block.Device, h ringHeader) error {
	if _, err := dev.WriteAt(h.encode(), 0); err != nil {
		return vg.Msgf("redolog: writing ring header: %v", err)
	}
	return nil
}

// Format stamps a fresh, empty ring header onto dev, which must be the
// redo-log LV's own device, already zeroed.
func Format(dev block.Device) error {
	return writeRingHeader(dev, ringHeader{NextSeqno: 1})
}

func readCircular(dev block.Device, areaSize, offset, n uint64) ([]byte, error) {
	buf := make([]byte, n)
	first := n
	if offset+n > areaSize {
		first = areaSize - offset
	}
	if _, err := dev.ReadAt(buf[:first], int64(recordAreaStart+offset)); err != nil {
		return nil, err
	}
	if first < n {
		if _, err := dev.ReadAt(buf[first:], int64(recordAreaStart)); err != nil {
			return nil, err
		}
	}
	return buf, nil
}

func writeCircular(dev block.Device, areaSize, offset uint64, data []byte) error {
	n := uint64(len(data))
	first := n
	if offset+n > areaSize {
		first = areaSize - offset
	}
	if _, err := dev.WriteAt(data[:first], int64(recordAreaStart+offset)); err != nil {
		return err
	}
	if first < n {
		if _, err := dev.WriteAt(data[first:], int64(recordAreaStart)); err != nil {
			return err
		}
	}
	return nil
}
