package label

import (
	"encoding/binary"
	"fmt"

	"github.com/simonjbeaumont/mirage-block-volume/pkg/block"
	"github.com/simonjbeaumont/mirage-block-volume/pkg/types"
)

const (
	mdaMagic         = " LVM2 x[5A%r0N*>" // 16 bytes, fixed on-disk metadata-area header magic
	mdaVersion       = 1
	mdaHeaderSize    = block.SectorSize
	mdaRawLocStart   = 44 // magic(16) crc(4) version(4) start(8) size(8) magic_flags(4)
	rawLocationSize  = 24 // offset u64, size u64, checksum u32, flags u32
	maxRawLocations  = (mdaHeaderSize - mdaRawLocStart) / rawLocationSize

	// keepRawLocations is how many of the most recent raw_locations
	// WriteMetadataText retains; older ones are zeroed so readers always
	// have at least one torn-write-tolerant fallback.
	keepRawLocations = 2
)

// magicFlag is the on-disk uint32 encoding of types.Magic in the
// mda_header's magic_flags word.
const (
	magicFlagLvm        uint32 = 0
	magicFlagJournalled uint32 = 1
)

func encodeMagic(m types.Magic) uint32 {
	if m == types.MagicJournalled {
		return magicFlagJournalled
	}
	return magicFlagLvm
}

func decodeMagic(flag uint32) types.Magic {
	if flag == magicFlagJournalled {
		return types.MagicJournalled
	}
	return types.MagicLvm
}

// RawLocation names one committed write of metadata text within the
// circular buffer: its offset (relative to MdaHeader.Start, wrapping at
// MdaHeader.Size), length, and checksum.
type RawLocation struct {
	Offset   uint64
	Size     uint64
	Checksum uint32
	Flags    uint32
}

func (r RawLocation) isZero() bool {
	return r == RawLocation{}
}

// MdaHeader describes one metadata area's circular text buffer.
type MdaHeader struct {
	Start        uint64 // absolute byte offset on the PV of the circular buffer
	Size         uint64 // byte length of the circular buffer
	Magic        types.Magic
	RawLocations []RawLocation
}

// newestLocation returns the RawLocation with the highest Offset among
// the non-zero entries: the most recently committed metadata text.
func (h MdaHeader) newestLocation() (RawLocation, bool) {
	var best RawLocation
	found := false
	for _, r := range h.RawLocations {
		if r.isZero() {
			continue
		}
		if !found || r.Offset > best.Offset {
			best = r
			found = true
		}
	}
	return best, found
}

// Encode renders h as the 512-byte on-disk mda_header.
func (h MdaHeader) Encode() ([]byte, error) {
	if len(h.RawLocations) > maxRawLocations {
		return nil, fmt.Errorf("mda: too many raw_locations: %d > %d", len(h.RawLocations), maxRawLocations)
	}
	buf := make([]byte, mdaHeaderSize)
	copy(buf[0:16], mdaMagic)
	binary.LittleEndian.PutUint32(buf[20:24], mdaVersion)
	binary.LittleEndian.PutUint64(buf[24:32], h.Start)
	binary.LittleEndian.PutUint64(buf[32:40], h.Size)
	binary.LittleEndian.PutUint32(buf[40:44], encodeMagic(h.Magic))

	off := mdaRawLocStart
	for _, r := range h.RawLocations {
		encodeRawLocation(buf[off:off+rawLocationSize], r)
		off += rawLocationSize
	}
	// terminator: the rest of the slots are already zero.

	crc := crcExcluding(buf, 16)
	binary.LittleEndian.PutUint32(buf[16:20], crc)
	return buf, nil
}

// DecodeMdaHeader parses and verifies a 512-byte mda_header.
func DecodeMdaHeader(buf []byte) (MdaHeader, error) {
	if len(buf) != mdaHeaderSize {
		return MdaHeader{}, fmt.Errorf("mda: expected %d bytes, got %d", mdaHeaderSize, len(buf))
	}
	if string(buf[0:16]) != mdaMagic {
		return MdaHeader{}, fmt.Errorf("mda: not an LVM PV")
	}
	wantCRC := binary.LittleEndian.Uint32(buf[16:20])
	if got := crcExcluding(buf, 16); got != wantCRC {
		return MdaHeader{}, fmt.Errorf("mda: corrupt metadata")
	}
	version := binary.LittleEndian.Uint32(buf[20:24])
	if version != mdaVersion {
		return MdaHeader{}, fmt.Errorf("mda: unsupported version %d", version)
	}

	h := MdaHeader{
		Start: binary.LittleEndian.Uint64(buf[24:32]),
		Size:  binary.LittleEndian.Uint64(buf[32:40]),
		Magic: decodeMagic(binary.LittleEndian.Uint32(buf[40:44])),
	}
	off := mdaRawLocStart
	for off+rawLocationSize <= mdaHeaderSize {
		r := decodeRawLocation(buf[off : off+rawLocationSize])
		off += rawLocationSize
		if r.isZero() {
			break
		}
		h.RawLocations = append(h.RawLocations, r)
	}
	return h, nil
}

func encodeRawLocation(buf []byte, r RawLocation) {
	binary.LittleEndian.PutUint64(buf[0:8], r.Offset)
	binary.LittleEndian.PutUint64(buf[8:16], r.Size)
	binary.LittleEndian.PutUint32(buf[16:20], r.Checksum)
	binary.LittleEndian.PutUint32(buf[20:24], r.Flags)
}

func decodeRawLocation(buf []byte) RawLocation {
	return RawLocation{
		Offset:   binary.LittleEndian.Uint64(buf[0:8]),
		Size:     binary.LittleEndian.Uint64(buf[8:16]),
		Checksum: binary.LittleEndian.Uint32(buf[16:20]),
		Flags:    binary.LittleEndian.Uint32(buf[20:24]),
	}
}

// ReadMdaHeader reads and decodes the mda_header at the start of the
// metadata area (byte offset areaStart on dev).
func ReadMdaHeader(dev block.Device, areaStart uint64) (MdaHeader, error) {
	buf := make([]byte, mdaHeaderSize)
	if _, err := dev.ReadAt(buf, int64(areaStart)); err != nil {
		return MdaHeader{}, fmt.Errorf("mda: reading header: %w", err)
	}
	return DecodeMdaHeader(buf)
}

// WriteMdaHeader encodes and writes h at byte offset areaStart on dev.
func WriteMdaHeader(dev block.Device, areaStart uint64, h MdaHeader) error {
	buf, err := h.Encode()
	if err != nil {
		return err
	}
	if _, err := dev.WriteAt(buf, int64(areaStart)); err != nil {
		return fmt.Errorf("mda: writing header: %w", err)
	}
	return nil
}

// ReadMetadataText reads the newest committed metadata text from the
// circular buffer described by h, verifying its CRC.
func ReadMetadataText(dev block.Device, h MdaHeader) (string, error) {
	loc, ok := h.newestLocation()
	if !ok {
		return "", fmt.Errorf("mda: no committed metadata")
	}
	if loc.Size > h.Size {
		return "", fmt.Errorf("mda: corrupt metadata: raw_location size %d exceeds area size %d", loc.Size, h.Size)
	}
	buf, err := readCircular(dev, h.Start, h.Size, loc.Offset, loc.Size)
	if err != nil {
		return "", fmt.Errorf("mda: reading metadata text: %w", err)
	}
	if got := crc32lvm(buf); got != loc.Checksum {
		return "", fmt.Errorf("mda: corrupt metadata")
	}
	return string(buf), nil
}

// WriteMetadataText appends text to the circular buffer described by h
// (wrapping as needed), computes its CRC, and returns the updated
// MdaHeader with the new raw_location installed and all but the most
// recent keepRawLocations entries cleared. It does not itself write the
// header to disk — callers (pkg/session via pkg/label.CommitMetadataText)
// write text first, barrier, then the header, so a crash between the
// two leaves the old header pointing at the old (still intact) text.
func WriteMetadataText(dev block.Device, h MdaHeader, text string) (MdaHeader, error) {
	data := []byte(text)
	if uint64(len(data)) > h.Size {
		return MdaHeader{}, fmt.Errorf("mda: metadata too large: %d bytes, area holds %d", len(data), h.Size)
	}

	var writeOffset uint64
	if prev, ok := h.newestLocation(); ok {
		writeOffset = (prev.Offset + prev.Size) % h.Size
	}

	if err := writeCircular(dev, h.Start, h.Size, writeOffset, data); err != nil {
		return MdaHeader{}, fmt.Errorf("mda: writing metadata text: %w", err)
	}

	newLoc := RawLocation{Offset: writeOffset, Size: uint64(len(data)), Checksum: crc32lvm(data)}
	locations := append([]RawLocation{newLoc}, h.RawLocations...)
	if len(locations) > keepRawLocations {
		locations = locations[:keepRawLocations]
	}

	return MdaHeader{Start: h.Start, Size: h.Size, Magic: h.Magic, RawLocations: locations}, nil
}

// CommitMetadataText is the full write-text-then-header sequence with
// an fsync barrier between them, so the header update is never visible
// before the text it points to is durable.
func CommitMetadataText(dev block.Device, areaStart uint64, h MdaHeader, text string) (MdaHeader, error) {
	updated, err := WriteMetadataText(dev, h, text)
	if err != nil {
		return MdaHeader{}, err
	}
	if err := dev.Sync(); err != nil {
		return MdaHeader{}, fmt.Errorf("mda: fsync after text write: %w", err)
	}
	if err := WriteMdaHeader(dev, areaStart, updated); err != nil {
		return MdaHeader{}, err
	}
	if err := dev.Sync(); err != nil {
		return MdaHeader{}, fmt.Errorf("mda: fsync after header write: %w", err)
	}
	return updated, nil
}

func readCircular(dev block.Device, areaStart, areaSize, offset, n uint64) ([]byte, error) {
	buf := make([]byte, n)
	first := n
	if offset+n > areaSize {
		first = areaSize - offset
	}
	if _, err := dev.ReadAt(buf[:first], int64(areaStart+offset)); err != nil {
		return nil, err
	}
	if first < n {
		if _, err := dev.ReadAt(buf[first:], int64(areaStart)); err != nil {
			return nil, err
		}
	}
	return buf, nil
}

func writeCircular(dev block.Device, areaStart, areaSize, offset uint64, data []byte) error {
	n := uint64(len(data))
	first := n
	if offset+n > areaSize {
		first = areaSize - offset
	}
	if _, err := dev.WriteAt(data[:first], int64(areaStart+offset)); err != nil {
		return err
	}
	if first < n {
		if _, err := dev.WriteAt(data[first:], int64(areaStart)); err != nil {
			return err
		}
	}
	return nil
}
