package label

import (
	"encoding/binary"
	"fmt"

	"github.com/simonjbeaumont/mirage-block-volume/pkg/block"
	"github.com/simonjbeaumont/mirage-block-volume/pkg/types"
)

const (
	// labelMagic identifies sector 1 as an LVM-style label block.
	labelMagic = "LABELONE"
	// lvmTypeMagic identifies the label as this format's generation.
	lvmTypeMagic = "LVM2 001"

	labelSectorIndex = 1
	labelOffset      = labelSectorIndex * block.SectorSize
	labelSize        = block.SectorSize

	pvHeaderOffset = 32 // bytes into the label block where pv_header begins

	// DefaultExtentSizeSectors is the extent size when a caller doesn't
	// override it: 8192 sectors, 4 MiB.
	DefaultExtentSizeSectors = 8192

	// DefaultMaxMetadataSize bounds a freshly formatted metadata area.
	DefaultMaxMetadataSize = 1 << 20 // 1 MiB
)

// AreaDescriptor is one entry of a pv_header's data-area or
// metadata-area list: a byte offset and size on the PV. A zero
// descriptor ({0,0}) terminates the list.
type AreaDescriptor struct {
	Offset uint64
	Size   uint64
}

func (d AreaDescriptor) isZero() bool { return d.Offset == 0 && d.Size == 0 }

// PvHeader is the part of the label block identifying the PV itself.
type PvHeader struct {
	ID             types.Uuid
	DeviceSize     uint64
	DataAreas      []AreaDescriptor
	MetadataAreas  []AreaDescriptor
}

// Label is the full contents of the 512-byte LABELONE block.
type Label struct {
	Header PvHeader
}

// Encode renders l as the 512-byte on-disk label block.
func (l Label) Encode() ([]byte, error) {
	buf := make([]byte, labelSize)
	copy(buf[0:8], labelMagic)
	binary.LittleEndian.PutUint64(buf[8:16], labelSectorIndex)
	binary.LittleEndian.PutUint32(buf[20:24], pvHeaderOffset)
	copy(buf[24:32], lvmTypeMagic)

	pvBuf, err := encodePvHeader(l.Header)
	if err != nil {
		return nil, err
	}
	if pvHeaderOffset+len(pvBuf) > labelSize {
		return nil, fmt.Errorf("label: metadata too large: pv_header needs %d bytes, have %d", len(pvBuf), labelSize-pvHeaderOffset)
	}
	copy(buf[pvHeaderOffset:], pvBuf)

	crc := crcExcluding(buf, 16)
	binary.LittleEndian.PutUint32(buf[16:20], crc)
	return buf, nil
}

// DecodeLabel parses and verifies a 512-byte label block.
func DecodeLabel(buf []byte) (Label, error) {
	if len(buf) != labelSize {
		return Label{}, fmt.Errorf("label: expected %d bytes, got %d", labelSize, len(buf))
	}
	if string(buf[0:8]) != labelMagic {
		return Label{}, fmt.Errorf("label: not an LVM PV")
	}
	if string(buf[24:32]) != lvmTypeMagic {
		return Label{}, fmt.Errorf("label: not an LVM PV")
	}
	wantCRC := binary.LittleEndian.Uint32(buf[16:20])
	if got := crcExcluding(buf, 16); got != wantCRC {
		return Label{}, fmt.Errorf("label: corrupt metadata")
	}

	pvOffset := binary.LittleEndian.Uint32(buf[20:24])
	if int(pvOffset) > labelSize {
		return Label{}, fmt.Errorf("label: corrupt metadata")
	}
	hdr, err := decodePvHeader(buf[pvOffset:])
	if err != nil {
		return Label{}, fmt.Errorf("label: corrupt metadata: %w", err)
	}
	return Label{Header: hdr}, nil
}

// ReadLabel reads and decodes the label block from dev.
func ReadLabel(dev block.Device) (Label, error) {
	buf := make([]byte, labelSize)
	if _, err := dev.ReadAt(buf, labelOffset); err != nil {
		return Label{}, fmt.Errorf("label: reading label block: %w", err)
	}
	return DecodeLabel(buf)
}

// WriteLabel encodes and writes l to dev's label sector.
func WriteLabel(dev block.Device, l Label) error {
	buf, err := l.Encode()
	if err != nil {
		return err
	}
	if _, err := dev.WriteAt(buf, labelOffset); err != nil {
		return fmt.Errorf("label: writing label block: %w", err)
	}
	return nil
}

func encodePvHeader(h PvHeader) ([]byte, error) {
	buf := make([]byte, 0, 32+8+16*(len(h.DataAreas)+len(h.MetadataAreas)+2))
	id := h.ID.Bare()
	if len(id) != 32 {
		return nil, fmt.Errorf("label: pv id %q is not 32 characters", id)
	}
	buf = append(buf, id...)

	sizeBuf := make([]byte, 8)
	binary.LittleEndian.PutUint64(sizeBuf, h.DeviceSize)
	buf = append(buf, sizeBuf...)

	for _, a := range h.DataAreas {
		buf = append(buf, encodeAreaDescriptor(a)...)
	}
	buf = append(buf, encodeAreaDescriptor(AreaDescriptor{})...)

	for _, a := range h.MetadataAreas {
		buf = append(buf, encodeAreaDescriptor(a)...)
	}
	buf = append(buf, encodeAreaDescriptor(AreaDescriptor{})...)

	return buf, nil
}

func encodeAreaDescriptor(a AreaDescriptor) []byte {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint64(buf[0:8], a.Offset)
	binary.LittleEndian.PutUint64(buf[8:16], a.Size)
	return buf
}

func decodePvHeader(buf []byte) (PvHeader, error) {
	if len(buf) < 40 {
		return PvHeader{}, fmt.Errorf("pv_header truncated")
	}
	id, err := types.ParseUuid(string(buf[0:32]))
	if err != nil {
		return PvHeader{}, fmt.Errorf("pv_header: %w", err)
	}
	deviceSize := binary.LittleEndian.Uint64(buf[32:40])

	rest := buf[40:]
	dataAreas, rest, err := decodeAreaList(rest)
	if err != nil {
		return PvHeader{}, err
	}
	metadataAreas, _, err := decodeAreaList(rest)
	if err != nil {
		return PvHeader{}, err
	}

	return PvHeader{
		ID:            id,
		DeviceSize:    deviceSize,
		DataAreas:     dataAreas,
		MetadataAreas: metadataAreas,
	}, nil
}

func decodeAreaList(buf []byte) ([]AreaDescriptor, []byte, error) {
	var out []AreaDescriptor
	for {
		if len(buf) < 16 {
			return nil, nil, fmt.Errorf("area list truncated")
		}
		a := AreaDescriptor{
			Offset: binary.LittleEndian.Uint64(buf[0:8]),
			Size:   binary.LittleEndian.Uint64(buf[8:16]),
		}
		buf = buf[16:]
		if a.isZero() {
			return out, buf, nil
		}
		out = append(out, a)
	}
}
