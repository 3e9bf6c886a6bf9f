package label

import (
	"strings"
	"testing"

	"github.com/simonjbeaumont/mirage-block-volume/pkg/block"
	"github.com/simonjbeaumont/mirage-block-volume/pkg/types"
)

func mustUuid(t *testing.T) types.Uuid {
	t.Helper()
	id, err := types.Create()
	if err != nil {
		t.Fatalf("types.Create() error = %v", err)
	}
	return id
}

func TestLabelEncodeDecodeRoundTrip(t *testing.T) {
	id := mustUuid(t)
	l := Label{Header: PvHeader{
		ID:         id,
		DeviceSize: 1 << 30,
		DataAreas:  []AreaDescriptor{{Offset: 1 << 20, Size: 1 << 29}},
		MetadataAreas: []AreaDescriptor{
			{Offset: 2 * block.SectorSize, Size: 1 << 16},
		},
	}}

	buf, err := l.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if len(buf) != labelSize {
		t.Fatalf("Encode() len = %d, want %d", len(buf), labelSize)
	}

	got, err := DecodeLabel(buf)
	if err != nil {
		t.Fatalf("DecodeLabel() error = %v", err)
	}
	if !got.Header.ID.Equal(id) {
		t.Errorf("ID = %v, want %v", got.Header.ID, id)
	}
	if got.Header.DeviceSize != l.Header.DeviceSize {
		t.Errorf("DeviceSize = %d, want %d", got.Header.DeviceSize, l.Header.DeviceSize)
	}
	if len(got.Header.DataAreas) != 1 || got.Header.DataAreas[0] != l.Header.DataAreas[0] {
		t.Errorf("DataAreas = %+v, want %+v", got.Header.DataAreas, l.Header.DataAreas)
	}
	if len(got.Header.MetadataAreas) != 1 || got.Header.MetadataAreas[0] != l.Header.MetadataAreas[0] {
		t.Errorf("MetadataAreas = %+v, want %+v", got.Header.MetadataAreas, l.Header.MetadataAreas)
	}
}

func TestDecodeLabelRejectsBadMagic(t *testing.T) {
	buf := make([]byte, labelSize)
	copy(buf, "NOTALABEL")
	if _, err := DecodeLabel(buf); err == nil {
		t.Fatal("DecodeLabel() with bad magic succeeded, want error")
	}
}

func TestDecodeLabelRejectsCorruptCRC(t *testing.T) {
	id := mustUuid(t)
	l := Label{Header: PvHeader{ID: id, DeviceSize: 1 << 20}}
	buf, err := l.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	buf[100] ^= 0xff

	if _, err := DecodeLabel(buf); err == nil {
		t.Fatal("DecodeLabel() with corrupted byte succeeded, want error")
	}
}

func TestReadWriteLabelThroughDevice(t *testing.T) {
	dev := block.NewMemory(4096)
	id := mustUuid(t)
	l := Label{Header: PvHeader{ID: id, DeviceSize: 4096}}

	if err := WriteLabel(dev, l); err != nil {
		t.Fatalf("WriteLabel() error = %v", err)
	}
	got, err := ReadLabel(dev)
	if err != nil {
		t.Fatalf("ReadLabel() error = %v", err)
	}
	if !got.Header.ID.Equal(id) {
		t.Errorf("ID = %v, want %v", got.Header.ID, id)
	}
}

func TestMdaHeaderEncodeDecodeRoundTrip(t *testing.T) {
	h := MdaHeader{
		Start: 1024,
		Size:  1 << 16,
		Magic: types.MagicJournalled,
		RawLocations: []RawLocation{
			{Offset: 0, Size: 128, Checksum: 0xdeadbeef},
		},
	}
	buf, err := h.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	got, err := DecodeMdaHeader(buf)
	if err != nil {
		t.Fatalf("DecodeMdaHeader() error = %v", err)
	}
	if got.Start != h.Start || got.Size != h.Size {
		t.Errorf("Start/Size = %d/%d, want %d/%d", got.Start, got.Size, h.Start, h.Size)
	}
	if got.Magic != types.MagicJournalled {
		t.Errorf("Magic = %v, want %v", got.Magic, types.MagicJournalled)
	}
	if len(got.RawLocations) != 1 || got.RawLocations[0] != h.RawLocations[0] {
		t.Errorf("RawLocations = %+v, want %+v", got.RawLocations, h.RawLocations)
	}
}

func TestDecodeMdaHeaderRejectsCorruptCRC(t *testing.T) {
	h := MdaHeader{Start: 512, Size: 4096}
	buf, err := h.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	buf[300] ^= 0xff
	if _, err := DecodeMdaHeader(buf); err == nil {
		t.Fatal("DecodeMdaHeader() with corrupted byte succeeded, want error")
	}
}

func TestWriteAndReadMetadataTextRoundTrip(t *testing.T) {
	dev := block.NewMemory(1 << 20)
	areaStart := uint64(2 * block.SectorSize)
	h := MdaHeader{Start: areaStart + block.SectorSize, Size: 4096}
	if err := WriteMdaHeader(dev, areaStart, h); err != nil {
		t.Fatalf("WriteMdaHeader() error = %v", err)
	}

	text := `contents = "1"

my_vg {
	id = "abc"
}
`
	updated, err := CommitMetadataText(dev, areaStart, h, text)
	if err != nil {
		t.Fatalf("CommitMetadataText() error = %v", err)
	}

	got, err := ReadMetadataText(dev, updated)
	if err != nil {
		t.Fatalf("ReadMetadataText() error = %v", err)
	}
	if got != text {
		t.Errorf("ReadMetadataText() = %q, want %q", got, text)
	}
}

func TestWriteMetadataTextWrapsAndKeepsHistory(t *testing.T) {
	dev := block.NewMemory(1 << 20)
	areaStart := uint64(2 * block.SectorSize)
	// A small area forces wraparound after a couple of commits.
	h := MdaHeader{Start: areaStart + block.SectorSize, Size: 64}

	text1 := strings.Repeat("a", 30)
	h, err := WriteMetadataText(dev, h, text1)
	if err != nil {
		t.Fatalf("WriteMetadataText() #1 error = %v", err)
	}
	got1, err := ReadMetadataText(dev, h)
	if err != nil {
		t.Fatalf("ReadMetadataText() #1 error = %v", err)
	}
	if got1 != text1 {
		t.Fatalf("ReadMetadataText() #1 = %q, want %q", got1, text1)
	}

	text2 := strings.Repeat("b", 30)
	h, err = WriteMetadataText(dev, h, text2)
	if err != nil {
		t.Fatalf("WriteMetadataText() #2 error = %v", err)
	}
	got2, err := ReadMetadataText(dev, h)
	if err != nil {
		t.Fatalf("ReadMetadataText() #2 error = %v", err)
	}
	if got2 != text2 {
		t.Fatalf("ReadMetadataText() #2 = %q, want %q", got2, text2)
	}

	text3 := strings.Repeat("c", 30) // wraps past the end of the 64-byte area
	h, err = WriteMetadataText(dev, h, text3)
	if err != nil {
		t.Fatalf("WriteMetadataText() #3 error = %v", err)
	}
	got3, err := ReadMetadataText(dev, h)
	if err != nil {
		t.Fatalf("ReadMetadataText() #3 error = %v", err)
	}
	if got3 != text3 {
		t.Fatalf("ReadMetadataText() #3 = %q, want %q", got3, text3)
	}
	if len(h.RawLocations) > keepRawLocations {
		t.Errorf("RawLocations retained %d entries, want <= %d", len(h.RawLocations), keepRawLocations)
	}
}

func TestFormatLaysOutLabelAndMetadataArea(t *testing.T) {
	dev := block.NewMemory(64 << 20)
	res, err := Format(dev, FormatOptions{})
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	if res.PeCount == 0 {
		t.Fatal("Format() PeCount = 0, want > 0")
	}

	l, err := ReadLabel(dev)
	if err != nil {
		t.Fatalf("ReadLabel() after Format() error = %v", err)
	}
	if !l.Header.ID.Equal(res.Label.Header.ID) {
		t.Errorf("ID = %v, want %v", l.Header.ID, res.Label.Header.ID)
	}
	if len(l.Header.MetadataAreas) != 1 {
		t.Fatalf("MetadataAreas = %d entries, want 1", len(l.Header.MetadataAreas))
	}

	mda, err := ReadMdaHeader(dev, res.MdaAreaStart)
	if err != nil {
		t.Fatalf("ReadMdaHeader() error = %v", err)
	}
	if mda.Size != DefaultMaxMetadataSize {
		t.Errorf("MdaHeader.Size = %d, want %d", mda.Size, DefaultMaxMetadataSize)
	}
}

func TestFormatStampsRequestedMagic(t *testing.T) {
	dev := block.NewMemory(64 << 20)
	res, err := Format(dev, FormatOptions{Magic: types.MagicJournalled})
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	mda, err := ReadMdaHeader(dev, res.MdaAreaStart)
	if err != nil {
		t.Fatalf("ReadMdaHeader() error = %v", err)
	}
	if mda.Magic != types.MagicJournalled {
		t.Errorf("Magic = %v, want %v", mda.Magic, types.MagicJournalled)
	}
}

func TestFormatRejectsTooSmallDevice(t *testing.T) {
	dev := block.NewMemory(1024)
	if _, err := Format(dev, FormatOptions{}); err == nil {
		t.Fatal("Format() on tiny device succeeded, want error")
	}
}
