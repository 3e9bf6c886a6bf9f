package volume

import (
	"bytes"
	"testing"

	"github.com/simonjbeaumont/mirage-block-volume/pkg/block"
	"github.com/simonjbeaumont/mirage-block-volume/pkg/segment"
	"github.com/simonjbeaumont/mirage-block-volume/pkg/types"
	"github.com/simonjbeaumont/mirage-block-volume/pkg/vg"
)

const testExtentSize = 4096 // bytes, small so tests don't need huge devices

func mustPvName(t *testing.T, s string) types.PvName {
	t.Helper()
	name, err := types.NewPvName(s)
	if err != nil {
		t.Fatalf("NewPvName(%q): %v", s, err)
	}
	return name
}

func mustUuid(t *testing.T) types.Uuid {
	t.Helper()
	id, err := types.Create()
	if err != nil {
		t.Fatalf("types.Create: %v", err)
	}
	return id
}

// linearMetadata builds a single-PV, single-LV Metadata: pv0 has 10
// extents starting at byte offset peStartBytes on its device, and the
// LV occupies extents [0,4) of pv0, i.e. logical extents [0,4) too.
func linearMetadata(t *testing.T, peStartBytes uint64, status []types.LvStatus) (vg.Metadata, types.Uuid, *block.Memory) {
	t.Helper()
	pvName := mustPvName(t, "pv0")
	dev := block.NewMemory(int64(peStartBytes + 10*testExtentSize))
	lvID := mustUuid(t)

	meta := vg.Metadata{
		Name:       "vg0",
		ExtentSize: testExtentSize / 512,
		PVs: []vg.Pv{
			{ID: mustUuid(t), Name: pvName, PeStart: peStartBytes, PeCount: 10},
		},
		LVs: map[types.Uuid]vg.Lv{
			lvID: {
				ID:     lvID,
				Name:   "lv0",
				Status: status,
				Segments: segment.List{
					{
						StartExtent: 0,
						ExtentCount: 4,
						Kind:        segment.KindLinear,
						Linear:      segment.LinearSegment{PvName: pvName, PvStartExtent: 0},
					},
				},
			},
		},
	}
	return meta, lvID, dev
}

func TestConnectAndGetInfo(t *testing.T) {
	peStart := uint64(8192)
	meta, lvID, dev := linearMetadata(t, peStart, []types.LvStatus{types.LvRead, types.LvWrite, types.LvVisible})
	devices := map[types.PvName]block.Device{mustPvName(t, "pv0"): dev}

	vol, err := Connect(meta, devices, lvID)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	info, err := vol.GetInfo()
	if err != nil {
		t.Fatalf("GetInfo: %v", err)
	}
	if !info.ReadWrite {
		t.Errorf("ReadWrite = false, want true")
	}
	wantSectors := 4 * testExtentSize / block.SectorSize
	if info.SizeSectors != uint64(wantSectors) {
		t.Errorf("SizeSectors = %d, want %d", info.SizeSectors, wantSectors)
	}
}

func TestConnectUnknownLv(t *testing.T) {
	meta, _, dev := linearMetadata(t, 8192, nil)
	devices := map[types.PvName]block.Device{mustPvName(t, "pv0"): dev}

	if _, err := Connect(meta, devices, mustUuid(t)); err == nil {
		t.Fatal("Connect with unknown lv id succeeded, want error")
	}
}

func TestWriteThenReadRoundTrip(t *testing.T) {
	peStart := uint64(8192)
	meta, lvID, dev := linearMetadata(t, peStart, []types.LvStatus{types.LvWrite})
	devices := map[types.PvName]block.Device{mustPvName(t, "pv0"): dev}

	vol, err := Connect(meta, devices, lvID)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	want := bytes.Repeat([]byte("hello-lv0-"), 100) // 1000 bytes, spans a sector but stays in extent 0
	if _, err := vol.WriteAt(want, 512); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}

	got := make([]byte, len(want))
	if _, err := vol.ReadAt(got, 512); err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("round trip mismatch: got %q want %q", got, want)
	}

	// And the bytes landed at the expected physical offset: pe_start + 512.
	raw := make([]byte, len(want))
	if _, err := dev.ReadAt(raw, int64(peStart+512)); err != nil {
		t.Fatalf("direct ReadAt: %v", err)
	}
	if !bytes.Equal(raw, want) {
		t.Fatalf("bytes not at expected physical offset: got %q want %q", raw, want)
	}
}

func TestWriteSpanningTwoExtents(t *testing.T) {
	peStart := uint64(8192)
	meta, lvID, dev := linearMetadata(t, peStart, []types.LvStatus{types.LvWrite})
	devices := map[types.PvName]block.Device{mustPvName(t, "pv0"): dev}

	vol, err := Connect(meta, devices, lvID)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	want := bytes.Repeat([]byte{0xAB}, testExtentSize+256)
	off := int64(testExtentSize - 128) // starts in extent 0, crosses into extent 1
	if _, err := vol.WriteAt(want, off); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}
	got := make([]byte, len(want))
	if _, err := vol.ReadAt(got, off); err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("round trip mismatch across extent boundary")
	}
}

func TestReadPastEndOfLvIsUnmapped(t *testing.T) {
	meta, lvID, dev := linearMetadata(t, 8192, []types.LvStatus{types.LvWrite})
	devices := map[types.PvName]block.Device{mustPvName(t, "pv0"): dev}

	vol, err := Connect(meta, devices, lvID)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	buf := make([]byte, 16)
	// The LV is 4 extents (16384 bytes); this offset is past the end.
	if _, err := vol.ReadAt(buf, 4*testExtentSize); err == nil {
		t.Fatal("ReadAt past end of lv succeeded, want error")
	}
}

func TestStripedSegmentRejectedForIO(t *testing.T) {
	pvName := mustPvName(t, "pv0")
	dev := block.NewMemory(1 << 20)
	lvID := mustUuid(t)
	meta := vg.Metadata{
		ExtentSize: testExtentSize / 512,
		PVs: []vg.Pv{
			{ID: mustUuid(t), Name: pvName, PeStart: 8192, PeCount: 10},
		},
		LVs: map[types.Uuid]vg.Lv{
			lvID: {
				ID:   lvID,
				Name: "striped0",
				Segments: segment.List{
					{
						StartExtent: 0,
						ExtentCount: 4,
						Kind:        segment.KindStriped,
						StripeSize:  8,
						Stripes: []segment.Stripe{
							{PvName: pvName, PvStartExtent: 0},
						},
					},
				},
			},
		},
	}
	devices := map[types.PvName]block.Device{pvName: dev}

	vol, err := Connect(meta, devices, lvID)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	buf := make([]byte, 16)
	if _, err := vol.ReadAt(buf, 0); err == nil {
		t.Fatal("ReadAt on striped segment succeeded, want error")
	}
}

func TestDisconnectRejectsFurtherIO(t *testing.T) {
	meta, lvID, dev := linearMetadata(t, 8192, []types.LvStatus{types.LvWrite})
	devices := map[types.PvName]block.Device{mustPvName(t, "pv0"): dev}

	vol, err := Connect(meta, devices, lvID)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := vol.Disconnect(); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	buf := make([]byte, 16)
	if _, err := vol.ReadAt(buf, 0); err == nil {
		t.Fatal("ReadAt after Disconnect succeeded, want error")
	}
	if _, err := vol.WriteAt(buf, 0); err == nil {
		t.Fatal("WriteAt after Disconnect succeeded, want error")
	}
}

func TestSizeBytesMatchesSegmentTotal(t *testing.T) {
	meta, lvID, dev := linearMetadata(t, 8192, []types.LvStatus{types.LvWrite})
	devices := map[types.PvName]block.Device{mustPvName(t, "pv0"): dev}

	vol, err := Connect(meta, devices, lvID)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if got, want := vol.SizeBytes(), int64(4*testExtentSize); got != want {
		t.Errorf("SizeBytes() = %d, want %d", got, want)
	}
}
