package volume

import (
	"sync"

	"github.com/simonjbeaumont/mirage-block-volume/pkg/block"
	"github.com/simonjbeaumont/mirage-block-volume/pkg/segment"
	"github.com/simonjbeaumont/mirage-block-volume/pkg/types"
	"github.com/simonjbeaumont/mirage-block-volume/pkg/vg"
)

// Volume is a connected handle onto one logical volume's sectors. It
// implements block.Device so it can be handed directly to anything
// that expects raw sector I/O — in particular pkg/redolog, which opens
// the redo-log LV as a Volume.
type Volume struct {
	mu sync.Mutex

	lvID       types.Uuid
	lvName     string
	readWrite  bool
	extentSize uint64 // bytes
	segments   segment.List
	peStart    map[types.PvName]uint64
	devices    map[types.PvName]block.Device

	connected bool
}

// Connect builds a Volume for lv (looked up by id in meta.LVs),
// snapshotting the Lv's segments and each referenced PV's pe_start.
// Every Device in this system is fixed at block.SectorSize, so there
// is no per-device sector size to reconcile. It does not retain a
// reference to meta itself, so a later session update swapping the
// metadata pointer can't mutate an already-connected Volume out from
// under a caller.
func Connect(meta vg.Metadata, devices map[types.PvName]block.Device, lvID types.Uuid) (*Volume, error) {
	lv, ok := meta.LVs[lvID]
	if !ok {
		return nil, &vg.UnknownLV{Ref: lvID.String()}
	}

	peStart := make(map[types.PvName]uint64)
	for _, seg := range lv.Segments {
		for _, pvName := range segmentPvNames(seg) {
			if _, already := peStart[pvName]; already {
				continue
			}
			pv, ok := meta.PVByName(pvName)
			if !ok {
				return nil, vg.Msgf("volume: connect %q: segment references unknown pv %q", lv.Name, pvName)
			}
			if _, ok := devices[pvName]; !ok {
				return nil, vg.Msgf("volume: connect %q: no device open for pv %q", lv.Name, pvName)
			}
			peStart[pvName] = pv.PeStart
		}
	}

	return &Volume{
		lvID:       lv.ID,
		lvName:     lv.Name,
		readWrite:  types.HasLvStatus(lv.Status, types.LvWrite),
		extentSize: meta.ExtentSizeBytes(),
		segments:   append(segment.List(nil), lv.Segments...),
		peStart:    peStart,
		devices:    devices,
		connected:  true,
	}, nil
}

func segmentPvNames(seg segment.Segment) []types.PvName {
	if seg.Kind == segment.KindLinear {
		return []types.PvName{seg.Linear.PvName}
	}
	names := make([]types.PvName, len(seg.Stripes))
	for i, s := range seg.Stripes {
		names[i] = s.PvName
	}
	return names
}

// Info summarizes a connected Volume.
type Info struct {
	ReadWrite   bool
	SectorSize  int
	SizeSectors uint64
}

// GetInfo reports vol's read/write flag, sector size, and total size.
func (vol *Volume) GetInfo() (Info, error) {
	vol.mu.Lock()
	defer vol.mu.Unlock()
	if !vol.connected {
		return Info{}, vg.Msgf("volume: disconnected")
	}
	sectorSize := block.SectorSize
	return Info{
		ReadWrite:   vol.readWrite,
		SectorSize:  sectorSize,
		SizeSectors: vol.segments.TotalExtents() * vol.extentSize / uint64(sectorSize),
	}, nil
}

// Disconnect marks vol unusable. Further Read/Write/ReadAt/WriteAt
// calls return an error.
func (vol *Volume) Disconnect() error {
	vol.mu.Lock()
	defer vol.mu.Unlock()
	vol.connected = false
	return nil
}

// SizeBytes implements block.Device.
func (vol *Volume) SizeBytes() int64 {
	vol.mu.Lock()
	defer vol.mu.Unlock()
	return int64(vol.segments.TotalExtents() * vol.extentSize)
}

// Sync implements block.Device by syncing every underlying device vol
// can currently reach. It syncs the whole device set rather than just
// the PVs vol's segments touch, since the caller (pkg/session) shares
// one devices map across every Volume it opens and wants a single
// durability barrier across all of them.
func (vol *Volume) Sync() error {
	vol.mu.Lock()
	devices := vol.devices
	vol.mu.Unlock()
	for name, dev := range devices {
		if err := dev.Sync(); err != nil {
			return vg.Msgf("volume: sync: pv %q: %v", name, err)
		}
	}
	return nil
}

// Close implements block.Device as an alias for Disconnect.
func (vol *Volume) Close() error {
	return vol.Disconnect()
}

// ReadAt implements io.ReaderAt (and so block.Device) over the LV's
// logical sector space.
func (vol *Volume) ReadAt(p []byte, off int64) (int, error) {
	return vol.transfer(p, off, false)
}

// WriteAt implements io.WriterAt (and so block.Device) over the LV's
// logical sector space.
func (vol *Volume) WriteAt(p []byte, off int64) (int, error) {
	return vol.transfer(p, off, true)
}

// transfer walks p in segment-bounded chunks, translating each chunk's
// byte range into a physical device offset via the segment map,
// generalized from a sector-sized read/write to an arbitrary byte
// range.
func (vol *Volume) transfer(p []byte, off int64, write bool) (int, error) {
	vol.mu.Lock()
	defer vol.mu.Unlock()

	if !vol.connected {
		return 0, vg.Msgf("volume: disconnected")
	}
	if off < 0 {
		return 0, vg.Msgf("volume: negative offset %d", off)
	}

	total := len(p)
	done := 0

	for done < total {
		byteOff := uint64(off) + uint64(done)
		le := byteOff / vol.extentSize
		withinExtent := byteOff % vol.extentSize

		seg, ok := segment.FindExtent(vol.segments, le)
		if !ok {
			return done, vg.Msgf("volume: %q: unmapped logical extent %d", vol.lvName, le)
		}
		if seg.Kind != segment.KindLinear {
			return done, vg.Msgf("volume: %q: striped segments are not supported for I/O", vol.lvName)
		}

		pvName := seg.Linear.PvName
		dev, ok := vol.devices[pvName]
		if !ok {
			return done, vg.Msgf("volume: %q: no device open for pv %q", vol.lvName, pvName)
		}
		peStart, ok := vol.peStart[pvName]
		if !ok {
			return done, vg.Msgf("volume: %q: unmapped pv %q", vol.lvName, pvName)
		}

		pe := seg.Linear.PvStartExtent + (le - seg.StartExtent)
		devOff := peStart + pe*vol.extentSize + withinExtent

		// Bound this chunk to what's left in the current extent.
		remainInExtent := vol.extentSize - withinExtent
		chunk := uint64(total - done)
		if chunk > remainInExtent {
			chunk = remainInExtent
		}

		var n int
		var err error
		if write {
			n, err = dev.WriteAt(p[done:done+int(chunk)], int64(devOff))
		} else {
			n, err = dev.ReadAt(p[done:done+int(chunk)], int64(devOff))
		}
		done += n
		if err != nil {
			return done, vg.Msgf("volume: %q: pv %q: %v", vol.lvName, pvName, err)
		}
		if n == 0 {
			return done, vg.Msgf("volume: %q: pv %q: short transfer", vol.lvName, pvName)
		}
	}
	return done, nil
}
