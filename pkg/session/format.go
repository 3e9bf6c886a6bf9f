package session

import (
	"github.com/simonjbeaumont/mirage-block-volume/pkg/allocator"
	"github.com/simonjbeaumont/mirage-block-volume/pkg/block"
	"github.com/simonjbeaumont/mirage-block-volume/pkg/label"
	"github.com/simonjbeaumont/mirage-block-volume/pkg/redolog"
	"github.com/simonjbeaumont/mirage-block-volume/pkg/segment"
	"github.com/simonjbeaumont/mirage-block-volume/pkg/types"
	"github.com/simonjbeaumont/mirage-block-volume/pkg/vg"
	"github.com/simonjbeaumont/mirage-block-volume/pkg/volume"
)

// eraserPattern is the single byte the redo-log LV is zeroed with
// before it is ever read by replay, so a freshly formatted journal
// never mistakes leftover device bytes for a committed record.
const eraserPattern = 0x00

// eraserChunkBytes bounds how much the one-pass zero-fill holds in
// memory at a time.
const eraserChunkBytes = 1 << 20 // 1 MiB

// FormatOptions configures Format.
type FormatOptions struct {
	Name         string
	CreationHost string
	CreationTime int64
	Magic        types.Magic
	ExtentSize   uint64 // in 512-byte sectors; DefaultExtentSizeSectors when zero
}

// Format lays out a brand-new volume group across devices: a label and
// metadata area on every PV (per label.Format), a virgin vg.Metadata
// with no LVs and all space free, and — when opts.Magic is
// types.MagicJournalled — a dedicated redo-log LV reserved out of that
// free space, zeroed, and ring-formatted. The resulting metadata text
// is committed to every PV before Format returns.
//
// PVs passed here must not already carry a label; Format does not
// check for or migrate existing data.
func Format(opts FormatOptions, devices map[types.PvName]block.Device) (vg.Metadata, error) {
	if len(devices) == 0 {
		return vg.Metadata{}, vg.Msgf("session: format: no devices given")
	}

	names := pvNamesSorted(devices)
	pvs := make([]vg.Pv, 0, len(names))
	areas := make(map[types.PvName]pvArea, len(names))
	seen := make(map[types.Uuid]types.PvName, len(names))

	for _, name := range names {
		dev := devices[name]
		id, err := types.Create()
		if err != nil {
			return vg.Metadata{}, vg.Msgf("session: format: generating pv id for %q: %v", name, err)
		}
		if existing, collided := seen[id]; collided {
			return vg.Metadata{}, vg.Msgf("session: format: pv id collision between %q and %q", existing, name)
		}
		seen[id] = name

		result, err := label.Format(dev, label.FormatOptions{
			ID:                id,
			ExtentSizeSectors: opts.ExtentSize,
			Magic:             opts.Magic,
		})
		if err != nil {
			return vg.Metadata{}, vg.Msgf("session: format: labeling pv %q: %v", name, err)
		}

		pvs = append(pvs, vg.Pv{
			ID:      id,
			Name:    name,
			Status:  []types.PvStatus{types.PvAllocatable},
			PeStart: result.PeStart,
			PeCount: result.PeCount,
		})
		areas[name] = pvArea{mdaAreaStart: result.MdaAreaStart, mdaHeader: result.MdaHeader}
	}

	vgID, err := types.Create()
	if err != nil {
		return vg.Metadata{}, vg.Msgf("session: format: generating vg id: %v", err)
	}

	extentSize := opts.ExtentSize
	if extentSize == 0 {
		extentSize = label.DefaultExtentSizeSectors
	}

	meta := vg.Metadata{
		Name:         opts.Name,
		ID:           vgID,
		CreationHost: opts.CreationHost,
		CreationTime: opts.CreationTime,
		Seqno:        1,
		Status:       []types.VgStatus{types.VgRead, types.VgWrite, types.VgResizeable},
		ExtentSize:   extentSize,
		LVs:          map[types.Uuid]vg.Lv{},
	}
	for _, pv := range pvs {
		meta.PVs = append(meta.PVs, pv)
		meta.FreeSpace = allocator.Merge(meta.FreeSpace, allocator.Create(pv.Name, pv.PeCount))
	}

	if opts.Magic == types.MagicJournalled {
		redoLv, err := reserveRedoLog(&meta)
		if err != nil {
			return vg.Metadata{}, err
		}
		meta.LVs[redoLv.ID] = redoLv

		vol, err := volume.Connect(meta, devices, redoLv.ID)
		if err != nil {
			return vg.Metadata{}, vg.Msgf("session: format: connecting redo-log volume: %v", err)
		}
		if err := eraseVolume(vol); err != nil {
			vol.Close()
			return vg.Metadata{}, vg.Msgf("session: format: erasing redo-log volume: %v", err)
		}
		err = redolog.Format(vol)
		closeErr := vol.Close()
		if err != nil {
			return vg.Metadata{}, vg.Msgf("session: format: formatting redo log: %v", err)
		}
		if closeErr != nil {
			return vg.Metadata{}, vg.Msgf("session: format: %v", closeErr)
		}
	}

	text := vg.EmitText(meta)
	for _, name := range names {
		area := areas[name]
		updated, err := label.CommitMetadataText(devices[name], area.mdaAreaStart, area.mdaHeader, text)
		if err != nil {
			return vg.Metadata{}, vg.Msgf("session: format: committing metadata to pv %q: %v", name, err)
		}
		areas[name] = pvArea{mdaAreaStart: area.mdaAreaStart, mdaHeader: updated}
	}

	return meta, nil
}

// reserveRedoLog allocates redolog.SizeBytes worth of extents for the
// redo-log LV, mutating meta.FreeSpace, and returns the Lv to install.
func reserveRedoLog(meta *vg.Metadata) (vg.Lv, error) {
	extentBytes := meta.ExtentSizeBytes()
	needed := (redolog.SizeBytes + extentBytes - 1) / extentBytes

	alloc, err := allocator.Find(meta.FreeSpace, meta.PVOrder(), needed)
	if err != nil {
		return vg.Lv{}, vg.Msgf("session: format: allocating redo log: %v", err)
	}
	remaining, err := allocator.Sub(meta.FreeSpace, alloc)
	if err != nil {
		return vg.Lv{}, vg.Msgf("session: format: reserving redo log: %v", err)
	}
	meta.FreeSpace = remaining

	id, err := types.Create()
	if err != nil {
		return vg.Lv{}, vg.Msgf("session: format: generating redo-log lv id: %v", err)
	}
	return vg.Lv{
		ID:       id,
		Name:     redolog.LvName,
		Status:   []types.LvStatus{types.LvRead, types.LvWrite},
		Segments: segment.Linear(0, alloc),
	}, nil
}

// eraseVolume overwrites every byte of vol with eraserPattern, a
// single pass so a freshly formatted journal never mistakes leftover
// device bytes for a committed record when it is first opened.
func eraseVolume(vol *volume.Volume) error {
	chunk := make([]byte, eraserChunkBytes)
	for i := range chunk {
		chunk[i] = eraserPattern
	}
	size := vol.SizeBytes()
	var off int64
	for off < size {
		n := int64(len(chunk))
		if off+n > size {
			n = size - off
		}
		if _, err := vol.WriteAt(chunk[:n], off); err != nil {
			return err
		}
		off += n
	}
	return vol.Sync()
}
