package label

import (
	"fmt"

	"github.com/simonjbeaumont/mirage-block-volume/pkg/block"
	"github.com/simonjbeaumont/mirage-block-volume/pkg/types"
)

// FormatOptions controls how Format lays out a fresh PV.
type FormatOptions struct {
	ID types.Uuid

	// ExtentSizeSectors is the allocation granularity of the data area,
	// defaulting to DefaultExtentSizeSectors when zero.
	ExtentSizeSectors uint64

	// MetadataSize is the byte size of the single metadata area's
	// circular text buffer, defaulting to DefaultMaxMetadataSize when
	// zero.
	MetadataSize uint64

	// Magic is stamped into the mda_header so a later connect() knows
	// whether to expect a redo-log LV on this VG.
	Magic types.Magic
}

// FormatResult reports the geometry Format chose, so callers
// (pkg/session's Format) can record pe_start/pe_count in the volume group's
// metadata without recomputing it.
type FormatResult struct {
	Label        Label
	MdaHeader    MdaHeader
	MdaAreaStart uint64
	PeStart      uint64
	PeCount      uint64
}

// Format writes a fresh label block and empty metadata area to dev,
// reserving:
//
//	sector 0           unused
//	sector 1           label block (pv_header: one data area, one mda)
//	sector 2..N        metadata area (mda_header + circular text buffer)
//	pe_start..         data area, pe_count extents of ExtentSizeSectors
//
// It does not write any volume group metadata text; callers commit the
// initial metadata via CommitMetadataText once the PV is attached to a
// VG.
func Format(dev block.Device, opts FormatOptions) (FormatResult, error) {
	extentSectors := opts.ExtentSizeSectors
	if extentSectors == 0 {
		extentSectors = DefaultExtentSizeSectors
	}
	mdaSize := opts.MetadataSize
	if mdaSize == 0 {
		mdaSize = DefaultMaxMetadataSize
	}
	id := opts.ID
	if id.IsZero() {
		var err error
		id, err = types.Create()
		if err != nil {
			return FormatResult{}, fmt.Errorf("label: generating pv id: %w", err)
		}
	}

	deviceSize := uint64(dev.SizeBytes())
	if deviceSize < 4*block.SectorSize {
		return FormatResult{}, fmt.Errorf("label: device too small to format")
	}

	mdaAreaStart := uint64(2 * block.SectorSize)
	textStart := mdaAreaStart + mdaHeaderSize
	peStartBytes := roundUp(textStart+mdaSize, extentSectors*block.SectorSize)
	if peStartBytes >= deviceSize {
		return FormatResult{}, fmt.Errorf("label: device too small for metadata area of %d bytes", mdaSize)
	}
	extentBytes := extentSectors * block.SectorSize
	peCount := (deviceSize - peStartBytes) / extentBytes

	mdaHeader := MdaHeader{Start: textStart, Size: mdaSize, Magic: opts.Magic}
	if err := WriteMdaHeader(dev, mdaAreaStart, mdaHeader); err != nil {
		return FormatResult{}, err
	}

	l := Label{Header: PvHeader{
		ID:         id,
		DeviceSize: deviceSize,
		DataAreas:  []AreaDescriptor{{Offset: peStartBytes, Size: peCount * extentBytes}},
		MetadataAreas: []AreaDescriptor{
			{Offset: mdaAreaStart, Size: mdaHeaderSize + mdaSize},
		},
	}}
	if err := WriteLabel(dev, l); err != nil {
		return FormatResult{}, err
	}
	if err := dev.Sync(); err != nil {
		return FormatResult{}, fmt.Errorf("label: fsync after format: %w", err)
	}

	return FormatResult{
		Label:        l,
		MdaHeader:    mdaHeader,
		MdaAreaStart: mdaAreaStart,
		PeStart:      peStartBytes,
		PeCount:      peCount,
	}, nil
}

func roundUp(n, multiple uint64) uint64 {
	if multiple == 0 {
		return n
	}
	rem := n % multiple
	if rem == 0 {
		return n
	}
	return n + (multiple - rem)
}
