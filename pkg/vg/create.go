package vg

import (
	"github.com/simonjbeaumont/mirage-block-volume/pkg/allocator"
	"github.com/simonjbeaumont/mirage-block-volume/pkg/segment"
	"github.com/simonjbeaumont/mirage-block-volume/pkg/types"
)

// extentsForBytes converts a byte size into a whole number of extents,
// rounding up.
func extentsForBytes(meta Metadata, bytes uint64) uint64 {
	extentBytes := meta.ExtentSizeBytes()
	return (bytes + extentBytes - 1) / extentBytes
}

// Create builds the Op for a brand-new LV of the given size, allocating
// fresh extents with the allocator's first-fit policy. It refuses to
// produce an op if name already exists in meta.
func Create(meta Metadata, name string, sizeBytes uint64, status []types.LvStatus, creationHost string, creationTime int64) (Op, error) {
	if _, exists := meta.LVByName(name); exists {
		return nil, &DuplicateLV{Name: name}
	}

	needed := extentsForBytes(meta, sizeBytes)
	alloc, err := allocator.Find(meta.FreeSpace, meta.PVOrder(), needed)
	if err != nil {
		return nil, err
	}

	id, err := types.Create()
	if err != nil {
		return nil, Msgf("vg: create: generating lv id: %v", err)
	}

	return LvCreate{Lv: Lv{
		ID:           id,
		Name:         name,
		Status:       status,
		CreationHost: creationHost,
		CreationTime: creationTime,
		Segments:     segment.Linear(0, alloc),
	}}, nil
}

// Resize builds the Op that grows or shrinks lv to newSizeBytes. Growing
// allocates fresh extents and returns an LvExpand; shrinking returns an
// LvReduce. A no-op resize (same extent count) still returns a valid Op
// whose application is itself a no-op per LvExpand/LvReduce's
// idempotence rules.
func Resize(meta Metadata, lvID types.Uuid, newSizeBytes uint64) (Op, error) {
	lv, ok := meta.LVs[lvID]
	if !ok {
		return nil, &UnknownLV{Ref: lvID.String()}
	}

	current := lv.Segments.TotalExtents()
	want := extentsForBytes(meta, newSizeBytes)

	if want <= current {
		return LvReduce{ID: lvID, NewExtentCount: want}, nil
	}

	alloc, err := allocator.Find(meta.FreeSpace, meta.PVOrder(), want-current)
	if err != nil {
		return nil, err
	}
	return LvExpand{ID: lvID, Segments: segment.Linear(current, alloc)}, nil
}
