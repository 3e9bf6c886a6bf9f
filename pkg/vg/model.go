package vg

import (
	"github.com/simonjbeaumont/mirage-block-volume/pkg/segment"
	"github.com/simonjbeaumont/mirage-block-volume/pkg/types"
)

// Pv is one physical volume attached to a volume group.
type Pv struct {
	ID      types.Uuid
	Name    types.PvName
	Status  []types.PvStatus
	PeStart uint64
	PeCount uint64
}

// Lv is one logical volume within a volume group.
type Lv struct {
	ID           types.Uuid
	Name         string
	Tags         []types.Tag
	Status       []types.LvStatus
	CreationHost string
	CreationTime int64
	Segments     segment.List
}

// HasTag reports whether t is already present among lv's tags.
func (lv Lv) HasTag(t types.Tag) bool {
	for _, existing := range lv.Tags {
		if existing.Equal(t) {
			return true
		}
	}
	return false
}

// Metadata is the full immutable value describing a volume group at one
// point in time. Every mutation in this package returns a new Metadata
// rather than changing one in place.
type Metadata struct {
	Name         string
	ID           types.Uuid
	CreationHost string
	CreationTime int64
	Seqno        uint32
	Status       []types.VgStatus
	ExtentSize   uint64 // in 512-byte sectors
	MaxLV        uint32
	MaxPV        uint32
	PVs          []Pv
	LVs          map[types.Uuid]Lv
	FreeSpace    types.Allocation
}

// Clone returns a deep-enough copy of m: every mutation in this package
// builds its result from a Clone so the input Metadata is never
// observed to change.
func (m Metadata) Clone() Metadata {
	out := m
	out.PVs = append([]Pv(nil), m.PVs...)
	out.LVs = make(map[types.Uuid]Lv, len(m.LVs))
	for id, lv := range m.LVs {
		lvCopy := lv
		lvCopy.Tags = append([]types.Tag(nil), lv.Tags...)
		lvCopy.Status = append([]types.LvStatus(nil), lv.Status...)
		lvCopy.Segments = append(segment.List(nil), lv.Segments...)
		out.LVs[id] = lvCopy
	}
	out.FreeSpace = m.FreeSpace.Clone()
	return out
}

// LVByName returns the Lv named name, if any.
func (m Metadata) LVByName(name string) (Lv, bool) {
	for _, lv := range m.LVs {
		if lv.Name == name {
			return lv, true
		}
	}
	return Lv{}, false
}

// PVByName returns the Pv named name, if any.
func (m Metadata) PVByName(name types.PvName) (Pv, bool) {
	for _, pv := range m.PVs {
		if pv.Name == name {
			return pv, true
		}
	}
	return Pv{}, false
}

// PVOrder returns the PV names in the order they appear in m.PVs, the
// tie-break order the allocator's Find uses.
func (m Metadata) PVOrder() []types.PvName {
	order := make([]types.PvName, len(m.PVs))
	for i, pv := range m.PVs {
		order[i] = pv.Name
	}
	return order
}

// ExtentSizeBytes returns the extent size in bytes.
func (m Metadata) ExtentSizeBytes() uint64 {
	const sectorSize = 512
	return m.ExtentSize * sectorSize
}

// SizeSectors returns an Lv's total size in 512-byte sectors.
func (m Metadata) SizeSectors(lv Lv) uint64 {
	return lv.Segments.TotalExtents() * m.ExtentSize
}
