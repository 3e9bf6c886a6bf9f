package vg

import (
	"github.com/simonjbeaumont/mirage-block-volume/pkg/allocator"
	"github.com/simonjbeaumont/mirage-block-volume/pkg/segment"
	"github.com/simonjbeaumont/mirage-block-volume/pkg/types"
)

// Apply dispatches op against meta and returns the resulting Metadata.
// It is pure: meta is never mutated, and a failed Apply returns meta
// unchanged alongside the error. Seqno only advances when op actually
// changes something — a replayed no-op (per the idempotence rules on
// each Op type) leaves Seqno untouched so replaying it twice in a row
// yields byte-identical results, which is what makes redo-log replay
// safe.
func Apply(meta Metadata, op Op) (Metadata, error) {
	next, changed, err := applyOne(meta, op)
	if err != nil {
		return meta, err
	}
	if !changed {
		return next, nil
	}
	next.Seqno = meta.Seqno + 1
	if err := checkInvariants(next); err != nil {
		return meta, err
	}
	return next, nil
}

func applyOne(meta Metadata, op Op) (Metadata, bool, error) {
	switch o := op.(type) {
	case LvCreate:
		return applyLvCreate(meta, o)
	case LvExpand:
		return applyLvExpand(meta, o)
	case LvReduce:
		return applyLvReduce(meta, o)
	case LvTransfer:
		return applyLvTransfer(meta, o)
	case LvRemove:
		return applyLvRemove(meta, o)
	case LvRename:
		return applyLvRename(meta, o)
	case LvAddTag:
		return applyLvAddTag(meta, o)
	case LvRemoveTag:
		return applyLvRemoveTag(meta, o)
	case LvSetStatus:
		return applyLvSetStatus(meta, o)
	default:
		return meta, false, Msgf("apply: unknown op type %T", op)
	}
}

func applyLvCreate(meta Metadata, op LvCreate) (Metadata, bool, error) {
	if _, exists := meta.LVs[op.Lv.ID]; exists {
		return meta, false, nil
	}
	for _, lv := range meta.LVs {
		if lv.Name == op.Lv.Name {
			return meta, false, Msgf("apply: lv_create: name %q already in use", op.Lv.Name)
		}
	}
	alloc := segment.ToAllocation(op.Lv.Segments)
	newFree, err := allocator.Sub(meta.FreeSpace, alloc)
	if err != nil {
		return meta, false, Msgf("apply: lv_create: %v", err)
	}

	next := meta.Clone()
	next.FreeSpace = newFree
	next.LVs[op.Lv.ID] = op.Lv
	return next, true, nil
}

func applyLvExpand(meta Metadata, op LvExpand) (Metadata, bool, error) {
	lv, ok := meta.LVs[op.ID]
	if !ok {
		return meta, false, &UnknownLV{Ref: op.ID.String()}
	}

	existingStarts := make(map[uint64]bool, len(lv.Segments))
	for _, s := range lv.Segments {
		existingStarts[s.StartExtent] = true
	}
	var fresh segment.List
	for _, s := range op.Segments {
		if existingStarts[s.StartExtent] {
			continue
		}
		fresh = append(fresh, s)
	}
	if len(fresh) == 0 {
		return meta, false, nil
	}

	alloc := segment.ToAllocation(fresh)
	newFree, err := allocator.Sub(meta.FreeSpace, alloc)
	if err != nil {
		return meta, false, Msgf("apply: lv_expand: %v", err)
	}

	grown := append(append(segment.List{}, lv.Segments...), fresh...)
	if err := grown.Validate(); err != nil {
		return meta, false, Msgf("apply: lv_expand: %v", err)
	}

	next := meta.Clone()
	next.FreeSpace = newFree
	lv.Segments = grown
	next.LVs[op.ID] = lv
	return next, true, nil
}

func applyLvReduce(meta Metadata, op LvReduce) (Metadata, bool, error) {
	lv, ok := meta.LVs[op.ID]
	if !ok {
		return meta, false, &UnknownLV{Ref: op.ID.String()}
	}
	current := lv.Segments.TotalExtents()
	if op.NewExtentCount == current {
		return meta, false, nil
	}
	if op.NewExtentCount > current {
		return meta, false, Msgf("apply: lv_reduce: cannot grow via reduce: %d > %d", op.NewExtentCount, current)
	}

	reduced, err := segment.ReduceSizeTo(lv.Segments, op.NewExtentCount)
	if err != nil {
		return meta, false, Msgf("apply: lv_reduce: %v", err)
	}

	freed, err := allocator.Sub(segment.ToAllocation(lv.Segments), segment.ToAllocation(reduced))
	if err != nil {
		return meta, false, Msgf("apply: lv_reduce: %v", err)
	}

	next := meta.Clone()
	next.FreeSpace = allocator.Merge(next.FreeSpace, freed)
	lv.Segments = reduced
	next.LVs[op.ID] = lv
	return next, true, nil
}

func applyLvTransfer(meta Metadata, op LvTransfer) (Metadata, bool, error) {
	src, ok := meta.LVs[op.SrcID]
	if !ok {
		return meta, false, &UnknownLV{Ref: op.SrcID.String()}
	}
	dst, ok := meta.LVs[op.DstID]
	if !ok {
		return meta, false, &UnknownLV{Ref: op.DstID.String()}
	}

	kept, removed := removeMatchingSegments(src.Segments, op.Segments)
	if !removed {
		if includesAll(dst.Segments, op.Segments) {
			return meta, false, nil
		}
		return meta, false, Msgf("apply: lv_transfer: segments not present on source %q", src.Name)
	}

	next := meta.Clone()
	src.Segments = renumber(kept)
	dst.Segments = segment.Append(dst.Segments, renumber(op.Segments))
	if err := dst.Segments.Validate(); err != nil {
		return meta, false, Msgf("apply: lv_transfer: %v", err)
	}
	next.LVs[op.SrcID] = src
	next.LVs[op.DstID] = dst
	return next, true, nil
}

func applyLvRemove(meta Metadata, op LvRemove) (Metadata, bool, error) {
	lv, ok := meta.LVs[op.ID]
	if !ok {
		return meta, false, nil
	}
	next := meta.Clone()
	next.FreeSpace = allocator.Merge(next.FreeSpace, segment.ToAllocation(lv.Segments))
	delete(next.LVs, op.ID)
	return next, true, nil
}

func applyLvRename(meta Metadata, op LvRename) (Metadata, bool, error) {
	lv, ok := meta.LVs[op.ID]
	if !ok {
		return meta, false, &UnknownLV{Ref: op.ID.String()}
	}
	if lv.Name == op.NewName {
		return meta, false, nil
	}
	for id, other := range meta.LVs {
		if id != op.ID && other.Name == op.NewName {
			return meta, false, Msgf("apply: lv_rename: name %q already in use", op.NewName)
		}
	}
	next := meta.Clone()
	lv = next.LVs[op.ID]
	lv.Name = op.NewName
	next.LVs[op.ID] = lv
	return next, true, nil
}

func applyLvAddTag(meta Metadata, op LvAddTag) (Metadata, bool, error) {
	lv, ok := meta.LVs[op.ID]
	if !ok {
		return meta, false, &UnknownLV{Ref: op.ID.String()}
	}
	if lv.HasTag(op.Tag) {
		return meta, false, nil
	}
	next := meta.Clone()
	lv = next.LVs[op.ID]
	lv.Tags = append(lv.Tags, op.Tag)
	next.LVs[op.ID] = lv
	return next, true, nil
}

func applyLvRemoveTag(meta Metadata, op LvRemoveTag) (Metadata, bool, error) {
	lv, ok := meta.LVs[op.ID]
	if !ok {
		return meta, false, &UnknownLV{Ref: op.ID.String()}
	}
	if !lv.HasTag(op.Tag) {
		return meta, false, nil
	}
	next := meta.Clone()
	lv = next.LVs[op.ID]
	var kept []types.Tag
	for _, t := range lv.Tags {
		if !t.Equal(op.Tag) {
			kept = append(kept, t)
		}
	}
	lv.Tags = kept
	next.LVs[op.ID] = lv
	return next, true, nil
}

func applyLvSetStatus(meta Metadata, op LvSetStatus) (Metadata, bool, error) {
	lv, ok := meta.LVs[op.ID]
	if !ok {
		return meta, false, &UnknownLV{Ref: op.ID.String()}
	}
	if statusEqual(lv.Status, op.Status) {
		return meta, false, nil
	}
	next := meta.Clone()
	lv = next.LVs[op.ID]
	lv.Status = append([]types.LvStatus(nil), op.Status...)
	next.LVs[op.ID] = lv
	return next, true, nil
}

func statusEqual(a, b []types.LvStatus) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// removeMatchingSegments removes, from list, every segment that is
// physically identical (same kind and physical mapping, regardless of
// logical StartExtent) to an entry in want. It reports false if any
// entry of want could not be matched.
func removeMatchingSegments(list, want segment.List) (segment.List, bool) {
	matched := make([]bool, len(want))
	var kept segment.List
	for _, s := range list {
		removedThis := false
		for i, w := range want {
			if !matched[i] && samePhysical(s, w) {
				matched[i] = true
				removedThis = true
				break
			}
		}
		if !removedThis {
			kept = append(kept, s)
		}
	}
	for _, m := range matched {
		if !m {
			return nil, false
		}
	}
	return kept, true
}

// includesAll reports whether every entry of want has a physically
// identical match somewhere in list.
func includesAll(list, want segment.List) bool {
	_, ok := removeMatchingSegments(list, want)
	return ok
}

func samePhysical(a, b segment.Segment) bool {
	if a.Kind != b.Kind || a.ExtentCount != b.ExtentCount {
		return false
	}
	switch a.Kind {
	case segment.KindLinear:
		return a.Linear == b.Linear
	case segment.KindStriped:
		if a.StripeSize != b.StripeSize || len(a.Stripes) != len(b.Stripes) {
			return false
		}
		for i := range a.Stripes {
			if a.Stripes[i] != b.Stripes[i] {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// renumber reassigns sequential, zero-based StartExtent values to list
// in its existing order, so segments lifted out of one LV can be
// appended to another's segment.List with segment.Append.
func renumber(list segment.List) segment.List {
	out := make(segment.List, len(list))
	var le uint64
	for i, s := range list {
		s.StartExtent = le
		out[i] = s
		le += s.ExtentCount
	}
	return out
}

func checkInvariants(m Metadata) error {
	pvSet := make(map[types.PvName]bool, len(m.PVs))
	for _, pv := range m.PVs {
		pvSet[pv.Name] = true
	}
	for _, lv := range m.LVs {
		for _, seg := range lv.Segments {
			switch seg.Kind {
			case segment.KindLinear:
				if !pvSet[seg.Linear.PvName] {
					return Msgf("invariant violation: lv %q references unknown pv %q", lv.Name, seg.Linear.PvName)
				}
			case segment.KindStriped:
				for _, st := range seg.Stripes {
					if !pvSet[st.PvName] {
						return Msgf("invariant violation: lv %q references unknown pv %q", lv.Name, st.PvName)
					}
				}
			}
		}
	}
	return nil
}
