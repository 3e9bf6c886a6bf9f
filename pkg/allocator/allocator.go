package allocator

import (
	"fmt"
	"sort"

	"github.com/simonjbeaumont/mirage-block-volume/pkg/types"
)

// OnlyThisMuchFree is returned by Find when the free pool cannot satisfy
// the requested extent count.
type OnlyThisMuchFree struct {
	Needed    uint64
	Available uint64
}

func (e *OnlyThisMuchFree) Error() string {
	return fmt.Sprintf("only %d extents free, needed %d", e.Available, e.Needed)
}

// Create builds a single-PV Allocation covering the whole device,
// [0, peCount).
func Create(name types.PvName, peCount uint64) types.Allocation {
	if peCount == 0 {
		return types.Allocation{}
	}
	return types.Allocation{{PV: name, Interval: types.ExtentInterval{Start: 0, Count: peCount}}}
}

// Canonicalize groups a's entries by PV, sorts each PV's intervals by
// start, and merges adjacent or overlapping intervals. PVs appear in the
// output in the order they were first seen in a.
func Canonicalize(a types.Allocation) types.Allocation {
	order := make([]types.PvName, 0)
	byPV := make(map[types.PvName][]types.ExtentInterval)
	for _, e := range a {
		if e.Interval.Count == 0 {
			continue
		}
		if _, ok := byPV[e.PV]; !ok {
			order = append(order, e.PV)
		}
		byPV[e.PV] = append(byPV[e.PV], e.Interval)
	}

	out := make(types.Allocation, 0, len(a))
	for _, pv := range order {
		out = append(out, pvExtentsOf(pv, mergeIntervals(byPV[pv]))...)
	}
	return out
}

func pvExtentsOf(pv types.PvName, intervals []types.ExtentInterval) types.Allocation {
	out := make(types.Allocation, len(intervals))
	for i, iv := range intervals {
		out[i] = types.PvExtent{PV: pv, Interval: iv}
	}
	return out
}

// mergeIntervals sorts and coalesces a single PV's intervals.
func mergeIntervals(intervals []types.ExtentInterval) []types.ExtentInterval {
	sorted := append([]types.ExtentInterval(nil), intervals...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	out := make([]types.ExtentInterval, 0, len(sorted))
	for _, iv := range sorted {
		if len(out) == 0 {
			out = append(out, iv)
			continue
		}
		last := &out[len(out)-1]
		if iv.Start <= last.End() {
			if iv.End() > last.End() {
				last.Count = iv.End() - last.Start
			}
			continue
		}
		out = append(out, iv)
	}
	return out
}

// Merge returns the canonical union of a and b.
func Merge(a, b types.Allocation) types.Allocation {
	combined := make(types.Allocation, 0, len(a)+len(b))
	combined = append(combined, a...)
	combined = append(combined, b...)
	return Canonicalize(combined)
}

// Sub returns a \ b, canonical. It is a programmer error for b to
// contain any extent not present in a; Sub fails fast with a
// descriptive error rather than silently producing a corrupt result.
func Sub(a, b types.Allocation) (types.Allocation, error) {
	ac := Canonicalize(a)
	bc := Canonicalize(b)

	aByPV := groupIntervals(ac)
	bByPV := groupIntervals(bc)

	order := pvOrder(ac)
	out := make(types.Allocation, 0, len(ac))
	for _, pv := range order {
		remaining, err := subtractOnePV(pv, aByPV[pv], bByPV[pv])
		if err != nil {
			return nil, err
		}
		out = append(out, pvExtentsOf(pv, remaining)...)
	}

	for pv := range bByPV {
		if _, ok := aByPV[pv]; !ok {
			return nil, fmt.Errorf("allocator: sub: %q not present in minuend", pv)
		}
	}

	return out, nil
}

func subtractOnePV(pv types.PvName, from []types.ExtentInterval, remove []types.ExtentInterval) ([]types.ExtentInterval, error) {
	out := append([]types.ExtentInterval(nil), from...)
	for _, r := range remove {
		var next []types.ExtentInterval
		consumed := false
		for _, iv := range out {
			if !iv.Overlaps(r) {
				next = append(next, iv)
				continue
			}
			if r.Start < iv.Start || r.End() > iv.End() {
				return nil, fmt.Errorf("allocator: sub: interval %+v on %q is not a subset of free space", r, pv)
			}
			consumed = true
			if iv.Start < r.Start {
				next = append(next, types.ExtentInterval{Start: iv.Start, Count: r.Start - iv.Start})
			}
			if r.End() < iv.End() {
				next = append(next, types.ExtentInterval{Start: r.End(), Count: iv.End() - r.End()})
			}
		}
		if !consumed {
			return nil, fmt.Errorf("allocator: sub: interval %+v on %q is not a subset of free space", r, pv)
		}
		out = next
	}
	return out, nil
}

func groupIntervals(a types.Allocation) map[types.PvName][]types.ExtentInterval {
	m := make(map[types.PvName][]types.ExtentInterval)
	for _, e := range a {
		m[e.PV] = append(m[e.PV], e.Interval)
	}
	return m
}

func pvOrder(a types.Allocation) []types.PvName {
	seen := make(map[types.PvName]bool)
	var order []types.PvName
	for _, e := range a {
		if !seen[e.PV] {
			seen[e.PV] = true
			order = append(order, e.PV)
		}
	}
	return order
}

// Find scans pvOrder in order, and within each PV scans its free
// intervals in ascending start order, accumulating extents until n is
// reached. It does not mutate free. If the total free extent count
// across pvOrder is less than n, it returns *OnlyThisMuchFree.
func Find(free types.Allocation, pvOrder []types.PvName, n uint64) (types.Allocation, error) {
	byPV := groupIntervals(Canonicalize(free))
	for pv := range byPV {
		sort.Slice(byPV[pv], func(i, j int) bool { return byPV[pv][i].Start < byPV[pv][j].Start })
	}

	var out types.Allocation
	var got uint64
	for _, pv := range pvOrder {
		for _, iv := range byPV[pv] {
			if got == n {
				break
			}
			take := iv.Count
			if remaining := n - got; take > remaining {
				take = remaining
			}
			out = append(out, types.PvExtent{PV: pv, Interval: types.ExtentInterval{Start: iv.Start, Count: take}})
			got += take
		}
	}

	if got < n {
		var available uint64
		for _, e := range Canonicalize(free) {
			available += e.Interval.Count
		}
		return nil, &OnlyThisMuchFree{Needed: n, Available: available}
	}
	return out, nil
}
