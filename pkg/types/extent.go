package types

import "fmt"

// ExtentInterval is a half-open run of physical extents [Start, Start+Count).
type ExtentInterval struct {
	Start uint64
	Count uint64
}

// End returns the exclusive end of the interval.
func (e ExtentInterval) End() uint64 {
	return e.Start + e.Count
}

// Overlaps reports whether e and other share any extent.
func (e ExtentInterval) Overlaps(other ExtentInterval) bool {
	return e.Start < other.End() && other.Start < e.End()
}

// Adjacent reports whether e and other abut with no gap between them,
// in either order.
func (e ExtentInterval) Adjacent(other ExtentInterval) bool {
	return e.End() == other.Start || other.End() == e.Start
}

// PvExtent is one (PvName, ExtentInterval) entry of an Allocation.
type PvExtent struct {
	PV       PvName
	Interval ExtentInterval
}

// Allocation is an ordered sequence of (PvName, ExtentInterval) entries.
// A well-formed Allocation never has two entries on the same PV with
// overlapping intervals, and never carries a zero-count interval.
type Allocation []PvExtent

// TotalExtents sums the extent count across every entry.
func (a Allocation) TotalExtents() uint64 {
	var total uint64
	for _, e := range a {
		total += e.Interval.Count
	}
	return total
}

// Validate checks the Allocation invariants from spec §3: non-empty
// intervals, and no two same-PV entries overlapping.
func (a Allocation) Validate() error {
	for i, e := range a {
		if e.Interval.Count == 0 {
			return fmt.Errorf("allocation: entry %d on %q has zero count", i, e.PV)
		}
		for j := i + 1; j < len(a); j++ {
			if a[j].PV == e.PV && e.Interval.Overlaps(a[j].Interval) {
				return fmt.Errorf("allocation: entries %d and %d on %q overlap", i, j, e.PV)
			}
		}
	}
	return nil
}

// Clone returns an independent copy of a.
func (a Allocation) Clone() Allocation {
	out := make(Allocation, len(a))
	copy(out, a)
	return out
}
