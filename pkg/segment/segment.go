package segment

import (
	"fmt"
	"sort"

	"github.com/simonjbeaumont/mirage-block-volume/pkg/types"
)

// Kind distinguishes a Segment's physical mapping.
type Kind int

const (
	// KindLinear maps the segment's logical extents onto one contiguous
	// run of physical extents on a single PV.
	KindLinear Kind = iota
	// KindStriped maps across multiple PVs in round-robin stripes. It is
	// parsed and re-emitted faithfully but never translated for I/O.
	KindStriped
)

func (k Kind) String() string {
	if k == KindStriped {
		return "striped"
	}
	return "linear"
}

// LinearSegment is a Segment's physical mapping when Kind == KindLinear.
type LinearSegment struct {
	PvName        types.PvName
	PvStartExtent uint64
}

// Stripe is one PV's contribution to a striped Segment.
type Stripe struct {
	PvName        types.PvName
	PvStartExtent uint64
}

// Segment is one entry of an LV's segment map: a run of logical extents
// [StartExtent, StartExtent+ExtentCount) and how it maps physically.
type Segment struct {
	StartExtent uint64
	ExtentCount uint64
	Kind        Kind

	// Linear is populated when Kind == KindLinear.
	Linear LinearSegment

	// StripeSize and Stripes are populated when Kind == KindStriped.
	StripeSize uint64
	Stripes    []Stripe
}

// End returns the exclusive logical end of the segment.
func (s Segment) End() uint64 { return s.StartExtent + s.ExtentCount }

// List is an LV's full segment map: sorted by StartExtent, gapless,
// starting at 0, as required by spec §4.2/§4.5's invariants.
type List []Segment

// Validate checks the sorted/gapless/starts-at-zero invariant.
func (l List) Validate() error {
	var next uint64
	for i, s := range l {
		if s.StartExtent != next {
			return fmt.Errorf("segment: entry %d starts at %d, want %d (gap or overlap)", i, s.StartExtent, next)
		}
		if s.ExtentCount == 0 {
			return fmt.Errorf("segment: entry %d has zero extent count", i)
		}
		next = s.End()
	}
	return nil
}

// TotalExtents returns the LV's total logical extent count.
func (l List) TotalExtents() uint64 {
	if len(l) == 0 {
		return 0
	}
	return l[len(l)-1].End()
}

// FindExtent performs a binary search over l for the segment whose
// half-open range contains logical extent le. It returns (Segment{},
// false) when le is at or past the LV's total extent count.
func FindExtent(l List, le uint64) (Segment, bool) {
	i := sort.Search(len(l), func(i int) bool { return l[i].End() > le })
	if i == len(l) || l[i].StartExtent > le {
		return Segment{}, false
	}
	return l[i], true
}

// ToAllocation returns the union of physical extents l's segments
// consume. Striped segments contribute each stripe's run, rounded up to
// a whole number of per-stripe extents the way the stripe count
// requires.
func ToAllocation(l List) types.Allocation {
	var out types.Allocation
	for _, s := range l {
		switch s.Kind {
		case KindLinear:
			out = append(out, types.PvExtent{
				PV: s.Linear.PvName,
				Interval: types.ExtentInterval{
					Start: s.Linear.PvStartExtent,
					Count: s.ExtentCount,
				},
			})
		case KindStriped:
			if len(s.Stripes) == 0 {
				continue
			}
			perStripe := (s.ExtentCount + uint64(len(s.Stripes)) - 1) / uint64(len(s.Stripes))
			for _, st := range s.Stripes {
				out = append(out, types.PvExtent{
					PV: st.PvName,
					Interval: types.ExtentInterval{
						Start: st.PvStartExtent,
						Count: perStripe,
					},
				})
			}
		}
	}
	return out
}

// ReduceSizeTo truncates l to newCount logical extents, shortening the
// last retained segment to close the gap. It fails with an error when
// newCount exceeds l's current total.
func ReduceSizeTo(l List, newCount uint64) (List, error) {
	total := l.TotalExtents()
	if newCount > total {
		return nil, fmt.Errorf("segment: cannot reduce to %d extents, LV only has %d", newCount, total)
	}
	if newCount == total {
		return l.clone(), nil
	}

	out := make(List, 0, len(l))
	for _, s := range l {
		if s.StartExtent >= newCount {
			break
		}
		if s.End() <= newCount {
			out = append(out, s)
			continue
		}
		s.ExtentCount = newCount - s.StartExtent
		if s.Kind == KindStriped {
			// Stripe widths aren't re-derived on reduce; the shortened
			// segment keeps its original stripe layout, matching how
			// emitted striped segments are read back unchanged.
			out = append(out, s)
			break
		}
		out = append(out, s)
		break
	}
	return out, nil
}

// Linear converts a free-space allocation into a sorted, gapless
// Linear-only segment list starting at logical extent startLE.
func Linear(startLE uint64, alloc types.Allocation) List {
	out := make(List, 0, len(alloc))
	le := startLE
	for _, pe := range alloc {
		out = append(out, Segment{
			StartExtent: le,
			ExtentCount: pe.Interval.Count,
			Kind:        KindLinear,
			Linear: LinearSegment{
				PvName:        pe.PV,
				PvStartExtent: pe.Interval.Start,
			},
		})
		le += pe.Interval.Count
	}
	return out
}

// Append returns a new List with extra's segments appended after l's
// existing ones, renumbering extra's logical extents to start where l
// leaves off. extra must itself be a valid, zero-based Linear segment
// list (as produced by Linear).
func Append(l List, extra List) List {
	out := l.clone()
	base := l.TotalExtents()
	for _, s := range extra {
		s.StartExtent += base
		out = append(out, s)
	}
	return out
}

func (l List) clone() List {
	out := make(List, len(l))
	copy(out, l)
	return out
}
