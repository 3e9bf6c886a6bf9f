package segment

import (
	"testing"

	"github.com/simonjbeaumont/mirage-block-volume/pkg/types"
)

func pv(name string) types.PvName {
	n, err := types.NewPvName(name)
	if err != nil {
		panic(err)
	}
	return n
}

func linearList() List {
	return List{
		{StartExtent: 0, ExtentCount: 10, Kind: KindLinear, Linear: LinearSegment{PvName: pv("pv0"), PvStartExtent: 0}},
		{StartExtent: 10, ExtentCount: 5, Kind: KindLinear, Linear: LinearSegment{PvName: pv("pv1"), PvStartExtent: 100}},
	}
}

func TestListValidate(t *testing.T) {
	if err := linearList().Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	bad := List{{StartExtent: 0, ExtentCount: 10}, {StartExtent: 20, ExtentCount: 5}}
	if err := bad.Validate(); err == nil {
		t.Fatal("Validate() with gap succeeded, want error")
	}
}

func TestFindExtent(t *testing.T) {
	l := linearList()

	tests := []struct {
		le      uint64
		wantPv  types.PvName
		wantOk  bool
	}{
		{le: 0, wantPv: pv("pv0"), wantOk: true},
		{le: 9, wantPv: pv("pv0"), wantOk: true},
		{le: 10, wantPv: pv("pv1"), wantOk: true},
		{le: 14, wantPv: pv("pv1"), wantOk: true},
		{le: 15, wantOk: false},
		{le: 1000, wantOk: false},
	}
	for _, tt := range tests {
		seg, ok := FindExtent(l, tt.le)
		if ok != tt.wantOk {
			t.Errorf("FindExtent(%d) ok = %v, want %v", tt.le, ok, tt.wantOk)
			continue
		}
		if ok && seg.Linear.PvName != tt.wantPv {
			t.Errorf("FindExtent(%d) pv = %v, want %v", tt.le, seg.Linear.PvName, tt.wantPv)
		}
	}
}

func TestToAllocationLinear(t *testing.T) {
	alloc := ToAllocation(linearList())
	if len(alloc) != 2 {
		t.Fatalf("ToAllocation() returned %d entries, want 2", len(alloc))
	}
	if alloc[0].PV != pv("pv0") || alloc[0].Interval.Count != 10 {
		t.Errorf("entry 0 = %+v, want pv0/10", alloc[0])
	}
	if alloc[1].PV != pv("pv1") || alloc[1].Interval.Start != 100 || alloc[1].Interval.Count != 5 {
		t.Errorf("entry 1 = %+v, want pv1/100/5", alloc[1])
	}
}

func TestToAllocationStriped(t *testing.T) {
	l := List{{
		StartExtent: 0,
		ExtentCount: 10,
		Kind:        KindStriped,
		StripeSize:  64,
		Stripes: []Stripe{
			{PvName: pv("pv0"), PvStartExtent: 0},
			{PvName: pv("pv1"), PvStartExtent: 50},
		},
	}}
	alloc := ToAllocation(l)
	if len(alloc) != 2 {
		t.Fatalf("ToAllocation() returned %d entries, want 2", len(alloc))
	}
	for _, e := range alloc {
		if e.Interval.Count != 5 {
			t.Errorf("stripe %v count = %d, want 5", e.PV, e.Interval.Count)
		}
	}
}

func TestReduceSizeTo(t *testing.T) {
	l := linearList()

	reduced, err := ReduceSizeTo(l, 8)
	if err != nil {
		t.Fatalf("ReduceSizeTo() error = %v", err)
	}
	if len(reduced) != 1 {
		t.Fatalf("ReduceSizeTo(8) returned %d segments, want 1", len(reduced))
	}
	if reduced[0].ExtentCount != 8 {
		t.Errorf("ReduceSizeTo(8) segment count = %d, want 8", reduced[0].ExtentCount)
	}
	if err := reduced.Validate(); err != nil {
		t.Errorf("Validate() after reduce error = %v", err)
	}
}

func TestReduceSizeToExactBoundary(t *testing.T) {
	l := linearList()
	reduced, err := ReduceSizeTo(l, 10)
	if err != nil {
		t.Fatalf("ReduceSizeTo() error = %v", err)
	}
	if len(reduced) != 1 || reduced[0].ExtentCount != 10 {
		t.Errorf("ReduceSizeTo(10) = %+v, want one 10-extent segment", reduced)
	}
}

func TestReduceSizeToRejectsGrowth(t *testing.T) {
	l := linearList()
	if _, err := ReduceSizeTo(l, 100); err == nil {
		t.Fatal("ReduceSizeTo(100) succeeded, want error")
	}
}

func TestLinearBuildsSegmentsFromAllocation(t *testing.T) {
	alloc := types.Allocation{
		{PV: pv("pv0"), Interval: types.ExtentInterval{Start: 0, Count: 4}},
		{PV: pv("pv1"), Interval: types.ExtentInterval{Start: 20, Count: 6}},
	}
	l := Linear(0, alloc)
	if err := l.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if l.TotalExtents() != 10 {
		t.Errorf("TotalExtents() = %d, want 10", l.TotalExtents())
	}
	if l[1].StartExtent != 4 {
		t.Errorf("second segment starts at %d, want 4", l[1].StartExtent)
	}
}

func TestAppendRenumbersExtraSegments(t *testing.T) {
	base := Linear(0, types.Allocation{{PV: pv("pv0"), Interval: types.ExtentInterval{Start: 0, Count: 4}}})
	extra := Linear(0, types.Allocation{{PV: pv("pv1"), Interval: types.ExtentInterval{Start: 0, Count: 3}}})

	out := Append(base, extra)
	if err := out.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if out.TotalExtents() != 7 {
		t.Errorf("TotalExtents() = %d, want 7", out.TotalExtents())
	}
	if out[1].StartExtent != 4 {
		t.Errorf("appended segment starts at %d, want 4", out[1].StartExtent)
	}
}
