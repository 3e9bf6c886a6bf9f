package allocator

import (
	"errors"
	"testing"

	"github.com/simonjbeaumont/mirage-block-volume/pkg/types"
)

func TestCanonicalizeMergesAdjacent(t *testing.T) {
	a := types.Allocation{
		{PV: "pv0", Interval: types.ExtentInterval{Start: 4, Count: 4}},
		{PV: "pv0", Interval: types.ExtentInterval{Start: 0, Count: 4}},
	}
	got := Canonicalize(a)
	want := types.Allocation{{PV: "pv0", Interval: types.ExtentInterval{Start: 0, Count: 8}}}
	if !allocEqual(got, want) {
		t.Fatalf("Canonicalize() = %+v, want %+v", got, want)
	}
}

func TestCanonicalizeMergesOverlapping(t *testing.T) {
	a := types.Allocation{
		{PV: "pv0", Interval: types.ExtentInterval{Start: 0, Count: 6}},
		{PV: "pv0", Interval: types.ExtentInterval{Start: 4, Count: 6}},
	}
	got := Canonicalize(a)
	want := types.Allocation{{PV: "pv0", Interval: types.ExtentInterval{Start: 0, Count: 10}}}
	if !allocEqual(got, want) {
		t.Fatalf("Canonicalize() = %+v, want %+v", got, want)
	}
}

func TestSubRemovesCleanly(t *testing.T) {
	free := types.Allocation{{PV: "pv0", Interval: types.ExtentInterval{Start: 0, Count: 14}}}
	used := types.Allocation{{PV: "pv0", Interval: types.ExtentInterval{Start: 0, Count: 2}}}
	got, err := Sub(free, used)
	if err != nil {
		t.Fatalf("Sub() error = %v", err)
	}
	want := types.Allocation{{PV: "pv0", Interval: types.ExtentInterval{Start: 2, Count: 12}}}
	if !allocEqual(got, want) {
		t.Fatalf("Sub() = %+v, want %+v", got, want)
	}
}

func TestSubRejectsNonSubset(t *testing.T) {
	free := types.Allocation{{PV: "pv0", Interval: types.ExtentInterval{Start: 0, Count: 2}}}
	used := types.Allocation{{PV: "pv0", Interval: types.ExtentInterval{Start: 0, Count: 4}}}
	if _, err := Sub(free, used); err == nil {
		t.Fatal("Sub() succeeded on a non-subset, want error")
	}
}

func TestMergeThenSubIsIdentity(t *testing.T) {
	free := Canonicalize(types.Allocation{{PV: "pv0", Interval: types.ExtentInterval{Start: 0, Count: 14}}})
	taken := types.Allocation{{PV: "pv0", Interval: types.ExtentInterval{Start: 0, Count: 2}}}
	shrunk, err := Sub(free, taken)
	if err != nil {
		t.Fatalf("Sub() error = %v", err)
	}
	restored := Merge(shrunk, taken)
	if !allocEqual(restored, free) {
		t.Fatalf("Merge(Sub(free, taken), taken) = %+v, want %+v", restored, free)
	}
}

func TestFindFirstFitAcrossPVs(t *testing.T) {
	free := types.Allocation{
		{PV: "a", Interval: types.ExtentInterval{Start: 2, Count: 12}},
		{PV: "b", Interval: types.ExtentInterval{Start: 0, Count: 14}},
	}
	got, err := Find(free, []types.PvName{"a", "b"}, 16)
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	want := types.Allocation{
		{PV: "a", Interval: types.ExtentInterval{Start: 2, Count: 12}},
		{PV: "b", Interval: types.ExtentInterval{Start: 0, Count: 4}},
	}
	if !allocEqual(got, want) {
		t.Fatalf("Find() = %+v, want %+v", got, want)
	}
	// free is untouched.
	if free[0].Interval.Count != 12 {
		t.Fatal("Find() mutated its input")
	}
}

func TestFindInsufficientFree(t *testing.T) {
	free := types.Allocation{
		{PV: "a", Interval: types.ExtentInterval{Start: 0, Count: 16}},
		{PV: "b", Interval: types.ExtentInterval{Start: 0, Count: 16}},
	}
	_, err := Find(free, []types.PvName{"a", "b"}, 40)
	var notEnough *OnlyThisMuchFree
	if !errors.As(err, &notEnough) {
		t.Fatalf("Find() error = %v, want *OnlyThisMuchFree", err)
	}
	if notEnough.Needed != 40 || notEnough.Available != 32 {
		t.Fatalf("Find() error = %+v, want {40 32}", notEnough)
	}
}

func TestFindRespectsPvOrderTieBreak(t *testing.T) {
	free := types.Allocation{
		{PV: "a", Interval: types.ExtentInterval{Start: 0, Count: 4}},
		{PV: "b", Interval: types.ExtentInterval{Start: 0, Count: 4}},
	}
	got, err := Find(free, []types.PvName{"b", "a"}, 4)
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if len(got) != 1 || got[0].PV != "b" {
		t.Fatalf("Find() = %+v, want single entry on pv b", got)
	}
}

func allocEqual(a, b types.Allocation) bool {
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
