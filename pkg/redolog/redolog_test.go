package redolog

import (
	"context"
	"testing"
	"time"

	"github.com/simonjbeaumont/mirage-block-volume/pkg/block"
	"github.com/simonjbeaumont/mirage-block-volume/pkg/types"
	"github.com/simonjbeaumont/mirage-block-volume/pkg/vg"
)

func newFormattedDevice(t *testing.T) *block.Memory {
	t.Helper()
	dev := block.NewMemory(SizeBytes)
	if err := Format(dev); err != nil {
		t.Fatalf("Format: %v", err)
	}
	return dev
}

func recordingPerform(t *testing.T) (PerformFunc, func() []vg.Op) {
	t.Helper()
	var seen []vg.Op
	return func(ops []vg.Op) error {
		seen = append(seen, ops...)
		return nil
	}, func() []vg.Op { return seen }
}

func mustUuid(t *testing.T) types.Uuid {
	t.Helper()
	id, err := types.Create()
	if err != nil {
		t.Fatalf("types.Create: %v", err)
	}
	return id
}

func TestOpenOnFreshlyFormattedDeviceReplaysNothing(t *testing.T) {
	dev := newFormattedDevice(t)
	perform, seen := recordingPerform(t)

	l, err := Open(dev, perform, time.Hour)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer l.Close()

	if len(seen()) != 0 {
		t.Fatalf("expected no replayed ops, got %d", len(seen()))
	}
}

func TestPushThenFlushCallsPerformAndResolvesWaiter(t *testing.T) {
	dev := newFormattedDevice(t)
	perform, seen := recordingPerform(t)

	l, err := Open(dev, perform, time.Hour)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer l.Close()

	op := vg.LvRemove{ID: mustUuid(t)}
	w, err := l.Push(op)
	if err != nil {
		t.Fatalf("Push: %v", err)
	}

	if len(seen()) != 0 {
		t.Fatalf("perform should not run before Flush")
	}

	if err := l.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := w.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	if len(seen()) != 1 {
		t.Fatalf("expected 1 performed op, got %d", len(seen()))
	}
	if got, ok := seen()[0].(vg.LvRemove); !ok || !got.ID.Equal(op.ID) {
		t.Fatalf("performed op mismatch: got %#v", seen()[0])
	}
}

func TestMultiplePushesFlushInOrder(t *testing.T) {
	dev := newFormattedDevice(t)
	perform, seen := recordingPerform(t)

	l, err := Open(dev, perform, time.Hour)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer l.Close()

	ids := []types.Uuid{mustUuid(t), mustUuid(t), mustUuid(t)}
	for _, id := range ids {
		if _, err := l.Push(vg.LvRemove{ID: id}); err != nil {
			t.Fatalf("Push: %v", err)
		}
	}
	if err := l.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	got := seen()
	if len(got) != len(ids) {
		t.Fatalf("expected %d ops, got %d", len(ids), len(got))
	}
	for i, id := range ids {
		r, ok := got[i].(vg.LvRemove)
		if !ok || !r.ID.Equal(id) {
			t.Fatalf("op %d mismatch: got %#v want id %v", i, got[i], id)
		}
	}
}

// TestReplayRecoversUnflushedRecordsAfterCrash simulates a crash: one
// Log pushes records but is never flushed before the process "dies"
// (we simply stop using it without calling Close/Flush). A second Log
// opened over the same bytes must replay those committed-but-unflushed
// records exactly once.
func TestReplayRecoversUnflushedRecordsAfterCrash(t *testing.T) {
	dev := block.NewMemory(SizeBytes)
	if err := Format(dev); err != nil {
		t.Fatalf("Format: %v", err)
	}

	noopPerform := func(ops []vg.Op) error { return nil }
	first, err := Open(dev, noopPerform, time.Hour)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	id := mustUuid(t)
	if _, err := first.Push(vg.LvRemove{ID: id}); err != nil {
		t.Fatalf("Push: %v", err)
	}
	// No Flush, no Close: simulate a crash where the producer offset
	// and record are already durable (Push synced them) but the
	// consumer offset never advanced.

	perform, seen := recordingPerform(t)
	second, err := Open(dev, perform, time.Hour)
	if err != nil {
		t.Fatalf("Open (recovery): %v", err)
	}
	defer second.Close()

	got := seen()
	if len(got) != 1 {
		t.Fatalf("expected replay to recover 1 op, got %d", len(got))
	}
	r, ok := got[0].(vg.LvRemove)
	if !ok || !r.ID.Equal(id) {
		t.Fatalf("replayed op mismatch: got %#v", got[0])
	}

	// Now that it's been replayed, a third Open should see nothing new:
	// replay must have advanced the consumer offset durably.
	perform2, seen2 := recordingPerform(t)
	third, err := Open(dev, perform2, time.Hour)
	if err != nil {
		t.Fatalf("Open (second recovery): %v", err)
	}
	defer third.Close()
	if len(seen2()) != 0 {
		t.Fatalf("expected no further replay, got %d ops", len(seen2()))
	}
}

func TestFlushIsNoOpWithNothingPending(t *testing.T) {
	dev := newFormattedDevice(t)
	perform, seen := recordingPerform(t)

	l, err := Open(dev, perform, time.Hour)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer l.Close()

	if err := l.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if len(seen()) != 0 {
		t.Fatalf("expected no ops performed, got %d", len(seen()))
	}
}

func TestPushWrapsAroundTheRing(t *testing.T) {
	// A small ring forces many pushes to wrap the record area well
	// before exhausting it, exercising writeCircular/readCircular's
	// split-write path.
	dev := block.NewMemory(4096)
	if err := Format(dev); err != nil {
		t.Fatalf("Format: %v", err)
	}
	perform, seen := recordingPerform(t)
	l, err := Open(dev, perform, time.Hour)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer l.Close()

	var ids []types.Uuid
	for i := 0; i < 40; i++ {
		id := mustUuid(t)
		ids = append(ids, id)
		if _, err := l.Push(vg.LvRemove{ID: id}); err != nil {
			t.Fatalf("Push %d: %v", i, err)
		}
		if err := l.Flush(); err != nil {
			t.Fatalf("Flush %d: %v", i, err)
		}
	}

	got := seen()
	if len(got) != len(ids) {
		t.Fatalf("expected %d performed ops, got %d", len(ids), len(got))
	}
	for i, id := range ids {
		r, ok := got[i].(vg.LvRemove)
		if !ok || !r.ID.Equal(id) {
			t.Fatalf("op %d mismatch: got %#v want id %v", i, got[i], id)
		}
	}
}

func TestPerformErrorIsReturnedAndWaiterSeesIt(t *testing.T) {
	dev := newFormattedDevice(t)
	failing := func(ops []vg.Op) error { return vg.Msgf("boom") }

	l, err := Open(dev, failing, time.Hour)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer l.Close()

	w, err := l.Push(vg.LvRemove{ID: mustUuid(t)})
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	if err := l.Flush(); err == nil {
		t.Fatalf("expected Flush to surface the perform error")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := w.Wait(ctx); err == nil {
		t.Fatalf("expected Waiter to see the perform error")
	}
}
