package session

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/simonjbeaumont/mirage-block-volume/pkg/allocator"
	"github.com/simonjbeaumont/mirage-block-volume/pkg/block"
	"github.com/simonjbeaumont/mirage-block-volume/pkg/label"
	"github.com/simonjbeaumont/mirage-block-volume/pkg/logging"
	"github.com/simonjbeaumont/mirage-block-volume/pkg/metrics"
	"github.com/simonjbeaumont/mirage-block-volume/pkg/redolog"
	"github.com/simonjbeaumont/mirage-block-volume/pkg/segment"
	"github.com/simonjbeaumont/mirage-block-volume/pkg/types"
	"github.com/simonjbeaumont/mirage-block-volume/pkg/vg"
	"github.com/simonjbeaumont/mirage-block-volume/pkg/volume"
)

// Mode controls whether a connected Session accepts Update calls.
type Mode int

const (
	RW Mode = iota
	RO
)

// DefaultFlushInterval mirrors redolog.DefaultFlushInterval; Connect
// falls back to it when Config.FlushInterval is zero.
const DefaultFlushInterval = redolog.DefaultFlushInterval

// Config carries the capabilities and knobs Format/Connect need: a
// plain struct the caller builds directly, since there's no
// config-file loader in scope.
type Config struct {
	Mode          Mode
	FlushInterval time.Duration
	Logger        logging.Logger
	Clock         Clock
}

func (c Config) withDefaults() Config {
	if c.FlushInterval <= 0 {
		c.FlushInterval = DefaultFlushInterval
	}
	if c.Logger == nil {
		c.Logger = logging.Nop{}
	}
	if c.Clock == nil {
		c.Clock = SystemClock{}
	}
	return c
}

// pvArea is the per-PV bookkeeping Session needs to keep writing
// metadata text after Connect: where its metadata area starts on disk
// and the most recently committed MdaHeader (so the next write knows
// the current circular-buffer offset).
type pvArea struct {
	mdaAreaStart uint64
	mdaHeader    label.MdaHeader
}

// Session is one open volume group: a consistent view of its metadata,
// the devices backing its PVs, and (in Journalled+RW mode) the redo
// log batching writes to those devices.
type Session struct {
	cfg Config

	mu           sync.Mutex
	devices      map[types.PvName]block.Device
	areas        map[types.PvName]pvArea
	diskMetadata vg.Metadata // mutated only by Update (no journal) or the redo log's perform callback

	metadata atomic.Pointer[vg.Metadata] // live snapshot, lock-free reads

	redoLog    *redolog.Log
	redoVolume *volume.Volume

	events *Bus
}

// Snapshot returns the session's current metadata. It never blocks and
// never observes a partially-applied Update.
func (s *Session) Snapshot() vg.Metadata {
	return *s.metadata.Load()
}

// VgName implements metrics.Source.
func (s *Session) VgName() string {
	return s.Snapshot().Name
}

// Seqno implements metrics.Source.
func (s *Session) Seqno() uint32 {
	return s.Snapshot().Seqno
}

// PendingFlushCount implements metrics.Source: the number of pushed
// ops the redo log hasn't handed to perform yet, or 0 outside
// Journalled mode.
func (s *Session) PendingFlushCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.redoLog == nil {
		return 0
	}
	return s.redoLog.PendingCount()
}

// FreeExtentsByPV implements metrics.Source.
func (s *Session) FreeExtentsByPV() map[string]uint64 {
	meta := s.Snapshot()
	out := make(map[string]uint64, len(meta.PVs))
	for _, e := range meta.FreeSpace {
		out[string(e.PV)] += e.Interval.Count
	}
	return out
}

// EventBus returns the session's event publisher, so callers can
// Subscribe to be notified after each successful Update.
func (s *Session) EventBus() *Bus {
	return s.events
}

// Update applies ops to the session's metadata, either writing the
// result straight to every PV's metadata area or pushing it onto the
// redo log. It is rejected outright in RO mode.
func (s *Session) Update(ops []vg.Op) error {
	if s.cfg.Mode == RO {
		return vg.Msgf("session: update rejected: session is read-only")
	}

	correlationID := newEventID()
	log := s.cfg.Logger.With("correlation_id", correlationID)

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.Snapshot()
	vgName := next.Name
	for _, op := range ops {
		var err error
		next, err = vg.Apply(next, op)
		if err != nil {
			log.Warn("update rejected", "err", vg.PPError(err))
			metrics.UpdatesTotal.WithLabelValues(vgName, "rejected").Inc()
			return err
		}
	}

	if s.redoLog == nil {
		updated, err := s.commitToAllPVs(next)
		if err != nil {
			log.Error("metadata write failed", "err", vg.PPError(err))
			metrics.UpdatesTotal.WithLabelValues(vgName, "error").Inc()
			return err
		}
		s.diskMetadata = updated
	} else {
		for _, op := range ops {
			if _, err := s.redoLog.Push(op); err != nil {
				log.Error("redo log push failed", "err", err)
				metrics.UpdatesTotal.WithLabelValues(vgName, "error").Inc()
				return err
			}
		}
	}

	s.metadata.Store(&next)
	metrics.UpdatesTotal.WithLabelValues(vgName, "ok").Inc()
	log.Info("update applied", "seqno", next.Seqno)
	for _, op := range ops {
		if evType, lvID, ok := eventForOp(op); ok {
			s.events.publish(&Event{ID: correlationID, Type: evType, LvID: lvID, Seqno: next.Seqno})
		}
	}
	return nil
}

// Sync forces the redo log's flusher to run now instead of waiting for
// its next tick. Because Update pushes a record before returning, and
// the mutex serializes every Update against every other one, a Flush
// that starts after this call has been made necessarily drains
// everything pushed by every Update that already returned. It is a
// no-op outside Journalled mode, where every Update already wrote
// through synchronously.
func (s *Session) Sync() error {
	s.mu.Lock()
	redoLog := s.redoLog
	vgName := s.diskMetadata.Name
	s.mu.Unlock()
	if redoLog == nil {
		return nil
	}
	return metrics.ObserveFlush(vgName, redoLog.Flush)
}

// Close stops the session's redo-log flusher (flushing anything still
// pending) and disconnects the redo-log volume. It does not close the
// underlying PV devices; the caller opened them and owns their
// lifetime.
func (s *Session) Close() error {
	s.events.stop()
	if s.redoLog == nil {
		return nil
	}
	if err := s.redoLog.Close(); err != nil {
		return err
	}
	if s.redoVolume != nil {
		return s.redoVolume.Disconnect()
	}
	return nil
}

// commitToAllPVs writes meta's emitted text to every PV's metadata
// area and returns meta unchanged (the disk state now matches it).
func (s *Session) commitToAllPVs(meta vg.Metadata) (vg.Metadata, error) {
	text := vg.EmitText(meta)
	for _, name := range pvNamesSorted(s.devices) {
		area := s.areas[name]
		updated, err := label.CommitMetadataText(s.devices[name], area.mdaAreaStart, area.mdaHeader, text)
		if err != nil {
			return vg.Metadata{}, vg.Msgf("session: committing metadata to pv %q: %v", name, err)
		}
		s.areas[name] = pvArea{mdaAreaStart: area.mdaAreaStart, mdaHeader: updated}
	}
	return meta, nil
}

func pvNamesSorted(devices map[types.PvName]block.Device) []types.PvName {
	out := make([]types.PvName, 0, len(devices))
	for name := range devices {
		out = append(out, name)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// rebuildFreeSpace recomputes free_space as every PV's full extent
// range minus every LV's allocation.
func rebuildFreeSpace(meta vg.Metadata) (types.Allocation, error) {
	var full types.Allocation
	for _, pv := range meta.PVs {
		full = allocator.Merge(full, allocator.Create(pv.Name, pv.PeCount))
	}
	var used types.Allocation
	for _, lv := range meta.LVs {
		used = allocator.Merge(used, segment.ToAllocation(lv.Segments))
	}
	return allocator.Sub(full, used)
}
