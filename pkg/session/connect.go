package session

import (
	"github.com/simonjbeaumont/mirage-block-volume/pkg/block"
	"github.com/simonjbeaumont/mirage-block-volume/pkg/label"
	"github.com/simonjbeaumont/mirage-block-volume/pkg/redolog"
	"github.com/simonjbeaumont/mirage-block-volume/pkg/types"
	"github.com/simonjbeaumont/mirage-block-volume/pkg/vg"
	"github.com/simonjbeaumont/mirage-block-volume/pkg/volume"
)

// Connect opens an existing volume group: it reads each device's
// label and metadata area, parses the newest metadata text (by
// embedded seqno, in case a prior crash left PVs at different
// seqnos), rebuilds free_space, and — if any PV advertises
// types.MagicJournalled and cfg.Mode is RW — opens the redo-log LV and
// starts its flusher.
func Connect(cfg Config, devices map[types.PvName]block.Device) (*Session, error) {
	cfg = cfg.withDefaults()
	if len(devices) == 0 {
		return nil, vg.Msgf("session: connect: no devices given")
	}

	names := pvNamesSorted(devices)
	areas := make(map[types.PvName]pvArea, len(names))
	var bestText string
	var bestSeqno uint32
	haveBest := false
	journalled := false

	for _, name := range names {
		dev := devices[name]
		lbl, err := label.ReadLabel(dev)
		if err != nil {
			return nil, vg.Msgf("session: connect: reading label on pv %q: %v", name, err)
		}
		if len(lbl.Header.MetadataAreas) == 0 {
			return nil, vg.Msgf("session: connect: pv %q has no metadata area", name)
		}
		areaStart := lbl.Header.MetadataAreas[0].Offset
		mdaHeader, err := label.ReadMdaHeader(dev, areaStart)
		if err != nil {
			return nil, vg.Msgf("session: connect: reading mda header on pv %q: %v", name, err)
		}
		areas[name] = pvArea{mdaAreaStart: areaStart, mdaHeader: mdaHeader}
		if mdaHeader.Magic == types.MagicJournalled {
			journalled = true
		}

		text, err := label.ReadMetadataText(dev, mdaHeader)
		if err != nil {
			return nil, vg.Msgf("session: connect: reading metadata text on pv %q: %v", name, err)
		}
		parsed, err := vg.ParseText(text)
		if err != nil {
			return nil, vg.Msgf("session: connect: parsing metadata on pv %q: %v", name, err)
		}
		if !haveBest || parsed.Seqno > bestSeqno {
			bestText, bestSeqno, haveBest = text, parsed.Seqno, true
		}
	}

	meta, err := vg.ParseText(bestText)
	if err != nil {
		return nil, vg.Msgf("session: connect: parsing newest metadata: %v", err)
	}

	freeSpace, err := rebuildFreeSpace(meta)
	if err != nil {
		return nil, vg.Msgf("session: connect: rebuilding free space: %v", err)
	}
	meta.FreeSpace = freeSpace

	s := &Session{
		cfg:          cfg,
		devices:      devices,
		areas:        areas,
		diskMetadata: meta,
		events:       NewBus(),
	}
	s.metadata.Store(&meta)

	if journalled && cfg.Mode == RW {
		redoLv, ok := meta.LVByName(redolog.LvName)
		if !ok {
			return nil, vg.Msgf("session: connect: pv advertises journalled magic but vg has no %q lv", redolog.LvName)
		}
		vol, err := volume.Connect(meta, devices, redoLv.ID)
		if err != nil {
			s.events.stop()
			return nil, vg.Msgf("session: connect: connecting redo-log volume: %v", err)
		}
		log, err := redolog.Open(vol, s.perform, cfg.FlushInterval)
		if err != nil {
			vol.Close()
			s.events.stop()
			return nil, vg.Msgf("session: connect: opening redo log: %v", err)
		}
		s.redoVolume = vol
		s.redoLog = log

		// replay (run synchronously inside redolog.Open, above) may have
		// advanced diskMetadata past what was parsed from the PVs; the
		// live snapshot must reflect that before Connect returns, since
		// there is no prior Update result it would otherwise be
		// clobbering.
		s.mu.Lock()
		caughtUp := s.diskMetadata
		s.mu.Unlock()
		s.metadata.Store(&caughtUp)
	}

	return s, nil
}

// perform is the redo log's PerformFunc: it re-applies ops to the
// session's on-disk metadata baseline, writes the result to every PV,
// and leaves the live metadata pointer alone — Update already advanced
// it when it pushed these ops, and perform must never move that
// pointer backward relative to whatever Update calls have returned
// since.
func (s *Session) perform(ops []vg.Op) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.diskMetadata
	for _, op := range ops {
		var err error
		next, err = vg.Apply(next, op)
		if err != nil {
			return err
		}
	}
	updated, err := s.commitToAllPVs(next)
	if err != nil {
		return err
	}
	s.diskMetadata = updated
	return nil
}
