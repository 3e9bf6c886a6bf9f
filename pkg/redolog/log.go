package redolog

import (
	"hash/crc32"
	"sync"
	"time"

	"github.com/simonjbeaumont/mirage-block-volume/pkg/block"
	"github.com/simonjbeaumont/mirage-block-volume/pkg/vg"
)

// PerformFunc applies a batch of already-committed ops to whatever
// durable state the caller keeps outside the journal (pkg/session's
// metadata areas). It is called both during Replay, for ops a crash
// left committed but unflushed, and during Flush, for ops pushed since
// the last flush.
type PerformFunc func(ops []vg.Op) error

// DefaultFlushInterval is how often the background flusher in start
// fires when the caller doesn't override it.
const DefaultFlushInterval = 120 * time.Second

type pendingEntry struct {
	seqno  uint64
	op     vg.Op
	waiter *Waiter
}

// Log is the journal for one dedicated redo-log LV: a single producer
// (Push) and a single consumer (Flush, plus the one-shot Replay at
// Open) sharing a mutex, mirroring pkg/manager.Manager's
// store-plus-mutex shape but over a ring of records instead of a
// boltdb file.
type Log struct {
	mu      sync.Mutex
	dev     block.Device
	header  ringHeader
	perform PerformFunc
	pending []pendingEntry

	flushInterval time.Duration
	stopCh        chan struct{}
	stopped       sync.WaitGroup
}

// Open reads dev's ring header (which must already have been
// initialized by Format), replays any records left committed but
// unflushed by a prior crash, and starts the background flusher. The
// returned Log is immediately usable for Push.
func Open(dev block.Device, perform PerformFunc, flushInterval time.Duration) (*Log, error) {
	header, err := readRingHeader(dev)
	if err != nil {
		return nil, vg.Msgf("redolog: open: %v", err)
	}
	if flushInterval <= 0 {
		flushInterval = DefaultFlushInterval
	}
	l := &Log{
		dev:           dev,
		header:        header,
		perform:       perform,
		flushInterval: flushInterval,
	}
	if err := l.replay(); err != nil {
		return nil, vg.Msgf("redolog: open: replay: %v", err)
	}
	l.start()
	return l, nil
}

// Push journals op, returning a Waiter that resolves once op (and
// everything pushed before it) has been handed to perform by a Flush.
func (l *Log) Push(op vg.Op) (*Waiter, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	area := recordAreaSize(l.dev)
	seqno := l.header.NextSeqno
	rec := encodeRecord(seqno, op)
	data := rec.bytes()
	if uint64(len(data)) > area {
		return nil, vg.Msgf("redolog: push: record of %d bytes exceeds ring capacity %d", len(data), area)
	}

	if err := writeCircular(l.dev, area, l.header.ProducerOffset, data); err != nil {
		return nil, vg.Msgf("redolog: push: writing record: %v", err)
	}
	l.header.ProducerOffset = (l.header.ProducerOffset + uint64(len(data))) % area
	l.header.NextSeqno++
	if err := writeRingHeader(l.dev, l.header); err != nil {
		return nil, vg.Msgf("redolog: push: %v", err)
	}
	if err := l.dev.Sync(); err != nil {
		return nil, vg.Msgf("redolog: push: sync: %v", err)
	}

	w := newWaiter()
	l.pending = append(l.pending, pendingEntry{seqno: seqno, op: op, waiter: w})
	return w, nil
}

// Flush hands every record pushed since the last flush to perform, in
// order, then advances the consumer past them and resolves their
// waiters. It is a no-op if nothing is pending.
func (l *Log) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.flushLocked()
}

func (l *Log) flushLocked() error {
	if len(l.pending) == 0 {
		return nil
	}
	ops := make([]vg.Op, len(l.pending))
	for i, p := range l.pending {
		ops[i] = p.op
	}
	if err := l.perform(ops); err != nil {
		err = vg.Msgf("redolog: flush: perform: %v", err)
		for _, p := range l.pending {
			p.waiter.resolve(err)
		}
		l.pending = l.pending[:0]
		return err
	}

	l.header.ConsumerOffset = l.header.ProducerOffset
	if err := writeRingHeader(l.dev, l.header); err != nil {
		err = vg.Msgf("redolog: flush: %v", err)
		for _, p := range l.pending {
			p.waiter.resolve(err)
		}
		l.pending = l.pending[:0]
		return err
	}
	if err := l.dev.Sync(); err != nil {
		err = vg.Msgf("redolog: flush: sync: %v", err)
		for _, p := range l.pending {
			p.waiter.resolve(err)
		}
		l.pending = l.pending[:0]
		return err
	}

	for _, p := range l.pending {
		p.waiter.resolve(nil)
	}
	l.pending = l.pending[:0]
	return nil
}

// replay feeds every already-committed record between the consumer
// and producer offsets to perform, in one batch, and advances the
// consumer past the last record it could read cleanly. A record that
// fails its checksum, or whose claimed length runs past the producer
// offset, is a torn tail write from a crash mid-Push and is treated as
// the end of the committed log rather than an error.
func (l *Log) replay() error {
	area := recordAreaSize(l.dev)
	offset := l.header.ConsumerOffset
	var ops []vg.Op

	for offset != l.header.ProducerOffset {
		remaining := (l.header.ProducerOffset - offset + area) % area
		if remaining < recordHeaderSize {
			break
		}
		hdrBuf, err := readCircular(l.dev, area, offset, recordHeaderSize)
		if err != nil {
			return vg.Msgf("redolog: replay: reading record header: %v", err)
		}
		payloadLen, seqno, checksum, ok := decodeRecordHeader(hdrBuf)
		if !ok {
			break
		}
		total := uint64(recordHeaderSize) + uint64(payloadLen)
		if total > remaining {
			break
		}
		full, err := readCircular(l.dev, area, offset, total)
		if err != nil {
			return vg.Msgf("redolog: replay: reading record %d: %v", seqno, err)
		}
		payload := full[recordHeaderSize:]
		if crc32.ChecksumIEEE(payload) != checksum {
			break
		}
		op, err := (record{Seqno: seqno, Payload: payload}).op()
		if err != nil {
			return err
		}
		ops = append(ops, op)
		offset = (offset + total) % area
	}

	if len(ops) == 0 {
		return nil
	}
	if err := l.perform(ops); err != nil {
		return vg.Msgf("perform: %v", err)
	}
	l.header.ConsumerOffset = offset
	if err := writeRingHeader(l.dev, l.header); err != nil {
		return err
	}
	return l.dev.Sync()
}

// start launches the background flusher. Called once, from Open.
func (l *Log) start() {
	l.stopCh = make(chan struct{})
	l.stopped.Add(1)
	go func() {
		defer l.stopped.Done()
		ticker := time.NewTicker(l.flushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				l.Flush()
			case <-l.stopCh:
				return
			}
		}
	}()
}

// PendingCount returns the number of records pushed since the last
// flush, for metrics.Source.PendingFlushCount.
func (l *Log) PendingCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

// Close stops the background flusher, flushes anything still pending,
// and returns. It does not close the underlying device.
func (l *Log) Close() error {
	close(l.stopCh)
	l.stopped.Wait()
	return l.Flush()
}
