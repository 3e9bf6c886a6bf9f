package metrics

import "time"

// Source is whatever a metrics Collector samples on each tick. It is
// satisfied by *session.Session without pkg/metrics importing
// pkg/session: pkg/session already depends on pkg/metrics to update
// counters inline on update/flush, so the dependency here runs the
// other way, through this interface instead of a concrete type.
type Source interface {
	VgName() string
	Seqno() uint32
	PendingFlushCount() int
	FreeExtentsByPV() map[string]uint64
}

// Collector periodically samples a Source's gauges, the way
// pkg/manager/metrics_collector.go samples cluster state on a ticker.
// Counters and histograms (UpdatesTotal, FlushLatency) are updated
// inline by the caller at the moment they happen instead, since a
// sampling tick can't observe a point-in-time latency after the fact.
type Collector struct {
	source Source
	stopCh chan struct{}
}

// NewCollector builds a Collector over source.
func NewCollector(source Source) *Collector {
	return &Collector{source: source, stopCh: make(chan struct{})}
}

// Start begins sampling every interval until Stop is called.
func (c *Collector) Start(interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop halts the sampling loop.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	vg := c.source.VgName()
	SeqnoGauge.WithLabelValues(vg).Set(float64(c.source.Seqno()))
	RedoLogQueueDepth.WithLabelValues(vg).Set(float64(c.source.PendingFlushCount()))
	for pv, free := range c.source.FreeExtentsByPV() {
		FreeExtents.WithLabelValues(vg, pv).Set(float64(free))
	}
}
