package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// SeqnoGauge tracks the volume group's committed sequence number,
	// one series per VG name, so a dashboard can watch mutation rate.
	SeqnoGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mbv_vg_seqno",
			Help: "Current committed sequence number of the volume group",
		},
		[]string{"vg"},
	)

	// FreeExtents tracks free extents per PV, one series per (vg, pv).
	FreeExtents = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mbv_pv_free_extents",
			Help: "Free extents remaining on a physical volume",
		},
		[]string{"vg", "pv"},
	)

	// RedoLogQueueDepth tracks how many pushed ops are awaiting the
	// next flush.
	RedoLogQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mbv_redolog_queue_depth",
			Help: "Number of ops pushed to the redo log awaiting flush",
		},
		[]string{"vg"},
	)

	// FlushLatency records how long each redo-log flush (perform call
	// plus ring-header commit) takes.
	FlushLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mbv_redolog_flush_duration_seconds",
			Help:    "Time taken to flush the redo log",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"vg"},
	)

	// UpdatesTotal counts read-write session updates, one series per
	// (vg, outcome), where outcome is "ok", "rejected" or "error".
	UpdatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mbv_session_updates_total",
			Help: "Total number of session update calls by outcome",
		},
		[]string{"vg", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(SeqnoGauge)
	prometheus.MustRegister(FreeExtents)
	prometheus.MustRegister(RedoLogQueueDepth)
	prometheus.MustRegister(FlushLatency)
	prometheus.MustRegister(UpdatesTotal)
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFlush times a redo-log flush and records it under
// FlushLatency, so pkg/session never needs to import prometheus
// directly just to start a timer.
func ObserveFlush(vg string, flush func() error) error {
	timer := prometheus.NewTimer(FlushLatency.WithLabelValues(vg))
	defer timer.ObserveDuration()
	return flush()
}
