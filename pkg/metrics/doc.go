// Package metrics instruments a VG session with Prometheus counters
// and gauges: seqno, free extents per PV, redo-log queue depth, and
// flush latency. Package-level vars are registered once in init, and a
// ticker-driven Collector periodically samples a Source for the gauges
// that don't change on every call.
package metrics
