package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PromMetrics mirrors the aggregator's counters onto Prometheus metrics.
// This is additive: nothing in the data path depends on it, and every
// method is nil-receiver-safe so callers can pass a nil *PromMetrics when
// Prometheus export wasn't requested.
type PromMetrics struct {
	ConnectionsTotal   prometheus.Counter
	ConnectionsOpen    prometheus.Gauge
	QueriesTotal       prometheus.Counter
	ErrorsTotal        prometheus.Counter
	QueryDuration      prometheus.Histogram
	DroppedEventsTotal prometheus.Counter
}

// NewPromMetrics registers and returns a fresh set of pgscope metrics using
// the default Prometheus registry.
func NewPromMetrics() *PromMetrics {
	return &PromMetrics{
		ConnectionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pgscope_connections_total",
			Help: "Total number of client connections accepted.",
		}),
		ConnectionsOpen: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "pgscope_connections_open",
			Help: "Number of currently open client connections.",
		}),
		QueriesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pgscope_queries_total",
			Help: "Total number of queries completed.",
		}),
		ErrorsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pgscope_errors_total",
			Help: "Total number of query errors observed.",
		}),
		QueryDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "pgscope_query_duration_seconds",
			Help:    "Query latency as observed by the proxy.",
			Buckets: []float64{.001, .005, .01, .025, .1, .25, 1},
		}),
		DroppedEventsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pgscope_dropped_events_total",
			Help: "Total number of observations dropped due to bus overflow.",
		}),
	}
}

// Observe mirrors one Observation onto the Prometheus metrics. Safe to call
// on a nil *PromMetrics (a no-op), so callers never need to branch on
// whether Prometheus export is enabled.
func (m *PromMetrics) Observe(o Observation) {
	if m == nil {
		return
	}
	switch v := o.(type) {
	case ConnectionOpened:
		m.ConnectionsTotal.Inc()
		m.ConnectionsOpen.Inc()
	case ConnectionClosed:
		m.ConnectionsOpen.Dec()
	case QueryComplete:
		m.QueriesTotal.Inc()
		m.QueryDuration.Observe(v.TEnd.Sub(v.TStart).Seconds())
	case QueryError:
		m.ErrorsTotal.Inc()
	}
}

// RecordDroppedEvents adds n to the dropped-events counter. Safe on nil.
func (m *PromMetrics) RecordDroppedEvents(n uint64) {
	if m == nil || n == 0 {
		return
	}
	m.DroppedEventsTotal.Add(float64(n))
}
