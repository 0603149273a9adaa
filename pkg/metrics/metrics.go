// Package metrics holds the prometheus collectors shared by the storage,
// link and versioning layers.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ouroboros"

// Metrics groups all collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	KVReads    prometheus.Counter
	KVWrites   prometheus.Counter
	StoreOps   *prometheus.CounterVec
	LinkOps    *prometheus.CounterVec
	EngineOps  *prometheus.CounterVec
	Anomalies  *prometheus.CounterVec
	GCDuration prometheus.Histogram
}

// New creates the collectors and registers them with reg. A nil reg skips
// registration, which keeps tests free of global state.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		KVReads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kv_reads_total",
			Help:      "Total number of key/value reads",
		}),
		KVWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kv_writes_total",
			Help:      "Total number of key/value writes",
		}),
		StoreOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entry_store_operations_total",
			Help:      "Entry store operations by operation and result",
		}, []string{"op", "result"}),
		LinkOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "link_operations_total",
			Help:      "Link index operations by operation and result",
		}, []string{"op", "result"}),
		EngineOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "versioning_operations_total",
			Help:      "Anchor versioning operations by link type, operation and result",
		}, []string{"link_type", "op", "result"}),
		Anomalies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "singleton_anomalies_total",
			Help:      "Reads that found zero or several live edges on a singleton relation",
		}, []string{"link_type", "kind"}),
		GCDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gc_duration_seconds",
			Help:      "Duration of value log garbage collection runs",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		}),
	}

	if reg != nil {
		reg.MustRegister(m.KVReads, m.KVWrites, m.StoreOps, m.LinkOps, m.EngineOps, m.Anomalies, m.GCDuration)
	}
	return m
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (m *Metrics) Read() {
	if m == nil {
		return
	}
	m.KVReads.Inc()
}

func (m *Metrics) Write(n int) {
	if m == nil {
		return
	}
	m.KVWrites.Add(float64(n))
}

func (m *Metrics) Store(op string, err error) {
	if m == nil {
		return
	}
	m.StoreOps.WithLabelValues(op, result(err)).Inc()
}

func (m *Metrics) Link(op string, err error) {
	if m == nil {
		return
	}
	m.LinkOps.WithLabelValues(op, result(err)).Inc()
}

func (m *Metrics) Engine(linkType, op string, err error) {
	if m == nil {
		return
	}
	m.EngineOps.WithLabelValues(linkType, op, result(err)).Inc()
}

// Anomaly counts a singleton relation read that did not find exactly one edge.
// kind is "missing" or "multiple".
func (m *Metrics) Anomaly(linkType, kind string) {
	if m == nil {
		return
	}
	m.Anomalies.WithLabelValues(linkType, kind).Inc()
}

func (m *Metrics) ObserveGC(seconds float64) {
	if m == nil {
		return
	}
	m.GCDuration.Observe(seconds)
}
