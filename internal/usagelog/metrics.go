package usagelog

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	batchesTotal  *prometheus.CounterVec
	failuresTotal *prometheus.CounterVec
	entriesTotal  prometheus.Counter
	droppedTotal  prometheus.Counter
	flushDuration *prometheus.HistogramVec
}

// NewMetrics registers with reg; nil leaves the collectors unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		batchesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "labguard",
			Subsystem: "usage_log",
			Name:      "batches_total",
			Help:      "Usage log batches written, by flush reason.",
		}, []string{"reason"}),
		failuresTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "labguard",
			Subsystem: "usage_log",
			Name:      "flush_failures_total",
			Help:      "Usage log batches that failed to write and were dropped.",
		}, []string{"reason"}),
		entriesTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: "labguard",
			Subsystem: "usage_log",
			Name:      "entries_total",
			Help:      "Usage log rows upserted.",
		}),
		droppedTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: "labguard",
			Subsystem: "usage_log",
			Name:      "dropped_updates_total",
			Help:      "Usage updates dropped because the queue was full.",
		}),
		flushDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "labguard",
			Subsystem: "usage_log",
			Name:      "flush_duration_seconds",
			Help:      "Time spent writing one batch.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"reason"}),
	}
}
