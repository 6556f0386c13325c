package tracker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "labguard"

// Heartbeat results.
const (
	resultOK           = "ok"
	resultUnregistered = "unregistered"
	resultInvalid      = "invalid"
	resultError        = "error"
)

type Metrics struct {
	Heartbeats       *prometheus.CounterVec
	OfflineSyncs     *prometheus.CounterVec
	Rollovers        prometheus.Counter
	RolloverFailures prometheus.Counter
	SessionsOpened   prometheus.Counter
	SessionsClosed   prometheus.Counter
	Demotions        prometheus.Counter
	SweepFailures    *prometheus.CounterVec
}

// NewMetrics registers the tracker collectors with reg. A nil reg yields
// working but unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Heartbeats: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "tracker",
			Name:      "heartbeats_total",
			Help:      "Heartbeats received, by result.",
		}, []string{"result"}),
		OfflineSyncs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "tracker",
			Name:      "offline_syncs_total",
			Help:      "Offline-sync submissions, by result.",
		}, []string{"result"}),
		Rollovers: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "tracker",
			Name:      "rollovers_total",
			Help:      "Days archived into daily history on a date change.",
		}),
		RolloverFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "tracker",
			Name:      "rollover_failures_total",
			Help:      "Daily archives that could not be written.",
		}),
		SessionsOpened: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "tracker",
			Name:      "sessions_opened_total",
			Help:      "Sessions opened.",
		}),
		SessionsClosed: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "tracker",
			Name:      "sessions_closed_total",
			Help:      "Sessions closed by sweep, supersede or unbind.",
		}),
		Demotions: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "tracker",
			Name:      "presence_demotions_total",
			Help:      "Devices marked offline by a staleness sweep.",
		}),
		SweepFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "tracker",
			Name:      "sweep_failures_total",
			Help:      "Background sweep passes that failed, by sweep.",
		}, []string{"sweep"}),
	}
}
