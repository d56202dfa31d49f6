package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the process collectors. A nil *Metrics is valid and records
// nothing, which keeps unit tests free of registries.
type Metrics struct {
	transitions       *prometheus.CounterVec
	errors            *prometheus.CounterVec
	ledgerEntries     prometheus.Counter
	ledgerFailures    prometheus.Counter
	broadcastFailures prometheus.Counter
	presenceSessions  prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "campus_lifecycle_transitions_total",
			Help: "Applied request transitions by kind and result code",
		}, []string{"kind", "code"}),
		errors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "campus_lifecycle_errors_total",
			Help: "Rejected request commands by kind and error code",
		}, []string{"kind", "code"}),
		ledgerEntries: f.NewCounter(prometheus.CounterOpts{
			Name: "campus_fanout_ledger_entries_total",
			Help: "Notification ledger entries written",
		}),
		ledgerFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "campus_fanout_ledger_failures_total",
			Help: "Failed notification ledger writes",
		}),
		broadcastFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "campus_fanout_broadcast_failures_total",
			Help: "Live broadcasts that did not reach the transport",
		}),
		presenceSessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "campus_presence_sessions",
			Help: "Live sessions currently connected to this instance",
		}),
	}
}

func (m *Metrics) Transition(kind, code string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(kind, code).Inc()
}

func (m *Metrics) Rejected(kind, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(kind, code).Inc()
}

func (m *Metrics) LedgerRecorded(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.ledgerEntries.Add(float64(n))
}

func (m *Metrics) LedgerFailed() {
	if m == nil {
		return
	}
	m.ledgerFailures.Inc()
}

func (m *Metrics) BroadcastFailed() {
	if m == nil {
		return
	}
	m.broadcastFailures.Inc()
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.presenceSessions.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.presenceSessions.Dec()
}
