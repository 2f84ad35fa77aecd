// Package observability holds the Prometheus collectors of the realtime core.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is safe to use through a nil pointer; every method is then a no-op.
type Metrics struct {
	// Connections is the number of live websocket connections.
	Connections prometheus.Gauge

	// PresenceEvents counts presence edges. Labels: edge (online|offline)
	PresenceEvents *prometheus.CounterVec

	// Relay counts relayed envelopes. Labels: kind, result (delivered|offline|dropped)
	Relay *prometheus.CounterVec

	// StatusTransitions counts message-level status changes. Labels: status
	StatusTransitions *prometheus.CounterVec

	// PersistenceFailures counts failed store writes. Labels: op
	PersistenceFailures *prometheus.CounterVec

	// Calls counts resolved calls. Labels: outcome (answered|rejected|ended|cancelled|timeout)
	Calls *prometheus.CounterVec
}

// NewMetrics registers all collectors with reg. Pass prometheus.DefaultRegisterer
// in production and a fresh prometheus.NewRegistry() in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Connections: f.NewGauge(prometheus.GaugeOpts{
			Name: "parley_connections",
			Help: "Number of live realtime connections",
		}),
		PresenceEvents: f.NewCounterVec(prometheus.CounterOpts{
			Name: "parley_presence_events_total",
			Help: "Presence edges emitted by edge",
		}, []string{"edge"}),
		Relay: f.NewCounterVec(prometheus.CounterOpts{
			Name: "parley_relay_total",
			Help: "Relayed envelopes by kind and result",
		}, []string{"kind", "result"}),
		StatusTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "parley_status_transitions_total",
			Help: "Message status transitions by target status",
		}, []string{"status"}),
		PersistenceFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "parley_persistence_failures_total",
			Help: "Failed message store operations by op",
		}, []string{"op"}),
		Calls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "parley_calls_total",
			Help: "Resolved calls by outcome",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) ConnOpened() {
	if m != nil {
		m.Connections.Inc()
	}
}

func (m *Metrics) ConnClosed() {
	if m != nil {
		m.Connections.Dec()
	}
}

func (m *Metrics) PresenceEdge(edge string) {
	if m != nil {
		m.PresenceEvents.WithLabelValues(edge).Inc()
	}
}

func (m *Metrics) Relayed(kind, result string, n int) {
	if m != nil && n > 0 {
		m.Relay.WithLabelValues(kind, result).Add(float64(n))
	}
}

func (m *Metrics) StatusChanged(status string) {
	if m != nil {
		m.StatusTransitions.WithLabelValues(status).Inc()
	}
}

func (m *Metrics) PersistenceFailed(op string) {
	if m != nil {
		m.PersistenceFailures.WithLabelValues(op).Inc()
	}
}

func (m *Metrics) CallResolved(outcome string) {
	if m != nil {
		m.Calls.WithLabelValues(outcome).Inc()
	}
}
