// Package metrics exposes Prometheus instrumentation for the relay bot.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	eventsReceived *prometheus.CounterVec
	eventsDropped  *prometheus.CounterVec
	usersCreated   prometheus.Counter
	deliveries     *prometheus.CounterVec
	directory      *prometheus.CounterVec
	transitions    *prometheus.CounterVec
	activeSessions prometheus.Gauge
}

// New creates collectors registered on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		eventsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "events_received_total",
			Help:      "Inbound platform events by kind.",
		}, []string{"kind"}),
		eventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "events_dropped_total",
			Help:      "Inbound events discarded without a reply, by reason.",
		}, []string{"reason"}),
		usersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "users_created_total",
			Help:      "Users materialized on first contact.",
		}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "deliveries_total",
			Help:      "Relayed messages by outcome.",
		}, []string{"outcome"}),
		directory: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "directory_lookups_total",
			Help:      "Recipient directory lookups by cache result.",
		}, []string{"cache"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "session_transitions_total",
			Help:      "Conversation state transitions by target state.",
		}, []string{"to"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "relay",
			Name:      "active_sessions",
			Help:      "Conversation sessions currently held in memory.",
		}),
	}
	reg.MustRegister(
		m.eventsReceived, m.eventsDropped, m.usersCreated,
		m.deliveries, m.directory, m.transitions, m.activeSessions,
		collectors.NewGoCollector(),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordEvent counts an inbound event.
func (m *Metrics) RecordEvent(kind string) {
	if m == nil {
		return
	}
	m.eventsReceived.WithLabelValues(kind).Inc()
}

// RecordDropped counts an event discarded by policy.
func (m *Metrics) RecordDropped(reason string) {
	if m == nil {
		return
	}
	m.eventsDropped.WithLabelValues(reason).Inc()
}

// RecordUserCreated counts a newly created user.
func (m *Metrics) RecordUserCreated() {
	if m == nil {
		return
	}
	m.usersCreated.Inc()
}

// RecordDelivery counts a relay attempt; outcome is "ok" or "error".
func (m *Metrics) RecordDelivery(outcome string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(outcome).Inc()
}

// RecordDirectoryLookup counts a directory lookup; cache is "hit" or "miss".
func (m *Metrics) RecordDirectoryLookup(cache string) {
	if m == nil {
		return
	}
	m.directory.WithLabelValues(cache).Inc()
}

// RecordTransition counts a session entering state.
func (m *Metrics) RecordTransition(state string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(state).Inc()
}

// SetActiveSessions reports the current session count.
func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.activeSessions.Set(float64(n))
}
