package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dinojam"

// Metrics groups the counters the match server reports.
type Metrics struct {
	EventsAccepted    *prometheus.CounterVec
	EventsRejected    *prometheus.CounterVec
	MalformedMessages prometheus.Counter
	RateLimited       prometheus.Counter
	ConnectedPeers    prometheus.Gauge
	MatchesCompleted  prometheus.Counter

	registry *prometheus.Registry
}

// New creates the collectors and registers them on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		EventsAccepted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_accepted_total",
			Help:      "Game events validated, consumed and broadcast.",
		}, []string{"event"}),
		EventsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_rejected_total",
			Help:      "Game events that failed validation.",
		}, []string{"event"}),
		MalformedMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "malformed_messages_total",
			Help:      "Inbound payloads that could not be decoded.",
		}),
		RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_messages_total",
			Help:      "Inbound payloads dropped by the per-peer rate limit.",
		}),
		ConnectedPeers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connected_peers",
			Help:      "Peers currently attached to the transport.",
		}),
		MatchesCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "matches_completed_total",
			Help:      "Matches that ended and were reset.",
		}),
		registry: prometheus.NewRegistry(),
	}
	m.registry.MustRegister(
		m.EventsAccepted,
		m.EventsRejected,
		m.MalformedMessages,
		m.RateLimited,
		m.ConnectedPeers,
		m.MatchesCompleted,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
