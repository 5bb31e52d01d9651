// Package metrics collects Prometheus metrics for the list service.
//
// Metrics are held by an explicitly constructed value with its own
// registry rather than package-level collectors, so tests and multiple
// server instances never collide on registration.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "lista"

// Metrics bundles the service's Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	mutationsTotal    *prometheus.CounterVec
	broadcastsTotal   prometheus.Counter
	broadcastFailures prometheus.Counter
	activeSessions    prometheus.Gauge
}

// New creates a Metrics value backed by a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		mutationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mutations_total",
			Help:      "Total number of successful store mutations by operation",
		}, []string{"op"}),

		broadcastsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcasts_total",
			Help:      "Total number of snapshot broadcast cycles",
		}),

		broadcastFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_failures_total",
			Help:      "Total number of per-session broadcast delivery failures",
		}),

		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of registered websocket sessions",
		}),
	}
}

// Handler exposes the registry in Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordMutation counts one successful store mutation.
func (m *Metrics) RecordMutation(op string) {
	if m != nil {
		m.mutationsTotal.WithLabelValues(op).Inc()
	}
}

// RecordBroadcast counts one broadcast cycle.
func (m *Metrics) RecordBroadcast() {
	if m != nil {
		m.broadcastsTotal.Inc()
	}
}

// RecordBroadcastFailure counts one failed per-session delivery.
func (m *Metrics) RecordBroadcastFailure() {
	if m != nil {
		m.broadcastFailures.Inc()
	}
}

// SessionOpened records a session registration.
func (m *Metrics) SessionOpened() {
	if m != nil {
		m.activeSessions.Inc()
	}
}

// SessionClosed records a session unregistration.
func (m *Metrics) SessionClosed() {
	if m != nil {
		m.activeSessions.Dec()
	}
}
