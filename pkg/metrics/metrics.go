package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	OutcomeSuccess   = "success"
	OutcomeFailure   = "failure"
	OutcomeAbandoned = "abandoned"
)

// Metrics holds the Prometheus metrics for handshakes and streams.
// A nil *Metrics records nothing.
type Metrics struct {
	handshakesTotal     *prometheus.CounterVec
	handshakeDuration   *prometheus.HistogramVec
	suspensionsTotal    *prometheus.CounterVec
	shutdownsTotal      *prometheus.CounterVec
	verifyFailuresTotal *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a metrics instance backed by its own registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		handshakesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "opentls_handshakes_total",
				Help: "Total number of finished handshakes by role and outcome",
			},
			[]string{"role", "outcome"},
		),
		handshakeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "opentls_handshake_duration_seconds",
				Help:    "Time from the first handshake attempt to its completion",
				Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
			},
			[]string{"role"},
		),
		suspensionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "opentls_handshake_suspensions_total",
				Help: "Total number of times a handshake paused on a transport that was not ready",
			},
			[]string{"role"},
		),
		shutdownsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "opentls_shutdowns_total",
				Help: "Total number of close_notify shutdowns by role and outcome",
			},
			[]string{"role", "outcome"},
		),
		verifyFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "opentls_certificate_verify_failures_total",
				Help: "Total number of handshakes rejected by certificate verification",
			},
			[]string{"role"},
		),

		registry: registry,
	}

	registry.MustRegister(
		m.handshakesTotal,
		m.handshakeDuration,
		m.suspensionsTotal,
		m.shutdownsTotal,
		m.verifyFailuresTotal,
	)

	return m
}

// RecordHandshake records a finished handshake.
func (m *Metrics) RecordHandshake(role, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.handshakesTotal.WithLabelValues(role, outcome).Inc()
	if outcome == OutcomeSuccess {
		m.handshakeDuration.WithLabelValues(role).Observe(duration.Seconds())
	}
}

// RecordSuspension records a handshake pausing for transport readiness.
func (m *Metrics) RecordSuspension(role string) {
	if m == nil {
		return
	}
	m.suspensionsTotal.WithLabelValues(role).Inc()
}

// RecordVerifyFailure records a certificate verification rejection.
func (m *Metrics) RecordVerifyFailure(role string) {
	if m == nil {
		return
	}
	m.verifyFailuresTotal.WithLabelValues(role).Inc()
}

// RecordShutdown records a shutdown attempt.
func (m *Metrics) RecordShutdown(role, outcome string) {
	if m == nil {
		return
	}
	m.shutdownsTotal.WithLabelValues(role, outcome).Inc()
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler exposing the metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
