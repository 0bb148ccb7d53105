// Package metrics provides the Prometheus collectors and HTTP middleware used to
// monitor the chatbot API.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chatbot"

// Metrics owns a registry and the service's collectors. Keeping the registry
// per instance lets tests build as many as they like.
type Metrics struct {
	Registry *prometheus.Registry

	// RequestsTotal counts HTTP requests by method, route and status class.
	RequestsTotal *prometheus.CounterVec
	// RequestDuration records HTTP request duration in seconds by method and route.
	RequestDuration *prometheus.HistogramVec
	// AuthOutcomes counts authentication middleware outcomes.
	AuthOutcomes *prometheus.CounterVec
	// RateLimitRejectedTotal counts requests rejected by the login rate limiter.
	RateLimitRejectedTotal prometheus.Counter
}

// New creates and registers the collectors, plus the Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		AuthOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "auth_outcomes_total",
				Help:      "Authentication middleware outcomes",
			},
			[]string{"outcome"},
		),
		RateLimitRejectedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ratelimit_rejected_total",
				Help:      "Rate limit rejections",
			},
		),
	}
	m.Registry.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.AuthOutcomes,
		m.RateLimitRejectedTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveAuthOutcome matches the observer signature the auth middleware accepts.
func (m *Metrics) ObserveAuthOutcome(outcome string) {
	m.AuthOutcomes.WithLabelValues(outcome).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
