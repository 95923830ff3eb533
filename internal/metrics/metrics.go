// Package metrics exposes Prometheus instruments for funding actions,
// caches, sessions and the HTTP surface.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "marketfund"

// Metrics owns a private registry so tests can create independent instances.
type Metrics struct {
	registry *prometheus.Registry

	actions        *prometheus.CounterVec
	actionDuration *prometheus.HistogramVec
	inflight       prometheus.Gauge
	cache          *prometheus.CounterVec
	sessions       prometheus.Gauge
	requests       *prometheus.CounterVec
}

// New creates and registers all instruments, plus the Go runtime and process
// collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "funding_actions_total",
			Help:      "Funding actions by kind and final status.",
		}, []string{"kind", "status"}),
		actionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "funding_action_duration_seconds",
			Help:      "Time from submission to the final status of a funding action.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"kind"}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "funding_actions_inflight",
			Help:      "Funding actions waiting on the chain.",
		}),
		cache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Cache lookups by cache and result.",
		}, []string{"cache", "result"}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "funding_sessions",
			Help:      "Open funding panel sessions.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method and status code.",
		}, []string{"method", "code"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.actions,
		m.actionDuration,
		m.inflight,
		m.cache,
		m.sessions,
		m.requests,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ActionStarted marks a funding action as in flight.
func (m *Metrics) ActionStarted() { m.inflight.Inc() }

// ActionFinished records the final status of a funding action.
func (m *Metrics) ActionFinished(kind, status string, took time.Duration) {
	m.inflight.Dec()
	m.actions.WithLabelValues(kind, status).Inc()
	m.actionDuration.WithLabelValues(kind).Observe(took.Seconds())
}

// CacheLookup counts a hit or miss of the named cache.
func (m *Metrics) CacheLookup(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cache.WithLabelValues(cache, result).Inc()
}

// SetSessions reports the number of open funding sessions.
func (m *Metrics) SetSessions(n int) { m.sessions.Set(float64(n)) }

// ObserveRequest counts one served HTTP request.
func (m *Metrics) ObserveRequest(method string, code int) {
	m.requests.WithLabelValues(method, strconv.Itoa(code)).Inc()
}
