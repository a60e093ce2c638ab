package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors of the service. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	cacheLookups     *prometheus.CounterVec
	discardedFetches *prometheus.CounterVec
	invalidations    *prometheus.CounterVec
	refetches        *prometheus.CounterVec
	mutations        *prometheus.CounterVec
	mutationDuration *prometheus.HistogramVec
	upstream         *prometheus.CounterVec
	upstreamDuration *prometheus.HistogramVec
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
	httpActive       prometheus.Gauge
}

// NewMetrics creates the collectors on a fresh registry
func NewMetrics(namespace string) *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Query cache lookups by tag and result (hit or miss).",
		}, []string{"tag", "result"}),
		discardedFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_discarded_fetches_total",
			Help:      "Fetch results dropped because the tag was cancelled or held by a mutation.",
		}, []string{"tag"}),
		invalidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_invalidations_total",
			Help:      "Tag invalidations by origin (local or remote).",
		}, []string{"tag", "origin"}),
		refetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_refetches_total",
			Help:      "Background refetches after invalidation by result.",
		}, []string{"tag", "result"}),
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mutations_total",
			Help:      "Optimistic mutations by tag, action and outcome.",
		}, []string{"tag", "action", "outcome"}),
		mutationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "mutation_duration_seconds",
			Help:      "Duration of optimistic mutations from cancel to settle.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tag", "action"}),
		upstream: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Requests sent to the REST backend by method and status code.",
		}, []string{"method", "status"}),
		upstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_request_duration_seconds",
			Help:      "Duration of requests sent to the REST backend.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_server_requests_total",
			Help:      "Requests served by route, method and status code.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_server_request_duration_seconds",
			Help:      "Latency of served requests.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"method", "route"}),
		httpActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_server_active_requests",
			Help:      "Requests currently being served.",
		}),
	}

	registry.MustRegister(
		m.cacheLookups,
		m.discardedFetches,
		m.invalidations,
		m.refetches,
		m.mutations,
		m.mutationDuration,
		m.upstream,
		m.upstreamDuration,
		m.httpRequests,
		m.httpDuration,
		m.httpActive,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry (for tests and custom collectors)
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// CacheLookup counts one cache read
func (m *Metrics) CacheLookup(tag string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(tag, result).Inc()
}

// FetchDiscarded counts a fetch result that was not written
func (m *Metrics) FetchDiscarded(tag string) {
	if m == nil {
		return
	}
	m.discardedFetches.WithLabelValues(tag).Inc()
}

// Invalidated counts a tag invalidation
func (m *Metrics) Invalidated(tag string, remote bool) {
	if m == nil {
		return
	}
	origin := "local"
	if remote {
		origin = "remote"
	}
	m.invalidations.WithLabelValues(tag, origin).Inc()
}

// Refetched counts a background refetch
func (m *Metrics) Refetched(tag string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.refetches.WithLabelValues(tag, result).Inc()
}

// MutationSettled records the outcome and duration of a mutation
func (m *Metrics) MutationSettled(tag, action, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.mutations.WithLabelValues(tag, action, outcome).Inc()
	m.mutationDuration.WithLabelValues(tag, action).Observe(d.Seconds())
}

// UpstreamRequest records one request sent to the backend
func (m *Metrics) UpstreamRequest(method, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.upstream.WithLabelValues(method, status).Inc()
	m.upstreamDuration.WithLabelValues(method).Observe(d.Seconds())
}

// RequestStarted tracks a request entering the server
func (m *Metrics) RequestStarted() {
	if m == nil {
		return
	}
	m.httpActive.Inc()
}

// RequestServed records one served request
func (m *Metrics) RequestServed(method, route, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.httpActive.Dec()
	m.httpRequests.WithLabelValues(method, route, status).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
