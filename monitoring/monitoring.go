// Package monitoring exposes Prometheus metrics for the proxy pipeline.
package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the proxy's Prometheus collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	cacheLookups    *prometheus.CounterVec
	policyBlocks    *prometheus.CounterVec
	upstreamErrors  *prometheus.CounterVec
	cacheEntries    prometheus.Gauge
}

func NewMetrics(namespace string) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total number of proxy requests by terminal kind.",
			},
			[]string{"kind", "cache"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "Proxy request duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
		cacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_lookups_total",
				Help:      "Semantic cache lookups by result.",
			},
			[]string{"result"},
		),
		policyBlocks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "policy_blocks_total",
				Help:      "Requests rejected by the policy engine, by kind.",
			},
			[]string{"kind"},
		),
		upstreamErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upstream_errors_total",
				Help:      "Upstream completion failures by reason.",
			},
			[]string{"reason"},
		),
		cacheEntries: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "cache_entries",
				Help:      "Live semantic cache entries.",
			},
		),
	}

	registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.cacheLookups,
		m.policyBlocks,
		m.upstreamErrors,
		m.cacheEntries,
	)
	return m
}

// Handler returns the exposition endpoint for the private registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveRequest(kind string, fromCache bool, duration time.Duration) {
	cache := "miss"
	if fromCache {
		cache = "hit"
	}
	m.requestsTotal.WithLabelValues(kind, cache).Inc()
	m.requestDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

func (m *Metrics) ObserveCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) ObservePolicyBlock(kind string) {
	m.policyBlocks.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveUpstreamError(reason string) {
	m.upstreamErrors.WithLabelValues(reason).Inc()
}

func (m *Metrics) SetCacheEntries(count int) {
	m.cacheEntries.Set(float64(count))
}
