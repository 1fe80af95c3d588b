// Package metrics exposes Prometheus metrics for platform fetches and score aggregation.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Aggregation results
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Option applies a configuration option to the Manager.
type Option func(*Manager)

// WithNamespace sets the namespace for all metrics.
func WithNamespace(namespace string) Option {
	return func(m *Manager) {
		if namespace != "" {
			m.namespace = namespace
		}
	}
}

// WithHistogramBuckets sets custom buckets for the fetch latency histogram.
func WithHistogramBuckets(buckets []float64) Option {
	return func(m *Manager) {
		if len(buckets) > 0 {
			m.histogramBuckets = buckets
		}
	}
}

// WithRegistry registers the metrics on registry and serves them from it.
func WithRegistry(registry *prometheus.Registry) Option {
	return func(m *Manager) {
		if registry != nil {
			m.registry = registry
		}
	}
}

// Manager owns the service's collectors. A nil *Manager is valid and records nothing.
type Manager struct {
	namespace        string
	histogramBuckets []float64
	registry         *prometheus.Registry

	fetchTotal       *prometheus.CounterVec
	fetchDuration    *prometheus.HistogramVec
	rateLimitedTotal *prometheus.CounterVec
	aggregations     *prometheus.CounterVec
	lastBulkRun      prometheus.Gauge
}

// NewManager creates a metrics manager. Without WithRegistry a private
// registry is used so repeated construction in tests never collides.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "profile_scores",
		histogramBuckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.registry == nil {
		m.registry = prometheus.NewRegistry()
	}

	factory := promauto.With(m.registry)

	m.fetchTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "platform_fetch_total",
		Help:      "Platform profile fetches by outcome",
	}, []string{"platform", "outcome"})

	m.fetchDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Name:      "platform_fetch_duration_seconds",
		Help:      "Latency of platform profile fetches",
		Buckets:   m.histogramBuckets,
	}, []string{"platform"})

	m.rateLimitedTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "rate_limited_total",
		Help:      "Refresh attempts rejected by the rate limiter",
	}, []string{"platform"})

	m.aggregations = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "aggregations_total",
		Help:      "User total score recomputations by result",
	}, []string{"result"})

	m.lastBulkRun = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Name:      "last_bulk_recompute_unix",
		Help:      "Unix time of the last completed bulk recomputation",
	})

	return m
}

// ObserveFetch records one adapter call. outcome is "success" or an error kind.
func (m *Manager) ObserveFetch(platform, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.fetchTotal.WithLabelValues(platform, outcome).Inc()
	m.fetchDuration.WithLabelValues(platform).Observe(elapsed.Seconds())
}

// IncRateLimited counts a refresh rejected by the limiter
func (m *Manager) IncRateLimited(platform string) {
	if m == nil {
		return
	}
	m.rateLimitedTotal.WithLabelValues(platform).Inc()
}

// IncAggregation counts one user recomputation
func (m *Manager) IncAggregation(result string) {
	if m == nil {
		return
	}
	m.aggregations.WithLabelValues(result).Inc()
}

// SetLastBulkRecompute stamps the completion time of a bulk pass
func (m *Manager) SetLastBulkRecompute(t time.Time) {
	if m == nil {
		return
	}
	m.lastBulkRun.Set(float64(t.Unix()))
}

// Handler serves the registry in the Prometheus exposition format
func (m *Manager) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
