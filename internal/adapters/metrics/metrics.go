// Package metrics records cache and source activity as prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.trai.ch/symcache/internal/core/domain"
	"go.trai.ch/symcache/internal/core/ports"
)

const namespace = "symcache"

// Prometheus implements ports.Metrics on a dedicated registry.
type Prometheus struct {
	registry *prometheus.Registry

	lookups       *prometheus.CounterVec
	computeTime   *prometheus.HistogramVec
	computeErrors *prometheus.CounterVec
	evictions     *prometheus.CounterVec
	evictedBytes  *prometheus.CounterVec
	usage         prometheus.Gauge
	fetchTime     *prometheus.HistogramVec
}

var _ ports.Metrics = (*Prometheus)(nil)

// New registers every collector on a fresh registry, including the Go
// runtime and process collectors.
func New() *Prometheus {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Prometheus{
		registry: reg,
		lookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Cache lookups by kind and outcome",
		}, []string{"kind", "outcome"}),
		computeTime: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "compute_duration_seconds",
			Help:      "Time spent computing cache entries",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"kind"}),
		computeErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "compute_errors_total",
			Help:      "Failed cache computes by kind and error kind",
		}, []string{"kind", "reason"}),
		evictions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "evictions_total",
			Help:      "Entries removed by the sweeper",
		}, []string{"kind"}),
		evictedBytes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "evicted_bytes_total",
			Help:      "Bytes freed by the sweeper",
		}, []string{"kind"}),
		usage: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "usage_bytes",
			Help:      "Bytes currently used by cache payloads",
		}),
		fetchTime: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "fetch_duration_seconds",
			Help:      "Source request latency by source and outcome",
			Buckets:   []float64{0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"source", "outcome"}),
	}
}

// Registry exposes the underlying registry.
func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the prometheus text format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}

// CacheLookup implements ports.Metrics.
func (p *Prometheus) CacheLookup(kind domain.CacheKind, outcome string) {
	p.lookups.WithLabelValues(string(kind), outcome).Inc()
}

// CacheCompute implements ports.Metrics.
func (p *Prometheus) CacheCompute(kind domain.CacheKind, took time.Duration, err error) {
	p.computeTime.WithLabelValues(string(kind)).Observe(took.Seconds())
	if err != nil {
		p.computeErrors.WithLabelValues(string(kind), domain.KindOf(err).String()).Inc()
	}
}

// CacheEvicted implements ports.Metrics.
func (p *Prometheus) CacheEvicted(kind domain.CacheKind, bytes int64) {
	p.evictions.WithLabelValues(string(kind)).Inc()
	p.evictedBytes.WithLabelValues(string(kind)).Add(float64(bytes))
}

// CacheUsage implements ports.Metrics.
func (p *Prometheus) CacheUsage(bytes int64) {
	p.usage.Set(float64(bytes))
}

// SourceFetch implements ports.Metrics.
func (p *Prometheus) SourceFetch(source string, took time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = domain.KindOf(err).String()
	}
	p.fetchTime.WithLabelValues(source, outcome).Observe(took.Seconds())
}

// Nop discards every observation.
type Nop struct{}

var _ ports.Metrics = Nop{}

// CacheLookup implements ports.Metrics.
func (Nop) CacheLookup(domain.CacheKind, string) {}

// CacheCompute implements ports.Metrics.
func (Nop) CacheCompute(domain.CacheKind, time.Duration, error) {}

// CacheEvicted implements ports.Metrics.
func (Nop) CacheEvicted(domain.CacheKind, int64) {}

// CacheUsage implements ports.Metrics.
func (Nop) CacheUsage(int64) {}

// SourceFetch implements ports.Metrics.
func (Nop) SourceFetch(string, time.Duration, error) {}
