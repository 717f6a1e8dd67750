// Package metrics provides the Prometheus collector wired into the
// dispatcher. This package is internal; external consumers scrape the
// metrics endpoint instead of importing it.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/pixelgate/pixelgate/gateway"
)

// Collector implements gateway.Metrics on Prometheus primitives.
type Collector struct {
	generationsTotal   *prometheus.CounterVec
	generationDuration *prometheus.HistogramVec
	retryAttempts      *prometheus.CounterVec
	cacheHits          *prometheus.CounterVec
	cacheMisses        *prometheus.CounterVec
	batchSize          prometheus.Histogram

	logger *zap.Logger
}

var _ gateway.Metrics = (*Collector)(nil)

// NewCollector creates a collector registered against the given
// registerer. Pass prometheus.DefaultRegisterer in production; tests use
// a fresh registry to avoid duplicate-registration panics.
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promautoWith(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.generationsTotal = factory.counterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "generations_total",
		Help:      "Total image generation requests by provider and outcome",
	}, []string{"provider", "outcome"})

	c.generationDuration = factory.histogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "generation_duration_seconds",
		Help:      "End-to-end generation duration in seconds",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"provider"})

	c.retryAttempts = factory.counterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "retry_attempts_total",
		Help:      "Retried adapter invocations by provider",
	}, []string{"provider"})

	c.cacheHits = factory.counterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_hits_total",
		Help:      "Result cache hits by provider",
	}, []string{"provider"})

	c.cacheMisses = factory.counterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_misses_total",
		Help:      "Result cache misses by provider",
	}, []string{"provider"})

	c.batchSize = factory.histogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "batch_size",
		Help:      "Number of requests per batch fan-out",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
	})

	return c
}

// ObserveGeneration implements gateway.Metrics.
func (c *Collector) ObserveGeneration(provider, outcome string, seconds float64) {
	c.generationsTotal.WithLabelValues(provider, outcome).Inc()
	c.generationDuration.WithLabelValues(provider).Observe(seconds)
}

// AddRetryAttempt implements gateway.Metrics.
func (c *Collector) AddRetryAttempt(provider string) {
	c.retryAttempts.WithLabelValues(provider).Inc()
}

// AddCacheHit implements gateway.Metrics.
func (c *Collector) AddCacheHit(provider string) {
	c.cacheHits.WithLabelValues(provider).Inc()
}

// AddCacheMiss implements gateway.Metrics.
func (c *Collector) AddCacheMiss(provider string) {
	c.cacheMisses.WithLabelValues(provider).Inc()
}

// ObserveBatch implements gateway.Metrics.
func (c *Collector) ObserveBatch(size int) {
	c.batchSize.Observe(float64(size))
}

// promautoWith mirrors promauto's With helper while keeping the factory
// methods on one small struct.
type factory struct {
	reg prometheus.Registerer
}

func promautoWith(reg prometheus.Registerer) factory {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return factory{reg: reg}
}

func (f factory) counterVec(opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	v := prometheus.NewCounterVec(opts, labels)
	f.reg.MustRegister(v)
	return v
}

func (f factory) histogramVec(opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	v := prometheus.NewHistogramVec(opts, labels)
	f.reg.MustRegister(v)
	return v
}

func (f factory) histogram(opts prometheus.HistogramOpts) prometheus.Histogram {
	h := prometheus.NewHistogram(opts)
	f.reg.MustRegister(h)
	return h
}
