// Package metrics provides Prometheus metrics export for chat turns and the
// document pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "vectorwave"

// PrometheusExporter exports service metrics in Prometheus format.
type PrometheusExporter struct {
	registry *prometheus.Registry

	// Turn metrics
	turnLatency  *prometheus.HistogramVec
	turnsTotal   *prometheus.CounterVec
	turnsActive  prometheus.Gauge
	turnRejected *prometheus.CounterVec

	// Document pipeline metrics
	chunksEmbedded prometheus.Counter
	vectorsDeleted prometheus.Counter

	// Cache metrics
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec
}

// Config configures the Prometheus exporter.
type Config struct {
	// Registry to use (if nil, creates a new one)
	Registry *prometheus.Registry

	// Buckets for latency histograms (in seconds)
	LatencyBuckets []float64

	// RuntimeCollectors adds the Go runtime and process collectors.
	RuntimeCollectors bool
}

// DefaultConfig returns default Prometheus configuration.
func DefaultConfig() Config {
	return Config{
		LatencyBuckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
	}
}

// NewPrometheusExporter creates a new Prometheus metrics exporter.
func NewPrometheusExporter(cfg Config) *PrometheusExporter {
	if len(cfg.LatencyBuckets) == 0 {
		cfg.LatencyBuckets = DefaultConfig().LatencyBuckets
	}

	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	e := &PrometheusExporter{registry: registry}

	e.turnLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "turn_latency_seconds",
			Help:      "End-to-end turn latency in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
		[]string{"retrieval", "outcome"},
	)

	e.turnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "turns_total",
			Help:      "Total number of turns that started, by outcome",
		},
		[]string{"outcome", "error_kind"},
	)

	e.turnsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "turns_active",
			Help:      "Number of turns currently in flight",
		},
	)

	e.turnRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "turns_rejected_total",
			Help:      "Turns rejected before any side effect",
		},
		[]string{"error_kind"},
	)

	e.chunksEmbedded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "documents",
			Name:      "chunks_embedded_total",
			Help:      "Document paragraphs embedded and upserted into the vector index",
		},
	)

	e.vectorsDeleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "documents",
			Name:      "vectors_deleted_total",
			Help:      "Vector entries removed by document deletion or reindexing",
		},
	)

	e.cacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Total number of cache hits",
		},
		[]string{"cache_type"},
	)

	e.cacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	registry.MustRegister(
		e.turnLatency,
		e.turnsTotal,
		e.turnsActive,
		e.turnRejected,
		e.chunksEmbedded,
		e.vectorsDeleted,
		e.cacheHits,
		e.cacheMisses,
	)
	if cfg.RuntimeCollectors {
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	return e
}

// TurnStarted marks a turn as in flight.
func (e *PrometheusExporter) TurnStarted() {
	e.turnsActive.Inc()
}

// TurnFinished records a turn that passed admission. errorKind is empty on
// success.
func (e *PrometheusExporter) TurnFinished(retrieval bool, latency time.Duration, errorKind string) {
	e.turnsActive.Dec()
	outcome := "completed"
	if errorKind != "" {
		outcome = "failed"
	}
	e.turnLatency.WithLabelValues(boolLabel(retrieval), outcome).Observe(latency.Seconds())
	e.turnsTotal.WithLabelValues(outcome, errorKind).Inc()
}

// TurnRejected records a turn refused before it started.
func (e *PrometheusExporter) TurnRejected(errorKind string) {
	e.turnRejected.WithLabelValues(errorKind).Inc()
}

// RecordChunksEmbedded counts embedded document paragraphs.
func (e *PrometheusExporter) RecordChunksEmbedded(n int) {
	e.chunksEmbedded.Add(float64(n))
}

// RecordVectorsDeleted counts removed vector entries.
func (e *PrometheusExporter) RecordVectorsDeleted(n int64) {
	e.vectorsDeleted.Add(float64(n))
}

// RecordCacheHit records a cache hit.
func (e *PrometheusExporter) RecordCacheHit(cacheType string) {
	e.cacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss records a cache miss.
func (e *PrometheusExporter) RecordCacheMiss(cacheType string) {
	e.cacheMisses.WithLabelValues(cacheType).Inc()
}

// Handler returns the HTTP handler serving this exporter's registry.
func (e *PrometheusExporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying Prometheus registry.
func (e *PrometheusExporter) Registry() *prometheus.Registry {
	return e.registry
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
