package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusExporter exports metrics to Prometheus format.
type PrometheusExporter struct {
	collector *Collector

	// Prometheus metrics
	cacheHits        prometheus.Counter
	cacheMisses      prometheus.Counter
	cacheHitRate     prometheus.Gauge
	cacheKeys        prometheus.Gauge
	cacheMemoryBytes prometheus.Gauge
	cacheEvictions   prometheus.Counter
	decisions        *prometheus.CounterVec
	decisionDuration *prometheus.HistogramVec
	cyclesDetected   *prometheus.CounterVec
	storeErrors      *prometheus.CounterVec
}

// NewPrometheusExporter creates a new Prometheus exporter.
func NewPrometheusExporter(collector *Collector) *PrometheusExporter {
	return &PrometheusExporter{
		collector: collector,
		cacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "torii_decision_cache_hits_total",
			Help: "Total number of cache hits for permission decisions",
		}),
		cacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "torii_decision_cache_misses_total",
			Help: "Total number of cache misses for permission decisions",
		}),
		cacheHitRate: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "torii_decision_cache_hit_rate",
			Help: "Current cache hit rate (0.0 to 1.0)",
		}),
		cacheKeys: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "torii_decision_cache_keys_current",
			Help: "Current number of cached decisions",
		}),
		cacheMemoryBytes: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "torii_decision_cache_memory_bytes",
			Help: "Current memory usage of the decision cache in bytes",
		}),
		cacheEvictions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "torii_decision_cache_evictions_total",
			Help: "Total number of cache evictions due to memory limits",
		}),
		decisions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "torii_decisions_total",
				Help: "Total number of permission decisions",
			},
			[]string{"action", "outcome"},
		),
		decisionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "torii_decision_duration_seconds",
				Help:    "Duration of permission decisions in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0},
			},
			[]string{"action"},
		),
		cyclesDetected: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "torii_ancestry_cycles_total",
				Help: "Total number of cycles detected during inheritance walks",
			},
			[]string{"chain"},
		),
		storeErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "torii_store_errors_total",
				Help: "Total number of transient store failures during inheritance walks",
			},
			[]string{"chain"},
		),
	}
}

// Update updates Gauge metrics from the collector.
// Counters are updated via the instrumented engine, so only update gauges
// here. This should be called periodically (e.g., every 10 seconds).
func (e *PrometheusExporter) Update() {
	cacheMetrics := e.collector.GetCacheMetrics()
	e.cacheHitRate.Set(cacheMetrics.HitRate)
	e.cacheKeys.Set(float64(cacheMetrics.KeysCurrent))
	e.cacheMemoryBytes.Set(float64(cacheMetrics.MemoryBytes))
}

// RecordDecision records a permission decision in Prometheus.
func (e *PrometheusExporter) RecordDecision(action string, allowed bool) {
	outcome := "denied"
	if allowed {
		outcome = "allowed"
	}
	e.decisions.WithLabelValues(action, outcome).Inc()
}

// RecordDuration records a decision duration in Prometheus.
func (e *PrometheusExporter) RecordDuration(action string, durationSeconds float64) {
	e.decisionDuration.WithLabelValues(action).Observe(durationSeconds)
}

// RecordCycle records a detected ancestry cycle.
func (e *PrometheusExporter) RecordCycle(chain string) {
	e.cyclesDetected.WithLabelValues(chain).Inc()
}

// RecordStoreError records a transient store failure.
func (e *PrometheusExporter) RecordStoreError(chain string) {
	e.storeErrors.WithLabelValues(chain).Inc()
}

// RecordCacheHit records a cache hit.
func (e *PrometheusExporter) RecordCacheHit() {
	e.cacheHits.Inc()
}

// RecordCacheMiss records a cache miss.
func (e *PrometheusExporter) RecordCacheMiss() {
	e.cacheMisses.Inc()
}

// RecordCacheEviction records a cache eviction.
func (e *PrometheusExporter) RecordCacheEviction() {
	e.cacheEvictions.Inc()
}
