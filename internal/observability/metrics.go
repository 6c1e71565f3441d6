// Package observability exposes Prometheus metrics for the analysis engine.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the bundle engine.
// A nil *Metrics is valid and turns every observation into a no-op, so
// components never need to care whether metrics are wired.
type Metrics struct {
	registry *prometheus.Registry

	jobsTotal    *prometheus.CounterVec
	jobDuration  prometheus.Histogram
	jobsInFlight prometheus.Gauge
	queueDepth   prometheus.Gauge
	cacheOps     *prometheus.CounterVec
	lockOps      *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics on a fresh registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		jobsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sizepanic_bundle_jobs_total",
				Help: "Total number of completed bundle jobs by result code",
			},
			[]string{"code"},
		),
		jobDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sizepanic_bundle_job_duration_seconds",
				Help:    "Bundle job duration in seconds",
				Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 20, 30},
			},
		),
		jobsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "sizepanic_bundle_jobs_in_flight",
				Help: "Number of bundle jobs currently executing",
			},
		),
		queueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "sizepanic_bundle_queue_depth",
				Help: "Number of requests waiting for an execution slot",
			},
		),
		cacheOps: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sizepanic_bundle_cache_ops_total",
				Help: "Cache lookups by outcome",
			},
			[]string{"outcome"},
		),
		lockOps: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sizepanic_bundle_lock_ops_total",
				Help: "Stampede lock operations by outcome",
			},
			[]string{"outcome"},
		),
	}
}

// Handler returns the HTTP handler serving the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveJob records one completed job. Code is "success" for successes.
func (m *Metrics) ObserveJob(code string, duration time.Duration) {
	if m == nil {
		return
	}
	m.jobsTotal.WithLabelValues(code).Inc()
	m.jobDuration.Observe(duration.Seconds())
}

// SetGateState updates the in-flight and queue-depth gauges.
func (m *Metrics) SetGateState(inFlight, waiting int) {
	if m == nil {
		return
	}
	m.jobsInFlight.Set(float64(inFlight))
	m.queueDepth.Set(float64(waiting))
}

// ObserveCache records one cache lookup outcome ("hit" or "miss").
func (m *Metrics) ObserveCache(outcome string) {
	if m == nil {
		return
	}
	m.cacheOps.WithLabelValues(outcome).Inc()
}

// ObserveLock records one lock outcome ("acquired", "waited", "computed").
func (m *Metrics) ObserveLock(outcome string) {
	if m == nil {
		return
	}
	m.lockOps.WithLabelValues(outcome).Inc()
}
