// Package graphmetrics exposes Prometheus collectors for the scheduler,
// grounded on the teacher's internal/edge/metrics.PrometheusMetrics: the
// same NewXWithRegistry constructor shape and promhttp exposition, here
// instrumenting job dispatch instead of request handling.
package graphmetrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Collector tracks job-level counters and timings across a Workflow's
// runs. A nil *Collector is safe to call methods on — every method treats a
// nil receiver as a no-op, so callers that don't want metrics can pass nil.
type Collector struct {
	jobsTotal     *prometheus.CounterVec
	jobDuration   *prometheus.HistogramVec
	jobsInFlight  prometheus.Gauge
	plannedJobs   prometheus.Gauge
	httpHandler   http.Handler
}

// New creates a Collector registered against prometheus.DefaultRegisterer.
func New(namespace string, logger *zap.Logger) *Collector {
	return NewWithRegistry(namespace, prometheus.DefaultRegisterer, logger)
}

// NewWithRegistry creates a Collector registered against registerer, so
// tests can use a private prometheus.NewRegistry() instead of polluting
// the global default.
func NewWithRegistry(namespace string, registerer prometheus.Registerer, logger *zap.Logger) *Collector {
	c := &Collector{
		jobsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "jobs_total",
				Help:      "Total number of jobs dispatched by the scheduler, by rule and result",
			},
			[]string{"rule", "result"}, // result: ran, skipped, failed
		),
		jobDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "job_duration_seconds",
				Help:      "Time taken to run a job's action",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"rule"},
		),
		jobsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "jobs_in_flight",
				Help:      "Number of jobs currently running in the worker pool",
			},
		),
		plannedJobs: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "planned_jobs",
				Help:      "Number of unique jobs in the most recently planned DAG",
			},
		),
	}

	registerer.MustRegister(c.jobsTotal, c.jobDuration, c.jobsInFlight, c.plannedJobs)

	gatherer, ok := registerer.(prometheus.Gatherer)
	if !ok {
		gatherer = prometheus.DefaultGatherer
	}
	c.httpHandler = promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})

	if logger != nil {
		logger.Debug("scheduler metrics initialized", zap.String("namespace", namespace))
	}
	return c
}

// Handler returns the http.Handler serving this collector's metrics in the
// Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return c.httpHandler
}

func (c *Collector) ObservePlanned(count int) {
	if c == nil {
		return
	}
	c.plannedJobs.Set(float64(count))
}

func (c *Collector) JobStarted() {
	if c == nil {
		return
	}
	c.jobsInFlight.Inc()
}

func (c *Collector) JobSkipped(rule string) {
	if c == nil {
		return
	}
	c.jobsTotal.WithLabelValues(rule, "skipped").Inc()
}

func (c *Collector) JobFinished(rule, result string, durationSeconds float64) {
	if c == nil {
		return
	}
	c.jobsInFlight.Dec()
	c.jobsTotal.WithLabelValues(rule, result).Inc()
	c.jobDuration.WithLabelValues(rule).Observe(durationSeconds)
}
