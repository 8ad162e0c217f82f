// Package telemetry exposes Prometheus metrics for the checkout workflow.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Overland-East-Bay/storefront-api/internal/ports/out/idempotency"
)

// Metrics owns its registry so tests and multiple servers do not collide on the global one.
type Metrics struct {
	registry *prometheus.Registry

	workflowRuns  *prometheus.CounterVec
	stageRuns     *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	conflicts     prometheus.Counter
	rateLimited   prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		workflowRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "workflow_runs_total",
			Help: "Recoverable workflow executions by result",
		}, []string{"result"}),
		stageRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "workflow_stages_total",
			Help: "Workflow stage executions by recovery point and result",
		}, []string{"recovery_point", "result"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "workflow_stage_duration_seconds",
			Help:    "Workflow stage latency including the record update",
			Buckets: prometheus.DefBuckets,
		}, []string{"recovery_point"}),
		conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "idempotency_conflicts_total",
			Help: "Requests rejected because their idempotency key was locked",
		}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "checkout_rate_limited_total",
			Help: "Cart completions rejected by the rate limiter",
		}),
	}
	m.registry.MustRegister(
		m.workflowRuns,
		m.stageRuns,
		m.stageDuration,
		m.conflicts,
		m.rateLimited,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) WorkflowRun(result string) {
	m.workflowRuns.WithLabelValues(result).Inc()
}

func (m *Metrics) StageRun(point idempotency.RecoveryPoint, result string, elapsed time.Duration) {
	m.stageRuns.WithLabelValues(string(point), result).Inc()
	m.stageDuration.WithLabelValues(string(point)).Observe(elapsed.Seconds())
}

func (m *Metrics) Conflict() { m.conflicts.Inc() }

func (m *Metrics) RateLimited() { m.rateLimited.Inc() }
