// Package metrics exposes Prometheus counters for webhook intake and job processing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	OutcomeAccepted  = "accepted"
	OutcomeDuplicate = "duplicate"
	OutcomeRejected  = "rejected"
	OutcomeError     = "error"

	ResultCompleted = "completed"
	ResultRetried   = "retried"
	ResultExhausted = "exhausted"
)

// Metrics groups the service counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	webhooks        *prometheus.CounterVec
	rejections      *prometheus.CounterVec
	jobs            *prometheus.CounterVec
	enqueueFailures prometheus.Counter
	sweepRequeued   prometheus.Counter
	cleanupDeleted  prometheus.Counter
}

// New registers the service counters on a fresh registry together with the
// Go runtime and process collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return newMetrics(registry)
}

func newMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		registry: registry,
		webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payhook_webhooks_total",
			Help: "Webhook deliveries by provider and outcome.",
		}, []string{"provider", "outcome"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payhook_webhook_rejections_total",
			Help: "Rejected webhook deliveries by reason.",
		}, []string{"provider", "reason"}),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payhook_jobs_total",
			Help: "Background job runs by type and result.",
		}, []string{"type", "result"}),
		enqueueFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "payhook_enqueue_failures_total",
			Help: "Stored events whose processing job could not be scheduled.",
		}),
		sweepRequeued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "payhook_sweep_requeued_total",
			Help: "Events re-enqueued by the stuck event sweep.",
		}),
		cleanupDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "payhook_cleanup_deleted_total",
			Help: "Events removed by the retention cleanup.",
		}),
	}
	registry.MustRegister(m.webhooks, m.rejections, m.jobs, m.enqueueFailures, m.sweepRequeued, m.cleanupDeleted)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) WebhookAccepted(provider string) {
	if m == nil {
		return
	}
	m.webhooks.WithLabelValues(provider, OutcomeAccepted).Inc()
}

func (m *Metrics) WebhookDuplicate(provider string) {
	if m == nil {
		return
	}
	m.webhooks.WithLabelValues(provider, OutcomeDuplicate).Inc()
}

func (m *Metrics) WebhookRejected(provider, reason string) {
	if m == nil {
		return
	}
	m.webhooks.WithLabelValues(provider, OutcomeRejected).Inc()
	m.rejections.WithLabelValues(provider, reason).Inc()
}

func (m *Metrics) WebhookError(provider string) {
	if m == nil {
		return
	}
	m.webhooks.WithLabelValues(provider, OutcomeError).Inc()
}

func (m *Metrics) EnqueueFailed() {
	if m == nil {
		return
	}
	m.enqueueFailures.Inc()
}

func (m *Metrics) JobResult(jobType, result string) {
	if m == nil {
		return
	}
	m.jobs.WithLabelValues(jobType, result).Inc()
}

func (m *Metrics) SweepRequeued(n int) {
	if m == nil {
		return
	}
	m.sweepRequeued.Add(float64(n))
}

func (m *Metrics) CleanupDeleted(n int64) {
	if m == nil {
		return
	}
	m.cleanupDeleted.Add(float64(n))
}
