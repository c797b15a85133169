package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookCounters(t *testing.T) {
	m := newMetrics(prometheus.NewRegistry())

	m.WebhookAccepted("yaya-wallet")
	m.WebhookAccepted("yaya-wallet")
	m.WebhookDuplicate("yaya-wallet")
	m.WebhookRejected("yaya-wallet", "signature_mismatch")
	m.WebhookError("yaya-wallet")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.webhooks.WithLabelValues("yaya-wallet", OutcomeAccepted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.webhooks.WithLabelValues("yaya-wallet", OutcomeDuplicate)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.webhooks.WithLabelValues("yaya-wallet", OutcomeRejected)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.webhooks.WithLabelValues("yaya-wallet", OutcomeError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rejections.WithLabelValues("yaya-wallet", "signature_mismatch")))
}

func TestJobAndHousekeepingCounters(t *testing.T) {
	m := newMetrics(prometheus.NewRegistry())

	m.JobResult("process_webhook_event", ResultRetried)
	m.JobResult("process_webhook_event", ResultExhausted)
	m.EnqueueFailed()
	m.SweepRequeued(3)
	m.CleanupDeleted(7)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobs.WithLabelValues("process_webhook_event", ResultRetried)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobs.WithLabelValues("process_webhook_event", ResultExhausted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.enqueueFailures))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.sweepRequeued))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.cleanupDeleted))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.WebhookAccepted("p")
		m.WebhookRejected("p", "r")
		m.JobResult("t", ResultCompleted)
		m.SweepRequeued(1)
		m.CleanupDeleted(1)
	})
}

func TestHandler(t *testing.T) {
	m := New()
	m.WebhookAccepted("yaya-wallet")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, string(body), `payhook_webhooks_total{outcome="accepted",provider="yaya-wallet"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
