package eventprocessor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/PayHook/app/repository"
	"github.com/ManuelReschke/PayHook/internal/pkg/jobqueue"
	"github.com/ManuelReschke/PayHook/internal/pkg/metrics"
)

const (
	TaskRetryFailedWebhooks = "retry_failed_webhooks"
	TaskCleanupOldWebhooks  = "cleanup_old_webhooks"
)

// Housekeeper runs the periodic sweeps over stored events.
type Housekeeper struct {
	repo      repository.WebhookEventRepository
	scheduler jobqueue.Scheduler
	sweepAge  time.Duration
	metrics   *metrics.Metrics
}

func NewHousekeeper(repo repository.WebhookEventRepository, scheduler jobqueue.Scheduler, sweepAge time.Duration, m *metrics.Metrics) *Housekeeper {
	if sweepAge <= 0 {
		sweepAge = 5 * time.Minute
	}
	return &Housekeeper{repo: repo, scheduler: scheduler, sweepAge: sweepAge, metrics: m}
}

// RetryFailedWebhooks re-enqueues open events older than the sweep age that
// are not inside a retry window. It returns how many were enqueued.
func (h *Housekeeper) RetryFailedWebhooks(ctx context.Context) (int, error) {
	events, err := h.repo.ListUnprocessedOlderThan(ctx, h.sweepAge)
	if err != nil {
		return 0, err
	}

	enqueued := 0
	var errs []error
	for _, event := range events {
		payload := jobqueue.WebhookEventJobPayload{EventID: event.EventID}.ToMap()
		if _, err := h.scheduler.Enqueue(ctx, jobqueue.JobTypeProcessWebhookEvent, payload, 0); err != nil {
			errs = append(errs, fmt.Errorf("enqueue %s: %w", event.EventID, err))
			continue
		}
		enqueued++
	}

	if enqueued > 0 {
		log.Infof("[Housekeeping] Re-enqueued %d unprocessed webhook events", enqueued)
	}
	h.metrics.SweepRequeued(enqueued)
	return enqueued, errors.Join(errs...)
}

// CleanupOldWebhooks deletes events received more than retentionDays ago.
func (h *Housekeeper) CleanupOldWebhooks(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, fmt.Errorf("retention days must be positive, got %d", retentionDays)
	}
	deleted, err := h.repo.DeleteOlderThan(ctx, time.Duration(retentionDays)*24*time.Hour)
	if err != nil {
		return 0, err
	}
	log.Infof("[Housekeeping] Deleted %d webhook events older than %d days", deleted, retentionDays)
	h.metrics.CleanupDeleted(deleted)
	return deleted, nil
}

// Schedule registers both sweeps with the manager.
func (h *Housekeeper) Schedule(m *jobqueue.Manager, sweepInterval, cleanupInterval time.Duration, retentionDays int) {
	m.SchedulePeriodic(TaskRetryFailedWebhooks, sweepInterval, func(ctx context.Context) error {
		_, err := h.RetryFailedWebhooks(ctx)
		return err
	})
	m.SchedulePeriodic(TaskCleanupOldWebhooks, cleanupInterval, func(ctx context.Context) error {
		_, err := h.CleanupOldWebhooks(ctx, retentionDays)
		return err
	})
}
