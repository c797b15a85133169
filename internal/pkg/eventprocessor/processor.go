package eventprocessor

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/PayHook/app/models"
	"github.com/ManuelReschke/PayHook/app/repository"
	"github.com/ManuelReschke/PayHook/internal/pkg/jobqueue"
)

// Processor handles process_webhook_event jobs. Every read and write of an
// event happens under its row lock, so concurrent deliveries of the same
// job never run the handler twice after the event is closed.
type Processor struct {
	repo        repository.WebhookEventRepository
	handlers    map[models.EventType]EventHandler
	maxAttempts int
}

type Option func(*Processor)

// WithMaxAttempts caps handler runs per event across all jobs, including
// jobs started by the stuck-event sweep. Use the queue's MaxRetries+1.
func WithMaxAttempts(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.maxAttempts = n
		}
	}
}

var (
	_ jobqueue.Handler          = (*Processor)(nil)
	_ jobqueue.ExhaustedHandler = (*Processor)(nil)
)

// NewProcessor creates a processor. A nil handlers map means DefaultHandlers.
func NewProcessor(repo repository.WebhookEventRepository, handlers map[models.EventType]EventHandler, opts ...Option) *Processor {
	if handlers == nil {
		handlers = DefaultHandlers()
	}
	p := &Processor{
		repo:        repo,
		handlers:    handlers,
		maxAttempts: jobqueue.DefaultMaxRetries + 1,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Register binds the processor to its job type.
func (p *Processor) Register(reg *jobqueue.Registry) {
	reg.Register(jobqueue.JobTypeProcessWebhookEvent, p)
}

func (p *Processor) handlerFor(eventType models.EventType) EventHandler {
	if h, ok := p.handlers[eventType]; ok && h != nil {
		return h
	}
	return noopHandler(eventType)
}

// Handle runs one processing attempt. Handler failures are recorded on the
// event and returned so the queue retries; the event stays open.
func (p *Processor) Handle(ctx context.Context, job *jobqueue.Job) error {
	payload, err := jobqueue.WebhookEventJobPayloadFromMap(job.Payload)
	if err != nil {
		// Nothing a retry could fix
		log.Errorf("[EventProcessor] Job %s has an invalid payload: %v", job.ID, err)
		return nil
	}
	eventID := payload.EventID

	var handlerErr error
	var skipped bool
	err = p.repo.WithLockedEvent(ctx, eventID, func(tx repository.WebhookEventRepository, event *models.WebhookEvent) error {
		if event.Processed {
			log.Infof("[EventProcessor] Event %s already processed, skipping", eventID)
			skipped = true
			return nil
		}
		if event.Attempts >= p.maxAttempts {
			log.Errorf("[EventProcessor] Event %s used all %d attempts, closing it: %s", eventID, event.Attempts, event.LastError)
			skipped = true
			return tx.MarkProcessed(ctx, eventID)
		}

		handlerErr = p.handlerFor(event.EventType).Handle(ctx, event)
		if err := tx.RecordAttempt(ctx, eventID, handlerErr); err != nil {
			return err
		}
		if handlerErr != nil {
			return nil
		}
		return tx.MarkProcessed(ctx, eventID)
	})

	switch {
	case errors.Is(err, repository.ErrEventNotFound):
		log.Errorf("[EventProcessor] Event %s not found, dropping job %s", eventID, job.ID)
		return nil
	case err != nil:
		return fmt.Errorf("process event %s: %w", eventID, err)
	case handlerErr != nil:
		log.Warnf("[EventProcessor] Handler failed for event %s (attempt %d/%d): %v", eventID, job.RetryCount+1, job.MaxRetries+1, handlerErr)
		return handlerErr
	case skipped:
		return nil
	}

	log.Infof("[EventProcessor] Event %s processed", eventID)
	return nil
}

// Exhausted closes an event whose last allowed attempt failed. The row keeps
// attempts and last_error so the failure stays visible.
func (p *Processor) Exhausted(ctx context.Context, job *jobqueue.Job, lastErr error) {
	payload, err := jobqueue.WebhookEventJobPayloadFromMap(job.Payload)
	if err != nil {
		log.Errorf("[EventProcessor] Exhausted job %s has an invalid payload: %v", job.ID, err)
		return
	}
	eventID := payload.EventID

	err = p.repo.WithLockedEvent(ctx, eventID, func(tx repository.WebhookEventRepository, event *models.WebhookEvent) error {
		if event.Processed {
			return nil
		}
		log.Errorf("[EventProcessor] Event %s failed after %d attempts, closing it: %v", eventID, event.Attempts, lastErr)
		return tx.MarkProcessed(ctx, eventID)
	})
	if err != nil && !errors.Is(err, repository.ErrEventNotFound) {
		log.Errorf("[EventProcessor] Failed to close exhausted event %s: %v", eventID, err)
	}
}
