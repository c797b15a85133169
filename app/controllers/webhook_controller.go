package controllers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/PayHook/app/repository"
	"github.com/ManuelReschke/PayHook/internal/pkg/config"
	"github.com/ManuelReschke/PayHook/internal/pkg/jobqueue"
	"github.com/ManuelReschke/PayHook/internal/pkg/metrics"
	"github.com/ManuelReschke/PayHook/internal/pkg/webhook"
)

const (
	msgMissingSignature = "Missing signature"
	msgMalformedPayload = "Malformed payload"
	msgInvalidPayload   = "Invalid payload"
	msgInvalidSignature = "Invalid signature"
	msgInternalError    = "Internal server error"

	webhookRequestTimeout = 15 * time.Second
)

// WebhookController receives provider notifications. It only verifies,
// stores and schedules; processing happens in the workers.
type WebhookController struct {
	cfg       config.WebhookConfig
	verifier  *webhook.SignatureService
	repo      repository.WebhookEventRepository
	scheduler jobqueue.Scheduler
	metrics   *metrics.Metrics
}

func NewWebhookController(cfg config.WebhookConfig, verifier *webhook.SignatureService, repo repository.WebhookEventRepository, scheduler jobqueue.Scheduler, m *metrics.Metrics) *WebhookController {
	return &WebhookController{
		cfg:       cfg,
		verifier:  verifier,
		repo:      repo,
		scheduler: scheduler,
		metrics:   m,
	}
}

// HandleWebhook serves POST /webhooks/:provider/. Every gate is a hard stop.
func (wc *WebhookController) HandleWebhook(c *fiber.Ctx) error {
	provider := wc.cfg.Provider

	signature := strings.TrimSpace(c.Get(wc.cfg.SignatureHeader))
	if signature == "" {
		log.Warnf("[Webhook] Rejected delivery from %s: missing %s header", c.IP(), wc.cfg.SignatureHeader)
		wc.metrics.WebhookRejected(provider, "missing_signature")
		return webhookError(c, fiber.StatusBadRequest, msgMissingSignature, nil)
	}

	payload, err := webhook.ParsePayload(c.Body())
	if err != nil {
		log.Warnf("[Webhook] Rejected delivery: %v", err)
		wc.metrics.WebhookRejected(provider, "malformed_payload")
		return webhookError(c, fiber.StatusBadRequest, msgMalformedPayload, nil)
	}

	if err := payload.Validate(); err != nil {
		var schemaErr *webhook.SchemaError
		if errors.As(err, &schemaErr) {
			log.Warnf("[Webhook] Rejected event %q: %v", payload.ID, schemaErr)
			wc.metrics.WebhookRejected(provider, "invalid_payload")
			return webhookError(c, fiber.StatusBadRequest, msgInvalidPayload, schemaErr.Fields)
		}
		return wc.internalError(c, "validate payload", err)
	}

	ok, err := wc.verifier.Verify(signature, payload)
	if errors.Is(err, webhook.ErrStaleTimestamp) {
		log.Warnf("[Webhook] Rejected event %s: stale timestamp %s", payload.ID, payload.Timestamp)
		wc.metrics.WebhookRejected(provider, "stale_timestamp")
		return webhookError(c, fiber.StatusBadRequest, msgInvalidSignature, nil)
	}
	if err != nil {
		return wc.internalError(c, "verify signature", err)
	}
	if !ok {
		log.Warnf("[Webhook] Rejected event %s: signature mismatch", payload.ID)
		wc.metrics.WebhookRejected(provider, "signature_mismatch")
		return webhookError(c, fiber.StatusBadRequest, msgInvalidSignature, nil)
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), webhookRequestTimeout)
	defer cancel()

	exists, err := wc.repo.Exists(ctx, payload.ID)
	if err != nil {
		return wc.internalError(c, "check duplicate", err)
	}
	if exists {
		log.Infof("[Webhook] Duplicate event %s acknowledged", payload.ID)
		wc.metrics.WebhookDuplicate(provider)
		return webhookAccepted(c)
	}

	event, err := wc.repo.CreateVerified(ctx, payload, signature)
	if errors.Is(err, repository.ErrDuplicateEvent) {
		log.Infof("[Webhook] Concurrent duplicate event %s acknowledged", payload.ID)
		wc.metrics.WebhookDuplicate(provider)
		return webhookAccepted(c)
	}
	if err != nil {
		return wc.internalError(c, "store event", err)
	}

	jobPayload := jobqueue.WebhookEventJobPayload{EventID: event.EventID}.ToMap()
	if _, err := wc.scheduler.Enqueue(ctx, jobqueue.JobTypeProcessWebhookEvent, jobPayload, 0); err != nil {
		// The event is stored; the retry sweep will pick it up.
		log.Errorf("[Webhook] Failed to schedule processing for event %s: %v", event.EventID, err)
		wc.metrics.EnqueueFailed()
	}

	log.Infof("[Webhook] Accepted event %s (%s)", event.EventID, event)
	wc.metrics.WebhookAccepted(provider)
	return webhookAccepted(c)
}

func (wc *WebhookController) internalError(c *fiber.Ctx, step string, err error) error {
	log.Errorf("[Webhook] %s failed: %v", step, err)
	wc.metrics.WebhookError(wc.cfg.Provider)
	return webhookError(c, fiber.StatusInternalServerError, msgInternalError, nil)
}

func webhookAccepted(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status":  "success",
		"message": "Webhook received",
	})
}

func webhookError(c *fiber.Ctx, status int, message string, details map[string]string) error {
	body := fiber.Map{"error": message}
	if len(details) > 0 {
		body["details"] = details
	}
	return c.Status(status).JSON(body)
}

// ErrorHandler renders errors that escape handlers, including recovered
// panics, without leaking internal detail.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) && fe.Code < fiber.StatusInternalServerError {
		return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
	}
	log.Errorf("[HTTP] %s %s: %v", c.Method(), c.Path(), err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": msgInternalError})
}
