package eventprocessor

import (
	"context"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/PayHook/app/models"
)

// EventHandler performs the business action for one event type.
type EventHandler interface {
	Handle(ctx context.Context, event *models.WebhookEvent) error
}

// EventHandlerFunc adapts a function to EventHandler.
type EventHandlerFunc func(ctx context.Context, event *models.WebhookEvent) error

func (f EventHandlerFunc) Handle(ctx context.Context, event *models.WebhookEvent) error {
	return f(ctx, event)
}

// DefaultHandlers returns the built-in handlers, one per event type. They
// record the payment in the log; integrations replace them per type.
func DefaultHandlers() map[models.EventType]EventHandler {
	return map[models.EventType]EventHandler{
		models.EventTypePaymentConfirmed:    logHandler("Payment confirmed"),
		models.EventTypePaymentReceived:     logHandler("Payment received"),
		models.EventTypeRecurringPayment:    logHandler("Recurring payment"),
		models.EventTypeSubscriptionPayment: logHandler("Subscription payment"),
	}
}

func logHandler(label string) EventHandler {
	return EventHandlerFunc(func(ctx context.Context, event *models.WebhookEvent) error {
		log.Infof("[EventProcessor] %s: %s %s from %s (%s)", label, event.Amount, event.Currency, event.FullName, event.EventID)
		return nil
	})
}

func noopHandler(eventType models.EventType) EventHandler {
	return EventHandlerFunc(func(ctx context.Context, event *models.WebhookEvent) error {
		log.Warnf("[EventProcessor] No handler for event type %q, closing event %s", eventType, event.EventID)
		return nil
	})
}
