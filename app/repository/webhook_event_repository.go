package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ManuelReschke/PayHook/app/models"
	"github.com/ManuelReschke/PayHook/internal/pkg/webhook"
)

var (
	ErrDuplicateEvent = errors.New("webhook event already exists")
	ErrEventNotFound  = errors.New("webhook event not found")
)

const defaultCurrency = "ETB"

// WebhookEventRepository is the only writer of webhook_events rows.
type WebhookEventRepository interface {
	Exists(ctx context.Context, eventID string) (bool, error)
	CreateVerified(ctx context.Context, p *webhook.Payload, signature string) (*models.WebhookEvent, error)
	MarkProcessed(ctx context.Context, eventID string) error
	Get(ctx context.Context, eventID string) (*models.WebhookEvent, error)
	List(ctx context.Context, offset, limit int) ([]models.WebhookEvent, error)
	ListUnprocessedOlderThan(ctx context.Context, age time.Duration) ([]models.WebhookEvent, error)
	DeleteOlderThan(ctx context.Context, age time.Duration) (int64, error)
	RecordAttempt(ctx context.Context, eventID string, attemptErr error) error
	// WithLockedEvent runs fn inside a transaction holding a row lock on the
	// event. fn must only use the repository it is given.
	WithLockedEvent(ctx context.Context, eventID string, fn func(tx WebhookEventRepository, ev *models.WebhookEvent) error) error
}

type Option func(*webhookEventRepository)

// WithDefaultCurrency sets the currency stored when a payload omits it.
func WithDefaultCurrency(currency string) Option {
	return func(r *webhookEventRepository) {
		if currency != "" {
			r.defaultCurrency = currency
		}
	}
}

// WithClock overrides the time source used for bookkeeping columns.
func WithClock(now func() time.Time) Option {
	return func(r *webhookEventRepository) {
		if now != nil {
			r.now = now
		}
	}
}

type webhookEventRepository struct {
	db              *gorm.DB
	defaultCurrency string
	now             func() time.Time
}

// NewWebhookEventRepository creates a webhook event repository backed by GORM.
func NewWebhookEventRepository(db *gorm.DB, opts ...Option) WebhookEventRepository {
	r := &webhookEventRepository{
		db:              db,
		defaultCurrency: defaultCurrency,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *webhookEventRepository) withDB(db *gorm.DB) *webhookEventRepository {
	return &webhookEventRepository{db: db, defaultCurrency: r.defaultCurrency, now: r.now}
}

func (r *webhookEventRepository) Exists(ctx context.Context, eventID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.WebhookEvent{}).
		Where("event_id = ?", eventID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("check event %s: %w", eventID, err)
	}
	return count > 0, nil
}

// CreateVerified stores a verified payload. A concurrent insert of the same
// event id is reported as ErrDuplicateEvent, never as a store failure.
func (r *webhookEventRepository) CreateVerified(ctx context.Context, p *webhook.Payload, signature string) (*models.WebhookEvent, error) {
	createdAt, err := p.CreatedAtUnix()
	if err != nil {
		return nil, fmt.Errorf("created_at_time: %w", err)
	}
	ts, err := p.TimestampUnix()
	if err != nil {
		return nil, fmt.Errorf("timestamp: %w", err)
	}

	event := &models.WebhookEvent{
		EventID:       p.ID,
		EventType:     models.EventTypeFromCause(p.Cause),
		Amount:        p.Amount,
		Currency:      p.CurrencyOr(r.defaultCurrency),
		CreatedAtTime: createdAt,
		Timestamp:     ts,
		Cause:         p.Cause,
		FullName:      p.FullName,
		AccountName:   p.AccountName,
		InvoiceURL:    p.InvoiceURL,
		Signature:     signature,
		IsVerified:    true,
		Processed:     false,
		ReceivedAt:    r.now().UTC(),
	}

	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "event_id"}},
			DoNothing: true,
		}).
		Create(event)
	if res.Error != nil {
		return nil, fmt.Errorf("create event %s: %w", p.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrDuplicateEvent
	}
	return event, nil
}

// MarkProcessed sets the terminal flag. Already processed rows are left as is.
func (r *webhookEventRepository) MarkProcessed(ctx context.Context, eventID string) error {
	now := r.now().UTC()
	err := r.db.WithContext(ctx).Model(&models.WebhookEvent{}).
		Where("event_id = ? AND processed = ?", eventID, false).
		Updates(map[string]interface{}{
			"processed":    true,
			"processed_at": now,
		}).Error
	if err != nil {
		return fmt.Errorf("mark event %s processed: %w", eventID, err)
	}
	return nil
}

func (r *webhookEventRepository) Get(ctx context.Context, eventID string) (*models.WebhookEvent, error) {
	var event models.WebhookEvent
	err := r.db.WithContext(ctx).Where("event_id = ?", eventID).First(&event).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get event %s: %w", eventID, err)
	}
	return &event, nil
}

// List returns events newest first.
func (r *webhookEventRepository) List(ctx context.Context, offset, limit int) ([]models.WebhookEvent, error) {
	var events []models.WebhookEvent
	err := r.db.WithContext(ctx).
		Order("received_at DESC").
		Offset(offset).Limit(limit).
		Find(&events).Error
	return events, err
}

// ListUnprocessedOlderThan returns open events received before now-age that
// have not been attempted within age either.
func (r *webhookEventRepository) ListUnprocessedOlderThan(ctx context.Context, age time.Duration) ([]models.WebhookEvent, error) {
	cutoff := r.now().UTC().Add(-age)
	var events []models.WebhookEvent
	err := r.db.WithContext(ctx).
		Where("processed = ? AND received_at < ?", false, cutoff).
		Where("last_attempt_at IS NULL OR last_attempt_at < ?", cutoff).
		Order("received_at ASC").
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("list unprocessed events: %w", err)
	}
	return events, nil
}

func (r *webhookEventRepository) DeleteOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	cutoff := r.now().UTC().Add(-age)
	res := r.db.WithContext(ctx).
		Where("received_at < ?", cutoff).
		Delete(&models.WebhookEvent{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete events before %s: %w", cutoff.Format(time.RFC3339), res.Error)
	}
	return res.RowsAffected, nil
}

func (r *webhookEventRepository) RecordAttempt(ctx context.Context, eventID string, attemptErr error) error {
	lastError := ""
	if attemptErr != nil {
		lastError = attemptErr.Error()
	}
	err := r.db.WithContext(ctx).Model(&models.WebhookEvent{}).
		Where("event_id = ? AND processed = ?", eventID, false).
		Updates(map[string]interface{}{
			"attempts":        gorm.Expr("attempts + ?", 1),
			"last_error":      lastError,
			"last_attempt_at": r.now().UTC(),
		}).Error
	if err != nil {
		return fmt.Errorf("record attempt for %s: %w", eventID, err)
	}
	return nil
}

func (r *webhookEventRepository) WithLockedEvent(ctx context.Context, eventID string, fn func(tx WebhookEventRepository, ev *models.WebhookEvent) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var event models.WebhookEvent
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("event_id = ?", eventID).
			First(&event).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrEventNotFound
		}
		if err != nil {
			return fmt.Errorf("lock event %s: %w", eventID, err)
		}
		return fn(r.withDB(tx), &event)
	})
}
