package models

import (
	"fmt"
	"strings"
	"time"
)

// EventType is the closed set of payment notifications the service accepts.
type EventType string

const (
	EventTypePaymentConfirmed    EventType = "payment_confirmed"
	EventTypePaymentReceived     EventType = "payment_received"
	EventTypeRecurringPayment    EventType = "recurring_payment"
	EventTypeSubscriptionPayment EventType = "subscription_payment"
)

// EventTypes lists every accepted type in cause-matching order.
var EventTypes = []EventType{
	EventTypePaymentConfirmed,
	EventTypePaymentReceived,
	EventTypeRecurringPayment,
	EventTypeSubscriptionPayment,
}

var causeKeywords = []struct {
	keyword   string
	eventType EventType
}{
	{"confirmed", EventTypePaymentConfirmed},
	{"received", EventTypePaymentReceived},
	{"recurring", EventTypeRecurringPayment},
	{"subscription", EventTypeSubscriptionPayment},
}

// EventTypeFromCause derives the event type from the free-text cause.
// First keyword match wins; anything unrecognised is a plain received payment.
func EventTypeFromCause(cause string) EventType {
	c := strings.ToLower(cause)
	for _, k := range causeKeywords {
		if strings.Contains(c, k.keyword) {
			return k.eventType
		}
	}
	return EventTypePaymentReceived
}

// IsValid reports whether t is one of the enumerated types.
func (t EventType) IsValid() bool {
	for _, known := range EventTypes {
		if t == known {
			return true
		}
	}
	return false
}

// WebhookEvent stores a verified provider notification. Processed is the
// terminal flag: once set, no further attempt happens, whether or not the
// handler succeeded.
type WebhookEvent struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	EventID       string     `gorm:"type:varchar(36);not null;uniqueIndex:ux_webhook_events_event_id" json:"event_id"`
	EventType     EventType  `gorm:"type:varchar(50);not null;index" json:"event_type"`
	Amount        string     `gorm:"type:decimal(12,2);not null" json:"amount"`
	Currency      string     `gorm:"type:varchar(3);not null;default:'ETB'" json:"currency"`
	CreatedAtTime int64      `gorm:"not null" json:"created_at_time"`
	Timestamp     int64      `gorm:"not null" json:"timestamp"`
	Cause         string     `gorm:"type:varchar(255);not null" json:"cause"`
	FullName      string     `gorm:"type:varchar(255);not null" json:"full_name"`
	AccountName   string     `gorm:"type:varchar(100);not null" json:"account_name"`
	InvoiceURL    string     `gorm:"type:varchar(200);not null" json:"invoice_url"`
	Signature     string     `gorm:"type:varchar(255);not null;default:''" json:"signature"`
	IsVerified    bool       `gorm:"not null;default:false" json:"is_verified"`
	Processed     bool       `gorm:"not null;default:false;index:idx_webhook_events_pending,priority:1" json:"processed"`
	Attempts      int        `gorm:"not null;default:0" json:"attempts"`
	LastError     string     `gorm:"type:text" json:"last_error,omitempty"`
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty"`
	ProcessedAt   *time.Time `json:"processed_at,omitempty"`
	ReceivedAt    time.Time  `gorm:"not null;index:idx_webhook_events_pending,priority:2;index" json:"received_at"`
}

func (WebhookEvent) TableName() string {
	return "webhook_events"
}

func (e WebhookEvent) String() string {
	return fmt.Sprintf("%s - %s %s", e.EventType, e.Amount, e.Currency)
}
