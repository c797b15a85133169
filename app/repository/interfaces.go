package repository

import (
	"gorm.io/gorm"
)

// Repositories struct holds all repository instances
type Repositories struct {
	WebhookEvent WebhookEventRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB, opts ...Option) *Repositories {
	return &Repositories{
		WebhookEvent: NewWebhookEventRepository(db, opts...),
	}
}
