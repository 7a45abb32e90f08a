package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/semanticpdf/semanticpdf-backend/pkg/enums"
)

// User is the canonical identity entity and also carries the locally
// persisted billing record for that identity. UpdatedAt doubles as the
// compare-and-swap token for concurrent billing writes.
type User struct {
	ID           uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Email        string    `gorm:"type:text;not null;uniqueIndex"`
	PasswordHash string    `gorm:"column:password_hash;not null"`
	Name         string    `gorm:"column:name;not null"`

	SubscriptionStatus enums.SubscriptionStatus `gorm:"column:subscription_status;type:subscription_status_enum;not null;default:'inactive'"`
	SubscriptionID     *string                  `gorm:"column:subscription_id"`
	PlanID             *string                  `gorm:"column:plan_id"`
	CustomerID         *string                  `gorm:"column:customer_id"`
	CurrentPeriodEnd   *time.Time               `gorm:"column:current_period_end"`
	RemainingCount     int                      `gorm:"column:remaining_count;not null;default:0"`
	ShortURL           *string                  `gorm:"column:short_url"`

	LastLoginAt *time.Time `gorm:"column:last_login_at"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
