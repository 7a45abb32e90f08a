package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/semanticpdf/semanticpdf-backend/pkg/enums"
)

// SubscriptionActivatedEvent is emitted when a checkout signature verifies and
// the subscription becomes billable.
type SubscriptionActivatedEvent struct {
	UserID         uuid.UUID `json:"user_id"`
	SubscriptionID string    `json:"subscription_id"`
	PlanID         string    `json:"plan_id"`
	ActivatedAt    time.Time `json:"activated_at"`
}

// SubscriptionCancelledEvent is emitted when a user cancels at the gateway.
type SubscriptionCancelledEvent struct {
	UserID         uuid.UUID  `json:"user_id"`
	SubscriptionID string     `json:"subscription_id"`
	CancelledAt    *time.Time `json:"cancelled_at,omitempty"`
}

// SubscriptionExpiredEvent is emitted when reconciliation detects the paid
// period has run out.
type SubscriptionExpiredEvent struct {
	UserID         uuid.UUID                `json:"user_id"`
	SubscriptionID string                   `json:"subscription_id"`
	FinalStatus    enums.SubscriptionStatus `json:"final_status"`
	ExpiredAt      time.Time                `json:"expired_at"`
}

// FileIngestedEvent is emitted when a PDF finishes embedding.
type FileIngestedEvent struct {
	FileID     uuid.UUID `json:"file_id"`
	UserID     uuid.UUID `json:"user_id"`
	ChunkCount int       `json:"chunk_count"`
	PageCount  int       `json:"page_count"`
}

// FileIngestFailedEvent is emitted when ingestion gives up on a PDF.
type FileIngestFailedEvent struct {
	FileID uuid.UUID `json:"file_id"`
	UserID uuid.UUID `json:"user_id"`
	Reason string    `json:"reason"`
}

// UserRegisteredEvent is emitted once per new account.
type UserRegisteredEvent struct {
	UserID uuid.UUID `json:"user_id"`
	Email  string    `json:"email"`
}
