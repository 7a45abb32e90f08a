package users

import (
	"time"

	"github.com/google/uuid"

	"github.com/semanticpdf/semanticpdf-backend/pkg/db/models"
	"github.com/semanticpdf/semanticpdf-backend/pkg/enums"
)

// UserDTO is the transport shape that omits sensitive credentials.
type UserDTO struct {
	ID                 uuid.UUID                `json:"id"`
	Email              string                   `json:"email"`
	Name               string                   `json:"name"`
	SubscriptionStatus enums.SubscriptionStatus `json:"subscription_status"`
	IsSubscribed       bool                     `json:"is_subscribed"`
	LastLoginAt        *time.Time               `json:"last_login_at,omitempty"`
	CreatedAt          time.Time                `json:"created_at"`
	UpdatedAt          time.Time                `json:"updated_at"`
}

// CreateUserDTO holds the data required by the repo to persist a new user.
// ID may be set when the identity comes from an already-minted token.
type CreateUserDTO struct {
	ID           uuid.UUID
	Email        string
	PasswordHash string
	Name         string
}

func FromModel(u *models.User) *UserDTO {
	if u == nil {
		return nil
	}
	return &UserDTO{
		ID:                 u.ID,
		Email:              u.Email,
		Name:               u.Name,
		SubscriptionStatus: u.SubscriptionStatus,
		IsSubscribed:       u.SubscriptionStatus.IsSubscribed() && u.SubscriptionID != nil,
		LastLoginAt:        u.LastLoginAt,
		CreatedAt:          u.CreatedAt,
		UpdatedAt:          u.UpdatedAt,
	}
}

func (c CreateUserDTO) ToModel() *models.User {
	return &models.User{
		ID:                 c.ID,
		Email:              c.Email,
		PasswordHash:       c.PasswordHash,
		Name:               c.Name,
		SubscriptionStatus: enums.SubscriptionStatusInactive,
	}
}
