package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/semanticpdf/semanticpdf-backend/internal/users"
	"github.com/semanticpdf/semanticpdf-backend/pkg/config"
	"github.com/semanticpdf/semanticpdf-backend/pkg/enums"
	pkgerrors "github.com/semanticpdf/semanticpdf-backend/pkg/errors"
	"github.com/semanticpdf/semanticpdf-backend/pkg/outbox"
	"github.com/semanticpdf/semanticpdf-backend/pkg/outbox/payloads"
	"github.com/semanticpdf/semanticpdf-backend/pkg/security"
)

// EnsureAccountInput is the verified identity behind a sign-in callback.
// UserID and Email come from the validated token, never the request body.
type EnsureAccountInput struct {
	UserID uuid.UUID
	Email  string
	Name   string
}

// CallbackService provisions the local account row on first sign-in.
type CallbackService interface {
	EnsureAccount(ctx context.Context, input EnsureAccountInput) (*users.UserDTO, error)
}

// CallbackServiceParams packages the dependencies for the callback flow.
type CallbackServiceParams struct {
	TxRunner        registerTxRunner
	UserRepoFactory func(tx *gorm.DB) registerUserRepository
	Outbox          registerOutbox
	PasswordConfig  config.PasswordConfig
}

type callbackService struct {
	txRunner    registerTxRunner
	userRepoFor func(tx *gorm.DB) registerUserRepository
	outbox      registerOutbox
	passwordCfg config.PasswordConfig
}

// NewCallbackService builds the ensure-account service.
func NewCallbackService(params CallbackServiceParams) (CallbackService, error) {
	if params.TxRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.UserRepoFactory == nil {
		params.UserRepoFactory = func(tx *gorm.DB) registerUserRepository {
			return users.NewRepository(tx)
		}
	}
	return &callbackService{
		txRunner:    params.TxRunner,
		userRepoFor: params.UserRepoFactory,
		outbox:      params.Outbox,
		passwordCfg: params.PasswordConfig,
	}, nil
}

// EnsureAccount returns the account matching the verified identity, creating
// it with no subscription on file when this is the first sign-in. Repeated
// calls are idempotent.
func (s *callbackService) EnsureAccount(ctx context.Context, input EnsureAccountInput) (*users.UserDTO, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email is required")
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		name = email[:strings.Index(email+"@", "@")]
	}

	// Password login is not possible for provisioned accounts until the
	// user sets one, so the stored hash is a random sentinel.
	passwordHash, err := security.HashPassword(randomSecret(), s.passwordCfg)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash placeholder password")
	}

	var account *users.UserDTO
	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		userRepo := s.userRepoFor(tx)

		existing, err := userRepo.FindByEmail(ctx, email)
		if err == nil {
			account = users.FromModel(existing)
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "look up account")
		}

		user, err := userRepo.Create(ctx, users.CreateUserDTO{
			ID:           input.UserID,
			Email:        email,
			PasswordHash: passwordHash,
			Name:         name,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "provision account")
		}
		account = users.FromModel(user)

		if s.outbox == nil {
			return nil
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventUserRegistered,
			AggregateType: enums.AggregateUser,
			AggregateID:   user.ID,
			Actor:         &outbox.ActorRef{UserID: user.ID},
			Data: payloads.UserRegisteredEvent{
				UserID: user.ID,
				Email:  user.Email,
			},
			Version: 1,
		})
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

func randomSecret() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return uuid.NewString() + uuid.NewString()
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}
