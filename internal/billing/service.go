package billing

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/semanticpdf/semanticpdf-backend/pkg/config"
	"github.com/semanticpdf/semanticpdf-backend/pkg/enums"
	pkgerrors "github.com/semanticpdf/semanticpdf-backend/pkg/errors"
	"github.com/semanticpdf/semanticpdf-backend/pkg/logger"
	"github.com/semanticpdf/semanticpdf-backend/pkg/metrics"
	"github.com/semanticpdf/semanticpdf-backend/pkg/outbox"
	"github.com/semanticpdf/semanticpdf-backend/pkg/outbox/payloads"
	"github.com/semanticpdf/semanticpdf-backend/pkg/razorpay"
)

// txRunner abstracts db.Client.WithTx so tests can drive transactions
// without a live database.
type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Gateway is the slice of the payment gateway the billing service needs.
type Gateway interface {
	CreateSubscription(ctx context.Context, req razorpay.CreateSubscriptionRequest) (*razorpay.Subscription, error)
	FetchSubscription(ctx context.Context, subscriptionID string) (*razorpay.Subscription, error)
	CancelSubscription(ctx context.Context, subscriptionID string, cancelAtCycleEnd bool) (*razorpay.Subscription, error)
}

type CreateSubscriptionResponse struct {
	SubscriptionID string `json:"subscriptionId"`
	ShortURL       string `json:"shortUrl,omitempty"`
	Status         string `json:"status"`
}

type CancelSubscriptionInput struct {
	SubscriptionID    string `json:"subscriptionId" validate:"required"`
	CancelAtPeriodEnd bool   `json:"cancelAtPeriodEnd"`
}

type CancelSubscriptionResponse struct {
	Status      enums.SubscriptionStatus `json:"status"`
	CancelledAt *time.Time               `json:"cancelledAt,omitempty"`
}

type VerifyCheckoutInput struct {
	SubscriptionID string `json:"subscriptionId" validate:"required"`
	PaymentID      string `json:"paymentId" validate:"required"`
	Signature      string `json:"signature" validate:"required"`
}

type VerifyCheckoutResponse struct {
	Verified bool            `json:"verified"`
	Status   CanonicalStatus `json:"subscription"`
}

type Service interface {
	// Status reconciles the user against the gateway and returns the
	// canonical subscription state. Read path: gateway or persistence
	// trouble degrades to the cached record rather than failing.
	Status(ctx context.Context, userID uuid.UUID) (*CanonicalStatus, error)

	CreateSubscription(ctx context.Context, userID uuid.UUID) (*CreateSubscriptionResponse, error)
	CancelSubscription(ctx context.Context, userID uuid.UUID, input CancelSubscriptionInput) (*CancelSubscriptionResponse, error)
	VerifyCheckout(ctx context.Context, userID uuid.UUID, input VerifyCheckoutInput) (*VerifyCheckoutResponse, error)

	// Reconcile is the write-path variant of Status used by the cron
	// sweep. Persistence failures surface instead of degrading.
	Reconcile(ctx context.Context, userID uuid.UUID) (*CanonicalStatus, error)
}

type ServiceParams struct {
	Repo              Repository
	Gateway           Gateway
	TransactionRunner txRunner
	Outbox            *outbox.Service
	Logger            *logger.Logger
	Metrics           *metrics.ReconcileMetrics
	Razorpay          config.RazorpayConfig
	Now               func() time.Time
}

type service struct {
	repo     Repository
	gateway  Gateway
	txRunner txRunner
	outbox   *outbox.Service
	logg     *logger.Logger
	metrics  *metrics.ReconcileMetrics
	cfg      config.RazorpayConfig
	now      func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, errors.New("billing service requires a repository")
	}
	if params.Gateway == nil {
		return nil, errors.New("billing service requires a gateway client")
	}
	if params.TransactionRunner == nil {
		return nil, errors.New("billing service requires a transaction runner")
	}
	if params.Logger == nil {
		return nil, errors.New("billing service requires a logger")
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		repo:     params.Repo,
		gateway:  params.Gateway,
		txRunner: params.TransactionRunner,
		outbox:   params.Outbox,
		logg:     params.Logger,
		metrics:  params.Metrics,
		cfg:      params.Razorpay,
		now:      now,
	}, nil
}

func (s *service) Status(ctx context.Context, userID uuid.UUID) (*CanonicalStatus, error) {
	canonical, err := s.reconcile(ctx, userID, false)
	if err != nil {
		return nil, err
	}
	return canonical, nil
}

func (s *service) Reconcile(ctx context.Context, userID uuid.UUID) (*CanonicalStatus, error) {
	return s.reconcile(ctx, userID, true)
}

func (s *service) CreateSubscription(ctx context.Context, userID uuid.UUID) (*CreateSubscriptionResponse, error) {
	user, err := s.repo.FindUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	// Cancelled is not a blocker. Starting a fresh subscription is the
	// only way out of it.
	if user.SubscriptionID != nil &&
		(user.SubscriptionStatus == enums.SubscriptionStatusActive ||
			user.SubscriptionStatus == enums.SubscriptionStatusUnverified) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "an active subscription already exists")
	}

	sub, err := s.gateway.CreateSubscription(ctx, razorpay.CreateSubscriptionRequest{
		PlanID:         s.cfg.PlanID,
		TotalCount:     s.cfg.TotalCount,
		Quantity:       1,
		CustomerNotify: 1,
	})
	if err != nil {
		return nil, err
	}

	write := BillingWrite{
		Status:         enums.SubscriptionStatusUnverified,
		SubscriptionID: &sub.ID,
		RemainingCount: sub.RemainingCount,
	}
	if sub.ShortURL != "" {
		write.ShortURL = &sub.ShortURL
	}
	if err := s.persist(ctx, user.ID, user.UpdatedAt, write); err != nil {
		return nil, err
	}

	return &CreateSubscriptionResponse{
		SubscriptionID: sub.ID,
		ShortURL:       sub.ShortURL,
		Status:         sub.Status,
	}, nil
}

func (s *service) CancelSubscription(ctx context.Context, userID uuid.UUID, input CancelSubscriptionInput) (*CancelSubscriptionResponse, error) {
	user, err := s.repo.FindUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.SubscriptionID == nil || *user.SubscriptionID != input.SubscriptionID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "subscription does not belong to this user")
	}

	sub, err := s.gateway.CancelSubscription(ctx, input.SubscriptionID, input.CancelAtPeriodEnd)
	if err != nil {
		var apiErr *razorpay.APIError
		if errors.As(err, &apiErr) {
			// The gateway refused the cancel. Its description is the
			// actionable part, so it goes back to the caller verbatim.
			return nil, pkgerrors.New(pkgerrors.CodeValidation, apiErr.Description)
		}
		return nil, err
	}

	cancelledAt := sub.EndedAtTime()
	write := BillingWrite{
		Status:         enums.SubscriptionStatusCancelled,
		RemainingCount: 0,
	}
	if input.CancelAtPeriodEnd {
		// Deferred cancel keeps the gateway linkage until the paid
		// period runs out. Immediate cancel severs it right away.
		write.SubscriptionID = user.SubscriptionID
		write.CurrentPeriodEnd = user.CurrentPeriodEnd
		write.ShortURL = user.ShortURL
		if end := sub.CurrentEndTime(); end != nil {
			write.CurrentPeriodEnd = end
		}
	}

	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		if txErr := s.repo.WithTx(tx).UpdateBillingFields(ctx, user.ID, user.UpdatedAt, write); txErr != nil {
			return txErr
		}
		if s.outbox == nil {
			return nil
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventSubscriptionCancelled,
			AggregateType: enums.AggregateSubscription,
			AggregateID:   user.ID,
			Actor:         &outbox.ActorRef{UserID: user.ID},
			Data: payloads.SubscriptionCancelledEvent{
				UserID:         user.ID,
				SubscriptionID: input.SubscriptionID,
				CancelledAt:    cancelledAt,
			},
			Version: 1,
		})
	})
	if err != nil {
		if errors.Is(err, ErrStaleRecord) {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "billing record changed, retry the request")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist cancellation")
	}

	return &CancelSubscriptionResponse{
		Status:      enums.SubscriptionStatusCancelled,
		CancelledAt: cancelledAt,
	}, nil
}

func (s *service) VerifyCheckout(ctx context.Context, userID uuid.UUID, input VerifyCheckoutInput) (*VerifyCheckoutResponse, error) {
	user, err := s.repo.FindUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if !razorpay.VerifySubscriptionSignature(s.cfg.KeySecret, input.PaymentID, input.SubscriptionID, input.Signature) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "checkout signature does not match")
	}

	if user.SubscriptionID == nil || *user.SubscriptionID != input.SubscriptionID {
		subID := input.SubscriptionID
		user.SubscriptionID = &subID
		user.SubscriptionStatus = enums.SubscriptionStatusUnverified
	}

	remote, fetchErr := s.gateway.FetchSubscription(ctx, input.SubscriptionID)
	if fetchErr != nil {
		// Signature already proved the checkout. The sweep will settle
		// the rest once the gateway is reachable again.
		s.logg.Warn(s.logg.WithSubscriptionID(ctx, input.SubscriptionID), "gateway unreachable after checkout verification")
		if s.metrics != nil {
			s.metrics.IncGatewayError()
		}
		remote = nil
	}

	canonical, write := DeriveStatus(user, remote, s.now())
	if write == nil {
		// Nothing derived yet, but the subscription id must stick so the
		// sweep can pick the record up.
		write = &BillingWrite{
			Status:           canonical.Status,
			SubscriptionID:   user.SubscriptionID,
			CurrentPeriodEnd: canonical.CurrentPeriodEnd,
			RemainingCount:   canonical.RemainingCount,
			ShortURL:         canonical.ShortURL,
		}
	}

	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		if txErr := s.repo.WithTx(tx).UpdateBillingFields(ctx, user.ID, user.UpdatedAt, *write); txErr != nil {
			return txErr
		}
		if s.outbox == nil || canonical.Status != enums.SubscriptionStatusActive {
			return nil
		}
		return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventSubscriptionActivated,
			AggregateType: enums.AggregateSubscription,
			AggregateID:   user.ID,
			Actor:         &outbox.ActorRef{UserID: user.ID},
			Data: payloads.SubscriptionActivatedEvent{
				UserID:         user.ID,
				SubscriptionID: input.SubscriptionID,
				PlanID:         s.cfg.PlanID,
				ActivatedAt:    s.now(),
			},
			Version: 1,
		})
	})
	if err != nil {
		if errors.Is(err, ErrStaleRecord) {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "billing record changed, retry the request")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist verified checkout")
	}

	return &VerifyCheckoutResponse{Verified: true, Status: canonical}, nil
}

func (s *service) persist(ctx context.Context, userID uuid.UUID, expectedUpdatedAt time.Time, write BillingWrite) error {
	err := s.repo.UpdateBillingFields(ctx, userID, expectedUpdatedAt, write)
	if err != nil {
		if errors.Is(err, ErrStaleRecord) {
			return pkgerrors.New(pkgerrors.CodeConflict, "billing record changed, retry the request")
		}
		return err
	}
	return nil
}
