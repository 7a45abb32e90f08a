package billing

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/semanticpdf/semanticpdf-backend/pkg/db/models"
	"github.com/semanticpdf/semanticpdf-backend/pkg/enums"
	pkgerrors "github.com/semanticpdf/semanticpdf-backend/pkg/errors"
	"github.com/semanticpdf/semanticpdf-backend/pkg/outbox"
	"github.com/semanticpdf/semanticpdf-backend/pkg/outbox/payloads"
	"github.com/semanticpdf/semanticpdf-backend/pkg/razorpay"
)

// reconcile loads the local record, asks the gateway for the live
// subscription when one exists, and persists the derived state if the
// record drifted. strict controls how persistence failures are handled:
// the cron sweep wants them surfaced, the read path wants the computed
// status back regardless.
func (s *service) reconcile(ctx context.Context, userID uuid.UUID, strict bool) (*CanonicalStatus, error) {
	user, err := s.repo.FindUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithUserID(ctx, user.ID.String())

	remote := s.fetchRemote(logCtx, user)
	canonical, write := DeriveStatus(user, remote, s.now())

	if s.metrics != nil {
		s.metrics.IncOutcome(canonical.Status.String())
	}

	if write == nil {
		return &canonical, nil
	}

	expired := canonical.Status == enums.SubscriptionStatusInactive &&
		user.SubscriptionStatus != enums.SubscriptionStatusInactive

	persistErr := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		if txErr := s.repo.WithTx(tx).UpdateBillingFields(ctx, user.ID, user.UpdatedAt, *write); txErr != nil {
			return txErr
		}
		if !expired || s.outbox == nil || user.SubscriptionID == nil {
			return nil
		}
		return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventSubscriptionExpired,
			AggregateType: enums.AggregateSubscription,
			AggregateID:   user.ID,
			Data: payloads.SubscriptionExpiredEvent{
				UserID:         user.ID,
				SubscriptionID: *user.SubscriptionID,
				FinalStatus:    canonical.Status,
				ExpiredAt:      s.now(),
			},
			Version: 1,
		})
	})
	if persistErr != nil {
		if errors.Is(persistErr, ErrStaleRecord) {
			// Someone else reconciled this record first. Their write is
			// at least as fresh as ours, so the derived status stands.
			if s.metrics != nil {
				s.metrics.IncStaleWrite()
			}
			s.logg.Warn(logCtx, "billing record reconciled concurrently, skipping write")
			return &canonical, nil
		}
		if strict {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, persistErr, "persist reconciled billing state")
		}
		s.logg.Error(logCtx, "persist reconciled billing state", persistErr)
		return &canonical, nil
	}

	return &canonical, nil
}

// fetchRemote pulls the live subscription for users that hold one. Any
// gateway failure degrades to the cached record rather than breaking the
// caller.
func (s *service) fetchRemote(ctx context.Context, user *models.User) *razorpay.Subscription {
	if user.SubscriptionID == nil {
		return nil
	}
	// Terminal records are never refreshed, so skip the round trip.
	if user.SubscriptionStatus == enums.SubscriptionStatusCancelled && user.RemainingCount == 0 {
		return nil
	}
	remote, err := s.gateway.FetchSubscription(ctx, *user.SubscriptionID)
	if err != nil {
		if s.metrics != nil {
			s.metrics.IncGatewayError()
		}
		s.logg.Warn(s.logg.WithSubscriptionID(ctx, *user.SubscriptionID), "gateway fetch failed, serving cached billing state")
		return nil
	}
	return remote
}
