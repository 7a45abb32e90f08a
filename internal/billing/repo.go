package billing

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/semanticpdf/semanticpdf-backend/pkg/db/models"
	"github.com/semanticpdf/semanticpdf-backend/pkg/enums"
	pkgerrors "github.com/semanticpdf/semanticpdf-backend/pkg/errors"
)

// ErrStaleRecord is returned by UpdateBillingFields when the row was
// modified between read and write and the compare-and-swap matched nothing.
var ErrStaleRecord = errors.New("billing record modified concurrently")

// BillingWrite is the full target field set persisted after a reconcile.
// All billing columns are written together so a stale snapshot can never
// leave the row half-updated.
type BillingWrite struct {
	Status           enums.SubscriptionStatus
	SubscriptionID   *string
	CurrentPeriodEnd *time.Time
	RemainingCount   int
	ShortURL         *string
}

type Repository interface {
	WithTx(tx *gorm.DB) Repository

	FindUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	FindUserBySubscriptionID(ctx context.Context, subscriptionID string) (*models.User, error)

	// UpdateBillingFields applies w to the user row guarded by the
	// updated_at value read alongside the snapshot. Returns ErrStaleRecord
	// when a concurrent writer got there first.
	UpdateBillingFields(ctx context.Context, userID uuid.UUID, expectedUpdatedAt time.Time, w BillingWrite) error

	// ListUsersForReconciliation returns users holding a gateway
	// subscription that is not already in a terminal state.
	ListUsersForReconciliation(ctx context.Context, limit int) ([]models.User, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "find user by id")
	}
	return &user, nil
}

func (r *repository) FindUserBySubscriptionID(ctx context.Context, subscriptionID string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).First(&user, "subscription_id = ?", subscriptionID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no user holds that subscription")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "find user by subscription id")
	}
	return &user, nil
}

func (r *repository) UpdateBillingFields(ctx context.Context, userID uuid.UUID, expectedUpdatedAt time.Time, w BillingWrite) error {
	res := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ? AND updated_at = ?", userID, expectedUpdatedAt).
		Updates(map[string]any{
			"subscription_status": w.Status,
			"subscription_id":     w.SubscriptionID,
			"current_period_end":  w.CurrentPeriodEnd,
			"remaining_count":     w.RemainingCount,
			"short_url":           w.ShortURL,
			"updated_at":          time.Now().UTC(),
		})
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "update billing fields")
	}
	if res.RowsAffected == 0 {
		return ErrStaleRecord
	}
	return nil
}

func (r *repository) ListUsersForReconciliation(ctx context.Context, limit int) ([]models.User, error) {
	var users []models.User
	err := r.db.WithContext(ctx).
		Where("subscription_id IS NOT NULL").
		Where("NOT (subscription_status = ? AND remaining_count = 0)", enums.SubscriptionStatusCancelled).
		Order("updated_at ASC").
		Limit(limit).
		Find(&users).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list users for reconciliation")
	}
	return users, nil
}
