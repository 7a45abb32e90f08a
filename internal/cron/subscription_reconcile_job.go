package cron

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/semanticpdf/semanticpdf-backend/internal/billing"
	"github.com/semanticpdf/semanticpdf-backend/pkg/db/models"
	"github.com/semanticpdf/semanticpdf-backend/pkg/logger"
)

const defaultReconcileBatch = 100

// SubscriptionReconcileJobParams configure the billing sweep job.
type SubscriptionReconcileJobParams struct {
	Logger      *logger.Logger
	BillingRepo billingReader
	Billing     billingReconciler
	BatchSize   int
}

type billingReader interface {
	ListUsersForReconciliation(ctx context.Context, limit int) ([]models.User, error)
}

type billingReconciler interface {
	Reconcile(ctx context.Context, userID uuid.UUID) (*billing.CanonicalStatus, error)
}

// NewSubscriptionReconcileJob builds the job that sweeps every user with a
// live gateway subscription and settles their billing record.
func NewSubscriptionReconcileJob(params SubscriptionReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.BillingRepo == nil {
		return nil, fmt.Errorf("billing repository required")
	}
	if params.Billing == nil {
		return nil, fmt.Errorf("billing reconciler required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultReconcileBatch
	}
	return &subscriptionReconcileJob{
		logg:    params.Logger,
		repo:    params.BillingRepo,
		billing: params.Billing,
		batch:   batch,
	}, nil
}

type subscriptionReconcileJob struct {
	logg    *logger.Logger
	repo    billingReader
	billing billingReconciler
	batch   int
}

func (j *subscriptionReconcileJob) Name() string { return "subscription-reconcile" }

func (j *subscriptionReconcileJob) Run(ctx context.Context) error {
	candidates, err := j.repo.ListUsersForReconciliation(ctx, j.batch)
	if err != nil {
		return fmt.Errorf("list users for reconciliation: %w", err)
	}

	var errs error
	synced := 0
	for i := range candidates {
		userCtx := j.logg.WithUserID(ctx, candidates[i].ID.String())
		if _, err := j.billing.Reconcile(userCtx, candidates[i].ID); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("reconcile user %s: %w", candidates[i].ID, err))
			continue
		}
		synced++
	}

	reportCtx := j.logg.WithFields(ctx, map[string]any{
		"candidates": len(candidates),
		"synced":     synced,
	})
	j.logg.Info(reportCtx, "subscription reconcile sweep complete")
	return errs
}
