package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/semanticpdf/semanticpdf-backend/internal/billing"
	"github.com/semanticpdf/semanticpdf-backend/pkg/db/models"
	"github.com/semanticpdf/semanticpdf-backend/pkg/enums"
)

type stubBillingReader struct {
	users []models.User
	err   error
	limit int
}

func (s *stubBillingReader) ListUsersForReconciliation(ctx context.Context, limit int) ([]models.User, error) {
	s.limit = limit
	if s.err != nil {
		return nil, s.err
	}
	return s.users, nil
}

type stubReconciler struct {
	calls   []uuid.UUID
	failFor map[uuid.UUID]error
}

func (s *stubReconciler) Reconcile(ctx context.Context, userID uuid.UUID) (*billing.CanonicalStatus, error) {
	s.calls = append(s.calls, userID)
	if err, ok := s.failFor[userID]; ok {
		return nil, err
	}
	return &billing.CanonicalStatus{Status: enums.SubscriptionStatusActive}, nil
}

func subscribedUser() models.User {
	return models.User{ID: uuid.New(), SubscriptionStatus: enums.SubscriptionStatusActive}
}

func TestReconcileJobSweepsEveryCandidate(t *testing.T) {
	users := []models.User{subscribedUser(), subscribedUser(), subscribedUser()}
	reader := &stubBillingReader{users: users}
	reconciler := &stubReconciler{}
	job, err := NewSubscriptionReconcileJob(SubscriptionReconcileJobParams{
		Logger:      testLogger(),
		BillingRepo: reader,
		Billing:     reconciler,
		BatchSize:   50,
	})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if reader.limit != 50 {
		t.Fatalf("expected batch size 50, got %d", reader.limit)
	}
	if len(reconciler.calls) != 3 {
		t.Fatalf("expected 3 reconciles, got %d", len(reconciler.calls))
	}
}

func TestReconcileJobContinuesPastFailures(t *testing.T) {
	users := []models.User{subscribedUser(), subscribedUser(), subscribedUser()}
	reconciler := &stubReconciler{
		failFor: map[uuid.UUID]error{users[1].ID: errors.New("gateway down")},
	}
	job, err := NewSubscriptionReconcileJob(SubscriptionReconcileJobParams{
		Logger:      testLogger(),
		BillingRepo: &stubBillingReader{users: users},
		Billing:     reconciler,
	})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}

	runErr := job.Run(context.Background())
	if runErr == nil {
		t.Fatal("expected the failed user to surface in the job error")
	}
	if len(multierr.Errors(runErr)) != 1 {
		t.Fatalf("expected one accumulated error, got %v", runErr)
	}
	if len(reconciler.calls) != 3 {
		t.Fatalf("one failure must not stop the sweep, reconciled %d", len(reconciler.calls))
	}
}

func TestReconcileJobSurfacesListFailure(t *testing.T) {
	job, err := NewSubscriptionReconcileJob(SubscriptionReconcileJobParams{
		Logger:      testLogger(),
		BillingRepo: &stubBillingReader{err: errors.New("db down")},
		Billing:     &stubReconciler{},
	})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected list failure to surface")
	}
}
