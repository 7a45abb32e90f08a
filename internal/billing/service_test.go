package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/semanticpdf/semanticpdf-backend/pkg/config"
	"github.com/semanticpdf/semanticpdf-backend/pkg/db/models"
	"github.com/semanticpdf/semanticpdf-backend/pkg/enums"
	pkgerrors "github.com/semanticpdf/semanticpdf-backend/pkg/errors"
	"github.com/semanticpdf/semanticpdf-backend/pkg/logger"
	"github.com/semanticpdf/semanticpdf-backend/pkg/razorpay"
)

type stubRepo struct {
	user    *models.User
	writes  []BillingWrite
	loadErr error
}

func (s *stubRepo) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubRepo) FindUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	if s.user == nil || s.user.ID != id {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
	}
	copied := *s.user
	return &copied, nil
}

func (s *stubRepo) FindUserBySubscriptionID(ctx context.Context, subscriptionID string) (*models.User, error) {
	if s.user != nil && s.user.SubscriptionID != nil && *s.user.SubscriptionID == subscriptionID {
		copied := *s.user
		return &copied, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no user holds that subscription")
}

func (s *stubRepo) UpdateBillingFields(ctx context.Context, userID uuid.UUID, expectedUpdatedAt time.Time, w BillingWrite) error {
	if s.user == nil || s.user.ID != userID {
		return ErrStaleRecord
	}
	if !s.user.UpdatedAt.Equal(expectedUpdatedAt) {
		return ErrStaleRecord
	}
	s.writes = append(s.writes, w)
	s.user.SubscriptionStatus = w.Status
	s.user.SubscriptionID = w.SubscriptionID
	s.user.CurrentPeriodEnd = w.CurrentPeriodEnd
	s.user.RemainingCount = w.RemainingCount
	s.user.ShortURL = w.ShortURL
	s.user.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *stubRepo) ListUsersForReconciliation(ctx context.Context, limit int) ([]models.User, error) {
	if s.user == nil {
		return nil, nil
	}
	return []models.User{*s.user}, nil
}

type stubGateway struct {
	fetchCalls  int
	fetchSub    *razorpay.Subscription
	fetchErr    error
	createSub   *razorpay.Subscription
	createErr   error
	cancelSub   *razorpay.Subscription
	cancelErr   error
	cancelCalls int
}

func (g *stubGateway) CreateSubscription(ctx context.Context, req razorpay.CreateSubscriptionRequest) (*razorpay.Subscription, error) {
	if g.createErr != nil {
		return nil, g.createErr
	}
	return g.createSub, nil
}

func (g *stubGateway) FetchSubscription(ctx context.Context, subscriptionID string) (*razorpay.Subscription, error) {
	g.fetchCalls++
	if g.fetchErr != nil {
		return nil, g.fetchErr
	}
	return g.fetchSub, nil
}

func (g *stubGateway) CancelSubscription(ctx context.Context, subscriptionID string, cancelAtCycleEnd bool) (*razorpay.Subscription, error) {
	g.cancelCalls++
	if g.cancelErr != nil {
		return nil, g.cancelErr
	}
	return g.cancelSub, nil
}

type stubTxRunner struct{}

func (stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(&gorm.DB{})
}

func newTestService(t *testing.T, repo *stubRepo, gateway *stubGateway, now time.Time) Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Repo:              repo,
		Gateway:           gateway,
		TransactionRunner: stubTxRunner{},
		Logger:            logger.New(logger.Options{Level: zerolog.ErrorLevel, Output: io.Discard}),
		Razorpay: config.RazorpayConfig{
			KeySecret:  "test_secret",
			PlanID:     "plan_pro",
			TotalCount: 12,
		},
		Now: func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("building service: %v", err)
	}
	return svc
}

func signCheckout(secret, paymentID, subscriptionID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(paymentID + "|" + subscriptionID))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestStatusWithoutSubscriptionSkipsGateway(t *testing.T) {
	now := time.Now().UTC()
	repo := &stubRepo{user: localUser(enums.SubscriptionStatusInactive, nil)}
	gateway := &stubGateway{}
	svc := newTestService(t, repo, gateway, now)

	status, err := svc.Status(context.Background(), repo.user.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gateway.fetchCalls != 0 {
		t.Fatalf("no subscription, no gateway call, got %d", gateway.fetchCalls)
	}
	if status.Status != enums.SubscriptionStatusInactive || status.IsSubscribed {
		t.Fatalf("unexpected status %+v", status)
	}
	if len(repo.writes) != 0 {
		t.Fatalf("expected zero writes, got %d", len(repo.writes))
	}
}

func TestStatusUnknownUser(t *testing.T) {
	svc := newTestService(t, &stubRepo{}, &stubGateway{}, time.Now().UTC())

	_, err := svc.Status(context.Background(), uuid.New())
	if err == nil {
		t.Fatal("expected an error for an unknown user")
	}
	if pkgerrors.As(err).Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestStatusGatewayFailureFallsBackToCache(t *testing.T) {
	now := time.Now().UTC()
	end := now.Add(9 * 24 * time.Hour).Truncate(time.Second)

	user := localUser(enums.SubscriptionStatusActive, strPtr("sub_cache"))
	user.CurrentPeriodEnd = timePtr(end)
	user.RemainingCount = 4

	repo := &stubRepo{user: user}
	gateway := &stubGateway{fetchErr: pkgerrors.New(pkgerrors.CodeDependency, "gateway timeout")}
	svc := newTestService(t, repo, gateway, now)

	status, err := svc.Status(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("gateway trouble must not break the read path: %v", err)
	}
	if status.Status != enums.SubscriptionStatusActive {
		t.Fatalf("expected cached active, got %s", status.Status)
	}
	if status.CurrentPeriodEnd == nil || !status.CurrentPeriodEnd.Equal(end) {
		t.Fatalf("expected cached period end, got %v", status.CurrentPeriodEnd)
	}
	if len(repo.writes) != 0 {
		t.Fatalf("fallback must not write, got %d writes", len(repo.writes))
	}
}

func TestStatusReconcilesUnverifiedToActiveOnce(t *testing.T) {
	now := time.Now().UTC()
	end := now.Add(25 * 24 * time.Hour).Truncate(time.Second)

	repo := &stubRepo{user: localUser(enums.SubscriptionStatusUnverified, strPtr("sub_1"))}
	gateway := &stubGateway{fetchSub: &razorpay.Subscription{
		ID:             "sub_1",
		Status:         razorpay.GatewayStatusActive,
		CurrentEnd:     epochPtr(end),
		RemainingCount: 11,
		ShortURL:       "https://rzp.io/i/abc",
	}}
	svc := newTestService(t, repo, gateway, now)

	first, err := svc.Status(context.Background(), repo.user.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.Status != enums.SubscriptionStatusActive {
		t.Fatalf("expected active, got %s", first.Status)
	}
	if len(repo.writes) != 1 {
		t.Fatalf("expected exactly one write, got %d", len(repo.writes))
	}

	second, err := svc.Status(context.Background(), repo.user.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.Status != enums.SubscriptionStatusActive {
		t.Fatalf("expected active, got %s", second.Status)
	}
	if len(repo.writes) != 1 {
		t.Fatalf("second reconcile of an unchanged subscription must not write, got %d", len(repo.writes))
	}
}

func TestStatusExpiryClearsBillingFields(t *testing.T) {
	now := time.Now().UTC()

	user := localUser(enums.SubscriptionStatusActive, strPtr("sub_2"))
	user.CurrentPeriodEnd = timePtr(now.Add(-72 * time.Hour))
	user.RemainingCount = 6

	repo := &stubRepo{user: user}
	gateway := &stubGateway{fetchSub: &razorpay.Subscription{
		ID:         "sub_2",
		Status:     razorpay.GatewayStatusActive,
		CurrentEnd: epochPtr(now.Add(-time.Hour)),
	}}
	svc := newTestService(t, repo, gateway, now)

	status, err := svc.Status(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status.Status != enums.SubscriptionStatusInactive || status.IsSubscribed {
		t.Fatalf("expected inactive, got %+v", status)
	}
	if len(repo.writes) != 1 {
		t.Fatalf("expected one clearing write, got %d", len(repo.writes))
	}
	if repo.user.SubscriptionID != nil || repo.user.CurrentPeriodEnd != nil || repo.user.RemainingCount != 0 {
		t.Fatalf("billing fields must be cleared, got %+v", repo.user)
	}
}

func TestStatusTerminalCancelledSkipsGateway(t *testing.T) {
	now := time.Now().UTC()

	user := localUser(enums.SubscriptionStatusCancelled, strPtr("sub_3"))
	user.RemainingCount = 0

	repo := &stubRepo{user: user}
	gateway := &stubGateway{}
	svc := newTestService(t, repo, gateway, now)

	status, err := svc.Status(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gateway.fetchCalls != 0 {
		t.Fatalf("terminal record must not hit the gateway, got %d calls", gateway.fetchCalls)
	}
	if status.Status != enums.SubscriptionStatusCancelled {
		t.Fatalf("expected cancelled to stick, got %s", status.Status)
	}
	if len(repo.writes) != 0 {
		t.Fatalf("expected zero writes, got %d", len(repo.writes))
	}
}

func TestVerifyCheckoutRejectsBadSignature(t *testing.T) {
	now := time.Now().UTC()
	repo := &stubRepo{user: localUser(enums.SubscriptionStatusInactive, nil)}
	gateway := &stubGateway{}
	svc := newTestService(t, repo, gateway, now)

	_, err := svc.VerifyCheckout(context.Background(), repo.user.ID, VerifyCheckoutInput{
		SubscriptionID: "sub_new",
		PaymentID:      "pay_1",
		Signature:      "deadbeef",
	})
	if err == nil {
		t.Fatal("expected signature rejection")
	}
	if pkgerrors.As(err).Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(repo.writes) != 0 {
		t.Fatalf("rejected signature must not write, got %d writes", len(repo.writes))
	}
	if gateway.fetchCalls != 0 {
		t.Fatal("rejected signature must not hit the gateway")
	}
}

func TestVerifyCheckoutActivatesSubscription(t *testing.T) {
	now := time.Now().UTC()
	end := now.Add(29 * 24 * time.Hour).Truncate(time.Second)

	repo := &stubRepo{user: localUser(enums.SubscriptionStatusInactive, nil)}
	gateway := &stubGateway{fetchSub: &razorpay.Subscription{
		ID:             "sub_new",
		Status:         razorpay.GatewayStatusActive,
		CurrentEnd:     epochPtr(end),
		RemainingCount: 12,
	}}
	svc := newTestService(t, repo, gateway, now)

	resp, err := svc.VerifyCheckout(context.Background(), repo.user.ID, VerifyCheckoutInput{
		SubscriptionID: "sub_new",
		PaymentID:      "pay_1",
		Signature:      signCheckout("test_secret", "pay_1", "sub_new"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.Verified {
		t.Fatal("expected verified response")
	}
	if resp.Status.Status != enums.SubscriptionStatusActive {
		t.Fatalf("expected active after verification, got %s", resp.Status.Status)
	}
	if repo.user.SubscriptionID == nil || *repo.user.SubscriptionID != "sub_new" {
		t.Fatalf("subscription id must be persisted, got %+v", repo.user.SubscriptionID)
	}
}

func TestVerifyCheckoutSurvivesGatewayOutage(t *testing.T) {
	now := time.Now().UTC()
	repo := &stubRepo{user: localUser(enums.SubscriptionStatusInactive, nil)}
	gateway := &stubGateway{fetchErr: pkgerrors.New(pkgerrors.CodeDependency, "gateway down")}
	svc := newTestService(t, repo, gateway, now)

	resp, err := svc.VerifyCheckout(context.Background(), repo.user.ID, VerifyCheckoutInput{
		SubscriptionID: "sub_new",
		PaymentID:      "pay_1",
		Signature:      signCheckout("test_secret", "pay_1", "sub_new"),
	})
	if err != nil {
		t.Fatalf("verified checkout must not fail on gateway outage: %v", err)
	}
	if resp.Status.Status != enums.SubscriptionStatusUnverified {
		t.Fatalf("expected unverified until the sweep settles it, got %s", resp.Status.Status)
	}
	if repo.user.SubscriptionID == nil || *repo.user.SubscriptionID != "sub_new" {
		t.Fatal("subscription id must be persisted even without gateway confirmation")
	}
}

func TestCancelSubscriptionPassesGatewayRefusalThrough(t *testing.T) {
	now := time.Now().UTC()
	user := localUser(enums.SubscriptionStatusActive, strPtr("sub_1"))
	repo := &stubRepo{user: user}
	gateway := &stubGateway{cancelErr: &razorpay.APIError{
		StatusCode:  400,
		Code:        "BAD_REQUEST_ERROR",
		Description: "Subscription is not cancellable in expired status.",
	}}
	svc := newTestService(t, repo, gateway, now)

	_, err := svc.CancelSubscription(context.Background(), user.ID, CancelSubscriptionInput{SubscriptionID: "sub_1"})
	if err == nil {
		t.Fatal("expected the gateway refusal to surface")
	}
	typed := pkgerrors.As(err)
	if typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if typed.Message() != "Subscription is not cancellable in expired status." {
		t.Fatalf("gateway description must pass through, got %q", typed.Message())
	}
	if len(repo.writes) != 0 {
		t.Fatalf("refused cancel must not write, got %d writes", len(repo.writes))
	}
}

func TestCancelSubscriptionRequiresOwnership(t *testing.T) {
	now := time.Now().UTC()
	user := localUser(enums.SubscriptionStatusActive, strPtr("sub_mine"))
	repo := &stubRepo{user: user}
	gateway := &stubGateway{}
	svc := newTestService(t, repo, gateway, now)

	_, err := svc.CancelSubscription(context.Background(), user.ID, CancelSubscriptionInput{SubscriptionID: "sub_theirs"})
	if err == nil {
		t.Fatal("expected ownership check to fail")
	}
	if pkgerrors.As(err).Code() != pkgerrors.CodeForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if gateway.cancelCalls != 0 {
		t.Fatal("ownership failure must not reach the gateway")
	}
}

func TestCancelSubscriptionPersistsCancelledState(t *testing.T) {
	now := time.Now().UTC()
	end := now.Add(14 * 24 * time.Hour).Truncate(time.Second)
	endedAt := now.Truncate(time.Second)

	user := localUser(enums.SubscriptionStatusActive, strPtr("sub_1"))
	user.CurrentPeriodEnd = timePtr(end)
	user.RemainingCount = 5

	repo := &stubRepo{user: user}
	gateway := &stubGateway{cancelSub: &razorpay.Subscription{
		ID:         "sub_1",
		Status:     razorpay.GatewayStatusCancelled,
		CurrentEnd: epochPtr(end),
		EndedAt:    epochPtr(endedAt),
	}}
	svc := newTestService(t, repo, gateway, now)

	resp, err := svc.CancelSubscription(context.Background(), user.ID, CancelSubscriptionInput{
		SubscriptionID:    "sub_1",
		CancelAtPeriodEnd: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Status != enums.SubscriptionStatusCancelled {
		t.Fatalf("expected cancelled, got %s", resp.Status)
	}
	if repo.user.SubscriptionStatus != enums.SubscriptionStatusCancelled {
		t.Fatalf("cancelled state must persist, got %s", repo.user.SubscriptionStatus)
	}
	if repo.user.RemainingCount != 0 {
		t.Fatalf("cancel must zero remaining charges, got %d", repo.user.RemainingCount)
	}
	if repo.user.CurrentPeriodEnd == nil || !repo.user.CurrentPeriodEnd.Equal(end) {
		t.Fatal("paid period end must survive the cancel")
	}
}

func TestCreateSubscriptionStoresGatewayHandle(t *testing.T) {
	now := time.Now().UTC()
	repo := &stubRepo{user: localUser(enums.SubscriptionStatusInactive, nil)}
	gateway := &stubGateway{createSub: &razorpay.Subscription{
		ID:             "sub_new",
		Status:         razorpay.GatewayStatusCreated,
		RemainingCount: 12,
		ShortURL:       "https://rzp.io/i/pay",
	}}
	svc := newTestService(t, repo, gateway, now)

	resp, err := svc.CreateSubscription(context.Background(), repo.user.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.SubscriptionID != "sub_new" || resp.ShortURL != "https://rzp.io/i/pay" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if repo.user.SubscriptionStatus != enums.SubscriptionStatusUnverified {
		t.Fatalf("fresh subscription must start unverified, got %s", repo.user.SubscriptionStatus)
	}
	if repo.user.SubscriptionID == nil || *repo.user.SubscriptionID != "sub_new" {
		t.Fatal("gateway handle must be stored")
	}
}

func TestCancelSubscriptionImmediateClearsGatewayLink(t *testing.T) {
	now := time.Now().UTC()
	end := now.Add(20 * 24 * time.Hour).Truncate(time.Second)

	user := localUser(enums.SubscriptionStatusActive, strPtr("sub_1"))
	user.CurrentPeriodEnd = timePtr(end)
	user.ShortURL = strPtr("https://rzp.io/i/pay")
	user.RemainingCount = 7

	repo := &stubRepo{user: user}
	gateway := &stubGateway{cancelSub: &razorpay.Subscription{
		ID:      "sub_1",
		Status:  razorpay.GatewayStatusCancelled,
		EndedAt: epochPtr(now.Truncate(time.Second)),
	}}
	svc := newTestService(t, repo, gateway, now)

	resp, err := svc.CancelSubscription(context.Background(), user.ID, CancelSubscriptionInput{
		SubscriptionID:    "sub_1",
		CancelAtPeriodEnd: false,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Status != enums.SubscriptionStatusCancelled {
		t.Fatalf("expected cancelled, got %s", resp.Status)
	}
	if repo.user.SubscriptionID != nil {
		t.Fatal("immediate cancel must drop the gateway handle")
	}
	if repo.user.CurrentPeriodEnd != nil || repo.user.ShortURL != nil {
		t.Fatal("immediate cancel must clear period end and checkout link")
	}
	if repo.user.RemainingCount != 0 {
		t.Fatalf("cancel must zero remaining charges, got %d", repo.user.RemainingCount)
	}
}

func TestCreateSubscriptionAllowsRestartAfterCancel(t *testing.T) {
	now := time.Now().UTC()
	user := localUser(enums.SubscriptionStatusCancelled, strPtr("sub_old"))
	user.RemainingCount = 0

	repo := &stubRepo{user: user}
	gateway := &stubGateway{createSub: &razorpay.Subscription{
		ID:             "sub_new",
		Status:         razorpay.GatewayStatusCreated,
		RemainingCount: 12,
	}}
	svc := newTestService(t, repo, gateway, now)

	resp, err := svc.CreateSubscription(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("cancelled user must be able to start over: %v", err)
	}
	if resp.SubscriptionID != "sub_new" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if repo.user.SubscriptionID == nil || *repo.user.SubscriptionID != "sub_new" {
		t.Fatal("new gateway handle must replace the cancelled one")
	}
	if repo.user.SubscriptionStatus != enums.SubscriptionStatusUnverified {
		t.Fatalf("fresh subscription must start unverified, got %s", repo.user.SubscriptionStatus)
	}
}

func TestCreateSubscriptionRejectsDoubleSubscribe(t *testing.T) {
	now := time.Now().UTC()
	user := localUser(enums.SubscriptionStatusActive, strPtr("sub_live"))
	repo := &stubRepo{user: user}
	svc := newTestService(t, repo, &stubGateway{}, now)

	_, err := svc.CreateSubscription(context.Background(), user.ID)
	if err == nil {
		t.Fatal("expected conflict for an already subscribed user")
	}
	if pkgerrors.As(err).Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
}
