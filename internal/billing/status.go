package billing

import (
	"time"

	"github.com/semanticpdf/semanticpdf-backend/pkg/db/models"
	"github.com/semanticpdf/semanticpdf-backend/pkg/enums"
	"github.com/semanticpdf/semanticpdf-backend/pkg/razorpay"
)

// billingCycle is the length of one paid period. Projections for prepaid
// cycles extend the current period end by this much per remaining charge.
const billingCycle = 30 * 24 * time.Hour

// CanonicalStatus is the single source of truth for a user's subscription
// state, derived from the local record and, when reachable, the gateway.
type CanonicalStatus struct {
	Status             enums.SubscriptionStatus `json:"status"`
	SubscriptionID     *string                  `json:"subscriptionId,omitempty"`
	CurrentPeriodEnd   *time.Time               `json:"currentPeriodEnd,omitempty"`
	ProjectedPeriodEnd *time.Time               `json:"projectedPeriodEnd,omitempty"`
	ShortURL           *string                  `json:"shortUrl,omitempty"`
	RemainingCount     int                      `json:"remainingCount"`
	IsSubscribed       bool                     `json:"isSubscribed"`
}

// DeriveStatus computes the canonical status for a user and, when the local
// record has drifted from the gateway, the write that brings it back in
// line. A nil write means the record is already current and nothing should
// touch the row.
//
// remote is nil when the user has no gateway subscription or the gateway
// could not be reached. In both cases the local record stands as-is.
func DeriveStatus(local *models.User, remote *razorpay.Subscription, now time.Time) (CanonicalStatus, *BillingWrite) {
	canonical := canonicalFromLocal(local)

	// A cancelled subscription with no charges left never comes back.
	// Whatever the gateway reports afterwards is ignored.
	if local.SubscriptionStatus == enums.SubscriptionStatusCancelled && local.RemainingCount == 0 {
		return canonical, nil
	}

	if local.SubscriptionID == nil || remote == nil {
		return canonical, nil
	}

	currentEnd := remote.CurrentEndTime()

	// An elapsed period means the subscription is over regardless of what
	// the gateway claims the status is.
	if currentEnd != nil && currentEnd.Before(now) {
		canonical = CanonicalStatus{
			Status:         enums.SubscriptionStatusInactive,
			RemainingCount: 0,
			IsSubscribed:   false,
		}
		return canonical, &BillingWrite{
			Status:           enums.SubscriptionStatusInactive,
			SubscriptionID:   nil,
			CurrentPeriodEnd: nil,
			RemainingCount:   0,
			ShortURL:         nil,
		}
	}

	status := enums.SubscriptionStatusUnverified
	if currentEnd != nil {
		status = enums.SubscriptionStatusActive
	}

	shortURL := local.ShortURL
	if remote.ShortURL != "" {
		shortURL = &remote.ShortURL
	}

	canonical = CanonicalStatus{
		Status:         status,
		SubscriptionID: local.SubscriptionID,
		RemainingCount: remote.RemainingCount,
		ShortURL:       shortURL,
		IsSubscribed:   status.IsSubscribed(),
	}
	if currentEnd != nil {
		canonical.CurrentPeriodEnd = currentEnd
		canonical.ProjectedPeriodEnd = projectPeriodEnd(currentEnd, remote.RemainingCount)
	} else {
		// No confirmed charge yet, so the locally known period end (if
		// any) remains the best available answer.
		canonical.CurrentPeriodEnd = local.CurrentPeriodEnd
		canonical.ProjectedPeriodEnd = projectPeriodEnd(local.CurrentPeriodEnd, remote.RemainingCount)
	}

	if !isStale(local, canonical) {
		return canonical, nil
	}
	return canonical, &BillingWrite{
		Status:           canonical.Status,
		SubscriptionID:   canonical.SubscriptionID,
		CurrentPeriodEnd: canonical.CurrentPeriodEnd,
		RemainingCount:   canonical.RemainingCount,
		ShortURL:         canonical.ShortURL,
	}
}

// canonicalFromLocal echoes the stored record without consulting the
// gateway. Used when there is nothing to reconcile against.
func canonicalFromLocal(local *models.User) CanonicalStatus {
	status := local.SubscriptionStatus
	if !status.IsValid() {
		status = enums.SubscriptionStatusInactive
	}
	canonical := CanonicalStatus{
		Status:           status,
		SubscriptionID:   local.SubscriptionID,
		CurrentPeriodEnd: local.CurrentPeriodEnd,
		ShortURL:         local.ShortURL,
		RemainingCount:   local.RemainingCount,
		IsSubscribed:     status.IsSubscribed(),
	}
	if local.SubscriptionID == nil {
		canonical.IsSubscribed = false
	}
	canonical.ProjectedPeriodEnd = projectPeriodEnd(local.CurrentPeriodEnd, local.RemainingCount)
	return canonical
}

// isStale reports whether the stored record no longer matches what the
// gateway told us. Only a stale record is written back, which keeps a
// second reconcile of an unchanged subscription write-free.
func isStale(local *models.User, canonical CanonicalStatus) bool {
	if local.SubscriptionStatus != canonical.Status {
		return true
	}
	if !timesEqual(local.CurrentPeriodEnd, canonical.CurrentPeriodEnd) {
		return true
	}
	if local.RemainingCount != canonical.RemainingCount {
		return true
	}
	if !stringsEqual(local.ShortURL, canonical.ShortURL) {
		return true
	}
	return false
}

func projectPeriodEnd(currentEnd *time.Time, remaining int) *time.Time {
	if currentEnd == nil {
		return nil
	}
	projected := currentEnd.Add(time.Duration(remaining) * billingCycle)
	return &projected
}

func timesEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func stringsEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
