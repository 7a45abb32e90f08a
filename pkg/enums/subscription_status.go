package enums

import "fmt"

// SubscriptionStatus is the canonical billing state derived from the local
// record and the gateway's view of the subscription.
type SubscriptionStatus string

const (
	SubscriptionStatusActive     SubscriptionStatus = "active"
	SubscriptionStatusUnverified SubscriptionStatus = "unverified"
	SubscriptionStatusInactive   SubscriptionStatus = "inactive"
	SubscriptionStatusCancelled  SubscriptionStatus = "cancelled"
	SubscriptionStatusPastUser   SubscriptionStatus = "past_user"
)

var validSubscriptionStatuses = []SubscriptionStatus{
	SubscriptionStatusActive,
	SubscriptionStatusUnverified,
	SubscriptionStatusInactive,
	SubscriptionStatusCancelled,
	SubscriptionStatusPastUser,
}

// String implements fmt.Stringer.
func (s SubscriptionStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is known.
func (s SubscriptionStatus) IsValid() bool {
	for _, candidate := range validSubscriptionStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsSubscribed reports whether the status grants access to paid features.
// A cancelled subscription keeps access until the paid period runs out.
func (s SubscriptionStatus) IsSubscribed() bool {
	switch s {
	case SubscriptionStatusActive, SubscriptionStatusUnverified, SubscriptionStatusCancelled:
		return true
	default:
		return false
	}
}

// ParseSubscriptionStatus converts raw input into a SubscriptionStatus.
func ParseSubscriptionStatus(value string) (SubscriptionStatus, error) {
	for _, candidate := range validSubscriptionStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid subscription status %q", value)
}
