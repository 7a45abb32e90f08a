package plans

import "github.com/shopspring/decimal"

// Plan captures the local metadata for a subscription tier. The paid tier's
// gateway plan ID comes from configuration, not from this catalog.
type Plan struct {
	ID              string
	Name            string
	PriceAmount     decimal.Decimal
	CurrencyCode    string
	MaxFiles        int
	MaxPagesPerFile int
	Paid            bool
}

var (
	// Free is the default tier for users without an active subscription.
	Free = Plan{
		ID:              "free",
		Name:            "Free",
		PriceAmount:     decimal.Zero,
		CurrencyCode:    "INR",
		MaxFiles:        10,
		MaxPagesPerFile: 5,
		Paid:            false,
	}

	// Pro is the paid monthly tier billed through the gateway.
	Pro = Plan{
		ID:              "pro",
		Name:            "Pro",
		PriceAmount:     decimal.NewFromInt(1200),
		CurrencyCode:    "INR",
		MaxFiles:        50,
		MaxPagesPerFile: 25,
		Paid:            true,
	}
)

// ForSubscribed returns the plan in effect for the given subscription state.
func ForSubscribed(subscribed bool) Plan {
	if subscribed {
		return Pro
	}
	return Free
}

// ByID looks up a plan in the catalog.
func ByID(id string) (Plan, bool) {
	switch id {
	case Free.ID:
		return Free, true
	case Pro.ID:
		return Pro, true
	default:
		return Plan{}, false
	}
}
