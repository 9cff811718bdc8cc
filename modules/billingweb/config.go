package billingweb

import (
	"github.com/dmitrymomot/billingkit/pkg/billing"
)

// Feature flags granted by the default catalog.
const (
	FeatureContentPack billing.Feature = "content_pack"
	FeatureProContent  billing.Feature = "pro_content"
)

// Config holds the billing page settings, loadable from the environment.
// The three price IDs must match prices configured with the payment provider.
type Config struct {
	OneTimePriceID string `env:"BILLING_PRICE_ONE_TIME,required"`
	MonthlyPriceID string `env:"BILLING_PRICE_MONTHLY,required"`
	YearlyPriceID  string `env:"BILLING_PRICE_YEARLY,required"`

	// HostedCheckout selects the provider-hosted checkout page instead of the
	// embedded payment form.
	HostedCheckout bool `env:"BILLING_HOSTED_CHECKOUT" envDefault:"false"`

	PortalReturnURL      string `env:"BILLING_PORTAL_RETURN_URL,required"`
	CheckoutSuccessURL   string `env:"BILLING_CHECKOUT_SUCCESS_URL" envDefault:"/billing?status=success"`
	CheckoutCancelURL    string `env:"BILLING_CHECKOUT_CANCEL_URL" envDefault:"/billing?status=cancelled"`
	StripePublishableKey string `env:"STRIPE_PUBLISHABLE_KEY"`
}

// DefaultCatalog builds the standard three-plan catalog from configured
// price IDs: a one-time content pack and a monthly/yearly pro subscription.
func DefaultCatalog(cfg Config) (*billing.Catalog, error) {
	return billing.NewCatalog(
		billing.Plan{
			PriceID:     cfg.OneTimePriceID,
			Name:        "Content Pack",
			Description: "Lifetime access to the content pack.",
			Price:       billing.Money{Amount: 1900, Currency: "USD"},
			Interval:    billing.IntervalOneTime,
			Features:    []billing.Feature{FeatureContentPack},
		},
		billing.Plan{
			PriceID:     cfg.MonthlyPriceID,
			Name:        "Pro Monthly",
			Description: "All pro content, billed monthly.",
			Price:       billing.Money{Amount: 900, Currency: "USD"},
			Interval:    billing.IntervalMonthly,
			Features:    []billing.Feature{FeatureProContent},
		},
		billing.Plan{
			PriceID:     cfg.YearlyPriceID,
			Name:        "Pro Yearly",
			Description: "All pro content, billed yearly.",
			Price:       billing.Money{Amount: 9000, Currency: "USD"},
			Interval:    billing.IntervalYearly,
			Features:    []billing.Feature{FeatureProContent},
		},
	)
}
