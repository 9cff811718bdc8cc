package billingweb

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/a-h/templ"

	"github.com/dmitrymomot/billingkit/pkg/billing"
)

// PageData carries everything the billing page renders.
type PageData struct {
	Plans   []billing.Plan
	Profile *billing.Profile

	// HostedCheckout switches the purchase buttons from the embedded payment
	// form to a redirect to the provider-hosted checkout page.
	HostedCheckout bool

	// PublishableKey is exposed to the embedded payment form script.
	PublishableKey string

	// ErrorMessage, when set, is rendered above the plan list.
	ErrorMessage string
}

// Page renders the billing page: current entitlement summary, plan cards,
// and the payment form container or hosted-checkout buttons.
func Page(data PageData) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, `<section class="billing" data-hosted-checkout="`+boolAttr(data.HostedCheckout)+`"`); err != nil {
			return err
		}
		if data.PublishableKey != "" {
			if _, err := fmt.Fprintf(w, ` data-publishable-key="%s"`, templ.EscapeString(data.PublishableKey)); err != nil {
				return err
			}
		}
		if _, err := io.WriteString(w, `>`); err != nil {
			return err
		}

		if data.ErrorMessage != "" {
			if _, err := fmt.Fprintf(w, `<p class="billing-error" role="alert">%s</p>`, templ.EscapeString(data.ErrorMessage)); err != nil {
				return err
			}
		}

		if err := EntitlementSummary(data.Profile).Render(ctx, w); err != nil {
			return err
		}

		if _, err := io.WriteString(w, `<div class="billing-plans">`); err != nil {
			return err
		}
		for _, plan := range data.Plans {
			if err := PlanCard(plan, data.Profile).Render(ctx, w); err != nil {
				return err
			}
		}
		if _, err := io.WriteString(w, `</div>`); err != nil {
			return err
		}

		if !data.HostedCheckout {
			// Mount point for the provider's embedded payment element; the
			// client script feeds it the client secret from the purchase
			// endpoints.
			if _, err := io.WriteString(w, `<div id="payment-element" class="billing-payment" hidden></div>`); err != nil {
				return err
			}
		}

		_, err := io.WriteString(w, `</section>`)
		return err
	})
}

// PlanCard renders a single purchasable plan with its state relative to the
// current profile: owned one-time purchases and the active subscription plan
// are marked, everything else gets a purchase button.
func PlanCard(plan billing.Plan, profile *billing.Profile) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		if _, err := fmt.Fprintf(w, `<article class="plan-card" data-price-id="%s" data-interval="%s">`,
			templ.EscapeString(plan.PriceID), templ.EscapeString(string(plan.Interval))); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, `<h3>%s</h3><p>%s</p><p class="plan-price">%s%s</p>`,
			templ.EscapeString(plan.Name),
			templ.EscapeString(plan.Description),
			templ.EscapeString(plan.Price.Format()),
			intervalSuffix(plan.Interval)); err != nil {
			return err
		}

		if _, err := io.WriteString(w, `<ul class="plan-features">`); err != nil {
			return err
		}
		for _, feature := range plan.Features {
			if _, err := fmt.Fprintf(w, `<li>%s</li>`, templ.EscapeString(string(feature))); err != nil {
				return err
			}
		}
		if _, err := io.WriteString(w, `</ul>`); err != nil {
			return err
		}

		switch {
		case plan.IsOneTime() && ownsAllFeatures(profile, plan):
			if _, err := io.WriteString(w, `<p class="plan-owned">Purchased</p>`); err != nil {
				return err
			}
		case plan.IsRecurring() && profile.IsOnPlan(plan.PriceID):
			if _, err := io.WriteString(w, `<p class="plan-current">Current plan</p>`); err != nil {
				return err
			}
		default:
			if _, err := fmt.Fprintf(w, `<button class="plan-buy" data-price-id="%s">Buy</button>`,
				templ.EscapeString(plan.PriceID)); err != nil {
				return err
			}
		}

		_, err := io.WriteString(w, `</article>`)
		return err
	})
}

// EntitlementSummary renders the profile's subscription state and feature set.
func EntitlementSummary(profile *billing.Profile) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, `<div class="billing-summary">`); err != nil {
			return err
		}

		switch {
		case profile.HasActiveSubscription():
			if _, err := fmt.Fprintf(w, `<p class="billing-status">Subscription: %s</p>`,
				templ.EscapeString(string(profile.Status))); err != nil {
				return err
			}
			if profile.Status == billing.StatusTrialing && profile.TrialEndsAt != nil {
				if _, err := fmt.Fprintf(w, `<p class="billing-trial">Trial ends %s</p>`,
					formatDate(*profile.TrialEndsAt)); err != nil {
					return err
				}
			}
			if profile.CurrentPeriodEnd != nil {
				if _, err := fmt.Fprintf(w, `<p class="billing-renews">Renews %s</p>`,
					formatDate(*profile.CurrentPeriodEnd)); err != nil {
					return err
				}
			}
		default:
			if _, err := io.WriteString(w, `<p class="billing-status">No active subscription</p>`); err != nil {
				return err
			}
		}

		if profile != nil && len(profile.Features) > 0 {
			if _, err := io.WriteString(w, `<ul class="billing-features">`); err != nil {
				return err
			}
			for _, feature := range profile.Features {
				if _, err := fmt.Fprintf(w, `<li>%s</li>`, templ.EscapeString(string(feature))); err != nil {
					return err
				}
			}
			if _, err := io.WriteString(w, `</ul>`); err != nil {
				return err
			}
		}

		_, err := io.WriteString(w, `</div>`)
		return err
	})
}

func ownsAllFeatures(profile *billing.Profile, plan billing.Plan) bool {
	if len(plan.Features) == 0 {
		return false
	}
	for _, f := range plan.Features {
		if !profile.HasFeature(f) {
			return false
		}
	}
	return true
}

func intervalSuffix(interval billing.BillingInterval) string {
	switch interval {
	case billing.IntervalMonthly:
		return "/month"
	case billing.IntervalYearly:
		return "/year"
	default:
		return ""
	}
}

func formatDate(t time.Time) string {
	return t.UTC().Format("Jan 2, 2006")
}

func boolAttr(v bool) string {
	if v {
		return "true"
	}
	return "false"
}
