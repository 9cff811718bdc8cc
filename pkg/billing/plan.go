package billing

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Feature represents a capability granted by a purchase.
type Feature string

// Money represents a monetary amount in the smallest currency unit.
// For example, $10.99 USD would be Amount: 1099, Currency: "USD".
type Money struct {
	Amount   int64  // Amount in smallest currency unit (cents for USD)
	Currency string // ISO 4217 currency code
}

// Format renders the amount with its currency symbol for display,
// e.g. Money{Amount: 1999, Currency: "USD"} becomes "$19.99". The decimal
// scale comes from the currency, so zero-decimal codes like JPY render the
// amount as-is. Falls back to "19.99 USD" when the code is not recognized,
// assuming two decimals.
func (m Money) Format() string {
	unit, err := currency.ParseISO(m.Currency)
	if err != nil {
		return fmt.Sprintf("%.2f %s", float64(m.Amount)/100, strings.ToUpper(m.Currency))
	}
	scale, _ := currency.Standard.Rounding(unit)
	p := message.NewPrinter(language.English)
	return p.Sprint(currency.Symbol(unit.Amount(float64(m.Amount) / math.Pow10(scale))))
}

// BillingInterval represents how a plan is billed.
type BillingInterval string

const (
	IntervalOneTime BillingInterval = "one_time"
	IntervalMonthly BillingInterval = "monthly"
	IntervalYearly  BillingInterval = "yearly"
)

// Plan describes a purchasable offering and the features it grants.
// Plans are immutable and defined in code; PriceID must match the payment
// provider's price ID so checkout and webhook processing can map back to
// the catalog entry.
type Plan struct {
	PriceID     string
	Name        string
	Description string
	Price       Money
	Interval    BillingInterval
	Features    []Feature
}

// IsOneTime reports whether the plan is a single purchase.
func (p Plan) IsOneTime() bool {
	return p.Interval == IntervalOneTime
}

// IsRecurring reports whether the plan bills on a subscription cycle.
func (p Plan) IsRecurring() bool {
	return p.Interval == IntervalMonthly || p.Interval == IntervalYearly
}

// Catalog holds the ordered set of purchasable plans.
// Lookups are keyed by the provider's price ID.
type Catalog struct {
	plans []Plan
	index map[string]int
}

// NewCatalog builds a catalog from the given plans.
// Returns ErrInvalidCatalog when plans share a price ID, have a non-positive
// amount on a paid entry, or are missing a currency.
func NewCatalog(plans ...Plan) (*Catalog, error) {
	c := &Catalog{
		plans: slices.Clone(plans),
		index: make(map[string]int, len(plans)),
	}

	for i, plan := range c.plans {
		if plan.PriceID == "" {
			return nil, errors.Join(ErrInvalidCatalog, fmt.Errorf("plan %q has no price ID", plan.Name))
		}
		if _, exists := c.index[plan.PriceID]; exists {
			return nil, errors.Join(ErrInvalidCatalog, fmt.Errorf("duplicate price ID %s", plan.PriceID))
		}
		if plan.Price.Amount <= 0 {
			return nil, errors.Join(ErrInvalidCatalog, fmt.Errorf("plan %s has non-positive amount %d", plan.PriceID, plan.Price.Amount))
		}
		if plan.Price.Currency == "" {
			return nil, errors.Join(ErrInvalidCatalog, fmt.Errorf("plan %s has no currency", plan.PriceID))
		}
		c.index[plan.PriceID] = i
	}

	return c, nil
}

// Plans returns the catalog entries in definition order.
func (c *Catalog) Plans() []Plan {
	return slices.Clone(c.plans)
}

// Plan looks up a plan by its provider price ID.
func (c *Catalog) Plan(priceID string) (Plan, bool) {
	i, ok := c.index[priceID]
	if !ok {
		return Plan{}, false
	}
	return c.plans[i], true
}

// FeaturesForPrices returns the union of features across all catalog plans
// whose price ID is in the input. The result is duplicate-free and ordered
// by catalog definition, so the order of inputs never matters.
func (c *Catalog) FeaturesForPrices(priceIDs ...string) []Feature {
	features := make([]Feature, 0)
	for _, plan := range c.plans {
		if !slices.Contains(priceIDs, plan.PriceID) {
			continue
		}
		for _, f := range plan.Features {
			if !slices.Contains(features, f) {
				features = append(features, f)
			}
		}
	}
	return features
}

// SubscriptionFeatures returns the union of features across all recurring
// plans in the catalog. These are the features considered replaceable when
// a subscription changes or lapses.
func (c *Catalog) SubscriptionFeatures() []Feature {
	features := make([]Feature, 0)
	for _, plan := range c.plans {
		if !plan.IsRecurring() {
			continue
		}
		for _, f := range plan.Features {
			if !slices.Contains(features, f) {
				features = append(features, f)
			}
		}
	}
	return features
}

// MergeFeatures recomputes a stored feature set after a subscription change:
// subscription-derived features are stripped and replaced with the features
// of the given subscription prices, while features from one-time purchases
// are carried over untouched. Applying the same merge twice yields the same
// result.
func (c *Catalog) MergeFeatures(stored []Feature, subscriptionPriceIDs ...string) []Feature {
	replaceable := c.SubscriptionFeatures()

	next := make([]Feature, 0, len(stored))
	for _, f := range stored {
		if slices.Contains(replaceable, f) || slices.Contains(next, f) {
			continue
		}
		next = append(next, f)
	}

	for _, f := range c.FeaturesForPrices(subscriptionPriceIDs...) {
		if !slices.Contains(next, f) {
			next = append(next, f)
		}
	}

	return next
}
