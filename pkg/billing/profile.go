package billing

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// SubscriptionStatus mirrors the payment provider's subscription lifecycle.
type SubscriptionStatus string

const (
	StatusTrialing          SubscriptionStatus = "trialing"
	StatusActive            SubscriptionStatus = "active"
	StatusIncomplete        SubscriptionStatus = "incomplete"
	StatusIncompleteExpired SubscriptionStatus = "incomplete_expired"
	StatusPastDue           SubscriptionStatus = "past_due"
	StatusCanceled          SubscriptionStatus = "canceled"
	StatusUnpaid            SubscriptionStatus = "unpaid"
	StatusPaused            SubscriptionStatus = "paused"
)

// IsActive reports whether the status grants access to subscription features.
func (s SubscriptionStatus) IsActive() bool {
	return s == StatusActive || s == StatusTrialing
}

// Profile is the per-user billing record: the provider customer reference,
// the current subscription snapshot, and the accumulated feature set.
//
// The feature set is the union of features from every one-time purchase ever
// made plus the features of the single currently-active subscription's plan.
// It is maintained by the webhook reconciler; rows are created implicitly on
// first purchase and never deleted by this system.
type Profile struct {
	UserID           uuid.UUID
	CustomerID       string // provider's customer ID (cus_xxx), assigned lazily
	SubscriptionID   string // provider's subscription ID (sub_xxx)
	PriceID          string // price ID of the current subscription plan
	Status           SubscriptionStatus
	CurrentPeriodEnd *time.Time
	TrialEndsAt      *time.Time
	Features         []Feature
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// HasFeature reports whether the profile currently holds a feature.
func (p *Profile) HasFeature(f Feature) bool {
	return p != nil && slices.Contains(p.Features, f)
}

// HasActiveSubscription reports whether the profile has a live subscription.
func (p *Profile) HasActiveSubscription() bool {
	return p != nil && p.SubscriptionID != "" && p.Status.IsActive()
}

// IsOnPlan reports whether the profile's active subscription is on the given price.
func (p *Profile) IsOnPlan(priceID string) bool {
	return p.HasActiveSubscription() && p.PriceID == priceID
}
