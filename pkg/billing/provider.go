package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// PaymentProvider defines the payment-provider surface the kit depends on.
// The abstraction keeps the SDK out of the service and reconciler so they can
// be tested against mocks and another provider could slot in later.
//
// Implementations must verify webhook signatures in ParseWebhook before
// returning any event data.
type PaymentProvider interface {
	// CreateCustomer creates a provider customer for the user and returns its ID.
	// The user ID is attached as metadata so provider records can be traced back.
	CreateCustomer(ctx context.Context, userID uuid.UUID, email string) (string, error)

	// GetPrice fetches the authoritative price definition from the provider.
	GetPrice(ctx context.Context, priceID string) (*Price, error)

	// CreatePaymentIntent creates a one-time payable intent and returns the
	// client-side confirmation token.
	CreatePaymentIntent(ctx context.Context, req PaymentIntentRequest) (*PaymentToken, error)

	// CreateSubscription creates a subscription that stays incomplete until the
	// first invoice is paid, returning the invoice's confirmation token.
	CreateSubscription(ctx context.Context, customerID, priceID string) (*PaymentToken, error)

	// CancelAtPeriodEnd marks a subscription to end when the paid period runs out
	// and returns the effective cancellation date.
	CancelAtPeriodEnd(ctx context.Context, subscriptionID string) (time.Time, error)

	// ChangeSubscriptionPrice swaps the subscription's line item to the new
	// price with prorated billing.
	ChangeSubscriptionPrice(ctx context.Context, subscriptionID, newPriceID string) error

	// CreatePortalSession returns a provider-hosted management URL.
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error)

	// CreateCheckoutSession returns a provider-hosted checkout URL.
	CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (string, error)

	// GetPaymentIntent fetches a payment intent, used when a checkout session
	// completes and the underlying purchase has to be resolved.
	GetPaymentIntent(ctx context.Context, id string) (*PaymentIntentInfo, error)

	// GetSubscription fetches the current subscription state from the provider.
	GetSubscription(ctx context.Context, id string) (*SubscriptionState, error)

	// ParseWebhook verifies the payload signature and normalizes the event.
	// Returns ErrSignatureVerification when the signature is missing or wrong.
	ParseWebhook(payload []byte, signature string) (*Event, error)
}

// Price is the provider's authoritative price definition.
type Price struct {
	ID        string
	Amount    int64  // smallest currency unit
	Currency  string // ISO 4217, upper case
	Recurring bool
}

// PaymentIntentRequest describes a one-time charge to create.
type PaymentIntentRequest struct {
	CustomerID string
	PriceID    string // attached as metadata for webhook reconciliation
	Amount     int64
	Currency   string
}

// PaymentToken carries the client-side confirmation secret for a payment.
// SubscriptionID is set only for subscription checkouts.
type PaymentToken struct {
	ClientSecret    string
	PaymentIntentID string
	SubscriptionID  string
}

// CheckoutSessionRequest describes a hosted checkout session to create.
type CheckoutSessionRequest struct {
	CustomerID string
	PriceID    string
	Recurring  bool
	SuccessURL string
	CancelURL  string
}

// PaymentIntentInfo is the subset of a payment intent the reconciler needs.
type PaymentIntentInfo struct {
	ID         string
	CustomerID string
	PriceID    string // from intent metadata
}

// SubscriptionState is the provider-neutral subscription snapshot.
type SubscriptionState struct {
	ID                string
	CustomerID        string
	Status            SubscriptionStatus
	PriceIDs          []string
	CurrentPeriodEnd  *time.Time
	TrialEndsAt       *time.Time
	CancelAtPeriodEnd bool
}

// EventType is the normalized billing event type.
// Provider implementations map their specific event names to these.
type EventType string

const (
	EventPaymentSucceeded    EventType = "payment_succeeded"
	EventSubscriptionUpdated EventType = "subscription_updated"
	EventSubscriptionDeleted EventType = "subscription_deleted"
	EventCheckoutCompleted   EventType = "checkout_completed"
	EventIgnored             EventType = "ignored"
)

// Event is a normalized webhook event from the payment provider.
// Subscription is populated when the provider event carried the full
// subscription object; otherwise SubscriptionID is set and the reconciler
// resolves the state through the provider.
type Event struct {
	ID              string // provider's event ID
	Type            EventType
	ProviderType    string // original provider event name
	CustomerID      string
	PriceID         string // one-time purchase price (payment events)
	PaymentIntentID string
	SubscriptionID  string
	Subscription    *SubscriptionState
}
