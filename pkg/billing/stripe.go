package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	stripe "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

// StripeConfig holds configuration for the Stripe payment provider.
type StripeConfig struct {
	SecretKey     string `env:"STRIPE_SECRET_KEY,required"`
	WebhookSecret string `env:"STRIPE_WEBHOOK_SECRET,required"`
}

// StripeProvider implements PaymentProvider for Stripe.
type StripeProvider struct {
	api           *client.API
	webhookSecret string
}

// NewStripeProvider creates a Stripe payment provider.
func NewStripeProvider(cfg StripeConfig) (*StripeProvider, error) {
	if cfg.SecretKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.WebhookSecret == "" {
		return nil, ErrMissingWebhookSecret
	}

	api := &client.API{}
	api.Init(cfg.SecretKey, nil)

	return &StripeProvider{
		api:           api,
		webhookSecret: cfg.WebhookSecret,
	}, nil
}

// CreateCustomer creates a Stripe customer tagged with the internal user ID.
func (p *StripeProvider) CreateCustomer(ctx context.Context, userID uuid.UUID, email string) (string, error) {
	params := &stripe.CustomerParams{
		Params: stripe.Params{Context: ctx},
	}
	if email != "" {
		params.Email = stripe.String(email)
	}
	params.AddMetadata("user_id", userID.String())

	cus, err := p.api.Customers.New(params)
	if err != nil {
		return "", fmt.Errorf("create stripe customer: %w", err)
	}
	return cus.ID, nil
}

// GetPrice fetches the authoritative price definition from Stripe.
func (p *StripeProvider) GetPrice(ctx context.Context, priceID string) (*Price, error) {
	price, err := p.api.Prices.Get(priceID, &stripe.PriceParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		return nil, fmt.Errorf("get stripe price %s: %w", priceID, err)
	}

	return &Price{
		ID:        price.ID,
		Amount:    price.UnitAmount,
		Currency:  strings.ToUpper(string(price.Currency)),
		Recurring: price.Type == stripe.PriceTypeRecurring,
	}, nil
}

// CreatePaymentIntent creates a one-time payable intent. The price ID travels
// in metadata so the webhook reconciler can map the payment to catalog features.
func (p *StripeProvider) CreatePaymentIntent(ctx context.Context, req PaymentIntentRequest) (*PaymentToken, error) {
	params := &stripe.PaymentIntentParams{
		Params:   stripe.Params{Context: ctx},
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(strings.ToLower(req.Currency)),
		Customer: stripe.String(req.CustomerID),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.AddMetadata("price_id", req.PriceID)

	intent, err := p.api.PaymentIntents.New(params)
	if err != nil {
		return nil, fmt.Errorf("create stripe payment intent: %w", err)
	}

	return &PaymentToken{
		ClientSecret:    intent.ClientSecret,
		PaymentIntentID: intent.ID,
	}, nil
}

// CreateSubscription creates a subscription in default_incomplete mode with the
// first invoice's payment intent expanded, so the caller gets a confirmation
// token to complete payment client-side.
func (p *StripeProvider) CreateSubscription(ctx context.Context, customerID, priceID string) (*PaymentToken, error) {
	params := &stripe.SubscriptionParams{
		Params:   stripe.Params{Context: ctx},
		Customer: stripe.String(customerID),
		Items: []*stripe.SubscriptionItemsParams{
			{Price: stripe.String(priceID)},
		},
		PaymentBehavior: stripe.String("default_incomplete"),
		PaymentSettings: &stripe.SubscriptionPaymentSettingsParams{
			SaveDefaultPaymentMethod: stripe.String("on_subscription"),
		},
	}
	params.AddExpand("latest_invoice.payment_intent")

	sub, err := p.api.Subscriptions.New(params)
	if err != nil {
		return nil, fmt.Errorf("create stripe subscription: %w", err)
	}

	token := &PaymentToken{SubscriptionID: sub.ID}
	if sub.LatestInvoice != nil && sub.LatestInvoice.PaymentIntent != nil {
		token.ClientSecret = sub.LatestInvoice.PaymentIntent.ClientSecret
		token.PaymentIntentID = sub.LatestInvoice.PaymentIntent.ID
	}
	if token.ClientSecret == "" {
		return nil, errors.New("stripe subscription has no payment intent to confirm")
	}

	return token, nil
}

// CancelAtPeriodEnd marks the subscription to end with the current period.
func (p *StripeProvider) CancelAtPeriodEnd(ctx context.Context, subscriptionID string) (time.Time, error) {
	sub, err := p.api.Subscriptions.Update(subscriptionID, &stripe.SubscriptionParams{
		Params:            stripe.Params{Context: ctx},
		CancelAtPeriodEnd: stripe.Bool(true),
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("cancel stripe subscription %s: %w", subscriptionID, err)
	}
	return time.Unix(sub.CurrentPeriodEnd, 0).UTC(), nil
}

// ChangeSubscriptionPrice swaps the single line item to the new price with prorations.
func (p *StripeProvider) ChangeSubscriptionPrice(ctx context.Context, subscriptionID, newPriceID string) error {
	sub, err := p.api.Subscriptions.Get(subscriptionID, &stripe.SubscriptionParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		return fmt.Errorf("get stripe subscription %s: %w", subscriptionID, err)
	}
	if sub.Items == nil || len(sub.Items.Data) == 0 {
		return fmt.Errorf("stripe subscription %s has no items", subscriptionID)
	}

	_, err = p.api.Subscriptions.Update(subscriptionID, &stripe.SubscriptionParams{
		Params: stripe.Params{Context: ctx},
		Items: []*stripe.SubscriptionItemsParams{
			{
				ID:    stripe.String(sub.Items.Data[0].ID),
				Price: stripe.String(newPriceID),
			},
		},
		ProrationBehavior: stripe.String("create_prorations"),
	})
	if err != nil {
		return fmt.Errorf("update stripe subscription %s: %w", subscriptionID, err)
	}
	return nil
}

// CreatePortalSession returns a Stripe-hosted billing portal URL.
func (p *StripeProvider) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	sess, err := p.api.BillingPortalSessions.New(&stripe.BillingPortalSessionParams{
		Params:    stripe.Params{Context: ctx},
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	})
	if err != nil {
		return "", fmt.Errorf("create stripe portal session: %w", err)
	}
	return sess.URL, nil
}

// CreateCheckoutSession returns a Stripe-hosted checkout URL.
func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (string, error) {
	mode := stripe.CheckoutSessionModePayment
	if req.Recurring {
		mode = stripe.CheckoutSessionModeSubscription
	}

	params := &stripe.CheckoutSessionParams{
		Params:   stripe.Params{Context: ctx},
		Mode:     stripe.String(string(mode)),
		Customer: stripe.String(req.CustomerID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(req.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
	}

	sess, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("create stripe checkout session: %w", err)
	}
	return sess.URL, nil
}

// GetPaymentIntent fetches a payment intent and its reconciliation metadata.
func (p *StripeProvider) GetPaymentIntent(ctx context.Context, id string) (*PaymentIntentInfo, error) {
	intent, err := p.api.PaymentIntents.Get(id, &stripe.PaymentIntentParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		return nil, fmt.Errorf("get stripe payment intent %s: %w", id, err)
	}

	info := &PaymentIntentInfo{
		ID:      intent.ID,
		PriceID: intent.Metadata["price_id"],
	}
	if intent.Customer != nil {
		info.CustomerID = intent.Customer.ID
	}
	return info, nil
}

// GetSubscription fetches the current subscription state from Stripe.
func (p *StripeProvider) GetSubscription(ctx context.Context, id string) (*SubscriptionState, error) {
	sub, err := p.api.Subscriptions.Get(id, &stripe.SubscriptionParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		return nil, fmt.Errorf("get stripe subscription %s: %w", id, err)
	}
	return subscriptionState(sub), nil
}

// ParseWebhook verifies the Stripe signature and normalizes the event.
func (p *StripeProvider) ParseWebhook(payload []byte, signature string) (*Event, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, p.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, errors.Join(ErrSignatureVerification, err)
	}

	normalized := &Event{
		ID:           event.ID,
		ProviderType: string(event.Type),
	}

	switch string(event.Type) {
	case "payment_intent.succeeded":
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return nil, fmt.Errorf("decode payment_intent event: %w", err)
		}
		normalized.Type = EventPaymentSucceeded
		normalized.PaymentIntentID = intent.ID
		normalized.PriceID = intent.Metadata["price_id"]
		if intent.Customer != nil {
			normalized.CustomerID = intent.Customer.ID
		}

	case "invoice.paid":
		var invoice stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
			return nil, fmt.Errorf("decode invoice event: %w", err)
		}
		// An invoice payment means the associated subscription advanced;
		// the reconciler resolves the fresh state through the provider.
		normalized.Type = EventSubscriptionUpdated
		if invoice.Subscription != nil {
			normalized.SubscriptionID = invoice.Subscription.ID
		}
		if invoice.Customer != nil {
			normalized.CustomerID = invoice.Customer.ID
		}
		if normalized.SubscriptionID == "" {
			normalized.Type = EventIgnored
		}

	case "customer.subscription.created", "customer.subscription.updated":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("decode subscription event: %w", err)
		}
		normalized.Type = EventSubscriptionUpdated
		normalized.SubscriptionID = sub.ID
		normalized.Subscription = subscriptionState(&sub)
		normalized.CustomerID = normalized.Subscription.CustomerID

	case "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("decode subscription event: %w", err)
		}
		normalized.Type = EventSubscriptionDeleted
		normalized.SubscriptionID = sub.ID
		normalized.Subscription = subscriptionState(&sub)
		normalized.CustomerID = normalized.Subscription.CustomerID

	case "checkout.session.completed":
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return nil, fmt.Errorf("decode checkout.session event: %w", err)
		}
		normalized.Type = EventCheckoutCompleted
		if sess.PaymentIntent != nil {
			normalized.PaymentIntentID = sess.PaymentIntent.ID
		}
		if sess.Subscription != nil {
			normalized.SubscriptionID = sess.Subscription.ID
		}
		if sess.Customer != nil {
			normalized.CustomerID = sess.Customer.ID
		}

	default:
		normalized.Type = EventIgnored
	}

	return normalized, nil
}

// subscriptionState maps a Stripe subscription to the provider-neutral snapshot.
func subscriptionState(sub *stripe.Subscription) *SubscriptionState {
	state := &SubscriptionState{
		ID:                sub.ID,
		Status:            SubscriptionStatus(sub.Status),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
	}
	if sub.Customer != nil {
		state.CustomerID = sub.Customer.ID
	}
	if sub.Items != nil {
		for _, item := range sub.Items.Data {
			if item.Price != nil && item.Price.ID != "" {
				state.PriceIDs = append(state.PriceIDs, item.Price.ID)
			}
		}
	}
	if sub.CurrentPeriodEnd > 0 {
		t := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
		state.CurrentPeriodEnd = &t
	}
	if sub.TrialEnd > 0 {
		t := time.Unix(sub.TrialEnd, 0).UTC()
		state.TrialEndsAt = &t
	}
	return state
}
