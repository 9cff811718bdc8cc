package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"
)

// Reconciler applies normalized provider events to the profile store.
// Updates are keyed by the provider's customer ID through the store's admin
// path, since webhook requests carry no end-user session. Applying the same
// event twice yields identical stored state.
type Reconciler struct {
	catalog  *Catalog
	provider PaymentProvider
	store    ProfileStore
	log      *slog.Logger
}

// NewReconciler creates a webhook reconciler.
// Panics if catalog, provider, or store is nil to fail fast during initialization.
func NewReconciler(catalog *Catalog, provider PaymentProvider, store ProfileStore, log *slog.Logger) *Reconciler {
	if catalog == nil {
		panic("billing: Catalog is required")
	}
	if provider == nil {
		panic("billing: PaymentProvider is required")
	}
	if store == nil {
		panic("billing: ProfileStore is required")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Reconciler{
		catalog:  catalog,
		provider: provider,
		store:    store,
		log:      log,
	}
}

// Apply dispatches a single event to the matching handler.
// Errors bubble up to the webhook handler, which responds 500 so the provider
// re-delivers the event later.
func (r *Reconciler) Apply(ctx context.Context, event *Event) error {
	switch event.Type {
	case EventPaymentSucceeded:
		return r.applyPayment(ctx, event.CustomerID, event.PriceID)

	case EventSubscriptionUpdated:
		state := event.Subscription
		if state == nil {
			if event.SubscriptionID == "" {
				return fmt.Errorf("subscription event %s carries no subscription", event.ID)
			}
			resolved, err := r.provider.GetSubscription(ctx, event.SubscriptionID)
			if err != nil {
				return errors.Join(ErrProviderFailure, err)
			}
			state = resolved
		}
		return r.applySubscription(ctx, state, state.PriceIDs)

	case EventSubscriptionDeleted:
		if event.Subscription == nil {
			return fmt.Errorf("subscription event %s carries no subscription", event.ID)
		}
		// Recompute with no subscription prices: subscription features are
		// stripped, one-time purchase features survive.
		return r.applySubscription(ctx, event.Subscription, nil)

	case EventCheckoutCompleted:
		return r.applyCheckout(ctx, event)

	default:
		r.log.InfoContext(ctx, "billing event ignored",
			slog.String("event_id", event.ID),
			slog.String("provider_type", event.ProviderType))
		return nil
	}
}

// applyPayment unions the purchased price's features into the stored set.
// One-time purchase grants are additive and permanent.
func (r *Reconciler) applyPayment(ctx context.Context, customerID, priceID string) error {
	profile, err := r.getProfile(ctx, customerID)
	if err != nil {
		return err
	}

	for _, f := range r.catalog.FeaturesForPrices(priceID) {
		if !slices.Contains(profile.Features, f) {
			profile.Features = append(profile.Features, f)
		}
	}
	profile.UpdatedAt = time.Now().UTC()

	if err := r.store.Save(ctx, profile); err != nil {
		return errors.Join(ErrStoreFailure, err)
	}

	r.log.InfoContext(ctx, "one-time purchase reconciled",
		slog.String("customer_id", customerID),
		slog.String("price_id", priceID))
	return nil
}

// applySubscription stores the subscription snapshot and recomputes the
// feature set from the given subscription prices.
func (r *Reconciler) applySubscription(ctx context.Context, state *SubscriptionState, priceIDs []string) error {
	profile, err := r.getProfile(ctx, state.CustomerID)
	if err != nil {
		return err
	}

	profile.SubscriptionID = state.ID
	profile.Status = state.Status
	profile.CurrentPeriodEnd = state.CurrentPeriodEnd
	profile.TrialEndsAt = state.TrialEndsAt
	profile.PriceID = ""
	if len(priceIDs) > 0 {
		profile.PriceID = priceIDs[0]
	}
	profile.Features = r.catalog.MergeFeatures(profile.Features, priceIDs...)
	profile.UpdatedAt = time.Now().UTC()

	if err := r.store.Save(ctx, profile); err != nil {
		return errors.Join(ErrStoreFailure, err)
	}

	r.log.InfoContext(ctx, "subscription reconciled",
		slog.String("customer_id", state.CustomerID),
		slog.String("subscription_id", state.ID),
		slog.String("status", string(state.Status)))
	return nil
}

// applyCheckout resolves the purchase behind a completed checkout session and
// dispatches to the payment or subscription handler.
func (r *Reconciler) applyCheckout(ctx context.Context, event *Event) error {
	if event.SubscriptionID != "" {
		state, err := r.provider.GetSubscription(ctx, event.SubscriptionID)
		if err != nil {
			return errors.Join(ErrProviderFailure, err)
		}
		return r.applySubscription(ctx, state, state.PriceIDs)
	}

	if event.PaymentIntentID != "" {
		intent, err := r.provider.GetPaymentIntent(ctx, event.PaymentIntentID)
		if err != nil {
			return errors.Join(ErrProviderFailure, err)
		}
		customerID := intent.CustomerID
		if customerID == "" {
			customerID = event.CustomerID
		}
		return r.applyPayment(ctx, customerID, intent.PriceID)
	}

	r.log.WarnContext(ctx, "checkout session carries no purchase",
		slog.String("event_id", event.ID))
	return nil
}

// getProfile loads the profile by customer reference. A missing profile is an
// error: the provider's retry re-delivers the event once the purchase action
// has persisted the customer reference.
func (r *Reconciler) getProfile(ctx context.Context, customerID string) (*Profile, error) {
	if customerID == "" {
		return nil, errors.New("event carries no customer reference")
	}

	profile, err := r.store.GetByCustomerID(ctx, customerID)
	if err != nil {
		if errors.Is(err, ErrProfileNotFound) {
			return nil, fmt.Errorf("%w: customer %s", ErrProfileNotFound, customerID)
		}
		return nil, errors.Join(ErrStoreFailure, err)
	}
	return profile, nil
}
