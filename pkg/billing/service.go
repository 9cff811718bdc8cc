package billing

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/billingkit/pkg/session"
)

// Service defines the server-side billing actions.
// Every action resolves the authenticated user from the context; a missing
// session surfaces as ErrNotAuthenticated, and provider or store failures
// come back as wrapped error values. Nothing is retried internally.
type Service interface {
	// Plans returns the plan catalog in definition order.
	Plans() []Plan

	// GetProfile returns the stored billing snapshot for the current user.
	GetProfile(ctx context.Context) (*Profile, error)

	// CreatePaymentIntent starts a one-time purchase of the given plan and
	// returns the client-side confirmation token.
	CreatePaymentIntent(ctx context.Context, priceID string) (*PaymentToken, error)

	// CreateSubscription starts a subscription to the given recurring plan,
	// incomplete until the first invoice is paid.
	CreateSubscription(ctx context.Context, priceID string) (*PaymentToken, error)

	// CancelSubscription marks the current subscription to cancel at period
	// end and returns the effective cancellation date.
	CancelSubscription(ctx context.Context) (time.Time, error)

	// ChangeSubscriptionPlan swaps the current subscription to a different
	// recurring plan with prorated billing.
	ChangeSubscriptionPlan(ctx context.Context, newPriceID string) error

	// CreatePortalSession returns a provider-hosted management URL.
	CreatePortalSession(ctx context.Context, returnURL string) (string, error)

	// CreateCheckoutSession returns a provider-hosted checkout URL for the
	// given plan, in payment or subscription mode per the plan's interval.
	CreateCheckoutSession(ctx context.Context, priceID, successURL, cancelURL string) (string, error)
}

// UserInfo identifies the authenticated user behind a billing action.
type UserInfo struct {
	ID    uuid.UUID
	Email string
}

// UserResolver resolves the authenticated user from the request context.
type UserResolver func(ctx context.Context) (UserInfo, error)

// SessionUserResolver resolves the user from the session in context.
// This is the default resolver.
func SessionUserResolver(ctx context.Context) (UserInfo, error) {
	sess, ok := session.FromContext(ctx)
	if !ok || !sess.IsAuthenticated() || sess.IsExpired() {
		return UserInfo{}, ErrNotAuthenticated
	}
	return UserInfo{ID: *sess.UserID}, nil
}

type service struct {
	catalog  *Catalog
	provider PaymentProvider
	store    ProfileStore
	resolver UserResolver
	log      *slog.Logger
}

// NewService creates a billing Service.
// Panics if catalog, provider, or store is nil to fail fast during
// initialization. Optional settings are configured via ServiceOption.
func NewService(catalog *Catalog, provider PaymentProvider, store ProfileStore, opts ...ServiceOption) Service {
	if catalog == nil {
		panic("billing: Catalog is required")
	}
	if provider == nil {
		panic("billing: PaymentProvider is required")
	}
	if store == nil {
		panic("billing: ProfileStore is required")
	}

	s := &service{
		catalog:  catalog,
		provider: provider,
		store:    store,
		resolver: SessionUserResolver,
		log:      slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *service) Plans() []Plan {
	return s.catalog.Plans()
}

func (s *service) GetProfile(ctx context.Context) (*Profile, error) {
	user, err := s.resolver(ctx)
	if err != nil {
		return nil, err
	}

	profile, err := s.store.Get(ctx, user.ID)
	if err != nil {
		if errors.Is(err, ErrProfileNotFound) {
			return nil, err
		}
		return nil, errors.Join(ErrStoreFailure, err)
	}
	return profile, nil
}

func (s *service) CreatePaymentIntent(ctx context.Context, priceID string) (*PaymentToken, error) {
	user, err := s.resolver(ctx)
	if err != nil {
		return nil, err
	}

	plan, ok := s.catalog.Plan(priceID)
	if !ok {
		return nil, ErrPlanNotFound
	}
	if !plan.IsOneTime() {
		return nil, ErrInvalidPlanSelection
	}

	profile, err := s.ensureCustomer(ctx, user)
	if err != nil {
		return nil, err
	}

	// The provider's price definition is authoritative; a mismatch with the
	// catalog means the environment points at the wrong price.
	price, err := s.provider.GetPrice(ctx, priceID)
	if err != nil {
		return nil, errors.Join(ErrProviderFailure, err)
	}
	if price.Recurring || price.Currency != plan.Price.Currency || price.Amount != plan.Price.Amount {
		return nil, ErrPriceMismatch
	}

	token, err := s.provider.CreatePaymentIntent(ctx, PaymentIntentRequest{
		CustomerID: profile.CustomerID,
		PriceID:    priceID,
		Amount:     price.Amount,
		Currency:   price.Currency,
	})
	if err != nil {
		return nil, errors.Join(ErrProviderFailure, err)
	}

	s.log.InfoContext(ctx, "payment intent created",
		slog.String("user_id", user.ID.String()),
		slog.String("price_id", priceID))

	return token, nil
}

func (s *service) CreateSubscription(ctx context.Context, priceID string) (*PaymentToken, error) {
	user, err := s.resolver(ctx)
	if err != nil {
		return nil, err
	}

	plan, ok := s.catalog.Plan(priceID)
	if !ok {
		return nil, ErrPlanNotFound
	}
	if !plan.IsRecurring() {
		return nil, ErrInvalidPlanSelection
	}

	profile, err := s.ensureCustomer(ctx, user)
	if err != nil {
		return nil, err
	}

	token, err := s.provider.CreateSubscription(ctx, profile.CustomerID, priceID)
	if err != nil {
		return nil, errors.Join(ErrProviderFailure, err)
	}

	s.log.InfoContext(ctx, "subscription created",
		slog.String("user_id", user.ID.String()),
		slog.String("price_id", priceID),
		slog.String("subscription_id", token.SubscriptionID))

	return token, nil
}

func (s *service) CancelSubscription(ctx context.Context) (time.Time, error) {
	user, err := s.resolver(ctx)
	if err != nil {
		return time.Time{}, err
	}

	profile, err := s.getProfileForUser(ctx, user.ID)
	if err != nil {
		return time.Time{}, err
	}
	if profile == nil || profile.SubscriptionID == "" {
		return time.Time{}, ErrNoSubscription
	}

	// The stored snapshot is updated by the subsequent
	// customer.subscription.updated webhook, not here.
	endsAt, err := s.provider.CancelAtPeriodEnd(ctx, profile.SubscriptionID)
	if err != nil {
		return time.Time{}, errors.Join(ErrProviderFailure, err)
	}

	s.log.InfoContext(ctx, "subscription cancellation scheduled",
		slog.String("user_id", user.ID.String()),
		slog.Time("ends_at", endsAt))

	return endsAt, nil
}

func (s *service) ChangeSubscriptionPlan(ctx context.Context, newPriceID string) error {
	user, err := s.resolver(ctx)
	if err != nil {
		return err
	}

	plan, ok := s.catalog.Plan(newPriceID)
	if !ok {
		return ErrPlanNotFound
	}
	if !plan.IsRecurring() {
		return ErrInvalidPlanSelection
	}

	profile, err := s.getProfileForUser(ctx, user.ID)
	if err != nil {
		return err
	}
	if profile == nil || profile.SubscriptionID == "" {
		return ErrNoSubscription
	}
	if profile.PriceID == newPriceID {
		return ErrAlreadyOnPlan
	}
	if !profile.Status.IsActive() {
		return ErrSubscriptionNotActive
	}

	if err := s.provider.ChangeSubscriptionPrice(ctx, profile.SubscriptionID, newPriceID); err != nil {
		return errors.Join(ErrProviderFailure, err)
	}

	s.log.InfoContext(ctx, "subscription plan changed",
		slog.String("user_id", user.ID.String()),
		slog.String("price_id", newPriceID))

	return nil
}

func (s *service) CreatePortalSession(ctx context.Context, returnURL string) (string, error) {
	user, err := s.resolver(ctx)
	if err != nil {
		return "", err
	}

	profile, err := s.getProfileForUser(ctx, user.ID)
	if err != nil {
		return "", err
	}
	if profile == nil || profile.CustomerID == "" {
		return "", ErrNoCustomer
	}

	url, err := s.provider.CreatePortalSession(ctx, profile.CustomerID, returnURL)
	if err != nil {
		return "", errors.Join(ErrProviderFailure, err)
	}
	return url, nil
}

func (s *service) CreateCheckoutSession(ctx context.Context, priceID, successURL, cancelURL string) (string, error) {
	user, err := s.resolver(ctx)
	if err != nil {
		return "", err
	}

	plan, ok := s.catalog.Plan(priceID)
	if !ok {
		return "", ErrPlanNotFound
	}

	profile, err := s.ensureCustomer(ctx, user)
	if err != nil {
		return "", err
	}

	url, err := s.provider.CreateCheckoutSession(ctx, CheckoutSessionRequest{
		CustomerID: profile.CustomerID,
		PriceID:    priceID,
		Recurring:  plan.IsRecurring(),
		SuccessURL: successURL,
		CancelURL:  cancelURL,
	})
	if err != nil {
		return "", errors.Join(ErrProviderFailure, err)
	}
	return url, nil
}

// getProfileForUser loads the profile, mapping absence to a nil profile so
// callers can report the action-specific error.
func (s *service) getProfileForUser(ctx context.Context, userID uuid.UUID) (*Profile, error) {
	profile, err := s.store.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrProfileNotFound) {
			return nil, nil
		}
		return nil, errors.Join(ErrStoreFailure, err)
	}
	return profile, nil
}

// ensureCustomer loads or implicitly creates the user's profile and lazily
// assigns a provider customer, persisting the reference before any charge is
// created so webhook events can always be keyed back to the profile.
func (s *service) ensureCustomer(ctx context.Context, user UserInfo) (*Profile, error) {
	now := time.Now().UTC()

	profile, err := s.store.Get(ctx, user.ID)
	switch {
	case errors.Is(err, ErrProfileNotFound):
		profile = &Profile{UserID: user.ID, CreatedAt: now, UpdatedAt: now}
	case err != nil:
		return nil, errors.Join(ErrStoreFailure, err)
	}

	if profile.CustomerID == "" {
		customerID, err := s.provider.CreateCustomer(ctx, user.ID, user.Email)
		if err != nil {
			return nil, errors.Join(ErrProviderFailure, err)
		}
		profile.CustomerID = customerID
		profile.UpdatedAt = now

		if err := s.store.Save(ctx, profile); err != nil {
			return nil, errors.Join(ErrStoreFailure, err)
		}
	}

	return profile, nil
}
