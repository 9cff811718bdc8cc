package billing_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingkit/pkg/billing"
)

func seedProfile(t *testing.T, store billing.ProfileStore, features ...billing.Feature) uuid.UUID {
	t.Helper()
	userID := uuid.New()
	require.NoError(t, store.Save(context.Background(), &billing.Profile{
		UserID:     userID,
		CustomerID: "cus_1",
		Features:   features,
	}))
	return userID
}

func TestReconciler_PaymentSucceeded(t *testing.T) {
	t.Parallel()

	t.Run("grants the purchased features", func(t *testing.T) {
		t.Parallel()
		store := billing.NewMemoryProfileStore()
		userID := seedProfile(t, store)
		r := billing.NewReconciler(testCatalog(t), new(mockProvider), store, slog.Default())

		event := &billing.Event{
			ID:         "evt_1",
			Type:       billing.EventPaymentSucceeded,
			CustomerID: "cus_1",
			PriceID:    oneTimePrice,
		}
		require.NoError(t, r.Apply(context.Background(), event))

		profile, err := store.Get(context.Background(), userID)
		require.NoError(t, err)
		assert.Equal(t, []billing.Feature{"content_pack"}, profile.Features)
	})

	t.Run("applying the same event twice yields identical state", func(t *testing.T) {
		t.Parallel()
		store := billing.NewMemoryProfileStore()
		userID := seedProfile(t, store)
		r := billing.NewReconciler(testCatalog(t), new(mockProvider), store, slog.Default())

		event := &billing.Event{
			ID:         "evt_1",
			Type:       billing.EventPaymentSucceeded,
			CustomerID: "cus_1",
			PriceID:    oneTimePrice,
		}
		require.NoError(t, r.Apply(context.Background(), event))
		require.NoError(t, r.Apply(context.Background(), event))

		profile, err := store.Get(context.Background(), userID)
		require.NoError(t, err)
		assert.Equal(t, []billing.Feature{"content_pack"}, profile.Features)
	})

	t.Run("preserves features granted earlier", func(t *testing.T) {
		t.Parallel()
		store := billing.NewMemoryProfileStore()
		userID := seedProfile(t, store, "pro_content")
		r := billing.NewReconciler(testCatalog(t), new(mockProvider), store, slog.Default())

		require.NoError(t, r.Apply(context.Background(), &billing.Event{
			Type:       billing.EventPaymentSucceeded,
			CustomerID: "cus_1",
			PriceID:    oneTimePrice,
		}))

		profile, err := store.Get(context.Background(), userID)
		require.NoError(t, err)
		assert.ElementsMatch(t, []billing.Feature{"pro_content", "content_pack"}, profile.Features)
	})

	t.Run("fails for an unknown customer so delivery is retried", func(t *testing.T) {
		t.Parallel()
		r := billing.NewReconciler(testCatalog(t), new(mockProvider), billing.NewMemoryProfileStore(), slog.Default())

		err := r.Apply(context.Background(), &billing.Event{
			Type:       billing.EventPaymentSucceeded,
			CustomerID: "cus_missing",
			PriceID:    oneTimePrice,
		})
		assert.ErrorIs(t, err, billing.ErrProfileNotFound)
	})
}

func TestReconciler_SubscriptionUpdated(t *testing.T) {
	t.Parallel()

	periodEnd := time.Now().UTC().AddDate(0, 1, 0).Truncate(time.Second)

	t.Run("stores the snapshot and recomputes features", func(t *testing.T) {
		t.Parallel()
		store := billing.NewMemoryProfileStore()
		userID := seedProfile(t, store, "content_pack")
		r := billing.NewReconciler(testCatalog(t), new(mockProvider), store, slog.Default())

		require.NoError(t, r.Apply(context.Background(), &billing.Event{
			Type:       billing.EventSubscriptionUpdated,
			CustomerID: "cus_1",
			Subscription: &billing.SubscriptionState{
				ID:               "sub_1",
				CustomerID:       "cus_1",
				Status:           billing.StatusActive,
				PriceIDs:         []string{monthlyPrice},
				CurrentPeriodEnd: &periodEnd,
			},
		}))

		profile, err := store.Get(context.Background(), userID)
		require.NoError(t, err)
		assert.Equal(t, "sub_1", profile.SubscriptionID)
		assert.Equal(t, monthlyPrice, profile.PriceID)
		assert.Equal(t, billing.StatusActive, profile.Status)
		require.NotNil(t, profile.CurrentPeriodEnd)
		assert.Equal(t, periodEnd, *profile.CurrentPeriodEnd)
		assert.ElementsMatch(t, []billing.Feature{"content_pack", "pro_content"}, profile.Features)
	})

	t.Run("plan change replaces subscription features", func(t *testing.T) {
		t.Parallel()
		store := billing.NewMemoryProfileStore()
		userID := seedProfile(t, store, "content_pack", "pro_content", "priority_support")
		r := billing.NewReconciler(testCatalog(t), new(mockProvider), store, slog.Default())

		// Downgrade from yearly to monthly drops priority_support.
		require.NoError(t, r.Apply(context.Background(), &billing.Event{
			Type: billing.EventSubscriptionUpdated,
			Subscription: &billing.SubscriptionState{
				ID:         "sub_1",
				CustomerID: "cus_1",
				Status:     billing.StatusActive,
				PriceIDs:   []string{monthlyPrice},
			},
		}))

		profile, err := store.Get(context.Background(), userID)
		require.NoError(t, err)
		assert.ElementsMatch(t, []billing.Feature{"content_pack", "pro_content"}, profile.Features)
	})

	t.Run("resolves the subscription when the event carries only a reference", func(t *testing.T) {
		t.Parallel()
		store := billing.NewMemoryProfileStore()
		userID := seedProfile(t, store)
		provider := new(mockProvider)
		r := billing.NewReconciler(testCatalog(t), provider, store, slog.Default())

		provider.On("GetSubscription", mock.Anything, "sub_1").Return(&billing.SubscriptionState{
			ID:         "sub_1",
			CustomerID: "cus_1",
			Status:     billing.StatusActive,
			PriceIDs:   []string{yearlyPrice},
		}, nil)

		require.NoError(t, r.Apply(context.Background(), &billing.Event{
			Type:           billing.EventSubscriptionUpdated,
			SubscriptionID: "sub_1",
			CustomerID:     "cus_1",
		}))

		profile, err := store.Get(context.Background(), userID)
		require.NoError(t, err)
		assert.ElementsMatch(t, []billing.Feature{"pro_content", "priority_support"}, profile.Features)
		provider.AssertExpectations(t)
	})
}

func TestReconciler_SubscriptionDeleted(t *testing.T) {
	t.Parallel()

	store := billing.NewMemoryProfileStore()
	userID := seedProfile(t, store, "content_pack", "pro_content")
	r := billing.NewReconciler(testCatalog(t), new(mockProvider), store, slog.Default())

	require.NoError(t, r.Apply(context.Background(), &billing.Event{
		Type: billing.EventSubscriptionDeleted,
		Subscription: &billing.SubscriptionState{
			ID:         "sub_1",
			CustomerID: "cus_1",
			Status:     billing.StatusCanceled,
		},
	}))

	profile, err := store.Get(context.Background(), userID)
	require.NoError(t, err)
	// One-time purchases survive; subscription entitlements are stripped.
	assert.Equal(t, []billing.Feature{"content_pack"}, profile.Features)
	assert.Equal(t, billing.StatusCanceled, profile.Status)
	assert.Empty(t, profile.PriceID)
	assert.False(t, profile.HasActiveSubscription())
}

func TestReconciler_CheckoutCompleted(t *testing.T) {
	t.Parallel()

	t.Run("subscription checkout resolves through the provider", func(t *testing.T) {
		t.Parallel()
		store := billing.NewMemoryProfileStore()
		userID := seedProfile(t, store)
		provider := new(mockProvider)
		r := billing.NewReconciler(testCatalog(t), provider, store, slog.Default())

		provider.On("GetSubscription", mock.Anything, "sub_1").Return(&billing.SubscriptionState{
			ID:         "sub_1",
			CustomerID: "cus_1",
			Status:     billing.StatusActive,
			PriceIDs:   []string{monthlyPrice},
		}, nil)

		require.NoError(t, r.Apply(context.Background(), &billing.Event{
			Type:           billing.EventCheckoutCompleted,
			SubscriptionID: "sub_1",
			CustomerID:     "cus_1",
		}))

		profile, err := store.Get(context.Background(), userID)
		require.NoError(t, err)
		assert.Equal(t, "sub_1", profile.SubscriptionID)
	})

	t.Run("payment checkout resolves the intent metadata", func(t *testing.T) {
		t.Parallel()
		store := billing.NewMemoryProfileStore()
		userID := seedProfile(t, store)
		provider := new(mockProvider)
		r := billing.NewReconciler(testCatalog(t), provider, store, slog.Default())

		provider.On("GetPaymentIntent", mock.Anything, "pi_1").Return(&billing.PaymentIntentInfo{
			ID:         "pi_1",
			CustomerID: "cus_1",
			PriceID:    oneTimePrice,
		}, nil)

		require.NoError(t, r.Apply(context.Background(), &billing.Event{
			Type:            billing.EventCheckoutCompleted,
			PaymentIntentID: "pi_1",
		}))

		profile, err := store.Get(context.Background(), userID)
		require.NoError(t, err)
		assert.Equal(t, []billing.Feature{"content_pack"}, profile.Features)
	})

	t.Run("empty checkout session is a no-op", func(t *testing.T) {
		t.Parallel()
		r := billing.NewReconciler(testCatalog(t), new(mockProvider), billing.NewMemoryProfileStore(), slog.Default())

		assert.NoError(t, r.Apply(context.Background(), &billing.Event{
			Type: billing.EventCheckoutCompleted,
		}))
	})
}

func TestReconciler_IgnoredEvent(t *testing.T) {
	t.Parallel()

	provider := new(mockProvider)
	r := billing.NewReconciler(testCatalog(t), provider, billing.NewMemoryProfileStore(), slog.Default())

	assert.NoError(t, r.Apply(context.Background(), &billing.Event{
		ID:           "evt_x",
		Type:         billing.EventIgnored,
		ProviderType: "customer.updated",
	}))
	provider.AssertNotCalled(t, "GetSubscription", mock.Anything, mock.Anything)
}
