package billingweb_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingkit/modules/billingweb"
	"github.com/dmitrymomot/billingkit/pkg/billing"
)

type mockService struct {
	mock.Mock
}

func (m *mockService) Plans() []billing.Plan {
	args := m.Called()
	return args.Get(0).([]billing.Plan)
}

func (m *mockService) GetProfile(ctx context.Context) (*billing.Profile, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Profile), args.Error(1)
}

func (m *mockService) CreatePaymentIntent(ctx context.Context, priceID string) (*billing.PaymentToken, error) {
	args := m.Called(ctx, priceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.PaymentToken), args.Error(1)
}

func (m *mockService) CreateSubscription(ctx context.Context, priceID string) (*billing.PaymentToken, error) {
	args := m.Called(ctx, priceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.PaymentToken), args.Error(1)
}

func (m *mockService) CancelSubscription(ctx context.Context) (time.Time, error) {
	args := m.Called(ctx)
	return args.Get(0).(time.Time), args.Error(1)
}

func (m *mockService) ChangeSubscriptionPlan(ctx context.Context, newPriceID string) error {
	args := m.Called(ctx, newPriceID)
	return args.Error(0)
}

func (m *mockService) CreatePortalSession(ctx context.Context, returnURL string) (string, error) {
	args := m.Called(ctx, returnURL)
	return args.String(0), args.Error(1)
}

func (m *mockService) CreateCheckoutSession(ctx context.Context, priceID, successURL, cancelURL string) (string, error) {
	args := m.Called(ctx, priceID, successURL, cancelURL)
	return args.String(0), args.Error(1)
}

func testPlans() []billing.Plan {
	return []billing.Plan{
		{
			PriceID:  "price_content_pack",
			Name:     "Content Pack",
			Price:    billing.Money{Amount: 1900, Currency: "USD"},
			Interval: billing.IntervalOneTime,
			Features: []billing.Feature{billingweb.FeatureContentPack},
		},
		{
			PriceID:  "price_pro_monthly",
			Name:     "Pro Monthly",
			Price:    billing.Money{Amount: 900, Currency: "USD"},
			Interval: billing.IntervalMonthly,
			Features: []billing.Feature{billingweb.FeatureProContent},
		},
	}
}

func newTestRouter(svc billing.Service) http.Handler {
	return billingweb.Router(billingweb.RouterOptions{
		Service: svc,
		Config: billingweb.Config{
			OneTimePriceID:  "price_content_pack",
			MonthlyPriceID:  "price_pro_monthly",
			YearlyPriceID:   "price_pro_yearly",
			PortalReturnURL: "https://app.example.com/billing",
		},
	})
}

func postJSON(t *testing.T, handler http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestRouter_Page(t *testing.T) {
	t.Parallel()

	t.Run("renders plans and entitlements", func(t *testing.T) {
		t.Parallel()
		svc := new(mockService)
		svc.On("GetProfile", mock.Anything).Return(&billing.Profile{
			SubscriptionID: "sub_1",
			PriceID:        "price_pro_monthly",
			Status:         billing.StatusActive,
			Features:       []billing.Feature{billingweb.FeatureProContent},
		}, nil)
		svc.On("Plans").Return(testPlans())

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		newTestRouter(svc).ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
		html := rec.Body.String()
		assert.Contains(t, html, "Content Pack")
		assert.Contains(t, html, "Current plan")
		assert.Contains(t, html, "pro_content")
	})

	t.Run("renders without a profile on first visit", func(t *testing.T) {
		t.Parallel()
		svc := new(mockService)
		svc.On("GetProfile", mock.Anything).Return(nil, billing.ErrProfileNotFound)
		svc.On("Plans").Return(testPlans())

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		newTestRouter(svc).ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "No active subscription")
	})

	t.Run("requires authentication", func(t *testing.T) {
		t.Parallel()
		svc := new(mockService)
		svc.On("GetProfile", mock.Anything).Return(nil, billing.ErrNotAuthenticated)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		newTestRouter(svc).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestRouter_CreatePaymentIntent(t *testing.T) {
	t.Parallel()

	t.Run("returns the client secret", func(t *testing.T) {
		t.Parallel()
		svc := new(mockService)
		svc.On("CreatePaymentIntent", mock.Anything, "price_content_pack").
			Return(&billing.PaymentToken{ClientSecret: "pi_secret"}, nil)

		rec := postJSON(t, newTestRouter(svc), "/payment-intents", map[string]string{
			"price_id": "price_content_pack",
		})

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "pi_secret", decodeBody(t, rec)["client_secret"])
	})

	t.Run("maps plan selection errors to 422", func(t *testing.T) {
		t.Parallel()
		svc := new(mockService)
		svc.On("CreatePaymentIntent", mock.Anything, "price_pro_monthly").
			Return(nil, billing.ErrInvalidPlanSelection)

		rec := postJSON(t, newTestRouter(svc), "/payment-intents", map[string]string{
			"price_id": "price_pro_monthly",
		})
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("maps unknown plans to 404", func(t *testing.T) {
		t.Parallel()
		svc := new(mockService)
		svc.On("CreatePaymentIntent", mock.Anything, "price_unknown").
			Return(nil, billing.ErrPlanNotFound)

		rec := postJSON(t, newTestRouter(svc), "/payment-intents", map[string]string{
			"price_id": "price_unknown",
		})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("maps provider failures to 502", func(t *testing.T) {
		t.Parallel()
		svc := new(mockService)
		svc.On("CreatePaymentIntent", mock.Anything, "price_content_pack").
			Return(nil, billing.ErrProviderFailure)

		rec := postJSON(t, newTestRouter(svc), "/payment-intents", map[string]string{
			"price_id": "price_content_pack",
		})
		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})

	t.Run("rejects malformed bodies", func(t *testing.T) {
		t.Parallel()
		svc := new(mockService)

		req := httptest.NewRequest(http.MethodPost, "/payment-intents", bytes.NewBufferString("{broken"))
		rec := httptest.NewRecorder()
		newTestRouter(svc).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		svc.AssertNotCalled(t, "CreatePaymentIntent", mock.Anything, mock.Anything)
	})
}

func TestRouter_CreateSubscription(t *testing.T) {
	t.Parallel()

	svc := new(mockService)
	svc.On("CreateSubscription", mock.Anything, "price_pro_monthly").
		Return(&billing.PaymentToken{ClientSecret: "sub_secret", SubscriptionID: "sub_1"}, nil)

	rec := postJSON(t, newTestRouter(svc), "/subscriptions", map[string]string{
		"price_id": "price_pro_monthly",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "sub_secret", body["client_secret"])
	assert.Equal(t, "sub_1", body["subscription_id"])
}

func TestRouter_CancelSubscription(t *testing.T) {
	t.Parallel()

	t.Run("returns the effective date", func(t *testing.T) {
		t.Parallel()
		svc := new(mockService)
		svc.On("CancelSubscription", mock.Anything).
			Return(time.Date(2026, 9, 24, 0, 0, 0, 0, time.UTC), nil)

		rec := postJSON(t, newTestRouter(svc), "/subscriptions/cancel", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "2026-09-24", decodeBody(t, rec)["cancel_at"])
	})

	t.Run("maps missing subscription to 422", func(t *testing.T) {
		t.Parallel()
		svc := new(mockService)
		svc.On("CancelSubscription", mock.Anything).
			Return(time.Time{}, billing.ErrNoSubscription)

		rec := postJSON(t, newTestRouter(svc), "/subscriptions/cancel", nil)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})
}

func TestRouter_ChangeSubscriptionPlan(t *testing.T) {
	t.Parallel()

	t.Run("acknowledges the change", func(t *testing.T) {
		t.Parallel()
		svc := new(mockService)
		svc.On("ChangeSubscriptionPlan", mock.Anything, "price_pro_yearly").Return(nil)

		rec := postJSON(t, newTestRouter(svc), "/subscriptions/change", map[string]string{
			"price_id": "price_pro_yearly",
		})
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("maps already-on-plan to 422", func(t *testing.T) {
		t.Parallel()
		svc := new(mockService)
		svc.On("ChangeSubscriptionPlan", mock.Anything, "price_pro_monthly").
			Return(billing.ErrAlreadyOnPlan)

		rec := postJSON(t, newTestRouter(svc), "/subscriptions/change", map[string]string{
			"price_id": "price_pro_monthly",
		})
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})
}

func TestRouter_CreatePortalSession(t *testing.T) {
	t.Parallel()

	t.Run("uses the configured return URL by default", func(t *testing.T) {
		t.Parallel()
		svc := new(mockService)
		svc.On("CreatePortalSession", mock.Anything, "https://app.example.com/billing").
			Return("https://portal.example.com/session", nil)

		rec := postJSON(t, newTestRouter(svc), "/portal", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "https://portal.example.com/session", decodeBody(t, rec)["url"])
	})

	t.Run("honors an explicit return URL", func(t *testing.T) {
		t.Parallel()
		svc := new(mockService)
		svc.On("CreatePortalSession", mock.Anything, "https://app.example.com/settings").
			Return("https://portal.example.com/session", nil)

		rec := postJSON(t, newTestRouter(svc), "/portal", map[string]string{
			"return_url": "https://app.example.com/settings",
		})
		assert.Equal(t, http.StatusOK, rec.Code)
		svc.AssertExpectations(t)
	})

	t.Run("maps missing customer to 422", func(t *testing.T) {
		t.Parallel()
		svc := new(mockService)
		svc.On("CreatePortalSession", mock.Anything, mock.Anything).
			Return("", billing.ErrNoCustomer)

		rec := postJSON(t, newTestRouter(svc), "/portal", nil)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})
}

func TestRouter_CreateCheckoutSession(t *testing.T) {
	t.Parallel()

	svc := new(mockService)
	svc.On("CreateCheckoutSession", mock.Anything, "price_pro_monthly",
		"/billing?status=success", "/billing?status=cancelled").
		Return("https://checkout.example.com/session", nil)

	handler := billingweb.Router(billingweb.RouterOptions{
		Service: svc,
		Config: billingweb.Config{
			OneTimePriceID:     "price_content_pack",
			MonthlyPriceID:     "price_pro_monthly",
			YearlyPriceID:      "price_pro_yearly",
			PortalReturnURL:    "https://app.example.com/billing",
			CheckoutSuccessURL: "/billing?status=success",
			CheckoutCancelURL:  "/billing?status=cancelled",
		},
	})

	rec := postJSON(t, handler, "/checkout", map[string]string{
		"price_id": "price_pro_monthly",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://checkout.example.com/session", decodeBody(t, rec)["url"])
}

func TestRouter_WebhookMount(t *testing.T) {
	t.Parallel()

	var called bool
	webhook := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})

	handler := billingweb.Router(billingweb.RouterOptions{
		Service: new(mockService),
		Webhook: webhook,
	})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhook", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, called)
}

func TestRouter_RequiresService(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() {
		billingweb.Router(billingweb.RouterOptions{})
	})
}
