package billing

import "errors"

var (
	ErrNotAuthenticated     = errors.New("billing: not authenticated")
	ErrPlanNotFound         = errors.New("billing: plan not found")
	ErrInvalidPlanSelection = errors.New("billing: plan does not support this purchase type")
	ErrInvalidCatalog       = errors.New("billing: invalid plan catalog")

	ErrPriceMismatch   = errors.New("billing: provider price does not match catalog plan")
	ErrProviderFailure = errors.New("billing: payment provider request failed")
	ErrStoreFailure    = errors.New("billing: profile store request failed")

	ErrProfileNotFound       = errors.New("billing: profile not found")
	ErrNoCustomer            = errors.New("billing: no payment provider customer exists")
	ErrNoSubscription        = errors.New("billing: no subscription exists")
	ErrSubscriptionNotActive = errors.New("billing: subscription is not active")
	ErrAlreadyOnPlan         = errors.New("billing: already subscribed to this plan")

	ErrSignatureVerification = errors.New("billing: webhook signature verification failed")

	// Provider construction errors
	ErrMissingAPIKey        = errors.New("billing: payment provider API key is required")
	ErrMissingWebhookSecret = errors.New("billing: webhook signing secret is required")
)
