package billingweb

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/billingkit/pkg/billing"
)

// RouterOptions configures the billing module router.
type RouterOptions struct {
	Service billing.Service
	Config  Config

	// Webhook, when set, is mounted at POST /webhook. It is the only route
	// that requires no session.
	Webhook http.Handler

	Logger *slog.Logger
}

// Router creates the billing module router.
//
// Routes:
//
//	GET  /                      billing page
//	POST /payment-intents       start a one-time purchase
//	POST /subscriptions         start a subscription
//	POST /subscriptions/cancel  cancel at period end
//	POST /subscriptions/change  switch to another recurring plan
//	POST /portal                provider-hosted management session
//	POST /checkout              provider-hosted checkout (hosted mode)
//	POST /webhook               provider event deliveries
//
// Example:
//
//	r := chi.NewRouter()
//	r.Mount("/billing", billingweb.Router(billingweb.RouterOptions{
//	    Service: svc,
//	    Config:  cfg,
//	    Webhook: webhookHandler,
//	}))
func Router(opts RouterOptions) chi.Router {
	if opts.Service == nil {
		panic("billingweb: billing.Service is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	h := &handlers{
		svc: opts.Service,
		cfg: opts.Config,
		log: opts.Logger,
	}

	r := chi.NewRouter()
	r.Get("/", h.page)
	r.Post("/payment-intents", h.createPaymentIntent)
	r.Post("/subscriptions", h.createSubscription)
	r.Post("/subscriptions/cancel", h.cancelSubscription)
	r.Post("/subscriptions/change", h.changeSubscriptionPlan)
	r.Post("/portal", h.createPortalSession)
	r.Post("/checkout", h.createCheckoutSession)
	if opts.Webhook != nil {
		r.Method(http.MethodPost, "/webhook", opts.Webhook)
	}
	return r
}

type handlers struct {
	svc billing.Service
	cfg Config
	log *slog.Logger
}

type priceRequest struct {
	PriceID string `json:"price_id"`
}

type portalRequest struct {
	ReturnURL string `json:"return_url"`
}

func (h *handlers) page(w http.ResponseWriter, r *http.Request) {
	profile, err := h.svc.GetProfile(r.Context())
	switch {
	case errors.Is(err, billing.ErrNotAuthenticated):
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	case errors.Is(err, billing.ErrProfileNotFound):
		// First visit before any purchase: render the page empty-handed.
		profile = nil
	case err != nil:
		h.log.ErrorContext(r.Context(), "failed to load billing profile", slog.Any("error", err))
		http.Error(w, "failed to load billing profile", http.StatusInternalServerError)
		return
	}

	data := PageData{
		Plans:          h.svc.Plans(),
		Profile:        profile,
		HostedCheckout: h.cfg.HostedCheckout,
		PublishableKey: h.cfg.StripePublishableKey,
	}
	if msg := r.URL.Query().Get("error"); msg != "" {
		data.ErrorMessage = msg
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := Page(data).Render(r.Context(), w); err != nil {
		h.log.ErrorContext(r.Context(), "failed to render billing page", slog.Any("error", err))
	}
}

func (h *handlers) createPaymentIntent(w http.ResponseWriter, r *http.Request) {
	var req priceRequest
	if !h.decode(w, r, &req) {
		return
	}

	token, err := h.svc.CreatePaymentIntent(r.Context(), req.PriceID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{
		"client_secret": token.ClientSecret,
	})
}

func (h *handlers) createSubscription(w http.ResponseWriter, r *http.Request) {
	var req priceRequest
	if !h.decode(w, r, &req) {
		return
	}

	token, err := h.svc.CreateSubscription(r.Context(), req.PriceID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{
		"client_secret":   token.ClientSecret,
		"subscription_id": token.SubscriptionID,
	})
}

func (h *handlers) cancelSubscription(w http.ResponseWriter, r *http.Request) {
	endsAt, err := h.svc.CancelSubscription(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{
		"cancel_at": endsAt.Format("2006-01-02"),
	})
}

func (h *handlers) changeSubscriptionPlan(w http.ResponseWriter, r *http.Request) {
	var req priceRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.svc.ChangeSubscriptionPlan(r.Context(), req.PriceID); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *handlers) createPortalSession(w http.ResponseWriter, r *http.Request) {
	var req portalRequest
	if !h.decode(w, r, &req) {
		return
	}
	returnURL := req.ReturnURL
	if returnURL == "" {
		returnURL = h.cfg.PortalReturnURL
	}

	url, err := h.svc.CreatePortalSession(r.Context(), returnURL)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

func (h *handlers) createCheckoutSession(w http.ResponseWriter, r *http.Request) {
	var req priceRequest
	if !h.decode(w, r, &req) {
		return
	}

	url, err := h.svc.CreateCheckoutSession(r.Context(), req.PriceID,
		h.cfg.CheckoutSuccessURL, h.cfg.CheckoutCancelURL)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

// decode parses a JSON request body. Empty bodies decode to zero values so
// endpoints without required fields accept bare POSTs.
func (h *handlers) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return false
	}
	return true
}

func (h *handlers) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("failed to encode response", slog.Any("error", err))
	}
}

// writeError maps billing errors to HTTP statuses and renders the message
// for the UI to surface.
func (h *handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, billing.ErrNotAuthenticated):
		status = http.StatusUnauthorized
	case errors.Is(err, billing.ErrPlanNotFound):
		status = http.StatusNotFound
	case errors.Is(err, billing.ErrInvalidPlanSelection),
		errors.Is(err, billing.ErrAlreadyOnPlan),
		errors.Is(err, billing.ErrNoSubscription),
		errors.Is(err, billing.ErrNoCustomer),
		errors.Is(err, billing.ErrSubscriptionNotActive):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, billing.ErrPriceMismatch),
		errors.Is(err, billing.ErrProviderFailure):
		status = http.StatusBadGateway
	}

	if status >= http.StatusInternalServerError {
		h.log.ErrorContext(r.Context(), "billing action failed", slog.Any("error", err))
	}
	h.writeJSON(w, status, map[string]string{"error": err.Error()})
}
