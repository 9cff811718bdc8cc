package billing

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

const webhookBodyLimit = 1 << 20 // 1 MiB

// SignatureHeader is the request header carrying the provider signature.
const SignatureHeader = "Stripe-Signature"

// EventCache reports whether a provider event was already processed.
// Used to short-circuit duplicate deliveries; the reconciler is idempotent,
// so cache failures are never fatal. An event is marked only after it was
// reconciled successfully, so a failed delivery stays unclaimed and the
// provider's retry is processed rather than short-circuited.
type EventCache interface {
	// Seen reports whether the event ID was already processed.
	Seen(ctx context.Context, eventID string) (bool, error)

	// Mark records the event ID as processed.
	Mark(ctx context.Context, eventID string) error
}

// WebhookHandler receives provider webhook deliveries: it verifies the
// signature, normalizes the event, and hands it to the reconciler.
//
// Responses: 400 on a missing or invalid signature, 500 on reconciliation
// failure (so the provider's retry re-delivers the event), 200 otherwise.
type WebhookHandler struct {
	provider   PaymentProvider
	reconciler *Reconciler
	cache      EventCache
	log        *slog.Logger
}

// WebhookOption configures a WebhookHandler.
type WebhookOption func(*WebhookHandler)

// WithEventCache enables duplicate-delivery suppression.
func WithEventCache(cache EventCache) WebhookOption {
	return func(h *WebhookHandler) {
		if cache != nil {
			h.cache = cache
		}
	}
}

// WithWebhookLogger sets the handler's logger.
func WithWebhookLogger(log *slog.Logger) WebhookOption {
	return func(h *WebhookHandler) {
		if log != nil {
			h.log = log
		}
	}
}

// NewWebhookHandler creates the webhook HTTP handler.
func NewWebhookHandler(provider PaymentProvider, reconciler *Reconciler, opts ...WebhookOption) *WebhookHandler {
	if provider == nil {
		panic("billing: PaymentProvider is required")
	}
	if reconciler == nil {
		panic("billing: Reconciler is required")
	}

	h := &WebhookHandler{
		provider:   provider,
		reconciler: reconciler,
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, webhookBodyLimit)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	signature := r.Header.Get(SignatureHeader)
	if strings.TrimSpace(signature) == "" {
		http.Error(w, "missing signature", http.StatusBadRequest)
		return
	}

	event, err := h.provider.ParseWebhook(payload, signature)
	if err != nil {
		if errors.Is(err, ErrSignatureVerification) {
			http.Error(w, "invalid signature", http.StatusBadRequest)
			return
		}
		h.log.ErrorContext(r.Context(), "webhook payload rejected", slog.Any("error", err))
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	if h.cache != nil && event.ID != "" {
		seen, err := h.cache.Seen(r.Context(), event.ID)
		if err != nil {
			// Fall through to the idempotent reconciler.
			h.log.WarnContext(r.Context(), "event cache unavailable", slog.Any("error", err))
		} else if seen {
			h.ok(w)
			return
		}
	}

	if err := h.reconciler.Apply(r.Context(), event); err != nil {
		h.log.ErrorContext(r.Context(), "webhook reconciliation failed",
			slog.String("event_id", event.ID),
			slog.String("provider_type", event.ProviderType),
			slog.Any("error", err))
		http.Error(w, "processing failed", http.StatusInternalServerError)
		return
	}

	if h.cache != nil && event.ID != "" {
		if err := h.cache.Mark(r.Context(), event.ID); err != nil {
			// A duplicate delivery re-runs the idempotent reconciler.
			h.log.WarnContext(r.Context(), "event cache unavailable", slog.Any("error", err))
		}
	}

	h.ok(w)
}

func (h *WebhookHandler) ok(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
