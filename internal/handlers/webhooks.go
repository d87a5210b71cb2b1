package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/supplyvend/api/internal/platform/httpx"
	"github.com/supplyvend/api/internal/services"
)

const maxWebhookBodySize = 256 * 1024

// signatureHeaders lists the header names providers use to sign payloads,
// probed in order.
var signatureHeaders = []string{
	"Stripe-Signature",
	"X-Webhook-Signature",
	"X-Signature",
}

// WebhookHandlers receives provider payment notifications. The contract with
// providers is to acknowledge receipt whenever the payload was durably
// handled; business-level rejections must not trigger provider retries.
type WebhookHandlers struct {
	payments services.PaymentService
	limiter  rateLimiter
}

// WebhookOption customises webhook handler construction.
type WebhookOption func(*WebhookHandlers)

// WithWebhookRateLimit caps how many payloads a single source address may
// deliver per window.
func WithWebhookRateLimit(limit int, window time.Duration) WebhookOption {
	return func(h *WebhookHandlers) {
		h.limiter = newFixedWindowLimiter(limit, window, nil)
	}
}

// NewWebhookHandlers constructs a new WebhookHandlers instance.
func NewWebhookHandlers(payments services.PaymentService, opts ...WebhookOption) *WebhookHandlers {
	h := &WebhookHandlers{payments: payments}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes registers the /webhooks endpoints.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/{provider}", h.receive)
}

func (h *WebhookHandlers) receive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	provider := strings.TrimSpace(chi.URLParam(r, "provider"))
	if provider == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "provider is required", http.StatusBadRequest))
		return
	}

	if h.limiter != nil && !h.limiter.Allow(r.RemoteAddr) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many requests", http.StatusTooManyRequests))
		return
	}

	body, err := readLimitedBody(r, maxWebhookBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	err = h.payments.HandleWebhook(ctx, services.WebhookCommand{
		ProviderSlug: provider,
		Body:         body,
		Signature:    firstSignature(r),
		SourceIP:     r.RemoteAddr,
	})
	if err != nil {
		// Persistence failed; let the provider retry.
		httpx.WriteError(ctx, w, httpx.NewError("webhook_error", "failed to record webhook", http.StatusInternalServerError))
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "received"})
}

func firstSignature(r *http.Request) string {
	for _, header := range signatureHeaders {
		if value := strings.TrimSpace(r.Header.Get(header)); value != "" {
			return value
		}
	}
	return ""
}
