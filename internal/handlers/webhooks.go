package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/candles-cuddles/api/internal/platform/httpx"
	"github.com/candles-cuddles/api/internal/services"
)

const (
	maxWebhookBody         = 256 * 1024
	webhookSignatureHeader = "X-Razorpay-Signature"
)

// WebhookHandlers receives server-to-server gateway notifications.
type WebhookHandlers struct {
	webhooks services.WebhookService
}

// NewWebhookHandlers constructs the webhook handlers.
func NewWebhookHandlers(webhooks services.WebhookService) *WebhookHandlers {
	return &WebhookHandlers{webhooks: webhooks}
}

// Routes registers webhook endpoints under the provided router.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/payment", h.paymentEvent)
}

// paymentEvent verifies and reconciles a gateway delivery. The raw body is
// the signed material; it must not be re-serialised before verification.
func (h *WebhookHandlers) paymentEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.webhooks == nil {
		httpx.WriteError(ctx, w, httpx.NewError("webhooks_unavailable", "webhook service unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody+1))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unable to read request body", http.StatusBadRequest))
		return
	}
	if len(body) > maxWebhookBody {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body exceeds the allowed size", http.StatusRequestEntityTooLarge))
		return
	}

	err = h.webhooks.ProcessEvent(ctx, body, r.Header.Get(webhookSignatureHeader))
	switch {
	case err == nil:
		writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
	case errors.Is(err, services.ErrInvalidSignature):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_signature", "webhook signature verification failed", http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	default:
		// Transient backend failure: a 5xx asks the gateway to redeliver.
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "webhook processing failed", http.StatusInternalServerError))
	}
}
