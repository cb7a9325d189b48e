package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/candles-cuddles/api/internal/services"
)

type stubWebhookService struct {
	processFn func(ctx context.Context, body []byte, signature string) error
}

func (s *stubWebhookService) ProcessEvent(ctx context.Context, body []byte, signature string) error {
	return s.processFn(ctx, body, signature)
}

func newWebhookRouter(svc services.WebhookService) http.Handler {
	return NewRouter(WithWebhookRoutes(NewWebhookHandlers(svc).Routes))
}

func TestPaymentWebhookAcknowledgesProcessedEvent(t *testing.T) {
	var gotBody string
	var gotSignature string
	svc := &stubWebhookService{processFn: func(_ context.Context, body []byte, signature string) error {
		gotBody = string(body)
		gotSignature = signature
		return nil
	}}

	body := `{"event":"payment.captured","payload":{}}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payment", strings.NewReader(body))
	req.Header.Set("X-Razorpay-Signature", "sig")
	rec := httptest.NewRecorder()
	newWebhookRouter(svc).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if gotBody != body {
		t.Fatalf("raw body must reach the service untouched, got %q", gotBody)
	}
	if gotSignature != "sig" {
		t.Fatalf("expected signature header forwarded, got %q", gotSignature)
	}
}

func TestPaymentWebhookRejectsBadSignature(t *testing.T) {
	svc := &stubWebhookService{processFn: func(context.Context, []byte, string) error {
		return services.ErrInvalidSignature
	}}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payment", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	newWebhookRouter(svc).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestPaymentWebhookSignalsRetryOnBackendFailure(t *testing.T) {
	svc := &stubWebhookService{processFn: func(context.Context, []byte, string) error {
		return context.DeadlineExceeded
	}}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payment", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	newWebhookRouter(svc).ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}
