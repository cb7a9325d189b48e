package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	domain "github.com/candles-cuddles/api/internal/domain"
	"github.com/candles-cuddles/api/internal/repositories"
)

const (
	webhookEventCaptured = "payment.captured"
	webhookEventFailed   = "payment.failed"
)

// webhookEnvelope mirrors the gateway's webhook payload shape.
type webhookEnvelope struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID          string `json:"id"`
				OrderID     string `json:"order_id"`
				Amount      int64  `json:"amount"`
				Currency    string `json:"currency"`
				Status      string `json:"status"`
				ErrorCode   string `json:"error_code"`
				Description string `json:"error_description"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
	CreatedAt int64 `json:"created_at"`
}

// WebhookServiceDeps bundles collaborators for the webhook reconciler.
type WebhookServiceDeps struct {
	Orders   repositories.OrderRepository
	Verifier SignatureVerifier
	Notifier ConfirmationNotifier
	Clock    func() time.Time
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type webhookService struct {
	orders   repositories.OrderRepository
	verifier SignatureVerifier
	notifier ConfirmationNotifier
	clock    func() time.Time
	logger   func(context.Context, string, map[string]any)
}

// NewWebhookService wires dependencies into a concrete WebhookService.
func NewWebhookService(deps WebhookServiceDeps) (WebhookService, error) {
	if deps.Orders == nil {
		return nil, errors.New("webhook service: order repository is required")
	}
	if deps.Verifier == nil {
		return nil, errors.New("webhook service: signature verifier is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &webhookService{
		orders:   deps.Orders,
		verifier: deps.Verifier,
		notifier: deps.Notifier,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// ProcessEvent verifies and reconciles one webhook delivery. Unknown event
// types and unknown orders are acknowledged without error so the gateway
// stops retrying; only a bad signature or a transient backend failure makes
// the delivery fail.
func (s *webhookService) ProcessEvent(ctx context.Context, body []byte, signature string) error {
	ok, err := s.verifier.VerifyWebhook(body, signature)
	if err != nil {
		return fmt.Errorf("webhook: signature verification: %w", err)
	}
	if !ok {
		s.logger(ctx, "webhook.signature.rejected", nil)
		return ErrInvalidSignature
	}

	var envelope webhookEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("%w: malformed webhook payload", ErrOrderInvalidInput)
	}

	switch envelope.Event {
	case webhookEventCaptured:
		return s.reconcileCaptured(ctx, envelope)
	case webhookEventFailed:
		return s.reconcileFailed(ctx, envelope)
	default:
		s.logger(ctx, "webhook.event.ignored", map[string]any{"event": envelope.Event})
		return nil
	}
}

func (s *webhookService) reconcileCaptured(ctx context.Context, envelope webhookEnvelope) error {
	entity := envelope.Payload.Payment.Entity
	order, ok, err := s.findOrder(ctx, entity.OrderID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	if entity.Amount > 0 && entity.Amount != order.Amount {
		// Paying a different amount than the order recorded needs human eyes;
		// the order stays put and the delivery is acknowledged.
		s.logger(ctx, "webhook.amount.mismatch", map[string]any{
			"orderId":       order.ID,
			"orderAmount":   order.Amount,
			"webhookAmount": entity.Amount,
		})
		return nil
	}

	now := s.clock()
	updated, err := s.orders.Transition(ctx, repositories.OrderTransition{
		OrderID:      order.ID,
		From:         []domain.OrderStatus{domain.OrderStatusPending, domain.OrderStatusAwaitingPaymentSetup},
		To:           domain.OrderStatusPaid,
		PaymentRef:   entity.ID,
		ConfirmedVia: domain.PaymentPathWebhook,
		Metadata:     eventMetadata(envelope),
		Now:          now,
	})
	if err != nil {
		var transitionErr *repositories.TransitionError
		if errors.As(err, &transitionErr) {
			if transitionErr.Current == domain.OrderStatusPaid {
				// Redelivery or the callback won the race; nothing to do.
				return nil
			}
			s.logger(ctx, "webhook.capture.conflict", map[string]any{
				"orderId": order.ID,
				"status":  string(transitionErr.Current),
			})
			return nil
		}
		return err
	}

	s.logger(ctx, orderEventPaid, map[string]any{"orderId": updated.ID, "via": string(domain.PaymentPathWebhook)})
	notifyConfirmed(ctx, s.notifier, s.logger, updated, now)
	return nil
}

func (s *webhookService) reconcileFailed(ctx context.Context, envelope webhookEnvelope) error {
	entity := envelope.Payload.Payment.Entity
	order, ok, err := s.findOrder(ctx, entity.OrderID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	metadata := eventMetadata(envelope)
	if entity.ErrorCode != "" {
		metadata["failureCode"] = entity.ErrorCode
	}
	if entity.Description != "" {
		metadata["failureReason"] = entity.Description
	}

	_, err = s.orders.Transition(ctx, repositories.OrderTransition{
		OrderID:    order.ID,
		From:       []domain.OrderStatus{domain.OrderStatusPending, domain.OrderStatusAwaitingPaymentSetup},
		To:         domain.OrderStatusFailed,
		PaymentRef: entity.ID,
		Metadata:   metadata,
		Now:        s.clock(),
	})
	if err != nil {
		var transitionErr *repositories.TransitionError
		if errors.As(err, &transitionErr) {
			// A failure after the order already settled or closed is stale news.
			s.logger(ctx, "webhook.failure.ignored", map[string]any{
				"orderId": order.ID,
				"status":  string(transitionErr.Current),
			})
			return nil
		}
		return err
	}

	s.logger(ctx, "order.payment.failed", map[string]any{"orderId": order.ID, "code": entity.ErrorCode})
	return nil
}

// eventMetadata extracts the audit trail stored on the order for every
// reconciled webhook delivery.
func eventMetadata(envelope webhookEnvelope) map[string]any {
	entity := envelope.Payload.Payment.Entity
	metadata := map[string]any{"webhookEvent": envelope.Event}
	if entity.Status != "" {
		metadata["gatewayPaymentStatus"] = entity.Status
	}
	if entity.Amount > 0 {
		metadata["gatewayAmount"] = entity.Amount
	}
	if entity.Currency != "" {
		metadata["gatewayCurrency"] = entity.Currency
	}
	if envelope.CreatedAt > 0 {
		metadata["gatewayEventAt"] = envelope.CreatedAt
	}
	return metadata
}

// findOrder resolves the gateway order reference. Unknown references are
// logged and acknowledged; this storefront is not the only consumer of the
// gateway account.
func (s *webhookService) findOrder(ctx context.Context, gatewayOrderRef string) (domain.Order, bool, error) {
	if gatewayOrderRef == "" {
		s.logger(ctx, "webhook.order_ref.missing", nil)
		return domain.Order{}, false, nil
	}
	order, err := s.orders.FindByGatewayOrderRef(ctx, gatewayOrderRef)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			s.logger(ctx, "webhook.order.unknown", map[string]any{"gatewayOrderRef": gatewayOrderRef})
			return domain.Order{}, false, nil
		}
		return domain.Order{}, false, err
	}
	return order, true, nil
}
