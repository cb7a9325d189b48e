package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"

	"github.com/candles-cuddles/api/internal/services"
)

// OrderConfirmedMessage is the payload delivered to confirmation workers.
type OrderConfirmedMessage struct {
	OrderID      string    `json:"orderId"`
	Email        string    `json:"email"`
	Amount       int64     `json:"amount"`
	Currency     string    `json:"currency"`
	ConfirmedVia string    `json:"confirmedVia"`
	OccurredAt   time.Time `json:"occurredAt"`
}

// PubSubConfirmationNotifier publishes order confirmation jobs to a Pub/Sub topic.
type PubSubConfirmationNotifier struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

var _ services.ConfirmationNotifier = (*PubSubConfirmationNotifier)(nil)

// NewPubSubConfirmationNotifier constructs a Pub/Sub backed confirmation notifier.
func NewPubSubConfirmationNotifier(topic *pubsub.Topic) (*PubSubConfirmationNotifier, error) {
	if topic == nil {
		return nil, errors.New("pubsub confirmation notifier: topic is required")
	}
	return &PubSubConfirmationNotifier{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// NotifyOrderConfirmed enqueues a confirmation message on the configured topic.
// Message attributes carry only the order identifier; buyer contact details
// stay inside the payload.
func (p *PubSubConfirmationNotifier) NotifyOrderConfirmed(ctx context.Context, confirmation services.OrderConfirmation) error {
	if p == nil || p.topic == nil {
		return errors.New("pubsub confirmation notifier: not initialised")
	}

	message := OrderConfirmedMessage{
		OrderID:      confirmation.OrderID,
		Email:        confirmation.Email,
		Amount:       confirmation.Amount,
		Currency:     confirmation.Currency,
		ConfirmedVia: string(confirmation.ConfirmedVia),
		OccurredAt:   confirmation.OccurredAt.UTC(),
	}

	data, err := p.marshal(message)
	if err != nil {
		return fmt.Errorf("marshal order confirmation: %w", err)
	}

	attrs := map[string]string{"type": "order.confirmed"}
	if orderID := strings.TrimSpace(confirmation.OrderID); orderID != "" {
		attrs["orderId"] = orderID
	}

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish order confirmation: %w", err)
	}
	return nil
}
