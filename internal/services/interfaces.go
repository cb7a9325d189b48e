package services

import (
	"context"
	"time"

	"github.com/candles-cuddles/api/internal/catalog"
	domain "github.com/candles-cuddles/api/internal/domain"
)

// CatalogResolver prices cart lines against the stored catalog.
type CatalogResolver interface {
	Resolve(ctx context.Context, requests []catalog.LineRequest) (catalog.Resolution, error)
}

// SignatureVerifier validates gateway signatures.
type SignatureVerifier interface {
	VerifyCallback(orderRef, paymentRef, signature string) (bool, error)
	VerifyWebhook(body []byte, signature string) (bool, error)
}

// OrderConfirmation describes a confirmed payment handed to notification workers.
type OrderConfirmation struct {
	OrderID      string
	Email        string
	Amount       int64
	Currency     string
	ConfirmedVia domain.PaymentPath
	OccurredAt   time.Time
}

// ConfirmationNotifier enqueues confirmation jobs for downstream delivery.
type ConfirmationNotifier interface {
	NotifyOrderConfirmed(ctx context.Context, confirmation OrderConfirmation) error
}

// OrderLineInput names a requested product and quantity.
type OrderLineInput struct {
	ProductID string
	Quantity  int
}

// PlaceOrderCommand captures a checkout submission.
type PlaceOrderCommand struct {
	Buyer    domain.Buyer
	Lines    []OrderLineInput
	Metadata map[string]any
}

// PlacedOrder is the checkout outcome. PaymentSetupPending marks the degraded
// path where the order was persisted but the gateway registration failed.
type PlacedOrder struct {
	Order               domain.Order
	GatewayKeyID        string
	PaymentSetupPending bool
}

// VerifyPaymentCommand carries the browser callback material.
type VerifyPaymentCommand struct {
	OrderID         string
	GatewayOrderRef string
	PaymentRef      string
	Signature       string
}

// OverrideStatusCommand captures an operator-initiated status override.
type OverrideStatusCommand struct {
	OrderID string
	Status  string
	ActorID string
	Reason  string
}

// ListOrdersQuery narrows admin order listings.
type ListOrdersQuery struct {
	Status string
	Email  string
	Limit  int
}

// OrderService drives the order lifecycle from checkout to settlement.
type OrderService interface {
	PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (PlacedOrder, error)
	SetupPayment(ctx context.Context, orderID string) (PlacedOrder, error)
	VerifyPayment(ctx context.Context, cmd VerifyPaymentCommand) (domain.Order, error)
	GetOrder(ctx context.Context, orderID string) (domain.Order, error)
	ListOrders(ctx context.Context, query ListOrdersQuery) ([]domain.Order, error)
	OverrideStatus(ctx context.Context, cmd OverrideStatusCommand) (domain.Order, error)
	DeleteOrder(ctx context.Context, orderID string) error
}

// WebhookService reconciles gateway webhook deliveries against stored orders.
type WebhookService interface {
	ProcessEvent(ctx context.Context, body []byte, signature string) error
}
