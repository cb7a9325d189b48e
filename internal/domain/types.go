package domain

import (
	"time"
)

// OrderStatus enumerates valid lifecycle states for orders.
type OrderStatus string

const (
	// OrderStatusPending indicates the order has been priced and persisted but not yet paid.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusAwaitingPaymentSetup indicates gateway registration failed and must be retried
	// before the buyer can pay.
	OrderStatusAwaitingPaymentSetup OrderStatus = "awaiting_payment_setup"
	// OrderStatusPaid indicates a verified payment confirmation was recorded; funds are secured.
	OrderStatusPaid OrderStatus = "paid"
	// OrderStatusFailed indicates the gateway reported a failed payment.
	OrderStatusFailed OrderStatus = "failed"
	// OrderStatusCancelled indicates the order was cancelled by an operator.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// PaymentPath records which entry path confirmed a payment, kept for audit only.
type PaymentPath string

const (
	// PaymentPathCallback marks confirmation via the buyer's browser callback.
	PaymentPathCallback PaymentPath = "callback"
	// PaymentPathWebhook marks confirmation via a gateway server-to-server event.
	PaymentPathWebhook PaymentPath = "webhook"
	// PaymentPathManual marks a manual operator override.
	PaymentPathManual PaymentPath = "manual"
)

// Buyer is the contact snapshot frozen into an order at creation time.
type Buyer struct {
	Name  string
	Email string
	Phone string
	// CustomerRef is a weak reference to a registered customer identity.
	// Lookup only: the order never owns or mutates the customer record.
	CustomerRef string
}

// OrderLineItem is a price snapshot captured at order creation. Title and
// UnitPrice are frozen copies, decoupled from the live product record so that
// receipts and audits reflect what the buyer agreed to pay.
type OrderLineItem struct {
	ProductID string
	Title     string
	UnitPrice int64
	Quantity  int
}

// Order is the central aggregate of the payment core. Amount is denominated
// in the smallest currency unit and always equals the sum of
// UnitPrice x Quantity over LineItems.
type Order struct {
	ID        string
	Buyer     Buyer
	LineItems []OrderLineItem
	Amount    int64
	Currency  string
	Status    OrderStatus

	// GatewayOrderRef is the gateway-side handle obtained at registration;
	// empty when the gateway was unreachable or unconfigured.
	GatewayOrderRef string
	// GatewayPaymentRef and GatewaySignature are the durable proof of payment,
	// set only by a verified confirmation.
	GatewayPaymentRef string
	GatewaySignature  string
	// PaymentConfirmedVia annotates which path confirmed the payment.
	PaymentConfirmedVia PaymentPath

	// Metadata is an additive diagnostic bag (gateway event payloads,
	// operator notes). Never used for business logic.
	Metadata map[string]any

	CreatedAt   time.Time
	UpdatedAt   time.Time
	PaidAt      *time.Time
	FailedAt    *time.Time
	CancelledAt *time.Time
}

// Total returns the recomputed line-item sum, used to assert the amount invariant.
func (o Order) Total() int64 {
	var total int64
	for _, item := range o.LineItems {
		total += item.UnitPrice * int64(item.Quantity)
	}
	return total
}

// TerminalPositive reports whether the order already holds a confirmed payment.
func (o Order) TerminalPositive() bool {
	return o.Status == OrderStatusPaid
}

// HoldsStock reports whether the order still holds decremented catalog stock.
// Stock is taken at creation and returned when the order fails, is cancelled,
// or a pending order is deleted.
func (s OrderStatus) HoldsStock() bool {
	return s == OrderStatusPending || s == OrderStatusAwaitingPaymentSetup
}

// Valid reports whether the status is one of the defined lifecycle states.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusAwaitingPaymentSetup, OrderStatusPaid, OrderStatusFailed, OrderStatusCancelled:
		return true
	}
	return false
}

// Product is the read model of the catalog's product documents. The payment
// core reads title/price/stock/active and conditionally decrements stock; all
// other catalog fields belong to the storefront CRUD surface.
type Product struct {
	ID        string
	Title     string
	Price     int64
	Stock     int64
	Active    bool
	Images    []string
	UpdatedAt time.Time
}

// Customer is the read model used for weak buyer linking.
type Customer struct {
	ID    string
	Email string
}
