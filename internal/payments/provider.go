package payments

import (
	"context"
	"errors"
)

var (
	// ErrGatewayNotConfigured is returned when no gateway credentials are deployed.
	ErrGatewayNotConfigured = errors.New("payments: gateway not configured")
	// ErrGatewayUnavailable is returned when the gateway cannot be reached in time.
	ErrGatewayUnavailable = errors.New("payments: gateway unavailable")
)

// OrderRequest captures the payload for registering an order with the gateway.
type OrderRequest struct {
	// Receipt carries the internal order identifier so gateway dashboards and
	// webhook payloads can be traced back to the aggregate.
	Receipt  string
	Amount   int64
	Currency string
	Notes    map[string]string
}

// GatewayOrder is the gateway's registration of a pending payment.
type GatewayOrder struct {
	Reference string
	Amount    int64
	Currency  string
	Status    string
}

// Gateway abstracts the payment gateway used during checkout.
type Gateway interface {
	// Available reports whether the gateway can accept registrations.
	Available() bool
	// KeyID returns the public key identifier clients embed in their payment widget.
	KeyID() string
	// CreateOrder registers a pending payment with the gateway.
	CreateOrder(ctx context.Context, req OrderRequest) (GatewayOrder, error)
}

// disabledGateway is used when no credentials are configured. Checkout still
// works; orders park in a state awaiting payment setup.
type disabledGateway struct{}

// NewDisabledGateway returns a Gateway that rejects every registration.
func NewDisabledGateway() Gateway { return disabledGateway{} }

func (disabledGateway) Available() bool { return false }

func (disabledGateway) KeyID() string { return "" }

func (disabledGateway) CreateOrder(context.Context, OrderRequest) (GatewayOrder, error) {
	return GatewayOrder{}, ErrGatewayNotConfigured
}
