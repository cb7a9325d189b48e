package repositories

import (
	"context"
	"time"

	domain "github.com/candles-cuddles/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Orders() OrderRepository
	Products() ProductRepository
	Customers() CustomerRepository
	Health() HealthRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// StockDecrement names a product whose stock must shrink atomically with an order write.
type StockDecrement struct {
	ProductID string
	Quantity  int
}

// OrderTransition describes a guarded status update applied in a single transaction.
// The write happens only while the order status is one of From; otherwise the
// repository returns a TransitionError carrying the current status.
type OrderTransition struct {
	OrderID      string
	From         []domain.OrderStatus
	To           domain.OrderStatus
	PaymentRef   string
	Signature    string
	ConfirmedVia domain.PaymentPath
	Metadata     map[string]any
	Now          time.Time
}

// OrderListFilter narrows admin order listings.
type OrderListFilter struct {
	Status domain.OrderStatus
	Email  string
	Limit  int
}

// OrderRepository persists order aggregates.
//
// Create reserves stock and writes the order in one transaction. Transition
// applies guarded status updates and restocks held inventory when the order
// leaves a stock-holding status for failed or cancelled. Delete removes
// pending orders only, restocking their line items.
type OrderRepository interface {
	Create(ctx context.Context, order domain.Order, decrements []StockDecrement) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	FindByGatewayOrderRef(ctx context.Context, gatewayOrderRef string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) ([]domain.Order, error)
	SetGatewayOrderRef(ctx context.Context, orderID, gatewayOrderRef string, now time.Time) error
	Transition(ctx context.Context, transition OrderTransition) (domain.Order, error)
	Delete(ctx context.Context, orderID string) error
}

// ProductRepository reads catalog snapshots.
type ProductRepository interface {
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	FindByIDs(ctx context.Context, productIDs []string) (map[string]domain.Product, error)
}

// CustomerRepository resolves buyer references against stored customer profiles.
type CustomerRepository interface {
	Exists(ctx context.Context, customerRef string) (bool, error)
}

// HealthRepository verifies datastore connectivity for readiness probes.
type HealthRepository interface {
	Check(ctx context.Context) error
}
