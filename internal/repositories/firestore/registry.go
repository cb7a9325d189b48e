package firestore

import (
	"context"
	"errors"

	"google.golang.org/api/iterator"

	pfirestore "github.com/candles-cuddles/api/internal/platform/firestore"
	"github.com/candles-cuddles/api/internal/repositories"
)

// Registry bundles the Firestore-backed repository implementations.
type Registry struct {
	provider  *pfirestore.Provider
	orders    *OrderRepository
	products  *ProductRepository
	customers *CustomerRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry wires all repositories against the shared provider.
func NewRegistry(provider *pfirestore.Provider) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry requires firestore provider")
	}

	orders, err := NewOrderRepository(provider)
	if err != nil {
		return nil, err
	}
	products, err := NewProductRepository(provider)
	if err != nil {
		return nil, err
	}
	customers, err := NewCustomerRepository(provider)
	if err != nil {
		return nil, err
	}

	return &Registry{
		provider:  provider,
		orders:    orders,
		products:  products,
		customers: customers,
	}, nil
}

// Close releases the underlying Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

// Orders returns the order repository.
func (r *Registry) Orders() repositories.OrderRepository { return r.orders }

// Products returns the product repository.
func (r *Registry) Products() repositories.ProductRepository { return r.products }

// Customers returns the customer repository.
func (r *Registry) Customers() repositories.CustomerRepository { return r.customers }

// Health returns a datastore connectivity probe.
func (r *Registry) Health() repositories.HealthRepository {
	return &healthRepository{provider: r.provider}
}

type healthRepository struct {
	provider *pfirestore.Provider
}

// Check performs a cheap read against the orders collection to verify connectivity.
func (h *healthRepository) Check(ctx context.Context) error {
	client, err := h.provider.Client(ctx)
	if err != nil {
		return err
	}
	iter := client.Collection(ordersCollection).Query.Limit(1).Documents(ctx)
	defer iter.Stop()
	if _, err := iter.Next(); err != nil && !errors.Is(err, iterator.Done) {
		return pfirestore.WrapError("health.check", err)
	}
	return nil
}
