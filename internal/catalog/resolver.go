package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domain "github.com/candles-cuddles/api/internal/domain"
	"github.com/candles-cuddles/api/internal/repositories"
)

var (
	// ErrEmptyCart indicates that no resolvable line items were requested.
	ErrEmptyCart = errors.New("catalog: cart has no line items")
	// ErrProductUnavailable indicates a missing or inactive product.
	ErrProductUnavailable = errors.New("catalog: product unavailable")
	// ErrInsufficientStock indicates a requested quantity above the stored stock.
	ErrInsufficientStock = errors.New("catalog: insufficient stock")
	// ErrInvalidQuantity indicates a non-positive requested quantity.
	ErrInvalidQuantity = errors.New("catalog: quantity must be positive")
)

// LineRequest names a product and the quantity the buyer wants.
type LineRequest struct {
	ProductID string
	Quantity  int
}

// Resolution is the priced snapshot of a cart. Titles and unit prices are
// copied from the catalog at resolution time so later catalog edits never
// change what the buyer agreed to pay.
type Resolution struct {
	Lines  []domain.OrderLineItem
	Amount int64
}

// Resolver prices carts against the stored catalog. It is a read-only
// precheck; the definitive stock reservation happens when the order is
// written.
type Resolver struct {
	products repositories.ProductRepository
}

// NewResolver constructs a Resolver.
func NewResolver(products repositories.ProductRepository) (*Resolver, error) {
	if products == nil {
		return nil, errors.New("catalog resolver requires product repository")
	}
	return &Resolver{products: products}, nil
}

// Resolve validates the requested lines against the catalog and prices them.
// Requests for the same product are merged before lookup.
func (r *Resolver) Resolve(ctx context.Context, requests []LineRequest) (Resolution, error) {
	merged, order, err := mergeRequests(requests)
	if err != nil {
		return Resolution{}, err
	}
	if len(order) == 0 {
		return Resolution{}, ErrEmptyCart
	}

	products, err := r.products.FindByIDs(ctx, order)
	if err != nil {
		return Resolution{}, err
	}

	resolution := Resolution{Lines: make([]domain.OrderLineItem, 0, len(order))}
	for _, productID := range order {
		quantity := merged[productID]
		product, ok := products[productID]
		if !ok || !product.Active {
			return Resolution{}, fmt.Errorf("%w: %s", ErrProductUnavailable, productID)
		}
		if product.Stock < int64(quantity) {
			return Resolution{}, fmt.Errorf("%w: %s has %d left", ErrInsufficientStock, productID, product.Stock)
		}

		line := domain.OrderLineItem{
			ProductID: product.ID,
			Title:     product.Title,
			UnitPrice: product.Price,
			Quantity:  quantity,
		}
		resolution.Lines = append(resolution.Lines, line)
		resolution.Amount += product.Price * int64(quantity)
	}
	return resolution, nil
}

func mergeRequests(requests []LineRequest) (map[string]int, []string, error) {
	merged := make(map[string]int, len(requests))
	order := make([]string, 0, len(requests))
	for _, request := range requests {
		productID := strings.TrimSpace(request.ProductID)
		if productID == "" {
			continue
		}
		if request.Quantity <= 0 {
			return nil, nil, fmt.Errorf("%w: %s", ErrInvalidQuantity, productID)
		}
		if _, ok := merged[productID]; !ok {
			order = append(order, productID)
		}
		merged[productID] += request.Quantity
	}
	return merged, order, nil
}
