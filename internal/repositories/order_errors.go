package repositories

import (
	"fmt"

	domain "github.com/candles-cuddles/api/internal/domain"
)

// StockError reports that a product could not cover the requested quantity
// at order creation time.
type StockError struct {
	ProductID string
	Requested int
	Available int64
}

// Error implements the error interface.
func (e *StockError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d", e.ProductID, e.Requested, e.Available)
}

// TransitionError reports a guarded status update that found the order in a
// status outside the allowed set. Current carries the status observed in the
// transaction so callers can decide whether the outcome is idempotent success
// or a genuine conflict.
type TransitionError struct {
	OrderID string
	Current domain.OrderStatus
	Target  domain.OrderStatus
}

// Error implements the error interface.
func (e *TransitionError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("order %s is %s, cannot transition to %s", e.OrderID, e.Current, e.Target)
}

// DeleteGuardError reports an order deletion attempted outside the deletable
// statuses (pending and failed).
type DeleteGuardError struct {
	OrderID string
	Current domain.OrderStatus
}

// Error implements the error interface.
func (e *DeleteGuardError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("order %s is %s, only pending or failed orders can be deleted", e.OrderID, e.Current)
}
