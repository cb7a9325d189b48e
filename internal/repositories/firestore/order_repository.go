package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/candles-cuddles/api/internal/domain"
	pfirestore "github.com/candles-cuddles/api/internal/platform/firestore"
	"github.com/candles-cuddles/api/internal/repositories"
)

const (
	ordersCollection = "orders"

	defaultListLimit = 50
	maxListLimit     = 200
)

type orderDocument struct {
	Buyer               buyerDocument      `firestore:"buyer"`
	LineItems           []lineItemDocument `firestore:"lineItems"`
	Amount              int64              `firestore:"amount"`
	Currency            string             `firestore:"currency"`
	Status              string             `firestore:"status"`
	GatewayOrderRef     string             `firestore:"gatewayOrderRef"`
	GatewayPaymentRef   string             `firestore:"gatewayPaymentRef"`
	GatewaySignature    string             `firestore:"gatewaySignature"`
	PaymentConfirmedVia string             `firestore:"paymentConfirmedVia"`
	Metadata            map[string]any     `firestore:"metadata"`
	CreatedAt           time.Time          `firestore:"createdAt"`
	UpdatedAt           time.Time          `firestore:"updatedAt"`
	PaidAt              *time.Time         `firestore:"paidAt"`
	FailedAt            *time.Time         `firestore:"failedAt"`
	CancelledAt         *time.Time         `firestore:"cancelledAt"`
}

type buyerDocument struct {
	Name        string `firestore:"name"`
	Email       string `firestore:"email"`
	Phone       string `firestore:"phone"`
	CustomerRef string `firestore:"customerRef"`
}

type lineItemDocument struct {
	ProductID string `firestore:"productId"`
	Title     string `firestore:"title"`
	UnitPrice int64  `firestore:"unitPrice"`
	Quantity  int    `firestore:"quantity"`
}

func newOrderDocument(order domain.Order) orderDocument {
	lines := make([]lineItemDocument, 0, len(order.LineItems))
	for _, line := range order.LineItems {
		lines = append(lines, lineItemDocument{
			ProductID: line.ProductID,
			Title:     line.Title,
			UnitPrice: line.UnitPrice,
			Quantity:  line.Quantity,
		})
	}
	return orderDocument{
		Buyer: buyerDocument{
			Name:        order.Buyer.Name,
			Email:       order.Buyer.Email,
			Phone:       order.Buyer.Phone,
			CustomerRef: order.Buyer.CustomerRef,
		},
		LineItems:           lines,
		Amount:              order.Amount,
		Currency:            order.Currency,
		Status:              string(order.Status),
		GatewayOrderRef:     order.GatewayOrderRef,
		GatewayPaymentRef:   order.GatewayPaymentRef,
		GatewaySignature:    order.GatewaySignature,
		PaymentConfirmedVia: string(order.PaymentConfirmedVia),
		Metadata:            order.Metadata,
		CreatedAt:           order.CreatedAt.UTC(),
		UpdatedAt:           order.UpdatedAt.UTC(),
		PaidAt:              order.PaidAt,
		FailedAt:            order.FailedAt,
		CancelledAt:         order.CancelledAt,
	}
}

func (d orderDocument) toDomain(id string) domain.Order {
	lines := make([]domain.OrderLineItem, 0, len(d.LineItems))
	for _, line := range d.LineItems {
		lines = append(lines, domain.OrderLineItem{
			ProductID: line.ProductID,
			Title:     line.Title,
			UnitPrice: line.UnitPrice,
			Quantity:  line.Quantity,
		})
	}
	return domain.Order{
		ID: id,
		Buyer: domain.Buyer{
			Name:        d.Buyer.Name,
			Email:       d.Buyer.Email,
			Phone:       d.Buyer.Phone,
			CustomerRef: d.Buyer.CustomerRef,
		},
		LineItems:           lines,
		Amount:              d.Amount,
		Currency:            d.Currency,
		Status:              domain.OrderStatus(d.Status),
		GatewayOrderRef:     d.GatewayOrderRef,
		GatewayPaymentRef:   d.GatewayPaymentRef,
		GatewaySignature:    d.GatewaySignature,
		PaymentConfirmedVia: domain.PaymentPath(d.PaymentConfirmedVia),
		Metadata:            d.Metadata,
		CreatedAt:           d.CreatedAt,
		UpdatedAt:           d.UpdatedAt,
		PaidAt:              d.PaidAt,
		FailedAt:            d.FailedAt,
		CancelledAt:         d.CancelledAt,
	}
}

// OrderRepository persists order aggregates in Firestore.
type OrderRepository struct {
	provider *pfirestore.Provider
	orders   *pfirestore.BaseRepository[orderDocument]
	products *pfirestore.BaseRepository[productDocument]
}

// NewOrderRepository constructs an OrderRepository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		provider: provider,
		orders:   pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection, nil),
		products: pfirestore.NewBaseRepository[productDocument](provider, productsCollection, nil),
	}, nil
}

// Create writes the order and decrements product stock in one transaction.
// Stock shortages detected inside the transaction surface as StockError, so a
// concurrent checkout of the last unit fails cleanly rather than overselling.
func (r *OrderRepository) Create(ctx context.Context, order domain.Order, decrements []repositories.StockDecrement) error {
	if r == nil || r.provider == nil {
		return errors.New("order repository not initialised")
	}
	if strings.TrimSpace(order.ID) == "" {
		return errors.New("order create: order id is required")
	}

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		orderRef, err := r.orders.DocumentRef(ctx, order.ID)
		if err != nil {
			return err
		}

		// Firestore transactions require every read before the first write.
		type stockUpdate struct {
			ref *firestore.DocumentRef
			doc productDocument
		}
		updates := make([]stockUpdate, 0, len(decrements))
		for _, dec := range decrements {
			if dec.Quantity <= 0 {
				return fmt.Errorf("order create: quantity for %s must be > 0", dec.ProductID)
			}
			productRef, err := r.products.DocumentRef(ctx, dec.ProductID)
			if err != nil {
				return err
			}
			snap, err := tx.Get(productRef)
			if err != nil {
				if status.Code(err) == codes.NotFound {
					return &repositories.StockError{ProductID: dec.ProductID, Requested: dec.Quantity, Available: 0}
				}
				return err
			}
			var productDoc productDocument
			if err := snap.DataTo(&productDoc); err != nil {
				return fmt.Errorf("decode product %s: %w", dec.ProductID, err)
			}
			if !productDoc.Active || productDoc.Stock < int64(dec.Quantity) {
				return &repositories.StockError{ProductID: dec.ProductID, Requested: dec.Quantity, Available: productDoc.Stock}
			}
			productDoc.Stock -= int64(dec.Quantity)
			productDoc.UpdatedAt = order.CreatedAt.UTC()
			updates = append(updates, stockUpdate{ref: productRef, doc: productDoc})
		}

		for _, update := range updates {
			if err := tx.Set(update.ref, update.doc); err != nil {
				return err
			}
		}
		return tx.Create(orderRef, newOrderDocument(order))
	})
	if err != nil {
		return wrapOrderError("orders.create", err)
	}
	return nil
}

// FindByID fetches an order by its identifier.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	doc, err := r.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// FindByGatewayOrderRef locates the order registered under the given gateway reference.
func (r *OrderRepository) FindByGatewayOrderRef(ctx context.Context, gatewayOrderRef string) (domain.Order, error) {
	ref := strings.TrimSpace(gatewayOrderRef)
	if ref == "" {
		return domain.Order{}, pfirestore.WrapError("orders.findByGatewayOrderRef", status.Error(codes.NotFound, "gateway order ref is empty"))
	}

	docs, err := r.orders.Query(ctx, func(query firestore.Query) firestore.Query {
		return query.Where("gatewayOrderRef", "==", ref).Limit(1)
	})
	if err != nil {
		return domain.Order{}, err
	}
	if len(docs) == 0 {
		return domain.Order{}, pfirestore.WrapError("orders.findByGatewayOrderRef", status.Errorf(codes.NotFound, "no order for gateway ref %s", ref))
	}
	return docs[0].Data.toDomain(docs[0].ID), nil
}

// List returns orders matching the filter, newest first.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) ([]domain.Order, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	docs, err := r.orders.Query(ctx, func(query firestore.Query) firestore.Query {
		if filter.Status != "" {
			query = query.Where("status", "==", string(filter.Status))
		}
		if email := strings.TrimSpace(filter.Email); email != "" {
			query = query.Where("buyer.email", "==", strings.ToLower(email))
		}
		return query.OrderBy("createdAt", firestore.Desc).Limit(limit)
	})
	if err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		orders = append(orders, doc.Data.toDomain(doc.ID))
	}
	return orders, nil
}

// SetGatewayOrderRef records the gateway order reference on an existing order.
// Orders parked in awaiting_payment_setup move back to pending.
func (r *OrderRepository) SetGatewayOrderRef(ctx context.Context, orderID, gatewayOrderRef string, now time.Time) error {
	if strings.TrimSpace(gatewayOrderRef) == "" {
		return errors.New("order update: gateway order ref is required")
	}

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		orderRef, err := r.orders.DocumentRef(ctx, orderID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(orderRef)
		if err != nil {
			return err
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode order %s: %w", orderID, err)
		}

		doc.GatewayOrderRef = gatewayOrderRef
		if doc.Status == string(domain.OrderStatusAwaitingPaymentSetup) {
			doc.Status = string(domain.OrderStatusPending)
		}
		doc.UpdatedAt = now.UTC()
		return tx.Set(orderRef, doc)
	})
	if err != nil {
		return wrapOrderError("orders.setGatewayOrderRef", err)
	}
	return nil
}

// Transition applies a guarded status update. When the order status is not in
// transition.From the transaction aborts with a TransitionError carrying the
// observed status; nothing is written. Held stock is returned to the catalog
// when the order leaves a stock-holding status for failed or cancelled.
func (r *OrderRepository) Transition(ctx context.Context, transition repositories.OrderTransition) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	if !transition.To.Valid() {
		return domain.Order{}, fmt.Errorf("order transition: invalid target status %q", transition.To)
	}

	var result domain.Order
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		orderRef, err := r.orders.DocumentRef(ctx, transition.OrderID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(orderRef)
		if err != nil {
			return err
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode order %s: %w", transition.OrderID, err)
		}

		current := domain.OrderStatus(doc.Status)
		if !statusAllowed(current, transition.From) {
			return &repositories.TransitionError{OrderID: transition.OrderID, Current: current, Target: transition.To}
		}

		now := transition.Now.UTC()
		restock := current.HoldsStock() && (transition.To == domain.OrderStatusFailed || transition.To == domain.OrderStatusCancelled)

		type stockUpdate struct {
			ref *firestore.DocumentRef
			doc productDocument
		}
		var updates []stockUpdate
		if restock {
			for _, line := range doc.LineItems {
				productRef, err := r.products.DocumentRef(ctx, line.ProductID)
				if err != nil {
					return err
				}
				productSnap, err := tx.Get(productRef)
				if err != nil {
					if status.Code(err) == codes.NotFound {
						continue
					}
					return err
				}
				var productDoc productDocument
				if err := productSnap.DataTo(&productDoc); err != nil {
					return fmt.Errorf("decode product %s: %w", line.ProductID, err)
				}
				productDoc.Stock += int64(line.Quantity)
				productDoc.UpdatedAt = now
				updates = append(updates, stockUpdate{ref: productRef, doc: productDoc})
			}
		}

		doc.Status = string(transition.To)
		doc.UpdatedAt = now
		if transition.PaymentRef != "" {
			doc.GatewayPaymentRef = transition.PaymentRef
		}
		if transition.Signature != "" {
			doc.GatewaySignature = transition.Signature
		}
		if transition.ConfirmedVia != "" {
			doc.PaymentConfirmedVia = string(transition.ConfirmedVia)
		}
		for key, value := range transition.Metadata {
			if doc.Metadata == nil {
				doc.Metadata = make(map[string]any)
			}
			doc.Metadata[key] = value
		}
		switch transition.To {
		case domain.OrderStatusPaid:
			if doc.PaidAt == nil {
				doc.PaidAt = &now
			}
		case domain.OrderStatusFailed:
			if doc.FailedAt == nil {
				doc.FailedAt = &now
			}
		case domain.OrderStatusCancelled:
			if doc.CancelledAt == nil {
				doc.CancelledAt = &now
			}
		}

		for _, update := range updates {
			if err := tx.Set(update.ref, update.doc); err != nil {
				return err
			}
		}
		if err := tx.Set(orderRef, doc); err != nil {
			return err
		}
		result = doc.toDomain(transition.OrderID)
		return nil
	})
	if err != nil {
		return domain.Order{}, wrapOrderError("orders.transition", err)
	}
	return result, nil
}

// Delete removes a pending or failed order. A pending order still holds
// reserved stock, which is returned; a failed order was already restocked by
// the transition that failed it. Any other status aborts with a
// DeleteGuardError.
func (r *OrderRepository) Delete(ctx context.Context, orderID string) error {
	if r == nil || r.provider == nil {
		return errors.New("order repository not initialised")
	}

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		orderRef, err := r.orders.DocumentRef(ctx, orderID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(orderRef)
		if err != nil {
			return err
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode order %s: %w", orderID, err)
		}

		current := domain.OrderStatus(doc.Status)
		if !deletableStatus(current) {
			return &repositories.DeleteGuardError{OrderID: orderID, Current: current}
		}

		now := time.Now().UTC()
		type stockUpdate struct {
			ref *firestore.DocumentRef
			doc productDocument
		}
		var updates []stockUpdate
		lines := doc.LineItems
		if !current.HoldsStock() {
			lines = nil
		}
		for _, line := range lines {
			productRef, err := r.products.DocumentRef(ctx, line.ProductID)
			if err != nil {
				return err
			}
			productSnap, err := tx.Get(productRef)
			if err != nil {
				if status.Code(err) == codes.NotFound {
					continue
				}
				return err
			}
			var productDoc productDocument
			if err := productSnap.DataTo(&productDoc); err != nil {
				return fmt.Errorf("decode product %s: %w", line.ProductID, err)
			}
			productDoc.Stock += int64(line.Quantity)
			productDoc.UpdatedAt = now
			updates = append(updates, stockUpdate{ref: productRef, doc: productDoc})
		}

		for _, update := range updates {
			if err := tx.Set(update.ref, update.doc); err != nil {
				return err
			}
		}
		return tx.Delete(orderRef)
	})
	if err != nil {
		return wrapOrderError("orders.delete", err)
	}
	return nil
}

// deletableStatus reports whether an order in the given status may be deleted.
// Paid orders are the permanent record of a settled payment; cancelled and
// in-flight orders stay for audit too.
func deletableStatus(status domain.OrderStatus) bool {
	return status == domain.OrderStatusPending || status == domain.OrderStatusFailed
}

func statusAllowed(current domain.OrderStatus, allowed []domain.OrderStatus) bool {
	for _, candidate := range allowed {
		if current == candidate {
			return true
		}
	}
	return false
}

// wrapOrderError keeps typed guard errors intact and categorises everything else.
func wrapOrderError(op string, err error) error {
	if err == nil {
		return nil
	}
	var stockErr *repositories.StockError
	var transitionErr *repositories.TransitionError
	var deleteErr *repositories.DeleteGuardError
	if errors.As(err, &stockErr) || errors.As(err, &transitionErr) || errors.As(err, &deleteErr) {
		return err
	}
	return pfirestore.WrapError(op, err)
}
