package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/candles-cuddles/api/internal/catalog"
	domain "github.com/candles-cuddles/api/internal/domain"
	"github.com/candles-cuddles/api/internal/payments"
	"github.com/candles-cuddles/api/internal/repositories"
)

const (
	orderIDPrefix = "ord_"

	orderEventPlaced         = "order.placed"
	orderEventSetupDegraded  = "order.payment_setup.degraded"
	orderEventSetupRecovered = "order.payment_setup.recovered"
	orderEventPaid           = "order.paid"
	orderEventOverridden     = "order.status.overridden"
	orderEventDeleted        = "order.deleted"
)

// statusCaptured is accepted from operators as an input alias for paid.
const statusCaptured = "captured"

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrInvalidAmount signals the resolved order total is not a positive amount.
	ErrInvalidAmount = errors.New("order: amount must be positive")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderMismatch indicates callback material referencing a different order.
	ErrOrderMismatch = errors.New("order: gateway reference mismatch")
	// ErrInvalidSignature indicates the gateway signature failed verification.
	ErrInvalidSignature = errors.New("order: invalid signature")
	// ErrOrderInvalidState indicates a status transition outside the allowed set.
	ErrOrderInvalidState = errors.New("order: invalid status transition")
	// ErrIllegalDeletion indicates a deletion attempt outside pending or failed.
	ErrIllegalDeletion = errors.New("order: only pending or failed orders can be deleted")
	// ErrOrderConflict indicates concurrent updates raced on the same order.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrPaymentSetupUnavailable indicates the gateway cannot register orders right now.
	ErrPaymentSetupUnavailable = errors.New("order: payment setup unavailable")
)

// allStatuses lists every lifecycle status. Operator overrides are permitted
// from any of them; the automated paths carry their own narrower guards.
var allStatuses = []domain.OrderStatus{
	domain.OrderStatusPending,
	domain.OrderStatusAwaitingPaymentSetup,
	domain.OrderStatusPaid,
	domain.OrderStatusFailed,
	domain.OrderStatusCancelled,
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Customers   repositories.CustomerRepository
	Catalog     CatalogResolver
	Gateway     payments.Gateway
	Verifier    SignatureVerifier
	Notifier    ConfirmationNotifier
	Currency    string
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders    repositories.OrderRepository
	customers repositories.CustomerRepository
	catalog   CatalogResolver
	gateway   payments.Gateway
	verifier  SignatureVerifier
	notifier  ConfirmationNotifier
	currency  string
	clock     func() time.Time
	newID     func() string
	logger    func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Catalog == nil {
		return nil, errors.New("order service: catalog resolver is required")
	}
	if deps.Verifier == nil {
		return nil, errors.New("order service: signature verifier is required")
	}

	gateway := deps.Gateway
	if gateway == nil {
		gateway = payments.NewDisabledGateway()
	}

	currency := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = "INR"
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return orderIDPrefix + ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:    deps.Orders,
		customers: deps.Customers,
		catalog:   deps.Catalog,
		gateway:   gateway,
		verifier:  deps.Verifier,
		notifier:  deps.Notifier,
		currency:  currency,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

// PlaceOrder resolves the cart, reserves stock, persists the order, and
// registers it with the payment gateway. A gateway failure never loses the
// order; it parks in awaiting_payment_setup and the result reports the
// degraded outcome.
func (s *orderService) PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (PlacedOrder, error) {
	buyer, err := normaliseBuyer(cmd.Buyer)
	if err != nil {
		return PlacedOrder{}, err
	}
	if len(cmd.Lines) == 0 {
		return PlacedOrder{}, fmt.Errorf("%w: at least one line item is required", ErrOrderInvalidInput)
	}

	requests := make([]catalog.LineRequest, 0, len(cmd.Lines))
	for _, line := range cmd.Lines {
		requests = append(requests, catalog.LineRequest{ProductID: line.ProductID, Quantity: line.Quantity})
	}
	resolution, err := s.catalog.Resolve(ctx, requests)
	if err != nil {
		return PlacedOrder{}, err
	}
	if resolution.Amount <= 0 {
		return PlacedOrder{}, fmt.Errorf("%w: resolved total is %d", ErrInvalidAmount, resolution.Amount)
	}

	buyer.CustomerRef = s.resolveCustomerRef(ctx, buyer.CustomerRef)

	now := s.clock()
	order := domain.Order{
		ID:        s.newID(),
		Buyer:     buyer,
		LineItems: resolution.Lines,
		Amount:    resolution.Amount,
		Currency:  s.currency,
		Status:    domain.OrderStatusPending,
		Metadata:  cloneMetadata(cmd.Metadata),
		CreatedAt: now,
		UpdatedAt: now,
	}

	decrements := make([]repositories.StockDecrement, 0, len(resolution.Lines))
	for _, line := range resolution.Lines {
		decrements = append(decrements, repositories.StockDecrement{ProductID: line.ProductID, Quantity: line.Quantity})
	}

	if err := s.orders.Create(ctx, order, decrements); err != nil {
		return PlacedOrder{}, s.mapRepositoryError(err)
	}
	s.logger(ctx, orderEventPlaced, map[string]any{"orderId": order.ID, "amount": order.Amount})

	return s.registerWithGateway(ctx, order)
}

// SetupPayment retries gateway registration for an order parked in
// awaiting_payment_setup, or one whose registration never happened.
func (s *orderService) SetupPayment(ctx context.Context, orderID string) (PlacedOrder, error) {
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return PlacedOrder{}, err
	}

	switch {
	case order.Status == domain.OrderStatusAwaitingPaymentSetup:
	case order.Status == domain.OrderStatusPending && order.GatewayOrderRef == "":
	default:
		return PlacedOrder{}, fmt.Errorf("%w: order %s is %s", ErrOrderInvalidState, order.ID, order.Status)
	}

	if !s.gateway.Available() {
		return PlacedOrder{}, fmt.Errorf("%w: gateway not configured", ErrPaymentSetupUnavailable)
	}

	placed, err := s.registerWithGateway(ctx, order)
	if err != nil {
		return PlacedOrder{}, err
	}
	if placed.PaymentSetupPending {
		return placed, ErrPaymentSetupUnavailable
	}
	s.logger(ctx, orderEventSetupRecovered, map[string]any{"orderId": order.ID})
	return placed, nil
}

func (s *orderService) registerWithGateway(ctx context.Context, order domain.Order) (PlacedOrder, error) {
	if !s.gateway.Available() {
		// No gateway is configured for this deployment. Registration is
		// skipped entirely and the order stays pending; this is not the
		// degraded outcome, which is reserved for a configured gateway
		// failing to answer.
		s.logger(ctx, "order.gateway.skipped", map[string]any{"orderId": order.ID})
		return PlacedOrder{Order: order}, nil
	}

	gatewayOrder, err := s.gateway.CreateOrder(ctx, payments.OrderRequest{
		Receipt:  order.ID,
		Amount:   order.Amount,
		Currency: order.Currency,
		Notes:    map[string]string{"email": order.Buyer.Email},
	})
	if err != nil {
		if errors.Is(err, payments.ErrGatewayUnavailable) || errors.Is(err, payments.ErrGatewayNotConfigured) {
			return s.degradeOrder(ctx, order, err)
		}
		return PlacedOrder{}, err
	}

	now := s.clock()
	if err := s.orders.SetGatewayOrderRef(ctx, order.ID, gatewayOrder.Reference, now); err != nil {
		return PlacedOrder{}, s.mapRepositoryError(err)
	}

	order.GatewayOrderRef = gatewayOrder.Reference
	order.Status = domain.OrderStatusPending
	order.UpdatedAt = now
	return PlacedOrder{Order: order, GatewayKeyID: s.gateway.KeyID()}, nil
}

// degradeOrder parks the order in awaiting_payment_setup. The stock stays
// reserved; the buyer can retry payment setup without re-ordering.
func (s *orderService) degradeOrder(ctx context.Context, order domain.Order, cause error) (PlacedOrder, error) {
	s.logger(ctx, orderEventSetupDegraded, map[string]any{"orderId": order.ID, "cause": cause.Error()})

	if order.Status != domain.OrderStatusAwaitingPaymentSetup {
		updated, err := s.orders.Transition(ctx, repositories.OrderTransition{
			OrderID: order.ID,
			From:    []domain.OrderStatus{domain.OrderStatusPending},
			To:      domain.OrderStatusAwaitingPaymentSetup,
			Now:     s.clock(),
		})
		if err != nil {
			var transitionErr *repositories.TransitionError
			if !errors.As(err, &transitionErr) {
				return PlacedOrder{}, s.mapRepositoryError(err)
			}
			// Raced with another actor; report whatever the order became.
			updated, err = s.GetOrder(ctx, order.ID)
			if err != nil {
				return PlacedOrder{}, err
			}
		}
		order = updated
	}
	return PlacedOrder{Order: order, PaymentSetupPending: true}, nil
}

// VerifyPayment validates the browser callback and settles the order. The
// status write is transactional and guarded, so two racing confirmations
// produce exactly one paid transition; the loser observes paid and succeeds
// without side effects.
func (s *orderService) VerifyPayment(ctx context.Context, cmd VerifyPaymentCommand) (domain.Order, error) {
	if strings.TrimSpace(cmd.PaymentRef) == "" || strings.TrimSpace(cmd.Signature) == "" {
		return domain.Order{}, fmt.Errorf("%w: payment reference and signature are required", ErrOrderInvalidInput)
	}

	order, err := s.GetOrder(ctx, cmd.OrderID)
	if err != nil {
		return domain.Order{}, err
	}
	if order.GatewayOrderRef == "" || order.GatewayOrderRef != strings.TrimSpace(cmd.GatewayOrderRef) {
		return domain.Order{}, fmt.Errorf("%w: order %s", ErrOrderMismatch, order.ID)
	}

	ok, err := s.verifier.VerifyCallback(order.GatewayOrderRef, cmd.PaymentRef, cmd.Signature)
	if err != nil {
		return domain.Order{}, fmt.Errorf("order: callback verification: %w", err)
	}
	if !ok {
		s.logger(ctx, "order.signature.rejected", map[string]any{"orderId": order.ID})
		return domain.Order{}, ErrInvalidSignature
	}

	now := s.clock()
	updated, err := s.orders.Transition(ctx, repositories.OrderTransition{
		OrderID:      order.ID,
		From:         []domain.OrderStatus{domain.OrderStatusPending, domain.OrderStatusAwaitingPaymentSetup},
		To:           domain.OrderStatusPaid,
		PaymentRef:   cmd.PaymentRef,
		Signature:    cmd.Signature,
		ConfirmedVia: domain.PaymentPathCallback,
		Now:          now,
	})
	if err != nil {
		var transitionErr *repositories.TransitionError
		if errors.As(err, &transitionErr) {
			if transitionErr.Current == domain.OrderStatusPaid {
				// Already settled by the webhook or a concurrent callback.
				return s.GetOrder(ctx, order.ID)
			}
			return domain.Order{}, fmt.Errorf("%w: order %s is %s", ErrOrderInvalidState, order.ID, transitionErr.Current)
		}
		return domain.Order{}, s.mapRepositoryError(err)
	}

	s.logger(ctx, orderEventPaid, map[string]any{"orderId": updated.ID, "via": string(domain.PaymentPathCallback)})
	s.notifyConfirmed(ctx, updated, now)
	return updated, nil
}

// GetOrder fetches a single order.
func (s *orderService) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}
	return order, nil
}

// ListOrders returns orders for the admin surface.
func (s *orderService) ListOrders(ctx context.Context, query ListOrdersQuery) ([]domain.Order, error) {
	filter := repositories.OrderListFilter{
		Email: strings.ToLower(strings.TrimSpace(query.Email)),
		Limit: query.Limit,
	}
	if raw := strings.TrimSpace(query.Status); raw != "" {
		status, err := resolveStatusInput(raw)
		if err != nil {
			return nil, err
		}
		filter.Status = status
	}

	orders, err := s.orders.List(ctx, filter)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return orders, nil
}

// OverrideStatus applies an operator-forced status change. Any defined status
// may be set from any current status; operators are the correction path for
// bad automated outcomes. "captured" is accepted as an input alias for paid;
// the stored status is always canonical.
func (s *orderService) OverrideStatus(ctx context.Context, cmd OverrideStatusCommand) (domain.Order, error) {
	target, err := resolveStatusInput(cmd.Status)
	if err != nil {
		return domain.Order{}, err
	}

	order, err := s.GetOrder(ctx, cmd.OrderID)
	if err != nil {
		return domain.Order{}, err
	}
	if order.Status == target {
		return order, nil
	}

	transition := repositories.OrderTransition{
		OrderID: order.ID,
		From:    allStatuses,
		To:      target,
		Now:     s.clock(),
		Metadata: map[string]any{
			"overriddenBy": strings.TrimSpace(cmd.ActorID),
		},
	}
	if reason := strings.TrimSpace(cmd.Reason); reason != "" {
		transition.Metadata["overrideReason"] = reason
	}
	if target == domain.OrderStatusPaid {
		transition.ConfirmedVia = domain.PaymentPathManual
	}

	updated, err := s.orders.Transition(ctx, transition)
	if err != nil {
		var transitionErr *repositories.TransitionError
		if errors.As(err, &transitionErr) {
			if transitionErr.Current == target {
				return s.GetOrder(ctx, order.ID)
			}
			return domain.Order{}, fmt.Errorf("%w: order %s is %s", ErrOrderInvalidState, order.ID, transitionErr.Current)
		}
		return domain.Order{}, s.mapRepositoryError(err)
	}

	s.logger(ctx, orderEventOverridden, map[string]any{
		"orderId": updated.ID,
		"status":  string(updated.Status),
		"actorId": cmd.ActorID,
	})
	if target == domain.OrderStatusPaid {
		s.notifyConfirmed(ctx, updated, updated.UpdatedAt)
	}
	return updated, nil
}

// DeleteOrder removes a pending order, restocking its line items.
func (s *orderService) DeleteOrder(ctx context.Context, orderID string) error {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	if err := s.orders.Delete(ctx, orderID); err != nil {
		var guardErr *repositories.DeleteGuardError
		if errors.As(err, &guardErr) {
			return fmt.Errorf("%w: order %s is %s", ErrIllegalDeletion, orderID, guardErr.Current)
		}
		return s.mapRepositoryError(err)
	}
	s.logger(ctx, orderEventDeleted, map[string]any{"orderId": orderID})
	return nil
}

func (s *orderService) resolveCustomerRef(ctx context.Context, customerRef string) string {
	customerRef = strings.TrimSpace(customerRef)
	if customerRef == "" || s.customers == nil {
		return customerRef
	}
	exists, err := s.customers.Exists(ctx, customerRef)
	if err != nil {
		s.logger(ctx, "order.customer.lookup_failed", map[string]any{"customerRef": customerRef, "error": err.Error()})
		return customerRef
	}
	if !exists {
		s.logger(ctx, "order.customer.unknown_ref", map[string]any{"customerRef": customerRef})
		return ""
	}
	return customerRef
}

func (s *orderService) notifyConfirmed(ctx context.Context, order domain.Order, occurredAt time.Time) {
	notifyConfirmed(ctx, s.notifier, s.logger, order, occurredAt)
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var stockErr *repositories.StockError
	if errors.As(err, &stockErr) {
		return fmt.Errorf("%w: %s has %d left", catalog.ErrInsufficientStock, stockErr.ProductID, stockErr.Available)
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		}
	}
	return err
}

// notifyConfirmed publishes the confirmation job. Delivery failures are
// logged, never surfaced; the payment is already settled.
func notifyConfirmed(ctx context.Context, notifier ConfirmationNotifier, logger func(context.Context, string, map[string]any), order domain.Order, occurredAt time.Time) {
	if notifier == nil {
		return
	}
	err := notifier.NotifyOrderConfirmed(ctx, OrderConfirmation{
		OrderID:      order.ID,
		Email:        order.Buyer.Email,
		Amount:       order.Amount,
		Currency:     order.Currency,
		ConfirmedVia: order.PaymentConfirmedVia,
		OccurredAt:   occurredAt,
	})
	if err != nil {
		logger(ctx, "order.confirmation.publish_failed", map[string]any{"orderId": order.ID, "error": err.Error()})
	}
}

func normaliseBuyer(buyer domain.Buyer) (domain.Buyer, error) {
	buyer.Name = strings.TrimSpace(buyer.Name)
	buyer.Email = strings.ToLower(strings.TrimSpace(buyer.Email))
	buyer.Phone = strings.TrimSpace(buyer.Phone)
	buyer.CustomerRef = strings.TrimSpace(buyer.CustomerRef)

	if buyer.Name == "" {
		return domain.Buyer{}, fmt.Errorf("%w: buyer name is required", ErrOrderInvalidInput)
	}
	if buyer.Email == "" || !strings.Contains(buyer.Email, "@") {
		return domain.Buyer{}, fmt.Errorf("%w: valid buyer email is required", ErrOrderInvalidInput)
	}
	return buyer, nil
}

func resolveStatusInput(raw string) (domain.OrderStatus, error) {
	normalised := strings.ToLower(strings.TrimSpace(raw))
	if normalised == statusCaptured {
		return domain.OrderStatusPaid, nil
	}
	status := domain.OrderStatus(normalised)
	if !status.Valid() {
		return "", fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, raw)
	}
	return status, nil
}

func cloneMetadata(metadata map[string]any) map[string]any {
	if len(metadata) == 0 {
		return nil
	}
	clone := make(map[string]any, len(metadata))
	for key, value := range metadata {
		clone[key] = value
	}
	return clone
}
