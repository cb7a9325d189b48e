package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/candles-cuddles/api/internal/catalog"
	domain "github.com/candles-cuddles/api/internal/domain"
	"github.com/candles-cuddles/api/internal/payments"
	"github.com/candles-cuddles/api/internal/repositories"
)

type stubOrderRepo struct {
	createFn          func(ctx context.Context, order domain.Order, decrements []repositories.StockDecrement) error
	findByIDFn        func(ctx context.Context, orderID string) (domain.Order, error)
	findByGatewayFn   func(ctx context.Context, gatewayOrderRef string) (domain.Order, error)
	listFn            func(ctx context.Context, filter repositories.OrderListFilter) ([]domain.Order, error)
	setGatewayRefFn   func(ctx context.Context, orderID, gatewayOrderRef string, now time.Time) error
	transitionFn      func(ctx context.Context, transition repositories.OrderTransition) (domain.Order, error)
	deleteFn          func(ctx context.Context, orderID string) error
	transitionCalls   int
	createCalls       int
	setGatewayRefCall int
}

func (s *stubOrderRepo) Create(ctx context.Context, order domain.Order, decrements []repositories.StockDecrement) error {
	s.createCalls++
	if s.createFn == nil {
		return nil
	}
	return s.createFn(ctx, order, decrements)
}

func (s *stubOrderRepo) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if s.findByIDFn == nil {
		return domain.Order{}, notFoundErr{}
	}
	return s.findByIDFn(ctx, orderID)
}

func (s *stubOrderRepo) FindByGatewayOrderRef(ctx context.Context, ref string) (domain.Order, error) {
	if s.findByGatewayFn == nil {
		return domain.Order{}, notFoundErr{}
	}
	return s.findByGatewayFn(ctx, ref)
}

func (s *stubOrderRepo) List(ctx context.Context, filter repositories.OrderListFilter) ([]domain.Order, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, filter)
}

func (s *stubOrderRepo) SetGatewayOrderRef(ctx context.Context, orderID, ref string, now time.Time) error {
	s.setGatewayRefCall++
	if s.setGatewayRefFn == nil {
		return nil
	}
	return s.setGatewayRefFn(ctx, orderID, ref, now)
}

func (s *stubOrderRepo) Transition(ctx context.Context, transition repositories.OrderTransition) (domain.Order, error) {
	s.transitionCalls++
	if s.transitionFn == nil {
		return domain.Order{}, nil
	}
	return s.transitionFn(ctx, transition)
}

func (s *stubOrderRepo) Delete(ctx context.Context, orderID string) error {
	if s.deleteFn == nil {
		return nil
	}
	return s.deleteFn(ctx, orderID)
}

type notFoundErr struct{}

func (notFoundErr) Error() string       { return "not found" }
func (notFoundErr) IsNotFound() bool    { return true }
func (notFoundErr) IsConflict() bool    { return false }
func (notFoundErr) IsUnavailable() bool { return false }

type stubResolver struct {
	resolveFn func(ctx context.Context, requests []catalog.LineRequest) (catalog.Resolution, error)
}

func (s *stubResolver) Resolve(ctx context.Context, requests []catalog.LineRequest) (catalog.Resolution, error) {
	return s.resolveFn(ctx, requests)
}

type stubGateway struct {
	available bool
	keyID     string
	createFn  func(ctx context.Context, req payments.OrderRequest) (payments.GatewayOrder, error)
}

func (s *stubGateway) Available() bool { return s.available }
func (s *stubGateway) KeyID() string   { return s.keyID }
func (s *stubGateway) CreateOrder(ctx context.Context, req payments.OrderRequest) (payments.GatewayOrder, error) {
	return s.createFn(ctx, req)
}

type stubVerifier struct {
	callbackFn func(orderRef, paymentRef, signature string) (bool, error)
	webhookFn  func(body []byte, signature string) (bool, error)
}

func (s *stubVerifier) VerifyCallback(orderRef, paymentRef, signature string) (bool, error) {
	if s.callbackFn == nil {
		return false, nil
	}
	return s.callbackFn(orderRef, paymentRef, signature)
}

func (s *stubVerifier) VerifyWebhook(body []byte, signature string) (bool, error) {
	if s.webhookFn == nil {
		return false, nil
	}
	return s.webhookFn(body, signature)
}

type stubNotifier struct {
	confirmations []OrderConfirmation
	err           error
}

func (s *stubNotifier) NotifyOrderConfirmed(_ context.Context, confirmation OrderConfirmation) error {
	s.confirmations = append(s.confirmations, confirmation)
	return s.err
}

var fixedTime = time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

func lavenderResolution() catalog.Resolution {
	return catalog.Resolution{
		Lines: []domain.OrderLineItem{
			{ProductID: "prd_lavender", Title: "Lavender Pillar", UnitPrice: 44900, Quantity: 2},
		},
		Amount: 89800,
	}
}

func testBuyer() domain.Buyer {
	return domain.Buyer{Name: "Asha Rao", Email: "Asha@Example.com", Phone: "+911234567890"}
}

func newTestOrderService(t *testing.T, deps OrderServiceDeps) OrderService {
	t.Helper()
	if deps.Catalog == nil {
		deps.Catalog = &stubResolver{resolveFn: func(context.Context, []catalog.LineRequest) (catalog.Resolution, error) {
			return lavenderResolution(), nil
		}}
	}
	if deps.Verifier == nil {
		deps.Verifier = &stubVerifier{}
	}
	if deps.Clock == nil {
		deps.Clock = func() time.Time { return fixedTime }
	}
	if deps.IDGenerator == nil {
		deps.IDGenerator = func() string { return "ord_test" }
	}
	svc, err := NewOrderService(deps)
	if err != nil {
		t.Fatalf("NewOrderService returned error: %v", err)
	}
	return svc
}

func TestPlaceOrderRegistersGatewayOrder(t *testing.T) {
	repo := &stubOrderRepo{}
	var createdOrder domain.Order
	var createdDecrements []repositories.StockDecrement
	repo.createFn = func(_ context.Context, order domain.Order, decrements []repositories.StockDecrement) error {
		createdOrder = order
		createdDecrements = decrements
		return nil
	}

	gateway := &stubGateway{available: true, keyID: "rzp_test_key", createFn: func(_ context.Context, req payments.OrderRequest) (payments.GatewayOrder, error) {
		if req.Receipt != "ord_test" || req.Amount != 89800 {
			t.Errorf("unexpected gateway request: %+v", req)
		}
		return payments.GatewayOrder{Reference: "order_G1", Amount: req.Amount, Currency: req.Currency}, nil
	}}

	svc := newTestOrderService(t, OrderServiceDeps{Orders: repo, Gateway: gateway})

	placed, err := svc.PlaceOrder(context.Background(), PlaceOrderCommand{
		Buyer: testBuyer(),
		Lines: []OrderLineInput{{ProductID: "prd_lavender", Quantity: 2}},
	})
	if err != nil {
		t.Fatalf("PlaceOrder returned error: %v", err)
	}

	if placed.PaymentSetupPending {
		t.Fatal("expected successful payment setup")
	}
	if placed.Order.GatewayOrderRef != "order_G1" || placed.GatewayKeyID != "rzp_test_key" {
		t.Fatalf("unexpected gateway wiring: %+v", placed)
	}
	if createdOrder.Status != domain.OrderStatusPending {
		t.Fatalf("expected pending status, got %s", createdOrder.Status)
	}
	if createdOrder.Buyer.Email != "asha@example.com" {
		t.Fatalf("expected lowercased email, got %q", createdOrder.Buyer.Email)
	}
	if createdOrder.Amount != 89800 || createdOrder.Currency != "INR" {
		t.Fatalf("unexpected totals: %+v", createdOrder)
	}
	if len(createdDecrements) != 1 || createdDecrements[0].Quantity != 2 {
		t.Fatalf("unexpected decrements: %+v", createdDecrements)
	}
	if repo.setGatewayRefCall != 1 {
		t.Fatalf("expected gateway ref persisted once, got %d", repo.setGatewayRefCall)
	}
}

func TestPlaceOrderDegradesWhenGatewayUnavailable(t *testing.T) {
	repo := &stubOrderRepo{}
	repo.transitionFn = func(_ context.Context, transition repositories.OrderTransition) (domain.Order, error) {
		if transition.To != domain.OrderStatusAwaitingPaymentSetup {
			t.Errorf("expected degradation transition, got %s", transition.To)
		}
		return domain.Order{ID: transition.OrderID, Status: transition.To, Amount: 89800, Currency: "INR"}, nil
	}

	gateway := &stubGateway{available: true, keyID: "rzp_test_key", createFn: func(context.Context, payments.OrderRequest) (payments.GatewayOrder, error) {
		return payments.GatewayOrder{}, fmt.Errorf("%w: timeout", payments.ErrGatewayUnavailable)
	}}

	svc := newTestOrderService(t, OrderServiceDeps{Orders: repo, Gateway: gateway})

	placed, err := svc.PlaceOrder(context.Background(), PlaceOrderCommand{
		Buyer: testBuyer(),
		Lines: []OrderLineInput{{ProductID: "prd_lavender", Quantity: 2}},
	})
	if err != nil {
		t.Fatalf("PlaceOrder returned error: %v", err)
	}
	if !placed.PaymentSetupPending {
		t.Fatal("expected degraded outcome")
	}
	if placed.Order.Status != domain.OrderStatusAwaitingPaymentSetup {
		t.Fatalf("expected awaiting_payment_setup, got %s", placed.Order.Status)
	}
	if repo.createCalls != 1 {
		t.Fatalf("order must be persisted before gateway registration, create calls = %d", repo.createCalls)
	}
}

func TestPlaceOrderStaysPendingWhenGatewayDisabled(t *testing.T) {
	repo := &stubOrderRepo{}

	svc := newTestOrderService(t, OrderServiceDeps{Orders: repo})

	placed, err := svc.PlaceOrder(context.Background(), PlaceOrderCommand{
		Buyer: testBuyer(),
		Lines: []OrderLineInput{{ProductID: "prd_lavender", Quantity: 2}},
	})
	if err != nil {
		t.Fatalf("PlaceOrder returned error: %v", err)
	}
	if placed.PaymentSetupPending {
		t.Fatal("an unconfigured gateway skips registration, it is not the degraded outcome")
	}
	if placed.Order.Status != domain.OrderStatusPending {
		t.Fatalf("expected pending, got %s", placed.Order.Status)
	}
	if placed.Order.GatewayOrderRef != "" || placed.GatewayKeyID != "" {
		t.Fatalf("no gateway material expected: %+v", placed)
	}
	if repo.transitionCalls != 0 {
		t.Fatalf("order must not be transitioned, got %d calls", repo.transitionCalls)
	}
}

func TestPlaceOrderRejectsZeroAmount(t *testing.T) {
	repo := &stubOrderRepo{}
	resolver := &stubResolver{resolveFn: func(context.Context, []catalog.LineRequest) (catalog.Resolution, error) {
		return catalog.Resolution{
			Lines:  []domain.OrderLineItem{{ProductID: "prd_sample", Title: "Free Sample", UnitPrice: 0, Quantity: 1}},
			Amount: 0,
		}, nil
	}}

	svc := newTestOrderService(t, OrderServiceDeps{Orders: repo, Catalog: resolver})

	_, err := svc.PlaceOrder(context.Background(), PlaceOrderCommand{
		Buyer: testBuyer(),
		Lines: []OrderLineInput{{ProductID: "prd_sample", Quantity: 1}},
	})
	if !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if repo.createCalls != 0 {
		t.Fatal("a zero-amount order must be rejected before any write")
	}
}

func TestPlaceOrderMapsStockErrors(t *testing.T) {
	repo := &stubOrderRepo{}
	repo.createFn = func(context.Context, domain.Order, []repositories.StockDecrement) error {
		return &repositories.StockError{ProductID: "prd_lavender", Requested: 2, Available: 1}
	}

	svc := newTestOrderService(t, OrderServiceDeps{Orders: repo})

	_, err := svc.PlaceOrder(context.Background(), PlaceOrderCommand{
		Buyer: testBuyer(),
		Lines: []OrderLineInput{{ProductID: "prd_lavender", Quantity: 2}},
	})
	if !errors.Is(err, catalog.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
}

func TestPlaceOrderValidatesBuyer(t *testing.T) {
	svc := newTestOrderService(t, OrderServiceDeps{Orders: &stubOrderRepo{}})

	_, err := svc.PlaceOrder(context.Background(), PlaceOrderCommand{
		Buyer: domain.Buyer{Name: "No Email"},
		Lines: []OrderLineInput{{ProductID: "prd_lavender", Quantity: 1}},
	})
	if !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected ErrOrderInvalidInput, got %v", err)
	}
}

func TestVerifyPaymentSettlesOrderOnce(t *testing.T) {
	stored := domain.Order{
		ID:              "ord_test",
		Status:          domain.OrderStatusPending,
		GatewayOrderRef: "order_G1",
		Amount:          89800,
		Currency:        "INR",
		Buyer:           domain.Buyer{Email: "asha@example.com"},
	}

	repo := &stubOrderRepo{}
	repo.findByIDFn = func(_ context.Context, orderID string) (domain.Order, error) {
		return stored, nil
	}
	repo.transitionFn = func(_ context.Context, transition repositories.OrderTransition) (domain.Order, error) {
		if repo.transitionCalls > 1 {
			return domain.Order{}, &repositories.TransitionError{OrderID: transition.OrderID, Current: domain.OrderStatusPaid, Target: transition.To}
		}
		updated := stored
		updated.Status = domain.OrderStatusPaid
		updated.GatewayPaymentRef = transition.PaymentRef
		updated.PaymentConfirmedVia = transition.ConfirmedVia
		stored = updated
		return updated, nil
	}

	notifier := &stubNotifier{}
	verifier := &stubVerifier{callbackFn: func(orderRef, paymentRef, signature string) (bool, error) {
		return orderRef == "order_G1" && paymentRef == "pay_1" && signature == "sig", nil
	}}

	svc := newTestOrderService(t, OrderServiceDeps{Orders: repo, Verifier: verifier, Notifier: notifier})

	cmd := VerifyPaymentCommand{OrderID: "ord_test", GatewayOrderRef: "order_G1", PaymentRef: "pay_1", Signature: "sig"}

	first, err := svc.VerifyPayment(context.Background(), cmd)
	if err != nil {
		t.Fatalf("first VerifyPayment returned error: %v", err)
	}
	if first.Status != domain.OrderStatusPaid || first.PaymentConfirmedVia != domain.PaymentPathCallback {
		t.Fatalf("unexpected settled order: %+v", first)
	}

	second, err := svc.VerifyPayment(context.Background(), cmd)
	if err != nil {
		t.Fatalf("second VerifyPayment returned error: %v", err)
	}
	if second.Status != domain.OrderStatusPaid {
		t.Fatalf("expected idempotent success, got %+v", second)
	}
	if len(notifier.confirmations) != 1 {
		t.Fatalf("expected exactly one confirmation, got %d", len(notifier.confirmations))
	}
}

func TestVerifyPaymentRejectsMismatchedGatewayRef(t *testing.T) {
	repo := &stubOrderRepo{}
	repo.findByIDFn = func(context.Context, string) (domain.Order, error) {
		return domain.Order{ID: "ord_test", Status: domain.OrderStatusPending, GatewayOrderRef: "order_G1"}, nil
	}

	svc := newTestOrderService(t, OrderServiceDeps{Orders: repo, Verifier: &stubVerifier{}})

	_, err := svc.VerifyPayment(context.Background(), VerifyPaymentCommand{
		OrderID: "ord_test", GatewayOrderRef: "order_other", PaymentRef: "pay_1", Signature: "sig",
	})
	if !errors.Is(err, ErrOrderMismatch) {
		t.Fatalf("expected ErrOrderMismatch, got %v", err)
	}
	if repo.transitionCalls != 0 {
		t.Fatal("no transition may happen on mismatch")
	}
}

func TestVerifyPaymentRejectsBadSignature(t *testing.T) {
	repo := &stubOrderRepo{}
	repo.findByIDFn = func(context.Context, string) (domain.Order, error) {
		return domain.Order{ID: "ord_test", Status: domain.OrderStatusPending, GatewayOrderRef: "order_G1"}, nil
	}

	verifier := &stubVerifier{callbackFn: func(string, string, string) (bool, error) { return false, nil }}
	svc := newTestOrderService(t, OrderServiceDeps{Orders: repo, Verifier: verifier})

	_, err := svc.VerifyPayment(context.Background(), VerifyPaymentCommand{
		OrderID: "ord_test", GatewayOrderRef: "order_G1", PaymentRef: "pay_1", Signature: "forged",
	})
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
	if repo.transitionCalls != 0 {
		t.Fatal("no transition may happen on bad signature")
	}
}

func TestVerifyPaymentMapsUnknownOrder(t *testing.T) {
	svc := newTestOrderService(t, OrderServiceDeps{Orders: &stubOrderRepo{}})

	_, err := svc.VerifyPayment(context.Background(), VerifyPaymentCommand{
		OrderID: "ord_missing", GatewayOrderRef: "order_G1", PaymentRef: "pay_1", Signature: "sig",
	})
	if !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestOverrideStatusAcceptsCapturedAlias(t *testing.T) {
	repo := &stubOrderRepo{}
	repo.findByIDFn = func(context.Context, string) (domain.Order, error) {
		return domain.Order{ID: "ord_test", Status: domain.OrderStatusPending, Buyer: domain.Buyer{Email: "asha@example.com"}}, nil
	}
	repo.transitionFn = func(_ context.Context, transition repositories.OrderTransition) (domain.Order, error) {
		if transition.To != domain.OrderStatusPaid {
			t.Errorf("captured must map to paid, got %s", transition.To)
		}
		if transition.ConfirmedVia != domain.PaymentPathManual {
			t.Errorf("manual override must record manual path, got %s", transition.ConfirmedVia)
		}
		return domain.Order{ID: "ord_test", Status: transition.To, PaymentConfirmedVia: transition.ConfirmedVia, UpdatedAt: transition.Now}, nil
	}

	notifier := &stubNotifier{}
	svc := newTestOrderService(t, OrderServiceDeps{Orders: repo, Notifier: notifier})

	updated, err := svc.OverrideStatus(context.Background(), OverrideStatusCommand{
		OrderID: "ord_test", Status: "captured", ActorID: "ops-1",
	})
	if err != nil {
		t.Fatalf("OverrideStatus returned error: %v", err)
	}
	if updated.Status != domain.OrderStatusPaid {
		t.Fatalf("expected paid, got %s", updated.Status)
	}
	if len(notifier.confirmations) != 1 {
		t.Fatalf("manual settlement must notify once, got %d", len(notifier.confirmations))
	}
}

func TestOverrideStatusIsIdempotent(t *testing.T) {
	repo := &stubOrderRepo{}
	repo.findByIDFn = func(context.Context, string) (domain.Order, error) {
		return domain.Order{ID: "ord_test", Status: domain.OrderStatusPaid}, nil
	}

	svc := newTestOrderService(t, OrderServiceDeps{Orders: repo})

	updated, err := svc.OverrideStatus(context.Background(), OverrideStatusCommand{OrderID: "ord_test", Status: "paid"})
	if err != nil {
		t.Fatalf("OverrideStatus returned error: %v", err)
	}
	if updated.Status != domain.OrderStatusPaid {
		t.Fatalf("expected paid, got %s", updated.Status)
	}
	if repo.transitionCalls != 0 {
		t.Fatal("same-status override must not write")
	}
}

func TestOverrideStatusRejectsUnknownStatus(t *testing.T) {
	svc := newTestOrderService(t, OrderServiceDeps{Orders: &stubOrderRepo{}})

	_, err := svc.OverrideStatus(context.Background(), OverrideStatusCommand{OrderID: "ord_test", Status: "shipped"})
	if !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected ErrOrderInvalidInput, got %v", err)
	}
}

func TestOverrideStatusAllowsPaidToCancelled(t *testing.T) {
	repo := &stubOrderRepo{}
	repo.findByIDFn = func(context.Context, string) (domain.Order, error) {
		return domain.Order{ID: "ord_test", Status: domain.OrderStatusPaid}, nil
	}
	repo.transitionFn = func(_ context.Context, transition repositories.OrderTransition) (domain.Order, error) {
		if transition.To != domain.OrderStatusCancelled {
			t.Errorf("expected cancelled target, got %s", transition.To)
		}
		if !containsStatus(transition.From, domain.OrderStatusPaid) {
			t.Errorf("override must be permitted from paid, got %v", transition.From)
		}
		return domain.Order{ID: "ord_test", Status: transition.To}, nil
	}

	svc := newTestOrderService(t, OrderServiceDeps{Orders: repo})

	updated, err := svc.OverrideStatus(context.Background(), OverrideStatusCommand{
		OrderID: "ord_test", Status: "cancelled", Reason: "refunded",
	})
	if err != nil {
		t.Fatalf("OverrideStatus returned error: %v", err)
	}
	if updated.Status != domain.OrderStatusCancelled {
		t.Fatalf("expected cancelled, got %s", updated.Status)
	}
}

func TestOverrideStatusAllowsFailedToPaid(t *testing.T) {
	repo := &stubOrderRepo{}
	repo.findByIDFn = func(context.Context, string) (domain.Order, error) {
		return domain.Order{ID: "ord_test", Status: domain.OrderStatusFailed, Buyer: domain.Buyer{Email: "asha@example.com"}}, nil
	}
	repo.transitionFn = func(_ context.Context, transition repositories.OrderTransition) (domain.Order, error) {
		if !containsStatus(transition.From, domain.OrderStatusFailed) {
			t.Errorf("override must be permitted from failed, got %v", transition.From)
		}
		if transition.ConfirmedVia != domain.PaymentPathManual {
			t.Errorf("manual settlement must record the manual path, got %s", transition.ConfirmedVia)
		}
		return domain.Order{ID: "ord_test", Status: transition.To, PaymentConfirmedVia: transition.ConfirmedVia}, nil
	}

	notifier := &stubNotifier{}
	svc := newTestOrderService(t, OrderServiceDeps{Orders: repo, Notifier: notifier})

	updated, err := svc.OverrideStatus(context.Background(), OverrideStatusCommand{
		OrderID: "ord_test", Status: "paid", ActorID: "ops-1", Reason: "bank transfer confirmed",
	})
	if err != nil {
		t.Fatalf("OverrideStatus returned error: %v", err)
	}
	if updated.Status != domain.OrderStatusPaid {
		t.Fatalf("expected paid, got %s", updated.Status)
	}
	if len(notifier.confirmations) != 1 {
		t.Fatalf("manual settlement must notify once, got %d", len(notifier.confirmations))
	}
}

func containsStatus(statuses []domain.OrderStatus, status domain.OrderStatus) bool {
	for _, candidate := range statuses {
		if candidate == status {
			return true
		}
	}
	return false
}

func TestDeleteOrderMapsGuardError(t *testing.T) {
	repo := &stubOrderRepo{}
	repo.deleteFn = func(context.Context, string) error {
		return &repositories.DeleteGuardError{OrderID: "ord_test", Current: domain.OrderStatusPaid}
	}

	svc := newTestOrderService(t, OrderServiceDeps{Orders: repo})

	if err := svc.DeleteOrder(context.Background(), "ord_test"); !errors.Is(err, ErrIllegalDeletion) {
		t.Fatalf("expected ErrIllegalDeletion, got %v", err)
	}
}

func TestSetupPaymentRecoversDegradedOrder(t *testing.T) {
	stored := domain.Order{ID: "ord_test", Status: domain.OrderStatusAwaitingPaymentSetup, Amount: 89800, Currency: "INR", Buyer: domain.Buyer{Email: "asha@example.com"}}

	repo := &stubOrderRepo{}
	repo.findByIDFn = func(context.Context, string) (domain.Order, error) { return stored, nil }

	gateway := &stubGateway{available: true, keyID: "rzp_test_key", createFn: func(context.Context, payments.OrderRequest) (payments.GatewayOrder, error) {
		return payments.GatewayOrder{Reference: "order_G2"}, nil
	}}

	svc := newTestOrderService(t, OrderServiceDeps{Orders: repo, Gateway: gateway})

	placed, err := svc.SetupPayment(context.Background(), "ord_test")
	if err != nil {
		t.Fatalf("SetupPayment returned error: %v", err)
	}
	if placed.Order.GatewayOrderRef != "order_G2" || placed.PaymentSetupPending {
		t.Fatalf("unexpected recovery outcome: %+v", placed)
	}
	if repo.setGatewayRefCall != 1 {
		t.Fatalf("expected gateway ref persisted once, got %d", repo.setGatewayRefCall)
	}
}

func TestSetupPaymentReportsGatewayStillDown(t *testing.T) {
	stored := domain.Order{ID: "ord_test", Status: domain.OrderStatusAwaitingPaymentSetup}
	repo := &stubOrderRepo{}
	repo.findByIDFn = func(context.Context, string) (domain.Order, error) { return stored, nil }

	gateway := &stubGateway{available: true, createFn: func(context.Context, payments.OrderRequest) (payments.GatewayOrder, error) {
		return payments.GatewayOrder{}, payments.ErrGatewayUnavailable
	}}

	svc := newTestOrderService(t, OrderServiceDeps{Orders: repo, Gateway: gateway})

	if _, err := svc.SetupPayment(context.Background(), "ord_test"); !errors.Is(err, ErrPaymentSetupUnavailable) {
		t.Fatalf("expected ErrPaymentSetupUnavailable, got %v", err)
	}
}

func TestSetupPaymentUnavailableWhenGatewayDisabled(t *testing.T) {
	repo := &stubOrderRepo{}
	repo.findByIDFn = func(context.Context, string) (domain.Order, error) {
		return domain.Order{ID: "ord_test", Status: domain.OrderStatusPending}, nil
	}

	svc := newTestOrderService(t, OrderServiceDeps{Orders: repo})

	if _, err := svc.SetupPayment(context.Background(), "ord_test"); !errors.Is(err, ErrPaymentSetupUnavailable) {
		t.Fatalf("expected ErrPaymentSetupUnavailable, got %v", err)
	}
}

func TestSetupPaymentRejectsSettledOrder(t *testing.T) {
	repo := &stubOrderRepo{}
	repo.findByIDFn = func(context.Context, string) (domain.Order, error) {
		return domain.Order{ID: "ord_test", Status: domain.OrderStatusPaid, GatewayOrderRef: "order_G1"}, nil
	}

	svc := newTestOrderService(t, OrderServiceDeps{Orders: repo})

	if _, err := svc.SetupPayment(context.Background(), "ord_test"); !errors.Is(err, ErrOrderInvalidState) {
		t.Fatalf("expected ErrOrderInvalidState, got %v", err)
	}
}

func TestListOrdersNormalisesFilter(t *testing.T) {
	repo := &stubOrderRepo{}
	repo.listFn = func(_ context.Context, filter repositories.OrderListFilter) ([]domain.Order, error) {
		if filter.Status != domain.OrderStatusPaid {
			t.Errorf("captured filter must map to paid, got %s", filter.Status)
		}
		if filter.Email != "asha@example.com" {
			t.Errorf("email filter must be lowercased, got %q", filter.Email)
		}
		return []domain.Order{{ID: "ord_test"}}, nil
	}

	svc := newTestOrderService(t, OrderServiceDeps{Orders: repo})

	orders, err := svc.ListOrders(context.Background(), ListOrdersQuery{Status: "captured", Email: "Asha@Example.com"})
	if err != nil {
		t.Fatalf("ListOrders returned error: %v", err)
	}
	if len(orders) != 1 {
		t.Fatalf("expected one order, got %d", len(orders))
	}
}
