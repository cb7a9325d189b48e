package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/candles-cuddles/api/internal/catalog"
	domain "github.com/candles-cuddles/api/internal/domain"
	"github.com/candles-cuddles/api/internal/services"
)

type stubOrderService struct {
	placeOrderFn     func(ctx context.Context, cmd services.PlaceOrderCommand) (services.PlacedOrder, error)
	setupPaymentFn   func(ctx context.Context, orderID string) (services.PlacedOrder, error)
	verifyPaymentFn  func(ctx context.Context, cmd services.VerifyPaymentCommand) (domain.Order, error)
	getOrderFn       func(ctx context.Context, orderID string) (domain.Order, error)
	listOrdersFn     func(ctx context.Context, query services.ListOrdersQuery) ([]domain.Order, error)
	overrideStatusFn func(ctx context.Context, cmd services.OverrideStatusCommand) (domain.Order, error)
	deleteOrderFn    func(ctx context.Context, orderID string) error
}

func (s *stubOrderService) PlaceOrder(ctx context.Context, cmd services.PlaceOrderCommand) (services.PlacedOrder, error) {
	return s.placeOrderFn(ctx, cmd)
}

func (s *stubOrderService) SetupPayment(ctx context.Context, orderID string) (services.PlacedOrder, error) {
	return s.setupPaymentFn(ctx, orderID)
}

func (s *stubOrderService) VerifyPayment(ctx context.Context, cmd services.VerifyPaymentCommand) (domain.Order, error) {
	return s.verifyPaymentFn(ctx, cmd)
}

func (s *stubOrderService) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	return s.getOrderFn(ctx, orderID)
}

func (s *stubOrderService) ListOrders(ctx context.Context, query services.ListOrdersQuery) ([]domain.Order, error) {
	return s.listOrdersFn(ctx, query)
}

func (s *stubOrderService) OverrideStatus(ctx context.Context, cmd services.OverrideStatusCommand) (domain.Order, error) {
	return s.overrideStatusFn(ctx, cmd)
}

func (s *stubOrderService) DeleteOrder(ctx context.Context, orderID string) error {
	return s.deleteOrderFn(ctx, orderID)
}

func sampleOrder(status domain.OrderStatus) domain.Order {
	return domain.Order{
		ID:              "ord_test",
		Buyer:           domain.Buyer{Name: "Asha Rao", Email: "asha@example.com"},
		LineItems:       []domain.OrderLineItem{{ProductID: "prd_lavender", Title: "Lavender Pillar", UnitPrice: 44900, Quantity: 2}},
		Amount:          89800,
		Currency:        "INR",
		Status:          status,
		GatewayOrderRef: "order_G1",
		CreatedAt:       time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC),
		UpdatedAt:       time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC),
	}
}

func newOrderRouter(svc services.OrderService) http.Handler {
	return NewRouter(WithOrderRoutes(NewOrderHandlers(svc).Routes))
}

const createOrderBody = `{
	"buyer": {"name": "Asha Rao", "email": "asha@example.com"},
	"items": [{"productId": "prd_lavender", "quantity": 2}]
}`

func TestCreateOrderReturnsCreated(t *testing.T) {
	svc := &stubOrderService{placeOrderFn: func(_ context.Context, cmd services.PlaceOrderCommand) (services.PlacedOrder, error) {
		if len(cmd.Lines) != 1 || cmd.Lines[0].ProductID != "prd_lavender" {
			t.Errorf("unexpected command: %+v", cmd)
		}
		return services.PlacedOrder{Order: sampleOrder(domain.OrderStatusPending), GatewayKeyID: "rzp_test_key"}, nil
	}}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(createOrderBody))
	rec := httptest.NewRecorder()
	newOrderRouter(svc).ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}

	var payload placedOrderResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed decoding response: %v", err)
	}
	if payload.Order.ID != "ord_test" || payload.GatewayKeyID != "rzp_test_key" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestCreateOrderDegradedReportsOrderID(t *testing.T) {
	svc := &stubOrderService{placeOrderFn: func(context.Context, services.PlaceOrderCommand) (services.PlacedOrder, error) {
		return services.PlacedOrder{
			Order:               sampleOrder(domain.OrderStatusAwaitingPaymentSetup),
			PaymentSetupPending: true,
		}, nil
	}}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(createOrderBody))
	rec := httptest.NewRecorder()
	newOrderRouter(svc).ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}

	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed decoding response: %v", err)
	}
	if payload["orderId"] != "ord_test" {
		t.Fatalf("degraded response must carry the order id, got %v", payload)
	}
	if payload["error"] != "payment_setup_failed" {
		t.Fatalf("unexpected error code: %v", payload["error"])
	}
}

func TestCreateOrderRejectsStockShortage(t *testing.T) {
	svc := &stubOrderService{placeOrderFn: func(context.Context, services.PlaceOrderCommand) (services.PlacedOrder, error) {
		return services.PlacedOrder{}, catalog.ErrInsufficientStock
	}}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(createOrderBody))
	rec := httptest.NewRecorder()
	newOrderRouter(svc).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d (%s)", rec.Code, rec.Body.String())
	}
}

func TestCreateOrderRejectsZeroAmount(t *testing.T) {
	svc := &stubOrderService{placeOrderFn: func(context.Context, services.PlaceOrderCommand) (services.PlacedOrder, error) {
		return services.PlacedOrder{}, services.ErrInvalidAmount
	}}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(createOrderBody))
	rec := httptest.NewRecorder()
	newOrderRouter(svc).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d (%s)", rec.Code, rec.Body.String())
	}
}

func TestVerifyPaymentReturnsSettledOrder(t *testing.T) {
	svc := &stubOrderService{verifyPaymentFn: func(_ context.Context, cmd services.VerifyPaymentCommand) (domain.Order, error) {
		if cmd.OrderID != "ord_test" || cmd.PaymentRef != "pay_1" {
			t.Errorf("unexpected command: %+v", cmd)
		}
		order := sampleOrder(domain.OrderStatusPaid)
		order.PaymentConfirmedVia = domain.PaymentPathCallback
		return order, nil
	}}

	body := `{"gatewayOrderRef":"order_G1","paymentRef":"pay_1","signature":"sig"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/ord_test/verify", strings.NewReader(body))
	rec := httptest.NewRecorder()
	newOrderRouter(svc).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}

	var payload orderResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed decoding response: %v", err)
	}
	if payload.Status != "paid" || payload.PaymentConfirmedVia != "callback" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestVerifyPaymentMapsInvalidSignature(t *testing.T) {
	svc := &stubOrderService{verifyPaymentFn: func(context.Context, services.VerifyPaymentCommand) (domain.Order, error) {
		return domain.Order{}, services.ErrInvalidSignature
	}}

	body := `{"gatewayOrderRef":"order_G1","paymentRef":"pay_1","signature":"forged"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/ord_test/verify", strings.NewReader(body))
	rec := httptest.NewRecorder()
	newOrderRouter(svc).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestGetOrderMapsNotFound(t *testing.T) {
	svc := &stubOrderService{getOrderFn: func(context.Context, string) (domain.Order, error) {
		return domain.Order{}, services.ErrOrderNotFound
	}}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/ord_missing", nil)
	rec := httptest.NewRecorder()
	newOrderRouter(svc).ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestSetupPaymentMapsGatewayOutage(t *testing.T) {
	svc := &stubOrderService{setupPaymentFn: func(context.Context, string) (services.PlacedOrder, error) {
		return services.PlacedOrder{}, services.ErrPaymentSetupUnavailable
	}}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/ord_test/payment", nil)
	rec := httptest.NewRecorder()
	newOrderRouter(svc).ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestCreateOrderRejectsMalformedJSON(t *testing.T) {
	svc := &stubOrderService{placeOrderFn: func(context.Context, services.PlaceOrderCommand) (services.PlacedOrder, error) {
		t.Fatal("service must not be called for malformed bodies")
		return services.PlacedOrder{}, nil
	}}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	newOrderRouter(svc).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
