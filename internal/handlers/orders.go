package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/candles-cuddles/api/internal/catalog"
	domain "github.com/candles-cuddles/api/internal/domain"
	"github.com/candles-cuddles/api/internal/platform/httpx"
	"github.com/candles-cuddles/api/internal/services"
)

const maxOrderRequestBody = 32 * 1024

// OrderHandlers exposes the storefront checkout endpoints.
type OrderHandlers struct {
	orders services.OrderService
}

// NewOrderHandlers constructs the storefront order handlers.
func NewOrderHandlers(orders services.OrderService) *OrderHandlers {
	return &OrderHandlers{orders: orders}
}

// Routes registers order endpoints under the provided router.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/", h.createOrder)
	r.Get("/{orderId}", h.getOrder)
	r.Post("/{orderId}/payment", h.setupPayment)
	r.Post("/{orderId}/verify", h.verifyPayment)
}

type createOrderRequest struct {
	Buyer struct {
		Name        string `json:"name"`
		Email       string `json:"email"`
		Phone       string `json:"phone"`
		CustomerRef string `json:"customerRef"`
	} `json:"buyer"`
	Items []struct {
		ProductID string `json:"productId"`
		Quantity  int    `json:"quantity"`
	} `json:"items"`
	Metadata map[string]any `json:"metadata"`
}

type placedOrderResponse struct {
	Order        orderResponse `json:"order"`
	GatewayKeyID string        `json:"gatewayKeyId,omitempty"`
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("orders_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxOrderRequestBody)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req createOrderRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	cmd := services.PlaceOrderCommand{
		Buyer: domain.Buyer{
			Name:        req.Buyer.Name,
			Email:       req.Buyer.Email,
			Phone:       req.Buyer.Phone,
			CustomerRef: req.Buyer.CustomerRef,
		},
		Metadata: req.Metadata,
	}
	for _, item := range req.Items {
		cmd.Lines = append(cmd.Lines, services.OrderLineInput{ProductID: item.ProductID, Quantity: item.Quantity})
	}

	placed, err := h.orders.PlaceOrder(ctx, cmd)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	if placed.PaymentSetupPending {
		// The order exists and holds stock, but the gateway registration did
		// not happen. The identifiers travel in the error payload so the
		// client can retry payment setup instead of reordering.
		httpx.WriteError(ctx, w, httpx.NewError(
			"payment_setup_failed",
			"order was recorded but payment setup failed; retry payment for this order",
			http.StatusInternalServerError,
		).WithDetails(map[string]any{
			"orderId":  placed.Order.ID,
			"amount":   placed.Order.Amount,
			"currency": placed.Order.Currency,
			"status":   string(placed.Order.Status),
		}))
		return
	}

	writeJSONResponse(w, http.StatusCreated, placedOrderResponse{
		Order:        newOrderResponse(placed.Order),
		GatewayKeyID: placed.GatewayKeyID,
	})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	order, err := h.orders.GetOrder(ctx, chi.URLParam(r, "orderId"))
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, newOrderResponse(order))
}

func (h *OrderHandlers) setupPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	placed, err := h.orders.SetupPayment(ctx, chi.URLParam(r, "orderId"))
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, placedOrderResponse{
		Order:        newOrderResponse(placed.Order),
		GatewayKeyID: placed.GatewayKeyID,
	})
}

type verifyPaymentRequest struct {
	GatewayOrderRef string `json:"gatewayOrderRef"`
	PaymentRef      string `json:"paymentRef"`
	Signature       string `json:"signature"`
}

func (h *OrderHandlers) verifyPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := readLimitedBody(r, maxOrderRequestBody)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req verifyPaymentRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	order, err := h.orders.VerifyPayment(ctx, services.VerifyPaymentCommand{
		OrderID:         chi.URLParam(r, "orderId"),
		GatewayOrderRef: strings.TrimSpace(req.GatewayOrderRef),
		PaymentRef:      strings.TrimSpace(req.PaymentRef),
		Signature:       strings.TrimSpace(req.Signature),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, newOrderResponse(order))
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	status := http.StatusBadRequest
	if errors.Is(err, errBodyTooLarge) {
		status = http.StatusRequestEntityTooLarge
	}
	httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), status))
}

// writeOrderError maps service errors onto the HTTP error envelope.
func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, catalog.ErrEmptyCart), errors.Is(err, catalog.ErrInvalidQuantity):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, catalog.ErrProductUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("product_unavailable", err.Error(), http.StatusBadRequest))
	case errors.Is(err, catalog.ErrInsufficientStock):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrInvalidAmount):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_amount", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderMismatch):
		httpx.WriteError(ctx, w, httpx.NewError("order_mismatch", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrInvalidSignature):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_signature", "payment signature verification failed", http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_state", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrIllegalDeletion):
		httpx.WriteError(ctx, w, httpx.NewError("illegal_deletion", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("conflict", "the order changed concurrently, retry", http.StatusConflict))
	case errors.Is(err, services.ErrPaymentSetupUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("payment_setup_failed", "payment gateway unavailable, retry later", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected error", http.StatusInternalServerError))
	}
}
