package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/candles-cuddles/api/internal/platform/auth"
	"github.com/candles-cuddles/api/internal/platform/httpx"
	"github.com/candles-cuddles/api/internal/services"
)

// AdminOrderHandlers exposes the operator order surface.
type AdminOrderHandlers struct {
	authn  *auth.Authenticator
	orders services.OrderService
}

// NewAdminOrderHandlers constructs operator handlers guarded by token authentication.
func NewAdminOrderHandlers(authn *auth.Authenticator, orders services.OrderService) *AdminOrderHandlers {
	return &AdminOrderHandlers{authn: authn, orders: orders}
}

// Routes registers admin endpoints under the provided router.
func (h *AdminOrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	group := r
	if h.authn != nil {
		group = group.With(h.authn.RequireOperator())
	}
	group.Get("/orders", h.listOrders)
	group.Get("/orders/{orderId}", h.getOrder)
	group.Patch("/orders/{orderId}/status", h.overrideStatus)
	group.Delete("/orders/{orderId}", h.deleteOrder)
}

type orderListResponse struct {
	Orders []orderResponse `json:"orders"`
}

func (h *AdminOrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	query := services.ListOrdersQuery{
		Status: r.URL.Query().Get("status"),
		Email:  r.URL.Query().Get("email"),
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "limit must be a positive integer", http.StatusBadRequest))
			return
		}
		query.Limit = limit
	}

	orders, err := h.orders.ListOrders(ctx, query)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	payload := orderListResponse{Orders: make([]orderResponse, 0, len(orders))}
	for _, order := range orders {
		payload.Orders = append(payload.Orders, newOrderResponse(order))
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *AdminOrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	order, err := h.orders.GetOrder(ctx, chi.URLParam(r, "orderId"))
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, newOrderResponse(order))
}

type overrideStatusRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

func (h *AdminOrderHandlers) overrideStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := readLimitedBody(r, maxOrderRequestBody)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req overrideStatusRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	var actorID string
	if identity, ok := auth.IdentityFromContext(ctx); ok {
		actorID = identity.Subject
	}

	order, err := h.orders.OverrideStatus(ctx, services.OverrideStatusCommand{
		OrderID: chi.URLParam(r, "orderId"),
		Status:  req.Status,
		Reason:  req.Reason,
		ActorID: actorID,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, newOrderResponse(order))
}

func (h *AdminOrderHandlers) deleteOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.orders.DeleteOrder(ctx, chi.URLParam(r, "orderId")); err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]string{"status": "deleted"})
}
