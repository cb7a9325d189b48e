package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	domain "github.com/candles-cuddles/api/internal/domain"
)

var (
	errEmptyBody    = errors.New("request body is empty")
	errBodyTooLarge = errors.New("request body exceeds the allowed size")
)

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	reader := io.LimitReader(r.Body, limit+1)
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type orderLineResponse struct {
	ProductID string `json:"productId"`
	Title     string `json:"title"`
	UnitPrice int64  `json:"unitPrice"`
	Quantity  int    `json:"quantity"`
}

type buyerResponse struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Phone       string `json:"phone,omitempty"`
	CustomerRef string `json:"customerRef,omitempty"`
}

type orderResponse struct {
	ID                  string              `json:"id"`
	Buyer               buyerResponse       `json:"buyer"`
	LineItems           []orderLineResponse `json:"lineItems"`
	Amount              int64               `json:"amount"`
	Currency            string              `json:"currency"`
	Status              string              `json:"status"`
	GatewayOrderRef     string              `json:"gatewayOrderRef,omitempty"`
	GatewayPaymentRef   string              `json:"gatewayPaymentRef,omitempty"`
	PaymentConfirmedVia string              `json:"paymentConfirmedVia,omitempty"`
	Metadata            map[string]any      `json:"metadata,omitempty"`
	CreatedAt           string              `json:"createdAt"`
	UpdatedAt           string              `json:"updatedAt"`
	PaidAt              *string             `json:"paidAt,omitempty"`
	FailedAt            *string             `json:"failedAt,omitempty"`
	CancelledAt         *string             `json:"cancelledAt,omitempty"`
}

func newOrderResponse(order domain.Order) orderResponse {
	lines := make([]orderLineResponse, 0, len(order.LineItems))
	for _, line := range order.LineItems {
		lines = append(lines, orderLineResponse{
			ProductID: line.ProductID,
			Title:     line.Title,
			UnitPrice: line.UnitPrice,
			Quantity:  line.Quantity,
		})
	}
	return orderResponse{
		ID: order.ID,
		Buyer: buyerResponse{
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
		PaymentConfirmedVia: string(order.PaymentConfirmedVia),
		Metadata:            order.Metadata,
		CreatedAt:           formatTimestamp(order.CreatedAt),
		UpdatedAt:           formatTimestamp(order.UpdatedAt),
		PaidAt:              formatOptionalTimestamp(order.PaidAt),
		FailedAt:            formatOptionalTimestamp(order.FailedAt),
		CancelledAt:         formatOptionalTimestamp(order.CancelledAt),
	}
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func formatOptionalTimestamp(t *time.Time) *string {
	if t == nil || t.IsZero() {
		return nil
	}
	formatted := t.UTC().Format(time.RFC3339Nano)
	return &formatted
}
