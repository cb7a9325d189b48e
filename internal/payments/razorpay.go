package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	razorpay "github.com/razorpay/razorpay-go"
)

// GatewayLogger defines the logging contract for gateway operations.
type GatewayLogger func(ctx context.Context, event string, fields map[string]any)

type razorpayOrderAPI interface {
	Create(data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

// RazorpayGatewayConfig configures the RazorpayGateway.
type RazorpayGatewayConfig struct {
	KeyID     string
	KeySecret string
	Timeout   time.Duration
	Logger    GatewayLogger
	Orders    razorpayOrderAPI
}

// RazorpayGateway implements Gateway against the Razorpay Orders API.
type RazorpayGateway struct {
	orders  razorpayOrderAPI
	keyID   string
	timeout time.Duration
	logger  GatewayLogger
}

var _ Gateway = (*RazorpayGateway)(nil)

// NewRazorpayGateway constructs a RazorpayGateway from credentials. The
// Orders field overrides the SDK client, primarily for tests.
func NewRazorpayGateway(cfg RazorpayGatewayConfig) (*RazorpayGateway, error) {
	keyID := strings.TrimSpace(cfg.KeyID)
	keySecret := strings.TrimSpace(cfg.KeySecret)

	orders := cfg.Orders
	if orders == nil {
		if keyID == "" || keySecret == "" {
			return nil, errors.New("razorpay: key id and secret are required")
		}
		orders = razorpay.NewClient(keyID, keySecret).Order
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &RazorpayGateway{
		orders:  orders,
		keyID:   keyID,
		timeout: timeout,
		logger:  logger,
	}, nil
}

// Available implements Gateway.
func (g *RazorpayGateway) Available() bool {
	return g != nil && g.orders != nil
}

// KeyID implements Gateway.
func (g *RazorpayGateway) KeyID() string {
	if g == nil {
		return ""
	}
	return g.keyID
}

// CreateOrder registers a pending payment with Razorpay. The SDK offers no
// context support, so the call runs in a goroutine bounded by the configured
// timeout; a slow gateway surfaces as ErrGatewayUnavailable rather than
// blocking checkout indefinitely.
func (g *RazorpayGateway) CreateOrder(ctx context.Context, req OrderRequest) (GatewayOrder, error) {
	if !g.Available() {
		return GatewayOrder{}, ErrGatewayNotConfigured
	}
	if req.Amount <= 0 {
		return GatewayOrder{}, errors.New("razorpay: amount must be positive")
	}
	if strings.TrimSpace(req.Currency) == "" {
		return GatewayOrder{}, errors.New("razorpay: currency is required")
	}

	data := map[string]interface{}{
		"amount":   req.Amount,
		"currency": strings.ToUpper(req.Currency),
		"receipt":  req.Receipt,
	}
	if len(req.Notes) > 0 {
		notes := make(map[string]interface{}, len(req.Notes))
		for key, value := range req.Notes {
			notes[key] = value
		}
		data["notes"] = notes
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	type createResult struct {
		body map[string]interface{}
		err  error
	}
	resultCh := make(chan createResult, 1)
	go func() {
		body, err := g.orders.Create(data, nil)
		resultCh <- createResult{body: body, err: err}
	}()

	select {
	case <-callCtx.Done():
		g.logger(ctx, "gateway.order.timeout", map[string]any{"receipt": req.Receipt})
		return GatewayOrder{}, fmt.Errorf("%w: %v", ErrGatewayUnavailable, callCtx.Err())
	case result := <-resultCh:
		if result.err != nil {
			g.logger(ctx, "gateway.order.error", map[string]any{"receipt": req.Receipt, "error": result.err.Error()})
			return GatewayOrder{}, fmt.Errorf("%w: %v", ErrGatewayUnavailable, result.err)
		}
		order, err := decodeGatewayOrder(result.body)
		if err != nil {
			return GatewayOrder{}, err
		}
		g.logger(ctx, "gateway.order.created", map[string]any{"receipt": req.Receipt, "gatewayOrderRef": order.Reference})
		return order, nil
	}
}

func decodeGatewayOrder(body map[string]interface{}) (GatewayOrder, error) {
	reference, _ := body["id"].(string)
	if strings.TrimSpace(reference) == "" {
		return GatewayOrder{}, errors.New("razorpay: response missing order id")
	}

	order := GatewayOrder{Reference: reference}
	if currency, ok := body["currency"].(string); ok {
		order.Currency = currency
	}
	if status, ok := body["status"].(string); ok {
		order.Status = status
	}
	switch amount := body["amount"].(type) {
	case float64:
		order.Amount = int64(amount)
	case int64:
		order.Amount = amount
	case int:
		order.Amount = int64(amount)
	}
	return order, nil
}
