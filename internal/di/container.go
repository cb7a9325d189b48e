package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/candles-cuddles/api/internal/catalog"
	"github.com/candles-cuddles/api/internal/payments"
	"github.com/candles-cuddles/api/internal/platform/auth"
	"github.com/candles-cuddles/api/internal/platform/config"
	"github.com/candles-cuddles/api/internal/platform/jobs"
	"github.com/candles-cuddles/api/internal/platform/observability"
	"github.com/candles-cuddles/api/internal/repositories"
	"github.com/candles-cuddles/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon.
// Concrete implementations are assembled in NewContainer.
type Services struct {
	Orders   services.OrderService
	Webhooks services.WebhookService
}

// Container wires repositories, services, and background infrastructure for
// runtime use.
type Container struct {
	Config        config.Config
	Repositories  repositories.Registry
	Services      Services
	Authenticator *auth.Authenticator

	pubsubTopic  *pubsub.Topic
	pubsubClient *pubsub.Client
}

// Option customises container construction, primarily for tests.
type Option func(*containerOptions)

type containerOptions struct {
	logger   *zap.Logger
	gateway  payments.Gateway
	notifier services.ConfirmationNotifier
	clock    func() time.Time
}

// WithLogger sets the logger used for service-level events.
func WithLogger(logger *zap.Logger) Option {
	return func(o *containerOptions) {
		o.logger = logger
	}
}

// WithGateway substitutes the payment gateway implementation.
func WithGateway(gateway payments.Gateway) Option {
	return func(o *containerOptions) {
		o.gateway = gateway
	}
}

// WithNotifier substitutes the confirmation notifier.
func WithNotifier(notifier services.ConfirmationNotifier) Option {
	return func(o *containerOptions) {
		o.notifier = notifier
	}
}

// WithClock overrides the time source injected into services.
func WithClock(clock func() time.Time) Option {
	return func(o *containerOptions) {
		o.clock = clock
	}
}

// NewContainer constructs the runtime dependencies. Production wiring provides
// a Firestore-backed registry, while tests can supply in-memory stand-ins.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, opts ...Option) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	options := containerOptions{logger: zap.NewNop()}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	eventLogger := observability.EventLogger(options.logger)

	container := &Container{
		Config:        cfg,
		Repositories:  reg,
		Authenticator: auth.NewAuthenticator(cfg.Admin.JWTSecret),
	}

	gateway := options.gateway
	if gateway == nil {
		var err error
		gateway, err = buildGateway(cfg.Gateway, eventLogger)
		if err != nil {
			return nil, fmt.Errorf("build payment gateway: %w", err)
		}
	}

	notifier := options.notifier
	if notifier == nil && cfg.Notifications.TopicID != "" {
		var err error
		notifier, err = container.buildNotifier(ctx, cfg.Notifications)
		if err != nil {
			return nil, fmt.Errorf("build confirmation notifier: %w", err)
		}
	}

	resolver, err := catalog.NewResolver(reg.Products())
	if err != nil {
		return nil, fmt.Errorf("build catalog resolver: %w", err)
	}

	verifier := payments.NewSignatureVerifier(cfg.Gateway.KeySecret, cfg.Gateway.WebhookSecret)

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:    reg.Orders(),
		Customers: reg.Customers(),
		Catalog:   resolver,
		Gateway:   gateway,
		Verifier:  verifier,
		Notifier:  notifier,
		Currency:  cfg.Checkout.Currency,
		Clock:     options.clock,
		Logger:    eventLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("build order service: %w", err)
	}

	webhookSvc, err := services.NewWebhookService(services.WebhookServiceDeps{
		Orders:   reg.Orders(),
		Verifier: verifier,
		Notifier: notifier,
		Clock:    options.clock,
		Logger:   eventLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("build webhook service: %w", err)
	}

	container.Services = Services{
		Orders:   orderSvc,
		Webhooks: webhookSvc,
	}
	return container, nil
}

// Close releases background infrastructure and repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}

	if c.pubsubTopic != nil {
		c.pubsubTopic.Stop()
		c.pubsubTopic = nil
	}

	var errs []error
	if c.pubsubClient != nil {
		if err := c.pubsubClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pubsub client: %w", err))
		}
		c.pubsubClient = nil
	}
	if c.Repositories != nil {
		if err := c.Repositories.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close repositories: %w", err))
		}
	}
	return errors.Join(errs...)
}

func buildGateway(cfg config.GatewayConfig, logger payments.GatewayLogger) (payments.Gateway, error) {
	if !cfg.Configured() {
		return payments.NewDisabledGateway(), nil
	}
	return payments.NewRazorpayGateway(payments.RazorpayGatewayConfig{
		KeyID:     cfg.KeyID,
		KeySecret: cfg.KeySecret,
		Timeout:   cfg.Timeout,
		Logger:    logger,
	})
}

func (c *Container) buildNotifier(ctx context.Context, cfg config.NotificationConfig) (services.ConfirmationNotifier, error) {
	if cfg.ProjectID == "" {
		return nil, errors.New("pubsub project id is required")
	}

	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}

	topic := client.Topic(cfg.TopicID)
	notifier, err := jobs.NewPubSubConfirmationNotifier(topic)
	if err != nil {
		_ = client.Close()
		return nil, err
	}

	c.pubsubClient = client
	c.pubsubTopic = topic
	return notifier, nil
}
