package config

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"
)

const (
	defaultEnvFile        = ".env"
	defaultPort           = "8080"
	defaultReadTimeout    = 15 * time.Second
	defaultWriteTimeout   = 30 * time.Second
	defaultIdleTimeout    = 120 * time.Second
	defaultCurrency       = "INR"
	defaultGatewayTimeout = 10 * time.Second
	secretRefPrefix       = "secret://"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server        ServerConfig
	Firestore     FirestoreConfig
	Gateway       GatewayConfig
	Notifications NotificationConfig
	Admin         AdminConfig
	Checkout      CheckoutConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// GatewayConfig collects payment gateway credentials. KeyID/KeySecret empty
// means the gateway integration is disabled for this deployment; checkout
// still captures intent without payment setup.
type GatewayConfig struct {
	KeyID         string
	KeySecret     string
	WebhookSecret string
	Timeout       time.Duration
}

// Configured reports whether gateway registration credentials are present.
func (g GatewayConfig) Configured() bool {
	return strings.TrimSpace(g.KeyID) != "" && strings.TrimSpace(g.KeySecret) != ""
}

// NotificationConfig names the Pub/Sub topic receiving confirmation jobs.
type NotificationConfig struct {
	ProjectID string
	TopicID   string
}

// AdminConfig holds the operator token signing secret.
type AdminConfig struct {
	JWTSecret string
}

// CheckoutConfig fixes deployment-wide checkout parameters.
type CheckoutConfig struct {
	Currency string
}

// SecretResolver resolves references to external secrets (e.g. Secret Manager URIs).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Name string
	Err  error
}

// Error implements the error interface.
func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for %s: %v", e.Name, e.Err)
}

// Unwrap exposes the underlying error.
func (e *SecretError) Unwrap() error { return e.Err }

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile  string
	envMap   map[string]string
	resolver SecretResolver
}

// WithEnvFile overrides the dotenv file merged below the process environment.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap substitutes the environment entirely, primarily for tests.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithSecretResolver enables resolution of secret:// values.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.resolver = resolver
	}
}

// Load reads configuration from the environment, applying defaults, dotenv
// fallbacks, and secret resolution. Gateway and webhook secrets are resolved
// here, at construction time; nothing reads them ambiently afterwards.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := loaderOptions{envFile: defaultEnvFile}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	env := options.envMap
	if env == nil {
		env = environmentMap()
		mergeEnvFile(env, options.envFile)
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         valueOrDefault(env, "PORT", defaultPort),
			ReadTimeout:  durationOrDefault(env, "SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationOrDefault(env, "SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationOrDefault(env, "SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Firestore: FirestoreConfig{
			ProjectID:    strings.TrimSpace(env["FIRESTORE_PROJECT_ID"]),
			EmulatorHost: strings.TrimSpace(env["FIRESTORE_EMULATOR_HOST"]),
		},
		Gateway: GatewayConfig{
			KeyID:         strings.TrimSpace(env["GATEWAY_KEY_ID"]),
			KeySecret:     strings.TrimSpace(env["GATEWAY_KEY_SECRET"]),
			WebhookSecret: strings.TrimSpace(env["GATEWAY_WEBHOOK_SECRET"]),
			Timeout:       durationOrDefault(env, "GATEWAY_TIMEOUT", defaultGatewayTimeout),
		},
		Notifications: NotificationConfig{
			ProjectID: strings.TrimSpace(env["PUBSUB_PROJECT_ID"]),
			TopicID:   strings.TrimSpace(env["NOTIFICATIONS_TOPIC"]),
		},
		Admin: AdminConfig{
			JWTSecret: strings.TrimSpace(env["ADMIN_JWT_SECRET"]),
		},
		Checkout: CheckoutConfig{
			Currency: strings.ToUpper(valueOrDefault(env, "CHECKOUT_CURRENCY", defaultCurrency)),
		},
	}

	if cfg.Notifications.ProjectID == "" {
		cfg.Notifications.ProjectID = cfg.Firestore.ProjectID
	}

	if err := resolveSecrets(ctx, &cfg, options.resolver); err != nil {
		return Config{}, err
	}

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func resolveSecrets(ctx context.Context, cfg *Config, resolver SecretResolver) error {
	targets := []struct {
		name  string
		value *string
	}{
		{"GATEWAY_KEY_SECRET", &cfg.Gateway.KeySecret},
		{"GATEWAY_WEBHOOK_SECRET", &cfg.Gateway.WebhookSecret},
		{"ADMIN_JWT_SECRET", &cfg.Admin.JWTSecret},
	}

	for _, target := range targets {
		ref := *target.value
		if !strings.HasPrefix(ref, secretRefPrefix) {
			continue
		}
		if resolver == nil {
			return &SecretError{Name: target.name, Err: errors.New("secret resolver not configured")}
		}
		resolved, err := resolver.ResolveSecret(ctx, ref)
		if err != nil {
			return &SecretError{Name: target.name, Err: err}
		}
		*target.value = strings.TrimSpace(resolved)
	}
	return nil
}

func validate(cfg Config) error {
	var missing []string
	if cfg.Firestore.ProjectID == "" && cfg.Firestore.EmulatorHost == "" {
		missing = append(missing, "FIRESTORE_PROJECT_ID")
	}
	if cfg.Admin.JWTSecret == "" {
		missing = append(missing, "ADMIN_JWT_SECRET")
	}
	// A gateway key without its secret (or vice versa) is a misconfiguration,
	// not a disabled gateway.
	if (cfg.Gateway.KeyID == "") != (cfg.Gateway.KeySecret == "") {
		missing = append(missing, "GATEWAY_KEY_ID/GATEWAY_KEY_SECRET")
	}
	if cfg.Checkout.Currency == "" {
		missing = append(missing, "CHECKOUT_CURRENCY")
	}

	if len(missing) > 0 {
		sort.Strings(missing)
		return &ValidationError{fields: missing}
	}
	return nil
}

func environmentMap() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if idx := strings.IndexByte(kv, '='); idx > 0 {
			env[kv[:idx]] = kv[idx+1:]
		}
	}
	return env
}

func mergeEnvFile(env map[string]string, path string) {
	if strings.TrimSpace(path) == "" {
		return
	}
	file, err := os.Open(path)
	if err != nil {
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		idx := strings.IndexByte(line, '=')
		if idx <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		value := strings.Trim(strings.TrimSpace(line[idx+1:]), `"'`)
		if _, exists := env[key]; !exists {
			env[key] = value
		}
	}
}

func valueOrDefault(env map[string]string, key, fallback string) string {
	if value := strings.TrimSpace(env[key]); value != "" {
		return value
	}
	return fallback
}

func durationOrDefault(env map[string]string, key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(env[key])
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}
