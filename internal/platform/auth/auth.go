package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Role constants used when checking authorisation boundaries.
const (
	RoleOperator = "operator"
	RoleAdmin    = "admin"
)

var (
	// ErrTokenExpired signals that the provided token has expired.
	ErrTokenExpired = errors.New("auth: token expired")
	// ErrTokenInvalid signals that the provided token is invalid for other reasons.
	ErrTokenInvalid = errors.New("auth: token invalid")
)

// Identity captures the authenticated operator details extracted from a token.
type Identity struct {
	Subject string
	Email   string
	Roles   []string
}

// HasRole reports whether the identity includes the requested role (case-insensitive).
func (i *Identity) HasRole(role string) bool {
	if i == nil {
		return false
	}
	role = strings.ToLower(strings.TrimSpace(role))
	if role == "" {
		return false
	}
	for _, r := range i.Roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

type identityContextKey struct{}

// WithIdentity stores the identity in the context.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, identity)
}

// IdentityFromContext retrieves the identity stored by the middleware.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityContextKey{}).(*Identity)
	return identity, ok && identity != nil
}

type operatorClaims struct {
	Email string   `json:"email,omitempty"`
	Roles []string `json:"roles,omitempty"`
	Role  string   `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Authenticator verifies HMAC-signed operator tokens.
type Authenticator struct {
	secret []byte
	leeway time.Duration
}

// Option customises Authenticator behaviour.
type Option func(*Authenticator)

// WithLeeway tolerates small clock skew when validating expiry claims.
func WithLeeway(d time.Duration) Option {
	return func(a *Authenticator) {
		if d > 0 {
			a.leeway = d
		}
	}
}

// NewAuthenticator constructs an Authenticator using the shared signing secret.
func NewAuthenticator(secret string, opts ...Option) *Authenticator {
	a := &Authenticator{secret: []byte(strings.TrimSpace(secret))}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// Verify parses and validates the token string, returning the operator identity.
func (a *Authenticator) Verify(_ context.Context, tokenStr string) (*Identity, error) {
	if a == nil || len(a.secret) == 0 {
		return nil, ErrTokenInvalid
	}

	parserOpts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if a.leeway > 0 {
		parserOpts = append(parserOpts, jwt.WithLeeway(a.leeway))
	}

	claims := &operatorClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, parserOpts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	if !token.Valid {
		return nil, ErrTokenInvalid
	}

	roles := normaliseRoles(claims.Roles)
	if role := normaliseRole(claims.Role); role != "" {
		roles = appendRole(roles, role)
	}
	// A token without role claims grants nothing.
	if len(roles) == 0 {
		return nil, ErrTokenInvalid
	}

	return &Identity{
		Subject: strings.TrimSpace(claims.Subject),
		Email:   strings.TrimSpace(claims.Email),
		Roles:   roles,
	}, nil
}

func normaliseRole(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}

func normaliseRoles(roles []string) []string {
	var out []string
	for _, role := range roles {
		if normalised := normaliseRole(role); normalised != "" {
			out = appendRole(out, normalised)
		}
	}
	return out
}

func appendRole(roles []string, role string) []string {
	for _, existing := range roles {
		if existing == role {
			return roles
		}
	}
	return append(roles, role)
}
