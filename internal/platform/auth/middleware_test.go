package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "operator-signing-secret"

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("failed signing token: %v", err)
	}
	return signed
}

func protectedHandler(t *testing.T, wantSubject string) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFromContext(r.Context())
		if !ok {
			t.Error("expected identity in context")
		} else if wantSubject != "" && identity.Subject != wantSubject {
			t.Errorf("expected subject %q, got %q", wantSubject, identity.Subject)
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestRequireOperatorAllowsAdminRole(t *testing.T) {
	authenticator := NewAuthenticator(testSecret)
	token := signToken(t, jwt.MapClaims{
		"sub":  "ops-1",
		"role": "admin",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})

	handler := authenticator.RequireOperator()(protectedHandler(t, "ops-1"))

	req := httptest.NewRequest(http.MethodGet, "/admin/orders", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d (%s)", rec.Code, rec.Body.String())
	}
}

func TestRequireOperatorRejectsMissingHeader(t *testing.T) {
	authenticator := NewAuthenticator(testSecret)
	handler := authenticator.RequireOperator()(protectedHandler(t, ""))

	req := httptest.NewRequest(http.MethodGet, "/admin/orders", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestRequireOperatorRejectsExpiredToken(t *testing.T) {
	authenticator := NewAuthenticator(testSecret)
	token := signToken(t, jwt.MapClaims{
		"sub":  "ops-1",
		"role": "admin",
		"exp":  time.Now().Add(-time.Hour).Unix(),
	})

	handler := authenticator.RequireOperator()(protectedHandler(t, ""))

	req := httptest.NewRequest(http.MethodGet, "/admin/orders", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestRequireOperatorRejectsInsufficientRole(t *testing.T) {
	authenticator := NewAuthenticator(testSecret)
	token := signToken(t, jwt.MapClaims{
		"sub":  "shopper-1",
		"role": "customer",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})

	handler := authenticator.RequireOperator()(protectedHandler(t, ""))

	req := httptest.NewRequest(http.MethodGet, "/admin/orders", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestVerifyRejectsTokenWithoutRoles(t *testing.T) {
	authenticator := NewAuthenticator(testSecret)
	token := signToken(t, jwt.MapClaims{
		"sub": "ops-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	if _, err := authenticator.Verify(context.Background(), token); err != ErrTokenInvalid {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestVerifyRejectsWrongSigningMethod(t *testing.T) {
	authenticator := NewAuthenticator(testSecret)

	token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub":  "ops-1",
		"role": "admin",
	})
	unsigned, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("failed signing token: %v", err)
	}

	if _, err := authenticator.Verify(context.Background(), unsigned); err != ErrTokenInvalid {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}
