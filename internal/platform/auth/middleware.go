package auth

import (
	"encoding/json"
	"net/http"
	"strings"
)

// RequireRoles verifies the Authorization bearer token and ensures the
// identity carries at least one of the allowed roles.
func (a *Authenticator) RequireRoles(allowedRoles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(allowedRoles))
	for _, role := range allowedRoles {
		if normalised := normaliseRole(role); normalised != "" {
			allowed[normalised] = struct{}{}
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr, ok := extractBearerToken(r.Header.Get("Authorization"))
			if !ok {
				respondAuthError(w, http.StatusUnauthorized, "unauthenticated", "authorization header missing or invalid")
				return
			}

			identity, err := a.Verify(r.Context(), tokenStr)
			if err != nil {
				message := "token invalid"
				if err == ErrTokenExpired {
					message = "token expired"
				}
				respondAuthError(w, http.StatusUnauthorized, "unauthenticated", message)
				return
			}

			if len(allowed) > 0 && !hasAnyRole(identity, allowed) {
				respondAuthError(w, http.StatusForbidden, "forbidden", "insufficient role")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// RequireOperator gates routes to staff with the operator or admin role.
func (a *Authenticator) RequireOperator() func(http.Handler) http.Handler {
	return a.RequireRoles(RoleOperator, RoleAdmin)
}

func hasAnyRole(identity *Identity, allowed map[string]struct{}) bool {
	if identity == nil {
		return false
	}
	for _, role := range identity.Roles {
		if _, ok := allowed[normaliseRole(role)]; ok {
			return true
		}
	}
	return false
}

func extractBearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

func respondAuthError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error":   code,
		"message": message,
	})
}
