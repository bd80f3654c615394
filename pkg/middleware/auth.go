package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

type contextKeyType string

const (
	userIDKey contextKeyType = "user_id"
	roleKey   contextKeyType = "role"
)

// Claims is the caller identity extracted from an access token.
type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// TokenValidator validates an access token and returns its claims. The
// concrete implementation is injected by the application wiring so this
// package stays free of signing details.
type TokenValidator func(token string) (*Claims, error)

// Auth validates the bearer token and injects the caller identity into the
// request context. Requests without a valid token are rejected with 401.
func Auth(validate TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				writeAuthError(w, "missing or malformed authorization header")
				return
			}

			claims, err := validate(token)
			if err != nil {
				writeAuthError(w, "invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), claims)))
		})
	}
}

// OptionalAuth injects the caller identity when a valid bearer token is
// present and lets the request through anonymously otherwise. Used on routes
// where the service layer decides whether authentication is required.
func OptionalAuth(validate TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token, ok := bearerToken(r); ok {
				if claims, err := validate(token); err == nil {
					r = r.WithContext(withClaims(r.Context(), claims))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

func withClaims(ctx context.Context, claims *Claims) context.Context {
	ctx = context.WithValue(ctx, userIDKey, claims.UserID)
	return context.WithValue(ctx, roleKey, claims.Role)
}

// UserIDFromContext returns the authenticated caller's id, or "".
func UserIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(userIDKey).(string); ok {
		return id
	}
	return ""
}

// RoleFromContext returns the authenticated caller's role, or "".
func RoleFromContext(ctx context.Context) string {
	if role, ok := ctx.Value(roleKey).(string); ok {
		return role
	}
	return ""
}

func writeAuthError(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"code":    "UNAUTHENTICATED",
		"message": message,
	})
}
