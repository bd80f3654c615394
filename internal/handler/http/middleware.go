package http

import (
	"net/http"

	"github.com/motorline/catalog-service/internal/auth"
	"github.com/motorline/catalog-service/pkg/middleware"
)

// ContentTypeJSON sets the response content type for API routes.
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// callerFromRequest builds the caller identity from the authenticated request
// context. Unauthenticated requests yield an anonymous guest caller.
func callerFromRequest(r *http.Request) auth.Caller {
	return auth.Caller{
		ID:   middleware.UserIDFromContext(r.Context()),
		Role: middleware.RoleFromContext(r.Context()),
	}
}
