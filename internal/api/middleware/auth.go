package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/example/stock-ledger/internal/auth"
	"github.com/example/stock-ledger/internal/identity"
)

func respondError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// ExtractToken pulls the bearer token from the Authorization header.
func ExtractToken(r *http.Request) string {
	if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return ""
}

type contextKey string

const principalContextKey contextKey = "principal"

// Auth validates the bearer token and puts the caller principal on the
// request context. Requests without a valid token are rejected.
func Auth(validator *auth.TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := ExtractToken(r)
			if tokenString == "" {
				respondError(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := validator.Validate(tokenString)
			if err != nil {
				respondError(w, "invalid token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), principalContextKey, claims.Principal())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuth attaches a principal when a valid token is present; anonymous
// requests pass through and act as read-only callers.
func OptionalAuth(validator *auth.TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tokenString := ExtractToken(r); tokenString != "" {
				if claims, err := validator.Validate(tokenString); err == nil {
					ctx := context.WithValue(r.Context(), principalContextKey, claims.Principal())
					r = r.WithContext(ctx)
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetPrincipal returns the caller principal from the context. Anonymous
// callers get a read-only principal.
func GetPrincipal(ctx context.Context) identity.Principal {
	if p, ok := ctx.Value(principalContextKey).(identity.Principal); ok {
		return p
	}
	return identity.Principal{Role: identity.RoleOther}
}
