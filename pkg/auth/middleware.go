package auth

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/camberhq/camber/pkg/contextkeys"
)

// Middleware provides Bearer-token authentication
type Middleware struct {
	tokenManager *TokenManager
	optional     bool // If true, allow requests without auth
}

// NewMiddleware creates a new authentication middleware
func NewMiddleware(tokenManager *TokenManager, optional bool) *Middleware {
	return &Middleware{
		tokenManager: tokenManager,
		optional:     optional,
	}
}

// Handler wraps an HTTP handler with authentication. On success the resolved
// *Principal is placed in the request context.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Format: "Bearer <token>"
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			if m.optional {
				next.ServeHTTP(w, r)
				return
			}
			m.unauthorizedResponse(w, "missing authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			m.unauthorizedResponse(w, "invalid authorization header format")
			return
		}

		apiToken, err := m.tokenManager.ValidateToken(r.Context(), parts[1])
		if err != nil {
			m.unauthorizedResponse(w, "invalid or expired token")
			return
		}

		principal, err := m.tokenManager.ResolvePrincipal(r.Context(), apiToken)
		if err != nil {
			m.unauthorizedResponse(w, "invalid or expired token")
			return
		}

		ctx := contextkeys.WithPrincipal(r.Context(), principal)
		ctx = contextkeys.WithUserID(ctx, strconv.FormatInt(principal.User.ID, 10))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *Middleware) unauthorizedResponse(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// GetPrincipal extracts the principal from a request, or nil when the request
// is unauthenticated
func GetPrincipal(r *http.Request) *Principal {
	v := r.Context().Value(contextkeys.PrincipalKey)
	if v == nil {
		return nil
	}
	principal, ok := v.(*Principal)
	if !ok {
		return nil
	}
	return principal
}

// RequestIDMiddleware assigns a request id to every request and echoes it in
// the X-Request-Id response header. Incoming ids are trusted when present.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-Id")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		w.Header().Set("X-Request-Id", requestID)
		ctx := contextkeys.WithRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
