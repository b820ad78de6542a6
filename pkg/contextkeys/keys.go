// Package contextkeys provides centralized context key definitions
//
// IMPORTANT: All context keys used across the application must be defined here.
// This prevents typos, documents dependencies, and makes key usage discoverable.
//
// USAGE PATTERN:
//   import "github.com/camberhq/camber/pkg/contextkeys"
//   ctx = context.WithValue(ctx, contextkeys.PrincipalKey, principal)
//   principal := ctx.Value(contextkeys.PrincipalKey).(*auth.Principal)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// PrincipalKey contains *auth.Principal
	// Set by: auth.Middleware (pkg/auth/middleware.go)
	// Required by: tenancy pipeline, all protected API endpoints
	// Type: *auth.Principal
	PrincipalKey Key = "principal"

	// TenantKey contains *tenancy.Context
	// Set by: tenancy.Pipeline (pkg/tenancy/pipeline.go) after validation
	// Required by: all tenant-scoped stores and handlers
	// Type: *tenancy.Context
	TenantKey Key = "tenant_context"

	// RequestIDKey contains request ID string (UUID)
	// Set by: HTTP middleware, observability layer
	// Used by: Logger, audit trail, distributed tracing
	// Type: string
	RequestIDKey Key = "request_id"

	// UserIDKey contains user ID string
	// Set by: auth middleware after token validation
	// Used by: Logger, audit trail
	// Type: string
	UserIDKey Key = "user_id"

	// LoggerKey contains *observability.Logger
	// Set by: Observability middleware
	// Used by: Handlers that need structured logging with request context
	// Type: *observability.Logger
	LoggerKey Key = "logger"

	// AuditRecorderKey contains audit.Recorder interface
	// Set by: cmd/camber wiring via tenancy pipeline
	// Used by: Handlers and stores that record audit events
	// Type: audit.Recorder
	AuditRecorderKey Key = "audit_recorder"
)

// Helper functions for type-safe context operations

// WithPrincipal adds the resolved principal to the context
func WithPrincipal(ctx context.Context, principal interface{}) context.Context {
	return context.WithValue(ctx, PrincipalKey, principal)
}

// WithTenant adds the validated tenant context to the context
func WithTenant(ctx context.Context, tc interface{}) context.Context {
	return context.WithValue(ctx, TenantKey, tc)
}

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithUserID adds user ID to the context
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// WithLogger adds logger to the context
func WithLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// WithAuditRecorder adds the audit recorder to the context
func WithAuditRecorder(ctx context.Context, recorder interface{}) context.Context {
	return context.WithValue(ctx, AuditRecorderKey, recorder)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// GetUserID retrieves user ID from context
func GetUserID(ctx context.Context) string {
	if userID, ok := ctx.Value(UserIDKey).(string); ok {
		return userID
	}
	return ""
}
