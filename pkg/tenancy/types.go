package tenancy

import (
	"context"

	"github.com/camberhq/camber/pkg/contextkeys"
)

// Actor types carried into session settings and audit events
const (
	ActorTypeUser   = "USER"
	ActorTypeStaff  = "STAFF"
	ActorTypeSystem = "SYSTEM"
)

// Context is the tenant scope for one request or job. AssociationID nil
// means the organization-wide scope; it is not a wildcard across
// organizations. Immutable once placed in a context.Context.
type Context struct {
	OrganizationID int64
	AssociationID  *int64
	IsOrgStaff     bool
	ActorID        *int64 // nil for SYSTEM actors
	ActorType      string
}

// Validate checks the context is internally coherent
func (tc *Context) Validate() error {
	if tc.OrganizationID <= 0 {
		return &ContextValidationError{Field: "organization_id", Reason: "must be a positive id"}
	}
	if tc.AssociationID != nil && *tc.AssociationID <= 0 {
		return &ContextValidationError{Field: "association_id", Reason: "must be a positive id when set"}
	}
	switch tc.ActorType {
	case ActorTypeUser, ActorTypeStaff:
		if tc.ActorID == nil {
			return &ContextValidationError{Field: "actor_id", Reason: "required for user and staff actors"}
		}
	case ActorTypeSystem:
	default:
		return &ContextValidationError{Field: "actor_type", Reason: "unknown actor type"}
	}
	return nil
}

// SystemContext builds a context for background jobs acting within one
// organization
func SystemContext(organizationID int64) *Context {
	return &Context{
		OrganizationID: organizationID,
		IsOrgStaff:     true,
		ActorType:      ActorTypeSystem,
	}
}

// WithContext places a validated tenant context into the request context
func WithContext(ctx context.Context, tc *Context) context.Context {
	return contextkeys.WithTenant(ctx, tc)
}

// FromContext returns the tenant context, or a NoContextError when none is
// set. Callers must treat the error as a denial, never as permission to run
// unscoped.
func FromContext(ctx context.Context) (*Context, error) {
	if tc, ok := ctx.Value(contextkeys.TenantKey).(*Context); ok && tc != nil {
		return tc, nil
	}
	return nil, &NoContextError{}
}
