package tenancy

import (
	"errors"
	"fmt"
)

// NoContextError reports a tenant-scoped operation attempted without a tenant
// context. It always means deny: the caller must not retry unscoped.
type NoContextError struct {
	Operation string
}

func (e *NoContextError) Error() string {
	if e.Operation != "" {
		return fmt.Sprintf("no tenant context for operation %s", e.Operation)
	}
	return "no tenant context"
}

// ContextValidationError reports a structurally invalid tenant context
type ContextValidationError struct {
	Field  string
	Reason string
}

func (e *ContextValidationError) Error() string {
	return fmt.Sprintf("invalid tenant context: %s %s", e.Field, e.Reason)
}

// CrossTenantWriteError reports a write that referenced an association
// outside the caller's organization, or an association the caller may not
// write into
type CrossTenantWriteError struct {
	Table         string
	AssociationID int64
}

func (e *CrossTenantWriteError) Error() string {
	return fmt.Sprintf("write to %s rejected: association %d is outside the writable scope", e.Table, e.AssociationID)
}

// DeniedError reports a row or statement blocked by the tenant predicates.
// Handlers translate it to 404 so denied resources are indistinguishable
// from absent ones.
type DeniedError struct {
	Table     string
	Operation string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("%s on %s denied by tenant predicate", e.Operation, e.Table)
}

// IsNoContext reports whether err is a missing-context denial
func IsNoContext(err error) bool {
	var target *NoContextError
	return errors.As(err, &target)
}

// IsDenied reports whether err is a predicate denial. Denials surface to
// clients as not-found.
func IsDenied(err error) bool {
	var target *DeniedError
	return errors.As(err, &target)
}

// IsCrossTenantWrite reports whether err is a rejected cross-tenant write
func IsCrossTenantWrite(err error) bool {
	var target *CrossTenantWriteError
	return errors.As(err, &target)
}
