package tenancy

import (
	"context"
	"fmt"

	"github.com/camberhq/camber/pkg/observability"
)

// Scope is how a table binds rows to tenants
type Scope int

const (
	// ScopeDirect binds rows to an organization only
	ScopeDirect Scope = iota
	// ScopeTiered binds rows to an organization and optionally an
	// association. A NULL association means the row is visible
	// organization-wide.
	ScopeTiered
)

// Row is implemented by tenant-scoped records so the engine can evaluate
// them without knowing their concrete type
type Row interface {
	ScopeOrg() int64
	ScopeAssociation() *int64
}

// AssignmentResolver answers whether an actor holds an active access
// assignment into an association. Satisfied by AssignmentStore.
type AssignmentResolver interface {
	HasAssignment(ctx context.Context, userID, associationID int64) (bool, error)
}

// AssociationChecker answers whether an association belongs to an
// organization. Satisfied by orgs.Store.
type AssociationChecker interface {
	AssociationBelongsToOrg(ctx context.Context, associationID, organizationID int64) (bool, error)
}

// Engine evaluates the tenant predicates in Go. It mirrors the SQL policies
// generated in policies.go: the database remains the enforcement point, the
// engine rejects writes before they reach it and makes the rules unit
// testable.
type Engine struct {
	assignments  AssignmentResolver
	associations AssociationChecker
	metrics      *observability.Metrics
}

// NewEngine creates a predicate engine. assignments may be nil when no table
// uses the assignment bypass.
func NewEngine(assignments AssignmentResolver, associations AssociationChecker, metrics *observability.Metrics) *Engine {
	return &Engine{
		assignments:  assignments,
		associations: associations,
		metrics:      metrics,
	}
}

// CanRead evaluates read visibility of a row.
//
// Direct scope: organization equality. Tiered scope adds, in order: org
// staff see the whole organization; NULL-association rows are visible
// organization-wide; association equality; and finally the assignment
// bypass for actors holding an active assignment into the row's
// association. The bypass applies to reads only.
func (e *Engine) CanRead(ctx context.Context, tc *Context, table string, scope Scope, row Row) (bool, error) {
	if tc == nil {
		return false, &NoContextError{Operation: "read " + table}
	}
	if row.ScopeOrg() != tc.OrganizationID {
		return false, nil
	}
	if scope == ScopeDirect {
		return true, nil
	}

	if tc.IsOrgStaff {
		return true, nil
	}
	rowAssoc := row.ScopeAssociation()
	if rowAssoc == nil {
		return true, nil
	}
	if tc.AssociationID != nil && *tc.AssociationID == *rowAssoc {
		return true, nil
	}

	if e.assignments != nil && tc.ActorID != nil {
		assigned, err := e.assignments.HasAssignment(ctx, *tc.ActorID, *rowAssoc)
		if err != nil {
			return false, fmt.Errorf("failed to resolve assignment: %w", err)
		}
		if assigned {
			return true, nil
		}
	}
	return false, nil
}

// CanWrite evaluates update and delete visibility. Identical to CanRead
// minus the assignment bypass: an assignment widens what an actor can see,
// never what they can change.
func (e *Engine) CanWrite(tc *Context, table string, scope Scope, row Row) (bool, error) {
	if tc == nil {
		return false, &NoContextError{Operation: "write " + table}
	}
	if row.ScopeOrg() != tc.OrganizationID {
		return false, nil
	}
	if scope == ScopeDirect {
		return true, nil
	}

	if tc.IsOrgStaff {
		return true, nil
	}
	rowAssoc := row.ScopeAssociation()
	if rowAssoc == nil {
		return true, nil
	}
	if tc.AssociationID != nil && *tc.AssociationID == *rowAssoc {
		return true, nil
	}
	return false, nil
}

// CheckInsert validates a row before insert. The organization must match the
// context and any association id must belong to that organization; a
// violation is a CrossTenantWriteError. Non-staff actors may only file rows
// into their own association or organization-wide.
func (e *Engine) CheckInsert(ctx context.Context, tc *Context, table string, scope Scope, row Row) error {
	if tc == nil {
		return &NoContextError{Operation: "insert into " + table}
	}
	if row.ScopeOrg() != tc.OrganizationID {
		e.countCrossTenant()
		return &CrossTenantWriteError{Table: table}
	}
	if scope == ScopeDirect {
		return nil
	}

	rowAssoc := row.ScopeAssociation()
	if rowAssoc == nil {
		return nil
	}

	if e.associations != nil {
		belongs, err := e.associations.AssociationBelongsToOrg(ctx, *rowAssoc, tc.OrganizationID)
		if err != nil {
			return fmt.Errorf("failed to check association ownership: %w", err)
		}
		if !belongs {
			e.countCrossTenant()
			return &CrossTenantWriteError{Table: table, AssociationID: *rowAssoc}
		}
	}

	if !tc.IsOrgStaff && (tc.AssociationID == nil || *tc.AssociationID != *rowAssoc) {
		e.countCrossTenant()
		return &CrossTenantWriteError{Table: table, AssociationID: *rowAssoc}
	}
	return nil
}

// Authorize converts a CanRead/CanWrite outcome into an error. Denials come
// back as DeniedError, which handlers translate to not-found.
func (e *Engine) Authorize(ctx context.Context, tc *Context, table, operation string, scope Scope, row Row) error {
	var allowed bool
	var err error
	switch operation {
	case "select":
		allowed, err = e.CanRead(ctx, tc, table, scope, row)
	case "update", "delete":
		allowed, err = e.CanWrite(tc, table, scope, row)
	default:
		return fmt.Errorf("unknown operation %q", operation)
	}
	if err != nil {
		return err
	}
	if !allowed {
		e.countDenial(table, operation)
		return &DeniedError{Table: table, Operation: operation}
	}
	return nil
}

func (e *Engine) countDenial(table, operation string) {
	if e.metrics != nil {
		e.metrics.PredicateDenialsTotal.WithLabelValues(table, operation).Inc()
	}
}

func (e *Engine) countCrossTenant() {
	if e.metrics != nil {
		e.metrics.CrossTenantWritesTotal.Inc()
	}
}
