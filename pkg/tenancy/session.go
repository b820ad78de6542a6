package tenancy

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/camberhq/camber/pkg/observability"
)

// ContextSwitchRecorder receives one call per tenant context assertion,
// including reassertions of an unchanged scope. Satisfied by
// audit.DBRecorder.
type ContextSwitchRecorder interface {
	RecordContextSwitch(ctx context.Context, organizationID int64, associationID *int64, actorID *int64, actorType string)
}

// SessionManager owns tenant-scoped transactions. All reads and writes of
// tenant-scoped tables go through BeginTx or RunInTx; nothing else may touch
// those tables.
type SessionManager struct {
	db       *sql.DB
	recorder ContextSwitchRecorder
	logger   *observability.Logger
	metrics  *observability.Metrics
}

// NewSessionManager creates a session manager
func NewSessionManager(db *sql.DB, recorder ContextSwitchRecorder, logger *observability.Logger, metrics *observability.Metrics) *SessionManager {
	return &SessionManager{
		db:       db,
		recorder: recorder,
		logger:   logger,
		metrics:  metrics,
	}
}

// BeginTx opens a transaction and asserts the tenant context from ctx as its
// first statement. Missing or invalid context fails before any statement
// runs.
func (m *SessionManager) BeginTx(ctx context.Context) (*sql.Tx, error) {
	tc, err := FromContext(ctx)
	if err != nil {
		m.countFailure("missing_context")
		return nil, err
	}
	if err := tc.Validate(); err != nil {
		m.countFailure("invalid_context")
		return nil, err
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := assertContext(ctx, tx, tc); err != nil {
		tx.Rollback()
		m.countFailure("assertion_failed")
		return nil, err
	}

	if m.metrics != nil {
		m.metrics.ContextSwitchesTotal.WithLabelValues(tc.ActorType).Inc()
	}
	if m.recorder != nil {
		m.recorder.RecordContextSwitch(ctx, tc.OrganizationID, tc.AssociationID, tc.ActorID, tc.ActorType)
	}

	return tx, nil
}

// RunInTx runs fn inside a tenant-scoped transaction, committing on nil and
// rolling back otherwise
func (m *SessionManager) RunInTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := m.BeginTx(ctx)
	if err != nil {
		return err
	}

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// assertContext writes the tenant scope into transaction-local settings.
// set_config with is_local=true scopes the values to this transaction, so a
// pooled connection carries nothing across to its next checkout. Always the
// first statement of the transaction.
func assertContext(ctx context.Context, tx *sql.Tx, tc *Context) error {
	assocValue := ""
	if tc.AssociationID != nil {
		assocValue = strconv.FormatInt(*tc.AssociationID, 10)
	}
	actorValue := ""
	if tc.ActorID != nil {
		actorValue = strconv.FormatInt(*tc.ActorID, 10)
	}

	_, err := tx.ExecContext(ctx, `
		SELECT set_config('camber.org_id', $1, true),
		       set_config('camber.assoc_id', $2, true),
		       set_config('camber.is_org_staff', $3, true),
		       set_config('camber.actor_id', $4, true)
	`,
		strconv.FormatInt(tc.OrganizationID, 10),
		assocValue,
		strconv.FormatBool(tc.IsOrgStaff),
		actorValue,
	)
	if err != nil {
		return fmt.Errorf("failed to assert tenant context: %w", err)
	}
	return nil
}

// CurrentSettings reads back the asserted settings inside a transaction.
// Diagnostic use only.
func CurrentSettings(ctx context.Context, tx *sql.Tx) (orgID, assocID, isOrgStaff, actorID string, err error) {
	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(current_setting('camber.org_id', true), ''),
		       COALESCE(current_setting('camber.assoc_id', true), ''),
		       COALESCE(current_setting('camber.is_org_staff', true), ''),
		       COALESCE(current_setting('camber.actor_id', true), '')
	`).Scan(&orgID, &assocID, &isOrgStaff, &actorID)
	return
}

func (m *SessionManager) countFailure(reason string) {
	if m.metrics != nil {
		m.metrics.ContextFailuresTotal.WithLabelValues(reason).Inc()
	}
}
