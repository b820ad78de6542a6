package audit

import (
	"context"
	"database/sql"
	"fmt"
)

// PoliciesSQL returns the row security DDL for audit_events. The table gets
// its own policies instead of the generated tenant set: reads and inserts
// are organization-scoped like any direct-scoped table, but deletes are
// gated on the camber.maintenance setting, which only the retention job
// asserts. Maintenance transactions also read, so retention's batch
// subquery can find expired rows across organizations. There is no update
// policy; combined with the append-only trigger an update is rejected twice
// over.
func PoliciesSQL() string {
	return `
		CREATE OR REPLACE FUNCTION camber_current_maintenance() RETURNS BOOLEAN AS $$
			SELECT COALESCE(NULLIF(current_setting('camber.maintenance', true), '')::BOOLEAN, false)
		$$ LANGUAGE sql STABLE;

		ALTER TABLE audit_events ENABLE ROW LEVEL SECURITY;
		ALTER TABLE audit_events FORCE ROW LEVEL SECURITY;

		DROP POLICY IF EXISTS audit_events_tenant_select ON audit_events;
		DROP POLICY IF EXISTS audit_events_tenant_insert ON audit_events;
		DROP POLICY IF EXISTS audit_events_retention_delete ON audit_events;

		CREATE POLICY audit_events_tenant_select ON audit_events
			FOR SELECT USING (
				organization_id = camber_current_org()
				OR camber_current_maintenance()
			);
		CREATE POLICY audit_events_tenant_insert ON audit_events
			FOR INSERT WITH CHECK (organization_id = camber_current_org());
		CREATE POLICY audit_events_retention_delete ON audit_events
			FOR DELETE USING (camber_current_maintenance());
	`
}

// ApplyPolicies installs the audit_events policies. Run at startup after
// migrations and after the tenancy helper functions are installed.
func ApplyPolicies(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, PoliciesSQL()); err != nil {
		return fmt.Errorf("failed to apply audit policies: %w", err)
	}
	return nil
}
