package tenancy

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// TableSpec describes one tenant-scoped table for policy generation
type TableSpec struct {
	Name        string
	Scope       Scope
	OrgColumn   string // defaults to organization_id
	AssocColumn string // defaults to association_id, tiered scope only
	IDColumn    string // defaults to id, used for the ownership lookup
	ItemType    string // bootstrap lookup name, defaults to Name
}

func (t TableSpec) orgColumn() string {
	if t.OrgColumn != "" {
		return t.OrgColumn
	}
	return "organization_id"
}

func (t TableSpec) assocColumn() string {
	if t.AssocColumn != "" {
		return t.AssocColumn
	}
	return "association_id"
}

func (t TableSpec) idColumn() string {
	if t.IDColumn != "" {
		return t.IDColumn
	}
	return "id"
}

// HelperFunctionsSQL returns the functions that expose the asserted session
// settings to policies. Each returns NULL when the setting is unset, so an
// unasserted transaction matches no rows anywhere.
func HelperFunctionsSQL() string {
	return `
		CREATE OR REPLACE FUNCTION camber_current_org() RETURNS BIGINT AS $$
			SELECT NULLIF(current_setting('camber.org_id', true), '')::BIGINT
		$$ LANGUAGE sql STABLE;

		CREATE OR REPLACE FUNCTION camber_current_assoc() RETURNS BIGINT AS $$
			SELECT NULLIF(current_setting('camber.assoc_id', true), '')::BIGINT
		$$ LANGUAGE sql STABLE;

		CREATE OR REPLACE FUNCTION camber_current_is_org_staff() RETURNS BOOLEAN AS $$
			SELECT COALESCE(NULLIF(current_setting('camber.is_org_staff', true), '')::BOOLEAN, false)
		$$ LANGUAGE sql STABLE;

		CREATE OR REPLACE FUNCTION camber_current_actor() RETURNS BIGINT AS $$
			SELECT NULLIF(current_setting('camber.actor_id', true), '')::BIGINT
		$$ LANGUAGE sql STABLE;
	`
}

// readPredicate is the USING expression for selects. Tiered scope grants, in
// order: org staff, organization-wide rows, association equality, and the
// assignment bypass.
func (t TableSpec) readPredicate() string {
	org := t.orgColumn()
	if t.Scope == ScopeDirect {
		return fmt.Sprintf("%s = camber_current_org()", org)
	}
	assoc := t.assocColumn()
	return fmt.Sprintf(`%s = camber_current_org()
			AND (
				camber_current_is_org_staff()
				OR %s IS NULL
				OR %s = camber_current_assoc()
				OR EXISTS (
					SELECT 1 FROM access_assignments aa
					WHERE aa.association_id = %s.%s
					  AND aa.user_id = camber_current_actor()
					  AND aa.is_active
				)
			)`, org, assoc, assoc, t.Name, assoc)
}

// writePredicate is the USING expression for updates and deletes: the read
// predicate without the assignment bypass
func (t TableSpec) writePredicate() string {
	org := t.orgColumn()
	if t.Scope == ScopeDirect {
		return fmt.Sprintf("%s = camber_current_org()", org)
	}
	assoc := t.assocColumn()
	return fmt.Sprintf(`%s = camber_current_org()
			AND (
				camber_current_is_org_staff()
				OR %s IS NULL
				OR %s = camber_current_assoc()
			)`, org, assoc, assoc)
}

// checkPredicate is the WITH CHECK expression for inserts and updated rows.
// Beyond the write predicate it verifies any association id actually belongs
// to the asserted organization, so a foreign association id is rejected even
// when every other column looks local.
func (t TableSpec) checkPredicate() string {
	if t.Scope == ScopeDirect {
		return t.writePredicate()
	}
	assoc := t.assocColumn()
	return fmt.Sprintf(`%s
			AND (
				%s IS NULL
				OR EXISTS (
					SELECT 1 FROM associations a
					WHERE a.id = %s
					  AND a.organization_id = camber_current_org()
				)
			)`, t.writePredicate(), assoc, assoc)
}

// PoliciesSQL returns the DDL enabling row-level security on the table and
// installing its four policies. Idempotent.
func (t TableSpec) PoliciesSQL() string {
	var b strings.Builder

	fmt.Fprintf(&b, "ALTER TABLE %s ENABLE ROW LEVEL SECURITY;\n", t.Name)
	fmt.Fprintf(&b, "ALTER TABLE %s FORCE ROW LEVEL SECURITY;\n", t.Name)

	for _, policy := range []string{"select", "insert", "update", "delete"} {
		fmt.Fprintf(&b, "DROP POLICY IF EXISTS %s_tenant_%s ON %s;\n", t.Name, policy, t.Name)
	}

	fmt.Fprintf(&b, "CREATE POLICY %s_tenant_select ON %s FOR SELECT USING (%s);\n",
		t.Name, t.Name, t.readPredicate())
	fmt.Fprintf(&b, "CREATE POLICY %s_tenant_insert ON %s FOR INSERT WITH CHECK (%s);\n",
		t.Name, t.Name, t.checkPredicate())
	fmt.Fprintf(&b, "CREATE POLICY %s_tenant_update ON %s FOR UPDATE USING (%s) WITH CHECK (%s);\n",
		t.Name, t.Name, t.writePredicate(), t.checkPredicate())
	fmt.Fprintf(&b, "CREATE POLICY %s_tenant_delete ON %s FOR DELETE USING (%s);\n",
		t.Name, t.Name, t.writePredicate())

	return b.String()
}

// OwnershipTableSQL returns the bootstrap mapping table. Row-level security
// is never enabled on it: its three columns are the entire surface the
// bootstrap lookup may expose, so making it readable without a tenant
// context leaks nothing beyond the mapping itself. SECURITY DEFINER reads of
// the policed tables would not work here: the definer is whichever role ran
// the setup, that role owns the tables, and FORCE applies the policies to
// the owner too.
func OwnershipTableSQL() string {
	return `
		CREATE TABLE IF NOT EXISTS item_ownership (
			item_type VARCHAR(50) NOT NULL,
			item_id BIGINT NOT NULL,
			organization_id BIGINT NOT NULL,
			PRIMARY KEY (item_type, item_id)
		);
	`
}

// OwnershipTriggerSQL returns the trigger keeping item_ownership in sync
// with the table. Triggers fire regardless of the caller's tenant context,
// so the mapping stays complete even though each writer only sees its own
// rows.
func (t TableSpec) OwnershipTriggerSQL() string {
	itemType := t.ItemType
	if itemType == "" {
		itemType = t.Name
	}
	return fmt.Sprintf(`
		CREATE OR REPLACE FUNCTION camber_ownership_sync_%s() RETURNS trigger AS $$
		BEGIN
			IF TG_OP = 'DELETE' THEN
				DELETE FROM item_ownership WHERE item_type = '%s' AND item_id = OLD.%s;
				RETURN OLD;
			END IF;
			INSERT INTO item_ownership (item_type, item_id, organization_id)
			VALUES ('%s', NEW.%s, NEW.%s)
			ON CONFLICT (item_type, item_id)
			DO UPDATE SET organization_id = EXCLUDED.organization_id;
			RETURN NEW;
		END;
		$$ LANGUAGE plpgsql;

		DROP TRIGGER IF EXISTS %s_ownership_sync ON %s;
		CREATE TRIGGER %s_ownership_sync
			AFTER INSERT OR UPDATE OR DELETE ON %s
			FOR EACH ROW EXECUTE FUNCTION camber_ownership_sync_%s();
	`, t.Name, itemType, t.idColumn(),
		itemType, t.idColumn(), t.orgColumn(),
		t.Name, t.Name, t.Name, t.Name, t.Name)
}

// ownershipBackfillSQL copies existing rows into the mapping. Only effective
// while the table is still readable by the applying role, which is why
// ApplyPolicies installs triggers and backfills before enabling the
// policies.
func (t TableSpec) ownershipBackfillSQL() string {
	itemType := t.ItemType
	if itemType == "" {
		itemType = t.Name
	}
	return fmt.Sprintf(`
		INSERT INTO item_ownership (item_type, item_id, organization_id)
		SELECT '%s', %s, %s FROM %s
		ON CONFLICT (item_type, item_id)
		DO UPDATE SET organization_id = EXCLUDED.organization_id;
	`, itemType, t.idColumn(), t.orgColumn(), t.Name)
}

// ApplyPolicies installs the helper functions, the bootstrap ownership
// mapping and its sync triggers, and finally row-level security for every
// registered table. Run at startup after migrations.
func ApplyPolicies(ctx context.Context, db *sql.DB, tables []TableSpec) error {
	if _, err := db.ExecContext(ctx, HelperFunctionsSQL()); err != nil {
		return fmt.Errorf("failed to install helper functions: %w", err)
	}
	if _, err := db.ExecContext(ctx, OwnershipTableSQL()); err != nil {
		return fmt.Errorf("failed to create ownership mapping: %w", err)
	}

	for _, table := range tables {
		if _, err := db.ExecContext(ctx, table.OwnershipTriggerSQL()); err != nil {
			return fmt.Errorf("failed to install ownership trigger for %s: %w", table.Name, err)
		}
		if _, err := db.ExecContext(ctx, table.ownershipBackfillSQL()); err != nil {
			return fmt.Errorf("failed to backfill ownership for %s: %w", table.Name, err)
		}
	}

	for _, table := range tables {
		if _, err := db.ExecContext(ctx, table.PoliciesSQL()); err != nil {
			return fmt.Errorf("failed to apply policies to %s: %w", table.Name, err)
		}
	}
	return nil
}
