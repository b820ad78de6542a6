package audit

import (
	"context"
	"database/sql"

	"github.com/camberhq/camber/pkg/storage"
)

// GetMigrations returns all audit migrations
func GetMigrations() []storage.Migration {
	return []storage.Migration{
		{
			Version:     1,
			Description: "Create audit_events table",
			SQL: `
				CREATE TABLE IF NOT EXISTS audit_events (
					id BIGSERIAL PRIMARY KEY,
					event_id UUID NOT NULL UNIQUE,
					organization_id BIGINT NOT NULL,
					association_id BIGINT,
					actor_id BIGINT,
					actor_type VARCHAR(20) NOT NULL,
					action VARCHAR(100) NOT NULL,
					resource_type VARCHAR(50),
					resource_id VARCHAR(255),
					request_id VARCHAR(100),
					previous_state JSONB,
					new_state JSONB,
					performed_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_audit_events_org_performed
					ON audit_events(organization_id, performed_at DESC);
				CREATE INDEX idx_audit_events_actor_id ON audit_events(actor_id);
				CREATE INDEX idx_audit_events_action ON audit_events(action);
				CREATE INDEX idx_audit_events_resource
					ON audit_events(resource_type, resource_id);
				CREATE INDEX idx_audit_events_performed_at ON audit_events(performed_at);
			`,
		},
		{
			Version:     2,
			Description: "Make audit_events append-only for the application role",
			SQL: `
				CREATE OR REPLACE FUNCTION audit_events_block_mutation() RETURNS trigger AS $$
				BEGIN
					RAISE EXCEPTION 'audit_events is append-only';
				END;
				$$ LANGUAGE plpgsql;

				CREATE TRIGGER audit_events_no_update
					BEFORE UPDATE ON audit_events
					FOR EACH ROW EXECUTE FUNCTION audit_events_block_mutation();
			`,
		},
	}
}

// RunMigrations executes all pending audit migrations
func RunMigrations(ctx context.Context, db *sql.DB) error {
	return storage.RunMigrations(ctx, db, "audit_migrations", GetMigrations())
}
