package tenancy

import (
	"context"
	"database/sql"

	"github.com/camberhq/camber/pkg/storage"
)

// GetMigrations returns all tenancy migrations
func GetMigrations() []storage.Migration {
	return []storage.Migration{
		{
			Version:     1,
			Description: "Create access_assignments table",
			SQL: `
				CREATE TABLE IF NOT EXISTS access_assignments (
					id BIGSERIAL PRIMARY KEY,
					organization_id BIGINT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
					association_id BIGINT NOT NULL REFERENCES associations(id) ON DELETE CASCADE,
					user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					source_type VARCHAR(50) NOT NULL,
					source_id BIGINT NOT NULL,
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					granted_at TIMESTAMP NOT NULL DEFAULT NOW(),
					revoked_at TIMESTAMP,
					UNIQUE(user_id, association_id, source_type, source_id)
				);

				CREATE INDEX idx_access_assignments_lookup
					ON access_assignments(user_id, association_id) WHERE is_active;
				CREATE INDEX idx_access_assignments_source
					ON access_assignments(source_type, source_id);
			`,
		},
	}
}

// RunMigrations executes all pending tenancy migrations
func RunMigrations(ctx context.Context, db *sql.DB) error {
	return storage.RunMigrations(ctx, db, "tenancy_migrations", GetMigrations())
}
