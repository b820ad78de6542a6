package workorders

import (
	"context"
	"database/sql"

	"github.com/camberhq/camber/pkg/storage"
)

// GetMigrations returns all work order migrations
func GetMigrations() []storage.Migration {
	return []storage.Migration{
		{
			Version:     1,
			Description: "Create work_orders table",
			SQL: `
				CREATE TABLE IF NOT EXISTS work_orders (
					id BIGSERIAL PRIMARY KEY,
					organization_id BIGINT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
					association_id BIGINT NOT NULL REFERENCES associations(id) ON DELETE CASCADE,
					title VARCHAR(500) NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					status VARCHAR(20) NOT NULL DEFAULT 'open',
					provider_id BIGINT REFERENCES users(id) ON DELETE SET NULL,
					created_by BIGINT REFERENCES users(id) ON DELETE SET NULL,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
					closed_at TIMESTAMP
				);

				CREATE INDEX idx_work_orders_org_assoc ON work_orders(organization_id, association_id);
				CREATE INDEX idx_work_orders_status ON work_orders(status);
				CREATE INDEX idx_work_orders_provider_id ON work_orders(provider_id);
			`,
		},
	}
}

// RunMigrations executes all pending work order migrations
func RunMigrations(ctx context.Context, db *sql.DB) error {
	return storage.RunMigrations(ctx, db, "workorders_migrations", GetMigrations())
}
