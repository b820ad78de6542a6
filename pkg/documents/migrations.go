package documents

import (
	"context"
	"database/sql"

	"github.com/camberhq/camber/pkg/storage"
)

// GetMigrations returns all documents migrations
func GetMigrations() []storage.Migration {
	return []storage.Migration{
		{
			Version:     1,
			Description: "Create documents table",
			SQL: `
				CREATE TABLE IF NOT EXISTS documents (
					id BIGSERIAL PRIMARY KEY,
					organization_id BIGINT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
					association_id BIGINT REFERENCES associations(id) ON DELETE CASCADE,
					title VARCHAR(500) NOT NULL,
					category VARCHAR(50) NOT NULL,
					storage_path TEXT NOT NULL DEFAULT '',
					created_by BIGINT REFERENCES users(id) ON DELETE SET NULL,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_documents_org_assoc ON documents(organization_id, association_id);
				CREATE INDEX idx_documents_category ON documents(category);
				CREATE INDEX idx_documents_created_at ON documents(created_at DESC);
			`,
		},
	}
}

// RunMigrations executes all pending documents migrations
func RunMigrations(ctx context.Context, db *sql.DB) error {
	return storage.RunMigrations(ctx, db, "documents_migrations", GetMigrations())
}
