package orgs

import (
	"context"
	"database/sql"

	"github.com/camberhq/camber/pkg/storage"
)

// GetMigrations returns all orgs migrations
func GetMigrations() []storage.Migration {
	return []storage.Migration{
		{
			Version:     1,
			Description: "Create organizations table",
			SQL: `
				CREATE TABLE IF NOT EXISTS organizations (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(255) NOT NULL,
					slug VARCHAR(255) NOT NULL UNIQUE,
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_organizations_slug ON organizations(slug);
			`,
		},
		{
			Version:     2,
			Description: "Create associations table",
			SQL: `
				CREATE TABLE IF NOT EXISTS associations (
					id BIGSERIAL PRIMARY KEY,
					organization_id BIGINT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
					name VARCHAR(255) NOT NULL,
					is_pseudo BOOLEAN NOT NULL DEFAULT FALSE,
					unit_count INT NOT NULL DEFAULT 0,
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_associations_organization_id ON associations(organization_id);
				CREATE UNIQUE INDEX idx_associations_one_pseudo_per_org
					ON associations(organization_id) WHERE is_pseudo;
			`,
		},
		{
			Version:     3,
			Description: "Create org_memberships table",
			SQL: `
				CREATE TABLE IF NOT EXISTS org_memberships (
					id BIGSERIAL PRIMARY KEY,
					user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					organization_id BIGINT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
					role VARCHAR(50) NOT NULL,
					is_default BOOLEAN NOT NULL DEFAULT FALSE,
					joined_at TIMESTAMP NOT NULL DEFAULT NOW(),
					UNIQUE(user_id, organization_id)
				);

				CREATE INDEX idx_org_memberships_user_id ON org_memberships(user_id);
				CREATE INDEX idx_org_memberships_organization_id ON org_memberships(organization_id);
			`,
		},
		{
			Version:     4,
			Description: "Create association_members table",
			SQL: `
				CREATE TABLE IF NOT EXISTS association_members (
					id BIGSERIAL PRIMARY KEY,
					association_id BIGINT NOT NULL REFERENCES associations(id) ON DELETE CASCADE,
					user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					unit_number VARCHAR(50),
					verified_at TIMESTAMP,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					UNIQUE(association_id, user_id)
				);

				CREATE INDEX idx_association_members_user_id ON association_members(user_id);
				CREATE INDEX idx_association_members_association_id ON association_members(association_id);
			`,
		},
	}
}

// RunMigrations executes all pending orgs migrations
func RunMigrations(ctx context.Context, db *sql.DB) error {
	return storage.RunMigrations(ctx, db, "orgs_migrations", GetMigrations())
}
