package auth

import (
	"context"
	"database/sql"

	"github.com/camberhq/camber/pkg/storage"
)

// GetMigrations returns all auth migrations
func GetMigrations() []storage.Migration {
	return []storage.Migration{
		{
			Version:     1,
			Description: "Create users table",
			SQL: `
				CREATE TABLE IF NOT EXISTS users (
					id BIGSERIAL PRIMARY KEY,
					username VARCHAR(255) NOT NULL UNIQUE,
					email VARCHAR(255) NOT NULL UNIQUE,
					full_name VARCHAR(255),
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
					last_login_at TIMESTAMP
				);

				CREATE INDEX idx_users_email ON users(email);
			`,
		},
		{
			Version:     2,
			Description: "Create api_tokens table",
			SQL: `
				CREATE TABLE IF NOT EXISTS api_tokens (
					id BIGSERIAL PRIMARY KEY,
					user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					token_hash VARCHAR(64) NOT NULL UNIQUE,
					token_prefix VARCHAR(20) NOT NULL,
					name VARCHAR(255) NOT NULL,
					expires_at TIMESTAMP,
					last_used_at TIMESTAMP,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					revoked_at TIMESTAMP,
					revoked_by BIGINT REFERENCES users(id) ON DELETE SET NULL,
					revoke_reason TEXT
				);

				CREATE INDEX idx_api_tokens_token_hash ON api_tokens(token_hash);
				CREATE INDEX idx_api_tokens_user_id ON api_tokens(user_id);
			`,
		},
		{
			Version:     3,
			Description: "Create staff_records table",
			SQL: `
				CREATE TABLE IF NOT EXISTS staff_records (
					id BIGSERIAL PRIMARY KEY,
					user_id BIGINT NOT NULL UNIQUE REFERENCES users(id) ON DELETE CASCADE,
					roles TEXT[] NOT NULL DEFAULT '{}',
					pillars TEXT[] NOT NULL DEFAULT '{}',
					created_at TIMESTAMP NOT NULL DEFAULT NOW()
				);
			`,
		},
	}
}

// RunMigrations executes all pending auth migrations
func RunMigrations(ctx context.Context, db *sql.DB) error {
	return storage.RunMigrations(ctx, db, "auth_migrations", GetMigrations())
}
