//go:build integration

package tenancy

import (
	"context"
	"database/sql"
	"net/url"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/camberhq/camber/pkg/auth"
	"github.com/camberhq/camber/pkg/orgs"
)

// Spins up a real PostgreSQL server and verifies the policies the generator
// installs, not the Go mirror of them. Run with: go test -tags integration
func TestRowLevelSecurity_EndToEnd(t *testing.T) {
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("camber"),
		postgres.WithUsername("camber"),
		postgres.WithPassword("camber"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { container.Terminate(ctx) })

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	admin, err := sql.Open("postgres", connStr)
	require.NoError(t, err)
	t.Cleanup(func() { admin.Close() })

	require.NoError(t, auth.RunMigrations(ctx, admin))
	require.NoError(t, orgs.RunMigrations(ctx, admin))
	require.NoError(t, RunMigrations(ctx, admin))

	_, err = admin.ExecContext(ctx, `
		CREATE TABLE documents (
			id BIGSERIAL PRIMARY KEY,
			organization_id BIGINT NOT NULL,
			association_id BIGINT,
			title TEXT NOT NULL
		)
	`)
	require.NoError(t, err)

	tables := []TableSpec{{Name: "documents", Scope: ScopeTiered, ItemType: "document"}}
	require.NoError(t, ApplyPolicies(ctx, admin, tables))

	// The superuser bypasses RLS; the application role must not
	_, err = admin.ExecContext(ctx, `
		CREATE ROLE app LOGIN PASSWORD 'app';
		GRANT ALL ON ALL TABLES IN SCHEMA public TO app;
		GRANT ALL ON ALL SEQUENCES IN SCHEMA public TO app;
	`)
	require.NoError(t, err)

	seed := func(query string, args ...interface{}) {
		_, err := admin.ExecContext(ctx, query, args...)
		require.NoError(t, err)
	}
	seed(`INSERT INTO users (id, username, email) VALUES (42, 'owner', 'owner@example.com')`)
	seed(`INSERT INTO organizations (id, name, slug) VALUES (1, 'Org One', 'one'), (2, 'Org Two', 'two')`)
	seed(`INSERT INTO associations (id, organization_id, name) VALUES
		(10, 1, 'Maple HOA'), (20, 1, 'Oak HOA'), (50, 2, 'Pine HOA')`)
	seed(`INSERT INTO documents (organization_id, association_id, title) VALUES
		(1, 10, 'maple budget'),
		(1, 20, 'oak budget'),
		(1, NULL, 'org handbook'),
		(2, 50, 'pine budget')`)
	seed(`INSERT INTO access_assignments (organization_id, association_id, user_id, source_type, source_id)
		VALUES (1, 20, 42, 'work_order', 77)`)

	appURL, err := url.Parse(connStr)
	require.NoError(t, err)
	appURL.User = url.UserPassword("app", "app")

	appDB, err := sql.Open("postgres", appURL.String())
	require.NoError(t, err)
	t.Cleanup(func() { appDB.Close() })

	m := NewSessionManager(appDB, nil, nil, nil)

	countVisible := func(tc *Context) int {
		reqCtx := WithContext(ctx, tc)
		var n int
		require.NoError(t, m.RunInTx(reqCtx, func(tx *sql.Tx) error {
			return tx.QueryRowContext(reqCtx, "SELECT COUNT(*) FROM documents").Scan(&n)
		}))
		return n
	}

	t.Run("staff sees whole organization only", func(t *testing.T) {
		assert.Equal(t, 3, countVisible(SystemContext(1)))
		assert.Equal(t, 1, countVisible(SystemContext(2)))
	})

	t.Run("member sees own association and org-wide rows", func(t *testing.T) {
		actor := int64(41)
		assoc := int64(10)
		tc := &Context{OrganizationID: 1, AssociationID: &assoc, ActorID: &actor, ActorType: ActorTypeUser}
		assert.Equal(t, 2, countVisible(tc))
	})

	t.Run("assignment widens reads", func(t *testing.T) {
		actor := int64(42)
		assoc := int64(10)
		tc := &Context{OrganizationID: 1, AssociationID: &assoc, ActorID: &actor, ActorType: ActorTypeUser}
		// own association, org-wide row, and the assigned association 20
		assert.Equal(t, 3, countVisible(tc))
	})

	t.Run("assignment does not widen writes", func(t *testing.T) {
		actor := int64(42)
		assoc := int64(10)
		tc := &Context{OrganizationID: 1, AssociationID: &assoc, ActorID: &actor, ActorType: ActorTypeUser}
		reqCtx := WithContext(ctx, tc)
		require.NoError(t, m.RunInTx(reqCtx, func(tx *sql.Tx) error {
			result, err := tx.ExecContext(reqCtx,
				"UPDATE documents SET title = 'hijacked' WHERE association_id = 20")
			if err != nil {
				return err
			}
			affected, err := result.RowsAffected()
			if err != nil {
				return err
			}
			// Policy filters the row out; zero rows match
			assert.Zero(t, affected)
			return nil
		}))
	})

	t.Run("unasserted transaction sees nothing", func(t *testing.T) {
		tx, err := appDB.BeginTx(ctx, nil)
		require.NoError(t, err)
		defer tx.Rollback()

		var n int
		require.NoError(t, tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents").Scan(&n))
		assert.Zero(t, n)
	})

	t.Run("insert with foreign association id is rejected", func(t *testing.T) {
		reqCtx := WithContext(ctx, SystemContext(1))
		err := m.RunInTx(reqCtx, func(tx *sql.Tx) error {
			_, err := tx.ExecContext(reqCtx,
				"INSERT INTO documents (organization_id, association_id, title) VALUES (1, 50, 'smuggled')")
			return err
		})
		assert.Error(t, err)
	})

	t.Run("bootstrap lookup returns org id only", func(t *testing.T) {
		lookup := NewBootstrapLookup(appDB, nil, tables)
		ref, err := lookup.Resolve(ctx, "document", 1)
		require.NoError(t, err)
		assert.Equal(t, int64(1), ref.OrganizationID)
	})
}
