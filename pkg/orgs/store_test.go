package orgs

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_CreateOrganization(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(db)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO organizations")).
		WithArgs("Acme Management", "acme").
		WillReturnRows(sqlmock.NewRows([]string{"id", "is_active", "created_at", "updated_at"}).
			AddRow(1, true, now, now))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO associations")).
		WithArgs(int64(1), "Acme Management (internal)").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	org := &Organization{Name: "Acme Management", Slug: "acme"}
	require.NoError(t, store.CreateOrganization(context.Background(), org))
	assert.Equal(t, int64(1), org.ID)
	assert.True(t, org.IsActive)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_CreateOrganization_RollsBackOnPseudoFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(db)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO organizations")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "is_active", "created_at", "updated_at"}).
			AddRow(1, true, now, now))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO associations")).
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err = store.CreateOrganization(context.Background(), &Organization{Name: "Acme", Slug: "acme"})
	assert.Error(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_AssociationBelongsToOrg(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(db)

	t.Run("belongs", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
			WithArgs(int64(10), int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		ok, err := store.AssociationBelongsToOrg(context.Background(), 10, 1)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("foreign association", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
			WithArgs(int64(10), int64(2)).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

		ok, err := store.AssociationBelongsToOrg(context.Background(), 10, 2)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_IsVerifiedMember(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(db)

	t.Run("verified member", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
			WithArgs(int64(10), int64(42)).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		ok, err := store.IsVerifiedMember(context.Background(), 10, 42)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("unverified or missing", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
			WithArgs(int64(10), int64(43)).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

		ok, err := store.IsVerifiedMember(context.Background(), 10, 43)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_VerifyAssociationMember(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(db)

	t.Run("verifies pending membership", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta("UPDATE association_members")).
			WithArgs(int64(10), int64(42)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, store.VerifyAssociationMember(context.Background(), 10, 42))
	})

	t.Run("nothing to verify", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta("UPDATE association_members")).
			WithArgs(int64(10), int64(42)).
			WillReturnResult(sqlmock.NewResult(0, 0))

		assert.Error(t, store.VerifyAssociationMember(context.Background(), 10, 42))
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}
