package audit

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func expectDeleteBatch(mock sqlmock.Sqlmock, deleted int64) {
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("set_config('camber.maintenance', 'true', true)")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM audit_events")).
		WillReturnResult(sqlmock.NewResult(0, deleted))
	mock.ExpectCommit()
}

func TestRetention_Run(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	t.Run("disabled when retention is zero", func(t *testing.T) {
		deleted, err := NewRetention(db, nil, 0).Run(context.Background())
		require.NoError(t, err)
		assert.Zero(t, deleted)
	})

	t.Run("deletes in batches under the maintenance scope", func(t *testing.T) {
		r := NewRetention(db, nil, 365)
		r.batchSize = 2

		// Each batch asserts the maintenance setting first; the delete
		// policy accepts nothing else
		expectDeleteBatch(mock, 2)
		expectDeleteBatch(mock, 1)

		deleted, err := r.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(3), deleted)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditPoliciesSQL(t *testing.T) {
	ddl := PoliciesSQL()

	assert.Contains(t, ddl, "FORCE ROW LEVEL SECURITY")
	assert.Contains(t, ddl, "organization_id = camber_current_org()")

	// Deletes answer only to the maintenance scope and there is no update
	// policy at all
	assert.Contains(t, ddl, "FOR DELETE USING (camber_current_maintenance())")
	assert.NotContains(t, ddl, "FOR UPDATE")
}
