package workorders

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/camberhq/camber/pkg/audit"
	"github.com/camberhq/camber/pkg/tenancy"
)

type recordedEvents struct {
	audit.NoopRecorder
	events []*audit.Event
}

func (r *recordedEvents) Record(ctx context.Context, event *audit.Event) {
	r.events = append(r.events, event)
}

type allowAllAssociations struct{}

func (allowAllAssociations) AssociationBelongsToOrg(ctx context.Context, associationID, organizationID int64) (bool, error) {
	return organizationID == 1, nil
}

func newTestStore(t *testing.T) (*Store, sqlmock.Sqlmock, *recordedEvents) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	recorder := &recordedEvents{}
	sessions := tenancy.NewSessionManager(db, nil, nil, nil)
	engine := tenancy.NewEngine(nil, allowAllAssociations{}, nil)
	assignments := tenancy.NewAssignmentStore(db, nil, nil)
	return NewStore(sessions, engine, assignments, recorder), mock, recorder
}

func staffCtx(org int64) context.Context {
	actor := int64(7)
	return tenancy.WithContext(context.Background(), &tenancy.Context{
		OrganizationID: org,
		IsOrgStaff:     true,
		ActorID:        &actor,
		ActorType:      tenancy.ActorTypeUser,
	})
}

func expectAssert(mock sqlmock.Sqlmock) {
	mock.ExpectExec(regexp.QuoteMeta("set_config('camber.org_id'")).
		WillReturnResult(sqlmock.NewResult(0, 1))
}

func orderRows(id int64, status Status, providerID interface{}) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "organization_id", "association_id", "title", "description",
		"status", "provider_id", "created_by", "created_at", "updated_at", "closed_at",
	}).AddRow(id, 1, 10, "fix gate", "front gate stuck", status, providerID, 7, now, now, nil)
}

func TestStore_Create(t *testing.T) {
	store, mock, recorder := newTestStore(t)
	now := time.Now()

	mock.ExpectBegin()
	expectAssert(mock)
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO work_orders")).
		WithArgs(int64(1), int64(10), "fix gate", "front gate stuck", "open", int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(77, now, now))
	mock.ExpectCommit()

	order := &WorkOrder{AssociationID: 10, Title: "fix gate", Description: "front gate stuck"}
	require.NoError(t, store.Create(staffCtx(1), order))

	assert.Equal(t, int64(77), order.ID)
	assert.Equal(t, StatusOpen, order.Status)

	require.Len(t, recorder.events, 1)
	assert.Equal(t, "data.work_order.create", recorder.events[0].Action)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Create_RequiresAssociation(t *testing.T) {
	store, mock, _ := newTestStore(t)

	err := store.Create(staffCtx(1), &WorkOrder{Title: "fix gate"})
	assert.Error(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Assign_MaterializesAssignment(t *testing.T) {
	store, mock, recorder := newTestStore(t)
	now := time.Now()

	// The status transition commits first, then the assignment edge is
	// written and becomes visible to the read policies
	mock.ExpectBegin()
	expectAssert(mock)
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs(int64(77)).
		WillReturnRows(orderRows(77, StatusOpen, nil))
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE work_orders")).
		WithArgs(int64(77), "assigned", int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"updated_at", "closed_at"}).AddRow(now, nil))
	mock.ExpectCommit()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO access_assignments")).
		WithArgs(int64(1), int64(10), int64(42), "work_order", int64(77)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	order, err := store.Assign(staffCtx(1), 77, 42)
	require.NoError(t, err)
	assert.Equal(t, StatusAssigned, order.Status)
	assert.Equal(t, int64(42), *order.ProviderID)

	require.Len(t, recorder.events, 1)
	assert.Equal(t, "data.work_order.assigned", recorder.events[0].Action)
	assert.NotNil(t, recorder.events[0].PreviousState)
	assert.NotNil(t, recorder.events[0].NewState)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Complete_RevokesAssignment(t *testing.T) {
	store, mock, _ := newTestStore(t)
	now := time.Now()

	mock.ExpectBegin()
	expectAssert(mock)
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs(int64(77)).
		WillReturnRows(orderRows(77, StatusInProgress, int64(42)))
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE work_orders")).
		WithArgs(int64(77), "completed", int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"updated_at", "closed_at"}).AddRow(now, now))
	mock.ExpectCommit()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE access_assignments")).
		WithArgs(int64(42), int64(10), "work_order", int64(77)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	order, err := store.Complete(staffCtx(1), 77)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, order.Status)
	assert.NotNil(t, order.ClosedAt)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Transition_ClosedOrderRejected(t *testing.T) {
	store, mock, recorder := newTestStore(t)

	mock.ExpectBegin()
	expectAssert(mock)
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs(int64(77)).
		WillReturnRows(orderRows(77, StatusCompleted, int64(42)))
	mock.ExpectRollback()

	_, err := store.Assign(staffCtx(1), 77, 42)
	assert.ErrorIs(t, err, ErrClosed)

	assert.Empty(t, recorder.events)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_List_FocusScopeNarrows(t *testing.T) {
	store, mock, _ := newTestStore(t)

	// A staff caller who asserted an association gets its listing, not the
	// whole organization's
	assocID := int64(10)
	actorID := int64(7)
	ctx := tenancy.WithContext(context.Background(), &tenancy.Context{
		OrganizationID: 1,
		AssociationID:  &assocID,
		IsOrgStaff:     true,
		ActorID:        &actorID,
		ActorType:      tenancy.ActorTypeUser,
	})

	mock.ExpectBegin()
	expectAssert(mock)
	mock.ExpectQuery(regexp.QuoteMeta("FROM work_orders")).
		WithArgs("open", assocID, 50).
		WillReturnRows(orderRows(77, StatusOpen, nil))
	mock.ExpectCommit()

	orders, err := store.List(ctx, StatusOpen, 0, 0)
	require.NoError(t, err)
	require.Len(t, orders, 1)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Get_InvisibleIsNotFound(t *testing.T) {
	store, mock, _ := newTestStore(t)

	mock.ExpectBegin()
	expectAssert(mock)
	mock.ExpectQuery(regexp.QuoteMeta("FROM work_orders")).
		WithArgs(int64(99)).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := store.Get(staffCtx(1), 99)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}
