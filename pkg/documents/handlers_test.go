package documents

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/camberhq/camber/pkg/tenancy"
)

func newTestHandlers(t *testing.T) (*mux.Router, sqlmock.Sqlmock) {
	store, mock, _ := newTestStore(t)
	router := mux.NewRouter()
	NewHandlers(store).RegisterRoutes(router)
	return router, mock
}

func TestHandlers_Get_DeniedLooksLikeMissing(t *testing.T) {
	router, mock := newTestHandlers(t)

	mock.ExpectBegin()
	expectAssert(mock)
	mock.ExpectQuery(regexp.QuoteMeta("FROM documents")).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	req := httptest.NewRequest(http.MethodGet, "/documents/99", nil)
	req = req.WithContext(staffCtx(1))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"not found"}`, rec.Body.String())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandlers_Create(t *testing.T) {
	router, mock := newTestHandlers(t)
	now := time.Now()

	t.Run("creates document", func(t *testing.T) {
		mock.ExpectBegin()
		expectAssert(mock)
		mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO documents")).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(1, now, now))
		mock.ExpectCommit()

		req := httptest.NewRequest(http.MethodPost, "/documents",
			strings.NewReader(`{"title":"bylaws","category":"bylaws"}`))
		req = req.WithContext(staffCtx(1))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusCreated, rec.Code)
	})

	t.Run("missing title", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/documents",
			strings.NewReader(`{"category":"bylaws"}`))
		req = req.WithContext(staffCtx(1))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown category", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/documents",
			strings.NewReader(`{"title":"x","category":"memes"}`))
		req = req.WithContext(staffCtx(1))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("no tenant context", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/documents",
			strings.NewReader(`{"title":"x","category":"other"}`))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandlers_Create_CrossTenantAssociation(t *testing.T) {
	router, mock := newTestHandlers(t)

	req := httptest.NewRequest(http.MethodPost, "/documents",
		strings.NewReader(`{"title":"x","category":"notice","association_id":20}`))
	req = req.WithContext(memberCtx(1, 10, 42))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"invalid association"}`, rec.Body.String())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandlers_List_StaffFocusScopeNarrows(t *testing.T) {
	router, mock := newTestHandlers(t)

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
	mock.ExpectQuery(regexp.QuoteMeta("FROM documents")).
		WithArgs(assocID, 50).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "organization_id", "association_id", "title", "category",
			"storage_path", "created_by", "created_at", "updated_at",
		}))
	mock.ExpectCommit()

	req := httptest.NewRequest(http.MethodGet, "/documents", nil)
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandlers_List_EmptyIsAnEmptyList(t *testing.T) {
	router, mock := newTestHandlers(t)

	mock.ExpectBegin()
	expectAssert(mock)
	mock.ExpectQuery(regexp.QuoteMeta("FROM documents")).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "organization_id", "association_id", "title", "category",
			"storage_path", "created_by", "created_at", "updated_at",
		}))
	mock.ExpectCommit()

	req := httptest.NewRequest(http.MethodGet, "/documents", nil)
	req = req.WithContext(staffCtx(1))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"documents":[],"count":0}`, rec.Body.String())

	assert.NoError(t, mock.ExpectationsWereMet())
}
