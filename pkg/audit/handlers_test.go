package audit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/camberhq/camber/pkg/tenancy"
)

type captureRecorder struct {
	NoopRecorder
	lastFilter ListFilter
	events     []*Event
}

func (c *captureRecorder) List(ctx context.Context, filter ListFilter) ([]*Event, error) {
	c.lastFilter = filter
	return c.events, nil
}

func listRequest(tc *tenancy.Context, query string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/audit/events"+query, nil)
	if tc != nil {
		req = req.WithContext(tenancy.WithContext(req.Context(), tc))
	}
	return req
}

func serveList(recorder Recorder, req *http.Request) *httptest.ResponseRecorder {
	router := mux.NewRouter()
	NewHandlers(recorder).RegisterRoutes(router)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandlers_ListEvents_RequiresContext(t *testing.T) {
	rec := serveList(&captureRecorder{}, listRequest(nil, ""))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandlers_ListEvents_StaffSeesWholeOrg(t *testing.T) {
	recorder := &captureRecorder{events: []*Event{{ID: 1, OrganizationID: 1, Action: ActionContextSwitch, ActorType: ActorTypeStaff}}}

	rec := serveList(recorder, listRequest(tenancy.SystemContext(1), ""))
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, int64(1), recorder.lastFilter.OrganizationID)
	assert.Nil(t, recorder.lastFilter.AssociationID)

	var body struct {
		Events []Event `json:"events"`
		Count  int     `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
}

func TestHandlers_ListEvents_StaffFocusScopeNarrows(t *testing.T) {
	recorder := &captureRecorder{}

	assocID := int64(10)
	actorID := int64(7)
	tc := &tenancy.Context{
		OrganizationID: 1,
		AssociationID:  &assocID,
		IsOrgStaff:     true,
		ActorID:        &actorID,
		ActorType:      tenancy.ActorTypeUser,
	}

	rec := serveList(recorder, listRequest(tc, ""))
	require.Equal(t, http.StatusOK, rec.Code)

	require.NotNil(t, recorder.lastFilter.AssociationID)
	assert.Equal(t, assocID, *recorder.lastFilter.AssociationID)
}

func TestHandlers_ListEvents_MemberNarrowedToAssociation(t *testing.T) {
	recorder := &captureRecorder{}

	assocID := int64(10)
	actorID := int64(42)
	tc := &tenancy.Context{
		OrganizationID: 1,
		AssociationID:  &assocID,
		ActorID:        &actorID,
		ActorType:      tenancy.ActorTypeUser,
	}

	rec := serveList(recorder, listRequest(tc, ""))
	require.Equal(t, http.StatusOK, rec.Code)

	require.NotNil(t, recorder.lastFilter.AssociationID)
	assert.Equal(t, assocID, *recorder.lastFilter.AssociationID)
}

func TestHandlers_ListEvents_QueryFilters(t *testing.T) {
	recorder := &captureRecorder{}

	rec := serveList(recorder, listRequest(tenancy.SystemContext(1),
		"?action=data.document.update&resource_type=document&resource_id=55&limit=10&offset=20"))
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "data.document.update", recorder.lastFilter.Action)
	assert.Equal(t, "document", recorder.lastFilter.ResourceType)
	assert.Equal(t, "55", recorder.lastFilter.ResourceID)
	assert.Equal(t, 10, recorder.lastFilter.Limit)
	assert.Equal(t, 20, recorder.lastFilter.Offset)
}

func TestHandlers_ListEvents_RejectsBadTimestamps(t *testing.T) {
	rec := serveList(&captureRecorder{}, listRequest(tenancy.SystemContext(1), "?since=yesterday"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
