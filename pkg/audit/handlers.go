package audit

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/camberhq/camber/pkg/tenancy"
)

// Handlers serves the audit trail API
type Handlers struct {
	recorder Recorder
}

// NewHandlers creates audit HTTP handlers
func NewHandlers(recorder Recorder) *Handlers {
	return &Handlers{recorder: recorder}
}

// RegisterRoutes registers the audit routes. The router must already sit
// behind the tenant context pipeline.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/audit/events", h.ListEvents).Methods(http.MethodGet)
}

// ListEvents returns audit events for the caller's organization, newest
// first. An asserted association narrows the listing for staff and members
// alike; staff without one see the whole organization.
func (h *Handlers) ListEvents(w http.ResponseWriter, r *http.Request) {
	tc, err := tenancy.FromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusForbidden, "tenant context required")
		return
	}

	filter := ListFilter{
		OrganizationID: tc.OrganizationID,
		AssociationID:  tc.AssociationID,
	}

	query := r.URL.Query()
	if action := query.Get("action"); action != "" {
		filter.Action = action
	}
	if resourceType := query.Get("resource_type"); resourceType != "" {
		filter.ResourceType = resourceType
	}
	if resourceID := query.Get("resource_id"); resourceID != "" {
		filter.ResourceID = resourceID
	}
	if actorType := query.Get("actor_type"); actorType != "" {
		at := ActorType(actorType)
		filter.ActorType = &at
	}
	if since := query.Get("since"); since != "" {
		ts, err := time.Parse(time.RFC3339, since)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid since timestamp")
			return
		}
		filter.Since = &ts
	}
	if until := query.Get("until"); until != "" {
		ts, err := time.Parse(time.RFC3339, until)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid until timestamp")
			return
		}
		filter.Until = &ts
	}
	if limit := query.Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = n
	}
	if offset := query.Get("offset"); offset != "" {
		n, err := strconv.Atoi(offset)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid offset")
			return
		}
		filter.Offset = n
	}

	events, err := h.recorder.List(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list audit events")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"events": events,
		"count":  len(events),
	})
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
