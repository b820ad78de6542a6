package documents

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/camberhq/camber/pkg/tenancy"
)

// Handlers serves the documents API
type Handlers struct {
	store *Store
}

// NewHandlers creates document HTTP handlers
func NewHandlers(store *Store) *Handlers {
	return &Handlers{store: store}
}

// RegisterRoutes registers the document routes. The router must already sit
// behind the tenant context pipeline.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/documents", h.Create).Methods(http.MethodPost)
	router.HandleFunc("/documents", h.List).Methods(http.MethodGet)
	router.HandleFunc("/documents/{id:[0-9]+}", h.Get).Methods(http.MethodGet)
	router.HandleFunc("/documents/{id:[0-9]+}", h.Update).Methods(http.MethodPut)
	router.HandleFunc("/documents/{id:[0-9]+}", h.Delete).Methods(http.MethodDelete)
}

type documentRequest struct {
	Title         string   `json:"title"`
	Category      Category `json:"category"`
	StoragePath   string   `json:"storage_path"`
	AssociationID *int64   `json:"association_id"`
}

// Create files a new document
func (h *Handlers) Create(w http.ResponseWriter, r *http.Request) {
	var req documentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}

	doc := &Document{
		Title:         req.Title,
		Category:      req.Category,
		StoragePath:   req.StoragePath,
		AssociationID: req.AssociationID,
	}
	if err := h.store.Create(r.Context(), doc); err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, doc)
}

// Get returns one document
func (h *Handlers) Get(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)

	doc, err := h.store.Get(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// List returns visible documents. An asserted association narrows the
// listing for staff and members alike; an explicit association_id parameter
// overrides it.
func (h *Handlers) List(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{}
	if tc, err := tenancy.FromContext(r.Context()); err == nil {
		filter.AssociationID = tc.AssociationID
	}
	query := r.URL.Query()

	if category := query.Get("category"); category != "" {
		filter.Category = Category(category)
	}
	if raw := query.Get("association_id"); raw != "" {
		assocID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid association id")
			return
		}
		filter.AssociationID = &assocID
	}
	if raw := query.Get("limit"); raw != "" {
		filter.Limit, _ = strconv.Atoi(raw)
	}
	if raw := query.Get("offset"); raw != "" {
		filter.Offset, _ = strconv.Atoi(raw)
	}

	docs, err := h.store.List(r.Context(), filter)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if docs == nil {
		docs = []Document{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"documents": docs,
		"count":     len(docs),
	})
}

// Update changes a document
func (h *Handlers) Update(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)

	var req documentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	doc, err := h.store.Update(r.Context(), id, req.Title, req.Category, req.StoragePath)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// Delete removes a document
func (h *Handlers) Delete(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)

	if err := h.store.Delete(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeStoreError maps store errors to HTTP. Denials and absence both map to
// 404; cross-tenant writes are rejected as bad requests without naming what
// they collided with.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound) || tenancy.IsDenied(err):
		writeError(w, http.StatusNotFound, "not found")
	case tenancy.IsCrossTenantWrite(err):
		writeError(w, http.StatusBadRequest, "invalid association")
	case errors.Is(err, ErrInvalidCategory):
		writeError(w, http.StatusBadRequest, "invalid category")
	case tenancy.IsNoContext(err):
		writeError(w, http.StatusForbidden, "tenant context required")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
