package workorders

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/camberhq/camber/pkg/tenancy"
)

// Handlers serves the work order API
type Handlers struct {
	store *Store
}

// NewHandlers creates work order HTTP handlers
func NewHandlers(store *Store) *Handlers {
	return &Handlers{store: store}
}

// RegisterRoutes registers the work order routes. The router must already sit
// behind the tenant context pipeline.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/work-orders", h.Create).Methods(http.MethodPost)
	router.HandleFunc("/work-orders", h.List).Methods(http.MethodGet)
	router.HandleFunc("/work-orders/{id:[0-9]+}", h.Get).Methods(http.MethodGet)
	router.HandleFunc("/work-orders/{id:[0-9]+}/assign", h.Assign).Methods(http.MethodPost)
	router.HandleFunc("/work-orders/{id:[0-9]+}/start", h.Start).Methods(http.MethodPost)
	router.HandleFunc("/work-orders/{id:[0-9]+}/complete", h.Complete).Methods(http.MethodPost)
	router.HandleFunc("/work-orders/{id:[0-9]+}/cancel", h.Cancel).Methods(http.MethodPost)
}

type createRequest struct {
	Title         string `json:"title"`
	Description   string `json:"description"`
	AssociationID int64  `json:"association_id"`
}

// Create opens a new work order
func (h *Handlers) Create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}

	order := &WorkOrder{
		Title:         req.Title,
		Description:   req.Description,
		AssociationID: req.AssociationID,
	}
	if err := h.store.Create(r.Context(), order); err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, order)
}

// Get returns one work order
func (h *Handlers) Get(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)

	order, err := h.store.Get(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// List returns visible work orders
func (h *Handlers) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	status := Status(query.Get("status"))
	limit, _ := strconv.Atoi(query.Get("limit"))
	offset, _ := strconv.Atoi(query.Get("offset"))

	orders, err := h.store.List(r.Context(), status, limit, offset)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if orders == nil {
		orders = []WorkOrder{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"work_orders": orders,
		"count":       len(orders),
	})
}

type assignRequest struct {
	ProviderID int64 `json:"provider_id"`
}

// Assign hands the work order to a provider
func (h *Handlers) Assign(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)

	var req assignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ProviderID <= 0 {
		writeError(w, http.StatusBadRequest, "provider_id is required")
		return
	}

	order, err := h.store.Assign(r.Context(), id, req.ProviderID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// Start marks the work order in progress
func (h *Handlers) Start(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.store.Start)
}

// Complete closes the work order
func (h *Handlers) Complete(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.store.Complete)
}

// Cancel cancels the work order
func (h *Handlers) Cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.store.Cancel)
}

func (h *Handlers) transition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id int64) (*WorkOrder, error)) {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)

	order, err := fn(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// writeStoreError maps store errors to HTTP. Denials and absence both map to
// 404 so callers cannot distinguish foreign work orders from missing ones.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound) || tenancy.IsDenied(err):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, ErrClosed):
		writeError(w, http.StatusConflict, "work order is closed")
	case tenancy.IsCrossTenantWrite(err):
		writeError(w, http.StatusBadRequest, "invalid association")
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
