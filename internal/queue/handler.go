package queue

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/fairops/healthfair-platform/internal/access"
	"github.com/fairops/healthfair-platform/internal/http/middleware"
	"github.com/fairops/healthfair-platform/pkg/logging"
)

// Handler exposes the queue manager over HTTP.
type Handler struct {
	manager *Manager
	logger  *logging.Logger
}

// NewHandler creates a queue handler.
func NewHandler(manager *Manager, logger *logging.Logger) *Handler {
	if manager == nil {
		panic("queue: manager required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{manager: manager, logger: logger}
}

// AddToQueue handles POST /visits/{visitID}/services/{serviceID}.
func (h *Handler) AddToQueue(w http.ResponseWriter, r *http.Request) {
	visitID, err := uuid.Parse(chi.URLParam(r, "visitID"))
	if err != nil {
		http.Error(w, "invalid visit id", http.StatusBadRequest)
		return
	}
	serviceID, err := uuid.Parse(chi.URLParam(r, "serviceID"))
	if err != nil {
		http.Error(w, "invalid service id", http.StatusBadRequest)
		return
	}

	result, err := h.manager.AddToQueue(r.Context(), visitID, serviceID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	status := http.StatusCreated
	if result.Deferred {
		status = http.StatusAccepted
	}
	writeJSON(w, status, result)
}

type reconcileRequest struct {
	ServiceIDs []uuid.UUID `json:"service_ids"`
}

// ReconcileSelection handles PUT /visits/{visitID}/services.
func (h *Handler) ReconcileSelection(w http.ResponseWriter, r *http.Request) {
	visitID, err := uuid.Parse(chi.URLParam(r, "visitID"))
	if err != nil {
		http.Error(w, "invalid visit id", http.StatusBadRequest)
		return
	}

	var req reconcileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.manager.ReconcileSelection(r.Context(), visitID, req.ServiceIDs); err != nil {
		h.writeError(w, err)
		return
	}

	entries, err := h.manager.ListEntriesForVisit(r.Context(), visitID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

type transitionRequest struct {
	Status Status `json:"status"`
}

// Transition handles POST /entries/{entryID}/status.
func (h *Handler) Transition(w http.ResponseWriter, r *http.Request) {
	entryID, err := uuid.Parse(chi.URLParam(r, "entryID"))
	if err != nil {
		http.Error(w, "invalid entry id", http.StatusBadRequest)
		return
	}

	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	entry, err := h.manager.Transition(r.Context(), entryID, req.Status)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// DeleteEntry handles DELETE /entries/{entryID}. Admin only and limited to
// prerequisite-service entries, to correct erroneous check-ins.
func (h *Handler) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	staffID, ok := middleware.StaffIDFromContext(r.Context())
	if !ok {
		http.Error(w, "missing staff identity", http.StatusUnauthorized)
		return
	}
	entryID, err := uuid.Parse(chi.URLParam(r, "entryID"))
	if err != nil {
		http.Error(w, "invalid entry id", http.StatusBadRequest)
		return
	}

	if err := h.manager.DeleteEntry(r.Context(), staffID, entryID); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteAllForVisit handles DELETE /visits/{visitID}/entries. Admin only.
func (h *Handler) DeleteAllForVisit(w http.ResponseWriter, r *http.Request) {
	staffID, ok := middleware.StaffIDFromContext(r.Context())
	if !ok {
		http.Error(w, "missing staff identity", http.StatusUnauthorized)
		return
	}
	visitID, err := uuid.Parse(chi.URLParam(r, "visitID"))
	if err != nil {
		http.Error(w, "invalid visit id", http.StatusBadRequest)
		return
	}

	if err := h.manager.DeleteAllForVisit(r.Context(), staffID, visitID); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListEntries handles GET /events/{eventID}/entries?service_id=&status=.
func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	eventID, err := uuid.Parse(chi.URLParam(r, "eventID"))
	if err != nil {
		http.Error(w, "invalid event id", http.StatusBadRequest)
		return
	}

	var filter Filter
	if raw := r.URL.Query().Get("service_id"); raw != "" {
		serviceID, err := uuid.Parse(raw)
		if err != nil {
			http.Error(w, "invalid service_id", http.StatusBadRequest)
			return
		}
		filter.ServiceID = &serviceID
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := Status(raw)
		if !status.Valid() {
			http.Error(w, "invalid status", http.StatusBadRequest)
			return
		}
		filter.Status = &status
	}

	entries, err := h.manager.ListEntries(r.Context(), eventID, filter)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if entries == nil {
		entries = []Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrAlreadyQueued):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, ErrEntryNotFound), errors.Is(err, ErrVisitNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrInvalidStatus),
		errors.Is(err, ErrEntryNotDeletable):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, ErrForbidden):
		// Distinct from 404 so the UI can explain why.
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, access.ErrStaffNotFound):
		// An authenticated token whose subject has no role assignment.
		http.Error(w, "unknown staff identity", http.StatusForbidden)
	default:
		h.logger.Error("queue request failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
