package access

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/fairops/healthfair-platform/internal/http/middleware"
	"github.com/fairops/healthfair-platform/pkg/logging"
)

// Handler exposes role resolution and role assignment over HTTP.
type Handler struct {
	resolver *Resolver
	store    RoleStore
	logger   *logging.Logger
}

// NewHandler creates an access handler.
func NewHandler(resolver *Resolver, store RoleStore, logger *logging.Logger) *Handler {
	if resolver == nil {
		panic("access: resolver required")
	}
	if store == nil {
		panic("access: role store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{resolver: resolver, store: store, logger: logger}
}

type sectionsResponse struct {
	StaffID         uuid.UUID              `json:"staff_id"`
	Role            Role                   `json:"role"`
	Capabilities    map[Section]Capability `json:"capabilities"`
	GrantedSections []Section              `json:"granted_sections,omitempty"`
}

// Sections handles GET /access/{staffID}/sections: the per-section capability
// table for the staff member's resolved role, widened by any individually
// granted sections. Grants add view access only; edit stays with the role.
func (h *Handler) Sections(w http.ResponseWriter, r *http.Request) {
	staffID, err := uuid.Parse(chi.URLParam(r, "staffID"))
	if err != nil {
		http.Error(w, "invalid staff id", http.StatusBadRequest)
		return
	}

	role, err := h.resolver.ResolveRole(r.Context(), staffID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	caps := Capabilities(role)
	// The role may have come from the cache; a missing row only means no
	// extra grants.
	granted, err := h.store.GrantedSections(r.Context(), staffID)
	if err != nil && !errors.Is(err, ErrStaffNotFound) {
		h.writeError(w, err)
		return
	}
	for _, section := range granted {
		c := caps[section]
		c.CanView = true
		caps[section] = c
	}
	writeJSON(w, http.StatusOK, sectionsResponse{
		StaffID:         staffID,
		Role:            role,
		Capabilities:    caps,
		GrantedSections: granted,
	})
}

type setRoleRequest struct {
	Role Role `json:"role"`
}

// SetRole handles POST /staff/{staffID}/role. Admin only. The cache entry is
// invalidated synchronously before the response, so the change is visible to
// the next lookup.
func (h *Handler) SetRole(w http.ResponseWriter, r *http.Request) {
	callerID, ok := middleware.StaffIDFromContext(r.Context())
	if !ok {
		http.Error(w, "missing staff identity", http.StatusUnauthorized)
		return
	}
	callerRole, err := h.resolver.ResolveRole(r.Context(), callerID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if callerRole != RoleAdmin {
		http.Error(w, "role changes require admin", http.StatusForbidden)
		return
	}

	staffID, err := uuid.Parse(chi.URLParam(r, "staffID"))
	if err != nil {
		http.Error(w, "invalid staff id", http.StatusBadRequest)
		return
	}
	var req setRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if !req.Role.Valid() {
		http.Error(w, "unknown role", http.StatusBadRequest)
		return
	}

	if err := h.store.SetRole(r.Context(), staffID, req.Role); err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.resolver.Invalidate(r.Context(), staffID); err != nil {
		h.writeError(w, err)
		return
	}

	h.logger.Info("role changed", "staff_id", staffID, "role", req.Role, "changed_by", callerID)
	writeJSON(w, http.StatusOK, map[string]any{"staff_id": staffID, "role": req.Role})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrStaffNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	h.logger.Error("access request failed", "error", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
