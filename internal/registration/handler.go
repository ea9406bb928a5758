package registration

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/fairops/healthfair-platform/internal/vitals"
	"github.com/fairops/healthfair-platform/pkg/logging"
)

// derivedVitals carries measures recomputed from the stored numbers on every
// read.
type derivedVitals struct {
	BMI         float64            `json:"bmi"`
	BMICategory vitals.BMICategory `json:"bmi_category"`
	BPCategory  vitals.BPCategory  `json:"bp_category,omitempty"`
}

type patientResponse struct {
	*Patient
	Vitals *derivedVitals `json:"vitals,omitempty"`
}

func withVitals(p *Patient) patientResponse {
	resp := patientResponse{Patient: p}
	var d derivedVitals
	var any bool
	if p.HeightCm != nil && p.WeightKg != nil {
		d.BMI = vitals.BMI(*p.WeightKg, *p.HeightCm)
		d.BMICategory = vitals.CategorizeBMI(d.BMI)
		any = true
	}
	if p.SystolicBP != nil && p.DiastolicBP != nil {
		d.BPCategory = vitals.CategorizeBP(*p.SystolicBP, *p.DiastolicBP)
		any = true
	}
	if any {
		resp.Vitals = &d
	}
	return resp
}

// Handler exposes the registrar over HTTP. It does no business logic.
type Handler struct {
	registrar *Registrar
	logger    *logging.Logger
}

// NewHandler creates a registration handler.
func NewHandler(registrar *Registrar, logger *logging.Logger) *Handler {
	if registrar == nil {
		panic("registration: registrar required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{registrar: registrar, logger: logger}
}

// Register handles POST /events/{eventID}/registrations.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	eventID, err := uuid.Parse(chi.URLParam(r, "eventID"))
	if err != nil {
		http.Error(w, "invalid event id", http.StatusBadRequest)
		return
	}

	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	req.EventID = eventID

	result, err := h.registrar.Register(r.Context(), &req)
	if err != nil {
		h.writeError(w, err)
		return
	}

	status := http.StatusCreated
	if result.Outcome == OutcomeDuplicateFound {
		// A duplicate match is a decision point, not a failure.
		status = http.StatusOK
	}
	writeJSON(w, status, result)
}

// GetPatient handles GET /patients/{patientID}.
func (h *Handler) GetPatient(w http.ResponseWriter, r *http.Request) {
	patientID, err := uuid.Parse(chi.URLParam(r, "patientID"))
	if err != nil {
		http.Error(w, "invalid patient id", http.StatusBadRequest)
		return
	}
	patient, err := h.registrar.GetPatient(r.Context(), patientID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, withVitals(patient))
}

// UpdatePatient handles PATCH /patients/{patientID}.
func (h *Handler) UpdatePatient(w http.ResponseWriter, r *http.Request) {
	patientID, err := uuid.Parse(chi.URLParam(r, "patientID"))
	if err != nil {
		http.Error(w, "invalid patient id", http.StatusBadRequest)
		return
	}

	var patient Patient
	if err := json.NewDecoder(r.Body).Decode(&patient); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	patient.ID = patientID

	if err := h.registrar.UpdatePatient(r.Context(), &patient); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, withVitals(&patient))
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrFirstNameRequired),
		errors.Is(err, ErrLastNameRequired),
		errors.Is(err, ErrDateOfBirthInFuture):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrPatientNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrAlreadyRegistered):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		h.logger.Error("registration request failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
