package registration

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Patient is the long-lived identity record for one individual.
type Patient struct {
	ID            uuid.UUID `json:"id"`
	PatientNumber string    `json:"patient_number"`
	FirstName     string    `json:"first_name"`
	LastName      string    `json:"last_name"`
	Phone         string    `json:"phone"`
	Email         string    `json:"email"`
	Address       string    `json:"address"`
	Gender        string    `json:"gender"`

	DateOfBirth *time.Time `json:"date_of_birth,omitempty"`

	// Free-text medical flags.
	Allergies   string `json:"allergies"`
	Conditions  string `json:"conditions"`
	Medications string `json:"medications"`

	// Structured measurements; derived values (BMI, BP category) are
	// recomputed on read, never stored.
	HeightCm    *float64 `json:"height_cm,omitempty"`
	WeightKg    *float64 `json:"weight_kg,omitempty"`
	SystolicBP  *int     `json:"systolic_bp,omitempty"`
	DiastolicBP *int     `json:"diastolic_bp,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// VisitStatusCheckedIn is the status a visit is created with. Visits are
// effectively terminal at event close; the engine never deletes them.
const VisitStatusCheckedIn = "checked_in"

// Visit is one patient's check-in at one event.
type Visit struct {
	ID          uuid.UUID `json:"id"`
	PatientID   uuid.UUID `json:"patient_id"`
	EventID     uuid.UUID `json:"event_id"`
	QueueNumber int       `json:"queue_number"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

// RegisterRequest carries everything needed to check a patient in.
type RegisterRequest struct {
	EventID uuid.UUID `json:"-"`

	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	Phone       string     `json:"phone"`
	Email       string     `json:"email"`
	Address     string     `json:"address"`
	Gender      string     `json:"gender"`
	DateOfBirth *time.Time `json:"date_of_birth,omitempty"`
	Allergies   string     `json:"allergies"`
	Conditions  string     `json:"conditions"`
	Medications string     `json:"medications"`

	ServiceIDs []uuid.UUID `json:"service_ids"`

	// ForceCreate skips duplicate detection and creates a new patient even
	// when a same-name record exists.
	ForceCreate bool `json:"force_create"`
	// ExistingPatientID registers the named patient instead of creating one;
	// it is how a caller accepts a duplicate candidate.
	ExistingPatientID *uuid.UUID `json:"existing_patient_id,omitempty"`
}

// Validate checks the mandatory identity fields.
func (r *RegisterRequest) Validate() error {
	if strings.TrimSpace(r.FirstName) == "" {
		return ErrFirstNameRequired
	}
	if strings.TrimSpace(r.LastName) == "" {
		return ErrLastNameRequired
	}
	if r.DateOfBirth != nil && r.DateOfBirth.After(time.Now()) {
		return ErrDateOfBirthInFuture
	}
	return nil
}

// OutcomeRegistered and OutcomeDuplicateFound label RegisterResult. Duplicate
// detection is a decision point, not a failure: the caller chooses between
// updating the candidate and force-creating.
const (
	OutcomeRegistered     = "registered"
	OutcomeDuplicateFound = "duplicate_found"
)

// RegisterResult reports what Register did.
type RegisterResult struct {
	Outcome     string    `json:"outcome"`
	Visit       *Visit    `json:"visit,omitempty"`
	Patient     *Patient  `json:"patient,omitempty"`
	Duplicates  []Patient `json:"duplicates,omitempty"`
}
