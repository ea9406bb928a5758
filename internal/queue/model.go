package queue

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a service queue entry.
type Status string

const (
	StatusWaiting     Status = "waiting"
	StatusInProgress  Status = "in_progress"
	StatusCompleted   Status = "completed"
	StatusUnavailable Status = "unavailable"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusWaiting, StatusInProgress, StatusCompleted, StatusUnavailable:
		return true
	}
	return false
}

// Entry is a patient visit's position within one service's line.
type Entry struct {
	ID        uuid.UUID `json:"id"`
	VisitID   uuid.UUID `json:"visit_id"`
	ServiceID uuid.UUID `json:"service_id"`
	Status    Status    `json:"status"`

	// QueuePosition overrides display order within the service when set.
	QueuePosition *int       `json:"queue_position,omitempty"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	DoctorID      *uuid.UUID `json:"doctor_id,omitempty"`
	NurseID       *uuid.UUID `json:"nurse_id,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`

	// Read-side fields resolved from the owning visit.
	EventID     uuid.UUID `json:"event_id"`
	QueueNumber int       `json:"queue_number"`
}

// Filter narrows ListEntries results.
type Filter struct {
	ServiceID *uuid.UUID
	Status    *Status
}

// Change describes a queue mutation pushed to live boards.
type Change struct {
	Kind    string    `json:"kind"` // visit_registered, entry_created, entry_updated, entry_deleted
	EventID uuid.UUID `json:"event_id"`
	Entry   *Entry    `json:"entry,omitempty"`
	VisitID uuid.UUID `json:"visit_id"`
}

const (
	ChangeVisitRegistered = "visit_registered"
	ChangeEntryCreated    = "entry_created"
	ChangeEntryUpdated    = "entry_updated"
	ChangeEntryDeleted    = "entry_deleted"
)
