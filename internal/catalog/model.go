package catalog

import (
	"time"

	"github.com/google/uuid"
)

// Service is a catalog entry for one station at a health fair.
type Service struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	Description     string    `json:"description"`
	DurationMinutes int       `json:"duration_minutes"`
	// IsPrerequisite marks the one service a patient must complete before
	// entries for other services open up.
	IsPrerequisite bool      `json:"is_prerequisite"`
	CreatedAt      time.Time `json:"created_at"`
}
