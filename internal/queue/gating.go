package queue

import "github.com/google/uuid"

// PlanInitialEntries decides which entries a brand-new visit gets. The
// prerequisite service is always queued immediately; every other selected
// service is deferred until the prerequisite completes. With no prerequisite
// in the catalog, everything queues immediately.
//
// Returns the entries to create (all waiting) and the full requested-service
// set to record for the visit, prerequisite included.
func PlanInitialEntries(visitID uuid.UUID, selected []uuid.UUID, prereqID *uuid.UUID) ([]Entry, []uuid.UUID) {
	requested := make([]uuid.UUID, 0, len(selected)+1)
	seen := make(map[uuid.UUID]struct{}, len(selected)+1)
	add := func(id uuid.UUID) {
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		requested = append(requested, id)
	}
	if prereqID != nil {
		add(*prereqID)
	}
	for _, id := range selected {
		add(id)
	}

	var entries []Entry
	for _, id := range requested {
		if prereqID != nil && id != *prereqID {
			continue
		}
		entries = append(entries, Entry{
			VisitID:   visitID,
			ServiceID: id,
			Status:    StatusWaiting,
		})
	}
	return entries, requested
}
