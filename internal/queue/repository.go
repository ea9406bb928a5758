package queue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository defines the storage interface for service queue entries and the
// per-visit requested-services set that backs deferred entry creation.
type Repository interface {
	FindEntry(ctx context.Context, visitID, serviceID uuid.UUID) (*Entry, error)
	GetEntry(ctx context.Context, entryID uuid.UUID) (*Entry, error)
	// InsertEntry persists a new entry. A (visit, service) collision returns
	// ErrAlreadyQueued; the unique constraint is the backstop for races
	// between stations.
	InsertEntry(ctx context.Context, e *Entry) error
	UpdateEntry(ctx context.Context, e *Entry) error
	DeleteEntry(ctx context.Context, entryID uuid.UUID) error
	DeleteEntriesForVisit(ctx context.Context, visitID uuid.UUID) (int64, error)
	ListEntriesForVisit(ctx context.Context, visitID uuid.UUID) ([]Entry, error)
	// ListEntries returns entries for an event ordered by queue_position when
	// set, then visit queue number, then creation time.
	ListEntries(ctx context.Context, eventID uuid.UUID, filter Filter) ([]Entry, error)

	RequestedServices(ctx context.Context, visitID uuid.UUID) ([]uuid.UUID, error)
	AddRequestedServices(ctx context.Context, visitID uuid.UUID, serviceIDs []uuid.UUID) error
	RemoveRequestedService(ctx context.Context, visitID, serviceID uuid.UUID) error
}

// InMemoryRepository implements Repository in memory for tests and local runs.
type InMemoryRepository struct {
	mu        sync.RWMutex
	entries   map[uuid.UUID]*Entry
	requested map[uuid.UUID]map[uuid.UUID]struct{}
	visits    map[uuid.UUID]visitRef
	seq       int
}

type visitRef struct {
	eventID     uuid.UUID
	queueNumber int
}

// NewInMemoryRepository creates an empty in-memory repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		entries:   make(map[uuid.UUID]*Entry),
		requested: make(map[uuid.UUID]map[uuid.UUID]struct{}),
		visits:    make(map[uuid.UUID]visitRef),
	}
}

// BindVisit records the event and queue number for a visit so reads can
// resolve ordering the way the SQL joins do.
func (r *InMemoryRepository) BindVisit(visitID, eventID uuid.UUID, queueNumber int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.visits[visitID] = visitRef{eventID: eventID, queueNumber: queueNumber}
}

func (r *InMemoryRepository) FindEntry(ctx context.Context, visitID, serviceID uuid.UUID) (*Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entries {
		if e.VisitID == visitID && e.ServiceID == serviceID {
			return r.resolve(e), nil
		}
	}
	return nil, nil
}

func (r *InMemoryRepository) GetEntry(ctx context.Context, entryID uuid.UUID) (*Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[entryID]
	if !ok {
		return nil, ErrEntryNotFound
	}
	return r.resolve(e), nil
}

func (r *InMemoryRepository) InsertEntry(ctx context.Context, e *Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.entries {
		if existing.VisitID == e.VisitID && existing.ServiceID == e.ServiceID {
			return ErrAlreadyQueued
		}
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		r.seq++
		e.CreatedAt = time.Now().UTC().Add(time.Duration(r.seq) * time.Microsecond)
	}
	cp := *e
	r.entries[e.ID] = &cp
	return nil
}

func (r *InMemoryRepository) UpdateEntry(ctx context.Context, e *Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[e.ID]; !ok {
		return ErrEntryNotFound
	}
	cp := *e
	r.entries[e.ID] = &cp
	return nil
}

func (r *InMemoryRepository) DeleteEntry(ctx context.Context, entryID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[entryID]; !ok {
		return ErrEntryNotFound
	}
	delete(r.entries, entryID)
	return nil
}

func (r *InMemoryRepository) DeleteEntriesForVisit(ctx context.Context, visitID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, e := range r.entries {
		if e.VisitID == visitID {
			delete(r.entries, id)
			n++
		}
	}
	return n, nil
}

func (r *InMemoryRepository) ListEntriesForVisit(ctx context.Context, visitID uuid.UUID) ([]Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Entry
	for _, e := range r.entries {
		if e.VisitID == visitID {
			out = append(out, *r.resolve(e))
		}
	}
	sortEntries(out)
	return out, nil
}

func (r *InMemoryRepository) ListEntries(ctx context.Context, eventID uuid.UUID, filter Filter) ([]Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Entry
	for _, e := range r.entries {
		ref, ok := r.visits[e.VisitID]
		if !ok || ref.eventID != eventID {
			continue
		}
		if filter.ServiceID != nil && e.ServiceID != *filter.ServiceID {
			continue
		}
		if filter.Status != nil && e.Status != *filter.Status {
			continue
		}
		out = append(out, *r.resolve(e))
	}
	sortEntries(out)
	return out, nil
}

func (r *InMemoryRepository) RequestedServices(ctx context.Context, visitID uuid.UUID) ([]uuid.UUID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.requested[visitID]
	out := make([]uuid.UUID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}

func (r *InMemoryRepository) AddRequestedServices(ctx context.Context, visitID uuid.UUID, serviceIDs []uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.requested[visitID]
	if !ok {
		set = make(map[uuid.UUID]struct{})
		r.requested[visitID] = set
	}
	for _, id := range serviceIDs {
		set[id] = struct{}{}
	}
	return nil
}

func (r *InMemoryRepository) RemoveRequestedService(ctx context.Context, visitID, serviceID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if set, ok := r.requested[visitID]; ok {
		delete(set, serviceID)
	}
	return nil
}

// resolve fills read-side visit fields on a copy of the stored entry.
func (r *InMemoryRepository) resolve(e *Entry) *Entry {
	cp := *e
	if ref, ok := r.visits[e.VisitID]; ok {
		cp.EventID = ref.eventID
		cp.QueueNumber = ref.queueNumber
	}
	return &cp
}

func sortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		switch {
		case a.QueuePosition != nil && b.QueuePosition != nil:
			if *a.QueuePosition != *b.QueuePosition {
				return *a.QueuePosition < *b.QueuePosition
			}
		case a.QueuePosition != nil:
			return true
		case b.QueuePosition != nil:
			return false
		}
		if a.QueueNumber != b.QueueNumber {
			return a.QueueNumber < b.QueueNumber
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
}
