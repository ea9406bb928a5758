package registration

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fairops/healthfair-platform/internal/queue"
)

// Repository defines the storage interface for patients and visits.
type Repository interface {
	// FindPatientsByName matches first+last name case-insensitively after
	// trimming. This is a known heuristic, not identity resolution.
	FindPatientsByName(ctx context.Context, first, last string) ([]Patient, error)
	GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error)
	// InsertPatient persists a new patient, assigning ID and PatientNumber.
	InsertPatient(ctx context.Context, p *Patient) error
	UpdatePatient(ctx context.Context, p *Patient) error

	FindVisit(ctx context.Context, patientID, eventID uuid.UUID) (*Visit, error)
	// CreateVisit atomically assigns the next queue number for the event and
	// persists the visit, its initial queue entries and its requested-service
	// set. A failure leaves nothing behind.
	CreateVisit(ctx context.Context, v *Visit, entries []queue.Entry, requested []uuid.UUID) error
}

// InMemoryRepository implements Repository over an in-memory queue repository
// so registration and queue state stay consistent in tests and local runs.
type InMemoryRepository struct {
	mu       sync.Mutex
	patients map[uuid.UUID]*Patient
	visits   map[uuid.UUID]*Visit
	counters map[uuid.UUID]int
	queueRep *queue.InMemoryRepository
	seq      int
}

// NewInMemoryRepository creates an in-memory repository sharing entry state
// with the given queue repository.
func NewInMemoryRepository(queueRepo *queue.InMemoryRepository) *InMemoryRepository {
	if queueRepo == nil {
		panic("registration: queue repository required")
	}
	return &InMemoryRepository{
		patients: make(map[uuid.UUID]*Patient),
		visits:   make(map[uuid.UUID]*Visit),
		counters: make(map[uuid.UUID]int),
		queueRep: queueRepo,
	}
}

func (r *InMemoryRepository) FindPatientsByName(ctx context.Context, first, last string) ([]Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	first = strings.ToLower(strings.TrimSpace(first))
	last = strings.ToLower(strings.TrimSpace(last))
	var out []Patient
	for _, p := range r.patients {
		if strings.ToLower(strings.TrimSpace(p.FirstName)) == first &&
			strings.ToLower(strings.TrimSpace(p.LastName)) == last {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *InMemoryRepository) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *InMemoryRepository) InsertPatient(ctx context.Context, p *Patient) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	r.seq++
	p.PatientNumber = fmt.Sprintf("HF-%06d", r.seq)
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	cp := *p
	r.patients[p.ID] = &cp
	return nil
}

func (r *InMemoryRepository) UpdatePatient(ctx context.Context, p *Patient) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.patients[p.ID]
	if !ok {
		return ErrPatientNotFound
	}
	p.PatientNumber = existing.PatientNumber
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = time.Now().UTC()
	cp := *p
	r.patients[p.ID] = &cp
	return nil
}

func (r *InMemoryRepository) FindVisit(ctx context.Context, patientID, eventID uuid.UUID) (*Visit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, v := range r.visits {
		if v.PatientID == patientID && v.EventID == eventID {
			cp := *v
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *InMemoryRepository) CreateVisit(ctx context.Context, v *Visit, entries []queue.Entry, requested []uuid.UUID) error {
	r.mu.Lock()
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	r.counters[v.EventID]++
	v.QueueNumber = r.counters[v.EventID]
	if v.Status == "" {
		v.Status = VisitStatusCheckedIn
	}
	v.CreatedAt = time.Now().UTC()
	cp := *v
	r.visits[v.ID] = &cp
	r.mu.Unlock()

	r.queueRep.BindVisit(v.ID, v.EventID, v.QueueNumber)
	for i := range entries {
		entries[i].VisitID = v.ID
		if err := r.queueRep.InsertEntry(ctx, &entries[i]); err != nil {
			return err
		}
	}
	return r.queueRep.AddRequestedServices(ctx, v.ID, requested)
}
