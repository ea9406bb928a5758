package catalog

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

// ErrServiceNotFound is returned when a service id is unknown.
var ErrServiceNotFound = errors.New("service not found")

// Repository defines the interface for service catalog reads.
type Repository interface {
	List(ctx context.Context) ([]Service, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Service, error)
	// FindPrerequisite returns the service flagged as the prerequisite,
	// or nil if none is flagged.
	FindPrerequisite(ctx context.Context) (*Service, error)
}

// InMemoryRepository is an in-memory Repository used by tests and local runs.
type InMemoryRepository struct {
	mu       sync.RWMutex
	services map[uuid.UUID]*Service
}

// NewInMemoryRepository creates an empty in-memory catalog.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{services: make(map[uuid.UUID]*Service)}
}

// Put inserts or replaces a service.
func (r *InMemoryRepository) Put(svc Service) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := svc
	r.services[svc.ID] = &cp
}

// List returns all services.
func (r *InMemoryRepository) List(ctx context.Context) ([]Service, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Service, 0, len(r.services))
	for _, svc := range r.services {
		out = append(out, *svc)
	}
	return out, nil
}

// GetByID returns one service by id.
func (r *InMemoryRepository) GetByID(ctx context.Context, id uuid.UUID) (*Service, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	svc, ok := r.services[id]
	if !ok {
		return nil, ErrServiceNotFound
	}
	cp := *svc
	return &cp, nil
}

// FindPrerequisite returns the flagged prerequisite service, if any.
func (r *InMemoryRepository) FindPrerequisite(ctx context.Context) (*Service, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, svc := range r.services {
		if svc.IsPrerequisite {
			cp := *svc
			return &cp, nil
		}
	}
	return nil, nil
}
