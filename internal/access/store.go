package access

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// ErrStaffNotFound is returned when a staff identity has no role assignment.
var ErrStaffNotFound = errors.New("staff identity not found")

// RoleStore is the source of truth for staff role assignments and any
// per-staff extra viewable sections.
type RoleStore interface {
	RoleForStaff(ctx context.Context, staffID uuid.UUID) (Role, error)
	SetRole(ctx context.Context, staffID uuid.UUID, role Role) error
	GrantedSections(ctx context.Context, staffID uuid.UUID) ([]Section, error)
}

// SQLRoleStore reads role assignments from the staff_roles table.
type SQLRoleStore struct {
	db *sql.DB
}

// NewSQLRoleStore creates a role store over database/sql.
func NewSQLRoleStore(db *sql.DB) *SQLRoleStore {
	if db == nil {
		panic("access: db required")
	}
	return &SQLRoleStore{db: db}
}

// RoleForStaff returns the assigned role for a staff identity.
func (s *SQLRoleStore) RoleForStaff(ctx context.Context, staffID uuid.UUID) (Role, error) {
	var role Role
	err := s.db.QueryRowContext(ctx,
		`SELECT role FROM staff_roles WHERE staff_id = $1`, staffID).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrStaffNotFound
	}
	if err != nil {
		return "", fmt.Errorf("access: load role: %w", err)
	}
	return role, nil
}

// SetRole assigns a role to a staff identity.
func (s *SQLRoleStore) SetRole(ctx context.Context, staffID uuid.UUID, role Role) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO staff_roles (staff_id, role)
		VALUES ($1, $2)
		ON CONFLICT (staff_id) DO UPDATE SET role = EXCLUDED.role, updated_at = now()`,
		staffID, role)
	if err != nil {
		return fmt.Errorf("access: set role: %w", err)
	}
	return nil
}

// GrantedSections returns any per-staff extra viewable sections, stored as a
// text array alongside the role row.
func (s *SQLRoleStore) GrantedSections(ctx context.Context, staffID uuid.UUID) ([]Section, error) {
	var raw []string
	err := s.db.QueryRowContext(ctx,
		`SELECT granted_sections FROM staff_roles WHERE staff_id = $1`, staffID).
		Scan(pq.Array(&raw))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrStaffNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("access: load granted sections: %w", err)
	}
	out := make([]Section, 0, len(raw))
	for _, s := range raw {
		out = append(out, Section(s))
	}
	return out, nil
}

// InMemoryRoleStore is a RoleStore for tests and local runs.
type InMemoryRoleStore struct {
	mu      sync.RWMutex
	roles   map[uuid.UUID]Role
	granted map[uuid.UUID][]Section
}

// NewInMemoryRoleStore creates an empty in-memory role store.
func NewInMemoryRoleStore() *InMemoryRoleStore {
	return &InMemoryRoleStore{
		roles:   make(map[uuid.UUID]Role),
		granted: make(map[uuid.UUID][]Section),
	}
}

func (s *InMemoryRoleStore) RoleForStaff(ctx context.Context, staffID uuid.UUID) (Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	role, ok := s.roles[staffID]
	if !ok {
		return "", ErrStaffNotFound
	}
	return role, nil
}

func (s *InMemoryRoleStore) SetRole(ctx context.Context, staffID uuid.UUID, role Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roles[staffID] = role
	return nil
}

func (s *InMemoryRoleStore) GrantedSections(ctx context.Context, staffID uuid.UUID) ([]Section, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.roles[staffID]; !ok {
		return nil, ErrStaffNotFound
	}
	return append([]Section(nil), s.granted[staffID]...), nil
}

// GrantSection records an extra viewable section for a staff member.
func (s *InMemoryRoleStore) GrantSection(staffID uuid.UUID, section Section) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.granted[staffID] = append(s.granted[staffID], section)
}
