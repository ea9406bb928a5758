package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type pgQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores the service catalog in Postgres.
type PostgresRepository struct {
	pool pgQuerier
}

// NewPostgresRepository creates a catalog repository backed by a pgx pool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("catalog: pgx pool required")
	}
	return &PostgresRepository{pool: pool}
}

func newPostgresRepositoryWithQuerier(q pgQuerier) *PostgresRepository {
	return &PostgresRepository{pool: q}
}

const serviceColumns = `id, name, description, duration_minutes, is_prerequisite, created_at`

// List returns all services ordered by name.
func (r *PostgresRepository) List(ctx context.Context) ([]Service, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+serviceColumns+` FROM services ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("catalog: list services: %w", err)
	}
	defer rows.Close()

	var out []Service
	for rows.Next() {
		var svc Service
		if err := rows.Scan(&svc.ID, &svc.Name, &svc.Description, &svc.DurationMinutes, &svc.IsPrerequisite, &svc.CreatedAt); err != nil {
			return nil, fmt.Errorf("catalog: scan service: %w", err)
		}
		out = append(out, svc)
	}
	return out, rows.Err()
}

// GetByID returns one service by id.
func (r *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Service, error) {
	var svc Service
	err := r.pool.QueryRow(ctx, `SELECT `+serviceColumns+` FROM services WHERE id = $1`, id).
		Scan(&svc.ID, &svc.Name, &svc.Description, &svc.DurationMinutes, &svc.IsPrerequisite, &svc.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrServiceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: load service: %w", err)
	}
	return &svc, nil
}

// FindPrerequisite returns the flagged prerequisite service, or nil when no
// service carries the flag.
func (r *PostgresRepository) FindPrerequisite(ctx context.Context) (*Service, error) {
	var svc Service
	err := r.pool.QueryRow(ctx, `SELECT `+serviceColumns+` FROM services WHERE is_prerequisite LIMIT 1`).
		Scan(&svc.ID, &svc.Name, &svc.Description, &svc.DurationMinutes, &svc.IsPrerequisite, &svc.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: find prerequisite: %w", err)
	}
	return &svc, nil
}
