package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores queue entries in Postgres.
type PostgresRepository struct {
	pool pgQuerier
}

// NewPostgresRepository creates a repository backed by a pgx pool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("queue: pgx pool required")
	}
	return &PostgresRepository{pool: pool}
}

func newPostgresRepositoryWithQuerier(q pgQuerier) *PostgresRepository {
	return &PostgresRepository{pool: q}
}

const entrySelect = `
	SELECT qe.id, qe.visit_id, qe.service_id, qe.status, qe.queue_position,
	       qe.started_at, qe.completed_at, qe.doctor_id, qe.nurse_id, qe.created_at,
	       v.event_id, v.queue_number
	FROM service_queue_entries qe
	JOIN patient_visits v ON v.id = qe.visit_id`

func scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	err := row.Scan(&e.ID, &e.VisitID, &e.ServiceID, &e.Status, &e.QueuePosition,
		&e.StartedAt, &e.CompletedAt, &e.DoctorID, &e.NurseID, &e.CreatedAt,
		&e.EventID, &e.QueueNumber)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// FindEntry returns the entry for (visit, service), or nil when none exists.
func (r *PostgresRepository) FindEntry(ctx context.Context, visitID, serviceID uuid.UUID) (*Entry, error) {
	e, err := scanEntry(r.pool.QueryRow(ctx, entrySelect+` WHERE qe.visit_id = $1 AND qe.service_id = $2`, visitID, serviceID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("queue: find entry: %w", err)
	}
	return e, nil
}

// GetEntry returns one entry by id.
func (r *PostgresRepository) GetEntry(ctx context.Context, entryID uuid.UUID) (*Entry, error) {
	e, err := scanEntry(r.pool.QueryRow(ctx, entrySelect+` WHERE qe.id = $1`, entryID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("queue: load entry: %w", err)
	}
	return e, nil
}

// InsertEntry persists a new entry. The unique constraint on
// (visit_id, service_id) backstops the existence check across stations.
func (r *PostgresRepository) InsertEntry(ctx context.Context, e *Entry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO service_queue_entries (id, visit_id, service_id, status, queue_position, doctor_id, nurse_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`,
		e.ID, e.VisitID, e.ServiceID, e.Status, e.QueuePosition, e.DoctorID, e.NurseID).
		Scan(&e.CreatedAt)
	if isUniqueViolation(err) {
		return ErrAlreadyQueued
	}
	if err != nil {
		return fmt.Errorf("queue: insert entry: %w", err)
	}
	return nil
}

// UpdateEntry writes the mutable fields of an entry.
func (r *PostgresRepository) UpdateEntry(ctx context.Context, e *Entry) error {
	ct, err := r.pool.Exec(ctx, `
		UPDATE service_queue_entries
		SET status = $2, queue_position = $3, started_at = $4, completed_at = $5, doctor_id = $6, nurse_id = $7
		WHERE id = $1`,
		e.ID, e.Status, e.QueuePosition, e.StartedAt, e.CompletedAt, e.DoctorID, e.NurseID)
	if err != nil {
		return fmt.Errorf("queue: update entry: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrEntryNotFound
	}
	return nil
}

// DeleteEntry removes one entry.
func (r *PostgresRepository) DeleteEntry(ctx context.Context, entryID uuid.UUID) error {
	ct, err := r.pool.Exec(ctx, `DELETE FROM service_queue_entries WHERE id = $1`, entryID)
	if err != nil {
		return fmt.Errorf("queue: delete entry: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrEntryNotFound
	}
	return nil
}

// DeleteEntriesForVisit removes every entry for a visit and reports how many
// rows went away.
func (r *PostgresRepository) DeleteEntriesForVisit(ctx context.Context, visitID uuid.UUID) (int64, error) {
	ct, err := r.pool.Exec(ctx, `DELETE FROM service_queue_entries WHERE visit_id = $1`, visitID)
	if err != nil {
		return 0, fmt.Errorf("queue: delete entries for visit: %w", err)
	}
	return ct.RowsAffected(), nil
}

// ListEntriesForVisit returns all entries for a visit.
func (r *PostgresRepository) ListEntriesForVisit(ctx context.Context, visitID uuid.UUID) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, entrySelect+` WHERE qe.visit_id = $1 ORDER BY qe.created_at`, visitID)
	if err != nil {
		return nil, fmt.Errorf("queue: list entries for visit: %w", err)
	}
	defer rows.Close()
	return collectEntries(rows)
}

// ListEntries returns the event's entries in display order: explicit
// queue_position first, then arrival order, then creation time.
func (r *PostgresRepository) ListEntries(ctx context.Context, eventID uuid.UUID, filter Filter) ([]Entry, error) {
	query := entrySelect + ` WHERE v.event_id = $1`
	args := []any{eventID}
	if filter.ServiceID != nil {
		args = append(args, *filter.ServiceID)
		query += fmt.Sprintf(" AND qe.service_id = $%d", len(args))
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		query += fmt.Sprintf(" AND qe.status = $%d", len(args))
	}
	query += ` ORDER BY qe.queue_position NULLS LAST, v.queue_number, qe.created_at`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("queue: list entries: %w", err)
	}
	defer rows.Close()
	return collectEntries(rows)
}

// RequestedServices returns the services selected for a visit, including ones
// whose entries are still deferred behind the prerequisite.
func (r *PostgresRepository) RequestedServices(ctx context.Context, visitID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT service_id FROM visit_requested_services
		WHERE visit_id = $1 ORDER BY created_at`, visitID)
	if err != nil {
		return nil, fmt.Errorf("queue: requested services: %w", err)
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("queue: scan requested service: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// AddRequestedServices records service selections for a visit. Re-adding an
// existing selection is a no-op.
func (r *PostgresRepository) AddRequestedServices(ctx context.Context, visitID uuid.UUID, serviceIDs []uuid.UUID) error {
	for _, serviceID := range serviceIDs {
		_, err := r.pool.Exec(ctx, `
			INSERT INTO visit_requested_services (visit_id, service_id)
			VALUES ($1, $2)
			ON CONFLICT DO NOTHING`, visitID, serviceID)
		if err != nil {
			return fmt.Errorf("queue: add requested service: %w", err)
		}
	}
	return nil
}

// RemoveRequestedService drops a service selection for a visit.
func (r *PostgresRepository) RemoveRequestedService(ctx context.Context, visitID, serviceID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		DELETE FROM visit_requested_services WHERE visit_id = $1 AND service_id = $2`,
		visitID, serviceID)
	if err != nil {
		return fmt.Errorf("queue: remove requested service: %w", err)
	}
	return nil
}

func collectEntries(rows pgx.Rows) ([]Entry, error) {
	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("queue: scan entry: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
