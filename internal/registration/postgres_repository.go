package registration

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fairops/healthfair-platform/internal/queue"
)

type pgPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores patients and visits in Postgres.
type PostgresRepository struct {
	pool pgPool
}

// NewPostgresRepository creates a repository backed by a pgx pool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("registration: pgx pool required")
	}
	return &PostgresRepository{pool: pool}
}

func newPostgresRepositoryWithPool(pool pgPool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const patientColumns = `id, patient_number, first_name, last_name, phone, email, address, gender,
	date_of_birth, allergies, conditions, medications,
	height_cm, weight_kg, systolic_bp, diastolic_bp, created_at, updated_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.PatientNumber, &p.FirstName, &p.LastName, &p.Phone, &p.Email,
		&p.Address, &p.Gender, &p.DateOfBirth, &p.Allergies, &p.Conditions, &p.Medications,
		&p.HeightCm, &p.WeightKg, &p.SystolicBP, &p.DiastolicBP, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// FindPatientsByName matches first+last case-insensitively after trimming.
func (r *PostgresRepository) FindPatientsByName(ctx context.Context, first, last string) ([]Patient, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+patientColumns+` FROM patients
		WHERE lower(trim(first_name)) = lower(trim($1))
		  AND lower(trim(last_name)) = lower(trim($2))
		ORDER BY created_at`, first, last)
	if err != nil {
		return nil, fmt.Errorf("registration: find patients by name: %w", err)
	}
	defer rows.Close()

	var out []Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, fmt.Errorf("registration: scan patient: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// GetPatient returns one patient by id.
func (r *PostgresRepository) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := scanPatient(r.pool.QueryRow(ctx, `SELECT `+patientColumns+` FROM patients WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPatientNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("registration: load patient: %w", err)
	}
	return p, nil
}

// InsertPatient persists a new patient. The patient number comes from a
// database sequence so it is unique without coordination.
func (r *PostgresRepository) InsertPatient(ctx context.Context, p *Patient) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO patients (id, first_name, last_name, phone, email, address, gender,
			date_of_birth, allergies, conditions, medications,
			height_cm, weight_kg, systolic_bp, diastolic_bp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING patient_number, created_at, updated_at`,
		p.ID, p.FirstName, p.LastName, p.Phone, p.Email, p.Address, p.Gender,
		p.DateOfBirth, p.Allergies, p.Conditions, p.Medications,
		p.HeightCm, p.WeightKg, p.SystolicBP, p.DiastolicBP).
		Scan(&p.PatientNumber, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("registration: insert patient: %w", err)
	}
	return nil
}

// UpdatePatient writes staff edits to a patient record.
func (r *PostgresRepository) UpdatePatient(ctx context.Context, p *Patient) error {
	ct, err := r.pool.Exec(ctx, `
		UPDATE patients
		SET first_name = $2, last_name = $3, phone = $4, email = $5, address = $6, gender = $7,
		    date_of_birth = $8, allergies = $9, conditions = $10, medications = $11,
		    height_cm = $12, weight_kg = $13, systolic_bp = $14, diastolic_bp = $15,
		    updated_at = now()
		WHERE id = $1`,
		p.ID, p.FirstName, p.LastName, p.Phone, p.Email, p.Address, p.Gender,
		p.DateOfBirth, p.Allergies, p.Conditions, p.Medications,
		p.HeightCm, p.WeightKg, p.SystolicBP, p.DiastolicBP)
	if err != nil {
		return fmt.Errorf("registration: update patient: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrPatientNotFound
	}
	return nil
}

// FindVisit returns the visit for (patient, event), or nil when none exists.
func (r *PostgresRepository) FindVisit(ctx context.Context, patientID, eventID uuid.UUID) (*Visit, error) {
	var v Visit
	err := r.pool.QueryRow(ctx, `
		SELECT id, patient_id, event_id, queue_number, status, created_at
		FROM patient_visits WHERE patient_id = $1 AND event_id = $2`,
		patientID, eventID).
		Scan(&v.ID, &v.PatientID, &v.EventID, &v.QueueNumber, &v.Status, &v.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("registration: find visit: %w", err)
	}
	return &v, nil
}

// CreateVisit assigns the event's next queue number and writes the visit, its
// initial entries and its requested-service set in one transaction. The
// counter upsert is a single atomic statement, so concurrent registrations
// for an event can never share a number.
func (r *PostgresRepository) CreateVisit(ctx context.Context, v *Visit, entries []queue.Entry, requested []uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("registration: begin create visit: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var queueNumber int
	err = tx.QueryRow(ctx, `
		INSERT INTO event_queue_counters (event_id, next_number)
		VALUES ($1, 1)
		ON CONFLICT (event_id) DO UPDATE SET next_number = event_queue_counters.next_number + 1
		RETURNING next_number`, v.EventID).Scan(&queueNumber)
	if err != nil {
		return fmt.Errorf("registration: next queue number: %w", err)
	}

	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	if v.Status == "" {
		v.Status = VisitStatusCheckedIn
	}
	v.QueueNumber = queueNumber
	err = tx.QueryRow(ctx, `
		INSERT INTO patient_visits (id, patient_id, event_id, queue_number, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`,
		v.ID, v.PatientID, v.EventID, v.QueueNumber, v.Status).
		Scan(&v.CreatedAt)
	if err != nil {
		return fmt.Errorf("registration: insert visit: %w", err)
	}

	for i := range entries {
		entries[i].VisitID = v.ID
		if entries[i].ID == uuid.Nil {
			entries[i].ID = uuid.New()
		}
		err = tx.QueryRow(ctx, `
			INSERT INTO service_queue_entries (id, visit_id, service_id, status)
			VALUES ($1, $2, $3, $4)
			RETURNING created_at`,
			entries[i].ID, entries[i].VisitID, entries[i].ServiceID, entries[i].Status).
			Scan(&entries[i].CreatedAt)
		if err != nil {
			return fmt.Errorf("registration: insert initial entry: %w", err)
		}
	}

	for _, serviceID := range requested {
		if _, err := tx.Exec(ctx, `
			INSERT INTO visit_requested_services (visit_id, service_id)
			VALUES ($1, $2)
			ON CONFLICT DO NOTHING`, v.ID, serviceID); err != nil {
			return fmt.Errorf("registration: record requested service: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("registration: commit create visit: %w", err)
	}
	return nil
}
