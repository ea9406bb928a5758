package queue

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var entryColumns = []string{
	"id", "visit_id", "service_id", "status", "queue_position",
	"started_at", "completed_at", "doctor_id", "nurse_id", "created_at",
	"event_id", "queue_number",
}

func entryRow(mock pgxmock.PgxPoolIface, e Entry) *pgxmock.Rows {
	return mock.NewRows(entryColumns).AddRow(
		e.ID, e.VisitID, e.ServiceID, e.Status, e.QueuePosition,
		e.StartedAt, e.CompletedAt, e.DoctorID, e.NurseID, e.CreatedAt,
		e.EventID, e.QueueNumber,
	)
}

func TestPostgresFindEntryAbsent(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	repo := newPostgresRepositoryWithQuerier(mock)

	visitID, serviceID := uuid.New(), uuid.New()
	mock.ExpectQuery("SELECT qe.id, qe.visit_id").
		WithArgs(visitID, serviceID).
		WillReturnError(pgx.ErrNoRows)

	entry, err := repo.FindEntry(context.Background(), visitID, serviceID)
	require.NoError(t, err)
	assert.Nil(t, entry)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetEntry(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	repo := newPostgresRepositoryWithQuerier(mock)

	want := Entry{
		ID:          uuid.New(),
		VisitID:     uuid.New(),
		ServiceID:   uuid.New(),
		Status:      StatusWaiting,
		CreatedAt:   time.Now().UTC(),
		EventID:     uuid.New(),
		QueueNumber: 7,
	}
	mock.ExpectQuery("SELECT qe.id, qe.visit_id").
		WithArgs(want.ID).
		WillReturnRows(entryRow(mock, want))

	got, err := repo.GetEntry(context.Background(), want.ID)
	require.NoError(t, err)
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, 7, got.QueueNumber)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetEntryNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	repo := newPostgresRepositoryWithQuerier(mock)

	entryID := uuid.New()
	mock.ExpectQuery("SELECT qe.id, qe.visit_id").
		WithArgs(entryID).
		WillReturnError(pgx.ErrNoRows)

	_, err = repo.GetEntry(context.Background(), entryID)
	assert.ErrorIs(t, err, ErrEntryNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresInsertEntryUniqueViolation(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	repo := newPostgresRepositoryWithQuerier(mock)

	e := &Entry{VisitID: uuid.New(), ServiceID: uuid.New(), Status: StatusWaiting}
	mock.ExpectQuery("INSERT INTO service_queue_entries").
		WithArgs(pgxmock.AnyArg(), e.VisitID, e.ServiceID, e.Status, e.QueuePosition, e.DoctorID, e.NurseID).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err = repo.InsertEntry(context.Background(), e)
	assert.ErrorIs(t, err, ErrAlreadyQueued)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresInsertEntry(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	repo := newPostgresRepositoryWithQuerier(mock)

	created := time.Now().UTC()
	e := &Entry{VisitID: uuid.New(), ServiceID: uuid.New(), Status: StatusWaiting}
	mock.ExpectQuery("INSERT INTO service_queue_entries").
		WithArgs(pgxmock.AnyArg(), e.VisitID, e.ServiceID, e.Status, e.QueuePosition, e.DoctorID, e.NurseID).
		WillReturnRows(mock.NewRows([]string{"created_at"}).AddRow(created))

	require.NoError(t, repo.InsertEntry(context.Background(), e))
	assert.NotEqual(t, uuid.Nil, e.ID)
	assert.Equal(t, created, e.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdateEntryNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	repo := newPostgresRepositoryWithQuerier(mock)

	e := &Entry{ID: uuid.New(), Status: StatusInProgress}
	mock.ExpectExec("UPDATE service_queue_entries").
		WithArgs(e.ID, e.Status, e.QueuePosition, e.StartedAt, e.CompletedAt, e.DoctorID, e.NurseID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = repo.UpdateEntry(context.Background(), e)
	assert.ErrorIs(t, err, ErrEntryNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDeleteEntriesForVisit(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	repo := newPostgresRepositoryWithQuerier(mock)

	visitID := uuid.New()
	mock.ExpectExec("DELETE FROM service_queue_entries").
		WithArgs(visitID).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	n, err := repo.DeleteEntriesForVisit(context.Background(), visitID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresListEntriesAppliesFilters(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	repo := newPostgresRepositoryWithQuerier(mock)

	eventID := uuid.New()
	serviceID := uuid.New()
	status := StatusWaiting
	e := Entry{
		ID:          uuid.New(),
		VisitID:     uuid.New(),
		ServiceID:   serviceID,
		Status:      status,
		CreatedAt:   time.Now().UTC(),
		EventID:     eventID,
		QueueNumber: 1,
	}
	mock.ExpectQuery(`qe.service_id = \$2 AND qe.status = \$3`).
		WithArgs(eventID, serviceID, status).
		WillReturnRows(entryRow(mock, e))

	got, err := repo.ListEntries(context.Background(), eventID, Filter{ServiceID: &serviceID, Status: &status})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, e.ID, got[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRequestedServices(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	repo := newPostgresRepositoryWithQuerier(mock)

	visitID := uuid.New()
	a, b := uuid.New(), uuid.New()
	mock.ExpectQuery("SELECT service_id FROM visit_requested_services").
		WithArgs(visitID).
		WillReturnRows(mock.NewRows([]string{"service_id"}).AddRow(a).AddRow(b))

	got, err := repo.RequestedServices(context.Background(), visitID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{a, b}, got)
	require.NoError(t, mock.ExpectationsWereMet())
}
