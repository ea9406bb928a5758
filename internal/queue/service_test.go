package queue

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairops/healthfair-platform/internal/access"
	"github.com/fairops/healthfair-platform/internal/catalog"
	"github.com/fairops/healthfair-platform/internal/observability/metrics"
	"github.com/fairops/healthfair-platform/pkg/logging"
)

type stubPrereq struct {
	svc *catalog.Service
	err error
}

func (s *stubPrereq) Resolve(ctx context.Context) (*catalog.Service, error) {
	return s.svc, s.err
}

type stubRoles map[uuid.UUID]access.Role

func (s stubRoles) ResolveRole(_ context.Context, staffID uuid.UUID) (access.Role, error) {
	if role, ok := s[staffID]; ok {
		return role, nil
	}
	return "", access.ErrStaffNotFound
}

type changeRecorder struct {
	mu      sync.Mutex
	changes []Change
}

func (r *changeRecorder) QueueChanged(c Change) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, c)
}

func (r *changeRecorder) kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.changes))
	for i, c := range r.changes {
		out[i] = c.Kind
	}
	return out
}

func knowYourNumbers() *catalog.Service {
	return &catalog.Service{
		ID:             uuid.New(),
		Name:           "Know Your Numbers",
		IsPrerequisite: true,
	}
}

func newTestManager(t *testing.T, prereqSvc *catalog.Service) (*Manager, *InMemoryRepository, stubRoles, *changeRecorder) {
	t.Helper()
	repo := NewInMemoryRepository()
	roles := stubRoles{}
	rec := &changeRecorder{}
	logger := logging.NewWithWriter("error", io.Discard)
	m := NewManager(repo, &stubPrereq{svc: prereqSvc}, roles, logger, metrics.NewQueueMetrics(prometheus.NewRegistry()), rec)
	return m, repo, roles, rec
}

func TestAddToQueuePrerequisiteImmediately(t *testing.T) {
	prereqSvc := knowYourNumbers()
	m, _, _, rec := newTestManager(t, prereqSvc)
	visitID := uuid.New()

	result, err := m.AddToQueue(context.Background(), visitID, prereqSvc.ID)
	require.NoError(t, err)

	assert.False(t, result.Deferred)
	require.NotNil(t, result.Entry)
	assert.Equal(t, StatusWaiting, result.Entry.Status)
	assert.Equal(t, prereqSvc.ID, result.Entry.ServiceID)
	assert.Equal(t, []string{ChangeEntryCreated}, rec.kinds())
}

func TestAddToQueueDeferredBehindPrerequisite(t *testing.T) {
	prereqSvc := knowYourNumbers()
	m, repo, _, rec := newTestManager(t, prereqSvc)
	visitID := uuid.New()
	dental := uuid.New()

	result, err := m.AddToQueue(context.Background(), visitID, dental)
	require.NoError(t, err)

	assert.True(t, result.Deferred)
	assert.Nil(t, result.Entry)

	// No entry yet, but the request is on record for later materialization.
	entry, err := repo.FindEntry(context.Background(), visitID, dental)
	require.NoError(t, err)
	assert.Nil(t, entry)
	requested, err := repo.RequestedServices(context.Background(), visitID)
	require.NoError(t, err)
	assert.Contains(t, requested, dental)
	assert.Empty(t, rec.kinds())
}

func TestAddToQueueAfterPrerequisiteCompleted(t *testing.T) {
	prereqSvc := knowYourNumbers()
	m, _, _, _ := newTestManager(t, prereqSvc)
	visitID := uuid.New()

	result, err := m.AddToQueue(context.Background(), visitID, prereqSvc.ID)
	require.NoError(t, err)
	_, err = m.Transition(context.Background(), result.Entry.ID, StatusCompleted)
	require.NoError(t, err)

	dental := uuid.New()
	added, err := m.AddToQueue(context.Background(), visitID, dental)
	require.NoError(t, err)
	assert.False(t, added.Deferred)
	require.NotNil(t, added.Entry)
	assert.Equal(t, StatusWaiting, added.Entry.Status)
}

func TestAddToQueueRejectsDuplicate(t *testing.T) {
	prereqSvc := knowYourNumbers()
	m, _, _, _ := newTestManager(t, prereqSvc)
	visitID := uuid.New()

	_, err := m.AddToQueue(context.Background(), visitID, prereqSvc.ID)
	require.NoError(t, err)

	_, err = m.AddToQueue(context.Background(), visitID, prereqSvc.ID)
	assert.ErrorIs(t, err, ErrAlreadyQueued)
}

func TestAddToQueueNoPrerequisiteConfigured(t *testing.T) {
	m, _, _, _ := newTestManager(t, nil)
	visitID := uuid.New()

	result, err := m.AddToQueue(context.Background(), visitID, uuid.New())
	require.NoError(t, err)
	assert.False(t, result.Deferred)
	require.NotNil(t, result.Entry)
}

func TestTransitionStampsTimestamps(t *testing.T) {
	m, _, _, _ := newTestManager(t, nil)
	pinned := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	m.now = func() time.Time { return pinned }

	result, err := m.AddToQueue(context.Background(), uuid.New(), uuid.New())
	require.NoError(t, err)

	entry, err := m.Transition(context.Background(), result.Entry.ID, StatusInProgress)
	require.NoError(t, err)
	require.NotNil(t, entry.StartedAt)
	assert.Equal(t, pinned, *entry.StartedAt)
	assert.Nil(t, entry.CompletedAt)

	later := pinned.Add(20 * time.Minute)
	m.now = func() time.Time { return later }
	entry, err = m.Transition(context.Background(), entry.ID, StatusCompleted)
	require.NoError(t, err)
	require.NotNil(t, entry.CompletedAt)
	assert.Equal(t, later, *entry.CompletedAt)
	assert.Equal(t, pinned, *entry.StartedAt)
}

func TestTransitionKeepsOriginalStartedAt(t *testing.T) {
	m, _, _, _ := newTestManager(t, nil)
	first := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return first }

	result, err := m.AddToQueue(context.Background(), uuid.New(), uuid.New())
	require.NoError(t, err)
	_, err = m.Transition(context.Background(), result.Entry.ID, StatusInProgress)
	require.NoError(t, err)

	// Sent back to waiting and restarted: the first start time stands.
	_, err = m.Transition(context.Background(), result.Entry.ID, StatusWaiting)
	require.NoError(t, err)
	m.now = func() time.Time { return first.Add(time.Hour) }
	entry, err := m.Transition(context.Background(), result.Entry.ID, StatusInProgress)
	require.NoError(t, err)
	require.NotNil(t, entry.StartedAt)
	assert.Equal(t, first, *entry.StartedAt)
}

func TestTransitionCompletedIsTerminal(t *testing.T) {
	m, _, _, _ := newTestManager(t, nil)

	result, err := m.AddToQueue(context.Background(), uuid.New(), uuid.New())
	require.NoError(t, err)
	_, err = m.Transition(context.Background(), result.Entry.ID, StatusCompleted)
	require.NoError(t, err)

	_, err = m.Transition(context.Background(), result.Entry.ID, StatusWaiting)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestTransitionUnavailableOnlyReturnsToWaiting(t *testing.T) {
	m, _, _, _ := newTestManager(t, nil)

	result, err := m.AddToQueue(context.Background(), uuid.New(), uuid.New())
	require.NoError(t, err)
	_, err = m.Transition(context.Background(), result.Entry.ID, StatusUnavailable)
	require.NoError(t, err)

	_, err = m.Transition(context.Background(), result.Entry.ID, StatusInProgress)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	entry, err := m.Transition(context.Background(), result.Entry.ID, StatusWaiting)
	require.NoError(t, err)
	assert.Equal(t, StatusWaiting, entry.Status)
}

func TestTransitionRejectsUnknownStatus(t *testing.T) {
	m, _, _, _ := newTestManager(t, nil)
	_, err := m.Transition(context.Background(), uuid.New(), Status("paused"))
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestTransitionUnknownEntry(t *testing.T) {
	m, _, _, _ := newTestManager(t, nil)
	_, err := m.Transition(context.Background(), uuid.New(), StatusInProgress)
	assert.ErrorIs(t, err, ErrEntryNotFound)
}

func TestCompletingPrerequisiteMaterializesDeferred(t *testing.T) {
	prereqSvc := knowYourNumbers()
	m, repo, _, rec := newTestManager(t, prereqSvc)
	visitID := uuid.New()
	bloodwork := uuid.New()
	dental := uuid.New()

	prereqResult, err := m.AddToQueue(context.Background(), visitID, prereqSvc.ID)
	require.NoError(t, err)
	for _, svc := range []uuid.UUID{bloodwork, dental} {
		result, err := m.AddToQueue(context.Background(), visitID, svc)
		require.NoError(t, err)
		require.True(t, result.Deferred)
	}

	_, err = m.Transition(context.Background(), prereqResult.Entry.ID, StatusCompleted)
	require.NoError(t, err)

	for _, svc := range []uuid.UUID{bloodwork, dental} {
		entry, err := repo.FindEntry(context.Background(), visitID, svc)
		require.NoError(t, err)
		require.NotNil(t, entry, "deferred entry should exist after prerequisite completion")
		assert.Equal(t, StatusWaiting, entry.Status)
	}

	// Running materialization again creates nothing new.
	created, err := m.MaterializeDeferred(context.Background(), visitID)
	require.NoError(t, err)
	assert.Empty(t, created)

	assert.Contains(t, rec.kinds(), ChangeEntryUpdated)
}

func TestCompletingNonPrerequisiteDoesNotMaterialize(t *testing.T) {
	prereqSvc := knowYourNumbers()
	m, repo, _, _ := newTestManager(t, prereqSvc)
	visitID := uuid.New()
	dental := uuid.New()

	prereqResult, err := m.AddToQueue(context.Background(), visitID, prereqSvc.ID)
	require.NoError(t, err)
	_, err = m.Transition(context.Background(), prereqResult.Entry.ID, StatusCompleted)
	require.NoError(t, err)

	// Queue dental post-completion, then defer optician behind nothing new.
	dentalResult, err := m.AddToQueue(context.Background(), visitID, dental)
	require.NoError(t, err)
	require.False(t, dentalResult.Deferred)

	otherVisit := uuid.New()
	optician := uuid.New()
	deferred, err := m.AddToQueue(context.Background(), otherVisit, optician)
	require.NoError(t, err)
	require.True(t, deferred.Deferred)

	_, err = m.Transition(context.Background(), dentalResult.Entry.ID, StatusCompleted)
	require.NoError(t, err)

	entry, err := repo.FindEntry(context.Background(), otherVisit, optician)
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestReconcileSelectionAddsAndRemoves(t *testing.T) {
	m, repo, _, _ := newTestManager(t, nil)
	visitID := uuid.New()
	a, b, c := uuid.New(), uuid.New(), uuid.New()

	for _, svc := range []uuid.UUID{a, b} {
		_, err := m.AddToQueue(context.Background(), visitID, svc)
		require.NoError(t, err)
	}

	require.NoError(t, m.ReconcileSelection(context.Background(), visitID, []uuid.UUID{b, c}))

	entryA, err := repo.FindEntry(context.Background(), visitID, a)
	require.NoError(t, err)
	assert.Nil(t, entryA, "de-selected entry should be gone")

	entryB, err := repo.FindEntry(context.Background(), visitID, b)
	require.NoError(t, err)
	assert.NotNil(t, entryB, "kept selection should be untouched")

	entryC, err := repo.FindEntry(context.Background(), visitID, c)
	require.NoError(t, err)
	assert.NotNil(t, entryC, "new selection should be queued")

	requested, err := repo.RequestedServices(context.Background(), visitID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{b, c}, requested)
}

func TestReconcileSelectionKeepsCompletedEntries(t *testing.T) {
	m, repo, _, _ := newTestManager(t, nil)
	visitID := uuid.New()
	a := uuid.New()

	result, err := m.AddToQueue(context.Background(), visitID, a)
	require.NoError(t, err)
	_, err = m.Transition(context.Background(), result.Entry.ID, StatusCompleted)
	require.NoError(t, err)

	require.NoError(t, m.ReconcileSelection(context.Background(), visitID, nil))

	// The record of delivered care survives the de-selection.
	entry, err := repo.FindEntry(context.Background(), visitID, a)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, StatusCompleted, entry.Status)

	requested, err := repo.RequestedServices(context.Background(), visitID)
	require.NoError(t, err)
	assert.Empty(t, requested)
}

func TestReconcileSelectionKeepsPrerequisite(t *testing.T) {
	prereqSvc := knowYourNumbers()
	m, repo, _, _ := newTestManager(t, prereqSvc)
	visitID := uuid.New()

	_, err := m.AddToQueue(context.Background(), visitID, prereqSvc.ID)
	require.NoError(t, err)

	require.NoError(t, m.ReconcileSelection(context.Background(), visitID, nil))

	entry, err := repo.FindEntry(context.Background(), visitID, prereqSvc.ID)
	require.NoError(t, err)
	assert.NotNil(t, entry, "prerequisite entry must survive any edit")
}

func TestDeleteEntryRequiresAdmin(t *testing.T) {
	m, repo, roles, _ := newTestManager(t, nil)
	admin, nurse := uuid.New(), uuid.New()
	roles[admin] = access.RoleAdmin
	roles[nurse] = access.RoleNurse

	result, err := m.AddToQueue(context.Background(), uuid.New(), uuid.New())
	require.NoError(t, err)

	err = m.DeleteEntry(context.Background(), nurse, result.Entry.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = repo.GetEntry(context.Background(), result.Entry.ID)
	require.NoError(t, err, "refused deletion must not remove the entry")

	require.NoError(t, m.DeleteEntry(context.Background(), admin, result.Entry.ID))
	_, err = repo.GetEntry(context.Background(), result.Entry.ID)
	assert.ErrorIs(t, err, ErrEntryNotFound)
}

func TestDeleteEntryRestrictedToPrerequisite(t *testing.T) {
	prereqSvc := knowYourNumbers()
	m, repo, roles, _ := newTestManager(t, prereqSvc)
	admin := uuid.New()
	roles[admin] = access.RoleAdmin
	visitID := uuid.New()

	prereqResult, err := m.AddToQueue(context.Background(), visitID, prereqSvc.ID)
	require.NoError(t, err)
	_, err = m.Transition(context.Background(), prereqResult.Entry.ID, StatusCompleted)
	require.NoError(t, err)
	dental, err := m.AddToQueue(context.Background(), visitID, uuid.New())
	require.NoError(t, err)

	err = m.DeleteEntry(context.Background(), admin, dental.Entry.ID)
	assert.ErrorIs(t, err, ErrEntryNotDeletable)
	_, err = repo.GetEntry(context.Background(), dental.Entry.ID)
	require.NoError(t, err, "refused deletion must not remove the entry")

	require.NoError(t, m.DeleteEntry(context.Background(), admin, prereqResult.Entry.ID))
	_, err = repo.GetEntry(context.Background(), prereqResult.Entry.ID)
	assert.ErrorIs(t, err, ErrEntryNotFound)
}

func TestDeleteEntryUnknownStaff(t *testing.T) {
	m, _, _, _ := newTestManager(t, nil)
	err := m.DeleteEntry(context.Background(), uuid.New(), uuid.New())
	assert.ErrorIs(t, err, access.ErrStaffNotFound)
}

func TestDeleteAllForVisitLeavesOthersAlone(t *testing.T) {
	m, repo, roles, _ := newTestManager(t, nil)
	admin := uuid.New()
	roles[admin] = access.RoleAdmin

	target := uuid.New()
	other := uuid.New()
	for _, svc := range []uuid.UUID{uuid.New(), uuid.New()} {
		_, err := m.AddToQueue(context.Background(), target, svc)
		require.NoError(t, err)
	}
	otherResult, err := m.AddToQueue(context.Background(), other, uuid.New())
	require.NoError(t, err)

	require.NoError(t, m.DeleteAllForVisit(context.Background(), admin, target))

	entries, err := repo.ListEntriesForVisit(context.Background(), target)
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, err = repo.GetEntry(context.Background(), otherResult.Entry.ID)
	assert.NoError(t, err, "other visits must be untouched")
}

func TestListEntriesOrderedAndFiltered(t *testing.T) {
	m, repo, _, _ := newTestManager(t, nil)
	eventID := uuid.New()
	svcA, svcB := uuid.New(), uuid.New()

	second := uuid.New()
	first := uuid.New()
	repo.BindVisit(second, eventID, 2)
	repo.BindVisit(first, eventID, 1)

	resultSecond, err := m.AddToQueue(context.Background(), second, svcA)
	require.NoError(t, err)
	_, err = m.AddToQueue(context.Background(), first, svcA)
	require.NoError(t, err)
	_, err = m.AddToQueue(context.Background(), first, svcB)
	require.NoError(t, err)

	all, err := m.ListEntries(context.Background(), eventID, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, 1, all[0].QueueNumber)
	assert.Equal(t, 2, all[2].QueueNumber)

	onlyA, err := m.ListEntries(context.Background(), eventID, Filter{ServiceID: &svcA})
	require.NoError(t, err)
	assert.Len(t, onlyA, 2)

	_, err = m.Transition(context.Background(), resultSecond.Entry.ID, StatusInProgress)
	require.NoError(t, err)
	inProgress := StatusInProgress
	active, err := m.ListEntries(context.Background(), eventID, Filter{Status: &inProgress})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, resultSecond.Entry.ID, active[0].ID)
}

func TestListEntriesRejectsUnknownStatusFilter(t *testing.T) {
	m, _, _, _ := newTestManager(t, nil)
	bad := Status("archived")
	_, err := m.ListEntries(context.Background(), uuid.New(), Filter{Status: &bad})
	assert.ErrorIs(t, err, ErrInvalidStatus)
}
