package queue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairops/healthfair-platform/internal/access"
	"github.com/fairops/healthfair-platform/internal/catalog"
	"github.com/fairops/healthfair-platform/internal/observability/metrics"
	"github.com/fairops/healthfair-platform/pkg/logging"
)

var queueTracer = otel.Tracer("healthfair.internal.queue")

// PrerequisiteSource resolves the designated prerequisite service.
type PrerequisiteSource interface {
	Resolve(ctx context.Context) (*catalog.Service, error)
}

// RoleResolver answers role lookups for admin-gated operations.
type RoleResolver interface {
	ResolveRole(ctx context.Context, staffID uuid.UUID) (access.Role, error)
}

// Notifier receives queue changes for live boards. Implementations must not
// block.
type Notifier interface {
	QueueChanged(change Change)
}

// Clock supplies timestamps so tests can pin time.
type Clock func() time.Time

func defaultClock() time.Time { return time.Now().UTC() }

// Manager owns service queue entries: creation with prerequisite gating,
// status transitions, deferred-entry materialization and the admin-only
// deletion path.
type Manager struct {
	repo     Repository
	prereq   PrerequisiteSource
	roles    RoleResolver
	logger   *logging.Logger
	metrics  *metrics.QueueMetrics
	notifier Notifier
	now      Clock
}

// NewManager constructs a queue manager. metrics and notifier may be nil.
func NewManager(repo Repository, prereq PrerequisiteSource, roles RoleResolver, logger *logging.Logger, m *metrics.QueueMetrics, notifier Notifier) *Manager {
	if repo == nil {
		panic("queue: repository required")
	}
	if prereq == nil {
		panic("queue: prerequisite source required")
	}
	if roles == nil {
		panic("queue: role resolver required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Manager{
		repo:     repo,
		prereq:   prereq,
		roles:    roles,
		logger:   logger,
		metrics:  m,
		notifier: notifier,
		now:      defaultClock,
	}
}

// AddResult reports what AddToQueue did. Deferred means the service was
// recorded for the visit but its entry waits on prerequisite completion.
type AddResult struct {
	Entry    *Entry `json:"entry,omitempty"`
	Deferred bool   `json:"deferred"`
}

// AddToQueue puts a visit in line for a service. The prerequisite service is
// always queued immediately; any other service is queued only once the
// visit's prerequisite entry is completed, and deferred otherwise.
func (m *Manager) AddToQueue(ctx context.Context, visitID, serviceID uuid.UUID) (*AddResult, error) {
	ctx, span := queueTracer.Start(ctx, "queue.add")
	defer span.End()
	span.SetAttributes(
		attribute.String("healthfair.visit_id", visitID.String()),
		attribute.String("healthfair.service_id", serviceID.String()),
	)

	existing, err := m.repo.FindEntry(ctx, visitID, serviceID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if existing != nil {
		return nil, ErrAlreadyQueued
	}

	if err := m.repo.AddRequestedServices(ctx, visitID, []uuid.UUID{serviceID}); err != nil {
		span.RecordError(err)
		return nil, err
	}

	gated, err := m.serviceIsGated(ctx, visitID, serviceID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if gated {
		m.logger.Info("service deferred behind prerequisite", "visit_id", visitID, "service_id", serviceID)
		return &AddResult{Deferred: true}, nil
	}

	entry, err := m.createEntry(ctx, visitID, serviceID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return &AddResult{Entry: entry}, nil
}

// serviceIsGated reports whether an entry for the service must wait for the
// visit's prerequisite entry to complete.
func (m *Manager) serviceIsGated(ctx context.Context, visitID, serviceID uuid.UUID) (bool, error) {
	prereq, err := m.prereq.Resolve(ctx)
	if err != nil {
		return false, err
	}
	if prereq == nil || prereq.ID == serviceID {
		return false, nil
	}
	prereqEntry, err := m.repo.FindEntry(ctx, visitID, prereq.ID)
	if err != nil {
		return false, err
	}
	return prereqEntry == nil || prereqEntry.Status != StatusCompleted, nil
}

func (m *Manager) createEntry(ctx context.Context, visitID, serviceID uuid.UUID) (*Entry, error) {
	entry := &Entry{
		VisitID:   visitID,
		ServiceID: serviceID,
		Status:    StatusWaiting,
	}
	if err := m.repo.InsertEntry(ctx, entry); err != nil {
		return nil, err
	}
	created, err := m.repo.GetEntry(ctx, entry.ID)
	if err != nil {
		// The insert succeeded; fall back to what we have.
		created = entry
	}
	m.notify(Change{Kind: ChangeEntryCreated, EventID: created.EventID, Entry: created, VisitID: visitID})
	return created, nil
}

// MaterializeDeferred creates waiting entries for every requested service of
// the visit that has none yet. Safe to run repeatedly: existing entries and
// unique-constraint collisions are skipped.
func (m *Manager) MaterializeDeferred(ctx context.Context, visitID uuid.UUID) ([]Entry, error) {
	ctx, span := queueTracer.Start(ctx, "queue.materialize_deferred")
	defer span.End()
	span.SetAttributes(attribute.String("healthfair.visit_id", visitID.String()))

	requested, err := m.repo.RequestedServices(ctx, visitID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	var created []Entry
	for _, serviceID := range requested {
		existing, err := m.repo.FindEntry(ctx, visitID, serviceID)
		if err != nil {
			span.RecordError(err)
			return created, err
		}
		if existing != nil {
			continue
		}
		entry, err := m.createEntry(ctx, visitID, serviceID)
		if err != nil {
			if errors.Is(err, ErrAlreadyQueued) {
				continue
			}
			span.RecordError(err)
			return created, err
		}
		created = append(created, *entry)
	}
	if len(created) > 0 {
		m.logger.Info("deferred entries materialized", "visit_id", visitID, "count", len(created))
	}
	return created, nil
}

// Transition moves an entry to a new status, stamping started_at/completed_at
// and materializing deferred entries when the prerequisite completes.
func (m *Manager) Transition(ctx context.Context, entryID uuid.UUID, newStatus Status) (*Entry, error) {
	ctx, span := queueTracer.Start(ctx, "queue.transition")
	defer span.End()
	span.SetAttributes(
		attribute.String("healthfair.entry_id", entryID.String()),
		attribute.String("healthfair.to_status", string(newStatus)),
	)

	if !newStatus.Valid() {
		m.metrics.ObserveTransition(string(newStatus), "invalid_status")
		return nil, ErrInvalidStatus
	}

	entry, err := m.repo.GetEntry(ctx, entryID)
	if err != nil {
		span.RecordError(err)
		m.metrics.ObserveTransition(string(newStatus), "not_found")
		return nil, err
	}

	if !CanTransition(entry.Status, newStatus) {
		m.metrics.ObserveTransition(string(newStatus), "invalid_transition")
		return nil, ErrInvalidTransition
	}

	now := m.now()
	switch newStatus {
	case StatusInProgress:
		if entry.StartedAt == nil {
			entry.StartedAt = &now
		}
	case StatusCompleted:
		entry.CompletedAt = &now
	}
	entry.Status = newStatus

	if err := m.repo.UpdateEntry(ctx, entry); err != nil {
		span.RecordError(err)
		m.metrics.ObserveTransition(string(newStatus), "error")
		return nil, err
	}

	m.metrics.ObserveTransition(string(newStatus), "ok")
	m.notify(Change{Kind: ChangeEntryUpdated, EventID: entry.EventID, Entry: entry, VisitID: entry.VisitID})
	m.logger.Info("entry transitioned",
		"entry_id", entry.ID,
		"visit_id", entry.VisitID,
		"status", newStatus,
	)

	if newStatus == StatusCompleted {
		prereq, err := m.prereq.Resolve(ctx)
		if err != nil {
			span.RecordError(err)
			return entry, err
		}
		if prereq != nil && prereq.ID == entry.ServiceID {
			if _, err := m.MaterializeDeferred(ctx, entry.VisitID); err != nil {
				span.RecordError(err)
				return entry, err
			}
		}
	}
	return entry, nil
}

// ReconcileSelection brings a visit's entries in line with the desired
// service selection. De-selected services lose their entry unless it is
// completed or is the prerequisite; newly selected services follow the same
// gating rule as registration.
func (m *Manager) ReconcileSelection(ctx context.Context, visitID uuid.UUID, desired []uuid.UUID) error {
	ctx, span := queueTracer.Start(ctx, "queue.reconcile_selection")
	defer span.End()
	span.SetAttributes(attribute.String("healthfair.visit_id", visitID.String()))

	prereq, err := m.prereq.Resolve(ctx)
	if err != nil {
		span.RecordError(err)
		return err
	}

	desiredSet := make(map[uuid.UUID]struct{}, len(desired))
	for _, id := range desired {
		desiredSet[id] = struct{}{}
	}
	if prereq != nil {
		// The prerequisite stays requested regardless of the edit.
		desiredSet[prereq.ID] = struct{}{}
	}

	requested, err := m.repo.RequestedServices(ctx, visitID)
	if err != nil {
		span.RecordError(err)
		return err
	}

	for _, serviceID := range requested {
		if _, keep := desiredSet[serviceID]; keep {
			continue
		}
		if err := m.repo.RemoveRequestedService(ctx, visitID, serviceID); err != nil {
			span.RecordError(err)
			return err
		}
		entry, err := m.repo.FindEntry(ctx, visitID, serviceID)
		if err != nil {
			span.RecordError(err)
			return err
		}
		if entry == nil || entry.Status == StatusCompleted {
			continue
		}
		if err := m.repo.DeleteEntry(ctx, entry.ID); err != nil && !errors.Is(err, ErrEntryNotFound) {
			span.RecordError(err)
			return err
		}
		m.notify(Change{Kind: ChangeEntryDeleted, EventID: entry.EventID, Entry: entry, VisitID: visitID})
	}

	requestedSet := make(map[uuid.UUID]struct{}, len(requested))
	for _, id := range requested {
		requestedSet[id] = struct{}{}
	}
	for serviceID := range desiredSet {
		if _, already := requestedSet[serviceID]; already {
			continue
		}
		if _, err := m.AddToQueue(ctx, visitID, serviceID); err != nil && !errors.Is(err, ErrAlreadyQueued) {
			span.RecordError(err)
			return err
		}
	}
	return nil
}

// DeleteEntry removes one entry. Admin only, and restricted to the
// prerequisite service's entries; a visit leaves any other queue through a
// selection edit, not a raw delete. When no prerequisite service is
// configured the restriction is moot.
func (m *Manager) DeleteEntry(ctx context.Context, staffID, entryID uuid.UUID) error {
	ctx, span := queueTracer.Start(ctx, "queue.delete_entry")
	defer span.End()

	if err := m.requireAdmin(ctx, staffID); err != nil {
		m.metrics.ObserveDeletion("entry", "forbidden")
		return err
	}
	entry, err := m.repo.GetEntry(ctx, entryID)
	if err != nil {
		m.metrics.ObserveDeletion("entry", "not_found")
		return err
	}
	prereq, err := m.prereq.Resolve(ctx)
	if err != nil {
		span.RecordError(err)
		m.metrics.ObserveDeletion("entry", "error")
		return err
	}
	if prereq != nil && entry.ServiceID != prereq.ID {
		m.metrics.ObserveDeletion("entry", "not_deletable")
		return ErrEntryNotDeletable
	}
	if err := m.repo.DeleteEntry(ctx, entryID); err != nil {
		span.RecordError(err)
		m.metrics.ObserveDeletion("entry", "error")
		return err
	}
	m.metrics.ObserveDeletion("entry", "ok")
	m.notify(Change{Kind: ChangeEntryDeleted, EventID: entry.EventID, Entry: entry, VisitID: entry.VisitID})
	m.logger.Info("entry deleted", "entry_id", entryID, "staff_id", staffID)
	return nil
}

// DeleteAllForVisit removes every entry for the visit. Admin only.
func (m *Manager) DeleteAllForVisit(ctx context.Context, staffID, visitID uuid.UUID) error {
	ctx, span := queueTracer.Start(ctx, "queue.delete_all_for_visit")
	defer span.End()

	if err := m.requireAdmin(ctx, staffID); err != nil {
		m.metrics.ObserveDeletion("visit", "forbidden")
		return err
	}
	entries, err := m.repo.ListEntriesForVisit(ctx, visitID)
	if err != nil {
		span.RecordError(err)
		m.metrics.ObserveDeletion("visit", "error")
		return err
	}
	n, err := m.repo.DeleteEntriesForVisit(ctx, visitID)
	if err != nil {
		span.RecordError(err)
		m.metrics.ObserveDeletion("visit", "error")
		return err
	}
	m.metrics.ObserveDeletion("visit", "ok")
	for i := range entries {
		m.notify(Change{Kind: ChangeEntryDeleted, EventID: entries[i].EventID, Entry: &entries[i], VisitID: visitID})
	}
	m.logger.Info("all entries deleted for visit", "visit_id", visitID, "staff_id", staffID, "count", n)
	return nil
}

// ListEntries returns status/service-filtered entries for an event in
// display order.
func (m *Manager) ListEntries(ctx context.Context, eventID uuid.UUID, filter Filter) ([]Entry, error) {
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, ErrInvalidStatus
	}
	return m.repo.ListEntries(ctx, eventID, filter)
}

// ListEntriesForVisit returns all of a visit's entries.
func (m *Manager) ListEntriesForVisit(ctx context.Context, visitID uuid.UUID) ([]Entry, error) {
	return m.repo.ListEntriesForVisit(ctx, visitID)
}

func (m *Manager) requireAdmin(ctx context.Context, staffID uuid.UUID) error {
	role, err := m.roles.ResolveRole(ctx, staffID)
	if err != nil {
		return err
	}
	if role != access.RoleAdmin {
		return ErrForbidden
	}
	return nil
}

func (m *Manager) notify(change Change) {
	if m.notifier == nil {
		return
	}
	m.notifier.QueueChanged(change)
}
