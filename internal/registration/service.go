package registration

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairops/healthfair-platform/internal/observability/metrics"
	"github.com/fairops/healthfair-platform/internal/queue"
	"github.com/fairops/healthfair-platform/pkg/logging"
)

var registrarTracer = otel.Tracer("healthfair.internal.registration")

// Registrar checks patients in: duplicate detection, queue number assignment
// and creation of the initial gated queue entries.
type Registrar struct {
	repo     Repository
	prereq   queue.PrerequisiteSource
	logger   *logging.Logger
	metrics  *metrics.QueueMetrics
	notifier queue.Notifier
}

// NewRegistrar constructs a registrar. metrics and notifier may be nil.
func NewRegistrar(repo Repository, prereq queue.PrerequisiteSource, logger *logging.Logger, m *metrics.QueueMetrics, notifier queue.Notifier) *Registrar {
	if repo == nil {
		panic("registration: repository required")
	}
	if prereq == nil {
		panic("registration: prerequisite source required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Registrar{repo: repo, prereq: prereq, logger: logger, metrics: m, notifier: notifier}
}

// Register creates a visit for the event, assigning the next queue number.
// A same-name patient match returns OutcomeDuplicateFound with the candidate
// records and creates nothing; the caller decides between reusing a candidate
// (ExistingPatientID) and forcing a new record (ForceCreate).
func (s *Registrar) Register(ctx context.Context, req *RegisterRequest) (*RegisterResult, error) {
	ctx, span := registrarTracer.Start(ctx, "registration.register")
	defer span.End()
	span.SetAttributes(attribute.String("healthfair.event_id", req.EventID.String()))
	start := time.Now()

	if err := req.Validate(); err != nil {
		s.metrics.ObserveRegistration("validation_error", time.Since(start).Seconds())
		return nil, err
	}

	patient, dupes, err := s.resolvePatient(ctx, req)
	if err != nil {
		span.RecordError(err)
		s.metrics.ObserveRegistration("error", time.Since(start).Seconds())
		return nil, err
	}
	if dupes != nil {
		s.metrics.ObserveRegistration("duplicate_found", time.Since(start).Seconds())
		return &RegisterResult{Outcome: OutcomeDuplicateFound, Duplicates: dupes}, nil
	}

	existingVisit, err := s.repo.FindVisit(ctx, patient.ID, req.EventID)
	if err != nil {
		span.RecordError(err)
		s.metrics.ObserveRegistration("error", time.Since(start).Seconds())
		return nil, err
	}
	if existingVisit != nil {
		s.metrics.ObserveRegistration("already_registered", time.Since(start).Seconds())
		return nil, ErrAlreadyRegistered
	}

	var prereqID *uuid.UUID
	prereqSvc, err := s.prereq.Resolve(ctx)
	if err != nil {
		span.RecordError(err)
		s.metrics.ObserveRegistration("error", time.Since(start).Seconds())
		return nil, err
	}
	if prereqSvc != nil {
		prereqID = &prereqSvc.ID
	}

	visit := &Visit{PatientID: patient.ID, EventID: req.EventID}
	entries, requested := queue.PlanInitialEntries(visit.ID, req.ServiceIDs, prereqID)
	if err := s.repo.CreateVisit(ctx, visit, entries, requested); err != nil {
		span.RecordError(err)
		s.metrics.ObserveRegistration("error", time.Since(start).Seconds())
		return nil, err
	}

	s.metrics.ObserveRegistration("ok", time.Since(start).Seconds())
	if s.notifier != nil {
		s.notifier.QueueChanged(queue.Change{
			Kind:    queue.ChangeVisitRegistered,
			EventID: visit.EventID,
			VisitID: visit.ID,
		})
	}
	s.logger.Info("visit registered",
		"visit_id", visit.ID,
		"patient_id", patient.ID,
		"event_id", visit.EventID,
		"queue_number", visit.QueueNumber,
	)
	return &RegisterResult{Outcome: OutcomeRegistered, Visit: visit, Patient: patient}, nil
}

// resolvePatient picks or creates the patient for the request. A non-nil
// second return carries duplicate candidates and means no patient was chosen.
func (s *Registrar) resolvePatient(ctx context.Context, req *RegisterRequest) (*Patient, []Patient, error) {
	if req.ExistingPatientID != nil {
		p, err := s.repo.GetPatient(ctx, *req.ExistingPatientID)
		if err != nil {
			return nil, nil, err
		}
		return p, nil, nil
	}

	if !req.ForceCreate {
		matches, err := s.repo.FindPatientsByName(ctx, req.FirstName, req.LastName)
		if err != nil {
			return nil, nil, err
		}
		if len(matches) > 0 {
			return nil, matches, nil
		}
	}

	p := &Patient{
		FirstName:   strings.TrimSpace(req.FirstName),
		LastName:    strings.TrimSpace(req.LastName),
		Phone:       req.Phone,
		Email:       req.Email,
		Address:     req.Address,
		Gender:      req.Gender,
		DateOfBirth: req.DateOfBirth,
		Allergies:   req.Allergies,
		Conditions:  req.Conditions,
		Medications: req.Medications,
	}
	if err := s.repo.InsertPatient(ctx, p); err != nil {
		return nil, nil, err
	}
	return p, nil, nil
}

// UpdatePatient applies staff edits to an existing patient record. It is the
// "update the existing record" arm of the duplicate decision point.
func (s *Registrar) UpdatePatient(ctx context.Context, p *Patient) error {
	ctx, span := registrarTracer.Start(ctx, "registration.update_patient")
	defer span.End()

	if strings.TrimSpace(p.FirstName) == "" {
		return ErrFirstNameRequired
	}
	if strings.TrimSpace(p.LastName) == "" {
		return ErrLastNameRequired
	}
	if err := s.repo.UpdatePatient(ctx, p); err != nil {
		span.RecordError(err)
		return err
	}
	s.logger.Info("patient updated", "patient_id", p.ID)
	return nil
}

// GetPatient returns one patient record.
func (s *Registrar) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.repo.GetPatient(ctx, id)
}
