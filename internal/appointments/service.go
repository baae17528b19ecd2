package appointments

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/solmedica/clinic-ops/internal/clinic"
	"github.com/solmedica/clinic-ops/internal/clinictime"
	"github.com/solmedica/clinic-ops/internal/observability/metrics"
	"github.com/solmedica/clinic-ops/internal/patients"
	"github.com/solmedica/clinic-ops/internal/schedule"
	"github.com/solmedica/clinic-ops/pkg/logging"
)

var tracer = otel.Tracer("clinicops.internal.appointments")

// auditTimeout bounds the best-effort history write. Detached from the
// request context so a cancelled caller cannot skip the audit attempt.
const auditTimeout = 5 * time.Second

// Store is the persistence surface the manager drives.
type Store interface {
	Get(ctx context.Context, id uuid.UUID) (*Appointment, error)
	Create(ctx context.Context, appt *Appointment) error
	ApplyTransition(ctx context.Context, id uuid.UUID, newStatus Status, newScheduledAt *time.Time) (*Appointment, error)
	UpdateFields(ctx context.Context, id uuid.UUID, req UpdateRequest) (*Appointment, error)
}

// HistoryReader serves the history endpoint.
type HistoryReader interface {
	ListByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]HistoryEntry, error)
}

// ScheduleRules is the external schedule-policy collaborator consulted when
// a new instant is being written.
type ScheduleRules interface {
	ValidateSlot(ctx context.Context, at time.Time) error
}

// PatientDirectory resolves weak patient references for read models.
type PatientDirectory interface {
	Get(ctx context.Context, id uuid.UUID) (*patients.Patient, error)
}

// PolicySource supplies clinic policy for the check-in window.
type PolicySource interface {
	Get(ctx context.Context) (*clinic.Settings, error)
}

// Service is the appointment lifecycle manager. Status changes flow through
// it exclusively; the general update surface can never smuggle one in.
type Service struct {
	store     Store
	conflicts ConflictChecker
	recorder  Recorder
	history   HistoryReader
	rules     ScheduleRules
	patients  PatientDirectory
	policy    PolicySource
	zone      *clinictime.Zone
	logger    *logging.Logger
	metrics   *metrics.AppointmentMetrics

	fallbackOpenLead time.Duration
	fallbackCloseLag time.Duration
}

// ServiceConfig wires the manager's collaborators.
type ServiceConfig struct {
	Store     Store
	Conflicts ConflictChecker
	Recorder  Recorder
	History   HistoryReader
	Rules     ScheduleRules
	Patients  PatientDirectory
	Policy    PolicySource
	Zone      *clinictime.Zone
	Logger    *logging.Logger
	Metrics   *metrics.AppointmentMetrics

	// CheckinOpenLead / CheckinCloseLag bound the check-in window when no
	// clinic settings have been saved yet.
	CheckinOpenLead time.Duration
	CheckinCloseLag time.Duration
}

// NewService constructs the lifecycle manager.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Store == nil {
		panic("appointments: store required")
	}
	if cfg.Conflicts == nil {
		panic("appointments: conflict checker required")
	}
	if cfg.Recorder == nil {
		panic("appointments: history recorder required")
	}
	if cfg.Zone == nil {
		panic("appointments: clinic zone required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.CheckinOpenLead <= 0 {
		cfg.CheckinOpenLead = 30 * time.Minute
	}
	if cfg.CheckinCloseLag <= 0 {
		cfg.CheckinCloseLag = 15 * time.Minute
	}
	return &Service{
		store:     cfg.Store,
		conflicts: cfg.Conflicts,
		recorder:  cfg.Recorder,
		history:   cfg.History,
		rules:     cfg.Rules,
		patients:  cfg.Patients,
		policy:    cfg.Policy,
		zone:      cfg.Zone,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,

		fallbackOpenLead: cfg.CheckinOpenLead,
		fallbackCloseLag: cfg.CheckinCloseLag,
	}
}

// slotPolicyDenied reports whether a ValidateSlot error is a policy denial
// of the candidate slot. Anything else is an infrastructure failure (for
// example the settings store being unreachable) and must not masquerade as a
// client-side validation problem.
func slotPolicyDenied(err error) bool {
	return errors.Is(err, schedule.ErrTooSoon) ||
		errors.Is(err, schedule.ErrOutsideHours) ||
		errors.Is(err, schedule.ErrBlackout)
}

// slotHolding reports whether the status keeps the doctor/instant slot
// occupied for conflict purposes.
func slotHolding(s Status) bool {
	switch s {
	case StatusProgramada, StatusConfirmada, StatusPresente:
		return true
	}
	return false
}

// Create books a new appointment in PROGRAMADA. The slot is validated with
// the same rules as a reschedule: schedule policy first, then the conflict
// check, with the store's unique index as the final guard.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Appointment, error) {
	ctx, span := tracer.Start(ctx, "appointments.create")
	defer span.End()

	if req.PatientID == uuid.Nil {
		return nil, &ValidationError{Field: "patient_id", Reason: "required"}
	}
	if req.ScheduledAt.IsZero() {
		return nil, &ValidationError{Field: "scheduled_at", Reason: "required"}
	}
	if len(req.Reasons) == 0 {
		return nil, &ValidationError{Field: "reasons", Reason: "at least one consultation reason is required"}
	}

	if s.rules != nil {
		if err := s.rules.ValidateSlot(ctx, req.ScheduledAt); err != nil {
			if slotPolicyDenied(err) {
				return nil, &ValidationError{Field: "scheduled_at", Reason: err.Error()}
			}
			span.RecordError(err)
			return nil, &PersistenceError{Op: "load schedule policy", Err: err}
		}
	}

	if conflict, err := s.conflicts.HasConflict(ctx, req.DoctorID, req.ScheduledAt, uuid.Nil); err != nil {
		span.RecordError(err)
		return nil, &PersistenceError{Op: "conflict check", Err: err}
	} else if conflict {
		s.metrics.ObserveConflict()
		return nil, &ConflictError{DoctorID: *req.DoctorID, ScheduledAt: req.ScheduledAt}
	}

	appt := &Appointment{
		ID:           uuid.New(),
		PatientID:    req.PatientID,
		DoctorID:     req.DoctorID,
		ScheduledAt:  req.ScheduledAt,
		Reasons:      req.Reasons,
		Status:       StatusProgramada,
		IsFirstVisit: req.IsFirstVisit,
		Notes:        req.Notes,
	}
	if err := s.store.Create(ctx, appt); err != nil {
		if IsSlotUniqueViolation(err) && req.DoctorID != nil {
			s.metrics.ObserveConflict()
			return nil, &ConflictError{DoctorID: *req.DoctorID, ScheduledAt: req.ScheduledAt}
		}
		span.RecordError(err)
		return nil, &PersistenceError{Op: "create", Err: err}
	}

	s.logger.Info("appointment created",
		"appointment_id", appt.ID, "patient_id", appt.PatientID, "scheduled_at", appt.ScheduledAt)
	return appt, nil
}

// Get loads a single appointment.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.store.Get(ctx, id)
}

// Update applies a partial non-status edit. The handler has already rejected
// payloads naming a status; this re-runs the conflict check when the slot or
// doctor changes, independent of any status transition.
func (s *Service) Update(ctx context.Context, id uuid.UUID, req UpdateRequest) (*Appointment, error) {
	ctx, span := tracer.Start(ctx, "appointments.update")
	defer span.End()
	span.SetAttributes(attribute.String("clinicops.appointment_id", id.String()))

	current, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	slotChanged := req.ScheduledAt != nil || req.DoctorID != nil
	if slotChanged && slotHolding(current.Status) {
		doctor := current.DoctorID
		if req.DoctorID != nil {
			doctor = req.DoctorID
		}
		at := current.ScheduledAt
		if req.ScheduledAt != nil {
			at = *req.ScheduledAt
		}
		if s.rules != nil && req.ScheduledAt != nil {
			if err := s.rules.ValidateSlot(ctx, at); err != nil {
				if slotPolicyDenied(err) {
					return nil, &ValidationError{Field: "scheduled_at", Reason: err.Error()}
				}
				span.RecordError(err)
				return nil, &PersistenceError{Op: "load schedule policy", Err: err}
			}
		}
		if conflict, err := s.conflicts.HasConflict(ctx, doctor, at, id); err != nil {
			span.RecordError(err)
			return nil, &PersistenceError{Op: "conflict check", Err: err}
		} else if conflict {
			s.metrics.ObserveConflict()
			return nil, &ConflictError{DoctorID: *doctor, ScheduledAt: at}
		}
	}

	updated, err := s.store.UpdateFields(ctx, id, req)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		if IsSlotUniqueViolation(err) {
			s.metrics.ObserveConflict()
			at := current.ScheduledAt
			if req.ScheduledAt != nil {
				at = *req.ScheduledAt
			}
			doctor := current.DoctorID
			if req.DoctorID != nil {
				doctor = req.DoctorID
			}
			if doctor != nil {
				return nil, &ConflictError{DoctorID: *doctor, ScheduledAt: at}
			}
		}
		span.RecordError(err)
		return nil, &PersistenceError{Op: "update", Err: err}
	}
	return updated, nil
}

// RequestTransition moves an appointment to a new lifecycle state. Ordering
// is deliberate: the pure transition table first (cheapest, most
// restrictive), then slot checks, then the commit, then the best-effort
// audit write. Denials happen before any write, so a denied transition has
// zero side effects.
func (s *Service) RequestTransition(ctx context.Context, id uuid.UUID, req TransitionRequest, actor string) (*TransitionResult, error) {
	ctx, span := tracer.Start(ctx, "appointments.transition")
	defer span.End()
	span.SetAttributes(
		attribute.String("clinicops.appointment_id", id.String()),
		attribute.String("clinicops.requested_status", string(req.NewStatus)),
	)
	started := time.Now()

	current, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := ValidateTransition(current.Status, req.NewStatus); err != nil {
		s.metrics.ObserveTransition(string(current.Status), string(req.NewStatus), "denied")
		s.metrics.ObserveTransitionLatency("denied", time.Since(started).Seconds())
		return nil, err
	}

	// Effective slot: explicit payload override, else current values.
	effectiveAt := current.ScheduledAt
	var newAt *time.Time
	if req.NewScheduledAt != nil {
		if req.NewStatus != StatusReagendada {
			return nil, &ValidationError{Field: "new_scheduled_at", Reason: "only REAGENDADA may move the slot"}
		}
		effectiveAt = *req.NewScheduledAt
		newAt = req.NewScheduledAt
	}

	if req.NewStatus == StatusReagendada && newAt != nil && s.rules != nil {
		if err := s.rules.ValidateSlot(ctx, effectiveAt); err != nil {
			if slotPolicyDenied(err) {
				s.metrics.ObserveTransition(string(current.Status), string(req.NewStatus), "denied")
				return nil, &ValidationError{Field: "new_scheduled_at", Reason: err.Error()}
			}
			span.RecordError(err)
			return nil, &PersistenceError{Op: "load schedule policy", Err: err}
		}
	}

	// Conflict check only when the target state will occupy the slot; always
	// against the slot actually being written.
	if slotHolding(req.NewStatus) || newAt != nil {
		if conflict, err := s.conflicts.HasConflict(ctx, current.DoctorID, effectiveAt, id); err != nil {
			span.RecordError(err)
			return nil, &PersistenceError{Op: "conflict check", Err: err}
		} else if conflict {
			s.metrics.ObserveConflict()
			s.metrics.ObserveTransition(string(current.Status), string(req.NewStatus), "conflict")
			return nil, &ConflictError{DoctorID: *current.DoctorID, ScheduledAt: effectiveAt}
		}
	}

	updated, err := s.store.ApplyTransition(ctx, id, req.NewStatus, newAt)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		if IsSlotUniqueViolation(err) && current.DoctorID != nil {
			s.metrics.ObserveConflict()
			return nil, &ConflictError{DoctorID: *current.DoctorID, ScheduledAt: effectiveAt}
		}
		span.RecordError(err)
		s.metrics.ObserveTransitionLatency("error", time.Since(started).Seconds())
		return nil, &PersistenceError{Op: "apply transition", Err: err}
	}

	result := &TransitionResult{
		Appointment:    updated,
		PreviousStatus: current.Status,
		ChangedAt:      updated.UpdatedAt,
		ChangedBy:      actor,
	}

	// Audit is a compliance concern, not a correctness gate: the status is
	// already committed, so a failed history write degrades to a warning.
	entry := HistoryEntry{
		AppointmentID:  id,
		PreviousStatus: current.Status,
		NewStatus:      req.NewStatus,
		ChangedAt:      updated.UpdatedAt,
		ChangedBy:      actor,
		Note:           req.Note,
	}
	if newAt != nil {
		prev := current.ScheduledAt
		entry.PreviousScheduledAt = &prev
		entry.NewScheduledAt = newAt
	}
	auditCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditTimeout)
	defer cancel()
	if err := s.recorder.Record(auditCtx, entry); err != nil {
		s.metrics.ObserveAuditFailure()
		s.logger.Warn("history write failed after committed transition",
			"appointment_id", id,
			"previous_status", current.Status,
			"new_status", req.NewStatus,
			"error", err,
		)
		result.AuditPending = true
	}

	s.metrics.ObserveTransition(string(current.Status), string(req.NewStatus), "allowed")
	s.metrics.ObserveTransitionLatency("allowed", time.Since(started).Seconds())
	s.logger.Info("appointment transitioned",
		"appointment_id", id,
		"previous_status", current.Status,
		"new_status", req.NewStatus,
		"actor", actor,
	)
	return result, nil
}

// History returns the ordered audit trail plus the companion summary.
func (s *Service) History(ctx context.Context, id uuid.UUID) (*HistorySummary, error) {
	appt, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	summary := &HistorySummary{
		AppointmentID: id,
		CurrentStatus: appt.Status,
		ClinicNow:     s.zone.Now(),
	}

	if s.patients != nil {
		patient, err := s.patients.Get(ctx, appt.PatientID)
		if err != nil {
			return nil, err
		}
		summary.PatientName = patient.DisplayName()
	}

	if s.history != nil {
		entries, err := s.history.ListByAppointment(ctx, id)
		if err != nil {
			return nil, &PersistenceError{Op: "list history", Err: err}
		}
		summary.Entries = entries
		summary.ChangeCount = len(entries)
	}
	return summary, nil
}

// CheckinAssessmentFor classifies a check-in attempt for the appointment
// using current clinic policy. Classification only: whether the front desk
// may still record PRESENTE is the transition table's decision.
func (s *Service) CheckinAssessmentFor(ctx context.Context, id uuid.UUID) (*CheckinAssessment, error) {
	appt, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	openLead, closeLag := s.fallbackOpenLead, s.fallbackCloseLag
	if s.policy != nil {
		if settings, err := s.policy.Get(ctx); err == nil {
			openLead = time.Duration(settings.CheckinOpenLeadMinutes) * time.Minute
			closeLag = time.Duration(settings.CheckinCloseLagMinutes) * time.Minute
		} else {
			s.logger.Warn("clinic policy unavailable, using default check-in window", "error", err)
		}
	}

	window := NewCheckinWindow(s.zone, openLead, closeLag)
	assessment := window.Evaluate(appt.ScheduledAt, s.zone.Now())
	s.metrics.ObserveCheckin(string(assessment.State))
	return &assessment, nil
}
