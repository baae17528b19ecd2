package appointments

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solmedica/clinic-ops/internal/clinic"
	"github.com/solmedica/clinic-ops/internal/clinictime"
	"github.com/solmedica/clinic-ops/internal/patients"
	"github.com/solmedica/clinic-ops/internal/schedule"
)

type fakeStore struct {
	appts map[uuid.UUID]*Appointment

	createErr     error
	applyErr      error
	applyCalls    int
	lastNewStatus Status
	lastNewAt     *time.Time
}

func newFakeStore(appts ...*Appointment) *fakeStore {
	s := &fakeStore{appts: map[uuid.UUID]*Appointment{}}
	for _, a := range appts {
		cp := *a
		s.appts[a.ID] = &cp
	}
	return s
}

func (s *fakeStore) Get(_ context.Context, id uuid.UUID) (*Appointment, error) {
	a, ok := s.appts[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *fakeStore) Create(_ context.Context, appt *Appointment) error {
	if s.createErr != nil {
		return s.createErr
	}
	now := time.Now().UTC()
	appt.CreatedAt = now
	appt.UpdatedAt = now
	cp := *appt
	s.appts[appt.ID] = &cp
	return nil
}

func (s *fakeStore) ApplyTransition(_ context.Context, id uuid.UUID, newStatus Status, newScheduledAt *time.Time) (*Appointment, error) {
	s.applyCalls++
	s.lastNewStatus = newStatus
	s.lastNewAt = newScheduledAt
	if s.applyErr != nil {
		return nil, s.applyErr
	}
	a, ok := s.appts[id]
	if !ok {
		return nil, ErrNotFound
	}
	a.Status = newStatus
	if newScheduledAt != nil {
		a.ScheduledAt = *newScheduledAt
	}
	a.UpdatedAt = time.Now().UTC()
	cp := *a
	return &cp, nil
}

func (s *fakeStore) UpdateFields(_ context.Context, id uuid.UUID, req UpdateRequest) (*Appointment, error) {
	a, ok := s.appts[id]
	if !ok {
		return nil, ErrNotFound
	}
	if req.DoctorID != nil {
		a.DoctorID = req.DoctorID
	}
	if req.ScheduledAt != nil {
		a.ScheduledAt = *req.ScheduledAt
	}
	if req.Reasons != nil {
		a.Reasons = req.Reasons
	}
	if req.Notes != nil {
		a.Notes = *req.Notes
	}
	a.UpdatedAt = time.Now().UTC()
	cp := *a
	return &cp, nil
}

type fakeConflicts struct {
	conflict bool
	err      error

	calls      int
	lastDoctor *uuid.UUID
	lastAt     time.Time
	lastExcl   uuid.UUID
}

func (f *fakeConflicts) HasConflict(_ context.Context, doctorID *uuid.UUID, at time.Time, excludeID uuid.UUID) (bool, error) {
	f.calls++
	f.lastDoctor = doctorID
	f.lastAt = at
	f.lastExcl = excludeID
	return f.conflict, f.err
}

type fakeRecorder struct {
	entries []HistoryEntry
	err     error
}

func (f *fakeRecorder) Record(_ context.Context, entry HistoryEntry) error {
	if f.err != nil {
		return f.err
	}
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeRecorder) ListByAppointment(_ context.Context, appointmentID uuid.UUID) ([]HistoryEntry, error) {
	out := []HistoryEntry{}
	for _, e := range f.entries {
		if e.AppointmentID == appointmentID {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakeRules struct {
	err    error
	calls  int
	lastAt time.Time
}

func (f *fakeRules) ValidateSlot(_ context.Context, at time.Time) error {
	f.calls++
	f.lastAt = at
	return f.err
}

type fakePatients struct {
	patient *patients.Patient
}

func (f *fakePatients) Get(_ context.Context, id uuid.UUID) (*patients.Patient, error) {
	if f.patient == nil {
		return nil, patients.ErrNotFound
	}
	return f.patient, nil
}

type fakePolicy struct {
	settings *clinic.Settings
	err      error
}

func (f *fakePolicy) Get(_ context.Context) (*clinic.Settings, error) {
	return f.settings, f.err
}

type serviceFixture struct {
	service   *Service
	store     *fakeStore
	conflicts *fakeConflicts
	recorder  *fakeRecorder
	rules     *fakeRules
	policy    *fakePolicy
	zone      *clinictime.Zone
	now       time.Time
}

func newServiceFixture(t *testing.T, appts ...*Appointment) *serviceFixture {
	t.Helper()
	zone, err := clinictime.Load("America/Mexico_City")
	require.NoError(t, err)
	now := time.Date(2025, 6, 17, 9, 45, 0, 0, zone.Location())
	zone = zone.WithClock(clinictime.FixedClock{Instant: now})

	f := &serviceFixture{
		store:     newFakeStore(appts...),
		conflicts: &fakeConflicts{},
		recorder:  &fakeRecorder{},
		rules:     &fakeRules{},
		policy:    &fakePolicy{settings: clinic.DefaultSettings()},
		zone:      zone,
		now:       now,
	}
	f.service = NewService(ServiceConfig{
		Store:     f.store,
		Conflicts: f.conflicts,
		Recorder:  f.recorder,
		History:   f.recorder,
		Rules:     f.rules,
		Patients:  &fakePatients{patient: &patients.Patient{FirstName: "Ana", LastName: "Gómez"}},
		Policy:    f.policy,
		Zone:      zone,
	})
	return f
}

func scheduledAppointment(status Status) *Appointment {
	doctor := uuid.New()
	return &Appointment{
		ID:          uuid.New(),
		PatientID:   uuid.New(),
		DoctorID:    &doctor,
		ScheduledAt: time.Date(2025, 6, 17, 10, 0, 0, 0, time.UTC),
		Reasons:     []string{"control"},
		Status:      status,
	}
}

func TestService_Create(t *testing.T) {
	f := newServiceFixture(t)
	doctor := uuid.New()

	appt, err := f.service.Create(context.Background(), CreateRequest{
		PatientID:   uuid.New(),
		DoctorID:    &doctor,
		ScheduledAt: f.now.Add(48 * time.Hour),
		Reasons:     []string{"primera consulta"},
	})
	require.NoError(t, err)
	assert.Equal(t, StatusProgramada, appt.Status)
	assert.NotEqual(t, uuid.Nil, appt.ID)
	assert.Equal(t, 1, f.rules.calls)
	assert.Equal(t, 1, f.conflicts.calls)
}

func TestService_Create_Validation(t *testing.T) {
	f := newServiceFixture(t)

	tests := []struct {
		name  string
		req   CreateRequest
		field string
	}{
		{"missing patient", CreateRequest{ScheduledAt: f.now, Reasons: []string{"x"}}, "patient_id"},
		{"missing instant", CreateRequest{PatientID: uuid.New(), Reasons: []string{"x"}}, "scheduled_at"},
		{"missing reasons", CreateRequest{PatientID: uuid.New(), ScheduledAt: f.now}, "reasons"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.service.Create(context.Background(), tt.req)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestService_Create_ScheduleRuleRejected(t *testing.T) {
	f := newServiceFixture(t)
	f.rules.err = fmt.Errorf("%w: 19:30 is outside 09:00-18:00", schedule.ErrOutsideHours)
	doctor := uuid.New()

	_, err := f.service.Create(context.Background(), CreateRequest{
		PatientID:   uuid.New(),
		DoctorID:    &doctor,
		ScheduledAt: f.now.Add(time.Hour),
		Reasons:     []string{"control"},
	})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "scheduled_at", verr.Field)
	assert.Zero(t, f.conflicts.calls)
}

// A failure to load the schedule policy is an infrastructure problem, not a
// problem with the caller's slot. It must surface as a persistence error,
// never as a validation error.
func TestService_Create_SettingsOutageIsPersistenceError(t *testing.T) {
	f := newServiceFixture(t)
	f.rules.err = fmt.Errorf("schedule: load settings: %w", errors.New("redis down"))
	doctor := uuid.New()

	_, err := f.service.Create(context.Background(), CreateRequest{
		PatientID:   uuid.New(),
		DoctorID:    &doctor,
		ScheduledAt: f.now.Add(48 * time.Hour),
		Reasons:     []string{"control"},
	})

	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	var verr *ValidationError
	assert.False(t, errors.As(err, &verr))
	assert.Empty(t, f.store.appts)
}

func TestService_Create_Conflict(t *testing.T) {
	f := newServiceFixture(t)
	f.conflicts.conflict = true
	doctor := uuid.New()

	_, err := f.service.Create(context.Background(), CreateRequest{
		PatientID:   uuid.New(),
		DoctorID:    &doctor,
		ScheduledAt: f.now.Add(time.Hour),
		Reasons:     []string{"control"},
	})
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, doctor, conflict.DoctorID)
	assert.Empty(t, f.store.appts)
}

func TestService_RequestTransition_Allowed(t *testing.T) {
	appt := scheduledAppointment(StatusProgramada)
	f := newServiceFixture(t, appt)

	result, err := f.service.RequestTransition(context.Background(), appt.ID,
		TransitionRequest{NewStatus: StatusConfirmada, Note: "confirmó por teléfono"}, "staff-7")
	require.NoError(t, err)

	assert.Equal(t, StatusConfirmada, result.Appointment.Status)
	assert.Equal(t, StatusProgramada, result.PreviousStatus)
	assert.Equal(t, "staff-7", result.ChangedBy)
	assert.False(t, result.AuditPending)

	require.Len(t, f.recorder.entries, 1)
	entry := f.recorder.entries[0]
	assert.Equal(t, appt.ID, entry.AppointmentID)
	assert.Equal(t, StatusProgramada, entry.PreviousStatus)
	assert.Equal(t, StatusConfirmada, entry.NewStatus)
	assert.Equal(t, "staff-7", entry.ChangedBy)
	assert.Equal(t, "confirmó por teléfono", entry.Note)
	assert.Nil(t, entry.NewScheduledAt)
}

// A denied transition must leave no trace: status unchanged, no store write,
// no history entry.
func TestService_RequestTransition_DeniedHasNoSideEffects(t *testing.T) {
	appt := scheduledAppointment(StatusProgramada)
	f := newServiceFixture(t, appt)

	_, err := f.service.RequestTransition(context.Background(), appt.ID,
		TransitionRequest{NewStatus: StatusCompletada}, "staff-7")

	var invalid *InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.Zero(t, f.store.applyCalls)
	assert.Empty(t, f.recorder.entries)

	reloaded, err := f.store.Get(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusProgramada, reloaded.Status)
}

func TestService_RequestTransition_TerminalStateDeniesEverything(t *testing.T) {
	appt := scheduledAppointment(StatusCompletada)
	f := newServiceFixture(t, appt)

	for _, target := range allStatuses {
		_, err := f.service.RequestTransition(context.Background(), appt.ID,
			TransitionRequest{NewStatus: target}, "staff-7")
		var invalid *InvalidTransitionError
		assert.ErrorAs(t, err, &invalid, "COMPLETADA -> %s must be denied", target)
	}
	assert.Zero(t, f.store.applyCalls)
}

func TestService_RequestTransition_UnknownStatus(t *testing.T) {
	appt := scheduledAppointment(StatusProgramada)
	f := newServiceFixture(t, appt)

	_, err := f.service.RequestTransition(context.Background(), appt.ID,
		TransitionRequest{NewStatus: Status("EN_ESPERA")}, "staff-7")

	var invalid *InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.True(t, invalid.UnknownState)
}

func TestService_RequestTransition_AuditFailureDoesNotFailTransition(t *testing.T) {
	appt := scheduledAppointment(StatusConfirmada)
	f := newServiceFixture(t, appt)
	f.recorder.err = errors.New("history table unavailable")

	result, err := f.service.RequestTransition(context.Background(), appt.ID,
		TransitionRequest{NewStatus: StatusPresente}, "front-desk")
	require.NoError(t, err)
	assert.True(t, result.AuditPending)
	assert.Equal(t, StatusPresente, result.Appointment.Status)

	reloaded, err := f.store.Get(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPresente, reloaded.Status)
}

func TestService_RequestTransition_RescheduleOnlyForReagendada(t *testing.T) {
	appt := scheduledAppointment(StatusProgramada)
	f := newServiceFixture(t, appt)
	newAt := appt.ScheduledAt.Add(24 * time.Hour)

	_, err := f.service.RequestTransition(context.Background(), appt.ID,
		TransitionRequest{NewStatus: StatusConfirmada, NewScheduledAt: &newAt}, "staff-7")

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "new_scheduled_at", verr.Field)
	assert.Zero(t, f.store.applyCalls)
}

func TestService_RequestTransition_ReagendadaMovesSlot(t *testing.T) {
	appt := scheduledAppointment(StatusConfirmada)
	f := newServiceFixture(t, appt)
	newAt := appt.ScheduledAt.Add(24 * time.Hour)

	result, err := f.service.RequestTransition(context.Background(), appt.ID,
		TransitionRequest{NewStatus: StatusReagendada, NewScheduledAt: &newAt}, "staff-7")
	require.NoError(t, err)

	assert.Equal(t, StatusReagendada, result.Appointment.Status)
	assert.True(t, result.Appointment.ScheduledAt.Equal(newAt))

	// Schedule policy and conflict check both ran against the new instant.
	assert.True(t, f.rules.lastAt.Equal(newAt))
	assert.True(t, f.conflicts.lastAt.Equal(newAt))
	assert.Equal(t, appt.ID, f.conflicts.lastExcl)

	require.Len(t, f.recorder.entries, 1)
	entry := f.recorder.entries[0]
	require.NotNil(t, entry.PreviousScheduledAt)
	assert.True(t, entry.PreviousScheduledAt.Equal(appt.ScheduledAt))
	require.NotNil(t, entry.NewScheduledAt)
	assert.True(t, entry.NewScheduledAt.Equal(newAt))
}

func TestService_RequestTransition_ReagendadaPolicyDenied(t *testing.T) {
	appt := scheduledAppointment(StatusConfirmada)
	f := newServiceFixture(t, appt)
	f.rules.err = fmt.Errorf("%w: need 60 minutes notice, got 10", schedule.ErrTooSoon)
	newAt := appt.ScheduledAt.Add(24 * time.Hour)

	_, err := f.service.RequestTransition(context.Background(), appt.ID,
		TransitionRequest{NewStatus: StatusReagendada, NewScheduledAt: &newAt}, "staff-7")

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "new_scheduled_at", verr.Field)
	assert.Zero(t, f.store.applyCalls)
}

func TestService_RequestTransition_SettingsOutageIsPersistenceError(t *testing.T) {
	appt := scheduledAppointment(StatusConfirmada)
	f := newServiceFixture(t, appt)
	f.rules.err = fmt.Errorf("schedule: load settings: %w", errors.New("redis down"))
	newAt := appt.ScheduledAt.Add(24 * time.Hour)

	_, err := f.service.RequestTransition(context.Background(), appt.ID,
		TransitionRequest{NewStatus: StatusReagendada, NewScheduledAt: &newAt}, "staff-7")

	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	var verr *ValidationError
	assert.False(t, errors.As(err, &verr))

	// Nothing committed, nothing audited.
	assert.Zero(t, f.store.applyCalls)
	assert.Empty(t, f.recorder.entries)
	reloaded, err := f.store.Get(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmada, reloaded.Status)
}

func TestService_RequestTransition_ConflictOnSlotHoldingTarget(t *testing.T) {
	appt := scheduledAppointment(StatusCancelada)
	f := newServiceFixture(t, appt)
	f.conflicts.conflict = true

	// Rebooking a cancelled appointment re-occupies the slot, so it must pass
	// the conflict check again.
	_, err := f.service.RequestTransition(context.Background(), appt.ID,
		TransitionRequest{NewStatus: StatusProgramada}, "staff-7")

	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Zero(t, f.store.applyCalls)
	assert.Empty(t, f.recorder.entries)
}

func TestService_RequestTransition_ReleasingTransitionSkipsConflictCheck(t *testing.T) {
	appt := scheduledAppointment(StatusProgramada)
	f := newServiceFixture(t, appt)
	f.conflicts.conflict = true

	// Cancelling releases the slot; an occupied slot elsewhere is irrelevant.
	result, err := f.service.RequestTransition(context.Background(), appt.ID,
		TransitionRequest{NewStatus: StatusCancelada}, "staff-7")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelada, result.Appointment.Status)
	assert.Zero(t, f.conflicts.calls)
}

func TestService_RequestTransition_CancelThenRebook(t *testing.T) {
	appt := scheduledAppointment(StatusProgramada)
	f := newServiceFixture(t, appt)

	_, err := f.service.RequestTransition(context.Background(), appt.ID,
		TransitionRequest{NewStatus: StatusCancelada}, "staff-7")
	require.NoError(t, err)

	result, err := f.service.RequestTransition(context.Background(), appt.ID,
		TransitionRequest{NewStatus: StatusProgramada}, "staff-7")
	require.NoError(t, err)
	assert.Equal(t, StatusProgramada, result.Appointment.Status)
	require.Len(t, f.recorder.entries, 2)
}

func TestService_RequestTransition_NotFound(t *testing.T) {
	f := newServiceFixture(t)
	_, err := f.service.RequestTransition(context.Background(), uuid.New(),
		TransitionRequest{NewStatus: StatusConfirmada}, "staff-7")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_Update_SlotChangeRunsConflictCheck(t *testing.T) {
	appt := scheduledAppointment(StatusConfirmada)
	f := newServiceFixture(t, appt)
	newAt := appt.ScheduledAt.Add(2 * time.Hour)

	_, err := f.service.Update(context.Background(), appt.ID, UpdateRequest{ScheduledAt: &newAt})
	require.NoError(t, err)
	assert.Equal(t, 1, f.conflicts.calls)
	assert.True(t, f.conflicts.lastAt.Equal(newAt))
	assert.Equal(t, appt.ID, f.conflicts.lastExcl)
}

func TestService_Update_SettingsOutageIsPersistenceError(t *testing.T) {
	appt := scheduledAppointment(StatusConfirmada)
	f := newServiceFixture(t, appt)
	f.rules.err = fmt.Errorf("schedule: load settings: %w", errors.New("redis down"))
	newAt := appt.ScheduledAt.Add(2 * time.Hour)

	_, err := f.service.Update(context.Background(), appt.ID, UpdateRequest{ScheduledAt: &newAt})

	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	var verr *ValidationError
	assert.False(t, errors.As(err, &verr))
	assert.Zero(t, f.conflicts.calls)
}

func TestService_Update_NonSlotFieldsSkipConflictCheck(t *testing.T) {
	appt := scheduledAppointment(StatusConfirmada)
	f := newServiceFixture(t, appt)
	notes := "alergia a penicilina"

	updated, err := f.service.Update(context.Background(), appt.ID, UpdateRequest{Notes: &notes})
	require.NoError(t, err)
	assert.Equal(t, notes, updated.Notes)
	assert.Zero(t, f.conflicts.calls)
}

func TestService_Update_InactiveStatusSkipsConflictCheck(t *testing.T) {
	appt := scheduledAppointment(StatusCancelada)
	f := newServiceFixture(t, appt)
	f.conflicts.conflict = true
	newAt := appt.ScheduledAt.Add(2 * time.Hour)

	// A cancelled appointment holds no slot, so editing its instant cannot
	// collide with anything.
	_, err := f.service.Update(context.Background(), appt.ID, UpdateRequest{ScheduledAt: &newAt})
	require.NoError(t, err)
	assert.Zero(t, f.conflicts.calls)
}

func TestService_History(t *testing.T) {
	appt := scheduledAppointment(StatusConfirmada)
	f := newServiceFixture(t, appt)
	f.recorder.entries = []HistoryEntry{
		{AppointmentID: appt.ID, PreviousStatus: StatusProgramada, NewStatus: StatusConfirmada},
	}

	summary, err := f.service.History(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, appt.ID, summary.AppointmentID)
	assert.Equal(t, StatusConfirmada, summary.CurrentStatus)
	assert.Equal(t, "Ana Gómez", summary.PatientName)
	assert.Equal(t, 1, summary.ChangeCount)
	assert.True(t, summary.ClinicNow.Equal(f.now))
}

func TestService_CheckinAssessmentFor(t *testing.T) {
	appt := scheduledAppointment(StatusConfirmada)
	f := newServiceFixture(t, appt)
	// Slot at 10:00 clinic time; the fixture clock reads 09:45.
	appt.ScheduledAt = time.Date(2025, 6, 17, 10, 0, 0, 0, f.zone.Location())
	f.store.appts[appt.ID] = appt

	assessment, err := f.service.CheckinAssessmentFor(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, CheckinOpen, assessment.State)
}

func TestService_CheckinAssessmentFor_PolicyDriven(t *testing.T) {
	appt := scheduledAppointment(StatusConfirmada)
	f := newServiceFixture(t, appt)
	appt.ScheduledAt = f.now.Add(-2 * time.Hour)
	f.store.appts[appt.ID] = appt

	// A generous close lag keeps the window open two hours after the slot.
	f.policy.settings.CheckinCloseLagMinutes = 180
	assessment, err := f.service.CheckinAssessmentFor(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, CheckinOpen, assessment.State)
}

func TestService_CheckinAssessmentFor_PolicyUnavailableFallsBack(t *testing.T) {
	appt := scheduledAppointment(StatusConfirmada)
	f := newServiceFixture(t, appt)
	appt.ScheduledAt = f.now.Add(-time.Hour)
	f.store.appts[appt.ID] = appt
	f.policy.err = errors.New("redis down")

	assessment, err := f.service.CheckinAssessmentFor(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, CheckinExpired, assessment.State)
}
