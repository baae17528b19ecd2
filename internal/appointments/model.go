// Package appointments implements the appointment lifecycle: the status
// state machine, slot conflict detection, the check-in window, and the
// append-only status history.
package appointments

import (
	"time"

	"github.com/google/uuid"
)

// Status is an appointment lifecycle state. The values mirror the clinic's
// own vocabulary and are stored verbatim.
type Status string

const (
	StatusProgramada Status = "PROGRAMADA"
	StatusConfirmada Status = "CONFIRMADA"
	StatusPresente   Status = "PRESENTE"
	StatusCompletada Status = "COMPLETADA"
	StatusCancelada  Status = "CANCELADA"
	StatusReagendada Status = "REAGENDADA"
	StatusNoAsistio  Status = "NO_ASISTIO"
)

// Appointment is a bound reservation of a patient against an optional doctor
// at a specific instant.
type Appointment struct {
	ID           uuid.UUID  `json:"id"`
	PatientID    uuid.UUID  `json:"patient_id"`
	DoctorID     *uuid.UUID `json:"doctor_id,omitempty"`
	ScheduledAt  time.Time  `json:"scheduled_at"`
	Reasons      []string   `json:"reasons"`
	Status       Status     `json:"status"`
	IsFirstVisit bool       `json:"is_first_visit"`
	Notes        string     `json:"notes,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// HistoryEntry is an immutable record of a single accepted status change.
// Entries are only ever inserted; nothing in this package updates or deletes
// them.
type HistoryEntry struct {
	ID                  uuid.UUID  `json:"id"`
	AppointmentID       uuid.UUID  `json:"appointment_id"`
	PreviousStatus      Status     `json:"previous_status"`
	NewStatus           Status     `json:"new_status"`
	ChangedAt           time.Time  `json:"changed_at"`
	ChangedBy           string     `json:"changed_by,omitempty"`
	Note                string     `json:"note,omitempty"`
	PreviousScheduledAt *time.Time `json:"previous_scheduled_at,omitempty"`
	NewScheduledAt      *time.Time `json:"new_scheduled_at,omitempty"`
}

// CreateRequest is the payload for booking a new appointment. New
// appointments always start in PROGRAMADA.
type CreateRequest struct {
	PatientID    uuid.UUID  `json:"patient_id"`
	DoctorID     *uuid.UUID `json:"doctor_id,omitempty"`
	ScheduledAt  time.Time  `json:"scheduled_at"`
	Reasons      []string   `json:"reasons"`
	IsFirstVisit bool       `json:"is_first_visit"`
	Notes        string     `json:"notes,omitempty"`
}

// UpdateRequest is the payload for the general (non-status) update surface.
// Status is deliberately absent: status changes go through TransitionRequest
// only.
type UpdateRequest struct {
	DoctorID     *uuid.UUID `json:"doctor_id,omitempty"`
	ScheduledAt  *time.Time `json:"scheduled_at,omitempty"`
	Reasons      []string   `json:"reasons,omitempty"`
	IsFirstVisit *bool      `json:"is_first_visit,omitempty"`
	Notes        *string    `json:"notes,omitempty"`
}

// TransitionRequest is the payload for the status transition surface.
type TransitionRequest struct {
	NewStatus      Status     `json:"new_status"`
	NewScheduledAt *time.Time `json:"new_scheduled_at,omitempty"`
	Note           string     `json:"note,omitempty"`
}

// TransitionResult carries the updated appointment plus metadata about the
// accepted transition.
type TransitionResult struct {
	Appointment    *Appointment `json:"appointment"`
	PreviousStatus Status       `json:"previous_status"`
	ChangedAt      time.Time    `json:"changed_at"`
	ChangedBy      string       `json:"changed_by,omitempty"`
	// AuditPending is set when the history write failed after the status
	// was already committed. The transition itself still succeeded.
	AuditPending bool `json:"audit_pending,omitempty"`
}

// HistorySummary is the companion read model for the history endpoint.
type HistorySummary struct {
	AppointmentID uuid.UUID      `json:"appointment_id"`
	CurrentStatus Status         `json:"current_status"`
	PatientName   string         `json:"patient_name"`
	ClinicNow     time.Time      `json:"clinic_now"`
	ChangeCount   int            `json:"change_count"`
	Entries       []HistoryEntry `json:"entries"`
}
