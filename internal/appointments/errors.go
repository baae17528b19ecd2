package appointments

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when the appointment does not exist.
	ErrNotFound = errors.New("appointment not found")

	// ErrStatusFieldForbidden is returned when the general update surface
	// receives a payload containing a status field.
	ErrStatusFieldForbidden = errors.New("status cannot be changed through the general update endpoint")
)

// InvalidTransitionError reports a (current, requested) pair outside the
// adjacency table. UnknownState is set when either side is not a recognized
// lifecycle state at all.
type InvalidTransitionError struct {
	From         Status
	To           Status
	UnknownState bool
}

func (e *InvalidTransitionError) Error() string {
	if e.UnknownState {
		return fmt.Sprintf("invalid transition: unrecognized state in %q -> %q", e.From, e.To)
	}
	return fmt.Sprintf("invalid transition: %q -> %q is not allowed", e.From, e.To)
}

// ConflictError reports that another active appointment already occupies the
// doctor/instant slot.
type ConflictError struct {
	DoctorID    uuid.UUID
	ScheduledAt time.Time
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("scheduling conflict: doctor %s already booked at %s",
		e.DoctorID, e.ScheduledAt.Format(time.RFC3339))
}

// ValidationError reports a malformed or policy-violating payload field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// PersistenceError wraps a datastore failure on the primary write path. No
// partial state was committed, so the request is safe to retry.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
