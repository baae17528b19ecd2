package appointments

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ConflictChecker answers whether a doctor/instant slot is already taken.
type ConflictChecker interface {
	HasConflict(ctx context.Context, doctorID *uuid.UUID, at time.Time, excludeID uuid.UUID) (bool, error)
}

// slotCounter is the repository slice the detector needs.
type slotCounter interface {
	CountActiveAt(ctx context.Context, doctorID uuid.UUID, at time.Time, excludeID uuid.UUID) (int64, error)
}

// SlotConflictDetector checks exact (doctor, instant) slot occupancy. The
// clinic books fixed-length slots keyed by start time, so equality, not
// overlap, is the rule. Read-only: the store's unique index remains the
// authoritative guard at commit time.
type SlotConflictDetector struct {
	slots slotCounter
}

// NewSlotConflictDetector builds a detector over the appointment store.
func NewSlotConflictDetector(slots slotCounter) *SlotConflictDetector {
	if slots == nil {
		panic("appointments: slot counter required")
	}
	return &SlotConflictDetector{slots: slots}
}

// HasConflict reports whether another active appointment occupies the slot.
// Unassigned appointments (nil doctor) never collide.
func (d *SlotConflictDetector) HasConflict(ctx context.Context, doctorID *uuid.UUID, at time.Time, excludeID uuid.UUID) (bool, error) {
	if doctorID == nil {
		return false, nil
	}
	count, err := d.slots.CountActiveAt(ctx, *doctorID, at, excludeID)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
