// Package schedule validates candidate slots against clinic scheduling
// policy: business hours, minimum lead time, and blackout ranges.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/solmedica/clinic-ops/internal/clinic"
	"github.com/solmedica/clinic-ops/internal/clinictime"
)

var (
	// ErrTooSoon is returned when the slot violates the minimum lead time.
	ErrTooSoon = errors.New("slot is below the minimum booking lead time")

	// ErrOutsideHours is returned when the slot falls outside business hours.
	ErrOutsideHours = errors.New("slot is outside clinic business hours")

	// ErrBlackout is returned when the slot falls in a blackout range.
	ErrBlackout = errors.New("slot falls on a clinic blackout date")
)

// SettingsSource supplies the current clinic policy.
type SettingsSource interface {
	Get(ctx context.Context) (*clinic.Settings, error)
}

// Rules evaluates candidate slots in the clinic zone.
type Rules struct {
	settings SettingsSource
	zone     *clinictime.Zone
}

// NewRules builds the schedule-rules validator.
func NewRules(settings SettingsSource, zone *clinictime.Zone) *Rules {
	if settings == nil {
		panic("schedule: settings source required")
	}
	if zone == nil {
		panic("schedule: clinic zone required")
	}
	return &Rules{settings: settings, zone: zone}
}

// ValidateSlot checks a candidate scheduled instant against clinic policy.
// All comparisons happen in the clinic zone.
func (r *Rules) ValidateSlot(ctx context.Context, at time.Time) error {
	settings, err := r.settings.Get(ctx)
	if err != nil {
		return fmt.Errorf("schedule: load settings: %w", err)
	}

	local := r.zone.In(at)
	now := r.zone.Now()

	if minutes := clinictime.MinutesBetween(now, local); minutes < settings.MinLeadMinutes {
		return fmt.Errorf("%w: need %d minutes notice, got %d",
			ErrTooSoon, settings.MinLeadMinutes, minutes)
	}

	for _, b := range settings.Blackouts {
		if b.Contains(local) {
			if b.Reason != "" {
				return fmt.Errorf("%w (%s)", ErrBlackout, b.Reason)
			}
			return ErrBlackout
		}
	}

	hours := settings.BusinessHours.ForWeekday(local.Weekday())
	if hours == nil {
		return fmt.Errorf("%w: clinic is closed on %s", ErrOutsideHours, local.Weekday())
	}
	hhmm := local.Format("15:04")
	if hhmm < hours.Open || hhmm >= hours.Close {
		return fmt.Errorf("%w: %s is outside %s-%s", ErrOutsideHours, hhmm, hours.Open, hours.Close)
	}

	return nil
}
