package appointments

import (
	"time"

	"github.com/solmedica/clinic-ops/internal/clinictime"
)

// CheckinState classifies a check-in attempt relative to the window.
type CheckinState string

const (
	CheckinTooEarly CheckinState = "TOO_EARLY"
	CheckinOpen     CheckinState = "OPEN"
	CheckinExpired  CheckinState = "EXPIRED"
)

// CheckinAssessment is the result of evaluating an attempt. Only one of
// MinutesUntilOpen / MinutesSinceClose is meaningful, depending on State.
type CheckinAssessment struct {
	State             CheckinState `json:"state"`
	OpensAt           time.Time    `json:"opens_at"`
	ClosesAt          time.Time    `json:"closes_at"`
	MinutesUntilOpen  int          `json:"minutes_until_open,omitempty"`
	MinutesSinceClose int          `json:"minutes_since_close,omitempty"`
}

// CheckinWindow evaluates arrival attempts against the scheduled slot. The
// open lead is fixed clinic practice; the close lag is a clinic policy
// parameter, never hard-coded by callers.
type CheckinWindow struct {
	zone     *clinictime.Zone
	openLead time.Duration
	closeLag time.Duration
}

// NewCheckinWindow builds an evaluator. Non-positive durations fall back to
// the clinic defaults (open 30 minutes before, close 15 minutes after).
func NewCheckinWindow(zone *clinictime.Zone, openLead, closeLag time.Duration) *CheckinWindow {
	if openLead <= 0 {
		openLead = 30 * time.Minute
	}
	if closeLag <= 0 {
		closeLag = 15 * time.Minute
	}
	return &CheckinWindow{zone: zone, openLead: openLead, closeLag: closeLag}
}

// Evaluate classifies now against the window around scheduledAt. Both
// instants are normalized to the clinic zone first so the decision is
// identical whatever offset the inputs arrived with. This only classifies
// time; it never gates state, that is the transition table's job.
func (w *CheckinWindow) Evaluate(scheduledAt, now time.Time) CheckinAssessment {
	slot := w.zone.In(scheduledAt)
	at := w.zone.In(now)

	opens := slot.Add(-w.openLead)
	closes := slot.Add(w.closeLag)

	a := CheckinAssessment{OpensAt: opens, ClosesAt: closes}
	switch {
	case at.Before(opens):
		a.State = CheckinTooEarly
		a.MinutesUntilOpen = clinictime.MinutesBetween(at, opens)
	case at.After(closes):
		a.State = CheckinExpired
		a.MinutesSinceClose = clinictime.MinutesBetween(closes, at)
	default:
		a.State = CheckinOpen
	}
	return a
}
