package schedule

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solmedica/clinic-ops/internal/clinic"
	"github.com/solmedica/clinic-ops/internal/clinictime"
)

type staticSettings struct {
	settings *clinic.Settings
	err      error
}

func (s staticSettings) Get(context.Context) (*clinic.Settings, error) {
	return s.settings, s.err
}

// Tuesday 2025-06-17, 10:00 clinic time.
func testRules(t *testing.T, settings *clinic.Settings) (*Rules, time.Time) {
	t.Helper()
	zone, err := clinictime.Load("America/Mexico_City")
	require.NoError(t, err)
	now := time.Date(2025, 6, 17, 10, 0, 0, 0, zone.Location())
	zone = zone.WithClock(clinictime.FixedClock{Instant: now})
	return NewRules(staticSettings{settings: settings}, zone), now
}

func TestValidateSlotAccepts(t *testing.T) {
	rules, now := testRules(t, clinic.DefaultSettings())

	// Tomorrow at 11:00, well inside business hours.
	slot := now.AddDate(0, 0, 1).Add(time.Hour)
	assert.NoError(t, rules.ValidateSlot(context.Background(), slot))
}

func TestValidateSlotLeadTime(t *testing.T) {
	settings := clinic.DefaultSettings()
	settings.MinLeadMinutes = 120
	rules, now := testRules(t, settings)

	err := rules.ValidateSlot(context.Background(), now.Add(90*time.Minute))
	assert.ErrorIs(t, err, ErrTooSoon)

	// A past slot is always below the lead time.
	err = rules.ValidateSlot(context.Background(), now.Add(-time.Hour))
	assert.ErrorIs(t, err, ErrTooSoon)
}

func TestValidateSlotBusinessHours(t *testing.T) {
	rules, now := testRules(t, clinic.DefaultSettings())

	// Tomorrow (Wednesday) at 20:00, after closing.
	evening := time.Date(2025, 6, 18, 20, 0, 0, 0, now.Location())
	assert.ErrorIs(t, rules.ValidateSlot(context.Background(), evening), ErrOutsideHours)

	// Sunday: closed all day.
	sunday := time.Date(2025, 6, 22, 11, 0, 0, 0, now.Location())
	assert.ErrorIs(t, rules.ValidateSlot(context.Background(), sunday), ErrOutsideHours)

	// Closing time itself is not bookable.
	closing := time.Date(2025, 6, 18, 18, 0, 0, 0, now.Location())
	assert.ErrorIs(t, rules.ValidateSlot(context.Background(), closing), ErrOutsideHours)
}

func TestValidateSlotBlackout(t *testing.T) {
	settings := clinic.DefaultSettings()
	settings.Blackouts = []clinic.BlackoutRange{{From: "2025-06-18", To: "2025-06-19", Reason: "maintenance"}}
	rules, now := testRules(t, settings)

	blocked := time.Date(2025, 6, 18, 11, 0, 0, 0, now.Location())
	err := rules.ValidateSlot(context.Background(), blocked)
	assert.ErrorIs(t, err, ErrBlackout)
	assert.Contains(t, err.Error(), "maintenance")

	after := time.Date(2025, 6, 20, 11, 0, 0, 0, now.Location())
	assert.NoError(t, rules.ValidateSlot(context.Background(), after))
}

func TestValidateSlotNormalizesZone(t *testing.T) {
	rules, now := testRules(t, clinic.DefaultSettings())

	// 2025-06-18 11:00 clinic time expressed as UTC: still inside hours.
	slot := time.Date(2025, 6, 18, 11, 0, 0, 0, now.Location()).UTC()
	assert.NoError(t, rules.ValidateSlot(context.Background(), slot))
}

func TestValidateSlotSettingsError(t *testing.T) {
	zone, err := clinictime.Load("America/Mexico_City")
	require.NoError(t, err)
	rules := NewRules(staticSettings{err: errors.New("redis down")}, zone)

	err = rules.ValidateSlot(context.Background(), time.Now().Add(24*time.Hour))
	assert.ErrorContains(t, err, "load settings")
}
