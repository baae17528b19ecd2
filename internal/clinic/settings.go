// Package clinic provides clinic-wide scheduling policy and settings.
package clinic

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// DayHours represents the opening hours for a single day.
// Nil means the clinic is closed that day.
type DayHours struct {
	Open  string `json:"open"`  // "09:00" in 24-hour format
	Close string `json:"close"` // "18:00" in 24-hour format
}

// BusinessHours maps day names to their hours.
type BusinessHours struct {
	Monday    *DayHours `json:"monday,omitempty"`
	Tuesday   *DayHours `json:"tuesday,omitempty"`
	Wednesday *DayHours `json:"wednesday,omitempty"`
	Thursday  *DayHours `json:"thursday,omitempty"`
	Friday    *DayHours `json:"friday,omitempty"`
	Saturday  *DayHours `json:"saturday,omitempty"`
	Sunday    *DayHours `json:"sunday,omitempty"`
}

// ForWeekday returns the hours for the given weekday, nil when closed.
func (h *BusinessHours) ForWeekday(day time.Weekday) *DayHours {
	switch day {
	case time.Monday:
		return h.Monday
	case time.Tuesday:
		return h.Tuesday
	case time.Wednesday:
		return h.Wednesday
	case time.Thursday:
		return h.Thursday
	case time.Friday:
		return h.Friday
	case time.Saturday:
		return h.Saturday
	default:
		return h.Sunday
	}
}

// BlackoutRange is a closed date interval (inclusive) during which no
// appointments may be scheduled, e.g. holidays or clinic closures.
type BlackoutRange struct {
	From   string `json:"from"` // "2006-01-02", clinic-local date
	To     string `json:"to"`   // "2006-01-02", clinic-local date
	Reason string `json:"reason,omitempty"`
}

// Contains reports whether the clinic-local date of t falls inside the range.
func (b BlackoutRange) Contains(t time.Time) bool {
	day := t.Format("2006-01-02")
	return day >= b.From && day <= b.To
}

// Settings holds clinic-wide scheduling policy.
type Settings struct {
	Name     string `json:"name"`
	Timezone string `json:"timezone"` // e.g. "America/Mexico_City"

	BusinessHours BusinessHours   `json:"business_hours"`
	Blackouts     []BlackoutRange `json:"blackouts,omitempty"`

	// MinLeadMinutes is the minimum notice required to book or move a slot.
	MinLeadMinutes int `json:"min_lead_minutes"`

	// CheckinOpenLeadMinutes is how long before the slot check-in opens.
	CheckinOpenLeadMinutes int `json:"checkin_open_lead_minutes"`

	// CheckinCloseLagMinutes is how long after the slot check-in stays open.
	// Clinic policy, not business logic: changing it must never require a
	// code change.
	CheckinCloseLagMinutes int `json:"checkin_close_lag_minutes"`
}

// DefaultSettings returns the baseline policy used until the clinic saves
// its own.
func DefaultSettings() *Settings {
	nineToSix := &DayHours{Open: "09:00", Close: "18:00"}
	return &Settings{
		Name:     "Clinic",
		Timezone: "America/Mexico_City",
		BusinessHours: BusinessHours{
			Monday:    nineToSix,
			Tuesday:   nineToSix,
			Wednesday: nineToSix,
			Thursday:  nineToSix,
			Friday:    nineToSix,
			Saturday:  &DayHours{Open: "09:00", Close: "14:00"},
		},
		MinLeadMinutes:         60,
		CheckinOpenLeadMinutes: 30,
		CheckinCloseLagMinutes: 15,
	}
}

// Validate rejects settings that would break window or schedule arithmetic.
func (s *Settings) Validate() error {
	if _, err := time.LoadLocation(s.Timezone); err != nil {
		return fmt.Errorf("clinic: invalid timezone %q: %w", s.Timezone, err)
	}
	if s.MinLeadMinutes < 0 {
		return fmt.Errorf("clinic: min_lead_minutes must not be negative")
	}
	if s.CheckinOpenLeadMinutes <= 0 || s.CheckinCloseLagMinutes <= 0 {
		return fmt.Errorf("clinic: check-in window minutes must be positive")
	}
	for _, b := range s.Blackouts {
		if !validDate(b.From) || !validDate(b.To) || b.From > b.To {
			return fmt.Errorf("clinic: invalid blackout range %s..%s", b.From, b.To)
		}
	}
	return nil
}

func validDate(s string) bool {
	_, err := time.Parse("2006-01-02", strings.TrimSpace(s))
	return err == nil
}

// Store provides persistence for clinic settings.
type Store struct {
	redis *redis.Client
}

// NewStore creates a new settings store.
func NewStore(redisClient *redis.Client) *Store {
	return &Store{redis: redisClient}
}

const settingsKey = "clinic:settings"

// Get retrieves clinic settings, returning defaults if none were saved yet.
func (s *Store) Get(ctx context.Context) (*Settings, error) {
	data, err := s.redis.Get(ctx, settingsKey).Bytes()
	if err == redis.Nil {
		return DefaultSettings(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("clinic: get settings: %w", err)
	}

	var settings Settings
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("clinic: unmarshal settings: %w", err)
	}
	return &settings, nil
}

// Set saves clinic settings.
func (s *Store) Set(ctx context.Context, settings *Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("clinic: marshal settings: %w", err)
	}
	if err := s.redis.Set(ctx, settingsKey, data, 0).Err(); err != nil {
		return fmt.Errorf("clinic: set settings: %w", err)
	}
	return nil
}
