// Package clinictime anchors all wall-clock decisions to the clinic's fixed
// time zone, regardless of the caller's locale or the server's local zone.
package clinictime

import (
	"fmt"
	"time"
)

// Clock supplies the current instant. Production code uses SystemClock;
// tests pin time with FixedClock.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the real wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock always reports the same instant.
type FixedClock struct {
	Instant time.Time
}

func (c FixedClock) Now() time.Time { return c.Instant }

// Zone performs instant conversions and day arithmetic in the clinic zone.
type Zone struct {
	loc   *time.Location
	clock Clock
}

// Load resolves the named IANA zone (e.g. "America/Mexico_City").
func Load(name string) (*Zone, error) {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("clinictime: load zone %q: %w", name, err)
	}
	return &Zone{loc: loc, clock: SystemClock{}}, nil
}

// MustLoad is Load for zones known at compile time; panics on failure.
func MustLoad(name string) *Zone {
	z, err := Load(name)
	if err != nil {
		panic(err)
	}
	return z
}

// WithClock returns a copy of the zone using the given clock.
func (z *Zone) WithClock(c Clock) *Zone {
	return &Zone{loc: z.loc, clock: c}
}

// Location exposes the underlying clinic location.
func (z *Zone) Location() *time.Location { return z.loc }

// Now returns the current instant expressed in the clinic zone.
func (z *Zone) Now() time.Time {
	return z.clock.Now().In(z.loc)
}

// In converts any instant to the clinic zone.
func (z *Zone) In(t time.Time) time.Time {
	return t.In(z.loc)
}

// SameDay reports whether two instants fall on the same clinic calendar day.
func (z *Zone) SameDay(a, b time.Time) bool {
	ay, am, ad := a.In(z.loc).Date()
	by, bm, bd := b.In(z.loc).Date()
	return ay == by && am == bm && ad == bd
}

// IsToday reports whether the instant falls on today's clinic calendar day.
func (z *Zone) IsToday(t time.Time) bool {
	return z.SameDay(t, z.Now())
}

// DayBounds returns the clinic-zone midnight starting the instant's day and
// the midnight starting the next day. DST transitions are handled by the
// location, so a bound day may be 23 or 25 hours long.
func (z *Zone) DayBounds(t time.Time) (start, end time.Time) {
	local := t.In(z.loc)
	start = time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, z.loc)
	end = start.AddDate(0, 0, 1)
	return start, end
}

// MinutesBetween returns the whole minutes from a to b, negative when b is
// earlier than a. Zone-independent: both instants name the same moment no
// matter how they are expressed.
func MinutesBetween(a, b time.Time) int {
	return int(b.Sub(a) / time.Minute)
}
