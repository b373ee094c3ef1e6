// Package availability turns a provider's weekly operating hours and existing
// bookings into bookable time slots.
package availability

import (
	"errors"
	"fmt"
	"time"
	_ "time/tzdata"

	"github.com/google/uuid"
)

// DefaultSlotMinutes is used when neither the service nor the schedule sets a slot length.
const DefaultSlotMinutes = 30

var (
	ErrInvalidSchedule = errors.New("availability: invalid schedule")
	ErrInvalidWindow   = errors.New("availability: invalid window")
)

// DayHours is the opening window for one weekday (0=Sunday). Open and Close
// are wall-clock "HH:MM" in the schedule's timezone.
type DayHours struct {
	Weekday time.Weekday `json:"weekday"`
	Open    string       `json:"open,omitempty"`
	Close   string       `json:"close,omitempty"`
	Closed  bool         `json:"closed"`
}

// Schedule is a provider's recurring weekly availability. Weekdays without
// an entry are closed.
type Schedule struct {
	ProviderID  uuid.UUID  `json:"provider_id"`
	Timezone    string     `json:"timezone"`
	SlotMinutes int        `json:"slot_minutes"`
	Days        []DayHours `json:"days"`
}

// Slot is one bookable interval.
type Slot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Validate checks clock formats, ordering and weekday uniqueness.
func (s *Schedule) Validate() error {
	if s.SlotMinutes < 0 || s.SlotMinutes > 24*60 {
		return fmt.Errorf("%w: slot_minutes out of range", ErrInvalidSchedule)
	}
	if s.Timezone != "" {
		if _, err := time.LoadLocation(s.Timezone); err != nil {
			return fmt.Errorf("%w: unknown timezone %q", ErrInvalidSchedule, s.Timezone)
		}
	}
	seen := make(map[time.Weekday]bool, 7)
	for _, d := range s.Days {
		if d.Weekday < time.Sunday || d.Weekday > time.Saturday {
			return fmt.Errorf("%w: weekday %d", ErrInvalidSchedule, d.Weekday)
		}
		if seen[d.Weekday] {
			return fmt.Errorf("%w: duplicate weekday %d", ErrInvalidSchedule, d.Weekday)
		}
		seen[d.Weekday] = true
		if d.Closed {
			continue
		}
		open, err := parseClock(d.Open)
		if err != nil {
			return fmt.Errorf("%w: %s open: %v", ErrInvalidSchedule, d.Weekday, err)
		}
		closeAt, err := parseClock(d.Close)
		if err != nil {
			return fmt.Errorf("%w: %s close: %v", ErrInvalidSchedule, d.Weekday, err)
		}
		if closeAt <= open {
			return fmt.Errorf("%w: %s closes before it opens", ErrInvalidSchedule, d.Weekday)
		}
	}
	return nil
}

// Location returns the schedule's zone, UTC when unset or unknown.
func (s *Schedule) Location() *time.Location {
	if s == nil || s.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// SlotLength returns the schedule's slot size, falling back to fallback
// minutes and then to DefaultSlotMinutes.
func (s *Schedule) SlotLength(fallback int) time.Duration {
	minutes := 0
	if s != nil {
		minutes = s.SlotMinutes
	}
	if minutes <= 0 {
		minutes = fallback
	}
	if minutes <= 0 {
		minutes = DefaultSlotMinutes
	}
	return time.Duration(minutes) * time.Minute
}

// hours returns open and close as offsets from midnight.
func (s *Schedule) hours(day time.Weekday) (open, closeAt time.Duration, ok bool) {
	if s == nil {
		return 0, 0, false
	}
	for _, d := range s.Days {
		if d.Weekday != day || d.Closed {
			continue
		}
		o, err := parseClock(d.Open)
		if err != nil {
			return 0, 0, false
		}
		c, err := parseClock(d.Close)
		if err != nil || c <= o {
			return 0, 0, false
		}
		return o, c, true
	}
	return 0, 0, false
}

// Covers reports whether [start, start+d) lies within opening hours of the
// day start falls on, evaluated in the schedule's timezone.
func (s *Schedule) Covers(start time.Time, d time.Duration) bool {
	local := start.In(s.Location())
	open, closeAt, ok := s.hours(local.Weekday())
	if !ok {
		return false
	}
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, local.Location())
	opensAt := addClock(midnight, open)
	closesAt := addClock(midnight, closeAt)
	return !local.Before(opensAt) && !local.Add(d).After(closesAt)
}

// addClock resolves a wall-clock offset on midnight's date, so DST days keep
// their nominal opening hours.
func addClock(midnight time.Time, offset time.Duration) time.Time {
	h := int(offset / time.Hour)
	m := int((offset % time.Hour) / time.Minute)
	return time.Date(midnight.Year(), midnight.Month(), midnight.Day(), h, m, 0, 0, midnight.Location())
}

func parseClock(v string) (time.Duration, error) {
	t, err := time.Parse("15:04", v)
	if err != nil {
		if v == "24:00" {
			return 24 * time.Hour, nil
		}
		return 0, fmt.Errorf("want HH:MM, got %q", v)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}
