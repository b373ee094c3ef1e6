package bookings

import (
	"fmt"
	"time"
)

// MaxSeriesOccurrences caps how many bookings one recurring request creates.
const MaxSeriesOccurrences = 52

// Occurrences expands a recurring request into start times. The first
// occurrence is start itself; endsAt is an inclusive calendar date in start's
// location. Monthly steps are computed from start so day-of-month does not
// drift; a day missing from the target month clamps to its last day.
func Occurrences(start time.Time, r Recurrence, endsAt time.Time) ([]time.Time, error) {
	if r == RecurrenceNone || !r.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRecurrence, r)
	}
	e := endsAt.In(start.Location())
	limit := time.Date(e.Year(), e.Month(), e.Day(), 0, 0, 0, 0, start.Location()).AddDate(0, 0, 1)
	if !start.Before(limit) {
		return nil, ErrEmptySeries
	}

	out := make([]time.Time, 0, 8)
	for i := 0; i < MaxSeriesOccurrences; i++ {
		var next time.Time
		switch r {
		case RecurrenceWeekly:
			next = start.AddDate(0, 0, 7*i)
		case RecurrenceBiweekly:
			next = start.AddDate(0, 0, 14*i)
		case RecurrenceMonthly:
			next = addMonthsClamped(start, i)
		}
		if !next.Before(limit) {
			break
		}
		out = append(out, next)
	}
	return out, nil
}

func addMonthsClamped(t time.Time, months int) time.Time {
	first := time.Date(t.Year(), t.Month()+time.Month(months), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	lastDay := first.AddDate(0, 1, -1).Day()
	day := t.Day()
	if day > lastDay {
		day = lastDay
	}
	return time.Date(first.Year(), first.Month(), day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}
