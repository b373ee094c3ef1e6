package bookings

import (
	"time"

	"github.com/google/uuid"
)

// Kind distinguishes scheduled appointments from schedule-less tour requests.
type Kind string

const (
	KindAppointment Kind = "appointment"
	KindTour        Kind = "tour"
)

// Recurrence describes how a series repeats.
type Recurrence string

const (
	RecurrenceNone     Recurrence = "none"
	RecurrenceWeekly   Recurrence = "weekly"
	RecurrenceBiweekly Recurrence = "biweekly"
	RecurrenceMonthly  Recurrence = "monthly"
)

// Valid reports whether r is a known recurrence.
func (r Recurrence) Valid() bool {
	switch r {
	case RecurrenceNone, RecurrenceWeekly, RecurrenceBiweekly, RecurrenceMonthly:
		return true
	default:
		return false
	}
}

// Party records who cancelled a booking.
type Party string

const (
	PartyRequester Party = "requester"
	PartyProvider  Party = "provider"
	PartySystem    Party = "system"
)

// Booking is one scheduled interaction between a requester and a provider.
type Booking struct {
	ID              uuid.UUID  `json:"id"`
	ProviderID      uuid.UUID  `json:"provider_id"`
	RequesterID     uuid.UUID  `json:"requester_id"`
	DependentID     *uuid.UUID `json:"dependent_id,omitempty"`
	ServiceID       *uuid.UUID `json:"service_id,omitempty"`
	Kind            Kind       `json:"kind"`
	ScheduledAt     *time.Time `json:"scheduled_at,omitempty"`
	DurationMinutes int        `json:"duration_minutes"`
	Status          Status     `json:"status"`
	Remote          bool       `json:"remote"`
	MeetingURL      string     `json:"meeting_url,omitempty"`
	Recurrence      Recurrence `json:"recurrence"`
	SeriesID        *uuid.UUID `json:"series_id,omitempty"`
	SeriesEndsAt    *time.Time `json:"series_ends_at,omitempty"`
	Notes           string     `json:"notes,omitempty"`
	CancelReason    string     `json:"cancel_reason,omitempty"`
	CancelledBy     Party      `json:"cancelled_by,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	ConfirmedAt     *time.Time `json:"confirmed_at,omitempty"`
	CancelledAt     *time.Time `json:"cancelled_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Interval returns the booked time range. ok is false for tours.
func (b *Booking) Interval() (start, end time.Time, ok bool) {
	if b == nil || b.ScheduledAt == nil {
		return time.Time{}, time.Time{}, false
	}
	start = *b.ScheduledAt
	return start, start.Add(time.Duration(b.DurationMinutes) * time.Minute), true
}

// NewBooking is the validated input for inserting a booking row.
type NewBooking struct {
	ProviderID      uuid.UUID
	RequesterID     uuid.UUID
	DependentID     *uuid.UUID
	ServiceID       *uuid.UUID
	Kind            Kind
	ScheduledAt     *time.Time
	DurationMinutes int
	Remote          bool
	Notes           string
	Recurrence      Recurrence
	SeriesEndsAt    *time.Time
}

// Service is a bookable offering of a provider.
type Service struct {
	ID              uuid.UUID `json:"id"`
	ProviderID      uuid.UUID `json:"provider_id"`
	Name            string    `json:"name"`
	DurationMinutes int       `json:"duration_minutes"`
	Remote          bool      `json:"remote"`
	Active          bool      `json:"active"`
}

// ListFilter narrows provider and requester listings.
type ListFilter struct {
	Statuses []Status
	From     *time.Time
	To       *time.Time
	Limit    int
	Offset   int
}

func (f ListFilter) limit() int {
	if f.Limit <= 0 || f.Limit > 200 {
		return 50
	}
	return f.Limit
}

func (f ListFilter) offset() int {
	if f.Offset < 0 {
		return 0
	}
	return f.Offset
}

// BusyInterval is an occupied range on a provider's calendar.
type BusyInterval struct {
	Start time.Time
	End   time.Time
}
