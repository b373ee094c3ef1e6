package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/caremarket-platform/internal/bookings"
)

const (
	TypeBookingCreated     = "booking.created.v1"
	TypeBookingConfirmed   = "booking.confirmed.v1"
	TypeBookingCancelled   = "booking.cancelled.v1"
	TypeBookingCompleted   = "booking.completed.v1"
	TypeBookingNoShow      = "booking.no_show.v1"
	TypeBookingMeetingLink = "booking.meeting_link.v1"
	TypeScheduleUpdated    = "schedule.updated.v1"
)

// CanonicalEvent represents a versioned domain event.
type CanonicalEvent interface {
	EventType() string
}

// BookingEventV1 is emitted for every committed booking mutation.
type BookingEventV1 struct {
	Type            string          `json:"-"`
	BookingID       uuid.UUID       `json:"booking_id"`
	ProviderID      uuid.UUID       `json:"provider_id"`
	RequesterID     uuid.UUID       `json:"requester_id"`
	DependentID     *uuid.UUID      `json:"dependent_id,omitempty"`
	ServiceID       *uuid.UUID      `json:"service_id,omitempty"`
	SeriesID        *uuid.UUID      `json:"series_id,omitempty"`
	Kind            bookings.Kind   `json:"kind"`
	Status          bookings.Status `json:"status"`
	ScheduledAt     *time.Time      `json:"scheduled_at,omitempty"`
	DurationMinutes int             `json:"duration_minutes"`
	Remote          bool            `json:"remote"`
	MeetingURL      string          `json:"meeting_url,omitempty"`
	Reason          string          `json:"reason,omitempty"`
	CancelledBy     bookings.Party  `json:"cancelled_by,omitempty"`
	ActorID         uuid.UUID       `json:"actor_id"`
	ActorRole       string          `json:"actor_role"`
	OccurredAt      time.Time       `json:"occurred_at"`
}

func (e BookingEventV1) EventType() string { return e.Type }

// NewBookingEvent snapshots b for the given event type.
func NewBookingEvent(eventType string, b *bookings.Booking, actorID uuid.UUID, actorRole string) BookingEventV1 {
	return BookingEventV1{
		Type:            eventType,
		BookingID:       b.ID,
		ProviderID:      b.ProviderID,
		RequesterID:     b.RequesterID,
		DependentID:     b.DependentID,
		ServiceID:       b.ServiceID,
		SeriesID:        b.SeriesID,
		Kind:            b.Kind,
		Status:          b.Status,
		ScheduledAt:     b.ScheduledAt,
		DurationMinutes: b.DurationMinutes,
		Remote:          b.Remote,
		MeetingURL:      b.MeetingURL,
		Reason:          b.CancelReason,
		CancelledBy:     b.CancelledBy,
		ActorID:         actorID,
		ActorRole:       actorRole,
		OccurredAt:      nowFunc().UTC(),
	}
}

// ScheduleUpdatedV1 is emitted when a provider replaces its weekly schedule.
type ScheduleUpdatedV1 struct {
	ProviderID uuid.UUID `json:"provider_id"`
	ActorID    uuid.UUID `json:"actor_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (ScheduleUpdatedV1) EventType() string { return TypeScheduleUpdated }

// IsBookingEvent reports whether eventType carries a BookingEventV1 payload.
func IsBookingEvent(eventType string) bool {
	switch eventType {
	case TypeBookingCreated, TypeBookingConfirmed, TypeBookingCancelled,
		TypeBookingCompleted, TypeBookingNoShow, TypeBookingMeetingLink:
		return true
	default:
		return false
	}
}
