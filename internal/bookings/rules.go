package bookings

import (
	"math"
	"time"
)

// CancellationCutoff is how far ahead of the appointment a requester must be
// to cancel it, and how far ahead a new booking must be scheduled.
const CancellationCutoff = 24 * time.Hour

// CancelEligibility is the outcome of CanCancelBooking. HoursRemaining is set
// only when cancellation is refused.
type CancelEligibility struct {
	CanCancel      bool `json:"can_cancel"`
	HoursRemaining *int `json:"hours_remaining,omitempty"`
}

// IsValidBookingTime reports whether scheduledAt is strictly more than 24
// hours from now. The clock is read on every call.
func IsValidBookingTime(scheduledAt time.Time) bool {
	return IsValidBookingTimeAt(scheduledAt, time.Now())
}

// IsValidBookingTimeAt is IsValidBookingTime evaluated at now.
func IsValidBookingTimeAt(scheduledAt, now time.Time) bool {
	return scheduledAt.Sub(now) > CancellationCutoff
}

// CanCancelBooking decides whether a requester may still cancel. Tours
// (nil scheduledAt) can always be cancelled.
func CanCancelBooking(scheduledAt *time.Time) CancelEligibility {
	return CanCancelBookingAt(scheduledAt, time.Now())
}

// CanCancelBookingAt is CanCancelBooking evaluated at now.
func CanCancelBookingAt(scheduledAt *time.Time, now time.Time) CancelEligibility {
	if scheduledAt == nil {
		return CancelEligibility{CanCancel: true}
	}
	remaining := scheduledAt.Sub(now)
	if remaining >= CancellationCutoff {
		return CancelEligibility{CanCancel: true}
	}
	hours := int(math.Ceil(remaining.Hours()))
	return CancelEligibility{CanCancel: false, HoursRemaining: &hours}
}
