package bookings

import "errors"

var (
	// ErrNotFoundOrProcessed is returned when a guarded update matched no row:
	// the booking does not exist in the caller's scope or is no longer in a
	// status the transition accepts.
	ErrNotFoundOrProcessed = errors.New("bookings: not found or already processed")
	// ErrNotFound is returned by reads scoped to a tenant or requester.
	ErrNotFound = errors.New("bookings: not found")
	// ErrConflict is returned when the requested interval overlaps a
	// non-cancelled booking of the same provider.
	ErrConflict = errors.New("bookings: time slot is no longer available")
	// ErrProviderNotFound is returned when the provider row cannot be locked.
	ErrProviderNotFound = errors.New("bookings: provider not found")
	// ErrServiceNotFound is returned when the service is unknown or belongs to another provider.
	ErrServiceNotFound = errors.New("bookings: service not found")
	// ErrOutsideHours is returned when a scheduled time falls outside the
	// provider's opening hours for that weekday.
	ErrOutsideHours = errors.New("bookings: outside operating hours")
	// ErrTooSoon is returned when a booking starts within the cancellation cutoff.
	ErrTooSoon           = errors.New("bookings: must be booked at least 24 hours in advance")
	ErrDependentNotFound = errors.New("bookings: dependent not found")
	ErrInvalidRecurrence = errors.New("bookings: invalid recurrence")
	ErrEmptySeries       = errors.New("bookings: series has no occurrences")
	// ErrUnscopedWrite is returned when a transition carries neither a
	// provider nor a requester filter.
	ErrUnscopedWrite = errors.New("bookings: write without tenant scope")
)
