package actions

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/caremarket-platform/internal/audit"
	"github.com/wolfman30/caremarket-platform/internal/availability"
	"github.com/wolfman30/caremarket-platform/internal/bookings"
	"github.com/wolfman30/caremarket-platform/internal/events"
	"github.com/wolfman30/caremarket-platform/internal/tenancy"
)

const (
	actionCreate    = "create"
	maxNotesLength  = 2000
	maxReasonLength = 500
)

// CreateBookingInput is a requester's booking request.
type CreateBookingInput struct {
	ProviderID  uuid.UUID     `json:"provider_id"`
	DependentID *uuid.UUID    `json:"dependent_id,omitempty"`
	ServiceID   *uuid.UUID    `json:"service_id,omitempty"`
	Kind        bookings.Kind `json:"kind,omitempty"`
	ScheduledAt *time.Time    `json:"scheduled_at,omitempty"`
	Notes       string        `json:"notes,omitempty"`
}

// CreateRecurringInput repeats a booking until EndsAt (inclusive date).
type CreateRecurringInput struct {
	CreateBookingInput
	Recurrence bookings.Recurrence `json:"recurrence"`
	EndsAt     time.Time           `json:"ends_at"`
}

// CreateBooking books an appointment or requests a tour.
func (s *Service) CreateBooking(ctx context.Context, in CreateBookingInput) (_ *bookings.Booking, err error) {
	ctx, done := s.trace(ctx, "create", attribute.String("caremarket.provider_id", in.ProviderID.String()))
	defer func() { err = done(err) }()

	actor, err := s.requester(ctx)
	if err != nil {
		return nil, err
	}
	nb, sched, err := s.prepare(ctx, actor, in)
	if err != nil {
		return nil, err
	}
	if nb.ScheduledAt != nil {
		if err := s.checkTime(sched, *nb.ScheduledAt, nb); err != nil {
			return nil, err
		}
	}

	b, err := s.bookings.Create(ctx, nb)
	if err != nil {
		return nil, err
	}
	s.afterBooking(ctx, actor, actionCreate, events.TypeBookingCreated, "", b)
	return b, nil
}

// CreateRecurringBooking creates every occurrence of a series atomically.
func (s *Service) CreateRecurringBooking(ctx context.Context, in CreateRecurringInput) (_ []bookings.Booking, err error) {
	ctx, done := s.trace(ctx, "create_series", attribute.String("caremarket.provider_id", in.ProviderID.String()))
	defer func() { err = done(err) }()

	actor, err := s.requester(ctx)
	if err != nil {
		return nil, err
	}
	if in.Kind == bookings.KindTour {
		return nil, validation("tours cannot recur")
	}
	if in.ScheduledAt == nil {
		return nil, validation("scheduled_at is required")
	}
	if in.EndsAt.IsZero() {
		return nil, validation("ends_at is required")
	}
	base, sched, err := s.prepare(ctx, actor, in.CreateBookingInput)
	if err != nil {
		return nil, err
	}

	loc := sched.Location()
	starts, err := bookings.Occurrences(base.ScheduledAt.In(loc), in.Recurrence, in.EndsAt)
	if err != nil {
		return nil, err
	}
	endsAt := in.EndsAt.UTC()
	items := make([]bookings.NewBooking, 0, len(starts))
	for _, start := range starts {
		start = start.UTC()
		if err := s.checkTime(sched, start, base); err != nil {
			ae := classify(err)
			return nil, validation("occurrence on %s: %s", start.In(loc).Format("2006-01-02"), ae.Message)
		}
		item := base
		item.ScheduledAt = &start
		item.Recurrence = in.Recurrence
		item.SeriesEndsAt = &endsAt
		items = append(items, item)
	}

	created, err := s.bookings.CreateSeries(ctx, items)
	if err != nil {
		return nil, err
	}
	for i := range created {
		s.publish(ctx, created[i].ProviderID, events.NewBookingEvent(events.TypeBookingCreated, &created[i], actor.ID, string(actor.Role)))
		s.record(ctx, actor, actionCreate, "", &created[i])
	}
	s.invalidate(ctx, base.ProviderID)
	return created, nil
}

// prepare validates the request and resolves duration and remote flag from
// the service or the provider's schedule.
func (s *Service) prepare(ctx context.Context, actor tenancy.Actor, in CreateBookingInput) (bookings.NewBooking, *availability.Schedule, error) {
	nb := bookings.NewBooking{
		ProviderID:  in.ProviderID,
		RequesterID: actor.ID,
		DependentID: in.DependentID,
		ServiceID:   in.ServiceID,
		Kind:        in.Kind,
		Notes:       strings.TrimSpace(in.Notes),
		Recurrence:  bookings.RecurrenceNone,
	}
	if nb.Kind == "" {
		nb.Kind = bookings.KindAppointment
	}
	switch {
	case in.ProviderID == uuid.Nil:
		return nb, nil, validation("provider_id is required")
	case nb.Kind != bookings.KindAppointment && nb.Kind != bookings.KindTour:
		return nb, nil, validation("unknown kind %q", in.Kind)
	case nb.Kind == bookings.KindAppointment && in.ScheduledAt == nil:
		return nb, nil, validation("scheduled_at is required")
	case len(nb.Notes) > maxNotesLength:
		return nb, nil, validation("notes must be at most %d characters", maxNotesLength)
	}
	if in.ScheduledAt != nil {
		at := in.ScheduledAt.UTC()
		nb.ScheduledAt = &at
	}

	if in.DependentID != nil {
		ok, err := s.bookings.DependentOf(ctx, *in.DependentID, actor.ID)
		if err != nil {
			return nb, nil, err
		}
		if !ok {
			return nb, nil, bookings.ErrDependentNotFound
		}
	}

	sched, err := s.schedules.Get(ctx, in.ProviderID)
	if err != nil {
		return nb, nil, err
	}
	nb.DurationMinutes = int(sched.SlotLength(s.slotMinutes) / time.Minute)

	if in.ServiceID != nil {
		svc, err := s.bookings.GetService(ctx, in.ProviderID, *in.ServiceID)
		if err != nil {
			return nb, nil, err
		}
		if !svc.Active {
			return nb, nil, validation("service is not currently offered")
		}
		if svc.DurationMinutes > 0 {
			nb.DurationMinutes = svc.DurationMinutes
		}
		nb.Remote = svc.Remote
	}
	return nb, sched, nil
}

// checkTime enforces the advance-notice rule and, for appointments, the
// provider's opening hours.
func (s *Service) checkTime(sched *availability.Schedule, start time.Time, nb bookings.NewBooking) error {
	if !bookings.IsValidBookingTimeAt(start, s.now()) {
		return bookings.ErrTooSoon
	}
	if nb.Kind != bookings.KindTour && !sched.Covers(start, time.Duration(nb.DurationMinutes)*time.Minute) {
		return bookings.ErrOutsideHours
	}
	return nil
}

// GetBooking returns a booking visible to the caller.
func (s *Service) GetBooking(ctx context.Context, id uuid.UUID) (_ *bookings.Booking, err error) {
	ctx, done := s.trace(ctx, "get", attribute.String("caremarket.booking_id", id.String()))
	defer func() { err = done(err) }()

	_, scope, err := s.readScope(ctx)
	if err != nil {
		return nil, err
	}
	return s.bookings.Get(ctx, id, scope)
}

// BookingHistory returns the audit trail of a booking visible to the caller.
func (s *Service) BookingHistory(ctx context.Context, id uuid.UUID) (_ []audit.Entry, err error) {
	ctx, done := s.trace(ctx, "history", attribute.String("caremarket.booking_id", id.String()))
	defer func() { err = done(err) }()

	_, scope, err := s.readScope(ctx)
	if err != nil {
		return nil, err
	}
	b, err := s.bookings.Get(ctx, id, scope)
	if err != nil {
		return nil, err
	}
	if s.audit == nil {
		return []audit.Entry{}, nil
	}
	return s.audit.History(ctx, audit.Filter{BookingID: b.ID, ProviderID: b.ProviderID})
}

// CancellationEligibility tells the requester whether the cancel button applies.
func (s *Service) CancellationEligibility(ctx context.Context, id uuid.UUID) (_ bookings.CancelEligibility, err error) {
	ctx, done := s.trace(ctx, "cancellation_eligibility", attribute.String("caremarket.booking_id", id.String()))
	defer func() { err = done(err) }()

	actor, err := s.requester(ctx)
	if err != nil {
		return bookings.CancelEligibility{}, err
	}
	b, err := s.bookings.Get(ctx, id, bookings.Scope{RequesterID: actor.ID})
	if err != nil {
		return bookings.CancelEligibility{}, err
	}
	if !bookings.TransitionCancel.Allows(b.Status) {
		return bookings.CancelEligibility{}, nil
	}
	return bookings.CanCancelBookingAt(b.ScheduledAt, s.now()), nil
}

// ListMyBookings lists the requester's own bookings.
func (s *Service) ListMyBookings(ctx context.Context, filter bookings.ListFilter) (_ []bookings.Booking, err error) {
	ctx, done := s.trace(ctx, "list_mine")
	defer func() { err = done(err) }()

	actor, err := s.requester(ctx)
	if err != nil {
		return nil, err
	}
	if err := validateFilter(filter); err != nil {
		return nil, err
	}
	return s.bookings.List(ctx, bookings.Scope{RequesterID: actor.ID}, filter)
}

// ListProviderBookings lists a provider's bookings. Staff always see their
// own provider; admins pass providerID (uuid.Nil lists every provider).
func (s *Service) ListProviderBookings(ctx context.Context, providerID uuid.UUID, filter bookings.ListFilter) (_ []bookings.Booking, err error) {
	ctx, done := s.trace(ctx, "list_provider")
	defer func() { err = done(err) }()

	actor, scoped, err := s.staff(ctx)
	if err != nil {
		return nil, err
	}
	if actor.Role == tenancy.RoleAdmin {
		scoped = providerID
	} else if providerID != uuid.Nil && providerID != scoped {
		return nil, unauthorized("not a member of this provider")
	}
	if err := validateFilter(filter); err != nil {
		return nil, err
	}
	return s.bookings.List(ctx, bookings.Scope{ProviderID: scoped}, filter)
}

func validateFilter(f bookings.ListFilter) error {
	for _, st := range f.Statuses {
		if !st.Valid() {
			return validation("unknown status %q", st)
		}
	}
	if f.From != nil && f.To != nil && !f.To.After(*f.From) {
		return validation("to must be after from")
	}
	return nil
}

// ConfirmBooking accepts a pending request.
func (s *Service) ConfirmBooking(ctx context.Context, id uuid.UUID) (_ *bookings.Booking, err error) {
	ctx, done := s.trace(ctx, "confirm", attribute.String("caremarket.booking_id", id.String()))
	defer func() { err = done(err) }()

	actor, providerID, err := s.writeScope(ctx, id)
	if err != nil {
		return nil, err
	}
	b, err := s.bookings.Confirm(ctx, id, providerID)
	if err != nil {
		return nil, err
	}
	s.afterBooking(ctx, actor, string(bookings.TransitionConfirm), events.TypeBookingConfirmed, bookings.StatusPending, b)
	return b, nil
}

// DeclineBooking lets staff cancel a pending or confirmed booking.
func (s *Service) DeclineBooking(ctx context.Context, id uuid.UUID, reason string) (_ *bookings.Booking, err error) {
	ctx, done := s.trace(ctx, "decline", attribute.String("caremarket.booking_id", id.String()))
	defer func() { err = done(err) }()

	actor, providerID, err := s.writeScope(ctx, id)
	if err != nil {
		return nil, err
	}
	reason, err = cleanReason(reason)
	if err != nil {
		return nil, err
	}
	b, err := s.bookings.Cancel(ctx, id, bookings.Scope{ProviderID: providerID}, reason, bookings.PartyProvider)
	if err != nil {
		return nil, err
	}
	s.afterBooking(ctx, actor, string(bookings.TransitionCancel), events.TypeBookingCancelled, cancelledFrom(b), b)
	return b, nil
}

// CancelBookingAsRequester cancels the requester's own booking while it is
// still at least 24 hours away.
func (s *Service) CancelBookingAsRequester(ctx context.Context, id uuid.UUID, reason string) (_ *bookings.Booking, err error) {
	ctx, done := s.trace(ctx, "cancel", attribute.String("caremarket.booking_id", id.String()))
	defer func() { err = done(err) }()

	actor, err := s.requester(ctx)
	if err != nil {
		return nil, err
	}
	reason, err = cleanReason(reason)
	if err != nil {
		return nil, err
	}
	scope := bookings.Scope{RequesterID: actor.ID}
	current, err := s.bookings.Get(ctx, id, scope)
	if err != nil {
		return nil, err
	}
	if !bookings.TransitionCancel.Allows(current.Status) {
		return nil, bookings.ErrNotFoundOrProcessed
	}
	if elig := bookings.CanCancelBookingAt(current.ScheduledAt, s.now()); !elig.CanCancel {
		return nil, validation("bookings can only be cancelled at least 24 hours in advance (%d hours remaining)", *elig.HoursRemaining)
	}
	b, err := s.bookings.Cancel(ctx, id, scope, reason, bookings.PartyRequester)
	if err != nil {
		return nil, err
	}
	s.afterBooking(ctx, actor, string(bookings.TransitionCancel), events.TypeBookingCancelled, current.Status, b)
	return b, nil
}

// CancelSeries cancels every open member of a series. Requesters only cancel
// members still outside the 24 hour cutoff; the rest are reported as skipped.
func (s *Service) CancelSeries(ctx context.Context, seriesID uuid.UUID, reason string) (_ *bookings.SeriesCancellation, err error) {
	ctx, done := s.trace(ctx, "cancel_series", attribute.String("caremarket.series_id", seriesID.String()))
	defer func() { err = done(err) }()

	actor, err := s.actor(ctx)
	if err != nil {
		return nil, err
	}
	reason, err = cleanReason(reason)
	if err != nil {
		return nil, err
	}

	var (
		scope bookings.Scope
		by    bookings.Party
		allow func(bookings.Booking) bool
	)
	if actor.Role == tenancy.RoleRequester {
		now := s.now()
		scope = bookings.Scope{RequesterID: actor.ID}
		by = bookings.PartyRequester
		allow = func(b bookings.Booking) bool { return bookings.CanCancelBookingAt(b.ScheduledAt, now).CanCancel }
	} else {
		_, providerID, err := s.staff(ctx)
		if err != nil {
			return nil, err
		}
		scope = bookings.Scope{ProviderID: providerID}
		by = bookings.PartyProvider
	}

	result, err := s.bookings.CancelSeries(ctx, seriesID, scope, reason, by, allow)
	if err != nil {
		return nil, err
	}
	invalidated := map[uuid.UUID]bool{}
	for i := range result.Cancelled {
		b := &result.Cancelled[i]
		s.publish(ctx, b.ProviderID, events.NewBookingEvent(events.TypeBookingCancelled, b, actor.ID, string(actor.Role)))
		s.record(ctx, actor, string(bookings.TransitionCancel), cancelledFrom(b), b)
		if !invalidated[b.ProviderID] {
			invalidated[b.ProviderID] = true
			s.invalidate(ctx, b.ProviderID)
		}
	}
	return result, nil
}

// CompleteBooking marks a confirmed booking as done.
func (s *Service) CompleteBooking(ctx context.Context, id uuid.UUID) (_ *bookings.Booking, err error) {
	ctx, done := s.trace(ctx, "complete", attribute.String("caremarket.booking_id", id.String()))
	defer func() { err = done(err) }()

	actor, providerID, err := s.writeScope(ctx, id)
	if err != nil {
		return nil, err
	}
	b, err := s.bookings.Complete(ctx, id, providerID)
	if err != nil {
		return nil, err
	}
	s.afterBooking(ctx, actor, string(bookings.TransitionComplete), events.TypeBookingCompleted, bookings.StatusConfirmed, b)
	return b, nil
}

// MarkNoShow records that the requester did not attend.
func (s *Service) MarkNoShow(ctx context.Context, id uuid.UUID) (_ *bookings.Booking, err error) {
	ctx, done := s.trace(ctx, "no_show", attribute.String("caremarket.booking_id", id.String()))
	defer func() { err = done(err) }()

	actor, providerID, err := s.writeScope(ctx, id)
	if err != nil {
		return nil, err
	}
	b, err := s.bookings.MarkNoShow(ctx, id, providerID)
	if err != nil {
		return nil, err
	}
	s.afterBooking(ctx, actor, string(bookings.TransitionNoShow), events.TypeBookingNoShow, bookings.StatusConfirmed, b)
	return b, nil
}

// AttachMeetingLink sets the video link of a remote booking.
func (s *Service) AttachMeetingLink(ctx context.Context, id uuid.UUID, meetingURL string) (_ *bookings.Booking, err error) {
	ctx, done := s.trace(ctx, "meeting_link", attribute.String("caremarket.booking_id", id.String()))
	defer func() { err = done(err) }()

	actor, providerID, err := s.writeScope(ctx, id)
	if err != nil {
		return nil, err
	}
	meetingURL = strings.TrimSpace(meetingURL)
	if !validMeetingURL(meetingURL) {
		return nil, validation("meeting_url must be an http(s) URL")
	}
	b, err := s.bookings.AttachMeetingURL(ctx, id, providerID, meetingURL)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, b.ProviderID, events.NewBookingEvent(events.TypeBookingMeetingLink, b, actor.ID, string(actor.Role)))
	s.record(ctx, actor, string(bookings.TransitionMeetingLink), b.Status, b)
	return b, nil
}

func validMeetingURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func cleanReason(reason string) (string, error) {
	reason = strings.TrimSpace(reason)
	if len(reason) > maxReasonLength {
		return "", validation("reason must be at most %d characters", maxReasonLength)
	}
	return reason, nil
}

// cancelledFrom infers the status a cancelled booking left. Only confirmed
// bookings carry confirmed_at.
func cancelledFrom(b *bookings.Booking) bookings.Status {
	if b.ConfirmedAt != nil {
		return bookings.StatusConfirmed
	}
	return bookings.StatusPending
}
