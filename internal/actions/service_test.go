package actions

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/caremarket-platform/internal/audit"
	"github.com/wolfman30/caremarket-platform/internal/availability"
	"github.com/wolfman30/caremarket-platform/internal/bookings"
	"github.com/wolfman30/caremarket-platform/internal/events"
	"github.com/wolfman30/caremarket-platform/internal/tenancy"
)

// 2026-03-02 is a Monday; the clock sits at 08:00 UTC.
var testNow = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

func at(day, hour int) time.Time {
	return time.Date(2026, 3, day, hour, 0, 0, 0, time.UTC)
}

type fakeStore struct {
	booking      *bookings.Booking
	created      []bookings.NewBooking
	scopes       []bookings.Scope
	series       []bookings.Booking
	skipped      []uuid.UUID
	service      *bookings.Service
	staffOf      uuid.UUID
	dependentOK  bool
	err          error
	lastProvider uuid.UUID
}

func (f *fakeStore) result(status bookings.Status) (*bookings.Booking, error) {
	if f.err != nil {
		return nil, f.err
	}
	b := *f.booking
	b.Status = status
	return &b, nil
}

func (f *fakeStore) Create(_ context.Context, in bookings.NewBooking) (*bookings.Booking, error) {
	f.created = append(f.created, in)
	if f.err != nil {
		return nil, f.err
	}
	return &bookings.Booking{
		ID: uuid.New(), ProviderID: in.ProviderID, RequesterID: in.RequesterID, Kind: in.Kind,
		ScheduledAt: in.ScheduledAt, DurationMinutes: in.DurationMinutes, Status: bookings.StatusPending,
	}, nil
}

func (f *fakeStore) CreateSeries(_ context.Context, items []bookings.NewBooking) ([]bookings.Booking, error) {
	f.created = append(f.created, items...)
	if f.err != nil {
		return nil, f.err
	}
	seriesID := uuid.New()
	out := make([]bookings.Booking, 0, len(items))
	for _, in := range items {
		out = append(out, bookings.Booking{
			ID: uuid.New(), ProviderID: in.ProviderID, RequesterID: in.RequesterID, ScheduledAt: in.ScheduledAt,
			Status: bookings.StatusPending, SeriesID: &seriesID, Recurrence: in.Recurrence,
		})
	}
	return out, nil
}

func (f *fakeStore) Get(_ context.Context, _ uuid.UUID, scope bookings.Scope) (*bookings.Booking, error) {
	f.scopes = append(f.scopes, scope)
	if f.booking == nil {
		return nil, bookings.ErrNotFound
	}
	b := *f.booking
	return &b, nil
}

func (f *fakeStore) List(_ context.Context, scope bookings.Scope, _ bookings.ListFilter) ([]bookings.Booking, error) {
	f.scopes = append(f.scopes, scope)
	return nil, f.err
}

func (f *fakeStore) Confirm(_ context.Context, _, providerID uuid.UUID) (*bookings.Booking, error) {
	f.lastProvider = providerID
	return f.result(bookings.StatusConfirmed)
}

func (f *fakeStore) Cancel(_ context.Context, _ uuid.UUID, scope bookings.Scope, reason string, by bookings.Party) (*bookings.Booking, error) {
	f.scopes = append(f.scopes, scope)
	b, err := f.result(bookings.StatusCancelled)
	if err == nil {
		b.CancelReason = reason
		b.CancelledBy = by
	}
	return b, err
}

func (f *fakeStore) Complete(_ context.Context, _, providerID uuid.UUID) (*bookings.Booking, error) {
	f.lastProvider = providerID
	return f.result(bookings.StatusCompleted)
}

func (f *fakeStore) MarkNoShow(_ context.Context, _, providerID uuid.UUID) (*bookings.Booking, error) {
	f.lastProvider = providerID
	return f.result(bookings.StatusNoShow)
}

func (f *fakeStore) AttachMeetingURL(_ context.Context, _, providerID uuid.UUID, meetingURL string) (*bookings.Booking, error) {
	f.lastProvider = providerID
	b, err := f.result(f.booking.Status)
	if err == nil {
		b.MeetingURL = meetingURL
	}
	return b, err
}

func (f *fakeStore) CancelSeries(_ context.Context, _ uuid.UUID, scope bookings.Scope, reason string, by bookings.Party, allow func(bookings.Booking) bool) (*bookings.SeriesCancellation, error) {
	f.scopes = append(f.scopes, scope)
	if f.err != nil {
		return nil, f.err
	}
	out := &bookings.SeriesCancellation{}
	for _, m := range f.series {
		if allow != nil && !allow(m) {
			out.Skipped = append(out.Skipped, m.ID)
			continue
		}
		m.Status = bookings.StatusCancelled
		m.CancelReason = reason
		m.CancelledBy = by
		out.Cancelled = append(out.Cancelled, m)
	}
	return out, nil
}

func (f *fakeStore) GetService(context.Context, uuid.UUID, uuid.UUID) (*bookings.Service, error) {
	if f.service == nil {
		return nil, bookings.ErrServiceNotFound
	}
	return f.service, nil
}

func (f *fakeStore) StaffProvider(context.Context, uuid.UUID) (uuid.UUID, error) {
	if f.staffOf == uuid.Nil {
		return uuid.Nil, bookings.ErrProviderNotFound
	}
	return f.staffOf, nil
}

func (f *fakeStore) DependentOf(context.Context, uuid.UUID, uuid.UUID) (bool, error) {
	return f.dependentOK, nil
}

type fakeAvailability struct {
	slots       []availability.Slot
	invalidated []uuid.UUID
	err         error
}

func (f *fakeAvailability) Available(context.Context, availability.Query) ([]availability.Slot, error) {
	return f.slots, nil
}

func (f *fakeAvailability) Invalidate(_ context.Context, providerID uuid.UUID) error {
	f.invalidated = append(f.invalidated, providerID)
	return f.err
}

type fakeSchedules struct {
	sched    *availability.Schedule
	replaced *availability.Schedule
}

func (f *fakeSchedules) Get(_ context.Context, providerID uuid.UUID) (*availability.Schedule, error) {
	if f.sched == nil {
		return nil, bookings.ErrProviderNotFound
	}
	s := *f.sched
	s.ProviderID = providerID
	return &s, nil
}

func (f *fakeSchedules) Replace(_ context.Context, sched *availability.Schedule) error {
	if err := sched.Validate(); err != nil {
		return err
	}
	f.replaced = sched
	return nil
}

type fakeEvents struct {
	types []string
	err   error
}

func (f *fakeEvents) Append(_ context.Context, _ uuid.UUID, evt events.CanonicalEvent) (uuid.UUID, error) {
	f.types = append(f.types, evt.EventType())
	return uuid.New(), f.err
}

type fakeAudit struct {
	entries []audit.Entry
	err     error
}

func (f *fakeAudit) Record(_ context.Context, e audit.Entry) error {
	f.entries = append(f.entries, e)
	return f.err
}

func (f *fakeAudit) History(_ context.Context, filter audit.Filter) ([]audit.Entry, error) {
	var out []audit.Entry
	for _, e := range f.entries {
		if e.BookingID == filter.BookingID {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakeRecorder struct {
	results     map[string]string
	sideEffects []string
}

func (f *fakeRecorder) ObserveAction(action, result string, _ float64) {
	if f.results == nil {
		f.results = map[string]string{}
	}
	f.results[action] = result
}

func (f *fakeRecorder) SideEffectFailed(kind string) { f.sideEffects = append(f.sideEffects, kind) }

type harness struct {
	svc       *Service
	store     *fakeStore
	avail     *fakeAvailability
	schedules *fakeSchedules
	events    *fakeEvents
	audit     *fakeAudit
	metrics   *fakeRecorder
	favs      *fakeFavorites
}

func weekdayHours() *availability.Schedule {
	var days []availability.DayHours
	for d := time.Monday; d <= time.Friday; d++ {
		days = append(days, availability.DayHours{Weekday: d, Open: "09:00", Close: "17:00"})
	}
	return &availability.Schedule{SlotMinutes: 60, Days: days}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:     &fakeStore{},
		avail:     &fakeAvailability{},
		schedules: &fakeSchedules{sched: weekdayHours()},
		events:    &fakeEvents{},
		audit:     &fakeAudit{},
		metrics:   &fakeRecorder{},
		favs:      &fakeFavorites{state: map[uuid.UUID]bool{}},
	}
	h.svc = New(Deps{
		Bookings:     h.store,
		Availability: h.avail,
		Schedules:    h.schedules,
		Favorites:    h.favs,
		Events:       h.events,
		Audit:        h.audit,
		Metrics:      h.metrics,
	})
	h.svc.now = func() time.Time { return testNow }
	return h
}

func asRequester(id uuid.UUID) context.Context {
	return tenancy.WithActor(context.Background(), tenancy.Actor{ID: id, Role: tenancy.RoleRequester})
}

func asStaff(providerID uuid.UUID) context.Context {
	return tenancy.WithActor(context.Background(), tenancy.Actor{ID: uuid.New(), Role: tenancy.RoleProviderStaff, ProviderID: providerID})
}

func asAdmin() context.Context {
	return tenancy.WithActor(context.Background(), tenancy.Actor{ID: uuid.New(), Role: tenancy.RoleAdmin})
}

func requireCode(t *testing.T, err error, code Code) *Error {
	t.Helper()
	require.Error(t, err)
	var ae *Error
	require.True(t, errors.As(err, &ae), "expected *Error, got %T", err)
	assert.Equal(t, code, ae.Code)
	return ae
}

func TestNewRequiresCoreDeps(t *testing.T) {
	assert.Panics(t, func() { New(Deps{}) })
}

func TestTraceNormalizesErrors(t *testing.T) {
	h := newHarness(t)
	h.store.err = errors.New("connection reset")

	_, err := h.svc.ListMyBookings(asRequester(uuid.New()), bookings.ListFilter{})

	ae := requireCode(t, err, CodeInternal)
	assert.Equal(t, "something went wrong", ae.Message)
	assert.ErrorContains(t, err, "connection reset")
	assert.Equal(t, "internal", h.metrics.results["list_mine"])
}

func TestTraceRecordsSuccess(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.ListMyBookings(asRequester(uuid.New()), bookings.ListFilter{})

	require.NoError(t, err)
	assert.Equal(t, "ok", h.metrics.results["list_mine"])
}

func TestActionsRequireActor(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.GetBooking(ctx, uuid.New())
	requireCode(t, err, CodeUnauthorized)
	_, err = h.svc.ConfirmBooking(ctx, uuid.New())
	requireCode(t, err, CodeUnauthorized)
	_, err = h.svc.GetAvailability(ctx, availability.Query{ProviderID: uuid.New()})
	requireCode(t, err, CodeUnauthorized)
	assert.Equal(t, "unauthorized", h.metrics.results["availability"])
}

func TestStaffWithoutProviderClaimResolvesMembership(t *testing.T) {
	h := newHarness(t)
	providerID := uuid.New()
	h.store.staffOf = providerID
	h.store.booking = &bookings.Booking{ID: uuid.New(), ProviderID: providerID, Status: bookings.StatusPending}

	_, err := h.svc.ConfirmBooking(asStaff(uuid.Nil), h.store.booking.ID)
	require.NoError(t, err)
	assert.Equal(t, providerID, h.store.lastProvider)

	h.store.staffOf = uuid.Nil
	_, err = h.svc.ConfirmBooking(asStaff(uuid.Nil), h.store.booking.ID)
	ae := requireCode(t, err, CodeUnauthorized)
	assert.Equal(t, "no provider associated with this account", ae.Message)
}

func TestAdminWritesAreFilteredByBookingProvider(t *testing.T) {
	h := newHarness(t)
	providerID := uuid.New()
	h.store.booking = &bookings.Booking{ID: uuid.New(), ProviderID: providerID, Status: bookings.StatusConfirmed}

	_, err := h.svc.CompleteBooking(asAdmin(), h.store.booking.ID)
	require.NoError(t, err)
	assert.Equal(t, providerID, h.store.lastProvider)
	assert.Equal(t, []bookings.Scope{{}}, h.store.scopes)

	_, err = h.svc.DeclineBooking(asAdmin(), h.store.booking.ID, "")
	require.NoError(t, err)
	assert.Equal(t, bookings.Scope{ProviderID: providerID}, h.store.scopes[len(h.store.scopes)-1])

	h.store.booking = nil
	_, err = h.svc.ConfirmBooking(asAdmin(), uuid.New())
	requireCode(t, err, CodeNotFoundOrProcessed)
}

func TestAuthorizeProvider(t *testing.T) {
	h := newHarness(t)
	providerID := uuid.New()

	_, err := h.svc.AuthorizeProvider(asStaff(providerID), providerID)
	assert.NoError(t, err)

	_, err = h.svc.AuthorizeProvider(asStaff(uuid.New()), providerID)
	requireCode(t, err, CodeUnauthorized)

	_, err = h.svc.AuthorizeProvider(asRequester(uuid.New()), providerID)
	requireCode(t, err, CodeUnauthorized)

	_, err = h.svc.AuthorizeProvider(asAdmin(), providerID)
	assert.NoError(t, err)
}

func TestClassifyMapsDomainErrors(t *testing.T) {
	cases := []struct {
		err  error
		code Code
	}{
		{bookings.ErrNotFoundOrProcessed, CodeNotFoundOrProcessed},
		{bookings.ErrNotFound, CodeNotFoundOrProcessed},
		{bookings.ErrConflict, CodeConflict},
		{bookings.ErrProviderNotFound, CodeValidation},
		{bookings.ErrServiceNotFound, CodeValidation},
		{bookings.ErrTooSoon, CodeValidation},
		{availability.ErrInvalidWindow, CodeValidation},
		{errors.New("boom"), CodeInternal},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.code, classify(tc.err).Code, tc.err.Error())
	}
	assert.Nil(t, classify(nil))
	assert.Nil(t, AsError(nil))
}
