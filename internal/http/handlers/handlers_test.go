package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/caremarket-platform/internal/actions"
	"github.com/wolfman30/caremarket-platform/internal/availability"
	"github.com/wolfman30/caremarket-platform/internal/bookings"
	"github.com/wolfman30/caremarket-platform/internal/tenancy"
)

// fakeActions records arguments for the calls under test. Unstubbed calls
// panic through the nil embedded interface.
type fakeActions struct {
	Actions

	createIn   actions.CreateBookingInput
	filter     bookings.ListFilter
	providerID uuid.UUID
	reason     string
	meetingURL string
	query      availability.Query
	err        error
	authErr    error
}

func (f *fakeActions) CreateBooking(_ context.Context, in actions.CreateBookingInput) (*bookings.Booking, error) {
	f.createIn = in
	if f.err != nil {
		return nil, f.err
	}
	return &bookings.Booking{ID: uuid.New(), ProviderID: in.ProviderID, Status: bookings.StatusPending}, nil
}

func (f *fakeActions) ListMyBookings(_ context.Context, filter bookings.ListFilter) ([]bookings.Booking, error) {
	f.filter = filter
	return nil, f.err
}

func (f *fakeActions) ListProviderBookings(_ context.Context, providerID uuid.UUID, filter bookings.ListFilter) ([]bookings.Booking, error) {
	f.providerID = providerID
	f.filter = filter
	return []bookings.Booking{{ID: uuid.New()}}, f.err
}

func (f *fakeActions) CancelBookingAsRequester(_ context.Context, id uuid.UUID, reason string) (*bookings.Booking, error) {
	f.reason = reason
	if f.err != nil {
		return nil, f.err
	}
	return &bookings.Booking{ID: id, Status: bookings.StatusCancelled}, nil
}

func (f *fakeActions) AttachMeetingLink(_ context.Context, id uuid.UUID, meetingURL string) (*bookings.Booking, error) {
	f.meetingURL = meetingURL
	return &bookings.Booking{ID: id, MeetingURL: meetingURL}, f.err
}

func (f *fakeActions) GetAvailability(_ context.Context, q availability.Query) ([]availability.Slot, error) {
	f.query = q
	return []availability.Slot{}, f.err
}

func (f *fakeActions) ToggleFavorite(_ context.Context, providerID uuid.UUID) (actions.FavoriteState, error) {
	return actions.FavoriteState{ProviderID: providerID, Favorited: true}, f.err
}

func (f *fakeActions) AuthorizeProvider(_ context.Context, _ uuid.UUID) (tenancy.Actor, error) {
	return tenancy.Actor{}, f.authErr
}

type fakeFeed struct{ served []uuid.UUID }

func (f *fakeFeed) ServeFeed(w http.ResponseWriter, _ *http.Request, providerID uuid.UUID) {
	f.served = append(f.served, providerID)
	w.WriteHeader(http.StatusAccepted)
}

func newRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Post("/bookings", h.CreateBooking)
	r.Get("/bookings", h.ListMyBookings)
	r.Post("/bookings/{bookingID}/cancel", h.CancelBooking)
	r.Get("/provider/bookings", h.ListProviderBookings)
	r.Put("/provider/bookings/{bookingID}/meeting-link", h.AttachMeetingLink)
	r.Get("/providers/{providerID}/availability", h.GetAvailability)
	r.Get("/providers/{providerID}/feed", h.ProviderFeed)
	r.Post("/favorites/{providerID}/toggle", h.ToggleFavorite)
	return r
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *actions.Error  `json:"error"`
}

func serve(t *testing.T, h http.Handler, method, target, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec, env
}

func TestCreateBookingReturnsCreated(t *testing.T) {
	fake := &fakeActions{}
	providerID := uuid.New()
	body := `{"provider_id":"` + providerID.String() + `","kind":"appointment","scheduled_at":"2026-03-02T14:00:00Z","notes":"first visit"}`

	rec, env := serve(t, newRouter(NewHandler(fake, nil, nil)), http.MethodPost, "/bookings", body)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, env.Success)
	assert.Equal(t, providerID, fake.createIn.ProviderID)
	require.NotNil(t, fake.createIn.ScheduledAt)
	assert.True(t, fake.createIn.ScheduledAt.Equal(time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)))
	assert.Equal(t, "first visit", fake.createIn.Notes)

	var b bookings.Booking
	require.NoError(t, json.Unmarshal(env.Data, &b))
	assert.Equal(t, bookings.StatusPending, b.Status)
}

func TestCreateBookingRejectsBadBodies(t *testing.T) {
	router := newRouter(NewHandler(&fakeActions{}, nil, nil))

	cases := map[string]string{
		"empty":         "",
		"malformed":     `{"provider_id":`,
		"unknown field": `{"provider_id":"` + uuid.NewString() + `","price":10}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec, env := serve(t, router, http.MethodPost, "/bookings", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.False(t, env.Success)
			require.NotNil(t, env.Error)
			assert.Equal(t, actions.CodeValidation, env.Error.Code)
		})
	}
}

func TestErrorCodesMapToStatus(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   actions.Code
	}{
		{&actions.Error{Code: actions.CodeUnauthorized, Message: "no"}, http.StatusForbidden, actions.CodeUnauthorized},
		{&actions.Error{Code: actions.CodeNotFoundOrProcessed, Message: "gone"}, http.StatusNotFound, actions.CodeNotFoundOrProcessed},
		{&actions.Error{Code: actions.CodeConflict, Message: "taken"}, http.StatusConflict, actions.CodeConflict},
		{errors.New("pool exhausted"), http.StatusInternalServerError, actions.CodeInternal},
	}
	for _, tc := range cases {
		t.Run(string(tc.code), func(t *testing.T) {
			fake := &fakeActions{err: tc.err}
			rec, env := serve(t, newRouter(NewHandler(fake, nil, nil)), http.MethodPost, "/bookings",
				`{"provider_id":"`+uuid.NewString()+`"}`)
			assert.Equal(t, tc.status, rec.Code)
			require.NotNil(t, env.Error)
			assert.Equal(t, tc.code, env.Error.Code)
			assert.NotContains(t, rec.Body.String(), "pool exhausted")
		})
	}
}

func TestListMyBookingsParsesFilter(t *testing.T) {
	fake := &fakeActions{}
	rec, env := serve(t, newRouter(NewHandler(fake, nil, nil)), http.MethodGet,
		"/bookings?status=pending,%20confirmed&from=2026-03-01&limit=10", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, string(env.Data))
	assert.Equal(t, []bookings.Status{bookings.StatusPending, bookings.StatusConfirmed}, fake.filter.Statuses)
	require.NotNil(t, fake.filter.From)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), *fake.filter.From)
	assert.Nil(t, fake.filter.To)
	assert.Equal(t, 10, fake.filter.Limit)
}

func TestListMyBookingsRejectsBadQuery(t *testing.T) {
	router := newRouter(NewHandler(&fakeActions{}, nil, nil))

	for _, target := range []string{"/bookings?from=yesterday", "/bookings?limit=ten"} {
		rec, env := serve(t, router, http.MethodGet, target, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
		require.NotNil(t, env.Error)
		assert.Equal(t, actions.CodeValidation, env.Error.Code)
	}
}

func TestListProviderBookingsProviderParam(t *testing.T) {
	fake := &fakeActions{}
	router := newRouter(NewHandler(fake, nil, nil))
	providerID := uuid.New()

	rec, _ := serve(t, router, http.MethodGet, "/provider/bookings?provider_id="+providerID.String(), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, providerID, fake.providerID)

	rec, _ = serve(t, router, http.MethodGet, "/provider/bookings?provider_id=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelBookingBodyIsOptional(t *testing.T) {
	fake := &fakeActions{}
	router := newRouter(NewHandler(fake, nil, nil))
	id := uuid.New()

	rec, _ := serve(t, router, http.MethodPost, "/bookings/"+id.String()+"/cancel", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, fake.reason)

	rec, _ = serve(t, router, http.MethodPost, "/bookings/"+id.String()+"/cancel", `{"reason":"feeling better"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "feeling better", fake.reason)

	rec, env := serve(t, router, http.MethodPost, "/bookings/not-a-uuid/cancel", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "invalid bookingID", env.Error.Message)
}

func TestAttachMeetingLinkRequiresBody(t *testing.T) {
	fake := &fakeActions{}
	router := newRouter(NewHandler(fake, nil, nil))
	target := "/provider/bookings/" + uuid.NewString() + "/meeting-link"

	rec, _ := serve(t, router, http.MethodPut, target, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = serve(t, router, http.MethodPut, target, `{"meeting_url":"https://meet.example.com/abc"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://meet.example.com/abc", fake.meetingURL)
}

func TestGetAvailabilityQuery(t *testing.T) {
	fake := &fakeActions{}
	router := newRouter(NewHandler(fake, nil, nil))
	providerID, serviceID := uuid.New(), uuid.New()

	rec, env := serve(t, router, http.MethodGet,
		"/providers/"+providerID.String()+"/availability?from=2026-03-02T00:00:00Z&to=2026-03-09&service_id="+serviceID.String(), "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, string(env.Data))
	assert.Equal(t, providerID, fake.query.ProviderID)
	assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), fake.query.From)
	assert.Equal(t, time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC), fake.query.To)
	require.NotNil(t, fake.query.ServiceID)
	assert.Equal(t, serviceID, *fake.query.ServiceID)
}

func TestProviderFeed(t *testing.T) {
	providerID := uuid.New()
	target := "/providers/" + providerID.String() + "/feed"

	rec, _ := serve(t, newRouter(NewHandler(&fakeActions{}, nil, nil)), http.MethodGet, target, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	feed := &fakeFeed{}
	denied := &fakeActions{authErr: &actions.Error{Code: actions.CodeUnauthorized, Message: "not your provider"}}
	rec, _ = serve(t, newRouter(NewHandler(denied, feed, nil)), http.MethodGet, target, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, feed.served)

	rec = httptest.NewRecorder()
	newRouter(NewHandler(&fakeActions{}, feed, nil)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []uuid.UUID{providerID}, feed.served)
}

func TestToggleFavorite(t *testing.T) {
	providerID := uuid.New()
	rec, env := serve(t, newRouter(NewHandler(&fakeActions{}, nil, nil)), http.MethodPost,
		"/favorites/"+providerID.String()+"/toggle", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var state actions.FavoriteState
	require.NoError(t, json.Unmarshal(env.Data, &state))
	assert.Equal(t, actions.FavoriteState{ProviderID: providerID, Favorited: true}, state)
}
