package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wolfman30/caremarket-platform/internal/actions"
	"github.com/wolfman30/caremarket-platform/internal/audit"
	"github.com/wolfman30/caremarket-platform/internal/availability"
	"github.com/wolfman30/caremarket-platform/internal/bookings"
	"github.com/wolfman30/caremarket-platform/internal/favorites"
	"github.com/wolfman30/caremarket-platform/internal/tenancy"
	"github.com/wolfman30/caremarket-platform/pkg/logging"
)

// Actions is the action layer surface served over HTTP.
type Actions interface {
	CreateBooking(ctx context.Context, in actions.CreateBookingInput) (*bookings.Booking, error)
	CreateRecurringBooking(ctx context.Context, in actions.CreateRecurringInput) ([]bookings.Booking, error)
	GetBooking(ctx context.Context, id uuid.UUID) (*bookings.Booking, error)
	BookingHistory(ctx context.Context, id uuid.UUID) ([]audit.Entry, error)
	CancellationEligibility(ctx context.Context, id uuid.UUID) (bookings.CancelEligibility, error)
	ListMyBookings(ctx context.Context, filter bookings.ListFilter) ([]bookings.Booking, error)
	ListProviderBookings(ctx context.Context, providerID uuid.UUID, filter bookings.ListFilter) ([]bookings.Booking, error)
	ConfirmBooking(ctx context.Context, id uuid.UUID) (*bookings.Booking, error)
	DeclineBooking(ctx context.Context, id uuid.UUID, reason string) (*bookings.Booking, error)
	CancelBookingAsRequester(ctx context.Context, id uuid.UUID, reason string) (*bookings.Booking, error)
	CancelSeries(ctx context.Context, seriesID uuid.UUID, reason string) (*bookings.SeriesCancellation, error)
	CompleteBooking(ctx context.Context, id uuid.UUID) (*bookings.Booking, error)
	MarkNoShow(ctx context.Context, id uuid.UUID) (*bookings.Booking, error)
	AttachMeetingLink(ctx context.Context, id uuid.UUID, meetingURL string) (*bookings.Booking, error)
	GetAvailability(ctx context.Context, q availability.Query) ([]availability.Slot, error)
	GetSchedule(ctx context.Context, providerID uuid.UUID) (*availability.Schedule, error)
	ReplaceSchedule(ctx context.Context, sched *availability.Schedule) (*availability.Schedule, error)
	ToggleFavorite(ctx context.Context, providerID uuid.UUID) (actions.FavoriteState, error)
	ListFavorites(ctx context.Context) ([]favorites.Favorite, error)
	AuthorizeProvider(ctx context.Context, providerID uuid.UUID) (tenancy.Actor, error)
}

// FeedServer streams provider events over a websocket.
type FeedServer interface {
	ServeFeed(w http.ResponseWriter, r *http.Request, providerID uuid.UUID)
}

// Handler serves booking, schedule and favorite endpoints.
type Handler struct {
	actions Actions
	feed    FeedServer
	logger  *logging.Logger
}

// NewHandler creates the HTTP handler. feed may be nil.
func NewHandler(a Actions, feed FeedServer, logger *logging.Logger) *Handler {
	if a == nil {
		panic("handlers: actions required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{actions: a, feed: feed, logger: logger}
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

type meetingLinkRequest struct {
	MeetingURL string `json:"meeting_url"`
}

// CreateBooking handles POST /bookings.
func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var in actions.CreateBookingInput
	if err := decodeJSON(w, r, &in, false); err != nil {
		writeError(w, err)
		return
	}
	b, err := h.actions.CreateBooking(r.Context(), in)
	respond(w, http.StatusCreated, b, err)
}

// CreateRecurringBooking handles POST /bookings/recurring.
func (h *Handler) CreateRecurringBooking(w http.ResponseWriter, r *http.Request) {
	var in actions.CreateRecurringInput
	if err := decodeJSON(w, r, &in, false); err != nil {
		writeError(w, err)
		return
	}
	created, err := h.actions.CreateRecurringBooking(r.Context(), in)
	respond(w, http.StatusCreated, created, err)
}

// ListMyBookings handles GET /bookings.
func (h *Handler) ListMyBookings(w http.ResponseWriter, r *http.Request) {
	filter, err := parseListFilter(r)
	if err != nil {
		writeError(w, err)
		return
	}
	list, err := h.actions.ListMyBookings(r.Context(), filter)
	respond(w, http.StatusOK, nonNil(list), err)
}

// ListProviderBookings handles GET /provider/bookings. Admins may pass provider_id.
func (h *Handler) ListProviderBookings(w http.ResponseWriter, r *http.Request) {
	filter, err := parseListFilter(r)
	if err != nil {
		writeError(w, err)
		return
	}
	providerID, err := optionalUUID(r.URL.Query().Get("provider_id"), "provider_id")
	if err != nil {
		writeError(w, err)
		return
	}
	list, err := h.actions.ListProviderBookings(r.Context(), providerID, filter)
	respond(w, http.StatusOK, nonNil(list), err)
}

// GetBooking handles GET /bookings/{bookingID}.
func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	h.withID(w, r, "bookingID", func(id uuid.UUID) (any, error) {
		return h.actions.GetBooking(r.Context(), id)
	})
}

// BookingHistory handles GET /bookings/{bookingID}/history.
func (h *Handler) BookingHistory(w http.ResponseWriter, r *http.Request) {
	h.withID(w, r, "bookingID", func(id uuid.UUID) (any, error) {
		entries, err := h.actions.BookingHistory(r.Context(), id)
		if entries == nil {
			entries = []audit.Entry{}
		}
		return entries, err
	})
}

// CancellationEligibility handles GET /bookings/{bookingID}/cancellation.
func (h *Handler) CancellationEligibility(w http.ResponseWriter, r *http.Request) {
	h.withID(w, r, "bookingID", func(id uuid.UUID) (any, error) {
		return h.actions.CancellationEligibility(r.Context(), id)
	})
}

// CancelBooking handles POST /bookings/{bookingID}/cancel.
func (h *Handler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		writeError(w, err)
		return
	}
	h.withID(w, r, "bookingID", func(id uuid.UUID) (any, error) {
		return h.actions.CancelBookingAsRequester(r.Context(), id, req.Reason)
	})
}

// CancelSeries handles POST /series/{seriesID}/cancel.
func (h *Handler) CancelSeries(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		writeError(w, err)
		return
	}
	h.withID(w, r, "seriesID", func(id uuid.UUID) (any, error) {
		return h.actions.CancelSeries(r.Context(), id, req.Reason)
	})
}

// ConfirmBooking handles POST /provider/bookings/{bookingID}/confirm.
func (h *Handler) ConfirmBooking(w http.ResponseWriter, r *http.Request) {
	h.withID(w, r, "bookingID", func(id uuid.UUID) (any, error) {
		return h.actions.ConfirmBooking(r.Context(), id)
	})
}

// DeclineBooking handles POST /provider/bookings/{bookingID}/decline.
func (h *Handler) DeclineBooking(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		writeError(w, err)
		return
	}
	h.withID(w, r, "bookingID", func(id uuid.UUID) (any, error) {
		return h.actions.DeclineBooking(r.Context(), id, req.Reason)
	})
}

// CompleteBooking handles POST /provider/bookings/{bookingID}/complete.
func (h *Handler) CompleteBooking(w http.ResponseWriter, r *http.Request) {
	h.withID(w, r, "bookingID", func(id uuid.UUID) (any, error) {
		return h.actions.CompleteBooking(r.Context(), id)
	})
}

// MarkNoShow handles POST /provider/bookings/{bookingID}/no-show.
func (h *Handler) MarkNoShow(w http.ResponseWriter, r *http.Request) {
	h.withID(w, r, "bookingID", func(id uuid.UUID) (any, error) {
		return h.actions.MarkNoShow(r.Context(), id)
	})
}

// AttachMeetingLink handles PUT /provider/bookings/{bookingID}/meeting-link.
func (h *Handler) AttachMeetingLink(w http.ResponseWriter, r *http.Request) {
	var req meetingLinkRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, err)
		return
	}
	h.withID(w, r, "bookingID", func(id uuid.UUID) (any, error) {
		return h.actions.AttachMeetingLink(r.Context(), id, req.MeetingURL)
	})
}

// withID parses a UUID path parameter and renders the call's result.
func (h *Handler) withID(w http.ResponseWriter, r *http.Request, param string, call func(uuid.UUID) (any, error)) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		writeError(w, invalid("invalid "+param))
		return
	}
	data, err := call(id)
	respond(w, http.StatusOK, data, err)
}

func parseListFilter(r *http.Request) (bookings.ListFilter, error) {
	q := r.URL.Query()
	var f bookings.ListFilter
	if raw := q.Get("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				f.Statuses = append(f.Statuses, bookings.Status(strings.ToUpper(part)))
			}
		}
	}
	var err error
	if f.From, err = optionalTime(q.Get("from"), "from"); err != nil {
		return f, err
	}
	if f.To, err = optionalTime(q.Get("to"), "to"); err != nil {
		return f, err
	}
	if f.Limit, err = optionalInt(q.Get("limit"), "limit"); err != nil {
		return f, err
	}
	if f.Offset, err = optionalInt(q.Get("offset"), "offset"); err != nil {
		return f, err
	}
	return f, nil
}

// optionalTime accepts RFC 3339 timestamps or YYYY-MM-DD dates (UTC midnight).
func optionalTime(raw, name string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, invalid(name + " must be RFC 3339 or YYYY-MM-DD")
}

func optionalInt(raw, name string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, invalid(name + " must be an integer")
	}
	return n, nil
}

func optionalUUID(raw, name string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, invalid("invalid " + name)
	}
	return id, nil
}

func nonNil[T any](list []T) []T {
	if list == nil {
		return []T{}
	}
	return list
}
