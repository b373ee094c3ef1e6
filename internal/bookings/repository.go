package bookings

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var repoTracer = otel.Tracer("caremarket.internal.bookings")

// DB abstracts the pgx pool so tests can inject pgxmock.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

const bookingColumns = `id, provider_id, requester_id, dependent_id, service_id, kind, scheduled_at,
	duration_minutes, status, remote, meeting_url, recurrence, series_id, series_ends_at, notes,
	cancel_reason, cancelled_by, created_at, confirmed_at, cancelled_at, completed_at, updated_at`

// blockingStatuses occupy calendar time. Only CANCELLED frees a slot.
var blockingStatuses = []Status{StatusPending, StatusConfirmed, StatusCompleted, StatusNoShow}

// Scope restricts a query to a tenant and/or a requester. Zero fields are not
// applied, so an empty Scope is only handed out to admins.
type Scope struct {
	ProviderID  uuid.UUID
	RequesterID uuid.UUID
}

// Repository persists bookings in Postgres. Every status change is a single
// guarded UPDATE; no read is trusted for correctness.
type Repository struct {
	db  DB
	now func() time.Time
}

// NewRepository builds a repository over a pgx pool or transaction-capable mock.
func NewRepository(db DB) *Repository {
	if db == nil {
		panic("bookings: db required")
	}
	return &Repository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

type queryArgs []any

func (a *queryArgs) add(v any) string {
	*a = append(*a, v)
	return "$" + strconv.Itoa(len(*a))
}

func (s Scope) where(args *queryArgs) string {
	var b strings.Builder
	if s.ProviderID != uuid.Nil {
		b.WriteString(" AND provider_id = " + args.add(s.ProviderID))
	}
	if s.RequesterID != uuid.Nil {
		b.WriteString(" AND requester_id = " + args.add(s.RequesterID))
	}
	return b.String()
}

// Create inserts a single booking. The provider row is locked for the
// duration of the transaction and overlap is re-checked under that lock.
func (r *Repository) Create(ctx context.Context, in NewBooking) (*Booking, error) {
	created, err := r.insertAll(ctx, []NewBooking{in}, nil)
	if err != nil {
		return nil, err
	}
	return &created[0], nil
}

// CreateSeries inserts every occurrence of a recurring request atomically.
// All members share one series id; any overlap aborts the whole series.
func (r *Repository) CreateSeries(ctx context.Context, items []NewBooking) ([]Booking, error) {
	if len(items) == 0 {
		return nil, ErrEmptySeries
	}
	seriesID := uuid.New()
	return r.insertAll(ctx, items, &seriesID)
}

func (r *Repository) insertAll(ctx context.Context, items []NewBooking, seriesID *uuid.UUID) (_ []Booking, err error) {
	ctx, span := repoTracer.Start(ctx, "bookings.insert")
	span.SetAttributes(
		attribute.String("caremarket.provider_id", items[0].ProviderID.String()),
		attribute.Int("caremarket.bookings", len(items)),
	)
	defer func() { endSpan(span, err) }()

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("bookings: begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	providerID := items[0].ProviderID
	var locked uuid.UUID
	err = tx.QueryRow(ctx, `SELECT id FROM providers WHERE id = $1 FOR UPDATE`, providerID).Scan(&locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrProviderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("bookings: lock provider: %w", err)
	}

	out := make([]Booking, 0, len(items))
	for _, in := range items {
		if in.ScheduledAt != nil {
			end := in.ScheduledAt.Add(time.Duration(in.DurationMinutes) * time.Minute)
			var overlaps bool
			err := tx.QueryRow(ctx, `
				SELECT EXISTS (
					SELECT 1 FROM bookings
					WHERE provider_id = $1 AND status = ANY($2) AND scheduled_at IS NOT NULL
					  AND scheduled_at < $3
					  AND scheduled_at + make_interval(mins => duration_minutes) > $4
				)`, providerID, statusStrings(blockingStatuses), end, *in.ScheduledAt).Scan(&overlaps)
			if err != nil {
				return nil, fmt.Errorf("bookings: check overlap: %w", err)
			}
			if overlaps {
				return nil, ErrConflict
			}
		}

		b, err := r.insertTx(ctx, tx, in, seriesID)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("bookings: commit: %w", err)
	}
	return out, nil
}

func (r *Repository) insertTx(ctx context.Context, tx pgx.Tx, in NewBooking, seriesID *uuid.UUID) (*Booking, error) {
	kind := in.Kind
	if kind == "" {
		kind = KindAppointment
	}
	recurrence := in.Recurrence
	if recurrence == "" {
		recurrence = RecurrenceNone
	}
	now := r.now()
	row := tx.QueryRow(ctx, `
		INSERT INTO bookings (id, provider_id, requester_id, dependent_id, service_id, kind, scheduled_at,
			duration_minutes, status, remote, recurrence, series_id, series_ends_at, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $15)
		RETURNING `+bookingColumns,
		uuid.New(), in.ProviderID, in.RequesterID, in.DependentID, in.ServiceID, string(kind), in.ScheduledAt,
		in.DurationMinutes, string(StatusPending), in.Remote, string(recurrence), seriesID, in.SeriesEndsAt,
		in.Notes, now,
	)
	b, err := scanBooking(row)
	if err != nil {
		return nil, fmt.Errorf("bookings: insert: %w", err)
	}
	return b, nil
}

// Get loads one booking within scope.
func (r *Repository) Get(ctx context.Context, id uuid.UUID, scope Scope) (*Booking, error) {
	args := queryArgs{}
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ` + args.add(id) + scope.where(&args)
	b, err := scanBooking(r.db.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("bookings: get: %w", err)
	}
	return b, nil
}

// List returns bookings within scope ordered by scheduled time, tours last.
func (r *Repository) List(ctx context.Context, scope Scope, filter ListFilter) ([]Booking, error) {
	args := queryArgs{}
	var b strings.Builder
	b.WriteString(`SELECT ` + bookingColumns + ` FROM bookings WHERE TRUE`)
	b.WriteString(scope.where(&args))
	if len(filter.Statuses) > 0 {
		b.WriteString(" AND status = ANY(" + args.add(statusStrings(filter.Statuses)) + ")")
	}
	if filter.From != nil {
		b.WriteString(" AND scheduled_at >= " + args.add(*filter.From))
	}
	if filter.To != nil {
		b.WriteString(" AND scheduled_at < " + args.add(*filter.To))
	}
	b.WriteString(" ORDER BY scheduled_at ASC NULLS LAST, created_at ASC")
	b.WriteString(" LIMIT " + args.add(filter.limit()) + " OFFSET " + args.add(filter.offset()))

	rows, err := r.db.Query(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("bookings: list: %w", err)
	}
	defer rows.Close()
	return scanBookings(rows)
}

// ListSeries returns every member of a series within scope.
func (r *Repository) ListSeries(ctx context.Context, seriesID uuid.UUID, scope Scope) ([]Booking, error) {
	args := queryArgs{}
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE series_id = ` + args.add(seriesID) +
		scope.where(&args) + ` ORDER BY scheduled_at ASC`
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("bookings: list series: %w", err)
	}
	defer rows.Close()
	return scanBookings(rows)
}

// Confirm moves a PENDING booking of the provider to CONFIRMED.
func (r *Repository) Confirm(ctx context.Context, id, providerID uuid.UUID) (*Booking, error) {
	args := queryArgs{}
	now := args.add(r.now())
	return r.transition(ctx, r.db, "confirm", id, Scope{ProviderID: providerID}, TransitionConfirm, &args,
		"status = "+args.add(string(StatusConfirmed))+", confirmed_at = "+now+", updated_at = "+now)
}

// Cancel moves a PENDING or CONFIRMED booking to CANCELLED. A requester
// cancel passes both provider and requester in scope.
func (r *Repository) Cancel(ctx context.Context, id uuid.UUID, scope Scope, reason string, by Party) (*Booking, error) {
	return r.cancel(ctx, r.db, id, scope, reason, by)
}

func (r *Repository) cancel(ctx context.Context, q querier, id uuid.UUID, scope Scope, reason string, by Party) (*Booking, error) {
	args := queryArgs{}
	now := args.add(r.now())
	set := "status = " + args.add(string(StatusCancelled)) +
		", cancelled_at = " + now +
		", cancel_reason = " + args.add(reason) +
		", cancelled_by = " + args.add(string(by)) +
		", updated_at = " + now
	return r.transition(ctx, q, "cancel", id, scope, TransitionCancel, &args, set)
}

// Complete moves a CONFIRMED booking to COMPLETED.
func (r *Repository) Complete(ctx context.Context, id, providerID uuid.UUID) (*Booking, error) {
	args := queryArgs{}
	now := args.add(r.now())
	return r.transition(ctx, r.db, "complete", id, Scope{ProviderID: providerID}, TransitionComplete, &args,
		"status = "+args.add(string(StatusCompleted))+", completed_at = "+now+", updated_at = "+now)
}

// MarkNoShow moves a CONFIRMED booking to NO_SHOW.
func (r *Repository) MarkNoShow(ctx context.Context, id, providerID uuid.UUID) (*Booking, error) {
	args := queryArgs{}
	now := args.add(r.now())
	return r.transition(ctx, r.db, "no-show", id, Scope{ProviderID: providerID}, TransitionNoShow, &args,
		"status = "+args.add(string(StatusNoShow))+", updated_at = "+now)
}

// AttachMeetingURL sets the meeting link on an open remote booking.
func (r *Repository) AttachMeetingURL(ctx context.Context, id, providerID uuid.UUID, meetingURL string) (*Booking, error) {
	args := queryArgs{}
	now := args.add(r.now())
	return r.transition(ctx, r.db, "meeting link", id, Scope{ProviderID: providerID}, TransitionMeetingLink, &args,
		"meeting_url = "+args.add(meetingURL)+", updated_at = "+now, "remote = TRUE")
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// transition runs UPDATE ... WHERE id AND status = ANY(preconditions) AND scope.
// The status check is part of the write; zero rows means someone else got there
// first or the booking is outside the caller's scope.
func (r *Repository) transition(ctx context.Context, q querier, op string, id uuid.UUID, scope Scope, t Transition, args *queryArgs, set string, extra ...string) (_ *Booking, err error) {
	ctx, span := repoTracer.Start(ctx, "bookings."+op)
	span.SetAttributes(attribute.String("caremarket.booking_id", id.String()))
	defer func() { endSpan(span, err) }()

	if scope.ProviderID == uuid.Nil && scope.RequesterID == uuid.Nil {
		return nil, ErrUnscopedWrite
	}
	var b strings.Builder
	b.WriteString("UPDATE bookings SET " + set)
	b.WriteString(" WHERE id = " + args.add(id))
	b.WriteString(" AND status = ANY(" + args.add(statusStrings(t.Preconditions())) + ")")
	b.WriteString(scope.where(args))
	for _, cond := range extra {
		b.WriteString(" AND " + cond)
	}
	b.WriteString(" RETURNING " + bookingColumns)

	booking, err := scanBooking(q.QueryRow(ctx, b.String(), (*args)...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFoundOrProcessed
	}
	if err != nil {
		return nil, fmt.Errorf("bookings: %s: %w", op, err)
	}
	return booking, nil
}

// SeriesCancellation reports what a series cancel did.
type SeriesCancellation struct {
	Cancelled []Booking
	Skipped   []uuid.UUID
}

// CancelSeries cancels every non-terminal member of a series in one
// transaction. allow, when set, is consulted per member; members it rejects
// are skipped and reported.
func (r *Repository) CancelSeries(ctx context.Context, seriesID uuid.UUID, scope Scope, reason string, by Party, allow func(Booking) bool) (*SeriesCancellation, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("bookings: begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	args := queryArgs{}
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE series_id = ` + args.add(seriesID) +
		` AND status = ANY(` + args.add(statusStrings(TransitionCancel.Preconditions())) + `)` +
		scope.where(&args) + ` ORDER BY scheduled_at ASC FOR UPDATE`
	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("bookings: load series: %w", err)
	}
	members, err := scanBookings(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, ErrNotFoundOrProcessed
	}

	result := &SeriesCancellation{}
	for _, m := range members {
		if allow != nil && !allow(m) {
			result.Skipped = append(result.Skipped, m.ID)
			continue
		}
		cancelled, err := r.cancel(ctx, tx, m.ID, Scope{ProviderID: m.ProviderID}, reason, by)
		if errors.Is(err, ErrNotFoundOrProcessed) {
			result.Skipped = append(result.Skipped, m.ID)
			continue
		}
		if err != nil {
			return nil, err
		}
		result.Cancelled = append(result.Cancelled, *cancelled)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("bookings: commit series cancel: %w", err)
	}
	return result, nil
}

// BusyIntervals returns occupied ranges of the provider that intersect [from, to).
func (r *Repository) BusyIntervals(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]BusyInterval, error) {
	rows, err := r.db.Query(ctx, `
		SELECT scheduled_at, duration_minutes
		FROM bookings
		WHERE provider_id = $1 AND status = ANY($2) AND scheduled_at IS NOT NULL
		  AND scheduled_at < $3
		  AND scheduled_at + make_interval(mins => duration_minutes) > $4
		ORDER BY scheduled_at`,
		providerID, statusStrings(blockingStatuses), to, from)
	if err != nil {
		return nil, fmt.Errorf("bookings: busy intervals: %w", err)
	}
	defer rows.Close()

	var out []BusyInterval
	for rows.Next() {
		var start time.Time
		var minutes int
		if err := rows.Scan(&start, &minutes); err != nil {
			return nil, fmt.Errorf("bookings: scan busy interval: %w", err)
		}
		out = append(out, BusyInterval{Start: start, End: start.Add(time.Duration(minutes) * time.Minute)})
	}
	return out, rows.Err()
}

// GetService loads a service owned by the provider.
func (r *Repository) GetService(ctx context.Context, providerID, serviceID uuid.UUID) (*Service, error) {
	var svc Service
	err := r.db.QueryRow(ctx, `
		SELECT id, provider_id, name, duration_minutes, remote, active
		FROM services
		WHERE id = $1 AND provider_id = $2`, serviceID, providerID).
		Scan(&svc.ID, &svc.ProviderID, &svc.Name, &svc.DurationMinutes, &svc.Remote, &svc.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrServiceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("bookings: get service: %w", err)
	}
	return &svc, nil
}

// StaffProvider resolves the provider a staff user belongs to.
func (r *Repository) StaffProvider(ctx context.Context, userID uuid.UUID) (uuid.UUID, error) {
	var providerID uuid.UUID
	err := r.db.QueryRow(ctx, `SELECT provider_id FROM staff_memberships WHERE user_id = $1`, userID).Scan(&providerID)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, ErrProviderNotFound
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("bookings: staff provider: %w", err)
	}
	return providerID, nil
}

// DependentOf reports whether the dependent belongs to the requester.
func (r *Repository) DependentOf(ctx context.Context, dependentID, requesterID uuid.UUID) (bool, error) {
	var ok bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM dependents WHERE id = $1 AND guardian_id = $2)`,
		dependentID, requesterID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("bookings: dependent lookup: %w", err)
	}
	return ok, nil
}

// CompleteElapsed marks CONFIRMED bookings whose end plus grace is before
// asOf as COMPLETED.
func (r *Repository) CompleteElapsed(ctx context.Context, asOf time.Time, grace time.Duration) ([]Booking, error) {
	rows, err := r.db.Query(ctx, `
		UPDATE bookings
		SET status = $1, completed_at = $2, updated_at = $2
		WHERE status = ANY($3) AND scheduled_at IS NOT NULL
		  AND scheduled_at + make_interval(mins => duration_minutes + $4) < $2
		RETURNING `+bookingColumns,
		string(StatusCompleted), asOf, statusStrings(TransitionComplete.Preconditions()), int(grace/time.Minute))
	if err != nil {
		return nil, fmt.Errorf("bookings: complete elapsed: %w", err)
	}
	defer rows.Close()
	return scanBookings(rows)
}

// ExpireStalePending cancels PENDING bookings whose start time has passed.
func (r *Repository) ExpireStalePending(ctx context.Context, asOf time.Time) ([]Booking, error) {
	rows, err := r.db.Query(ctx, `
		UPDATE bookings
		SET status = $1, cancelled_at = $2, cancel_reason = $3, cancelled_by = $4, updated_at = $2
		WHERE status = ANY($5) AND scheduled_at IS NOT NULL AND scheduled_at < $2
		RETURNING `+bookingColumns,
		string(StatusCancelled), asOf, ExpiredReason, string(PartySystem), statusStrings([]Status{StatusPending}))
	if err != nil {
		return nil, fmt.Errorf("bookings: expire pending: %w", err)
	}
	defer rows.Close()
	return scanBookings(rows)
}

// ExpiredReason is the cancel reason recorded by the sweeper.
const ExpiredReason = "expired"

func scanBooking(row pgx.Row) (*Booking, error) {
	var b Booking
	var kind, status, recurrence string
	var meetingURL, notes, cancelReason, cancelledBy *string
	err := row.Scan(
		&b.ID, &b.ProviderID, &b.RequesterID, &b.DependentID, &b.ServiceID, &kind, &b.ScheduledAt,
		&b.DurationMinutes, &status, &b.Remote, &meetingURL, &recurrence, &b.SeriesID, &b.SeriesEndsAt, &notes,
		&cancelReason, &cancelledBy, &b.CreatedAt, &b.ConfirmedAt, &b.CancelledAt, &b.CompletedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	b.Kind = Kind(kind)
	b.Status = Status(status)
	b.Recurrence = Recurrence(recurrence)
	b.MeetingURL = deref(meetingURL)
	b.Notes = deref(notes)
	b.CancelReason = deref(cancelReason)
	b.CancelledBy = Party(deref(cancelledBy))
	return &b, nil
}

func scanBookings(rows pgx.Rows) ([]Booking, error) {
	var out []Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("bookings: scan: %w", err)
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// endSpan records unexpected failures. Lost status races are not errors.
func endSpan(span trace.Span, err error) {
	if err != nil && !errors.Is(err, ErrNotFoundOrProcessed) && !errors.Is(err, ErrConflict) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
