// Package actions is the authorization-checked entry point for every booking,
// schedule and favorite operation. Each action resolves the caller from
// context, performs one store operation and then fires the side effects
// (availability invalidation, outbox event, audit entry) without letting
// their failures reach the caller.
package actions

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/caremarket-platform/internal/audit"
	"github.com/wolfman30/caremarket-platform/internal/availability"
	"github.com/wolfman30/caremarket-platform/internal/bookings"
	"github.com/wolfman30/caremarket-platform/internal/events"
	"github.com/wolfman30/caremarket-platform/internal/favorites"
	"github.com/wolfman30/caremarket-platform/internal/tenancy"
	"github.com/wolfman30/caremarket-platform/pkg/logging"
)

var actionsTracer = otel.Tracer("caremarket.internal.actions")

// BookingStore is the persistence surface actions need.
type BookingStore interface {
	Create(ctx context.Context, in bookings.NewBooking) (*bookings.Booking, error)
	CreateSeries(ctx context.Context, items []bookings.NewBooking) ([]bookings.Booking, error)
	Get(ctx context.Context, id uuid.UUID, scope bookings.Scope) (*bookings.Booking, error)
	List(ctx context.Context, scope bookings.Scope, filter bookings.ListFilter) ([]bookings.Booking, error)
	Confirm(ctx context.Context, id, providerID uuid.UUID) (*bookings.Booking, error)
	Cancel(ctx context.Context, id uuid.UUID, scope bookings.Scope, reason string, by bookings.Party) (*bookings.Booking, error)
	Complete(ctx context.Context, id, providerID uuid.UUID) (*bookings.Booking, error)
	MarkNoShow(ctx context.Context, id, providerID uuid.UUID) (*bookings.Booking, error)
	AttachMeetingURL(ctx context.Context, id, providerID uuid.UUID, meetingURL string) (*bookings.Booking, error)
	CancelSeries(ctx context.Context, seriesID uuid.UUID, scope bookings.Scope, reason string, by bookings.Party, allow func(bookings.Booking) bool) (*bookings.SeriesCancellation, error)
	GetService(ctx context.Context, providerID, serviceID uuid.UUID) (*bookings.Service, error)
	StaffProvider(ctx context.Context, userID uuid.UUID) (uuid.UUID, error)
	DependentOf(ctx context.Context, dependentID, requesterID uuid.UUID) (bool, error)
}

// Availability answers slot queries and drops cached windows.
type Availability interface {
	Available(ctx context.Context, q availability.Query) ([]availability.Slot, error)
	Invalidate(ctx context.Context, providerID uuid.UUID) error
}

// Schedules reads and replaces weekly schedules.
type Schedules interface {
	Get(ctx context.Context, providerID uuid.UUID) (*availability.Schedule, error)
	Replace(ctx context.Context, sched *availability.Schedule) error
}

// Favorites stores starred providers.
type Favorites interface {
	Toggle(ctx context.Context, userID, providerID uuid.UUID) (bool, error)
	List(ctx context.Context, userID uuid.UUID) ([]favorites.Favorite, error)
}

// EventSink appends outbox events.
type EventSink interface {
	Append(ctx context.Context, providerID uuid.UUID, evt events.CanonicalEvent) (uuid.UUID, error)
}

// AuditLog records and reads booking history.
type AuditLog interface {
	Record(ctx context.Context, e audit.Entry) error
	History(ctx context.Context, filter audit.Filter) ([]audit.Entry, error)
}

// Recorder receives action timings and side-effect failures.
type Recorder interface {
	ObserveAction(action, result string, seconds float64)
	SideEffectFailed(kind string)
}

// Deps wires a Service. Bookings, Availability and Schedules are required.
type Deps struct {
	Bookings           BookingStore
	Availability       Availability
	Schedules          Schedules
	Favorites          Favorites
	Events             EventSink
	Audit              AuditLog
	Metrics            Recorder
	Logger             *logging.Logger
	DefaultSlotMinutes int
}

// Service implements the action layer.
type Service struct {
	bookings     BookingStore
	availability Availability
	schedules    Schedules
	favorites    Favorites
	events       EventSink
	audit        AuditLog
	metrics      Recorder
	logger       *logging.Logger
	slotMinutes  int
	now          func() time.Time
}

// New builds the action layer.
func New(deps Deps) *Service {
	if deps.Bookings == nil || deps.Availability == nil || deps.Schedules == nil {
		panic("actions: bookings, availability and schedules are required")
	}
	if deps.Logger == nil {
		deps.Logger = logging.Default()
	}
	return &Service{
		bookings:     deps.Bookings,
		availability: deps.Availability,
		schedules:    deps.Schedules,
		favorites:    deps.Favorites,
		events:       deps.Events,
		audit:        deps.Audit,
		metrics:      deps.Metrics,
		logger:       deps.Logger,
		slotMinutes:  deps.DefaultSlotMinutes,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// trace opens a span for the action and returns the finisher every action
// defers. The finisher normalizes err into *Error, logs internal failures and
// records the outcome.
func (s *Service) trace(ctx context.Context, action string, attrs ...attribute.KeyValue) (context.Context, func(error) error) {
	ctx, span := actionsTracer.Start(ctx, "actions."+action,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
	if actor, ok := tenancy.ActorFromContext(ctx); ok {
		span.SetAttributes(
			attribute.String("caremarket.actor_id", actor.ID.String()),
			attribute.String("caremarket.role", string(actor.Role)),
		)
	}
	started := time.Now()
	return ctx, func(err error) error {
		defer span.End()
		result := "ok"
		ae := classify(err)
		if ae != nil {
			result = string(ae.Code)
			if ae.Code == CodeInternal {
				span.RecordError(err)
				span.SetStatus(codes.Error, ae.Message)
				s.logger.Error("action failed", "action", action, "error", err)
			}
		}
		if s.metrics != nil {
			s.metrics.ObserveAction(action, result, time.Since(started).Seconds())
		}
		if ae == nil {
			return nil
		}
		return ae
	}
}

func (s *Service) actor(ctx context.Context) (tenancy.Actor, error) {
	actor, ok := tenancy.ActorFromContext(ctx)
	if !ok {
		return tenancy.Actor{}, unauthorized("authentication required")
	}
	return actor, nil
}

func (s *Service) requester(ctx context.Context) (tenancy.Actor, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return actor, err
	}
	if actor.Role != tenancy.RoleRequester {
		return actor, unauthorized("only requesters can do this")
	}
	return actor, nil
}

// staff resolves the provider a staff actor acts for. Admins get uuid.Nil,
// which leaves provider scoping off for reads.
func (s *Service) staff(ctx context.Context) (tenancy.Actor, uuid.UUID, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return actor, uuid.Nil, err
	}
	switch actor.Role {
	case tenancy.RoleAdmin:
		return actor, uuid.Nil, nil
	case tenancy.RoleProviderStaff:
	default:
		return actor, uuid.Nil, unauthorized("provider staff only")
	}
	if actor.HasProvider() {
		return actor, actor.ProviderID, nil
	}
	providerID, err := s.bookings.StaffProvider(ctx, actor.ID)
	if errors.Is(err, bookings.ErrProviderNotFound) {
		return actor, uuid.Nil, unauthorized("no provider associated with this account")
	}
	if err != nil {
		return actor, uuid.Nil, err
	}
	return actor, providerID, nil
}

// writeScope resolves the provider a staff write on booking id is filtered
// by. Admins have no provider of their own, so the booking's is used.
func (s *Service) writeScope(ctx context.Context, id uuid.UUID) (tenancy.Actor, uuid.UUID, error) {
	actor, providerID, err := s.staff(ctx)
	if err != nil || providerID != uuid.Nil {
		return actor, providerID, err
	}
	b, err := s.bookings.Get(ctx, id, bookings.Scope{})
	if errors.Is(err, bookings.ErrNotFound) {
		return actor, uuid.Nil, bookings.ErrNotFoundOrProcessed
	}
	if err != nil {
		return actor, uuid.Nil, err
	}
	return actor, b.ProviderID, nil
}

// AuthorizeProvider checks that the caller is staff of providerID or an admin.
func (s *Service) AuthorizeProvider(ctx context.Context, providerID uuid.UUID) (tenancy.Actor, error) {
	actor, scoped, err := s.staff(ctx)
	if err != nil {
		return actor, classify(err)
	}
	if scoped != uuid.Nil && scoped != providerID {
		return actor, unauthorized("not a member of this provider")
	}
	return actor, nil
}

// readScope limits reads to what the actor may see.
func (s *Service) readScope(ctx context.Context) (tenancy.Actor, bookings.Scope, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return actor, bookings.Scope{}, err
	}
	switch actor.Role {
	case tenancy.RoleRequester:
		return actor, bookings.Scope{RequesterID: actor.ID}, nil
	default:
		actor, providerID, err := s.staff(ctx)
		return actor, bookings.Scope{ProviderID: providerID}, err
	}
}

// invalidate drops cached availability. Failures are logged and counted.
func (s *Service) invalidate(ctx context.Context, providerID uuid.UUID) {
	if err := s.availability.Invalidate(ctx, providerID); err != nil {
		s.sideEffectFailed("cache", err, "provider_id", providerID)
	}
}

func (s *Service) publish(ctx context.Context, providerID uuid.UUID, evt events.CanonicalEvent) {
	if s.events == nil {
		return
	}
	if _, err := s.events.Append(ctx, providerID, evt); err != nil {
		s.sideEffectFailed("outbox", err, "provider_id", providerID, "type", evt.EventType())
	}
}

func (s *Service) record(ctx context.Context, actor tenancy.Actor, action string, from bookings.Status, b *bookings.Booking) {
	if s.audit == nil {
		return
	}
	entry := audit.Entry{
		BookingID:  b.ID,
		ProviderID: b.ProviderID,
		ActorRole:  string(actor.Role),
		Action:     action,
		FromStatus: string(from),
		ToStatus:   string(b.Status),
		Reason:     b.CancelReason,
	}
	if actor.ID != uuid.Nil {
		id := actor.ID
		entry.ActorID = &id
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.sideEffectFailed("audit", err, "booking_id", b.ID)
	}
}

// afterBooking runs the side effects of one committed booking mutation.
func (s *Service) afterBooking(ctx context.Context, actor tenancy.Actor, action string, eventType string, from bookings.Status, b *bookings.Booking) {
	s.invalidate(ctx, b.ProviderID)
	s.publish(ctx, b.ProviderID, events.NewBookingEvent(eventType, b, actor.ID, string(actor.Role)))
	s.record(ctx, actor, action, from, b)
}

func (s *Service) sideEffectFailed(kind string, err error, kv ...any) {
	if s.metrics != nil {
		s.metrics.SideEffectFailed(kind)
	}
	s.logger.Warn("side effect failed", append([]any{"kind", kind, "error", err}, kv...)...)
}
