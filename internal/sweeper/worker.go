// Package sweeper moves bookings the clock has overtaken: confirmed visits
// that have ended become COMPLETED and pending requests whose start has
// passed are cancelled as expired.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/caremarket-platform/internal/audit"
	"github.com/wolfman30/caremarket-platform/internal/bookings"
	"github.com/wolfman30/caremarket-platform/internal/events"
	"github.com/wolfman30/caremarket-platform/pkg/logging"
)

const systemRole = "system"

// Store runs the status-guarded sweep updates.
type Store interface {
	CompleteElapsed(ctx context.Context, asOf time.Time, grace time.Duration) ([]bookings.Booking, error)
	ExpireStalePending(ctx context.Context, asOf time.Time) ([]bookings.Booking, error)
}

// Invalidator drops cached availability for a provider.
type Invalidator interface {
	Invalidate(ctx context.Context, providerID uuid.UUID) error
}

// EventSink appends outbox events.
type EventSink interface {
	Append(ctx context.Context, providerID uuid.UUID, evt events.CanonicalEvent) (uuid.UUID, error)
}

// AuditLog records status changes.
type AuditLog interface {
	Record(ctx context.Context, e audit.Entry) error
}

// Recorder counts swept bookings and failed side effects.
type Recorder interface {
	ObserveSweep(toStatus string, count int)
	SideEffectFailed(kind string)
}

// Result summarises one sweep.
type Result struct {
	Completed int `json:"completed"`
	Expired   int `json:"expired"`
}

// Worker runs sweeps on an interval.
type Worker struct {
	store    Store
	cache    Invalidator
	events   EventSink
	audit    AuditLog
	recorder Recorder
	logger   *logging.Logger
	grace    time.Duration
	interval time.Duration
	now      func() time.Time
}

// Option customises a Worker.
type Option func(*Worker)

func WithInvalidator(c Invalidator) Option { return func(w *Worker) { w.cache = c } }
func WithEvents(e EventSink) Option        { return func(w *Worker) { w.events = e } }
func WithAudit(a AuditLog) Option          { return func(w *Worker) { w.audit = a } }
func WithRecorder(r Recorder) Option       { return func(w *Worker) { w.recorder = r } }

// WithGrace sets how long after a visit ends it is auto-completed.
func WithGrace(d time.Duration) Option {
	return func(w *Worker) {
		if d >= 0 {
			w.grace = d
		}
	}
}

// WithInterval sets the pause between sweeps in Run.
func WithInterval(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewWorker creates a sweeper.
func NewWorker(store Store, logger *logging.Logger, opts ...Option) *Worker {
	if store == nil {
		panic("sweeper: store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	w := &Worker{
		store:    store,
		logger:   logger,
		grace:    2 * time.Hour,
		interval: 15 * time.Minute,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run sweeps immediately and then every interval until ctx is done.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("sweeper started", "interval", w.interval.String(), "grace", w.grace.String())
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		if _, err := w.RunOnce(ctx); err != nil {
			w.logger.Error("sweep failed", "error", err)
		}
		select {
		case <-ctx.Done():
			w.logger.Info("sweeper stopped")
			return
		case <-ticker.C:
		}
	}
}

// RunOnce performs a single sweep. A failed step does not stop the other.
func (w *Worker) RunOnce(ctx context.Context) (Result, error) {
	asOf := w.now()
	var res Result
	var errs []error

	completed, err := w.store.CompleteElapsed(ctx, asOf, w.grace)
	if err != nil {
		errs = append(errs, fmt.Errorf("sweeper: complete: %w", err))
	}
	res.Completed = len(completed)

	expired, err := w.store.ExpireStalePending(ctx, asOf)
	if err != nil {
		errs = append(errs, fmt.Errorf("sweeper: expire: %w", err))
	}
	res.Expired = len(expired)

	touched := map[uuid.UUID]struct{}{}
	for i := range completed {
		w.after(ctx, &completed[i], bookings.TransitionComplete, events.TypeBookingCompleted, bookings.StatusConfirmed)
		touched[completed[i].ProviderID] = struct{}{}
	}
	for i := range expired {
		w.after(ctx, &expired[i], bookings.TransitionCancel, events.TypeBookingCancelled, bookings.StatusPending)
		touched[expired[i].ProviderID] = struct{}{}
	}
	for providerID := range touched {
		w.invalidate(ctx, providerID)
	}

	if w.recorder != nil {
		w.recorder.ObserveSweep(string(bookings.StatusCompleted), res.Completed)
		w.recorder.ObserveSweep(string(bookings.StatusCancelled), res.Expired)
	}
	if res.Completed > 0 || res.Expired > 0 {
		w.logger.Info("sweep finished", "completed", res.Completed, "expired", res.Expired)
	}
	return res, errors.Join(errs...)
}

func (w *Worker) after(ctx context.Context, b *bookings.Booking, t bookings.Transition, eventType string, from bookings.Status) {
	if w.events != nil {
		if _, err := w.events.Append(ctx, b.ProviderID, events.NewBookingEvent(eventType, b, uuid.Nil, systemRole)); err != nil {
			w.failed("outbox", err, "booking_id", b.ID)
		}
	}
	if w.audit != nil {
		entry := audit.Entry{
			BookingID:  b.ID,
			ProviderID: b.ProviderID,
			ActorRole:  systemRole,
			Action:     string(t),
			FromStatus: string(from),
			ToStatus:   string(b.Status),
			Reason:     b.CancelReason,
		}
		if err := w.audit.Record(ctx, entry); err != nil {
			w.failed("audit", err, "booking_id", b.ID)
		}
	}
}

func (w *Worker) invalidate(ctx context.Context, providerID uuid.UUID) {
	if w.cache == nil {
		return
	}
	if err := w.cache.Invalidate(ctx, providerID); err != nil {
		w.failed("cache", err, "provider_id", providerID)
	}
}

func (w *Worker) failed(kind string, err error, kv ...any) {
	if w.recorder != nil {
		w.recorder.SideEffectFailed(kind)
	}
	w.logger.Warn("sweeper side effect failed", append([]any{"kind", kind, "error", err}, kv...)...)
}
