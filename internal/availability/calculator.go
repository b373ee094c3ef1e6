package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/caremarket-platform/internal/bookings"
	"github.com/wolfman30/caremarket-platform/pkg/logging"
)

// MaxWindow bounds how far a single availability request may span.
const MaxWindow = 62 * 24 * time.Hour

// Query selects an availability window. Zero From/To use the default window.
type Query struct {
	ProviderID uuid.UUID
	From       time.Time
	To         time.Time
	ServiceID  *uuid.UUID
}

// ScheduleSource loads a provider's weekly schedule.
type ScheduleSource interface {
	Get(ctx context.Context, providerID uuid.UUID) (*Schedule, error)
}

// BookingSource reports occupied intervals and services of a provider.
type BookingSource interface {
	BusyIntervals(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]bookings.BusyInterval, error)
	GetService(ctx context.Context, providerID, serviceID uuid.UUID) (*bookings.Service, error)
}

// Cache stores computed slots per resolved query. Lookup returns the key the
// result must be stored under, pinned to the provider version seen at lookup
// so a concurrent invalidation is never overwritten. An empty key disables the
// store. Implementations treat their own errors as misses.
type Cache interface {
	Lookup(ctx context.Context, q Query) (slots []Slot, key string, ok bool)
	Store(ctx context.Context, key string, slots []Slot)
	Invalidate(ctx context.Context, providerID uuid.UUID) error
}

// Recorder observes cache outcomes ("hit", "miss", "bypass").
type Recorder interface {
	ObserveAvailability(outcome string)
}

// Calculator answers availability queries.
type Calculator struct {
	schedules   ScheduleSource
	bookings    BookingSource
	cache       Cache
	recorder    Recorder
	logger      *logging.Logger
	windowDays  int
	slotMinutes int
	now         func() time.Time
}

// Option customises a Calculator.
type Option func(*Calculator)

// WithCache enables slot caching.
func WithCache(c Cache) Option { return func(calc *Calculator) { calc.cache = c } }

// WithRecorder reports cache outcomes.
func WithRecorder(r Recorder) Option { return func(calc *Calculator) { calc.recorder = r } }

// WithWindowDays sets the default window length.
func WithWindowDays(days int) Option {
	return func(calc *Calculator) {
		if days > 0 {
			calc.windowDays = days
		}
	}
}

// WithDefaultSlotMinutes sets the slot length used when the schedule has none.
func WithDefaultSlotMinutes(minutes int) Option {
	return func(calc *Calculator) {
		if minutes > 0 {
			calc.slotMinutes = minutes
		}
	}
}

// NewCalculator wires schedule and booking sources.
func NewCalculator(schedules ScheduleSource, source BookingSource, logger *logging.Logger, opts ...Option) *Calculator {
	if schedules == nil || source == nil {
		panic("availability: schedule and booking sources required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	c := &Calculator{
		schedules:   schedules,
		bookings:    source,
		logger:      logger,
		windowDays:  14,
		slotMinutes: DefaultSlotMinutes,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Available returns open slots in [From, To), ordered by start, in UTC.
// Nothing is reserved; creation re-checks overlap under a provider lock.
func (c *Calculator) Available(ctx context.Context, q Query) ([]Slot, error) {
	schedule, err := c.schedules.Get(ctx, q.ProviderID)
	if err != nil {
		return nil, err
	}
	now := c.now()
	q, err = c.resolve(q, schedule, now)
	if err != nil {
		return nil, err
	}

	var cacheKey string
	if c.cache == nil {
		c.observe("bypass")
	} else {
		cached, key, ok := c.cache.Lookup(ctx, q)
		if ok {
			c.observe("hit")
			return dropPast(cached, now), nil
		}
		cacheKey = key
		c.observe("miss")
	}

	slotLength := schedule.SlotLength(c.slotMinutes)
	if q.ServiceID != nil {
		svc, err := c.bookings.GetService(ctx, q.ProviderID, *q.ServiceID)
		if err != nil {
			return nil, err
		}
		if !svc.Active {
			return nil, bookings.ErrServiceNotFound
		}
		if svc.DurationMinutes > 0 {
			slotLength = time.Duration(svc.DurationMinutes) * time.Minute
		}
	}

	// A slot starting just before To runs past it, so busy time is loaded
	// over its full length.
	busy, err := c.bookings.BusyIntervals(ctx, q.ProviderID, q.From, q.To.Add(slotLength))
	if err != nil {
		return nil, err
	}

	slots := Compute(schedule, busy, q.From, q.To, slotLength, now)
	c.logger.Debug("availability computed", "provider_id", q.ProviderID, "slots", len(slots), "busy", len(busy))
	if c.cache != nil && cacheKey != "" {
		c.cache.Store(ctx, cacheKey, slots)
	}
	return slots, nil
}

// Invalidate drops cached windows for the provider.
func (c *Calculator) Invalidate(ctx context.Context, providerID uuid.UUID) error {
	if c.cache == nil {
		return nil
	}
	if err := c.cache.Invalidate(ctx, providerID); err != nil {
		return fmt.Errorf("availability: invalidate %s: %w", providerID, err)
	}
	return nil
}

// resolve fills the default window. The default starts at midnight today in
// the provider's timezone.
func (c *Calculator) resolve(q Query, schedule *Schedule, now time.Time) (Query, error) {
	if q.From.IsZero() {
		local := now.In(schedule.Location())
		q.From = time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, local.Location())
	}
	if q.To.IsZero() {
		q.To = q.From.AddDate(0, 0, c.windowDays)
	}
	q.From = q.From.UTC()
	q.To = q.To.UTC()
	if !q.To.After(q.From) {
		return q, fmt.Errorf("%w: to must be after from", ErrInvalidWindow)
	}
	if q.To.Sub(q.From) > MaxWindow {
		return q, fmt.Errorf("%w: window exceeds %d days", ErrInvalidWindow, int(MaxWindow/(24*time.Hour)))
	}
	return q, nil
}

func (c *Calculator) observe(outcome string) {
	if c.recorder != nil {
		c.recorder.ObserveAvailability(outcome)
	}
}

// Compute enumerates fixed-size slots inside opening hours for each day of
// [from, to), dropping slots that overlap busy intervals or start before now.
// A tail shorter than slotLength at closing time is dropped. busy must cover
// [from, to+slotLength) because the last slot may end after to.
func Compute(schedule *Schedule, busy []bookings.BusyInterval, from, to time.Time, slotLength time.Duration, now time.Time) []Slot {
	if slotLength <= 0 || !to.After(from) {
		return nil
	}
	loc := schedule.Location()
	startLocal := from.In(loc)
	day := time.Date(startLocal.Year(), startLocal.Month(), startLocal.Day(), 0, 0, 0, 0, loc)

	var out []Slot
	for ; day.Before(to); day = day.AddDate(0, 0, 1) {
		open, closeAt, ok := schedule.hours(day.Weekday())
		if !ok {
			continue
		}
		opensAt := addClock(day, open)
		closesAt := addClock(day, closeAt)
		for start := opensAt; !start.Add(slotLength).After(closesAt); start = start.Add(slotLength) {
			end := start.Add(slotLength)
			if start.Before(from) || !start.Before(to) || start.Before(now) {
				continue
			}
			if overlapsAny(start, end, busy) {
				continue
			}
			out = append(out, Slot{Start: start.UTC(), End: end.UTC()})
		}
	}
	return out
}

func overlapsAny(start, end time.Time, busy []bookings.BusyInterval) bool {
	for _, b := range busy {
		if b.Start.Before(end) && b.End.After(start) {
			return true
		}
	}
	return false
}

func dropPast(slots []Slot, now time.Time) []Slot {
	out := make([]Slot, 0, len(slots))
	for _, s := range slots {
		if !s.Start.Before(now) {
			out = append(out, s)
		}
	}
	return out
}
