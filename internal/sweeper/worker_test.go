package sweeper

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/caremarket-platform/internal/audit"
	"github.com/wolfman30/caremarket-platform/internal/bookings"
	"github.com/wolfman30/caremarket-platform/internal/events"
)

var sweepAt = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

type fakeStore struct {
	mu          sync.Mutex
	completed   []bookings.Booking
	expired     []bookings.Booking
	completeErr error
	expireErr   error
	grace       time.Duration
	asOf        time.Time
	calls       int
}

func (f *fakeStore) CompleteElapsed(_ context.Context, asOf time.Time, grace time.Duration) ([]bookings.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.asOf, f.grace = asOf, grace
	return f.completed, f.completeErr
}

func (f *fakeStore) ExpireStalePending(context.Context, time.Time) ([]bookings.Booking, error) {
	return f.expired, f.expireErr
}

func (f *fakeStore) sweeps() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type invalidations struct {
	ids []uuid.UUID
	err error
}

func (i *invalidations) Invalidate(_ context.Context, providerID uuid.UUID) error {
	i.ids = append(i.ids, providerID)
	return i.err
}

type eventLog struct {
	types  []string
	actors []string
}

func (e *eventLog) Append(_ context.Context, _ uuid.UUID, evt events.CanonicalEvent) (uuid.UUID, error) {
	e.types = append(e.types, evt.EventType())
	if be, ok := evt.(events.BookingEventV1); ok {
		e.actors = append(e.actors, be.ActorRole)
	}
	return uuid.New(), nil
}

type auditLog struct{ entries []audit.Entry }

func (a *auditLog) Record(_ context.Context, e audit.Entry) error {
	a.entries = append(a.entries, e)
	return nil
}

type recorder struct {
	sweeps      map[string]int
	sideEffects []string
}

func (r *recorder) ObserveSweep(toStatus string, count int) {
	if r.sweeps == nil {
		r.sweeps = map[string]int{}
	}
	r.sweeps[toStatus] += count
}

func (r *recorder) SideEffectFailed(kind string) { r.sideEffects = append(r.sideEffects, kind) }

func TestRunOnceSweepsBothStatuses(t *testing.T) {
	providerA, providerB := uuid.New(), uuid.New()
	store := &fakeStore{
		completed: []bookings.Booking{
			{ID: uuid.New(), ProviderID: providerA, Status: bookings.StatusCompleted},
			{ID: uuid.New(), ProviderID: providerA, Status: bookings.StatusCompleted},
		},
		expired: []bookings.Booking{
			{ID: uuid.New(), ProviderID: providerB, Status: bookings.StatusCancelled, CancelReason: bookings.ExpiredReason, CancelledBy: bookings.PartySystem},
		},
	}
	cache := &invalidations{}
	evts := &eventLog{}
	log := &auditLog{}
	rec := &recorder{}
	w := NewWorker(store, nil, WithInvalidator(cache), WithEvents(evts), WithAudit(log), WithRecorder(rec), WithGrace(time.Hour))
	w.now = func() time.Time { return sweepAt }

	res, err := w.RunOnce(context.Background())

	require.NoError(t, err)
	assert.Equal(t, Result{Completed: 2, Expired: 1}, res)
	assert.Equal(t, sweepAt, store.asOf)
	assert.Equal(t, time.Hour, store.grace)
	assert.ElementsMatch(t, []uuid.UUID{providerA, providerB}, cache.ids)
	assert.Equal(t, []string{events.TypeBookingCompleted, events.TypeBookingCompleted, events.TypeBookingCancelled}, evts.types)
	assert.Equal(t, []string{"system", "system", "system"}, evts.actors)

	require.Len(t, log.entries, 3)
	assert.Equal(t, "complete", log.entries[0].Action)
	assert.Equal(t, "CONFIRMED", log.entries[0].FromStatus)
	assert.Equal(t, "cancel", log.entries[2].Action)
	assert.Equal(t, "PENDING", log.entries[2].FromStatus)
	assert.Equal(t, "expired", log.entries[2].Reason)
	assert.Nil(t, log.entries[2].ActorID)

	assert.Equal(t, map[string]int{"COMPLETED": 2, "CANCELLED": 1}, rec.sweeps)
}

func TestRunOnceContinuesAfterStepFailure(t *testing.T) {
	store := &fakeStore{
		completeErr: errors.New("deadlock detected"),
		expired:     []bookings.Booking{{ID: uuid.New(), ProviderID: uuid.New(), Status: bookings.StatusCancelled}},
	}
	w := NewWorker(store, nil)

	res, err := w.RunOnce(context.Background())

	require.Error(t, err)
	assert.ErrorContains(t, err, "sweeper: complete: deadlock detected")
	assert.Equal(t, 1, res.Expired)
}

func TestRunOnceSideEffectFailuresAreCounted(t *testing.T) {
	store := &fakeStore{completed: []bookings.Booking{{ID: uuid.New(), ProviderID: uuid.New(), Status: bookings.StatusCompleted}}}
	rec := &recorder{}
	w := NewWorker(store, nil, WithInvalidator(&invalidations{err: errors.New("redis down")}), WithRecorder(rec))

	res, err := w.RunOnce(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, res.Completed)
	assert.Equal(t, []string{"cache"}, rec.sideEffects)
}

func TestRunSweepsUntilCancelled(t *testing.T) {
	store := &fakeStore{}
	w := NewWorker(store, nil, WithInterval(10*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return store.sweeps() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
