package actions

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/caremarket-platform/internal/availability"
	"github.com/wolfman30/caremarket-platform/internal/events"
	"github.com/wolfman30/caremarket-platform/internal/favorites"
)

type fakeFavorites struct {
	state map[uuid.UUID]bool
}

func (f *fakeFavorites) Toggle(_ context.Context, _, providerID uuid.UUID) (bool, error) {
	f.state[providerID] = !f.state[providerID]
	return f.state[providerID], nil
}

func (f *fakeFavorites) List(context.Context, uuid.UUID) ([]favorites.Favorite, error) {
	var out []favorites.Favorite
	for id, on := range f.state {
		if on {
			out = append(out, favorites.Favorite{ProviderID: id})
		}
	}
	return out, nil
}

func TestGetAvailability(t *testing.T) {
	h := newHarness(t)
	providerID := uuid.New()

	slots, err := h.svc.GetAvailability(asRequester(uuid.New()), availability.Query{ProviderID: providerID})
	require.NoError(t, err)
	assert.NotNil(t, slots)
	assert.Empty(t, slots)

	h.avail.slots = []availability.Slot{{Start: at(4, 9), End: at(4, 10)}}
	slots, err = h.svc.GetAvailability(asStaff(uuid.New()), availability.Query{ProviderID: providerID})
	require.NoError(t, err)
	assert.Len(t, slots, 1)

	_, err = h.svc.GetAvailability(asRequester(uuid.New()), availability.Query{})
	requireCode(t, err, CodeValidation)
}

func TestGetSchedule(t *testing.T) {
	h := newHarness(t)
	providerID := uuid.New()

	sched, err := h.svc.GetSchedule(asRequester(uuid.New()), providerID)
	require.NoError(t, err)
	assert.Equal(t, providerID, sched.ProviderID)

	h.schedules.sched = nil
	_, err = h.svc.GetSchedule(asRequester(uuid.New()), providerID)
	ae := requireCode(t, err, CodeValidation)
	assert.Equal(t, "provider not found", ae.Message)
}

func TestReplaceSchedule(t *testing.T) {
	h := newHarness(t)
	providerID := uuid.New()
	sched := &availability.Schedule{
		ProviderID:  providerID,
		Timezone:    "America/Chicago",
		SlotMinutes: 45,
		Days:        []availability.DayHours{{Weekday: time.Tuesday, Open: "08:00", Close: "12:00"}},
	}

	saved, err := h.svc.ReplaceSchedule(asStaff(providerID), sched)

	require.NoError(t, err)
	assert.Equal(t, sched, saved)
	assert.Same(t, sched, h.schedules.replaced)
	assert.Equal(t, []uuid.UUID{providerID}, h.avail.invalidated)
	assert.Equal(t, []string{events.TypeScheduleUpdated}, h.events.types)
}

func TestReplaceScheduleRejects(t *testing.T) {
	h := newHarness(t)
	providerID := uuid.New()

	_, err := h.svc.ReplaceSchedule(asStaff(uuid.New()), &availability.Schedule{ProviderID: providerID})
	requireCode(t, err, CodeUnauthorized)

	_, err = h.svc.ReplaceSchedule(asRequester(uuid.New()), &availability.Schedule{ProviderID: providerID})
	requireCode(t, err, CodeUnauthorized)

	_, err = h.svc.ReplaceSchedule(asStaff(providerID), nil)
	requireCode(t, err, CodeValidation)

	bad := &availability.Schedule{ProviderID: providerID, Days: []availability.DayHours{{Weekday: time.Monday, Open: "17:00", Close: "09:00"}}}
	_, err = h.svc.ReplaceSchedule(asStaff(providerID), bad)
	requireCode(t, err, CodeValidation)

	assert.Nil(t, h.schedules.replaced)
	assert.Empty(t, h.avail.invalidated)
	assert.Empty(t, h.events.types)
}

func TestToggleFavorite(t *testing.T) {
	h := newHarness(t)
	ctx := asRequester(uuid.New())
	providerID := uuid.New()

	state, err := h.svc.ToggleFavorite(ctx, providerID)
	require.NoError(t, err)
	assert.Equal(t, FavoriteState{ProviderID: providerID, Favorited: true}, state)

	list, err := h.svc.ListFavorites(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, providerID, list[0].ProviderID)

	state, err = h.svc.ToggleFavorite(ctx, providerID)
	require.NoError(t, err)
	assert.False(t, state.Favorited)

	_, err = h.svc.ToggleFavorite(asStaff(uuid.New()), providerID)
	requireCode(t, err, CodeUnauthorized)
}

func TestFavoritesDisabled(t *testing.T) {
	h := newHarness(t)
	h.svc.favorites = nil
	ctx := asRequester(uuid.New())

	_, err := h.svc.ToggleFavorite(ctx, uuid.New())
	requireCode(t, err, CodeValidation)

	list, err := h.svc.ListFavorites(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}
