package actions

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/caremarket-platform/internal/availability"
	"github.com/wolfman30/caremarket-platform/internal/events"
	"github.com/wolfman30/caremarket-platform/internal/favorites"
)

// GetAvailability returns open slots for any authenticated caller.
func (s *Service) GetAvailability(ctx context.Context, q availability.Query) (_ []availability.Slot, err error) {
	ctx, done := s.trace(ctx, "availability", attribute.String("caremarket.provider_id", q.ProviderID.String()))
	defer func() { err = done(err) }()

	if _, err := s.actor(ctx); err != nil {
		return nil, err
	}
	if q.ProviderID == uuid.Nil {
		return nil, validation("provider_id is required")
	}
	slots, err := s.availability.Available(ctx, q)
	if err != nil {
		return nil, err
	}
	if slots == nil {
		slots = []availability.Slot{}
	}
	return slots, nil
}

// GetSchedule returns a provider's weekly hours.
func (s *Service) GetSchedule(ctx context.Context, providerID uuid.UUID) (_ *availability.Schedule, err error) {
	ctx, done := s.trace(ctx, "get_schedule", attribute.String("caremarket.provider_id", providerID.String()))
	defer func() { err = done(err) }()

	if _, err := s.actor(ctx); err != nil {
		return nil, err
	}
	return s.schedules.Get(ctx, providerID)
}

// ReplaceSchedule swaps the provider's weekly hours in one transaction.
func (s *Service) ReplaceSchedule(ctx context.Context, sched *availability.Schedule) (_ *availability.Schedule, err error) {
	providerID := uuid.Nil
	if sched != nil {
		providerID = sched.ProviderID
	}
	ctx, done := s.trace(ctx, "replace_schedule", attribute.String("caremarket.provider_id", providerID.String()))
	defer func() { err = done(err) }()

	if sched == nil || providerID == uuid.Nil {
		return nil, validation("schedule with provider_id is required")
	}
	actor, err := s.AuthorizeProvider(ctx, providerID)
	if err != nil {
		return nil, err
	}
	if err := s.schedules.Replace(ctx, sched); err != nil {
		return nil, err
	}
	s.invalidate(ctx, providerID)
	s.publish(ctx, providerID, events.ScheduleUpdatedV1{ProviderID: providerID, ActorID: actor.ID, OccurredAt: s.now()})
	return sched, nil
}

// FavoriteState is the result of a toggle.
type FavoriteState struct {
	ProviderID uuid.UUID `json:"provider_id"`
	Favorited  bool      `json:"favorited"`
}

// ToggleFavorite stars or unstars a provider for the requester.
func (s *Service) ToggleFavorite(ctx context.Context, providerID uuid.UUID) (_ FavoriteState, err error) {
	ctx, done := s.trace(ctx, "toggle_favorite", attribute.String("caremarket.provider_id", providerID.String()))
	defer func() { err = done(err) }()

	actor, err := s.requester(ctx)
	if err != nil {
		return FavoriteState{}, err
	}
	if s.favorites == nil {
		return FavoriteState{}, validation("favorites are not available")
	}
	on, err := s.favorites.Toggle(ctx, actor.ID, providerID)
	if err != nil {
		return FavoriteState{}, err
	}
	return FavoriteState{ProviderID: providerID, Favorited: on}, nil
}

// ListFavorites returns the requester's starred providers.
func (s *Service) ListFavorites(ctx context.Context) (_ []favorites.Favorite, err error) {
	ctx, done := s.trace(ctx, "list_favorites")
	defer func() { err = done(err) }()

	actor, err := s.requester(ctx)
	if err != nil {
		return nil, err
	}
	if s.favorites == nil {
		return []favorites.Favorite{}, nil
	}
	return s.favorites.List(ctx, actor.ID)
}
