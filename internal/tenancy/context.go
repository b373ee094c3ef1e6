// Package tenancy carries the authenticated actor and its tenant scope through
// request contexts.
package tenancy

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey string

const actorKey ctxKey = "caremarket.actor"

// Role is the platform role of an authenticated actor.
type Role string

const (
	RoleRequester     Role = "requester"
	RoleProviderStaff Role = "provider_staff"
	RoleAdmin         Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleRequester, RoleProviderStaff, RoleAdmin:
		return true
	default:
		return false
	}
}

// Actor is the identity supplied by the identity provider. ProviderID is set
// only for provider staff and is the tenant every staff query filters by.
type Actor struct {
	ID         uuid.UUID
	Email      string
	Role       Role
	ProviderID uuid.UUID
}

// HasProvider reports whether the actor is associated with a provider.
func (a Actor) HasProvider() bool {
	return a.ProviderID != uuid.Nil
}

// WithActor stores the actor in context.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFromContext extracts the actor if present and well formed.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	val := ctx.Value(actorKey)
	if val == nil {
		return Actor{}, false
	}
	actor, ok := val.(Actor)
	return actor, ok && actor.ID != uuid.Nil && actor.Role.Valid()
}
