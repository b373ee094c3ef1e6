package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/wolfman30/caremarket-platform/internal/actions"
	"github.com/wolfman30/caremarket-platform/internal/tenancy"
)

// Claims is the bearer token issued by the identity provider.
type Claims struct {
	Email      string `json:"email,omitempty"`
	Role       string `json:"role"`
	ProviderID string `json:"provider_id,omitempty"`
	jwt.RegisteredClaims
}

// Actor converts validated claims into a tenancy actor.
func (c Claims) Actor() (tenancy.Actor, bool) {
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return tenancy.Actor{}, false
	}
	actor := tenancy.Actor{ID: id, Email: c.Email, Role: tenancy.Role(c.Role)}
	if !actor.Role.Valid() {
		return tenancy.Actor{}, false
	}
	if c.ProviderID != "" {
		providerID, err := uuid.Parse(c.ProviderID)
		if err != nil {
			return tenancy.Actor{}, false
		}
		actor.ProviderID = providerID
	}
	return actor, true
}

// ActorJWT verifies an HMAC-signed bearer token and stores the actor in the
// request context. Websocket clients may pass the token as ?access_token=.
// Staff tokens without provider_id are resolved later from staff_memberships.
func ActorJWT(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				writeUnauthorized(w, "authentication is not configured")
				return
			}
			tokenString := bearerToken(r)
			if tokenString == "" {
				writeUnauthorized(w, "missing authorization header")
				return
			}
			claims := Claims{}
			token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				writeUnauthorized(w, "invalid token")
				return
			}
			actor, ok := claims.Actor()
			if !ok {
				writeUnauthorized(w, "token does not identify an actor")
				return
			}
			if sink, ok := r.Context().Value(actorSinkKey{}).(*tenancy.Actor); ok {
				*sink = actor
			}
			next.ServeHTTP(w, r.WithContext(tenancy.WithActor(r.Context(), actor)))
		})
	}
}

// actorSinkKey lets RequestLogger, which runs before ActorJWT, learn who
// made the request.
type actorSinkKey struct{}

func withActorSink(ctx context.Context, sink *tenancy.Actor) context.Context {
	return context.WithValue(ctx, actorSinkKey{}, sink)
}

func bearerToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	if r.Method == http.MethodGet && strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return r.URL.Query().Get("access_token")
	}
	return ""
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"error":   &actions.Error{Code: actions.CodeUnauthorized, Message: message},
	})
}
