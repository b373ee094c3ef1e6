package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wolfman30/caremarket-platform/internal/actions"
	"github.com/wolfman30/caremarket-platform/internal/availability"
	"github.com/wolfman30/caremarket-platform/internal/favorites"
)

func providerParam(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "providerID"))
	if err != nil {
		return uuid.Nil, invalid("invalid providerID")
	}
	return id, nil
}

// GetAvailability handles GET /providers/{providerID}/availability.
func (h *Handler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	providerID, err := providerParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	q := availability.Query{ProviderID: providerID}
	values := r.URL.Query()
	from, err := optionalTime(values.Get("from"), "from")
	if err != nil {
		writeError(w, err)
		return
	}
	to, err := optionalTime(values.Get("to"), "to")
	if err != nil {
		writeError(w, err)
		return
	}
	if from != nil {
		q.From = *from
	}
	if to != nil {
		q.To = *to
	}
	serviceID, err := optionalUUID(values.Get("service_id"), "service_id")
	if err != nil {
		writeError(w, err)
		return
	}
	if serviceID != uuid.Nil {
		q.ServiceID = &serviceID
	}
	slots, err := h.actions.GetAvailability(r.Context(), q)
	respond(w, http.StatusOK, slots, err)
}

// GetSchedule handles GET /providers/{providerID}/schedule.
func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	h.withID(w, r, "providerID", func(id uuid.UUID) (any, error) {
		return h.actions.GetSchedule(r.Context(), id)
	})
}

// ReplaceSchedule handles PUT /providers/{providerID}/schedule.
func (h *Handler) ReplaceSchedule(w http.ResponseWriter, r *http.Request) {
	providerID, err := providerParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var sched availability.Schedule
	if err := decodeJSON(w, r, &sched, false); err != nil {
		writeError(w, err)
		return
	}
	sched.ProviderID = providerID
	saved, err := h.actions.ReplaceSchedule(r.Context(), &sched)
	respond(w, http.StatusOK, saved, err)
}

// ProviderFeed handles GET /providers/{providerID}/feed as a websocket.
func (h *Handler) ProviderFeed(w http.ResponseWriter, r *http.Request) {
	providerID, err := providerParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if h.feed == nil {
		WriteError(w, actions.CodeNotFoundOrProcessed, "live feed is not enabled")
		return
	}
	if _, err := h.actions.AuthorizeProvider(r.Context(), providerID); err != nil {
		writeError(w, err)
		return
	}
	h.feed.ServeFeed(w, r, providerID)
}

// ListFavorites handles GET /favorites.
func (h *Handler) ListFavorites(w http.ResponseWriter, r *http.Request) {
	list, err := h.actions.ListFavorites(r.Context())
	respond(w, http.StatusOK, nonNil[favorites.Favorite](list), err)
}

// ToggleFavorite handles POST /favorites/{providerID}/toggle.
func (h *Handler) ToggleFavorite(w http.ResponseWriter, r *http.Request) {
	h.withID(w, r, "providerID", func(id uuid.UUID) (any, error) {
		return h.actions.ToggleFavorite(r.Context(), id)
	})
}
