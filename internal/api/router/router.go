package router

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/caremarket-platform/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/caremarket-platform/internal/http/middleware"
	"github.com/wolfman30/caremarket-platform/pkg/logging"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	Handler            *handlers.Handler
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
	AuthSecret         string
	RateLimiter        *httpmiddleware.RateLimiter

	// Health checks (optional)
	Database Pinger
	Cache    Pinger
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}
	r.Use(httpmiddleware.RateLimit(cfg.RateLimiter))

	r.Group(func(public chi.Router) {
		public.Get("/health", healthHandler(cfg.Database, cfg.Cache))
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	if cfg.Handler == nil {
		return r
	}
	h := cfg.Handler

	r.Group(func(api chi.Router) {
		api.Use(httpmiddleware.ActorJWT(cfg.AuthSecret))

		api.Route("/providers/{providerID}", func(p chi.Router) {
			p.Get("/availability", h.GetAvailability)
			p.Get("/schedule", h.GetSchedule)
			p.Put("/schedule", h.ReplaceSchedule)
			p.Get("/feed", h.ProviderFeed)
		})

		api.Route("/bookings", func(b chi.Router) {
			b.Post("/", h.CreateBooking)
			b.Get("/", h.ListMyBookings)
			b.Post("/recurring", h.CreateRecurringBooking)
			b.Route("/{bookingID}", func(one chi.Router) {
				one.Get("/", h.GetBooking)
				one.Get("/history", h.BookingHistory)
				one.Get("/cancellation", h.CancellationEligibility)
				one.Post("/cancel", h.CancelBooking)
			})
		})

		api.Post("/series/{seriesID}/cancel", h.CancelSeries)

		api.Route("/provider/bookings", func(pb chi.Router) {
			pb.Get("/", h.ListProviderBookings)
			pb.Route("/{bookingID}", func(one chi.Router) {
				one.Post("/confirm", h.ConfirmBooking)
				one.Post("/decline", h.DeclineBooking)
				one.Post("/complete", h.CompleteBooking)
				one.Post("/no-show", h.MarkNoShow)
				one.Put("/meeting-link", h.AttachMeetingLink)
			})
		})

		api.Get("/favorites", h.ListFavorites)
		api.Post("/favorites/{providerID}/toggle", h.ToggleFavorite)
	})

	return r
}

// healthHandler reports "ok" when every configured dependency answers a ping.
func healthHandler(checks ...Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status, code := "ok", http.StatusOK
		for _, c := range checks {
			if c == nil {
				continue
			}
			if err := c.Ping(ctx); err != nil {
				status, code = "degraded", http.StatusServiceUnavailable
				break
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
	}
}
