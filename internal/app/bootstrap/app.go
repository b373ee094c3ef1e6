// Package bootstrap wires configuration into the stores, action layer,
// outbox delivery and sweeper shared by every binary.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/caremarket-platform/internal/actions"
	"github.com/wolfman30/caremarket-platform/internal/api/router"
	"github.com/wolfman30/caremarket-platform/internal/archive"
	"github.com/wolfman30/caremarket-platform/internal/audit"
	"github.com/wolfman30/caremarket-platform/internal/availability"
	"github.com/wolfman30/caremarket-platform/internal/bookings"
	"github.com/wolfman30/caremarket-platform/internal/cache"
	appconfig "github.com/wolfman30/caremarket-platform/internal/config"
	"github.com/wolfman30/caremarket-platform/internal/events"
	"github.com/wolfman30/caremarket-platform/internal/favorites"
	"github.com/wolfman30/caremarket-platform/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/caremarket-platform/internal/http/middleware"
	"github.com/wolfman30/caremarket-platform/internal/notify"
	"github.com/wolfman30/caremarket-platform/internal/observability/metrics"
	"github.com/wolfman30/caremarket-platform/internal/realtime"
	"github.com/wolfman30/caremarket-platform/internal/sweeper"
	"github.com/wolfman30/caremarket-platform/pkg/logging"
)

// App holds the wired components. Binaries start the pieces they need.
type App struct {
	Config *appconfig.Config
	Logger *logging.Logger

	Pool    *pgxpool.Pool
	AuditDB *sql.DB
	Redis   *redis.Client

	Metrics        *metrics.BookingMetrics
	MetricsHandler http.Handler

	Bookings    *bookings.Repository
	Calculator  *availability.Calculator
	Actions     *actions.Service
	Hub         *realtime.Hub
	Outbox      *events.OutboxStore
	Deliverer   *events.Deliverer
	Sweeper     *sweeper.Worker
	RateLimiter *httpmiddleware.RateLimiter
}

// Build connects to Postgres (required), Redis and AWS (both optional) and
// wires every component. Call Close when done.
func Build(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	pool, err := ConnectPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	auditDB, err := OpenAuditDB(cfg.DatabaseURL)
	if err != nil {
		pool.Close()
		return nil, err
	}

	var awsCfg *aws.Config
	if cfg.UsesAWS() {
		loaded, err := LoadAWSConfig(ctx, cfg)
		if err != nil {
			pool.Close()
			_ = auditDB.Close()
			return nil, fmt.Errorf("bootstrap: load aws config: %w", err)
		}
		awsCfg = &loaded
	}

	app := &App{
		Config:  cfg,
		Logger:  logger,
		Pool:    pool,
		AuditDB: auditDB,
		Redis:   BuildRedisClient(ctx, cfg, logger, true),
	}
	app.MetricsHandler, app.Metrics = BuildMetrics()
	app.wire(awsCfg)
	return app, nil
}

func (a *App) wire(awsCfg *aws.Config) {
	cfg, logger := a.Config, a.Logger

	a.Bookings = bookings.NewRepository(a.Pool)
	schedules := availability.NewScheduleStore(a.Pool)
	auditLog := audit.NewLog(a.AuditDB)
	a.Outbox = events.NewOutboxStore(a.Pool)

	calcOpts := []availability.Option{
		availability.WithRecorder(a.Metrics),
		availability.WithWindowDays(cfg.AvailabilityWindowDays),
		availability.WithDefaultSlotMinutes(cfg.DefaultSlotMinutes),
	}
	if a.Redis != nil {
		calcOpts = append(calcOpts, availability.WithCache(cache.NewAvailabilityCache(a.Redis, cfg.AvailabilityCacheTTL, logger)))
	} else {
		logger.Info("availability cache disabled")
	}
	a.Calculator = availability.NewCalculator(schedules, a.Bookings, logger, calcOpts...)

	a.Actions = actions.New(actions.Deps{
		Bookings:           a.Bookings,
		Availability:       a.Calculator,
		Schedules:          schedules,
		Favorites:          favorites.NewStore(a.Pool),
		Events:             a.Outbox,
		Audit:              auditLog,
		Metrics:            a.Metrics,
		Logger:             logger,
		DefaultSlotMinutes: cfg.DefaultSlotMinutes,
	})

	a.Hub = realtime.NewHub(logger)

	var archiveStore *archive.Store
	if cfg.ArchiveBucket != "" && awsCfg != nil {
		archiveStore = archive.NewStore(newS3Client(*awsCfg, cfg), cfg.ArchiveBucket, logger)
	}
	fanout := BuildDelivery(cfg, DeliveryDeps{
		Tracker:  events.NewProcessedStore(a.Pool),
		Notifier: notify.NewBookingNotifier(BuildEmailSender(cfg, awsCfg, logger), notify.NewPGDirectory(a.Pool), logger),
		Feed:     a.Hub,
		SQS:      newSQSClient(awsCfg, cfg),
		Archive:  archiveStore,
	})
	logger.Info("outbox consumers configured", "count", fanout.Len())
	a.Deliverer = events.NewDeliverer(a.Outbox, fanout, logger).
		WithBatchSize(int32(cfg.OutboxBatchSize)).
		WithInterval(cfg.OutboxPollInterval).
		WithObserver(a.Metrics)

	a.Sweeper = sweeper.NewWorker(a.Bookings, logger,
		sweeper.WithInvalidator(a.Calculator),
		sweeper.WithEvents(a.Outbox),
		sweeper.WithAudit(auditLog),
		sweeper.WithRecorder(a.Metrics),
		sweeper.WithGrace(cfg.CompletionGrace),
		sweeper.WithInterval(cfg.SweepInterval),
	)

	a.RateLimiter = httpmiddleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
}

// RouterConfig returns the HTTP router configuration for the API binary.
func (a *App) RouterConfig() *router.Config {
	cfg := &router.Config{
		Logger:             a.Logger,
		Handler:            handlers.NewHandler(a.Actions, a.Hub, a.Logger),
		MetricsHandler:     a.MetricsHandler,
		CORSAllowedOrigins: a.Config.CORSAllowedOrigins,
		AuthSecret:         a.Config.AuthJWTSecret,
		RateLimiter:        a.RateLimiter,
		Database:           a.Pool,
	}
	if a.Redis != nil {
		cfg.Cache = RedisPinger{Client: a.Redis}
	}
	return cfg
}

// Close releases connections in reverse order of acquisition.
func (a *App) Close() {
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.AuditDB != nil {
		_ = a.AuditDB.Close()
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
}
