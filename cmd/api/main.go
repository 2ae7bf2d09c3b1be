package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dialerdesk_backend/internal/accounts"
	"dialerdesk_backend/internal/appointments"
	"dialerdesk_backend/internal/billing"
	"dialerdesk_backend/internal/calls"
	"dialerdesk_backend/internal/dashboard"
	apphttp "dialerdesk_backend/internal/http"
	"dialerdesk_backend/internal/http/router"
	leadrepo "dialerdesk_backend/internal/leads/repository"
	leadservice "dialerdesk_backend/internal/leads/service"
	"dialerdesk_backend/internal/profit"
	"dialerdesk_backend/internal/recordings"
	"dialerdesk_backend/internal/scheduler"
	"dialerdesk_backend/internal/webhook"
	"dialerdesk_backend/platform/config"
	"dialerdesk_backend/platform/db"
	platformevents "dialerdesk_backend/platform/events"
	"dialerdesk_backend/platform/keymutex"
	"dialerdesk_backend/platform/logger"
	"dialerdesk_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg, "migrations")
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	redisOpt, err := redis.ParseURL(cfg.GetRedisURL())
	if err != nil {
		log.Error("failed to parse redis url", "error", err)
		panic("failed to parse redis url: " + err.Error())
	}
	redisClient := redis.NewClient(redisOpt)
	defer redisClient.Close()

	// Event bus for decoupled communication between modules
	eventBus := platformevents.NewInMemoryBus(log)

	// Per-lead mutex serializing lifecycle writes across the two webhook streams
	leadLocks := keymutex.New(redisClient)

	val := validator.New()

	tiers, err := accounts.LoadTierCatalog(cfg.GetTierCatalogPath())
	if err != nil {
		log.Error("failed to load tier catalog", "error", err, "path", cfg.GetTierCatalogPath())
		panic("failed to load tier catalog: " + err.Error())
	}

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	accountsRepo := accounts.New(pool)

	leadsService := leadservice.New(leadrepo.New(pool), log)

	billingService := billing.New(billing.NewRepository(pool), accountsRepo, eventBus, cfg, log)

	// Profit aggregation runs off the event bus; billing never waits for it.
	profitService := profit.New(profit.NewRepository(pool), accountsRepo, tiers, cfg, log)
	profitService.RegisterHandlers(eventBus)

	appointmentsService := appointments.New(appointments.NewRepository(pool), leadsService, leadLocks, eventBus, cfg, log)

	callsService := calls.New(calls.NewRepository(pool), leadsService, appointmentsService, billingService, leadLocks, cfg, log)

	var archive recordings.Archive
	if cfg.IsRecordingsEnabled() {
		svc, err := recordings.New(ctx, cfg)
		if err != nil {
			log.Error("failed to initialize recordings archive", "error", err)
			panic("failed to initialize recordings archive: " + err.Error())
		}
		archive = svc
		log.Info("recordings archive initialized", "bucket", cfg.GetRecordingsBucket())
	} else {
		log.Warn("recordings storage not configured; playback endpoints disabled")
	}

	// Replenishment triggers travel through the task queue to the worker.
	taskClient, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize task client", "error", err)
		panic("failed to initialize task client: " + err.Error())
	}
	defer taskClient.Close()
	scheduler.RegisterEventHandlers(eventBus, taskClient, log)

	webhookModule := webhook.NewModule(pool, callsService, appointmentsService, billingService, val, log)
	dashboardModule := dashboard.NewModule(billingService, appointmentsService, callsService, profitService, archive)

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   db.NewPoolAdapter(pool),
		EventBus: eventBus,
		Modules: []apphttp.Module{
			webhookModule,
			dashboardModule,
		},
	}

	engine := router.New(app)

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- engine.Run(cfg.HTTPAddr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = shutdownCtx
	case err := <-srvErr:
		if err != nil {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
