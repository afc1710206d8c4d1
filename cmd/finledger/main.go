package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/finledger/internal/accounting/budgets"
	"github.com/odyssey-erp/finledger/internal/accounting/journals"
	"github.com/odyssey-erp/finledger/internal/accounting/mappings"
	"github.com/odyssey-erp/finledger/internal/accounting/periods"
	"github.com/odyssey-erp/finledger/internal/accounting/store"
	"github.com/odyssey-erp/finledger/internal/ap"
	"github.com/odyssey-erp/finledger/internal/app"
	"github.com/odyssey-erp/finledger/internal/expenses"
	"github.com/odyssey-erp/finledger/internal/integration"
	integrationhttp "github.com/odyssey-erp/finledger/internal/integration/http"
	"github.com/odyssey-erp/finledger/internal/observability"
	"github.com/odyssey-erp/finledger/internal/platform/cache"
	"github.com/odyssey-erp/finledger/internal/platform/db"
	"github.com/odyssey-erp/finledger/internal/shared"
	"github.com/odyssey-erp/finledger/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns, MaxConnLifetime: cfg.PGMaxConnLife})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, mapping cache disabled", slog.Any("error", err))
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	metrics := observability.NewMetrics()
	ledgerMetrics := metrics.Ledger()
	validate := validator.New(validator.WithRequiredStructEnabled())

	mappingCache := mappings.NewCache(redisClient, cfg.MappingCacheTTL, logger)
	runner := store.NewPostgres(dbpool, mappingCache)
	auditLogger := shared.NewAuditLogger(dbpool)
	poster := journals.NewPoster(ledgerMetrics)

	registry := integration.NewRegistry()
	if err := ap.NewModule(validate).Register(registry); err != nil {
		logger.Error("register ap module", slog.Any("error", err))
		os.Exit(1)
	}
	if err := expenses.NewModule(validate).Register(registry); err != nil {
		logger.Error("register expenses module", slog.Any("error", err))
		os.Exit(1)
	}

	orchestrator := integration.NewOrchestrator(integration.Deps{
		Runner:   runner,
		Registry: registry,
		Resolver: mappings.NewResolver(logger),
		Guard:    budgets.NewGuard(cfg.Policy(), logger),
		Poster:   poster,
		Audit:    auditLogger,
		Metrics:  ledgerMetrics,
		Logger:   logger,
	})

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	api := integrationhttp.NewHandler(integrationhttp.Deps{
		Orchestrator: orchestrator,
		Ledger:       journals.NewService(store.JournalRunner(runner), poster, auditLogger, logger),
		Periods:      periods.NewService(store.PeriodRunner(runner), auditLogger, logger),
		Mappings:     mappings.NewService(store.MappingRunner(runner), mappingCache, logger),
		Idempotency:  shared.NewIdempotencyStore(dbpool),
		Validate:     validate,
		Logger:       logger,
	})

	router := app.NewRouter(app.RouterParams{
		Logger:     logger,
		Config:     cfg,
		API:        api,
		JobHandler: jobs.NewHandler(inspector, jobClient, logger),
		Metrics:    metrics,
		Database:   dbpool,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server",
			slog.String("addr", cfg.AppAddr),
			slog.String("budget_policy", cfg.Policy().Name()),
			slog.Any("event_types", registry.EventTypes()))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
