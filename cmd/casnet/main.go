package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/casnet/casnet-backend/internal/app"
	"github.com/casnet/casnet-backend/internal/auth"
	"github.com/casnet/casnet-backend/internal/observability"
	"github.com/casnet/casnet-backend/internal/platform/cache"
	"github.com/casnet/casnet-backend/internal/platform/db"
	"github.com/casnet/casnet-backend/internal/rbac"
	"github.com/casnet/casnet-backend/internal/shared"
	"github.com/casnet/casnet-backend/internal/tags"
	"github.com/casnet/casnet-backend/internal/tenants"
	"github.com/casnet/casnet-backend/internal/users"
	"github.com/casnet/casnet-backend/jobs"
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

	dbpool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	store := rbac.NewPGStore(dbpool)
	catalog := rbac.NewCatalog(store)
	engine := rbac.NewService(store, catalog, app.NewResourceRegistry(dbpool))
	if cfg.SeedCatalog {
		inserted, err := engine.SeedCatalog(ctx)
		if err != nil {
			logger.Error("seed role catalog", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("role catalog seeded", slog.Int("inserted", inserted))
		if err := rbac.PublishCatalogInvalidation(ctx, redisClient, cfg.CatalogChannel, "api-seed"); err != nil {
			logger.Warn("publish catalog invalidation", slog.Any("error", err))
		}
	}
	if err := catalog.Load(ctx); err != nil {
		logger.Error("load role catalog", slog.Any("error", err))
		os.Exit(1)
	}
	invalidator := rbac.NewCatalogInvalidator(redisClient, cfg.CatalogChannel, catalog, logger).WithRecorder(metrics)
	if err := invalidator.Start(ctx); err != nil {
		logger.Error("subscribe catalog invalidations", slog.Any("error", err))
		os.Exit(1)
	}

	gate := rbac.Gate{Service: engine, Logger: logger, Metrics: metrics}

	tokens, err := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)
	if err != nil {
		logger.Error("init token manager", slog.Any("error", err))
		os.Exit(1)
	}
	authService := auth.NewService(auth.NewRepository(dbpool), tokens)
	authenticate := auth.Middleware{Service: authService, Logger: logger}.Authenticate

	usersService := users.NewService(users.NewRepository(dbpool), engine)
	tenantsService := tenants.NewService(tenants.NewRepository(dbpool), engine, logger)
	tagsService := tags.NewService(tags.NewRepository(dbpool))

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("asynq inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		Authenticate:       authenticate,
		AuthHandler:        auth.NewHandler(logger, authService),
		UsersHandler:       users.NewHandler(logger, usersService, authenticate),
		TenantsHandler:     tenants.NewHandler(logger, tenantsService, gate),
		MembersHandler:     rbac.NewHandler(logger, engine, gate).WithAudit(shared.NewAuditLogger(dbpool)).WithTenantNames(tenantsService),
		PermissionsHandler: rbac.NewPermissionsHandler(logger, engine),
		TagsHandler:        tags.NewHandler(logger, tagsService, gate),
		JobHandler:         jobs.NewHandler(inspector, jobs.ReconcilePolicy{Queue: cfg.ReconcileQueue}, logger),
		Metrics:            metrics,
		Readiness: map[string]app.Pinger{
			"postgres": dbpool,
			"redis":    app.PingFunc(func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }),
		},
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("api_prefix", cfg.APIPrefix))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
