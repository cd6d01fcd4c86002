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

	"github.com/querydash/querydash/internal/api"
	"github.com/querydash/querydash/internal/auth"
	catalogpostgres "github.com/querydash/querydash/internal/catalog/postgres"
	"github.com/querydash/querydash/internal/config"
	"github.com/querydash/querydash/internal/export"
	"github.com/querydash/querydash/internal/observability"
	"github.com/querydash/querydash/internal/query/engine"
	s3store "github.com/querydash/querydash/internal/storage/s3"
)

func main() {
	if err := config.LoadDotEnv(config.EnvFiles(os.LookupEnv)...); err != nil {
		slog.Error("failed to load env file", slog.Any("error", err))
		os.Exit(1)
	}
	cfg, err := config.LoadFromEnv("querydash-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	catalogDB, err := catalogpostgres.Open(context.Background(), catalogpostgres.DBConfigFrom(cfg.Catalog))
	if err != nil {
		logger.Error("failed to open catalog db", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = catalogDB.Close() }()

	catalogRepo := catalogpostgres.NewRepository(catalogDB)
	queryEngine := engine.NewDefault(engine.Options{
		ProbeTimeout: cfg.Query.ProbeTimeout,
		Logger:       logger,
	})

	deps := api.Dependencies{
		Logger:            logger,
		Catalog:           catalogRepo,
		QueryEngine:       queryEngine,
		DependencyTimeout: time.Second,
	}
	readiness := []api.ReadinessCheck{catalogRepo.HealthCheck, api.CheckObjectStoreConfig(cfg)}

	if cfg.ObjectStore.Enabled {
		objectStore, err := s3store.New(context.Background(), s3store.ConfigFrom(cfg.ObjectStore))
		if err != nil {
			logger.Error("failed to initialize object store", slog.Any("error", err))
			os.Exit(1)
		}
		exporter, err := export.NewService(objectStore, catalogRepo, export.Options{
			PresignExpiry: cfg.ObjectStore.PresignExpiry,
			Logger:        logger,
		})
		if err != nil {
			logger.Error("failed to initialize exporter", slog.Any("error", err))
			os.Exit(1)
		}
		deps.Exporter = exporter
		readiness = append(readiness, objectStore.HealthCheck)
	}
	deps.Readiness = api.CombineReadinessChecks(readiness...)

	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		if validator.Len() == 0 {
			logger.Warn("auth is required but no static keys are configured")
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server",
			slog.String("addr", cfg.HTTP.Address),
			slog.Bool("auth_required", cfg.Auth.Required),
			slog.Bool("export_enabled", cfg.ObjectStore.Enabled),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}
