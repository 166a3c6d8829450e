package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/opengeos/maplibre-gl-noaa-lidar/internal/app"
	"github.com/opengeos/maplibre-gl-noaa-lidar/internal/config"
	logpkg "github.com/opengeos/maplibre-gl-noaa-lidar/internal/logger"
	"github.com/opengeos/maplibre-gl-noaa-lidar/internal/metrics"
	chiTransport "github.com/opengeos/maplibre-gl-noaa-lidar/internal/transport/chi"
	"github.com/opengeos/maplibre-gl-noaa-lidar/internal/transport/ept"
	healthuc "github.com/opengeos/maplibre-gl-noaa-lidar/internal/usecase/health"
	interactionuc "github.com/opengeos/maplibre-gl-noaa-lidar/internal/usecase/interaction"
	searchuc "github.com/opengeos/maplibre-gl-noaa-lidar/internal/usecase/search"
	"github.com/opengeos/maplibre-gl-noaa-lidar/internal/version"
)

func main() {
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting NOAA lidar index server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("storage_driver", cfg.Storage.Driver),
		zap.String("catalog_url", cfg.Catalog.URL),
	)

	// Register metrics explicitly (no init())
	metrics.RegisterHTTPMetrics()
	metrics.RegisterCatalogMetrics()

	ctx := context.Background()
	store, err := app.OpenStore(ctx, cfg.Storage)
	if err != nil {
		logger.Fatal("Failed to open cache store", zap.Error(err))
	}
	defer store.Close()
	logger.Info("Cache store ready")

	catalog := app.NewCatalog(cfg.Catalog, cfg.Storage, store, logger)

	engine := searchuc.New(catalog.Loader, cfg.Catalog.ResultLimit, logger).
		WithMetrics(metrics.SearchDuration, metrics.SearchMatches, metrics.CatalogIndexSize)

	// Warm the index so the first request does not pay for it. Failure is not
	// fatal: the engine retries on the next request.
	if err := engine.Load(ctx); err != nil {
		logger.Warn("Initial index load failed", zap.Error(err))
	} else {
		logger.Info("Index loaded", zap.Int("items", engine.Stats().Items))
	}

	eptClient := ept.NewClient(cfg.Catalog.FetchTimeout())
	machineOpts := interactionuc.Options{
		Limit:          cfg.Catalog.ResultLimit,
		MinDragDegrees: cfg.Sessions.MinDragDegrees,
		SearchOnDraw:   cfg.Sessions.SearchOnDrawEnabled(),
	}
	sessions, err := chiTransport.NewSessions(cfg.Sessions.MaxSessions, func() (*interactionuc.Machine, chiTransport.PointClouds) {
		loader := ept.NewLoader(eptClient, logger)
		machine := interactionuc.New(engine, loader, machineOpts, logger).
			WithMetrics(metrics.InteractionEventsTotal)
		return machine, loader
	}, logger)
	if err != nil {
		logger.Fatal("Failed to create session registry", zap.Error(err))
	}
	defer sessions.Close()

	healthSvc := healthuc.New(store, engine)

	server := chiTransport.NewServer(engine, catalog.Loader, catalog.Cache, healthSvc, sessions, logger).
		WithAPIKeys(cfg.Auth.APIKeys)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      server.Routes(),
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}
	server.Shutdown()

	logger.Info("Server stopped gracefully")
}
