// Package main provides the API server entry point for the arcade aggregation service.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cartridge-gg/arcade-sub001/internal/api"
	"github.com/cartridge-gg/arcade-sub001/internal/config"
	"github.com/cartridge-gg/arcade-sub001/internal/logging"
	"github.com/cartridge-gg/arcade-sub001/internal/ratelimit"
	"github.com/cartridge-gg/arcade-sub001/internal/service"
	"github.com/cartridge-gg/arcade-sub001/internal/source"
	"github.com/cartridge-gg/arcade-sub001/internal/storage"
	"github.com/cartridge-gg/arcade-sub001/internal/worker"
)

func main() {
	fmt.Println("Arcade API Server")
	log.Println("Server starting...")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logLevel := logging.ParseLogLevel(cfg.Logging.Level)
	logFormat := logging.ParseLogFormat(cfg.Logging.Format)
	logging.InitGlobalLogger(logLevel, logFormat)

	logger := logging.GetGlobalLogger()
	logger.WithFields(map[string]interface{}{
		"level":  cfg.Logging.Level,
		"format": cfg.Logging.Format,
	}).Info("Structured logging initialized")

	// Initialize database connections
	logger.Info("Connecting to databases...")

	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	clickhouse, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to ClickHouse")
	}
	defer clickhouse.Close()

	redis, err := storage.NewRedisCache(&cfg.Database.Redis)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redis.Close()

	logger.Info("Database connections established")

	// Initialize repositories
	pinRepo := storage.NewPinRepository(postgres)
	statusRepo := storage.NewSourceStatusRepository(postgres)
	activityRepo := storage.NewActivityRepository(clickhouse)
	cacheService := storage.NewCacheService(redis, cfg.Cache.TTL)

	// Build the source chain: indexer, optional shared query budget, routing
	var indexer source.Fetcher = source.NewIndexerClient(cfg.Sources)

	budgetCfg := ratelimit.LoadFromEnv()
	logger.WithField("config", budgetCfg.String()).Info("Query budget configuration loaded")
	if budgetCfg.Enabled {
		tracker, err := ratelimit.NewBudgetTracker(&ratelimit.BudgetTrackerConfig{
			Redis:          redis.Client(),
			TotalBudget:    budgetCfg.TotalBudget,
			ReservedBudget: budgetCfg.ReservedBudget,
			WindowSize:     budgetCfg.WindowSize(),
		})
		if err != nil {
			logger.WithError(err).Fatal("Failed to create query budget tracker")
		}
		indexer, err = ratelimit.NewBudgetedFetcher(&ratelimit.BudgetedFetcherConfig{
			Fetcher: indexer,
			Tracker: tracker,
			MaxWait: budgetCfg.MaxWait(),
		})
		if err != nil {
			logger.WithError(err).Fatal("Failed to create budgeted fetcher")
		}
	}

	var activityReader service.ActivityReader
	if cfg.Sources.ActivityBackend == config.ActivityFromClickHouse {
		activityReader = activityRepo
	}

	deps := service.Dependencies{
		Fetcher:  service.NewRoutedFetcher(indexer, activityReader),
		Pins:     pinRepo,
		Statuses: statusRepo,
		Cache:    cacheService,
		Players:  storage.NewPlayerCache(cacheService),
	}
	if cfg.Sources.ArchiveActivity && activityReader == nil {
		deps.Archive = activityRepo
	}

	arcade, err := service.NewArcadeService(service.OptionsFromConfig(cfg), deps)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create arcade service")
	}
	defer arcade.Close()

	logger.WithFields(map[string]interface{}{
		"projects": cfg.Sources.Projects,
		"activity": string(cfg.Sources.ActivityBackend),
	}).Info("Services initialized")

	// Start the poller
	poller, err := worker.NewPoller(&worker.PollerConfig{
		Service:      arcade,
		PollInterval: cfg.Poll.Interval,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to create poller")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := poller.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to start poller")
	}

	// Create server configuration
	serverConfig := &api.ServerConfig{
		Host:              cfg.Server.Host,
		Port:              cfg.Server.Port,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ShutdownTimeout:   10 * time.Second,
		RequestsPerSecond: cfg.Server.RequestsPerSecond,
		Burst:             cfg.Server.Burst,
	}

	server := api.NewServer(serverConfig, arcade, pinRepo)

	// Start server in a goroutine
	go func() {
		if err := server.Start(); err != nil {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	logger.WithFields(map[string]interface{}{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("Server started successfully")

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), serverConfig.ShutdownTimeout)
	defer shutdownCancel()

	if err := poller.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Poller did not stop cleanly")
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Fatal("Server forced to shutdown")
	}

	logger.Info("Server exited")
}
