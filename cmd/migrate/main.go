// Package main applies the schema of the pin store (Postgres) and of the
// call event archive (ClickHouse).
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"path/filepath"

	"github.com/cartridge-gg/arcade-sub001/internal/config"
	"github.com/cartridge-gg/arcade-sub001/internal/logging"
	"github.com/cartridge-gg/arcade-sub001/internal/storage"
)

func main() {
	var (
		target = flag.String("target", "all", "Store to migrate: postgres, clickhouse or all")
		action = flag.String("action", "up", "Postgres only: up, down or version")
		dir    = flag.String("dir", "migrations", "Directory holding the postgres/ and clickhouse/ migration sets")
	)
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}
	logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))
	logger := logging.GetGlobalLogger().WithFields(map[string]interface{}{
		"target": *target,
		"action": *action,
	})

	steps := map[string]func() error{
		"postgres": func() error {
			return migratePostgres(cfg.Database.Postgres, filepath.Join(*dir, "postgres"), *action, logger)
		},
		"clickhouse": func() error {
			return migrateClickHouse(&cfg.Database.ClickHouse, filepath.Join(*dir, "clickhouse"), *action, logger)
		},
	}

	var order []string
	switch *target {
	case "all":
		order = []string{"postgres", "clickhouse"}
	case "postgres", "clickhouse":
		order = []string{*target}
	default:
		logger.Fatalf("Unknown target %q", *target)
	}

	for _, name := range order {
		if err := steps[name](); err != nil {
			logger.WithError(err).WithField("store", name).Fatal("Migration failed")
		}
	}
}

func migratePostgres(cfg config.PostgresConfig, path, action string, logger *logging.Logger) error {
	logger = logger.WithField("store", "postgres")
	switch action {
	case "up":
		if err := storage.RunMigrations(cfg.URL(), path); err != nil {
			return err
		}
		logger.Info("Pin store schema is current")
	case "down":
		if err := storage.RollbackMigrations(cfg.URL(), path); err != nil {
			return err
		}
		logger.Info("Rolled back one pin store migration")
	case "version":
		version, dirty, err := storage.MigrationVersion(cfg.URL(), path)
		if err != nil {
			return err
		}
		logger.WithFields(map[string]interface{}{
			"version": version,
			"dirty":   dirty,
		}).Info("Pin store schema version")
	default:
		return fmt.Errorf("unknown action %q", action)
	}
	return nil
}

func migrateClickHouse(cfg *config.ClickHouseConfig, path, action string, logger *logging.Logger) error {
	logger = logger.WithField("store", "clickhouse")
	if action != "up" {
		// archive statements are idempotent CREATEs, there is nothing to roll back
		logger.Warn("Archive migrations only run forward, skipping")
		return nil
	}

	db, err := storage.NewClickHouseDB(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	applied, err := storage.RunClickHouseMigrations(context.Background(), db, path)
	if err != nil {
		return err
	}
	logger.WithField("files", len(applied)).Info("Archive schema is current")
	return nil
}
