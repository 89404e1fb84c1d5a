// Package main runs a single aggregation pass against the indexer and prints
// the resulting standing of one player, or the leaderboard
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/cartridge-gg/arcade-sub001/internal/config"
	"github.com/cartridge-gg/arcade-sub001/internal/logging"
	"github.com/cartridge-gg/arcade-sub001/internal/normalize"
	"github.com/cartridge-gg/arcade-sub001/internal/service"
	"github.com/cartridge-gg/arcade-sub001/internal/source"
)

func main() {
	var (
		player   = flag.String("player", "", "Player address; empty prints the leaderboard")
		projects = flag.String("projects", "", "Comma separated projects, overrides ARCADE_PROJECTS")
		limit    = flag.Int("limit", 20, "Leaderboard rows to print")
		replay   = flag.String("replay", "", "Directory of captured <project>.<kind>.json results to read instead of the indexer")
	)
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))
	logger := logging.GetGlobalLogger()

	if *projects != "" {
		cfg.Sources.Projects = strings.Split(*projects, ",")
	}
	if len(cfg.Sources.Projects) == 0 {
		logger.Fatal("No projects configured")
	}

	var fetcher source.Fetcher = source.NewIndexerClient(cfg.Sources)
	if *replay != "" {
		logger.WithField("dir", *replay).Info("Replaying captured results")
		fetcher = source.NewReplayFetcher(*replay)
	}

	arcade, err := service.NewArcadeService(service.OptionsFromConfig(cfg), service.Dependencies{Fetcher: fetcher})
	if err != nil {
		logger.WithError(err).Fatal("Failed to create arcade service")
	}
	defer arcade.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		for p := range arcade.Progress() {
			entry := logger.WithFields(map[string]interface{}{
				"completed": p.Completed,
				"total":     p.Total,
			})
			if p.Final() {
				entry.WithField("status", string(p.Status)).Info("Pass outcome")
				continue
			}
			entry.Info("Sources loaded")
		}
	}()

	view, err := arcade.Poll(ctx)
	if err != nil {
		logger.WithError(err).Fatal("Pass failed")
	}

	logger.WithFields(map[string]interface{}{
		"status":  string(view.Status),
		"dropped": view.Dropped,
	}).Info("Pass completed")

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	if *player == "" {
		rows := view.Leaderboard("")
		if len(rows) > *limit {
			rows = rows[:*limit]
		}
		if err := enc.Encode(rows); err != nil {
			logger.WithError(err).Fatal("Failed to write leaderboard")
		}
		return
	}

	key, err := normalize.Address(*player)
	if err != nil {
		logger.WithError(err).Fatal("Invalid player address")
	}

	out := map[string]interface{}{
		"summary": view.PlayerSummary(key),
	}
	sessions := make(map[string]interface{})
	for _, project := range cfg.Sources.Projects {
		sessions[project] = view.Sessions(project, key)
	}
	out["sessions"] = sessions

	if err := enc.Encode(out); err != nil {
		logger.WithError(err).Fatal("Failed to write player")
	}
}
