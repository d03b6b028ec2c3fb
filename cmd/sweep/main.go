package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"coworking/internal/app"
	"coworking/internal/config"
	"coworking/internal/database"
	"coworking/internal/pkg/logger"
	"coworking/internal/realtime"
)

// One sweep pass for cron. Events go through Redis when REDIS_URL is set so
// running api instances can push them to their subscribers.
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.AppEnv, cfg.LogLevel)

	db, err := database.Connect(cfg.DatabaseURL, log, database.Options{})
	if err != nil {
		log.Fatal().Err(err).Msg("connect database")
	}
	defer database.Close(db)

	deps := app.Deps{Config: cfg, DB: db, Log: log}
	if cfg.RedisURL != "" {
		rdb, err := realtime.NewRedisClient(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("redis")
		}
		defer rdb.Close()
		deps.Redis = rdb
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	res, err := app.New(deps).Sweeper.RunOnce(ctx)
	if err != nil {
		log.Error().Err(err).Msg("sweep failed")
		os.Exit(1)
	}
	log.Info().
		Int("holds_expired", res.HoldsExpired).
		Int("reservations_cancelled", res.ReservationsCancelled).
		Int("snapshots_published", res.SnapshotsPublished).
		Int("failures", res.Failures).
		Msg("sweep completed")
}
