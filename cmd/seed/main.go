package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"coworking/internal/catalog"
	"coworking/internal/config"
	"coworking/internal/database"
	"coworking/internal/pkg/logger"
	"coworking/internal/repository"
)

func main() {
	path := flag.String("catalog", "configs/catalog.yaml", "YAML catalog of spaces")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.AppEnv, cfg.LogLevel)

	f, err := os.Open(*path)
	if err != nil {
		log.Fatal().Err(err).Msg("open catalog")
	}
	defer f.Close()

	spaces, err := catalog.Parse(f, cfg.Location)
	if err != nil {
		log.Fatal().Err(err).Str("file", *path).Msg("parse catalog")
	}

	db, err := database.Connect(cfg.DatabaseURL, log, database.Options{})
	if err != nil {
		log.Fatal().Err(err).Msg("connect database")
	}
	defer database.Close(db)

	if err := repository.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	spacesRepo := repository.NewSpaceRepository(repository.NewStore(db), cfg.Location)
	n, err := catalog.Seed(ctx, spacesRepo, spaces)
	if err != nil {
		log.Fatal().Err(err).Int("written", n).Msg("seed catalog")
	}
	log.Info().Int("spaces", n).Str("file", *path).Msg("catalog seeded")
}
