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

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"coworking/internal/app"
	"coworking/internal/config"
	"coworking/internal/database"
	"coworking/internal/metrics"
	"coworking/internal/pkg/logger"
	"coworking/internal/realtime"
	"coworking/internal/repository"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.AppEnv, cfg.LogLevel)

	db, err := database.Connect(cfg.DatabaseURL, log, database.Options{
		MaxOpenConns:    20,
		MaxIdleConns:    10,
		ConnMaxLifetime: 30 * time.Minute,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("connect database")
	}
	defer database.Close(db)

	if err := repository.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate")
	}

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		if rdb, err = realtime.NewRedisClient(cfg.RedisURL); err != nil {
			log.Fatal().Err(err).Msg("redis")
		}
		defer rdb.Close()
	}

	metrics.Register()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := app.New(app.Deps{Config: cfg, DB: db, Redis: rdb, Log: log})
	if err := a.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("start background workers")
	}

	if cfg.MetricsPort > 0 {
		go serveMetrics(ctx, cfg.MetricsPort, log)
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		log.Info().Msg("shutting down")
		a.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("http shutdown")
		}
	}()

	log.Info().Str("addr", cfg.HTTPAddr).Dur("hold_ttl", cfg.HoldTTL).Msg("api listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("http server")
	}
}

func serveMetrics(ctx context.Context, port int, log zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("metrics server error")
	}
}
