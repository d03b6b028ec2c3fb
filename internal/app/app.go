// Package app wires the reservation core into one HTTP router so the api
// binary and end-to-end tests build exactly the same graph.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"coworking/internal/clock"
	"coworking/internal/config"
	"coworking/internal/database"
	"coworking/internal/middleware"
	"coworking/internal/modules/availability"
	"coworking/internal/modules/holds"
	"coworking/internal/modules/reservation"
	"coworking/internal/modules/sweeper"
	"coworking/internal/pkg/jwt"
	"coworking/internal/pkg/keylock"
	"coworking/internal/realtime"
	"coworking/internal/repository"
)

// tokens are issued by the auth service; the ttl only matters for GenerateToken.
const tokenTTL = 24 * time.Hour

type Deps struct {
	Config *config.Config
	DB     *gorm.DB

	// Redis is optional; without it events stay on this instance.
	Redis *redis.Client
	Clock clock.Clock
	Log   zerolog.Logger
}

type App struct {
	Router       *gin.Engine
	Hub          *realtime.Hub
	Relay        *realtime.RedisRelay
	Sweeper      *sweeper.Sweeper
	Holds        *holds.Service
	Reservations *reservation.Service
	Availability *availability.Service
	Spaces       *repository.SpaceRepository
	Tokens       *jwt.Service

	db    *gorm.DB
	redis *redis.Client
	log   zerolog.Logger
}

func New(d Deps) *App {
	cfg := d.Config
	clk := d.Clock
	if clk == nil {
		clk = clock.NewSystem()
	}
	log := d.Log

	store := repository.NewStore(d.DB)
	holdRepo := repository.NewHoldRepository(store)
	resRepo := repository.NewReservationRepository(store)
	spaces := repository.NewSpaceRepository(store, cfg.Location)

	hub := realtime.NewHub(log)
	var (
		broadcaster holds.Broadcaster = hub
		relay       *realtime.RedisRelay
	)
	if d.Redis != nil {
		relay = realtime.NewRedisRelay(d.Redis, "", hub, log)
		broadcaster = relay
	}

	locks := keylock.New()
	resolver := availability.NewService(spaces, resRepo, holdRepo, clk)
	holdSvc := holds.NewService(store, holdRepo, resRepo, spaces, resolver, broadcaster, locks,
		holds.WithHoldTTL(cfg.HoldTTL),
		holds.WithClock(clk),
		holds.WithLogger(log.With().Str("component", "holds").Logger()),
	)
	resSvc := reservation.NewService(store, resRepo, spaces, holdSvc, resolver, broadcaster, locks,
		reservation.WithPaymentWindow(cfg.PaymentWindow),
		reservation.WithClock(clk),
		reservation.WithLogger(log.With().Str("component", "reservations").Logger()),
	)
	sw := sweeper.New(holdRepo, resRepo, resSvc, resolver, broadcaster, locks, clk,
		sweeper.Config{Interval: cfg.SweepInterval, BatchSize: cfg.SweepBatch}, log)

	tokens := jwt.New(cfg.JWTSecret, tokenTTL)

	a := &App{
		Hub:          hub,
		Relay:        relay,
		Sweeper:      sw,
		Holds:        holdSvc,
		Reservations: resSvc,
		Availability: resolver,
		Spaces:       spaces,
		Tokens:       tokens,
		db:           d.DB,
		redis:        d.Redis,
		log:          log,
	}
	a.Router = a.routes(cfg)
	return a
}

func (a *App) routes(cfg *config.Config) *gin.Engine {
	if cfg.IsProd() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(middleware.RequestID(), middleware.RequestLogger(a.log), middleware.CORS(cfg.CORSAllowedOrigins))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/readyz", a.ready)

	limiter := middleware.NewUserRateLimiter(cfg.HoldRatePerSec, cfg.HoldRateBurst)

	v1 := r.Group("/api/v1")
	{
		public := v1.Group("")
		public.Use(middleware.OptionalJWTAuth(a.Tokens))
		availability.NewHandler(a.Availability).RegisterRoutes(public)

		holdRoutes := v1.Group("")
		holdRoutes.Use(middleware.JWTAuth(a.Tokens), limiter.Middleware())
		holds.NewHandler(a.Holds, a.Availability).RegisterRoutes(holdRoutes)

		protected := v1.Group("")
		protected.Use(middleware.JWTAuth(a.Tokens))
		reservations := reservation.NewHandler(a.Reservations)
		reservations.RegisterRoutes(protected)

		admin := v1.Group("/admin")
		admin.Use(middleware.JWTAuth(a.Tokens), middleware.AdminOnly())
		sweeper.NewHandler(a.Sweeper).RegisterRoutes(admin)
	}

	internal := r.Group("/internal")
	internal.Use(middleware.InternalTokenAuth(cfg.InternalToken, a.log))
	{
		reservation.NewHandler(a.Reservations).RegisterInternalRoutes(internal)
		sweeper.NewHandler(a.Sweeper).RegisterRoutes(internal)
	}

	realtime.NewHandler(a.Hub, a.Availability, a.Tokens, cfg.CORSAllowedOrigins, a.log).RegisterRoutes(r)
	return r
}

func (a *App) ready(c *gin.Context) {
	checks := gin.H{"database": "ok"}
	status := http.StatusOK
	if err := database.Ping(c.Request.Context(), a.db); err != nil {
		checks["database"] = err.Error()
		status = http.StatusServiceUnavailable
	}
	if a.redis != nil {
		checks["redis"] = "ok"
		if err := a.redis.Ping(c.Request.Context()).Err(); err != nil {
			// events still reach local subscribers without redis
			checks["redis"] = err.Error()
		}
	}
	c.JSON(status, gin.H{"status": http.StatusText(status), "checks": checks})
}

// Start subscribes the relay and launches the sweeper loop. Both stop when
// ctx is cancelled.
func (a *App) Start(ctx context.Context) error {
	if a.Relay != nil {
		if err := a.Relay.Start(ctx); err != nil {
			return fmt.Errorf("start redis relay: %w", err)
		}
	}
	go a.Sweeper.Start(ctx)
	return nil
}

// Close drops all websocket subscribers.
func (a *App) Close() {
	a.Hub.Close()
}
