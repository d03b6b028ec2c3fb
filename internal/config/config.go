package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultHTTPAddr      = ":8080"
	defaultDatabaseURL   = "file:coworking.db?cache=shared"
	defaultJWTSecret     = "change-me-jwt-secret"
	defaultInternalToken = "change-me-internal-token"
	defaultHoldTTL       = "15m"
	defaultPaymentWindow = "15m"
	defaultSweepInterval = "5m"
	defaultSweepBatch    = "500"
	defaultTimezone      = "UTC"
	defaultMetricsPort   = "9090"
	defaultHoldRate      = "5"
	defaultHoldBurst     = "20"
	defaultLogLevel      = "info"
)

type Config struct {
	AppEnv        string
	LogLevel      string
	HTTPAddr      string
	DatabaseURL   string
	JWTSecret     string
	InternalToken string

	HoldTTL       time.Duration
	PaymentWindow time.Duration
	SweepInterval time.Duration
	SweepBatch    int
	Location      *time.Location

	RedisURL    string
	MetricsPort int

	HoldRatePerSec float64
	HoldRateBurst  int

	CORSAllowedOrigins []string
}

// Load reads an optional .env file and then the process environment.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		// missing .env is normal outside local development
		if _, err := os.Stat(f); err == nil {
			if err := godotenv.Load(f); err != nil {
				return nil, fmt.Errorf("load %s: %w", f, err)
			}
		}
	}
	return FromEnv()
}

func FromEnv() (*Config, error) {
	cfg := &Config{}
	appEnv := strings.TrimSpace(os.Getenv("APP_ENV"))
	if appEnv == "" {
		appEnv = strings.TrimSpace(os.Getenv("ENV"))
	}
	if appEnv == "" {
		appEnv = "dev"
	}
	cfg.AppEnv = strings.ToLower(appEnv)

	cfg.LogLevel = strings.TrimSpace(getEnv("LOG_LEVEL", defaultLogLevel))
	cfg.HTTPAddr = strings.TrimSpace(getEnv("HTTP_ADDR", defaultHTTPAddr))
	cfg.DatabaseURL = strings.TrimSpace(getEnv("DATABASE_URL", defaultDatabaseURL))
	cfg.JWTSecret = strings.TrimSpace(getEnv("JWT_SECRET", defaultJWTSecret))
	cfg.InternalToken = strings.TrimSpace(getEnv("INTERNAL_TOKEN", defaultInternalToken))
	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))

	var err error
	if cfg.HoldTTL, err = parseDurationEnv("HOLD_TTL", defaultHoldTTL); err != nil {
		return nil, err
	}
	if cfg.PaymentWindow, err = parseDurationEnv("PAYMENT_WINDOW", defaultPaymentWindow); err != nil {
		return nil, err
	}
	if cfg.SweepInterval, err = parseDurationEnv("SWEEP_INTERVAL", defaultSweepInterval); err != nil {
		return nil, err
	}
	if cfg.SweepBatch, err = parseIntEnv("SWEEP_BATCH", defaultSweepBatch); err != nil {
		return nil, err
	}
	if cfg.MetricsPort, err = parseIntEnv("METRICS_PORT", defaultMetricsPort); err != nil {
		return nil, err
	}
	if cfg.HoldRateBurst, err = parseIntEnv("HOLD_RATE_BURST", defaultHoldBurst); err != nil {
		return nil, err
	}
	rate := strings.TrimSpace(getEnv("HOLD_RATE_PER_SEC", defaultHoldRate))
	if cfg.HoldRatePerSec, err = strconv.ParseFloat(rate, 64); err != nil {
		return nil, fmt.Errorf("invalid HOLD_RATE_PER_SEC value %q: %w", rate, err)
	}

	tz := strings.TrimSpace(getEnv("TIMEZONE", defaultTimezone))
	if cfg.Location, err = time.LoadLocation(tz); err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE value %q: %w", tz, err)
	}

	if extra := os.Getenv("CORS_ALLOWED_ORIGINS"); extra != "" {
		for _, o := range strings.Split(extra, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.CORSAllowedOrigins = append(cfg.CORSAllowedOrigins, o)
			}
		}
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) IsProd() bool { return isProdLike(c.AppEnv) }

func validateConfig(cfg *Config) error {
	if cfg.HoldTTL <= 0 {
		return fmt.Errorf("HOLD_TTL must be > 0")
	}
	if cfg.PaymentWindow <= 0 {
		return fmt.Errorf("PAYMENT_WINDOW must be > 0")
	}
	if cfg.SweepInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be > 0")
	}
	if cfg.SweepBatch <= 0 {
		return fmt.Errorf("SWEEP_BATCH must be > 0")
	}
	if cfg.HoldRatePerSec <= 0 || cfg.HoldRateBurst <= 0 {
		return fmt.Errorf("HOLD_RATE_PER_SEC and HOLD_RATE_BURST must be > 0")
	}
	if cfg.MetricsPort < 0 || cfg.MetricsPort > 65535 {
		return fmt.Errorf("METRICS_PORT must be a valid port or 0 to disable")
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL must not be empty")
	}

	if isProdLike(cfg.AppEnv) {
		if isEmptyOrDefault(cfg.JWTSecret, defaultJWTSecret) {
			return fmt.Errorf("in prod/release JWT_SECRET must be set and not default")
		}
		if isEmptyOrDefault(cfg.InternalToken, defaultInternalToken) {
			return fmt.Errorf("in prod/release INTERNAL_TOKEN must be set and not default")
		}
	}

	return nil
}

func isProdLike(env string) bool {
	env = strings.ToLower(strings.TrimSpace(env))
	return env == "prod" || env == "production" || env == "release"
}

func isEmptyOrDefault(v, def string) bool {
	trimmed := strings.TrimSpace(v)
	return trimmed == "" || trimmed == def
}

func parseDurationEnv(name, fallback string) (time.Duration, error) {
	value := strings.TrimSpace(getEnv(name, fallback))
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", name, value, err)
	}
	return d, nil
}

func parseIntEnv(name, fallback string) (int, error) {
	value := strings.TrimSpace(getEnv(name, fallback))
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", name, value, err)
	}
	return n, nil
}

func getEnv(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
