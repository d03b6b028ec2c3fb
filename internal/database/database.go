package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	gormsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	// pure-Go driver registered as "sqlite"
	_ "modernc.org/sqlite"
)

type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	Silent          bool
}

func IsPostgres(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

// Connect opens PostgreSQL for postgres:// DSNs and SQLite otherwise.
func Connect(dsn string, log zerolog.Logger, opts Options) (*gorm.DB, error) {
	cfg := &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)}
	if opts.Silent {
		cfg.Logger = gormlogger.Default.LogMode(gormlogger.Silent)
	}

	var (
		db  *gorm.DB
		err error
	)
	if IsPostgres(dsn) {
		log.Info().Msg("connecting to PostgreSQL")
		db, err = gorm.Open(postgres.Open(dsn), cfg)
	} else {
		log.Info().Str("dsn", dsn).Msg("using SQLite")
		db, err = gorm.Open(
			gormsqlite.New(gormsqlite.Config{
				DriverName: "sqlite",
				DSN:        withSQLitePragmas(dsn),
			}),
			cfg,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql db: %w", err)
	}
	if !IsPostgres(dsn) {
		// SQLite has a single writer; one connection keeps transactions serialized.
		opts.MaxOpenConns = 1
		opts.MaxIdleConns = 1
	}
	if opts.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}
	return db, nil
}

func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return sqlDB.PingContext(ctx)
}

func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func withSQLitePragmas(dsn string) string {
	if strings.Contains(dsn, "_pragma=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
}
