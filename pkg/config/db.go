package config

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// DBOptions tune how NewDB opens the relational store.
type DBOptions struct {
	Attempts int
	Delay    time.Duration
	MaxConns int
	Verbose  bool
}

// NewDB opens a gorm handle on the PostgreSQL server described by dsn,
// retrying up to opts.Attempts times.
func NewDB(ctx context.Context, dsn string, opts DBOptions) (*gorm.DB, error) {
	if opts.Attempts < 1 {
		opts.Attempts = 1
	}
	if opts.MaxConns < 1 {
		opts.MaxConns = 10
	}

	gormConfig := &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	}
	if opts.Verbose {
		gormConfig.Logger = gormlogger.Default.LogMode(gormlogger.Info)
	}

	var (
		db  *gorm.DB
		err error
	)
	for i := 0; i < opts.Attempts; i++ {
		db, err = gorm.Open(postgres.Open(dsn), gormConfig)
		if err == nil {
			break
		}
		if i == opts.Attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(opts.Delay):
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres after %d attempt(s): %w", opts.Attempts, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database connection: %w", err)
	}
	sqlDB.SetMaxIdleConns(opts.MaxConns / 2)
	sqlDB.SetMaxOpenConns(opts.MaxConns)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(10 * time.Minute)

	return db, nil
}

// TestConnection pings the database behind db.
func TestConnection(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database connection: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}
