package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/vamojunto/nfce-tracker/internal/common"
)

// Open creates a pgx pool and wraps it as *sql.DB for the repositories.
// Both are returned so callers can close them and run pool-level health
// checks.
func Open(ctx context.Context, cfg common.DatabaseConfig, logger *slog.Logger) (*sql.DB, *pgxpool.Pool, error) {
	logger.Info("connecting to database")
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		logger.Error("failed to parse database DSN", "error", err)
		return nil, nil, err
	}

	pc.MaxConns = cfg.MaxConns
	pc.MinConns = cfg.MinConns
	pc.MaxConnLifetime = cfg.MaxConnLifetime
	pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	pc.ConnConfig.RuntimeParams["application_name"] = "nfce-tracker"
	if cfg.StatementTimeout > 0 {
		pc.ConnConfig.RuntimeParams["statement_timeout"] = cfg.StatementTimeout.String()
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		return nil, nil, err
	}

	db := stdlib.OpenDBFromPool(pool)

	logger.Info("successfully connected to database")
	return db, pool, nil
}

// Close closes the database connections gracefully
func Close(db *sql.DB, pool *pgxpool.Pool, logger *slog.Logger) {
	logger.Info("closing database connections")
	if db != nil {
		if err := db.Close(); err != nil {
			logger.Error("failed to close database handle", "error", err)
		}
	}
	if pool != nil {
		pool.Close()
	}
	logger.Info("database connections closed")
}

// HealthCheck pings the pool to catch DSN issues early.
func HealthCheck(ctx context.Context, pool *pgxpool.Pool, timeout time.Duration, logger *slog.Logger) error {
	logger.Debug("pinging database")
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := pool.Ping(ctx); err != nil {
		return err
	}
	logger.Debug("database ping successful")
	return nil
}
