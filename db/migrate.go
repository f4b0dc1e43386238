// Package db carries the SQL schema and applies it on startup.
package db

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MigrateUp applies all pending migrations against the given postgres
// handle. Already-applied versions are skipped; a dirty database is an
// error that needs operator attention.
func MigrateUp(database *sql.DB, logger *slog.Logger) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("loading embedded migrations: %w", err)
	}

	driver, err := pgxmigrate.WithInstance(database, &pgxmigrate.Config{})
	if err != nil {
		return fmt.Errorf("preparing migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "pgx5", driver)
	if err != nil {
		return fmt.Errorf("initializing migrations: %w", err)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info("database schema up to date")
			return nil
		}
		return fmt.Errorf("applying migrations: %w", err)
	}

	version, _, _ := m.Version()
	logger.Info("database schema migrated", "version", version)
	return nil
}
