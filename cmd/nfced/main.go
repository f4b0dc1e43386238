// nfced is the NFC-e tracker API daemon: it connects to postgres, applies
// pending schema migrations and serves the JSON API until interrupted.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vamojunto/nfce-tracker/db"
	"github.com/vamojunto/nfce-tracker/internal/auth"
	"github.com/vamojunto/nfce-tracker/internal/common"
	"github.com/vamojunto/nfce-tracker/internal/export"
	"github.com/vamojunto/nfce-tracker/internal/ingest"
	"github.com/vamojunto/nfce-tracker/internal/repository"
	"github.com/vamojunto/nfce-tracker/internal/scraper"
	"github.com/vamojunto/nfce-tracker/internal/server"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(),
	}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sqlDB, pool, err := repository.Open(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer repository.Close(sqlDB, pool, logger)

	if err := repository.HealthCheck(ctx, pool, 3*time.Second, logger); err != nil {
		logger.Error("database health check failed", "error", err)
		os.Exit(1)
	}

	if err := db.MigrateUp(sqlDB, logger); err != nil {
		logger.Error("migration failed", "error", err)
		os.Exit(1)
	}

	users := repository.NewUserRepository(sqlDB, logger)
	notes := repository.NewNoteRepository(sqlDB, logger)

	authSvc := auth.NewService(users, cfg.Auth, logger)
	sc := scraper.New(cfg.Scraper, nil, logger)
	ingestSvc := ingest.NewService(notes, sc, logger)
	exportSvc := export.NewService(notes, logger)

	srv := server.New(*cfg, authSvc, ingestSvc, notes, exportSvc, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error("http server failed", "error", err)
			os.Exit(1)
		}
		return
	}

	if err := srv.Shutdown(context.Background()); err != nil {
		logger.Error("shutdown did not complete cleanly", "error", err)
		os.Exit(1)
	}
	logger.Info("stopped")
}

func logLevel() slog.Level {
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
