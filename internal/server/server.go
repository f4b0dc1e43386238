// Package server exposes the ingestion pipeline and note queries over a
// JSON HTTP API.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/vamojunto/nfce-tracker/internal/auth"
	"github.com/vamojunto/nfce-tracker/internal/common"
	"github.com/vamojunto/nfce-tracker/internal/export"
	"github.com/vamojunto/nfce-tracker/internal/ingest"
	"github.com/vamojunto/nfce-tracker/internal/repository"
)

// Server wires services onto routes and owns the http.Server lifecycle.
type Server struct {
	cfg    common.ServerConfig
	auth   *auth.Service
	ingest *ingest.Service
	notes  repository.NoteRepository
	export *export.Service
	logger *slog.Logger

	httpServer *http.Server
}

func New(cfg common.Config, authSvc *auth.Service, ingestSvc *ingest.Service,
	notes repository.NoteRepository, exportSvc *export.Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:    cfg.Server,
		auth:   authSvc,
		ingest: ingestSvc,
		notes:  notes,
		export: exportSvc,
		logger: logger,
	}

	s.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           s.routes([]byte(cfg.Auth.JWTSecret)),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes(jwtSecret []byte) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Post("/auth/register", s.handleRegister)
		r.Post("/auth/login", s.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(jwtSecret))
			r.Post("/notes", s.handleIngest)
			r.Get("/notes", s.handleListNotes)
			r.Get("/notes/export", s.handleExportNotes)
			r.Get("/notes/{id}", s.handleGetNote)
			r.Delete("/notes/{id}", s.handleDeleteNote)
		})
	})
	return r
}

// Handler exposes the routed handler for tests.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start blocks serving HTTP until Shutdown is called or the listener fails.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests within the configured timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}
