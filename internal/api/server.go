// Package api provides the optional read-only HTTP status surface for the
// supervisor: fleet snapshots, per-node log history, and live log streaming.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/syncmesh/fleetrunner/internal/fleet"
	"github.com/syncmesh/fleetrunner/internal/logs"
)

// Version is the supervisor version, set at build time using ldflags.
var Version = "dev"

// Server is the HTTP status server.
type Server struct {
	registry   *fleet.Registry
	broker     *logs.Broker
	runID      string
	logger     *slog.Logger
	httpServer *http.Server
	startTime  time.Time
}

// NewServer creates a status server listening on addr.
func NewServer(addr string, registry *fleet.Registry, broker *logs.Broker, runID string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		registry:  registry,
		broker:    broker,
		runID:     runID,
		logger:    logger,
		startTime: time.Now(),
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(RequestLogger(logger))
	r.Use(Recovery(logger))

	r.Get("/health", s.handleHealth)

	r.Route("/v1", func(r chi.Router) {
		// The websocket stream is long-lived and mounted outside the
		// timeout group.
		r.Get("/logs/stream", s.handleLogStream)

		r.Group(func(r chi.Router) {
			r.Use(chimiddleware.Timeout(30 * time.Second))
			r.Get("/fleet", s.handleFleet)
			r.Get("/nodes/{name}/logs", s.handleNodeLogs)
		})
	})

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start serves until Shutdown is called. It returns nil on clean shutdown.
func (s *Server) Start() error {
	s.logger.Info("status API listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the server, waiting for in-flight requests up to the
// context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
