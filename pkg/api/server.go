// Package api exposes the HTTP and WebSocket surface of the simulation
// server: starting runs, submitting player actions and briefings, recording
// feedback, and streaming simulation events to connected clients.
package api

import (
	"context"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/cybersim-labs/cybersim/pkg/config"
	"github.com/cybersim-labs/cybersim/pkg/events"
	"github.com/cybersim-labs/cybersim/pkg/queue"
	"github.com/cybersim-labs/cybersim/pkg/ratings"
	"github.com/cybersim-labs/cybersim/pkg/store"
)

// Server is the HTTP server. Handlers enqueue work rather than running the
// engine inline; the worker pool picks jobs up and streams results over the
// event bus.
type Server struct {
	echo       *echo.Echo
	httpServer *http.Server

	cfg         *config.Settings
	store       *store.Store
	queue       queue.Queue
	connManager *events.ConnectionManager
	ratings     *ratings.Store // nil disables the feedback endpoint
}

// NewServer wires the server and registers all routes. ratingsStore may be
// nil when no database is configured.
func NewServer(cfg *config.Settings, st *store.Store, q queue.Queue, connManager *events.ConnectionManager, ratingsStore *ratings.Store) *Server {
	s := &Server{
		echo:        echo.New(),
		cfg:         cfg,
		store:       st,
		queue:       q,
		connManager: connManager,
		ratings:     ratingsStore,
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.echo.Use(securityHeaders())
	s.echo.Use(requestLogger())
}

func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthHandler)

	simGroup := s.echo.Group("/api/sim")
	simGroup.POST("/start", s.startHandler)
	simGroup.POST("/start_guest", s.startGuestHandler)
	simGroup.POST("/:sim_id/action", s.actionHandler)
	simGroup.POST("/:sim_id/briefing", s.briefingHandler)
	simGroup.POST("/rate", s.rateHandler)
	simGroup.GET("/ws/:sim_id", s.wsHandler)
}

// Start runs the HTTP server, blocking until shutdown or listen failure.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.echo,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown stops accepting connections and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
