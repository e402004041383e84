// Package server terminates client sessions over WebSocket and exposes the
// read-only diagnostics surface over REST.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/codeon-dev/codeon/internal/config"
	"github.com/codeon-dev/codeon/internal/executor"
	"github.com/codeon-dev/codeon/internal/sandbox"
)

// Server is the HTTP server carrying the session gateway and diagnostics.
type Server struct {
	cfg      *config.Config
	registry *sandbox.Registry
	engine   *executor.Engine
	sessions *SessionManager
	logger   *zap.Logger
	router   chi.Router
	http     *http.Server
}

// New creates a new Server.
func New(cfg *config.Config, registry *sandbox.Registry, engine *executor.Engine, logger *zap.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		registry: registry,
		engine:   engine,
		sessions: NewSessionManager(),
		logger:   logger,
		router:   chi.NewRouter(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := s.router

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/ws", s.handleWebSocket)

	r.Route("/api", func(r chi.Router) {
		r.Use(jsonContentType)
		r.Get("/sandboxes", s.handleSandboxSummary)
	})
}

// jsonContentType sets Content-Type to application/json for API routes.
func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// Start begins listening on the given port.
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	s.http = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}

	s.logger.Info("server starting", zap.String("addr", addr))
	return s.http.ListenAndServe()
}

// Shutdown closes every session and stops the HTTP server. Draining the
// registry is the caller's job; sessions must be gone first so no new
// executions land on a draining registry.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")
	s.sessions.CloseAll()

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(shutdownCtx)
}
