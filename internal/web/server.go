package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/kozaktomas/rollcall/internal/attendance"
	"github.com/kozaktomas/rollcall/internal/database"
	"github.com/kozaktomas/rollcall/internal/web/middleware"
)

// sessionCleanupInterval is how often expired sessions are purged.
const sessionCleanupInterval = 15 * time.Minute

// Options configure the web server
type Options struct {
	Host           string
	Port           int
	SessionSecret  string
	AllowedOrigins string // comma-separated
	MaxUploadBytes int64
	// SessionStore persists sessions across restarts, may be nil.
	SessionStore database.SessionStore
}

// Server represents the web server
type Server struct {
	service        *attendance.Service
	opts           Options
	router         *chi.Mux
	httpServer     *http.Server
	sessionManager *middleware.SessionManager
}

// NewServer creates a new web server
func NewServer(service *attendance.Service, opts Options) *Server {
	r := chi.NewRouter()
	sessionManager := middleware.NewSessionManager(opts.SessionSecret, opts.SessionStore)

	s := &Server{
		service:        service,
		opts:           opts,
		router:         r,
		sessionManager: sessionManager,
	}

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(2 * time.Minute))
	r.Use(middleware.CORS(middleware.ParseAllowedOrigins(opts.AllowedOrigins)))
	r.Use(middleware.SecurityHeaders())

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", opts.Host, opts.Port),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 3 * time.Minute, // a submission waits for the whole roster
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start starts the HTTP server and the session cleanup loop
func (s *Server) Start() error {
	s.sessionManager.StartCleanup(sessionCleanupInterval)
	slog.Info("starting web server", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("shutting down web server")
	s.sessionManager.Stop()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// Router returns the chi router for testing
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Sessions returns the session manager
func (s *Server) Sessions() *middleware.SessionManager {
	return s.sessionManager
}
