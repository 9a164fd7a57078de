// Package server exposes the redaction pipeline over HTTP and WebSocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/raaihank/docmask/internal/audit"
	"github.com/raaihank/docmask/internal/cache"
	"github.com/raaihank/docmask/internal/config"
	"github.com/raaihank/docmask/internal/logger"
	"github.com/raaihank/docmask/internal/pipeline"
	"github.com/raaihank/docmask/internal/websocket"
)

// JobHistory lists recently finished jobs
type JobHistory interface {
	Recent(ctx context.Context, limit int) ([]audit.JobRow, error)
	GetStats(ctx context.Context) (*audit.Stats, error)
}

// ResultCache is the admin view of the OCR result cache
type ResultCache interface {
	GetStats(ctx context.Context) (*cache.Stats, error)
	Clear(ctx context.Context) error
}

// Deps are the components the server routes to. Hub, History and Cache are
// optional.
type Deps struct {
	Orchestrator *pipeline.Orchestrator
	Hub          *websocket.Hub
	History      JobHistory
	Cache        ResultCache
	Version      string
}

// Server represents the HTTP front end of the pipeline
type Server struct {
	config  *config.Config
	logger  *logger.Logger
	deps    Deps
	limiter *RateLimiter
	router  *mux.Router
	server  *http.Server
}

// New creates a new server instance
func New(cfg *config.Config, log *logger.Logger, deps Deps) (*Server, error) {
	if deps.Orchestrator == nil {
		return nil, errors.New("orchestrator is required")
	}

	s := &Server{
		config:  cfg,
		logger:  log.WithComponent("server"),
		deps:    deps,
		limiter: NewRateLimiter(cfg.RateLimit),
		router:  mux.NewRouter(),
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return s, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/info", s.handleInfo).Methods(http.MethodGet)

	if s.deps.Hub != nil {
		s.router.HandleFunc(s.config.WebSocket.Path, s.deps.Hub.HandleWebSocket).Methods(http.MethodGet)
	}

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.Use(s.loggingMiddleware)

	api.Handle("/jobs", s.rateLimitMiddleware(http.HandlerFunc(s.handleSubmit))).Methods(http.MethodPost)
	api.HandleFunc("/jobs/current", s.handleCurrent).Methods(http.MethodGet)
	api.HandleFunc("/jobs/current/image", s.handleImage).Methods(http.MethodGet)
	api.HandleFunc("/jobs/history", s.handleHistory).Methods(http.MethodGet)
	api.Handle("/cache", s.rateLimitMiddleware(http.HandlerFunc(s.handleClearCache))).Methods(http.MethodDelete)
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start runs the WebSocket hub and limiter cleanup, then serves HTTP until
// Stop is called.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting docmask server",
		zap.Int("port", s.config.Server.Port),
		zap.String("ocr_engine", s.config.OCR.Engine),
		zap.String("ocr_language", s.config.OCR.Language),
		zap.Bool("websocket_enabled", s.deps.Hub != nil),
		zap.Bool("rate_limit_enabled", s.config.RateLimit.Enabled),
	)

	if s.deps.Hub != nil {
		go s.deps.Hub.Run(ctx)
	}
	s.limiter.StartCleanupRoutine(ctx)

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping docmask server")
	return s.server.Shutdown(ctx)
}
