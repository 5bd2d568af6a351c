// Package server provides the HTTP server and routing for the engine.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/crucible/internal/config"
	"github.com/aristath/crucible/internal/database"
	"github.com/aristath/crucible/internal/events"
	"github.com/aristath/crucible/internal/jobs"
	jobshandlers "github.com/aristath/crucible/internal/jobs/handlers"
	backtesthandlers "github.com/aristath/crucible/internal/modules/backtest/handlers"
	"github.com/aristath/crucible/internal/modules/history"
	historyhandlers "github.com/aristath/crucible/internal/modules/history/handlers"
	optimizationhandlers "github.com/aristath/crucible/internal/modules/optimization/handlers"
	"github.com/aristath/crucible/internal/modules/strategy"
	strategyhandlers "github.com/aristath/crucible/internal/modules/strategy/handlers"
	"github.com/aristath/crucible/internal/reliability"
	"github.com/aristath/crucible/internal/scheduler"
)

// Config holds server configuration
type Config struct {
	Log         zerolog.Logger
	Config      *config.Config
	HistoryDB   *database.DB
	ResultsDB   *database.DB
	Bus         *events.Bus
	Manager     *jobs.Manager
	Store       *history.Store
	Importer    *history.Importer
	Registry    *strategy.Registry
	Definitions *strategy.Definitions
	Scheduler   *scheduler.Scheduler
	Archive     *reliability.ArchiveService
}

// Server represents the HTTP server
type Server struct {
	router         *chi.Mux
	server         *http.Server
	log            zerolog.Logger
	cfg            *config.Config
	historyDB      *database.DB
	resultsDB      *database.DB
	bus            *events.Bus
	manager        *jobs.Manager
	store          *history.Store
	importer       *history.Importer
	registry       *strategy.Registry
	definitions    *strategy.Definitions
	systemHandlers *SystemHandlers
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:      chi.NewRouter(),
		log:         cfg.Log.With().Str("component", "server").Logger(),
		cfg:         cfg.Config,
		historyDB:   cfg.HistoryDB,
		resultsDB:   cfg.ResultsDB,
		bus:         cfg.Bus,
		manager:     cfg.Manager,
		store:       cfg.Store,
		importer:    cfg.Importer,
		registry:    cfg.Registry,
		definitions: cfg.Definitions,
	}

	s.systemHandlers = NewSystemHandlers(
		cfg.Log,
		cfg.Config.DataDir,
		cfg.HistoryDB,
		cfg.ResultsDB,
		cfg.Manager,
		cfg.Scheduler,
		cfg.Archive,
	)

	s.setupMiddleware(cfg.Config.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// SetJobs registers maintenance jobs for manual triggering via API
func (s *Server) SetJobs(maintenanceJobs ...scheduler.Job) {
	s.systemHandlers.SetJobs(maintenanceJobs...)
}

// Router exposes the configured router, mainly for tests
func (s *Server) Router() http.Handler {
	return s.router
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	// Recovery from panics
	s.router.Use(middleware.Recoverer)

	// Request ID
	s.router.Use(middleware.RequestID)

	// Real IP
	s.router.Use(middleware.RealIP)

	// Logging
	s.router.Use(s.loggingMiddleware)

	// Timeout
	s.router.Use(middleware.Timeout(60 * time.Second))

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Compress responses
	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	// Health check
	s.router.Get("/health", s.handleHealth)

	// Event push surfaces. The request timeout middleware cuts these
	// after 60s; EventSource and WebSocket clients reconnect.
	eventsStream := NewEventsStreamHandler(s.bus, s.log)
	s.router.Get("/api/events/stream", eventsStream.ServeHTTP)

	wsStream := NewWSStreamHandler(s.bus, s.log)
	s.router.Get("/api/events/ws", wsStream.ServeHTTP)

	// System monitoring, maintenance triggers, archive access
	s.systemHandlers.RegisterRoutes(s.router)

	// Module routes, each handler owns its /api/<feature> subtree
	historyHandler := historyhandlers.NewHandler(s.store, s.importer, s.log)
	historyHandler.RegisterRoutes(s.router)

	strategyHandler := strategyhandlers.NewHandler(s.registry, s.definitions, s.log)
	strategyHandler.RegisterRoutes(s.router)

	backtestHandler := backtesthandlers.NewHandler(s.manager, s.log)
	backtestHandler.RegisterRoutes(s.router)

	optimizationHandler := optimizationhandlers.NewHandler(s.manager, s.log)
	optimizationHandler.RegisterRoutes(s.router)

	recordsHandler := jobshandlers.NewHandler(s.manager.Records(), s.log)
	recordsHandler.RegisterRoutes(s.router)
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":  "healthy",
		"version": "1.0.0",
		"service": "crucible",
	}

	s.writeJSON(w, http.StatusOK, response)
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.cfg.Port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
