// Package server exposes the reporting engine over HTTP.
package server

import (
	"context"
	"fmt"
	"net/http"
	gosync "sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/mhamzafaisal1/chitrac/internal/config"
	"github.com/mhamzafaisal1/chitrac/internal/db"
	"github.com/mhamzafaisal1/chitrac/internal/report"
)

// VersionInfo holds build-time version metadata.
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
}

// Server is the HTTP server for the reporting API.
type Server struct {
	mu      gosync.RWMutex
	cfg     *config.Config
	db      *db.DB
	builder *report.Builder
	log     zerolog.Logger
	mux     *http.ServeMux
	httpSrv *http.Server
	version VersionInfo

	timeout time.Duration
}

// New creates a Server.
func New(
	cfg *config.Config, database *db.DB, builder *report.Builder,
	log zerolog.Logger, opts ...Option,
) *Server {
	s := &Server{
		cfg:     cfg,
		db:      database,
		builder: builder,
		log:     log.With().Str("component", "server").Logger(),
		mux:     http.NewServeMux(),
		timeout: cfg.RequestTimeout(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

// Option configures a Server.
type Option func(*Server)

// WithVersion sets the build-time version metadata.
func WithVersion(v VersionInfo) Option {
	return func(s *Server) { s.version = v }
}

func (s *Server) routes() {
	s.mux.Handle("GET /api/v1/operators",
		s.withTimeout(s.handleListOperators))
	s.mux.Handle("GET /api/v1/operators/performance",
		s.withTimeout(s.handleOperatorFleet))
	s.mux.Handle("GET /api/v1/operators/{id}/performance",
		s.withTimeout(s.handleOperatorPerformance))

	s.mux.Handle("GET /api/v1/machines",
		s.withTimeout(s.handleListMachines))
	s.mux.Handle("GET /api/v1/machines/performance",
		s.withTimeout(s.handleMachineFleet))
	s.mux.Handle("GET /api/v1/machines/{serial}/performance",
		s.withTimeout(s.handleMachinePerformance))
	s.mux.Handle("GET /api/v1/machines/{serial}/faults",
		s.withTimeout(s.handleMachineFaults))

	s.mux.Handle("GET /api/v1/items/performance",
		s.withTimeout(s.handleItemPerformance))

	s.mux.Handle("GET /api/v1/stats", s.withTimeout(s.handleGetStats))
	s.mux.Handle("GET /api/v1/version", s.withTimeout(s.handleGetVersion))

	s.mux.Handle("GET /metrics", promhttp.Handler())
}

// Handler returns the http.Handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return corsMiddleware(s.logMiddleware(s.mux))
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	addr := s.cfg.ListenAddr()
	srv := &http.Server{
		Addr:        addr,
		Handler:     s.Handler(),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 120 * time.Second,
	}
	s.mu.Lock()
	s.httpSrv = srv
	s.mu.Unlock()
	s.log.Info().Str("addr", addr).Msg("starting HTTP server")
	return srv.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	srv := s.httpSrv
	s.mu.RUnlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (s *Server) handleGetVersion(
	w http.ResponseWriter, _ *http.Request,
) {
	writeJSON(w, http.StatusOK, s.version)
}

func (s *Server) handleGetStats(
	w http.ResponseWriter, r *http.Request,
) {
	stats, err := s.db.GetStats(r.Context())
	if err != nil {
		if handleContextError(w, err) {
			return
		}
		s.log.Error().Err(err).Msg("reading stats")
		writeError(w, http.StatusInternalServerError,
			fmt.Sprintf("reading stats: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
