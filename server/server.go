// Package server exposes reconstructed execution graphs to the rendering
// layer over HTTP: read-only snapshots, layouts, ancestor paths, and the
// rerun/resume actions, plus Prometheus metrics.
package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/runlens/runlens/graph"
	"github.com/runlens/runlens/graph/history"
)

// Options configures a Server.
type Options struct {
	// Orchestrator opens run streams. Required for session start, resume,
	// and rerun; a server without one serves rehydration and reads only.
	Orchestrator graph.Orchestrator

	// History is the rehydration source for reopened sessions. Optional.
	History history.Source

	// UserID is forwarded on orchestrator calls.
	UserID string

	// Logger defaults to zap.NewNop().
	Logger *zap.Logger

	// CORSOrigins lists origins allowed by the render API; empty means
	// same-origin only.
	CORSOrigins []string

	// Registry receives the engine metrics and backs /metrics. A nil
	// registry gets a fresh private one.
	Registry *prometheus.Registry

	// EngineOptions are applied to every engine the server creates, after
	// the server's own wiring (emitter, metrics, orchestrator).
	EngineOptions []graph.Option
}

// Server owns one reconstruction engine per session and serves them to the
// rendering layer. Engines are created on session start or first
// rehydration; the per-session single-writer rule is enforced by the
// engines themselves, so a rehydrate racing a live stream fails cleanly
// with a conflict instead of corrupting state.
type Server struct {
	opts     Options
	logger   *zap.Logger
	registry *prometheus.Registry
	metrics  *graph.Metrics
	handler  http.Handler

	mu      sync.RWMutex
	engines map[string]*graph.Engine
}

// New creates a Server and its HTTP handler.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Registry == nil {
		opts.Registry = prometheus.NewRegistry()
	}

	s := &Server{
		opts:     opts,
		logger:   opts.Logger,
		registry: opts.Registry,
		metrics:  graph.NewMetrics(opts.Registry),
		engines:  make(map[string]*graph.Engine),
	}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/sessions", s.handleStartSession).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/graph", s.handleGraph).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}/layout", s.handleLayout).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}/path", s.handlePath).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}/rerun", s.handleRerun).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/resume", s.handleResume).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/rehydrate", s.handleRehydrate).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}", s.handleDeleteSession).Methods(http.MethodDelete)
	r.Use(s.logRequests)

	var handler http.Handler = r
	if len(opts.CORSOrigins) > 0 {
		handler = cors.New(cors.Options{
			AllowedOrigins: opts.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
			AllowedHeaders: []string{"Content-Type"},
		}).Handler(r)
	}
	s.handler = handler
	return s
}

// Handler returns the root HTTP handler, CORS included.
func (s *Server) Handler() http.Handler { return s.handler }

// Engine returns the engine for a session, or nil.
func (s *Server) Engine(sessionID string) *graph.Engine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engines[sessionID]
}

// engineFor returns the session's engine, creating it when create is set.
func (s *Server) engineFor(sessionID string, create bool) *graph.Engine {
	s.mu.Lock()
	defer s.mu.Unlock()
	if eng, ok := s.engines[sessionID]; ok {
		return eng
	}
	if !create {
		return nil
	}

	wiring := []graph.Option{
		graph.WithMetrics(s.metrics),
		graph.WithUserID(s.opts.UserID),
	}
	if s.opts.Orchestrator != nil {
		wiring = append(wiring, graph.WithOrchestrator(s.opts.Orchestrator))
	}
	wiring = append(wiring, s.opts.EngineOptions...)

	eng := graph.NewEngine(sessionID, wiring...)
	s.engines[eng.SessionID()] = eng
	return eng
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("took", time.Since(start)))
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
