// Package http exposes the bot's health and status endpoints for
// orchestrators and operators. The bot itself is driven by long polling; nothing here accepts
// Telegram traffic.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/modpoints/points-bot/internal/infrastructure/scheduler"
	"github.com/modpoints/points-bot/internal/interface/telegram/middleware"
	"github.com/modpoints/points-bot/pkg/circuitbreaker"
	"github.com/modpoints/points-bot/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SERVER CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains HTTP server configuration.
type Config struct {
	// Addr to listen on, e.g. ":8080".
	Addr string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultConfig returns default server configuration.
func DefaultConfig() Config {
	return Config{
		Addr:         ":8080",
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// SchedulerStatus reports per-task scheduler state.
type SchedulerStatus interface {
	Status() []scheduler.TaskStatus
}

// MetricsSource reports bot request counters.
type MetricsSource interface {
	Snapshot() middleware.MetricsSnapshot
}

// CacheStatus reports the state of the cache circuit breaker.
type CacheStatus interface {
	BreakerState() circuitbreaker.State
}

// SchemaMigration is one storage migration as listed by GET /status.
type SchemaMigration struct {
	Name      string     `json:"name"`
	Applied   bool       `json:"applied"`
	AppliedAt *time.Time `json:"applied_at,omitempty"`
}

// SchemaFunc lists storage migrations with their applied state.
type SchemaFunc func(ctx context.Context) ([]SchemaMigration, error)

// Dependencies contains what the endpoints report on.
type Dependencies struct {
	Health *HealthChecker

	// Everything below may be nil.
	Scheduler SchedulerStatus
	Metrics   MetricsSource
	Cache     CacheStatus
	Schema    SchemaFunc

	Logger *slog.Logger
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Health      HealthStatus                `json:"health"`
	Scheduler   []scheduler.TaskStatus      `json:"scheduler"`
	Bot         *middleware.MetricsSnapshot `json:"bot,omitempty"`
	Cache       *CacheReport                `json:"cache,omitempty"`
	Schema      []SchemaMigration           `json:"schema,omitempty"`
	SchemaError string                      `json:"schema_error,omitempty"`
}

// CacheReport describes the optional Redis cache.
type CacheReport struct {
	Breaker string `json:"breaker"`
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER
// ══════════════════════════════════════════════════════════════════════════════

// Server is the health HTTP server.
type Server struct {
	config     Config
	deps       Dependencies
	httpServer *http.Server
	router     *http.ServeMux
	logger     *slog.Logger

	mu      sync.Mutex
	running bool
}

// NewServer creates a new HTTP server.
func NewServer(config Config, deps Dependencies) *Server {
	if deps.Health == nil {
		deps.Health = NewHealthChecker(0)
	}
	log := deps.Logger
	if log == nil {
		log = logger.Discard()
	}

	s := &Server{
		config: config,
		deps:   deps,
		router: http.NewServeMux(),
		logger: log.With(logger.Component("http_server")),
	}
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         config.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}
	return s
}

// ══════════════════════════════════════════════════════════════════════════════
// ROUTING
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) setupRoutes() {
	s.router.HandleFunc("GET /healthz", s.handleHealth)
	s.router.HandleFunc("GET /livez", s.handleLive)
	s.router.HandleFunc("GET /status", s.handleStatus)
}

// Handler returns the routed handler wrapped in middleware.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.router
	h = s.loggingMiddleware(h)
	h = s.requestIDMiddleware(h)
	h = s.recoveryMiddleware(h)
	return h
}

// ─────────────────────────────────────────────────────────────────────────────
// Handlers
// ─────────────────────────────────────────────────────────────────────────────

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.deps.Health.Check(r.Context())
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

func (s *Server) handleLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Health:    s.deps.Health.Check(r.Context()),
		Scheduler: []scheduler.TaskStatus{},
	}
	if s.deps.Scheduler != nil {
		resp.Scheduler = s.deps.Scheduler.Status()
	}
	if s.deps.Metrics != nil {
		snap := s.deps.Metrics.Snapshot()
		resp.Bot = &snap
	}
	if s.deps.Cache != nil {
		resp.Cache = &CacheReport{Breaker: s.deps.Cache.BreakerState().String()}
	}
	if s.deps.Schema != nil {
		schema, err := s.deps.Schema(r.Context())
		if err != nil {
			s.logger.WarnContext(r.Context(), "schema status failed", logger.Err(err))
			resp.SchemaError = err.Error()
		}
		resp.Schema = schema
	}
	writeJSON(w, http.StatusOK, resp)
}

// ══════════════════════════════════════════════════════════════════════════════
// MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

type ctxKey struct{}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		id, _ := r.Context().Value(ctxKey{}).(string)
		s.logger.DebugContext(r.Context(), "http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rw.statusCode),
			logger.Latency(time.Since(start)),
			logger.RequestID(id),
		)
	})
}

func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.ErrorContext(r.Context(), "panic recovered",
					slog.Any("panic", rec),
					slog.String("path", r.URL.Path),
					slog.String("stack", string(debug.Stack())),
				)
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal_server_error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start listens and serves until Shutdown. It returns once the listener is
// bound; serve errors are logged.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("http server already running")
	}

	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.config.Addr, err)
	}
	s.running = true

	s.logger.Info("starting HTTP server", slog.String("address", ln.Addr().String()))
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server stopped", logger.Err(err))
		}
	}()
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	s.running = false

	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}
