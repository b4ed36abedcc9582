// Package api serves the operational HTTP surface of the reclaimer daemon:
// health, Prometheus metrics, legal hold administration and cleanup history.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/FairForge/reclaimer/internal/audit"
	"github.com/FairForge/reclaimer/internal/retention"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const healthTimeout = 5 * time.Second

// HealthCheck probes one dependency
type HealthCheck func(ctx context.Context) error

// HoldManager administers legal holds
type HoldManager interface {
	CreateHold(ctx context.Context, hold *retention.LegalHold) (*retention.LegalHold, error)
	ReleaseHold(ctx context.Context, holdID uuid.UUID) error
	ActiveHolds(ctx context.Context, scope string) ([]*retention.LegalHold, error)
}

// Option configures a Server
type Option func(*Server)

// WithHealthCheck adds a named dependency probe to /healthz
func WithHealthCheck(name string, check HealthCheck) Option {
	return func(s *Server) { s.checks[name] = check }
}

// WithHolds enables the /api/v1/holds routes
func WithHolds(holds HoldManager) Option {
	return func(s *Server) { s.holds = holds }
}

// WithHistory enables /api/v1/history
func WithHistory(history audit.History) Option {
	return func(s *Server) { s.history = history }
}

// WithPolicies enables /api/v1/policies
func WithPolicies(source retention.Source) Option {
	return func(s *Server) { s.policies = source }
}

// WithVersion sets the version reported by /version
func WithVersion(version string) Option {
	return func(s *Server) { s.version = version }
}

type Server struct {
	logger     *zap.Logger
	router     *mux.Router
	httpServer *http.Server

	checks   map[string]HealthCheck
	holds    HoldManager
	history  audit.History
	policies retention.Source

	version   string
	startTime time.Time
}

func NewServer(listen string, logger *zap.Logger, opts ...Option) *Server {
	s := &Server{
		logger:    logger,
		router:    mux.NewRouter(),
		checks:    make(map[string]HealthCheck),
		version:   "dev",
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         listen,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	s.router.HandleFunc("/version", s.handleVersion).Methods("GET")

	v1 := s.router.PathPrefix("/api/v1").Subrouter()
	if s.holds != nil {
		v1.HandleFunc("/holds", s.handleListHolds).Methods("GET")
		v1.HandleFunc("/holds", s.handleCreateHold).Methods("POST")
		v1.HandleFunc("/holds/{id}", s.handleReleaseHold).Methods("DELETE")
	}
	if s.policies != nil {
		v1.HandleFunc("/policies", s.handleListPolicies).Methods("GET")
	}
	if s.history != nil {
		v1.HandleFunc("/history", s.handleHistory).Methods("GET")
	}

	s.router.Use(s.loggingMiddleware)
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make(map[string]string, len(names))
		healthy = true
	)
	for _, name := range names {
		wg.Add(1)
		go func(name string, check HealthCheck) {
			defer wg.Done()
			status := "ok"
			if err := check(ctx); err != nil {
				status = err.Error()
			}
			mu.Lock()
			results[name] = status
			if status != "ok" {
				healthy = false
			}
			mu.Unlock()
		}(name, s.checks[name])
	}
	wg.Wait()

	code := http.StatusOK
	status := "healthy"
	if !healthy {
		code = http.StatusServiceUnavailable
		status = "unhealthy"
	}

	writeJSON(w, code, map[string]interface{}{
		"status": status,
		"checks": results,
		"uptime": time.Since(s.startTime).Seconds(),
	})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"version": s.version,
		"go":      runtime.Version(),
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		next.ServeHTTP(w, r)

		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("latency", time.Since(start)),
		)
	})
}

// Start serves until Shutdown. http.ErrServerClosed is returned after a
// clean shutdown.
func (s *Server) Start() error {
	s.logger.Info("starting http server", zap.String("addr", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
