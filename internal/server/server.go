// Package server provides the HTTP API of the intake service.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/jonathan/hiring-intake/internal/admission"
	"github.com/jonathan/hiring-intake/internal/config"
	"github.com/jonathan/hiring-intake/internal/db"
	"github.com/jonathan/hiring-intake/internal/retention"
	"github.com/jonathan/hiring-intake/internal/server/middleware"
	"github.com/jonathan/hiring-intake/internal/submission"
	"github.com/jonathan/hiring-intake/internal/workflow"
)

// Store is the record store surface the handlers read and write directly.
type Store interface {
	GetApplication(ctx context.Context, id uuid.UUID) (*db.Application, error)
	ListApplications(ctx context.Context, filters db.ApplicationFilters) ([]db.Application, error)
	ListVacancies(ctx context.Context, activeOnly bool) ([]db.Vacancy, error)
	CreateVacancy(ctx context.Context, name string, active bool) (*db.Vacancy, error)
	SetVacancyActive(ctx context.Context, id uuid.UUID, active bool) (*db.Vacancy, error)
}

// pinger is implemented by stores that can report their health.
type pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the services the HTTP layer dispatches to.
type Deps struct {
	Store       Store
	Admission   *admission.Pipeline
	Coordinator *submission.Coordinator
	Workflow    *workflow.Engine
	Purge       *retention.Job
	PurgeSecret *config.PurgeSecret
	JWT         *JWTService
	Registry    *prometheus.Registry
	Logger      *zap.Logger
}

// Config holds server configuration
type Config struct {
	Addr           string
	MaxUploadBytes int64
	StoreTimeout   time.Duration
}

// Server represents the HTTP server
type Server struct {
	httpServer     *http.Server
	router         chi.Router
	store          Store
	admission      *admission.Pipeline
	coordinator    *submission.Coordinator
	workflow       *workflow.Engine
	purge          *retention.Job
	purgeSecret    *config.PurgeSecret
	jwtService     *JWTService
	registry       *prometheus.Registry
	logger         *zap.Logger
	maxUploadBytes int64
	storeTimeout   time.Duration
}

// New creates a new server instance
func New(cfg Config, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		store:          deps.Store,
		admission:      deps.Admission,
		coordinator:    deps.Coordinator,
		workflow:       deps.Workflow,
		purge:          deps.Purge,
		purgeSecret:    deps.PurgeSecret,
		jwtService:     deps.JWT,
		registry:       deps.Registry,
		logger:         logger,
		maxUploadBytes: cfg.MaxUploadBytes,
		storeTimeout:   cfg.StoreTimeout,
	}
	s.router = s.routes()

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(s.withLogging)
	r.Use(s.withCORS)

	r.Get("/health", s.handleHealth)
	if s.registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}

	r.Post("/applications", s.handleSubmitApplication)
	r.Get("/vacancies", s.handleListActiveVacancies)

	r.Route("/admin", func(r chi.Router) {
		// The purge endpoint is guarded by its own shared secret.
		r.Post("/purge", s.handlePurge)

		r.Group(func(r chi.Router) {
			if s.jwtService != nil {
				r.Use(middleware.AuthMiddleware(s.jwtService.AsTokenValidator()))
			} else {
				r.Use(denyAll)
			}

			r.Get("/applications", s.handleListApplications)
			r.Get("/applications/{id}", s.handleGetApplication)
			r.Get("/applications/{id}/history", s.handleApplicationHistory)
			r.Post("/applications/{id}/status", s.handleTransitionStatus)

			r.Get("/vacancies", s.handleListAllVacancies)
			r.Post("/vacancies", s.handleCreateVacancy)
			r.Patch("/vacancies/{id}", s.handleUpdateVacancy)
		})
	})
	return r
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

// denyAll rejects every request; admin routes use it when no token secret is configured.
func denyAll(http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized", "message": "admin access is not configured"})
	})
}

// withCORS adds CORS headers
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Purge-Secret")
		w.Header().Set("Access-Control-Expose-Headers", "X-RateLimit-Limit, X-RateLimit-Remaining, X-RateLimit-Reset, Retry-After")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// withLogging adds request logging
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client", clientIP(r)),
			zap.String("request_id", requestID(r)),
		)
	})
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if p, ok := s.store.(pinger); ok {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			s.logger.Warn("health check failed", zap.Error(err))
			s.jsonResponse(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warn("failed to encode JSON response", zap.Error(err))
	}
}

func requestID(r *http.Request) string {
	return chimw.GetReqID(r.Context())
}

func (s *Server) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.storeTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.storeTimeout)
}
