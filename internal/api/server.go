package api

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/terra-clan/planner-kpi/internal/config"
	"github.com/terra-clan/planner-kpi/internal/dashboard"
	"github.com/terra-clan/planner-kpi/internal/plans"
	"github.com/terra-clan/planner-kpi/internal/storage"
)

// Server represents the HTTP API server
type Server struct {
	config         config.ServerConfig
	router         *chi.Mux
	dashboard      dashboard.Manager
	registry       *plans.Registry
	repo           storage.Repository
	authMiddleware *AuthMiddleware

	liveMu      sync.Mutex
	liveClients map[*liveClient]struct{}
}

// NewServer creates a new API server
func NewServer(
	cfg config.ServerConfig,
	manager dashboard.Manager,
	registry *plans.Registry,
	repo storage.Repository,
) *Server {
	s := &Server{
		config:         cfg,
		dashboard:      manager,
		registry:       registry,
		repo:           repo,
		authMiddleware: NewAuthMiddleware(manager),
		liveClients:    make(map[*liveClient]struct{}),
	}
	s.setupRouter()
	return s
}

// Router returns the configured router
func (s *Server) Router() http.Handler {
	return s.router
}

// setupRouter configures all routes and middleware
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check (outside versioned API - public)
	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)

	// Live KPI feed (session token passed as query parameter)
	r.Get("/ws/kpi", s.handleLiveKPI)

	r.Route("/api/v1", func(r chi.Router) {
		// Login exchanges a delegated Graph token for a dashboard session
		r.Post("/session", s.handleLogin)

		// Everything below requires a valid session token
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware.Authenticate)

			r.Get("/session", s.handleGetSession)
			r.Delete("/session", s.handleLogout)

			r.Get("/kpi", s.handleKPI)
			r.Get("/tasks", s.handleTasks)
			r.Get("/export", s.handleExport)
			r.Get("/plans", s.handleListPlans)

			r.Post("/hierarchy/import", s.handleImportHierarchy)
		})
	})

	s.router = r
}

// loggingMiddleware logs HTTP requests using slog
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			slog.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
				"remote_addr", r.RemoteAddr,
			)
		}()

		next.ServeHTTP(ww, r)
	})
}
