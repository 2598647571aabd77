// Package api provides the HTTP API for circuitd.
package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/circuitd/circuitd/internal/api/handler"
	"github.com/circuitd/circuitd/internal/api/middleware"
	"github.com/circuitd/circuitd/internal/auth"
	"github.com/circuitd/circuitd/internal/circuit"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version      string
	BuildTime    string
	Logger       zerolog.Logger
	ServiceName  string
	StoreName    string
	Metrics      *middleware.Metrics
	TokenService *auth.TokenService
	Breaker      *circuit.Breaker
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Set default service name if not provided
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "circuitd-api"
	}
	storeName := cfg.StoreName
	if storeName == "" {
		storeName = "memory"
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)            // Generate/propagate request ID first
	r.Use(middleware.Tracing(serviceName)) // Distributed tracing
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware()) // HTTP metrics
	}
	r.Use(middleware.Logger(cfg.Logger))   // Structured logging
	r.Use(middleware.Recovery(cfg.Logger)) // Panic recovery
	r.Use(chimiddleware.RealIP)            // Real IP extraction
	r.Use(middleware.SecurityHeaders)      // Security headers (HSTS, CSP, etc.)
	r.Use(middleware.RequireTLS)           // TLS enforcement (enabled via REQUIRE_TLS=true)
	r.Use(middleware.ContentTypeJSON)      // JSON content type

	// Initialize handlers
	opsHandler := handler.NewOpsHandler(cfg.Version, cfg.BuildTime, cfg.Breaker.Store(), storeName)
	circuitHandler := handler.NewCircuitHandler(cfg.Breaker)
	adminHandler := handler.NewAdminHandler(cfg.Breaker, cfg.Logger)

	// Create auth middleware
	authMiddleware := middleware.Auth(cfg.TokenService)

	// Create rate limit middleware for different endpoint categories
	reportRateLimit := middleware.RateLimitByIP(middleware.ReportRateLimit)     // 1000 req/min
	standardRateLimit := middleware.RateLimitByIP(middleware.StandardRateLimit) // 100 req/min

	// API v1 routes
	r.Route("/v1", func(r chi.Router) {
		// Ops endpoints (public)
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
		})

		// Circuit read and reporting endpoints (public) - these are
		// called by instrumented services, not operators
		r.Route("/circuits", func(r chi.Router) {
			r.With(standardRateLimit).Get("/", circuitHandler.ListCircuits)
			r.Route("/{name}", func(r chi.Router) {
				r.With(standardRateLimit).Get("/", circuitHandler.GetCircuit)
				r.With(standardRateLimit).Get("/state", circuitHandler.GetState)
				r.With(standardRateLimit).Get("/events", circuitHandler.ListEvents)
				r.With(reportRateLimit).Post("/success", circuitHandler.ReportSuccess)
				r.With(reportRateLimit).Post("/failure", circuitHandler.ReportFailure)
			})
		})

		// Admin endpoints (authenticated) - manual circuit control
		r.Route("/admin", func(r chi.Router) {
			r.Use(authMiddleware)
			r.Use(middleware.RateLimitByOperator(middleware.AdminRateLimit)) // 30 req/min per operator

			r.Route("/circuits/{name}", func(r chi.Router) {
				r.Post("/reset", adminHandler.ResetCircuit)
				r.Post("/state", adminHandler.ForceState)
			})

			r.Route("/config", func(r chi.Router) {
				r.Get("/", adminHandler.GetDefaults)
				r.Put("/", adminHandler.UpdateDefaults)
			})
		})
	})

	return r
}
