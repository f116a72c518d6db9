// Package server provides the main HTTP server for SchoolGate.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/schoolgate/schoolgate/internal/version"
	"github.com/schoolgate/schoolgate/pkg/module"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"
)

// ModuleSource provides the server with module metadata and routes.
// Defined here (consumer-side) rather than importing the concrete registry.
type ModuleSource interface {
	AllRoutes() map[string][]module.Route
	All() []module.Module
}

// ReadinessChecker verifies that the server is ready to serve traffic.
// Returns nil if ready, an error describing why not otherwise.
type ReadinessChecker func(ctx context.Context) error

// Server is the main SchoolGate HTTP server.
type Server struct {
	httpServer *http.Server
	modules    ModuleSource
	logger     *zap.Logger
	mux        *http.ServeMux
	ready      ReadinessChecker
}

// New creates a new Server with middleware and routes. authMW is the
// JWT middleware from the auth module; pass nil to run without
// authentication. When devMode is true, Swagger UI is served at
// /swagger/.
func New(addr string, modules ModuleSource, logger *zap.Logger, ready ReadinessChecker, authMW Middleware, devMode bool) *Server {
	mux := http.NewServeMux()

	s := &Server{
		modules: modules,
		logger:  logger,
		mux:     mux,
		ready:   ready,
	}

	s.registerRoutes()
	s.mountModuleRoutes()

	if devMode {
		mux.Handle("GET /swagger/", httpSwagger.Handler(
			httpSwagger.URL("/swagger/doc.json"),
		))
		logger.Info("swagger UI enabled (dev_mode)", zap.String("path", "/swagger/"))
	}

	// Middleware chain: outermost listed first.
	middlewares := []Middleware{
		RecoveryMiddleware(logger),
		RequestIDMiddleware,
		LoggingMiddleware(logger, []string{"/healthz", "/readyz", "/metrics"}),
		SecurityHeadersMiddleware,
		VersionHeaderMiddleware,
		RateLimitMiddleware(100, 200, []string{"/healthz", "/readyz", "/metrics"}),
	}
	if authMW != nil {
		middlewares = append(middlewares, authMW)
	}

	handler := Chain(mux, middlewares...)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// registerRoutes sets up all core routes.
func (s *Server) registerRoutes() {
	// Unversioned operational endpoints.
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.HandleFunc("GET /readyz", s.handleReadyz)
	s.mux.Handle("GET /metrics", promhttp.Handler())

	// Versioned API endpoints.
	s.mux.HandleFunc("GET /api/v1/health", s.handleHealth)
	s.mux.HandleFunc("GET /api/v1/modules", s.handleModules)
}

// mountModuleRoutes registers all module routes under /api/v1/{module}.
func (s *Server) mountModuleRoutes() {
	for name, routes := range s.modules.AllRoutes() {
		for _, route := range routes {
			pattern := fmt.Sprintf("%s /api/v1/%s%s", route.Method, name, route.Path)
			s.mux.HandleFunc(pattern, route.Handler)
			s.logger.Debug("mounted route",
				zap.String("module", name),
				zap.String("pattern", pattern),
			)
		}
	}
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// handleHealthz is a liveness probe -- returns 200 if the process is running.
func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "alive"})
}

// handleReadyz checks readiness -- returns 200 if the server can serve traffic.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
	}

	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
}

// HealthResponse is the response for GET /health.
type HealthResponse struct {
	Status  string            `json:"status" example:"ok"`
	Service string            `json:"service" example:"schoolgate"`
	Version map[string]string `json:"version"`
}

// ModuleResponse describes a registered module and its health.
type ModuleResponse struct {
	Name        string `json:"name" example:"devices"`
	Version     string `json:"version" example:"1.0.0"`
	Description string `json:"description" example:"External device trust lifecycle"`
	Health      string `json:"health,omitempty" example:"healthy"`
}

// handleHealth returns detailed health information (versioned API endpoint).
//
//	@Summary		Health check
//	@Description	Returns service health status with version information.
//	@Tags			system
//	@Produce		json
//	@Success		200	{object}	HealthResponse
//	@Router			/health [get]
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(HealthResponse{
		Status:  "ok",
		Service: "schoolgate",
		Version: version.Map(),
	})
}

// handleModules returns the list of registered modules with health state.
//
//	@Summary		List modules
//	@Description	Returns all registered modules with metadata and health.
//	@Tags			system
//	@Produce		json
//	@Success		200	{array}	ModuleResponse
//	@Router			/modules [get]
func (s *Server) handleModules(w http.ResponseWriter, r *http.Request) {
	mods := s.modules.All()
	info := make([]ModuleResponse, 0, len(mods))
	for _, m := range mods {
		mi := m.Info()
		resp := ModuleResponse{
			Name:        mi.Name,
			Version:     mi.Version,
			Description: mi.Description,
		}
		if hc, ok := m.(module.HealthChecker); ok {
			resp.Health = hc.Health(r.Context()).Status
		}
		info = append(info, resp)
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(info)
}
