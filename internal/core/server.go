// Package core provides the HTTP chassis for the CropLens API: server
// construction, routing, the middleware chain, request validation, and the
// response envelope shared by all handlers.
package core

import (
	"context"
	"errors"
	"log/slog"

	"github.com/go-chi/chi/v5"

	"croplens/internal/config"
	"croplens/internal/metrics"
	"croplens/internal/types"
)

// Server aggregates the dependencies of the HTTP API. Fields are assigned by
// the composition root (cmd/api) before MountRoutes is called; optional
// fields left nil disable the corresponding middleware.
type Server struct {
	Config        *config.Config
	Logger        *slog.Logger
	Validator     *Validator
	Metrics       metrics.Recorder
	Authenticator Authenticator
	RateLimiter   types.RateLimiter

	// HealthProbes are executed concurrently by GET /health.
	HealthProbes []HealthProbe

	// V1Routes register handler groups under the /v1 prefix. Populating this
	// slice instead of importing handler packages here keeps core free of
	// dependency cycles with the handlers that build on it.
	V1Routes []func(chi.Router)

	router   *chi.Mux
	cleanups []func()
}

// NewServer constructs a Server with the mandatory dependencies. Routes are
// not mounted; the caller assigns optional fields and then calls MountRoutes.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("core: config is required")
	}
	if logger == nil {
		return nil, errors.New("core: logger is required")
	}

	return &Server{
		Config:    cfg,
		Logger:    logger,
		Validator: NewValidator(logger),
		Metrics:   metrics.NoopRecorder{},
		router:    chi.NewRouter(),
	}, nil
}

// Handler returns the root http.Handler. MountRoutes must have been called.
func (s *Server) Handler() *chi.Mux {
	return s.router
}

// OnShutdown registers a cleanup function to run during Shutdown. Cleanups
// run in reverse registration order.
func (s *Server) OnShutdown(fn func()) {
	s.cleanups = append(s.cleanups, fn)
}

// Shutdown releases resources registered via OnShutdown. It is called after
// the HTTP listener has drained in-flight requests.
func (s *Server) Shutdown(ctx context.Context) {
	s.Logger.InfoContext(ctx, "shutting down server")
	for i := len(s.cleanups) - 1; i >= 0; i-- {
		s.cleanups[i]()
	}
}
