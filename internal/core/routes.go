package core

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"croplens/internal/types"
)

// defaultRequestTimeout bounds request processing when the config leaves
// REQUEST_TIMEOUT unset. Kept just under common 30s load balancer limits so
// the client receives a response rather than a dropped connection.
const defaultRequestTimeout = 29 * time.Second

// MountRoutes attaches the global middleware chain and all route groups to
// the server's router. It must be called exactly once, after the composition
// root has assigned the server's dependencies.
func (s *Server) MountRoutes() {
	s.registerGlobalMiddleware()

	s.router.Route("/v1", func(r chi.Router) {
		for _, register := range s.V1Routes {
			register(r)
		}
	})

	s.router.Get("/health", s.HandleHealth)
}

// registerGlobalMiddleware wires the middleware chain in its required order:
//
//  1. Recoverer       - outermost, catches panics from everything below
//  2. ContextTimeout  - bounds total request processing time
//  3. RequestID       - reuses or generates the correlation ID
//  4. SecurityHeaders - static response headers
//  5. RequestLogger   - logs with the request ID from (3)
//  6. CORS            - handles preflight before auth can reject it
//  7. Metrics         - observes final status codes and latency
//  8. Auth            - resolves the API key into an actor
//  9. RateLimit       - keyed by the actor from (8)
func (s *Server) registerGlobalMiddleware() {
	timeout := s.Config.Server.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	s.router.Use(s.Recoverer)
	s.router.Use(ContextTimeoutMiddleware(timeout))
	s.router.Use(RequestIDMiddleware)
	s.router.Use(SecurityHeadersMiddleware)
	s.router.Use(s.RequestLogger)
	s.router.Use(NewCORSMiddleware(s.Config.Security.CorsAllowedOrigins))
	s.router.Use(s.MetricsMiddleware)
	s.router.Use(s.AuthMiddleware)
	s.router.Use(s.RateLimitMiddleware)
}

// ContextTimeoutMiddleware enforces an upper bound on request processing.
// Handlers observe the deadline through the request context.
func ContextTimeoutMiddleware(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestIDMiddleware attaches a correlation ID to the request context and
// echoes it in the X-Request-Id response header. An inbound X-Request-Id is
// reused so IDs survive proxy hops.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-Id")
		if requestID == "" {
			requestID = generateRequestID()
		}

		ctx := types.WithRequestID(r.Context(), requestID)
		w.Header().Set("X-Request-Id", requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// generateRequestID returns a 32-character hex ID from 16 random bytes.
func generateRequestID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		// rand.Read only fails when the OS entropy source is broken; a
		// constant beats crashing the request path.
		return "00000000000000000000000000000000"
	}
	return hex.EncodeToString(buf)
}
