package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// healthCheckTimeout bounds the whole health check. Probes still running at
// the deadline are reported as unhealthy.
const healthCheckTimeout = 2 * time.Second

type probeResult struct {
	name string
	err  error
}

// HandleHealth runs all registered probes concurrently and reports aggregate
// status: 200 when every dependency responds, 503 otherwise. The body lists
// per-component status so operators can see which dependency is down.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	results := make(chan probeResult, len(s.HealthProbes))
	for _, probe := range s.HealthProbes {
		go func(p HealthProbe) {
			defer func() {
				if rec := recover(); rec != nil {
					results <- probeResult{name: p.Name, err: fmt.Errorf("probe panicked: %v", rec)}
				}
			}()
			results <- probeResult{name: p.Name, err: p.Check(ctx)}
		}(probe)
	}

	components := make(map[string]string, len(s.HealthProbes))
	healthy := true

	remaining := len(s.HealthProbes)
	for remaining > 0 {
		select {
		case res := <-results:
			remaining--
			if res.err != nil {
				healthy = false
				components[res.name] = "unhealthy"
				s.Logger.WarnContext(r.Context(), "health probe failed",
					slog.String("component", res.name),
					slog.String("error", res.err.Error()),
				)
			} else {
				components[res.name] = "healthy"
			}
		case <-ctx.Done():
			// Probes that never reported are marked unhealthy.
			healthy = false
			for _, probe := range s.HealthProbes {
				if _, reported := components[probe.Name]; !reported {
					components[probe.Name] = "timeout"
				}
			}
			remaining = 0
		}
	}

	status := http.StatusOK
	overall := "healthy"
	if !healthy {
		status = http.StatusServiceUnavailable
		overall = "unhealthy"
	}

	s.JSON(w, r, status, map[string]any{
		"status":     overall,
		"components": components,
		"version":    s.Config.Build.Version,
	}, nil)
}
