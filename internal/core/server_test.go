package core

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"croplens/internal/config"
)

// newTestConfig returns a minimal valid config for server tests.
func newTestConfig() *config.Config {
	return &config.Config{
		Environment: "local",
		Server: config.ServerConfig{
			Port:           "8080",
			RequestTimeout: 5 * time.Second,
		},
		Security: config.SecurityConfig{
			CorsAllowedOrigins: []string{"*"},
		},
		Build: config.BuildInfo{Version: "test"},
	}
}

// newTestServer builds a Server with a discard logger and no optional deps.
func newTestServer(t *testing.T) *Server {
	t.Helper()

	s, err := NewServer(newTestConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewServer returned error: %v", err)
	}
	return s
}

func TestNewServer_RequiresConfig(t *testing.T) {
	_, err := NewServer(nil, slog.Default())
	if err == nil {
		t.Fatal("expected error for nil config, got nil")
	}
}

func TestNewServer_RequiresLogger(t *testing.T) {
	_, err := NewServer(newTestConfig(), nil)
	if err == nil {
		t.Fatal("expected error for nil logger, got nil")
	}
}

func TestNewServer_Defaults(t *testing.T) {
	s := newTestServer(t)

	if s.Validator == nil {
		t.Error("expected a default Validator")
	}
	if s.Metrics == nil {
		t.Error("expected a default no-op metrics recorder")
	}
	if s.Handler() == nil {
		t.Error("expected a router to be allocated")
	}
}

func TestShutdown_RunsCleanupsInReverseOrder(t *testing.T) {
	s := newTestServer(t)

	var order []int
	s.OnShutdown(func() { order = append(order, 1) })
	s.OnShutdown(func() { order = append(order, 2) })
	s.OnShutdown(func() { order = append(order, 3) })

	s.Shutdown(context.Background())

	if len(order) != 3 {
		t.Fatalf("expected 3 cleanups to run, got %d", len(order))
	}
	if order[0] != 3 || order[1] != 2 || order[2] != 1 {
		t.Errorf("cleanups ran in order %v, want [3 2 1]", order)
	}
}

func TestShutdown_NoCleanups(t *testing.T) {
	s := newTestServer(t)
	// Must not panic with nothing registered.
	s.Shutdown(context.Background())
}
