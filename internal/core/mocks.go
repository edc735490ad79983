package core

import (
	"context"
	"sync"

	"croplens/internal/types"
)

// MockAuthenticator is a test double for the Authenticator interface.
// By default it returns Actor and Err; set AuthenticateFunc to override
// behavior per call. Calls records every key passed in.
type MockAuthenticator struct {
	Actor types.Actor
	Err   error

	AuthenticateFunc func(ctx context.Context, rawKey string) (types.Actor, error)

	mu    sync.Mutex
	Calls []string
}

// Authenticate implements Authenticator.
func (m *MockAuthenticator) Authenticate(ctx context.Context, rawKey string) (types.Actor, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, rawKey)
	m.mu.Unlock()

	if m.AuthenticateFunc != nil {
		return m.AuthenticateFunc(ctx, rawKey)
	}
	if m.Err != nil {
		return types.Actor{}, m.Err
	}
	return m.Actor, nil
}

// CallCount returns the number of Authenticate invocations.
func (m *MockAuthenticator) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// MockRateLimiter is a test double for types.RateLimiter. By default every
// request is allowed with Info; set AllowFunc to override per call.
type MockRateLimiter struct {
	Info    types.RateLimitInfo
	Allowed bool
	Err     error

	AllowFunc func(ctx context.Context, actorID, action string) (types.RateLimitInfo, bool, error)

	mu    sync.Mutex
	Calls []string
}

// Allow implements types.RateLimiter.
func (m *MockRateLimiter) Allow(ctx context.Context, actorID, action string) (types.RateLimitInfo, bool, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, actorID)
	m.mu.Unlock()

	if m.AllowFunc != nil {
		return m.AllowFunc(ctx, actorID, action)
	}
	return m.Info, m.Allowed, m.Err
}

var (
	_ Authenticator     = (*MockAuthenticator)(nil)
	_ types.RateLimiter = (*MockRateLimiter)(nil)
)
