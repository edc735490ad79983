package core

import (
	"context"

	"croplens/internal/types"
)

// Authenticator resolves a raw API key into an authenticated actor.
// Implementations return an AppError with an auth_* code on failure.
type Authenticator interface {
	Authenticate(ctx context.Context, rawKey string) (types.Actor, error)
}

// HealthProbe checks the availability of a single dependency. Probes run
// concurrently during health checks and must respect context cancellation.
type HealthProbe struct {
	Name  string
	Check func(ctx context.Context) error
}
