package types

import (
	"context"
	"time"
)

// Validator is implemented by entities to self-validate.
type Validator interface {
	Validate() error
}

// RateLimitInfo contains the current state of a rate limit.
type RateLimitInfo struct {
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RateLimiter provides rate limiting for API requests.
type RateLimiter interface {
	// Allow checks if the actor can perform the action.
	Allow(ctx context.Context, actorID string, action string) (RateLimitInfo, bool, error)
}

// Detector is the consumed contract for the external detection model.
// Implementations must tolerate an empty result; no ordering is assumed.
type Detector interface {
	Detect(ctx context.Context, imageRef string) ([]Detection, error)
}

// SpeciesIdentifier is the consumed contract for plant identification.
// Its result only decorates a report; it never affects scoring.
type SpeciesIdentifier interface {
	Identify(ctx context.Context, imageRef string) (*SpeciesResult, error)
}

// AdviceGenerator produces free-text guidance for a disease name.
// Used by the advice resolution chain when the local knowledge base misses.
type AdviceGenerator interface {
	Generate(ctx context.Context, diseaseName string) (string, error)
}

// EventPublisher publishes assessment lifecycle events for downstream
// consumers. Implementations must be safe for concurrent use.
type EventPublisher interface {
	PublishAssessmentCompleted(ctx context.Context, event AssessmentEvent) error
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the real system time (always UTC).
type RealClock struct{}

// Now returns the current time in UTC.
func (RealClock) Now() time.Time { return time.Now().UTC() }

// Logger defines the structured logging interface used throughout the service.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	With(args ...any) Logger
}
