package types

// AssessmentMessage is the SQS payload published after an assessment
// completes. Downstream analytics consumers read this envelope; JSON tags
// use snake_case to match the consumer-side schema.
type AssessmentMessage struct {
	// Core Identity
	AssessmentID string `json:"assessment_id"`

	// Routing & Logic
	EventType AssessmentEventType `json:"event_type"`
	RiskLevel RiskLevel           `json:"risk_level"`

	// Retry State: Carries retry count across the SQS Publish-Subscribe cycle.
	// Incremented by consumers on transient failures before re-publishing.
	RetryCount int `json:"retry_count"`

	// Observability
	TraceID string `json:"trace_id"`

	// Event body consumed for analytics aggregation.
	Event AssessmentEvent `json:"event"`
}
