// Package queue provides the SQS-based event producer that notifies
// downstream consumers when an assessment completes.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"

	"croplens/internal/types"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// Publisher implements types.EventPublisher over SQS. When the queue URL is
// empty the publisher is disabled: PublishAssessmentCompleted logs at debug
// level and returns nil, so deployments without a queue run unchanged.
type Publisher struct {
	client   SQSSender
	queueURL string
	logger   *slog.Logger
}

// NewPublisher creates a Publisher with the given SQS client and queue URL.
func NewPublisher(client SQSSender, queueURL string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		client:   client,
		queueURL: queueURL,
		logger:   logger,
	}
}

// Enabled reports whether the publisher is configured with a queue.
func (p *Publisher) Enabled() bool {
	return p.queueURL != "" && p.client != nil
}

// PublishAssessmentCompleted serializes the event into an AssessmentMessage
// envelope and dispatches it to the configured SQS queue.
//
// Publishing is best-effort from the caller's perspective: the assessment is
// already persisted by the time this runs, and callers log failures without
// failing the request.
func (p *Publisher) PublishAssessmentCompleted(ctx context.Context, event types.AssessmentEvent) error {
	if !p.Enabled() {
		p.logger.DebugContext(ctx, "event publishing disabled, dropping assessment event",
			"assessment_id", event.AssessmentID,
		)
		return nil
	}

	msg := types.AssessmentMessage{
		AssessmentID: event.AssessmentID,
		EventType:    types.EventAssessmentCompleted,
		RiskLevel:    event.RiskLevel,
		TraceID:      traceIDFromContext(ctx),
		Event:        event,
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("queue: failed to marshal AssessmentMessage: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"event_type": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(types.EventAssessmentCompleted)),
			},
			"risk_level": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(event.RiskLevel)),
			},
		},
	}

	if _, err := p.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("queue: failed to send AssessmentMessage to %s: %w", p.queueURL, err)
	}

	p.logger.InfoContext(ctx, "assessment event published",
		"queue_url", p.queueURL,
		"assessment_id", event.AssessmentID,
		"risk_level", string(event.RiskLevel),
		"trace_id", msg.TraceID,
	)

	return nil
}

// traceIDFromContext resolves the request ID for cross-system correlation,
// minting a fresh ID when the context carries none (e.g. background jobs).
func traceIDFromContext(ctx context.Context) string {
	if id := types.GetRequestID(ctx); id != "" {
		return id
	}
	return uuid.New().String()
}

// Compile-time interface compliance check.
var _ types.EventPublisher = (*Publisher)(nil)
