package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"croplens/internal/types"
)

// --- Mock SQS Client ---

// mockSQSSender captures SendMessage calls for test assertions.
type mockSQSSender struct {
	// calls records every SendMessageInput passed to SendMessage.
	calls []*sqs.SendMessageInput
	// err is returned by SendMessage if non-nil (simulates SQS failures).
	err error
}

func (m *mockSQSSender) SendMessage(_ context.Context, params *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	m.calls = append(m.calls, params)
	if m.err != nil {
		return nil, m.err
	}
	return &sqs.SendMessageOutput{}, nil
}

// --- Test Helpers ---

const testQueueURL = "https://sqs.us-east-1.amazonaws.com/123456789/assessment-events"

func newTestPublisher(mock *mockSQSSender) *Publisher {
	return NewPublisher(mock, testQueueURL, slog.Default())
}

func sampleEvent() types.AssessmentEvent {
	return types.AssessmentEvent{
		AssessmentID:  "asmt_123",
		Crop:          "tomato",
		OverallHealth: 72.5,
		RiskLevel:     types.RiskMedium,
		IssueCount:    2,
		CreatedAt:     time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
	}
}

// --- Tests ---

func TestPublishAssessmentCompleted_SendsToConfiguredQueue(t *testing.T) {
	mock := &mockSQSSender{}
	pub := newTestPublisher(mock)

	err := pub.PublishAssessmentCompleted(context.Background(), sampleEvent())
	if err != nil {
		t.Fatalf("PublishAssessmentCompleted returned unexpected error: %v", err)
	}

	if len(mock.calls) != 1 {
		t.Fatalf("expected 1 SQS call, got %d", len(mock.calls))
	}
	if *mock.calls[0].QueueUrl != testQueueURL {
		t.Errorf("expected queue URL %q, got %q", testQueueURL, *mock.calls[0].QueueUrl)
	}
}

func TestPublishAssessmentCompleted_EnvelopeFields(t *testing.T) {
	mock := &mockSQSSender{}
	pub := newTestPublisher(mock)

	event := sampleEvent()
	err := pub.PublishAssessmentCompleted(context.Background(), event)
	if err != nil {
		t.Fatalf("PublishAssessmentCompleted returned unexpected error: %v", err)
	}

	var msg types.AssessmentMessage
	if err := json.Unmarshal([]byte(*mock.calls[0].MessageBody), &msg); err != nil {
		t.Fatalf("failed to unmarshal message body: %v", err)
	}

	if msg.AssessmentID != event.AssessmentID {
		t.Errorf("AssessmentID mismatch: got %q, want %q", msg.AssessmentID, event.AssessmentID)
	}
	if msg.EventType != types.EventAssessmentCompleted {
		t.Errorf("expected event type %q, got %q", types.EventAssessmentCompleted, msg.EventType)
	}
	if msg.RiskLevel != event.RiskLevel {
		t.Errorf("RiskLevel mismatch: got %q, want %q", msg.RiskLevel, event.RiskLevel)
	}
	if msg.RetryCount != 0 {
		t.Errorf("expected RetryCount 0 on first publish, got %d", msg.RetryCount)
	}
	if msg.TraceID == "" {
		t.Error("expected non-empty TraceID")
	}
}

func TestPublishAssessmentCompleted_PreservesEventBody(t *testing.T) {
	mock := &mockSQSSender{}
	pub := newTestPublisher(mock)

	original := sampleEvent()
	err := pub.PublishAssessmentCompleted(context.Background(), original)
	if err != nil {
		t.Fatalf("PublishAssessmentCompleted returned unexpected error: %v", err)
	}

	var msg types.AssessmentMessage
	if err := json.Unmarshal([]byte(*mock.calls[0].MessageBody), &msg); err != nil {
		t.Fatalf("failed to unmarshal message body: %v", err)
	}

	decoded := msg.Event
	if decoded.AssessmentID != original.AssessmentID {
		t.Errorf("AssessmentID mismatch: got %q, want %q", decoded.AssessmentID, original.AssessmentID)
	}
	if decoded.Crop != original.Crop {
		t.Errorf("Crop mismatch: got %q, want %q", decoded.Crop, original.Crop)
	}
	if decoded.OverallHealth != original.OverallHealth {
		t.Errorf("OverallHealth mismatch: got %v, want %v", decoded.OverallHealth, original.OverallHealth)
	}
	if decoded.RiskLevel != original.RiskLevel {
		t.Errorf("RiskLevel mismatch: got %q, want %q", decoded.RiskLevel, original.RiskLevel)
	}
	if decoded.IssueCount != original.IssueCount {
		t.Errorf("IssueCount mismatch: got %d, want %d", decoded.IssueCount, original.IssueCount)
	}
	if !decoded.CreatedAt.Equal(original.CreatedAt) {
		t.Errorf("CreatedAt mismatch: got %v, want %v", decoded.CreatedAt, original.CreatedAt)
	}
}

func TestPublishAssessmentCompleted_SetsMessageAttributes(t *testing.T) {
	mock := &mockSQSSender{}
	pub := newTestPublisher(mock)

	err := pub.PublishAssessmentCompleted(context.Background(), sampleEvent())
	if err != nil {
		t.Fatalf("PublishAssessmentCompleted returned unexpected error: %v", err)
	}

	attrs := mock.calls[0].MessageAttributes

	eventType, ok := attrs["event_type"]
	if !ok {
		t.Fatal("expected 'event_type' message attribute to be set")
	}
	if *eventType.StringValue != string(types.EventAssessmentCompleted) {
		t.Errorf("expected event_type attribute %q, got %q",
			types.EventAssessmentCompleted, *eventType.StringValue)
	}
	if *eventType.DataType != "String" {
		t.Errorf("expected DataType 'String', got %q", *eventType.DataType)
	}

	riskLevel, ok := attrs["risk_level"]
	if !ok {
		t.Fatal("expected 'risk_level' message attribute to be set")
	}
	if *riskLevel.StringValue != string(types.RiskMedium) {
		t.Errorf("expected risk_level attribute %q, got %q", types.RiskMedium, *riskLevel.StringValue)
	}
}

func TestPublishAssessmentCompleted_PropagatesRequestIDAsTraceID(t *testing.T) {
	mock := &mockSQSSender{}
	pub := newTestPublisher(mock)

	ctx := types.WithRequestID(context.Background(), "req_trace_42")
	err := pub.PublishAssessmentCompleted(ctx, sampleEvent())
	if err != nil {
		t.Fatalf("PublishAssessmentCompleted returned unexpected error: %v", err)
	}

	var msg types.AssessmentMessage
	if err := json.Unmarshal([]byte(*mock.calls[0].MessageBody), &msg); err != nil {
		t.Fatalf("failed to unmarshal message body: %v", err)
	}

	if msg.TraceID != "req_trace_42" {
		t.Errorf("expected TraceID %q, got %q", "req_trace_42", msg.TraceID)
	}
}

func TestPublishAssessmentCompleted_DisabledWithoutQueueURL(t *testing.T) {
	mock := &mockSQSSender{}
	pub := NewPublisher(mock, "", slog.Default())

	if pub.Enabled() {
		t.Error("publisher with empty queue URL should report disabled")
	}

	err := pub.PublishAssessmentCompleted(context.Background(), sampleEvent())
	if err != nil {
		t.Fatalf("disabled publisher returned unexpected error: %v", err)
	}
	if len(mock.calls) != 0 {
		t.Errorf("disabled publisher should not call SQS, got %d calls", len(mock.calls))
	}
}

func TestPublishAssessmentCompleted_SQSError(t *testing.T) {
	sqsErr := fmt.Errorf("access denied")
	mock := &mockSQSSender{err: sqsErr}
	pub := newTestPublisher(mock)

	err := pub.PublishAssessmentCompleted(context.Background(), sampleEvent())
	if err == nil {
		t.Fatal("expected error from PublishAssessmentCompleted, got nil")
	}
	if !strings.Contains(err.Error(), "failed to send AssessmentMessage") {
		t.Errorf("expected error message to contain 'failed to send AssessmentMessage', got %q", err.Error())
	}
	if !strings.Contains(err.Error(), testQueueURL) {
		t.Errorf("expected error message to contain queue URL %q, got %q", testQueueURL, err.Error())
	}
}
