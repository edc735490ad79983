// Package metrics emits operational telemetry to AWS CloudWatch.
// Emission is fire-and-forget: failures are logged, never propagated.
package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"croplens/internal/types"
)

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// Recorder is the telemetry surface consumed by services and middleware.
type Recorder interface {
	// RecordAssessment emits a completion count plus end-to-end latency,
	// dimensioned by risk level and crop.
	RecordAssessment(ctx context.Context, riskLevel types.RiskLevel, crop string, duration time.Duration)

	// RecordDetectorLatency tracks the upstream detection model round-trip.
	RecordDetectorLatency(ctx context.Context, duration time.Duration)

	// RecordExternalFailure counts an upstream provider failure.
	RecordExternalFailure(ctx context.Context, provider string)

	// RecordAdviceFallback counts an advice request served below the
	// requested tier (generated instead of curated, or generic fallback).
	RecordAdviceFallback(ctx context.Context, tier string)

	// RecordAPILatency tracks request handling time per endpoint.
	RecordAPILatency(ctx context.Context, endpoint string, duration time.Duration)
}

// CloudWatchRecorder implements Recorder against AWS CloudWatch.
type CloudWatchRecorder struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

// NewCloudWatchRecorder creates a Recorder publishing to the CropLens namespace.
func NewCloudWatchRecorder(client CloudWatchClient, logger *slog.Logger) *CloudWatchRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatchRecorder{
		client:    client,
		namespace: types.MetricNamespace,
		logger:    logger,
	}
}

func (m *CloudWatchRecorder) RecordAssessment(ctx context.Context, riskLevel types.RiskLevel, crop string, duration time.Duration) {
	if crop == "" {
		crop = "unknown"
	}
	dims := []cwtypes.Dimension{
		{
			Name:  aws.String(types.DimRiskLevel),
			Value: aws.String(string(riskLevel)),
		},
		{
			Name:  aws.String(types.DimCrop),
			Value: aws.String(crop),
		},
	}

	m.put(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(types.MetricAssessmentCompleted),
				Value:      aws.Float64(1),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: dims,
			},
			{
				MetricName: aws.String(types.MetricAssessmentLatency),
				Value:      aws.Float64(float64(duration.Milliseconds())),
				Unit:       cwtypes.StandardUnitMilliseconds,
				Dimensions: dims,
			},
		},
	}, "assessment")
}

func (m *CloudWatchRecorder) RecordDetectorLatency(ctx context.Context, duration time.Duration) {
	m.put(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(types.MetricDetectorLatency),
				Value:      aws.Float64(float64(duration.Milliseconds())),
				Unit:       cwtypes.StandardUnitMilliseconds,
			},
		},
	}, "detector latency")
}

func (m *CloudWatchRecorder) RecordExternalFailure(ctx context.Context, provider string) {
	m.put(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(types.MetricExternalAPIFailure),
				Value:      aws.Float64(1),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{
					{
						Name:  aws.String(types.DimProvider),
						Value: aws.String(provider),
					},
				},
			},
		},
	}, "external failure")
}

func (m *CloudWatchRecorder) RecordAdviceFallback(ctx context.Context, tier string) {
	m.put(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(types.MetricAdviceFallback),
				Value:      aws.Float64(1),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{
					{
						Name:  aws.String(types.DimTier),
						Value: aws.String(tier),
					},
				},
			},
		},
	}, "advice fallback")
}

func (m *CloudWatchRecorder) RecordAPILatency(ctx context.Context, endpoint string, duration time.Duration) {
	m.put(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(types.MetricAPILatency),
				Value:      aws.Float64(float64(duration.Milliseconds())),
				Unit:       cwtypes.StandardUnitMilliseconds,
				Dimensions: []cwtypes.Dimension{
					{
						Name:  aws.String(types.DimEndpoint),
						Value: aws.String(endpoint),
					},
				},
			},
		},
	}, "api latency")
}

func (m *CloudWatchRecorder) put(ctx context.Context, input *cloudwatch.PutMetricDataInput, kind string) {
	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.ErrorContext(ctx, "failed to record metric",
			"error", err.Error(),
			"metric", kind,
		)
	}
}

// NoopRecorder discards all metrics. Used in local and test environments
// where no CloudWatch client is configured.
type NoopRecorder struct{}

func (NoopRecorder) RecordAssessment(context.Context, types.RiskLevel, string, time.Duration) {}
func (NoopRecorder) RecordDetectorLatency(context.Context, time.Duration)                    {}
func (NoopRecorder) RecordExternalFailure(context.Context, string)                           {}
func (NoopRecorder) RecordAdviceFallback(context.Context, string)                            {}
func (NoopRecorder) RecordAPILatency(context.Context, string, time.Duration)                 {}

var (
	_ Recorder = (*CloudWatchRecorder)(nil)
	_ Recorder = NoopRecorder{}
)
