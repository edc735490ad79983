// Package assessments implements the assessment orchestration service. It
// coordinates the external detector, the scoring engine, optional species
// identification, persistence, and downstream event publication.
package assessments

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"croplens/internal/db"
	"croplens/internal/metrics"
	"croplens/internal/scoring"
	"croplens/internal/types"
)

// Store provides persistence for assessment records.
type Store interface {
	Create(ctx context.Context, a *types.Assessment, rawPayload []byte) error
	GetByID(ctx context.Context, id string) (*types.Assessment, error)
	List(ctx context.Context, params db.ListAssessmentsParams) ([]*types.Assessment, types.PageInfo, error)
}

// Advisor resolves disease guidance for an assessment's findings.
type Advisor interface {
	GetAdvice(ctx context.Context, diseaseLabel string) types.AdviceRecord
}

// CreateInput is the service-level request for a new assessment. Detections
// and ImageRef are alternatives: when Detections is empty the detector is
// invoked against ImageRef; when both are present the caller's detections win
// and the image reference is stored for provenance only.
type CreateInput struct {
	Detections     []types.Detection
	Sensor         *types.SensorReading
	Crop           string
	ImageRef       string
	IncludeSpecies bool
	Source         string
}

// Service defines the assessment orchestration operations.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*types.Assessment, error)
	Get(ctx context.Context, id string) (*types.Assessment, error)
	List(ctx context.Context, params db.ListAssessmentsParams) ([]*types.Assessment, types.PageInfo, error)
	AdviceFor(ctx context.Context, assessmentID string) (types.AdviceRecord, error)
}

type service struct {
	store     Store
	scorer    *scoring.Scorer
	detector  types.Detector
	species   types.SpeciesIdentifier
	advisor   Advisor
	publisher types.EventPublisher
	recorder  metrics.Recorder
	logger    *slog.Logger
	clock     types.Clock
}

// NewService creates the assessment service. Detector, species identifier,
// publisher and recorder may be nil; the corresponding step is skipped.
func NewService(
	store Store,
	scorer *scoring.Scorer,
	detector types.Detector,
	species types.SpeciesIdentifier,
	advisor Advisor,
	publisher types.EventPublisher,
	recorder metrics.Recorder,
	logger *slog.Logger,
	clock types.Clock,
) Service {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = types.RealClock{}
	}
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	return &service{
		store:     store,
		scorer:    scorer,
		detector:  detector,
		species:   species,
		advisor:   advisor,
		publisher: publisher,
		recorder:  recorder,
		logger:    logger,
		clock:     clock,
	}
}

// Create runs the full assessment pipeline:
//  1. Resolve detections (caller-supplied, or fetched from the detector).
//  2. In parallel, optionally identify the plant species. Species failures
//     never fail the request; the result is decorative.
//  3. Score the findings against the crop's range model.
//  4. Persist the record with the raw detector payload archived.
//  5. Publish the completion event and emit metrics (best-effort).
func (s *service) Create(ctx context.Context, input CreateInput) (*types.Assessment, error) {
	if len(input.Detections) == 0 && input.ImageRef == "" {
		return nil, &types.AppError{
			Code:    types.ErrCodeValidationMissingField,
			Message: "either detections or image_ref must be provided",
		}
	}

	start := s.clock.Now()

	detections := input.Detections
	var rawPayload []byte
	var speciesResult *types.SpeciesResult

	g, gCtx := errgroup.WithContext(ctx)

	if len(detections) == 0 {
		if s.detector == nil {
			return nil, &types.AppError{
				Code:    types.ErrCodeUpstreamDetector,
				Message: "no detector configured and no detections supplied",
			}
		}
		g.Go(func() error {
			detStart := time.Now()
			fetched, err := s.detector.Detect(gCtx, input.ImageRef)
			s.recorder.RecordDetectorLatency(gCtx, time.Since(detStart))
			if err != nil {
				s.recorder.RecordExternalFailure(gCtx, "detector")
				return err
			}
			detections = fetched
			// Archived so historical inputs can be re-scored after
			// catalog or scorer changes.
			rawPayload, _ = json.Marshal(fetched)
			return nil
		})
	}

	if input.IncludeSpecies && input.ImageRef != "" && s.species != nil {
		g.Go(func() error {
			result, err := s.species.Identify(gCtx, input.ImageRef)
			if err != nil {
				s.recorder.RecordExternalFailure(gCtx, "species")
				s.logger.WarnContext(gCtx, "species identification failed, continuing without",
					"image_ref", input.ImageRef,
					"error", err,
				)
				return nil
			}
			speciesResult = result
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := s.scorer.CalculateHealthScoreForCrop(detections, input.Sensor, input.Crop)

	assessment := &types.Assessment{
		ID:        uuid.New().String(),
		Crop:      input.Crop,
		ImageRef:  input.ImageRef,
		Result:    result,
		Species:   speciesResult,
		Source:    input.Source,
		CreatedAt: s.clock.Now(),
	}

	if err := s.store.Create(ctx, assessment, rawPayload); err != nil {
		return nil, err
	}

	s.publishCompleted(ctx, assessment)
	s.recorder.RecordAssessment(ctx, result.RiskLevel, input.Crop, time.Since(start))

	s.logger.InfoContext(ctx, "assessment created",
		"assessment_id", assessment.ID,
		"crop", input.Crop,
		"risk_level", string(result.RiskLevel),
		"issue_count", len(result.DetectedIssues),
	)

	return assessment, nil
}

// publishCompleted dispatches the completion event. The assessment is already
// persisted; publish failures are logged and swallowed.
func (s *service) publishCompleted(ctx context.Context, a *types.Assessment) {
	if s.publisher == nil {
		return
	}
	event := types.AssessmentEvent{
		AssessmentID:  a.ID,
		Crop:          a.Crop,
		OverallHealth: a.Result.OverallHealth,
		RiskLevel:     a.Result.RiskLevel,
		IssueCount:    len(a.Result.DetectedIssues),
		CreatedAt:     a.CreatedAt,
	}
	if err := s.publisher.PublishAssessmentCompleted(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish assessment event",
			"assessment_id", a.ID,
			"error", err,
		)
	}
}

// Get fetches a stored assessment by ID.
func (s *service) Get(ctx context.Context, id string) (*types.Assessment, error) {
	return s.store.GetByID(ctx, id)
}

// List returns a cursor-paginated page of assessments, newest first.
func (s *service) List(ctx context.Context, params db.ListAssessmentsParams) ([]*types.Assessment, types.PageInfo, error) {
	return s.store.List(ctx, params)
}

// healthyAdvice is returned when an assessment recorded no disease issues.
var healthyAdvice = types.AdviceRecord{
	DiseaseName:    "healthy",
	Summary:        "No disease issues were detected. Continue regular monitoring, maintain good field hygiene, and keep irrigation consistent.",
	ConfidenceTier: types.TierHigh,
	Source:         types.AdviceSourceLocal,
}

// AdviceFor resolves guidance for the stored assessment's top-ranked issue,
// where rank is the highest weighted impact.
func (s *service) AdviceFor(ctx context.Context, assessmentID string) (types.AdviceRecord, error) {
	assessment, err := s.store.GetByID(ctx, assessmentID)
	if err != nil {
		return types.AdviceRecord{}, err
	}

	top := assessment.Result.TopIssue()
	if top == nil || top.Record.ImpactScore == 0 {
		return healthyAdvice, nil
	}

	record := s.advisor.GetAdvice(ctx, top.Label)
	if record.Source != types.AdviceSourceLocal {
		s.recorder.RecordAdviceFallback(ctx, string(record.Source))
	}
	return record, nil
}
