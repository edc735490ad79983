package external

import (
	"context"
	"fmt"
	"log/slog"

	"croplens/internal/types"
)

// Stub implementations allow the application to boot in local/test mode
// without real ML service credentials. They log all calls and return
// predictable, safe default values.

// StubDetector implements types.Detector by logging calls and returning a
// single benign detection. Used when config.IsTestMode is true or APP_ENV=local.
type StubDetector struct {
	logger *slog.Logger
}

// NewStubDetector creates a new StubDetector.
func NewStubDetector(logger *slog.Logger) *StubDetector {
	return &StubDetector{logger: logger}
}

func (s *StubDetector) Detect(ctx context.Context, imageRef string) ([]types.Detection, error) {
	s.logger.InfoContext(ctx, "stub: Detect called",
		"image_ref", imageRef,
	)
	return []types.Detection{
		{
			Label:      "healthy",
			Confidence: 0.95,
			BoundingBox: types.BoundingBox{
				CenterX: 0.5,
				CenterY: 0.5,
				Width:   0.8,
				Height:  0.8,
			},
			Area: 0.64,
		},
	}, nil
}

// StubSpeciesIdentifier implements types.SpeciesIdentifier by logging calls
// and returning a fixed tomato identification.
type StubSpeciesIdentifier struct {
	logger *slog.Logger
}

// NewStubSpeciesIdentifier creates a new StubSpeciesIdentifier.
func NewStubSpeciesIdentifier(logger *slog.Logger) *StubSpeciesIdentifier {
	return &StubSpeciesIdentifier{logger: logger}
}

func (s *StubSpeciesIdentifier) Identify(ctx context.Context, imageRef string) (*types.SpeciesResult, error) {
	s.logger.InfoContext(ctx, "stub: Identify called",
		"image_ref", imageRef,
	)
	return &types.SpeciesResult{
		ScientificName: "Solanum lycopersicum",
		CommonNames:    []string{"Tomato"},
		Family:         "Solanaceae",
		Genus:          "Solanum",
		Score:          0.92,
		ConfidenceTier: types.TierHigh,
	}, nil
}

// StubAdviceGenerator implements types.AdviceGenerator by logging calls and
// returning a canned paragraph.
type StubAdviceGenerator struct {
	logger *slog.Logger
}

// NewStubAdviceGenerator creates a new StubAdviceGenerator.
func NewStubAdviceGenerator(logger *slog.Logger) *StubAdviceGenerator {
	return &StubAdviceGenerator{logger: logger}
}

func (s *StubAdviceGenerator) Generate(ctx context.Context, diseaseName string) (string, error) {
	s.logger.InfoContext(ctx, "stub: Generate called",
		"disease", diseaseName,
	)
	return fmt.Sprintf("Stub advice for %s: monitor affected plants, remove damaged tissue, and consult your local extension service.", diseaseName), nil
}

// Compile-time interface compliance checks.
var (
	_ types.Detector          = (*StubDetector)(nil)
	_ types.SpeciesIdentifier = (*StubSpeciesIdentifier)(nil)
	_ types.AdviceGenerator   = (*StubAdviceGenerator)(nil)
)
