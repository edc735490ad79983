package scoring

import (
	"log/slog"

	"croplens/internal/types"
)

// Score composition weights and penalties.
const (
	diseaseWeight = 0.7
	envWeight     = 0.3

	areaPenaltyCap        = 30.0
	priorityPenaltyFactor = 5.0

	// Confidence signal defaults.
	noDetectionConfidence = 90.0
	noSensorConfidence    = 50.0
	sensorParamCount      = 4.0

	// Risk thresholds on overall health.
	riskLowMin    = 80.0
	riskMediumMin = 60.0
	riskHighMin   = 30.0

	// Priority at or above which risk escalates one tier.
	escalationMinPriority = 4
)

// Scorer is the health scoring orchestrator. It owns no mutable state and
// is safe for concurrent use.
type Scorer struct {
	classifier *Classifier
	ranges     *RangeModel
	logger     *slog.Logger
}

// NewScorer creates a scorer over the given catalog with crop-agnostic
// environmental ranges. A nil logger defaults to slog.Default().
func NewScorer(catalog *Catalog, logger *slog.Logger) *Scorer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scorer{
		classifier: NewClassifier(catalog),
		ranges:     NewRangeModel(),
		logger:     logger,
	}
}

// CalculateHealthScore converts detector output plus an optional sensor
// reading into a health assessment using crop-agnostic ranges. The
// operation is total: it produces a valid assessment for any well-typed
// input, including empty detections and a nil reading.
func (s *Scorer) CalculateHealthScore(detections []types.Detection, reading *types.SensorReading) types.HealthAssessment {
	return s.score(detections, reading, s.ranges)
}

// CalculateHealthScoreForCrop is CalculateHealthScore with the named
// crop's environmental range profile. Unknown crops fall back to the
// defaults.
func (s *Scorer) CalculateHealthScoreForCrop(detections []types.Detection, reading *types.SensorReading, crop string) types.HealthAssessment {
	return s.score(detections, reading, RangeModelForCrop(crop))
}

func (s *Scorer) score(detections []types.Detection, reading *types.SensorReading, ranges *RangeModel) types.HealthAssessment {
	classified := s.classifier.ClassifyAll(detections)

	maxPriority := 0
	totalImpact := 0.0
	totalArea := 0.0
	for _, cd := range classified {
		totalImpact += cd.WeightedImpact
		totalArea += cd.Area
		if cd.Record.TreatmentPriority > maxPriority {
			maxPriority = cd.Record.TreatmentPriority
		}
	}

	diseaseScore := diseaseScoreFrom(classified, totalImpact, totalArea, maxPriority)
	envScore := ranges.Aggregate(reading)
	overall := diseaseScore*diseaseWeight + envScore*envWeight

	assessment := types.HealthAssessment{
		OverallHealth:      overall,
		DiseaseScore:       diseaseScore,
		EnvironmentalScore: envScore,
		RiskLevel:          riskLevelFor(overall, maxPriority),
		Confidence:         confidenceFor(detections, reading),
		Recommendations:    buildRecommendations(classified, reading, ranges, maxPriority),
		DetectedIssues:     classified,
		SensorAnalysis:     ranges.Analyze(reading),
	}

	s.logger.Info("health assessment computed",
		"detections", len(detections),
		"overall_health", assessment.OverallHealth,
		"risk_level", assessment.RiskLevel,
	)

	return assessment
}

// diseaseScoreFrom applies the disease scoring formula. Zero detections
// mean perfect health by absence of evidence.
func diseaseScoreFrom(classified []types.ClassifiedDetection, totalImpact, totalArea float64, maxPriority int) float64 {
	if len(classified) == 0 {
		return 100.0
	}

	baseImpact := totalImpact / float64(len(classified))

	areaPenalty := totalArea * 100
	if areaPenalty > areaPenaltyCap {
		areaPenalty = areaPenaltyCap
	}

	priorityPenalty := float64(maxPriority) * priorityPenaltyFactor

	score := 100 - baseImpact - areaPenalty - priorityPenalty
	if score < 0 {
		return 0
	}
	return score
}

// riskLevelFor maps an overall score to a tier and applies the one-tier
// escalation for urgent-priority detections. High and critical never
// escalate further.
func riskLevelFor(overall float64, maxPriority int) types.RiskLevel {
	var risk types.RiskLevel
	switch {
	case overall >= riskLowMin:
		risk = types.RiskLow
	case overall >= riskMediumMin:
		risk = types.RiskMedium
	case overall >= riskHighMin:
		risk = types.RiskHigh
	default:
		risk = types.RiskCritical
	}

	if maxPriority >= escalationMinPriority {
		switch risk {
		case types.RiskLow:
			risk = types.RiskMedium
		case types.RiskMedium:
			risk = types.RiskHigh
		}
	}
	return risk
}

// confidenceFor blends the detection-confidence signal with the
// sensor-completeness signal, each on a 0-100 scale.
func confidenceFor(detections []types.Detection, reading *types.SensorReading) float64 {
	detSignal := noDetectionConfidence
	if len(detections) > 0 {
		sum := 0.0
		for _, d := range detections {
			sum += d.Confidence
		}
		detSignal = sum / float64(len(detections)) * 100
	}

	sensorSignal := noSensorConfidence
	if reading != nil {
		sensorSignal = float64(reading.PresentCount()) / sensorParamCount * 100
	}

	return (detSignal + sensorSignal) / 2
}
