package scoring

import (
	"log/slog"
	"math"
	"reflect"
	"testing"

	"croplens/internal/types"
)

func newTestScorer() *Scorer {
	return NewScorer(NewCatalog(), slog.New(slog.DiscardHandler))
}

func makeDetection(label string, confidence, area float64) types.Detection {
	return types.Detection{
		Label:      label,
		Confidence: confidence,
		Area:       area,
		BoundingBox: types.BoundingBox{
			CenterX: 0.5, CenterY: 0.5, Width: 0.1, Height: 0.1,
		},
	}
}

// TestEmptyInputs checks the all-defaults case: zero detections and no
// sensor reading yield overall 92.5, low risk, and confidence 70.
func TestEmptyInputs(t *testing.T) {
	a := newTestScorer().CalculateHealthScore(nil, nil)

	if a.DiseaseScore != 100 {
		t.Errorf("disease score = %.1f, want 100", a.DiseaseScore)
	}
	if a.EnvironmentalScore != 75 {
		t.Errorf("environmental score = %.1f, want 75", a.EnvironmentalScore)
	}
	if math.Abs(a.OverallHealth-92.5) > 1e-9 {
		t.Errorf("overall health = %.2f, want 92.5", a.OverallHealth)
	}
	if a.RiskLevel != types.RiskLow {
		t.Errorf("risk = %q, want low", a.RiskLevel)
	}
	if math.Abs(a.Confidence-70) > 1e-9 {
		t.Errorf("confidence = %.2f, want 70", a.Confidence)
	}
	if len(a.Recommendations) != 0 {
		t.Errorf("recommendations = %v, want none", a.Recommendations)
	}
	if len(a.DetectedIssues) != 0 || a.SensorAnalysis != nil {
		t.Error("empty input should produce no issues and no sensor analysis")
	}
}

// TestScoreBounds verifies disease and overall scores stay in [0,100] even
// under worst-case input.
func TestScoreBounds(t *testing.T) {
	detections := []types.Detection{
		makeDetection("bacterial wilt", 1.0, 0.9),
		makeDetection("blight", 1.0, 0.9),
		makeDetection("canker", 1.0, 0.9),
	}
	a := newTestScorer().CalculateHealthScore(detections, nil)

	if a.DiseaseScore < 0 || a.DiseaseScore > 100 {
		t.Errorf("disease score %.2f out of bounds", a.DiseaseScore)
	}
	if a.OverallHealth < 0 || a.OverallHealth > 100 {
		t.Errorf("overall health %.2f out of bounds", a.OverallHealth)
	}
	if a.Confidence < 0 || a.Confidence > 100 {
		t.Errorf("confidence %.2f out of bounds", a.Confidence)
	}
	if a.DiseaseScore != 0 {
		t.Errorf("disease score = %.2f, want 0 for saturated penalties", a.DiseaseScore)
	}
}

func TestDiseaseScoreFormula(t *testing.T) {
	// One rust detection: impact 75, priority 3.
	// weightedImpact = 75 * 0.8 = 60; areaPenalty = 0.1 * 100 = 10;
	// priorityPenalty = 15; score = 100 - 60 - 10 - 15 = 15.
	a := newTestScorer().CalculateHealthScore(
		[]types.Detection{makeDetection("rust", 0.8, 0.1)}, nil)

	if math.Abs(a.DiseaseScore-15) > 1e-9 {
		t.Errorf("disease score = %.2f, want 15", a.DiseaseScore)
	}
}

func TestAreaPenaltyCap(t *testing.T) {
	// Area 0.5 would be a 50-point penalty uncapped; the cap holds it at 30.
	// healthy: impact 0, priority 1. score = 100 - 0 - 30 - 5 = 65.
	a := newTestScorer().CalculateHealthScore(
		[]types.Detection{makeDetection("healthy", 1.0, 0.5)}, nil)

	if math.Abs(a.DiseaseScore-65) > 1e-9 {
		t.Errorf("disease score = %.2f, want 65", a.DiseaseScore)
	}
}

// TestUnknownLabel checks the default-record path: impact 50 at confidence
// 0.6 gives weighted impact 30.
func TestUnknownLabel(t *testing.T) {
	a := newTestScorer().CalculateHealthScore(
		[]types.Detection{makeDetection("xyz_unrecognized_tag", 0.6, 0)}, nil)

	if len(a.DetectedIssues) != 1 {
		t.Fatalf("detected issues = %d, want 1", len(a.DetectedIssues))
	}
	issue := a.DetectedIssues[0]
	if issue.Record.Type != types.DiseaseUnknown {
		t.Errorf("type = %q, want unknown", issue.Record.Type)
	}
	if math.Abs(issue.WeightedImpact-30.0) > 1e-9 {
		t.Errorf("weighted impact = %.2f, want 30", issue.WeightedImpact)
	}
}

// TestEscalation verifies that a priority-4 detection raises low to medium
// and medium to high, exactly one tier, and never touches high or critical.
func TestEscalation(t *testing.T) {
	s := newTestScorer()

	// healthy alone: priority 1, no escalation, overall 89 -> low.
	base := s.CalculateHealthScore(
		[]types.Detection{makeDetection("healthy", 1.0, 0)}, nil)
	if base.RiskLevel != types.RiskLow {
		t.Fatalf("baseline risk = %q, want low", base.RiskLevel)
	}

	// Adding a priority-4 issue escalates the computed tier by one.
	cases := []struct {
		overall float64
		want    types.RiskLevel
	}{
		{85, types.RiskMedium},   // low escalates to medium
		{65, types.RiskHigh},     // medium escalates to high
		{45, types.RiskHigh},     // high stays high
		{10, types.RiskCritical}, // critical stays critical
	}
	for _, tc := range cases {
		if got := riskLevelFor(tc.overall, 4); got != tc.want {
			t.Errorf("riskLevelFor(%.0f, priority 4) = %q, want %q", tc.overall, got, tc.want)
		}
	}

	// Priority 3 never escalates.
	if got := riskLevelFor(85, 3); got != types.RiskLow {
		t.Errorf("riskLevelFor(85, priority 3) = %q, want low", got)
	}
}

// TestIdempotence: identical inputs produce identical assessments.
func TestIdempotence(t *testing.T) {
	s := newTestScorer()
	detections := []types.Detection{
		makeDetection("late blight", 0.9, 0.05),
		makeDetection("aphid", 0.4, 0.01),
	}
	reading := &types.SensorReading{
		Temperature: floatPtr(35),
		Humidity:    floatPtr(80),
	}

	first := s.CalculateHealthScore(detections, reading)
	second := s.CalculateHealthScore(detections, reading)
	if !reflect.DeepEqual(first, second) {
		t.Error("identical inputs produced different assessments")
	}
}

func TestConfidenceBlend(t *testing.T) {
	s := newTestScorer()

	// Detections at 0.8 and 0.6 mean 70; full sensors give 100; blend 85.
	detections := []types.Detection{
		makeDetection("rust", 0.8, 0),
		makeDetection("aphid", 0.6, 0),
	}
	full := &types.SensorReading{
		Temperature:  floatPtr(24),
		Humidity:     floatPtr(55),
		SoilMoisture: floatPtr(50),
		PH:           floatPtr(6.5),
	}
	a := s.CalculateHealthScore(detections, full)
	if math.Abs(a.Confidence-85) > 1e-9 {
		t.Errorf("confidence = %.2f, want 85", a.Confidence)
	}

	// Two of four sensors: (70 + 50) / 2 = 60.
	half := &types.SensorReading{Temperature: floatPtr(24), PH: floatPtr(6.5)}
	a = s.CalculateHealthScore(detections, half)
	if math.Abs(a.Confidence-60) > 1e-9 {
		t.Errorf("confidence = %.2f, want 60", a.Confidence)
	}

	// Supplied-but-empty reading scores the sensor signal at zero.
	a = s.CalculateHealthScore(detections, &types.SensorReading{})
	if math.Abs(a.Confidence-35) > 1e-9 {
		t.Errorf("confidence = %.2f, want 35", a.Confidence)
	}
}

// TestScenarioLateBlight is the end-to-end high-severity path: one late
// blight detection at 0.9 confidence with 5% affected area.
func TestScenarioLateBlight(t *testing.T) {
	a := newTestScorer().CalculateHealthScore(
		[]types.Detection{makeDetection("late blight", 0.9, 0.05)}, nil)

	// blight: impact 90, priority 5. weighted = 81; area penalty 5;
	// priority penalty 25. disease = 100 - 81 - 5 - 25 -> floored at 0.
	if a.DiseaseScore != 0 {
		t.Errorf("disease score = %.2f, want 0", a.DiseaseScore)
	}
	// overall = 0.3 * 75 = 22.5 -> critical tier, unaffected by escalation.
	if math.Abs(a.OverallHealth-22.5) > 1e-9 {
		t.Errorf("overall = %.2f, want 22.5", a.OverallHealth)
	}
	if a.RiskLevel != types.RiskCritical {
		t.Errorf("risk = %q, want critical", a.RiskLevel)
	}

	// Critical severity pushes the urgency flag into the block.
	if len(a.Recommendations) == 0 || a.Recommendations[0] != urgentRecommendation {
		t.Errorf("recommendations = %v, want urgency flag first", a.Recommendations)
	}
	// Priority 5 adds the follow-up note.
	found := false
	for _, r := range a.Recommendations {
		if r == followUpRec {
			found = true
		}
	}
	if !found {
		t.Errorf("recommendations = %v, missing follow-up note", a.Recommendations)
	}
}

// TestScenarioHotGreenhouse is the environmental path: perfect detections,
// temperature far above range.
func TestScenarioHotGreenhouse(t *testing.T) {
	reading := &types.SensorReading{
		Temperature:  floatPtr(45),
		Humidity:     floatPtr(55),
		SoilMoisture: floatPtr(50),
		PH:           floatPtr(6.5),
	}
	a := newTestScorer().CalculateHealthScore(nil, reading)

	if a.DiseaseScore != 100 {
		t.Errorf("disease score = %.1f, want 100", a.DiseaseScore)
	}
	if a.EnvironmentalScore >= 100 {
		t.Errorf("environmental score = %.1f, want < 100", a.EnvironmentalScore)
	}

	found := false
	for _, r := range a.Recommendations {
		if r == "Provide shade or cooling measures" {
			found = true
		}
	}
	if !found {
		t.Errorf("recommendations = %v, missing cooling advice", a.Recommendations)
	}

	if a.RiskLevel != types.RiskLow && a.RiskLevel != types.RiskMedium {
		t.Errorf("risk = %q, want low or medium", a.RiskLevel)
	}

	if a.SensorAnalysis[types.ParamTemperature].Status != types.SensorPoor {
		t.Errorf("temperature status = %q, want poor", a.SensorAnalysis[types.ParamTemperature].Status)
	}
}

// TestRecommendationAssembly covers ordering, deduplication, and the cap.
func TestRecommendationAssembly(t *testing.T) {
	s := newTestScorer()

	// Three medium-severity fungal issues produce identical template
	// entries; dedupe keeps one copy each in first-seen order.
	detections := []types.Detection{
		makeDetection("powdery mildew", 0.5, 0),
		makeDetection("leaf spot", 0.5, 0),
		makeDetection("gray mold", 0.5, 0),
	}
	a := s.CalculateHealthScore(detections, nil)

	want := types.RecommendationList{
		"Apply appropriate fungicide treatment",
		"Improve air circulation around plants",
		followUpRec, // gray mold is priority 3
	}
	if !reflect.DeepEqual(a.Recommendations, want) {
		t.Errorf("recommendations = %v, want %v", a.Recommendations, want)
	}

	// Mixed types with a cold, dry greenhouse hit the cap of eight.
	detections = []types.Detection{
		makeDetection("bacterial wilt", 0.9, 0.02), // bacterial, critical -> URGENT + 1 rec
		makeDetection("mosaic virus", 0.8, 0.02),   // viral
		makeDetection("spider mite", 0.7, 0.02),    // pest
		makeDetection("rust", 0.6, 0.02),           // beyond the first three, ignored
	}
	reading := &types.SensorReading{
		Temperature:  floatPtr(2),
		Humidity:     floatPtr(10),
		SoilMoisture: floatPtr(5),
	}
	a = s.CalculateHealthScore(detections, reading)

	if len(a.Recommendations) != maxRecommendations {
		t.Fatalf("recommendations = %d entries, want %d: %v",
			len(a.Recommendations), maxRecommendations, a.Recommendations)
	}
	seen := map[string]bool{}
	for _, r := range a.Recommendations {
		if seen[r] {
			t.Errorf("duplicate recommendation %q", r)
		}
		seen[r] = true
	}
	// Disease-derived entries come before environmental ones.
	if a.Recommendations[0] != urgentRecommendation {
		t.Errorf("first recommendation = %q, want urgency flag", a.Recommendations[0])
	}
}

// TestCropSpecificScoring verifies the crop override changes the outcome.
func TestCropSpecificScoring(t *testing.T) {
	s := newTestScorer()
	reading := &types.SensorReading{Temperature: floatPtr(28)}

	generic := s.CalculateHealthScore(nil, reading)
	tomato := s.CalculateHealthScoreForCrop(nil, reading, "tomato")

	if generic.EnvironmentalScore != 100 {
		t.Errorf("generic environmental score = %.1f, want 100", generic.EnvironmentalScore)
	}
	if tomato.EnvironmentalScore >= generic.EnvironmentalScore {
		t.Errorf("tomato environmental score = %.1f, want below generic %.1f",
			tomato.EnvironmentalScore, generic.EnvironmentalScore)
	}

	// Unknown crops fall back to the generic profile.
	fallback := s.CalculateHealthScoreForCrop(nil, reading, "dragonfruit")
	if fallback.EnvironmentalScore != generic.EnvironmentalScore {
		t.Errorf("fallback environmental score = %.1f, want %.1f",
			fallback.EnvironmentalScore, generic.EnvironmentalScore)
	}
}
