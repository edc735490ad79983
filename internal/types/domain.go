package types

import (
	"encoding/json"
	"time"
)

// BoundingBox is a detector box in normalized image coordinates.
// Center-based, all fields in [0,1] relative to image dimensions.
type BoundingBox struct {
	CenterX float64 `json:"center_x"`
	CenterY float64 `json:"center_y"`
	Width   float64 `json:"width"`
	Height  float64 `json:"height"`
}

// Detection is one localized finding from the external detector.
// Created once per detector output item and consumed within a single
// scoring call; never persisted independently.
type Detection struct {
	Label       string      `json:"label" validate:"required,max=120"`
	Confidence  float64     `json:"confidence" validate:"min=0,max=1"`
	BoundingBox BoundingBox `json:"bounding_box"`
	Area        float64     `json:"area" validate:"min=0,max=1"`
}

// SensorReading is an optional environmental snapshot supplied per request.
// Each field is independently optional; a nil field means "not measured",
// never zero. Readings are never merged across requests.
type SensorReading struct {
	Temperature  *float64 `json:"temperature,omitempty"`
	Humidity     *float64 `json:"humidity,omitempty"`
	SoilMoisture *float64 `json:"soil_moisture,omitempty"`
	PH           *float64 `json:"ph,omitempty"`
}

// PresentCount returns how many of the four parameters carry a value.
func (s *SensorReading) PresentCount() int {
	if s == nil {
		return 0
	}
	n := 0
	for _, p := range []*float64{s.Temperature, s.Humidity, s.SoilMoisture, s.PH} {
		if p != nil {
			n++
		}
	}
	return n
}

// DiseaseRecord is one taxon's static metadata from the classification table.
// SeverityTier is always derived from ImpactScore via SeverityForImpact.
type DiseaseRecord struct {
	Name              string       `json:"name"`
	Type              DiseaseType  `json:"type"`
	SeverityTier      SeverityTier `json:"severity"`
	ImpactScore       float64      `json:"impact_score"`
	SpreadRate        SpreadRate   `json:"spread_rate"`
	TreatmentPriority int          `json:"treatment_priority"`
}

// ClassifiedDetection joins a Detection with its DiseaseRecord.
// WeightedImpact = ImpactScore * Confidence, always in [0,100].
type ClassifiedDetection struct {
	Detection
	Record         DiseaseRecord `json:"record"`
	WeightedImpact float64       `json:"weighted_impact"`
}

// SensorParamAnalysis is the per-parameter breakdown in an assessment.
type SensorParamAnalysis struct {
	Value        float64      `json:"value"`
	Status       SensorStatus `json:"status"`
	Score        float64      `json:"score"`
	OptimalRange [2]float64   `json:"optimal_range"`
}

// HealthAssessment is the scoring engine's output record. It is constructed
// fresh per scoring call and immutable once returned; retention is the
// service layer's decision.
type HealthAssessment struct {
	OverallHealth      float64            `json:"overall_health"`
	DiseaseScore       float64            `json:"disease_score"`
	EnvironmentalScore float64            `json:"environmental_score"`
	RiskLevel          RiskLevel          `json:"risk_level"`
	Confidence         float64            `json:"confidence"`
	Recommendations    RecommendationList `json:"recommendations"`
	DetectedIssues     IssueList          `json:"detected_issues"`
	SensorAnalysis     SensorAnalysis     `json:"sensor_analysis,omitempty"`
}

// TopIssue returns the detected issue with the highest weighted impact,
// or nil when the assessment found nothing. Detection order breaks ties.
func (a *HealthAssessment) TopIssue() *ClassifiedDetection {
	if len(a.DetectedIssues) == 0 {
		return nil
	}
	top := 0
	for i := 1; i < len(a.DetectedIssues); i++ {
		if a.DetectedIssues[i].WeightedImpact > a.DetectedIssues[top].WeightedImpact {
			top = i
		}
	}
	return &a.DetectedIssues[top]
}

// Assessment is the persisted record wrapping a HealthAssessment with
// request context. Immutable once written.
type Assessment struct {
	ID        string           `json:"id" db:"id"`
	Crop      string           `json:"crop,omitempty" db:"crop"`
	ImageRef  string           `json:"image_ref,omitempty" db:"image_ref"`
	Result    HealthAssessment `json:"result" db:"-"`
	Species   *SpeciesResult   `json:"species,omitempty" db:"-"`
	Source    string           `json:"source,omitempty" db:"source"`
	CreatedAt time.Time        `json:"created_at" db:"created_at"`
}

// SpeciesResult is the decorated plant-identification outcome.
// Decorative only; it never affects scoring.
type SpeciesResult struct {
	ScientificName string         `json:"scientific_name"`
	CommonNames    []string       `json:"common_names,omitempty"`
	Family         string         `json:"family,omitempty"`
	Genus          string         `json:"genus,omitempty"`
	Score          float64        `json:"score"`
	ConfidenceTier ConfidenceTier `json:"confidence_tier"`
	Alternatives   []SpeciesMatch `json:"alternatives,omitempty"`
}

// SpeciesMatch is one alternative candidate from the identification provider.
type SpeciesMatch struct {
	ScientificName string  `json:"scientific_name"`
	Score          float64 `json:"score"`
}

// AdviceRecord is the Advice Augmenter's output.
type AdviceRecord struct {
	DiseaseName    string         `json:"disease_name"`
	Summary        string         `json:"summary"`
	ConfidenceTier ConfidenceTier `json:"confidence_tier"`
	Source         AdviceSource   `json:"source"`
}

// APIKey represents an API key for programmatic access.
type APIKey struct {
	ID         string     `json:"id" db:"id"`
	KeyHash    string     `json:"-" db:"key_hash"`
	KeyPrefix  string     `json:"key_prefix" db:"key_prefix"`
	Name       string     `json:"name" db:"name"`
	Scopes     []string   `json:"scopes" db:"scopes"`
	Source     string     `json:"source,omitempty" db:"source"`
	TestMode   bool       `json:"test_mode" db:"test_mode"`
	LastUsedAt *time.Time `json:"last_used_at" db:"last_used_at"`
	ExpiresAt  *time.Time `json:"expires_at" db:"expires_at"`
	RevokedAt  *time.Time `json:"-" db:"revoked_at"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
}

// EventEnvelope is the standard wrapper for all internal events.
type EventEnvelope struct {
	EventID   string          `json:"event_id"`   // "evt_..." unique ID for deduplication
	EventType string          `json:"event_type"` // Dot-namespaced (e.g., "assessment.completed")
	Timestamp time.Time       `json:"timestamp"`  // ISO 8601 UTC
	Source    string          `json:"source"`     // Component name
	Version   string          `json:"version"`    // Schema version
	Payload   json.RawMessage `json:"payload"`
	Metadata  *EventMetadata  `json:"metadata,omitempty"`
}

// EventMetadata carries optional correlation and tracing data.
type EventMetadata struct {
	CorrelationID string `json:"correlation_id,omitempty"`
	TraceID       string `json:"trace_id,omitempty"`
}

// AssessmentEvent is the queue payload published after an assessment
// completes, consumed by downstream analytics.
type AssessmentEvent struct {
	AssessmentID  string    `json:"assessment_id"`
	Crop          string    `json:"crop,omitempty"`
	OverallHealth float64   `json:"overall_health"`
	RiskLevel     RiskLevel `json:"risk_level"`
	IssueCount    int       `json:"issue_count"`
	CreatedAt     time.Time `json:"created_at"`
}
