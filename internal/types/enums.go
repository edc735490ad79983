package types

// DiseaseType categorizes the pathogen or stressor behind a detection.
type DiseaseType string

const (
	DiseaseFungal        DiseaseType = "fungal"
	DiseaseBacterial     DiseaseType = "bacterial"
	DiseaseViral         DiseaseType = "viral"
	DiseasePest          DiseaseType = "pest"
	DiseaseNutritional   DiseaseType = "nutritional"
	DiseaseEnvironmental DiseaseType = "environmental"
	DiseaseUnknown       DiseaseType = "unknown"
)

// SeverityTier buckets a disease's inherent damage potential.
// Derived from impact score thresholds, never set independently.
type SeverityTier string

const (
	SeverityLow      SeverityTier = "low"
	SeverityMedium   SeverityTier = "medium"
	SeverityHigh     SeverityTier = "high"
	SeverityCritical SeverityTier = "critical"
)

// SpreadRate describes how quickly a disease propagates between plants.
type SpreadRate string

const (
	SpreadNone   SpreadRate = "none"
	SpreadSlow   SpreadRate = "slow"
	SpreadMedium SpreadRate = "medium"
	SpreadFast   SpreadRate = "fast"
)

// RiskLevel is the four-tier categorical summary of an assessment.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// SensorStatus classifies a single sensor parameter's deviation score.
type SensorStatus string

const (
	SensorOptimal    SensorStatus = "optimal"
	SensorAcceptable SensorStatus = "acceptable"
	SensorPoor       SensorStatus = "poor"
)

// SensorParam names the environmental parameters the engine understands.
type SensorParam string

const (
	ParamTemperature  SensorParam = "temperature"
	ParamHumidity     SensorParam = "humidity"
	ParamSoilMoisture SensorParam = "soil_moisture"
	ParamPH           SensorParam = "ph"
)

// ConfidenceTier grades how trustworthy an external result is.
// Shared by species identification and advice lookup.
type ConfidenceTier string

const (
	TierHigh    ConfidenceTier = "high"
	TierMedium  ConfidenceTier = "medium"
	TierLow     ConfidenceTier = "low"
	TierVeryLow ConfidenceTier = "very_low"
)

// AdviceSource identifies which resolution tier produced an advice record.
type AdviceSource string

const (
	AdviceSourceLocal     AdviceSource = "local"
	AdviceSourceGenerated AdviceSource = "generated"
	AdviceSourceGeneric   AdviceSource = "generic"
)

// AssessmentEventType identifies the kind of downstream event published
// after an assessment completes.
type AssessmentEventType string

const (
	EventAssessmentCompleted AssessmentEventType = "assessment_completed"
)

// AllScopes defines the complete set of valid API key scopes.
// Used by validators to check requested scopes during key creation.
var AllScopes = []string{
	"assessments:read",
	"assessments:write",
	"advice:read",
	"species:read",
	"keys:manage",
}

// Severity thresholds map an impact score to a SeverityTier.
// Table construction and classification both go through SeverityForImpact
// so the two can never disagree.
const (
	SeverityThresholdCritical = 90.0
	SeverityThresholdHigh     = 75.0
	SeverityThresholdMedium   = 50.0
)

// SeverityForImpact derives the severity tier for an impact score.
func SeverityForImpact(impact float64) SeverityTier {
	switch {
	case impact >= SeverityThresholdCritical:
		return SeverityCritical
	case impact >= SeverityThresholdHigh:
		return SeverityHigh
	case impact >= SeverityThresholdMedium:
		return SeverityMedium
	default:
		return SeverityLow
	}
}
