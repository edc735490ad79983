package types

// Telemetry metric names for CloudWatch.
// All components MUST use these constants.
const (
	// Metric Names
	MetricAssessmentCompleted = "AssessmentCompleted"
	MetricAssessmentLatency   = "AssessmentLatency"
	MetricDetectorLatency     = "DetectorLatency"
	MetricExternalAPIFailure  = "ExternalAPIFailure"
	MetricAdviceFallback      = "AdviceFallback"
	MetricAPILatency          = "APILatency"

	// Dimension Keys
	DimRiskLevel = "RiskLevel"
	DimCrop      = "Crop"
	DimEndpoint  = "Endpoint"
	DimProvider  = "Provider"
	DimTier      = "Tier"

	// Metric Namespace
	MetricNamespace = "CropLens"
)
