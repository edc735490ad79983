package scoring

import "croplens/internal/types"

// Recommendation assembly limits.
const (
	maxRecommendations   = 8
	topIssuesConsidered  = 3
	recsPerIssue         = 2
	followUpMinPriority  = 3
	urgentRecommendation = "URGENT: Take immediate action"
	followUpRec          = "Schedule follow-up inspection within 3-5 days"
	consultExpertRec     = "Consult agricultural expert for proper diagnosis"
)

// treatmentTemplates hold the per-type treatment recommendations, in
// priority order.
var treatmentTemplates = map[types.DiseaseType][]string{
	types.DiseaseFungal: {
		"Apply appropriate fungicide treatment",
		"Improve air circulation around plants",
		"Avoid overhead watering",
	},
	types.DiseaseBacterial: {
		"Remove and destroy infected plant material",
		"Apply copper-based bactericide if available",
		"Avoid working with wet plants",
	},
	types.DiseaseViral: {
		"Remove infected plants to prevent spread",
		"Control insect vectors",
		"Use virus-free planting material",
	},
	types.DiseasePest: {
		"Apply appropriate insecticide or miticide",
		"Use biological control methods if available",
		"Monitor pest population regularly",
	},
}

// treatmentsFor returns the full recommendation block for a record.
// High and critical severities get the urgency flag prepended before any
// truncation, so urgency can displace a mechanism-specific tip.
func treatmentsFor(record types.DiseaseRecord) []string {
	var recs []string
	if tmpl, ok := treatmentTemplates[record.Type]; ok {
		recs = append(recs, tmpl...)
	} else if record.Type == types.DiseaseUnknown {
		recs = append(recs, consultExpertRec)
	}

	if record.SeverityTier == types.SeverityHigh || record.SeverityTier == types.SeverityCritical {
		recs = append([]string{urgentRecommendation}, recs...)
	}
	return recs
}

// buildRecommendations assembles the ordered, deduplicated recommendation
// list: disease treatments for the first issues in detection order, then
// environmental corrections, then the follow-up inspection note.
func buildRecommendations(
	classified []types.ClassifiedDetection,
	reading *types.SensorReading,
	ranges *RangeModel,
	maxPriority int,
) types.RecommendationList {
	var recs []string

	limit := len(classified)
	if limit > topIssuesConsidered {
		limit = topIssuesConsidered
	}
	for _, cd := range classified[:limit] {
		block := treatmentsFor(cd.Record)
		if len(block) > recsPerIssue {
			block = block[:recsPerIssue]
		}
		recs = append(recs, block...)
	}

	if reading != nil {
		recs = append(recs, environmentalRecommendations(reading, ranges)...)
	}

	if maxPriority >= followUpMinPriority {
		recs = append(recs, followUpRec)
	}

	return dedupeAndCap(recs, maxRecommendations)
}

// environmentalRecommendations checks each present parameter against its
// range. pH carries no directive advice; it only affects the score.
func environmentalRecommendations(reading *types.SensorReading, ranges *RangeModel) []string {
	var recs []string

	if reading.Temperature != nil {
		r := ranges.Range(types.ParamTemperature)
		if *reading.Temperature < r[0] {
			recs = append(recs, "Provide protection from cold temperatures")
		} else if *reading.Temperature > r[1] {
			recs = append(recs, "Provide shade or cooling measures")
		}
	}

	if reading.Humidity != nil {
		r := ranges.Range(types.ParamHumidity)
		if *reading.Humidity < r[0] {
			recs = append(recs, "Increase humidity around plants")
		} else if *reading.Humidity > r[1] {
			recs = append(recs, "Improve ventilation to reduce humidity")
		}
	}

	if reading.SoilMoisture != nil {
		r := ranges.Range(types.ParamSoilMoisture)
		if *reading.SoilMoisture < r[0] {
			recs = append(recs, "Increase watering frequency")
		} else if *reading.SoilMoisture > r[1] {
			recs = append(recs, "Reduce watering to prevent root rot")
		}
	}

	return recs
}

// dedupeAndCap removes exact duplicates preserving first-seen order, then
// truncates to the cap.
func dedupeAndCap(recs []string, limit int) types.RecommendationList {
	seen := make(map[string]struct{}, len(recs))
	unique := make(types.RecommendationList, 0, len(recs))
	for _, r := range recs {
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		unique = append(unique, r)
	}
	if len(unique) > limit {
		unique = unique[:limit]
	}
	return unique
}
