package scoring

import "croplens/internal/types"

// Neutral score returned when no sensor reading is supplied at all.
// Absence of sensors is not evidence of poor conditions.
const NeutralEnvironmentalScore = 75.0

// Status thresholds for a single parameter's deviation score.
const (
	statusOptimalMin    = 80.0
	statusAcceptableMin = 60.0
)

// RangeModel holds the per-parameter optimal ranges used for environmental
// scoring. Read-only after construction.
type RangeModel struct {
	ranges map[types.SensorParam][2]float64
}

// defaultRanges are the crop-agnostic optimal ranges.
var defaultRanges = map[types.SensorParam][2]float64{
	types.ParamTemperature:  {18, 30},
	types.ParamHumidity:     {40, 70},
	types.ParamSoilMoisture: {30, 70},
	types.ParamPH:           {6.0, 7.5},
}

// cropRanges override the defaults for crops with known profiles.
var cropRanges = map[string]map[types.SensorParam][2]float64{
	"tomato": {
		types.ParamTemperature:  {18, 25},
		types.ParamHumidity:     {50, 70},
		types.ParamSoilMoisture: {60, 80},
		types.ParamPH:           {6.0, 6.8},
	},
	"potato": {
		types.ParamTemperature:  {15, 20},
		types.ParamHumidity:     {60, 80},
		types.ParamSoilMoisture: {70, 85},
		types.ParamPH:           {5.0, 6.5},
	},
	"rice": {
		types.ParamTemperature:  {25, 35},
		types.ParamHumidity:     {70, 90},
		types.ParamSoilMoisture: {80, 100},
		types.ParamPH:           {5.5, 6.5},
	},
	"corn": {
		types.ParamTemperature:  {20, 30},
		types.ParamHumidity:     {50, 70},
		types.ParamSoilMoisture: {65, 80},
		types.ParamPH:           {6.0, 7.0},
	},
	"wheat": {
		types.ParamTemperature:  {15, 25},
		types.ParamHumidity:     {40, 60},
		types.ParamSoilMoisture: {50, 70},
		types.ParamPH:           {6.0, 7.5},
	},
}

// NewRangeModel returns the crop-agnostic range model.
func NewRangeModel() *RangeModel {
	return &RangeModel{ranges: defaultRanges}
}

// RangeModelForCrop returns the range model for the named crop, falling
// back to the defaults when the crop has no profile. Matching is
// case-insensitive via exact lowercase key.
func RangeModelForCrop(crop string) *RangeModel {
	if r, ok := cropRanges[crop]; ok {
		return &RangeModel{ranges: r}
	}
	return NewRangeModel()
}

// KnownCrops returns the crop names with dedicated range profiles.
func KnownCrops() []string {
	return []string{"corn", "potato", "rice", "tomato", "wheat"}
}

// Range returns the optimal [min,max] for a parameter.
func (m *RangeModel) Range(param types.SensorParam) [2]float64 {
	return m.ranges[param]
}

// Score rates a single parameter value against its optimal range.
// Inside the range the score is 100. Outside, the penalty is linear in the
// distance from the nearest bound, scaled by the range width: a deviation
// equal to the full width drives the score to 0.
func (m *RangeModel) Score(param types.SensorParam, value float64) float64 {
	r := m.ranges[param]
	minVal, maxVal := r[0], r[1]
	width := maxVal - minVal

	if value >= minVal && value <= maxVal {
		return 100.0
	}

	var deviation float64
	if value < minVal {
		deviation = (minVal - value) / width
	} else {
		deviation = (value - maxVal) / width
	}
	score := 100 - deviation*100
	if score < 0 {
		return 0
	}
	return score
}

// Aggregate computes the environmental score for a reading: the mean of
// per-parameter scores over only the parameters present, or the neutral
// default when no reading is supplied.
func (m *RangeModel) Aggregate(reading *types.SensorReading) float64 {
	if reading == nil {
		return NeutralEnvironmentalScore
	}

	var sum float64
	var n int
	for param, value := range presentParams(reading) {
		sum += m.Score(param, value)
		n++
	}
	if n == 0 {
		return NeutralEnvironmentalScore
	}
	return sum / float64(n)
}

// Analyze builds the per-parameter breakdown for an assessment. Parameters
// absent from the reading are omitted; a nil reading yields a nil map.
func (m *RangeModel) Analyze(reading *types.SensorReading) types.SensorAnalysis {
	if reading == nil {
		return nil
	}

	analysis := make(types.SensorAnalysis)
	for param, value := range presentParams(reading) {
		score := m.Score(param, value)
		analysis[param] = types.SensorParamAnalysis{
			Value:        value,
			Status:       statusForScore(score),
			Score:        score,
			OptimalRange: m.ranges[param],
		}
	}
	return analysis
}

func statusForScore(score float64) types.SensorStatus {
	switch {
	case score >= statusOptimalMin:
		return types.SensorOptimal
	case score >= statusAcceptableMin:
		return types.SensorAcceptable
	default:
		return types.SensorPoor
	}
}

// presentParams flattens a reading into its non-nil fields.
func presentParams(reading *types.SensorReading) map[types.SensorParam]float64 {
	out := make(map[types.SensorParam]float64, 4)
	if reading.Temperature != nil {
		out[types.ParamTemperature] = *reading.Temperature
	}
	if reading.Humidity != nil {
		out[types.ParamHumidity] = *reading.Humidity
	}
	if reading.SoilMoisture != nil {
		out[types.ParamSoilMoisture] = *reading.SoilMoisture
	}
	if reading.PH != nil {
		out[types.ParamPH] = *reading.PH
	}
	return out
}
