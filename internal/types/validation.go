package types

import "fmt"

// Validation constraint constants.
const (
	MaxDetectionsPerRequest = 100
	MaxLabelLength          = 120
	MaxListLimit            = 100
	DefaultListLimit        = 20
)

// SensorBounds defines the physically plausible range for a sensor parameter.
// Readings outside these bounds indicate a faulty sensor or a malformed
// request, not an unhealthy crop.
type SensorBounds struct {
	Param SensorParam `json:"param"`
	Unit  string      `json:"unit"`
	Range [2]float64  `json:"valid_range"`
}

// StandardSensorBounds is the authoritative per-parameter constraint table.
// All request validation MUST check against these ranges.
var StandardSensorBounds = map[SensorParam]SensorBounds{
	ParamTemperature:  {Param: ParamTemperature, Unit: "celsius", Range: [2]float64{-40, 60}},
	ParamHumidity:     {Param: ParamHumidity, Unit: "percent", Range: [2]float64{0, 100}},
	ParamSoilMoisture: {Param: ParamSoilMoisture, Unit: "percent", Range: [2]float64{0, 100}},
	ParamPH:           {Param: ParamPH, Unit: "ph", Range: [2]float64{0, 14}},
}

// ValidateSensorReading checks each present field against its plausible range.
// A nil reading is valid; absence of a field is never an error.
func ValidateSensorReading(s *SensorReading) error {
	if s == nil {
		return nil
	}
	check := func(param SensorParam, v *float64) error {
		if v == nil {
			return nil
		}
		b := StandardSensorBounds[param]
		if *v < b.Range[0] || *v > b.Range[1] {
			return fmt.Errorf("%s: %s value %.2f outside valid range [%.1f, %.1f]",
				ErrCodeValidationSensorRange, param, *v, b.Range[0], b.Range[1])
		}
		return nil
	}
	if err := check(ParamTemperature, s.Temperature); err != nil {
		return err
	}
	if err := check(ParamHumidity, s.Humidity); err != nil {
		return err
	}
	if err := check(ParamSoilMoisture, s.SoilMoisture); err != nil {
		return err
	}
	return check(ParamPH, s.PH)
}

// ValidateDetection checks a single detector output item against its contract.
func ValidateDetection(d Detection) error {
	if d.Label == "" {
		return fmt.Errorf("%s: label", ErrCodeValidationMissingField)
	}
	if len(d.Label) > MaxLabelLength {
		return fmt.Errorf("%s: label exceeds %d characters", ErrCodeValidationInvalidBody, MaxLabelLength)
	}
	if d.Confidence < 0 || d.Confidence > 1 {
		return fmt.Errorf("%s: confidence %.4f", ErrCodeValidationConfidenceRange, d.Confidence)
	}
	if d.Area < 0 || d.Area > 1 {
		return fmt.Errorf("%s: area %.4f", ErrCodeValidationBoxRange, d.Area)
	}
	for _, v := range []float64{d.BoundingBox.CenterX, d.BoundingBox.CenterY, d.BoundingBox.Width, d.BoundingBox.Height} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s: box coordinate %.4f", ErrCodeValidationBoxRange, v)
		}
	}
	return nil
}
