package types

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Compile-time interface assertions.
// These ensure all JSONB types implement both sql.Scanner and driver.Valuer,
// catching any method signature drift at compile time rather than at runtime.
// Scan is on pointer receivers; Value is on value receivers.
var (
	_ sql.Scanner   = (*IssueList)(nil)
	_ driver.Valuer = IssueList(nil)
	_ sql.Scanner   = (*SensorAnalysis)(nil)
	_ driver.Valuer = SensorAnalysis(nil)
	_ sql.Scanner   = (*RecommendationList)(nil)
	_ driver.Valuer = RecommendationList(nil)
	_ sql.Scanner   = (*SpeciesResult)(nil)
	_ driver.Valuer = SpeciesResult{}
	_ sql.Scanner   = (*HealthAssessment)(nil)
	_ driver.Valuer = HealthAssessment{}
)

// IssueList is the JSONB column type for an assessment's classified detections.
type IssueList []ClassifiedDetection

// SensorAnalysis is the JSONB column type for the per-parameter breakdown.
type SensorAnalysis map[SensorParam]SensorParamAnalysis

// RecommendationList is the JSONB column type for assessment recommendations.
type RecommendationList []string

// scanJSONB is a generic helper that scans a JSONB database value into a Go pointer.
// It handles nil values, []byte, and string representations from different database drivers.
func scanJSONB(dest interface{}, value interface{}) error {
	if value == nil {
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("jsonb: unsupported scan type %T", value)
	}
	return json.Unmarshal(data, dest)
}

// valueJSONB is a generic helper that converts a Go value to a JSONB-compatible driver.Value.
// Returns nil for nil interface values; otherwise marshals to JSON bytes.
func valueJSONB(v interface{}) (driver.Value, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

// Scan implements the sql.Scanner interface for reading JSONB from the database.
func (il *IssueList) Scan(value interface{}) error {
	if value == nil {
		*il = nil
		return nil
	}
	return scanJSONB(il, value)
}

// Value implements the driver.Valuer interface for writing JSONB to the database.
func (il IssueList) Value() (driver.Value, error) {
	if il == nil {
		return nil, nil
	}
	return json.Marshal(il)
}

// Scan implements the sql.Scanner interface for reading JSONB from the database.
func (sa *SensorAnalysis) Scan(value interface{}) error {
	if value == nil {
		*sa = nil
		return nil
	}
	return scanJSONB(sa, value)
}

// Value implements the driver.Valuer interface for writing JSONB to the database.
func (sa SensorAnalysis) Value() (driver.Value, error) {
	if sa == nil {
		return nil, nil
	}
	return json.Marshal(sa)
}

// Scan implements the sql.Scanner interface for reading JSONB from the database.
func (rl *RecommendationList) Scan(value interface{}) error {
	if value == nil {
		*rl = nil
		return nil
	}
	return scanJSONB(rl, value)
}

// Value implements the driver.Valuer interface for writing JSONB to the database.
func (rl RecommendationList) Value() (driver.Value, error) {
	if rl == nil {
		return nil, nil
	}
	return json.Marshal(rl)
}

// Scan implements the sql.Scanner interface for reading JSONB from the database.
func (sr *SpeciesResult) Scan(value interface{}) error {
	return scanJSONB(sr, value)
}

// Value implements the driver.Valuer interface for writing JSONB to the database.
func (sr SpeciesResult) Value() (driver.Value, error) {
	return valueJSONB(sr)
}

// Scan implements the sql.Scanner interface for reading JSONB from the database.
func (ha *HealthAssessment) Scan(value interface{}) error {
	return scanJSONB(ha, value)
}

// Value implements the driver.Valuer interface for writing JSONB to the database.
func (ha HealthAssessment) Value() (driver.Value, error) {
	return valueJSONB(ha)
}
