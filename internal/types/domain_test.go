package types

import "testing"

func floatPtr(v float64) *float64 { return &v }

func TestSensorReadingPresentCount(t *testing.T) {
	cases := []struct {
		name    string
		reading *SensorReading
		want    int
	}{
		{"nil reading", nil, 0},
		{"empty reading", &SensorReading{}, 0},
		{"one field", &SensorReading{Temperature: floatPtr(22)}, 1},
		{"two fields", &SensorReading{Humidity: floatPtr(55), PH: floatPtr(6.5)}, 2},
		{"all fields", &SensorReading{
			Temperature:  floatPtr(22),
			Humidity:     floatPtr(55),
			SoilMoisture: floatPtr(45),
			PH:           floatPtr(6.5),
		}, 4},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.reading.PresentCount(); got != tc.want {
				t.Errorf("PresentCount() = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestSeverityForImpact(t *testing.T) {
	cases := []struct {
		impact float64
		want   SeverityTier
	}{
		{95, SeverityCritical},
		{90, SeverityCritical},
		{89.9, SeverityHigh},
		{75, SeverityHigh},
		{74.9, SeverityMedium},
		{50, SeverityMedium},
		{49.9, SeverityLow},
		{0, SeverityLow},
	}

	for _, tc := range cases {
		if got := SeverityForImpact(tc.impact); got != tc.want {
			t.Errorf("SeverityForImpact(%.1f) = %q, want %q", tc.impact, got, tc.want)
		}
	}
}

func TestTopIssue(t *testing.T) {
	empty := &HealthAssessment{}
	if empty.TopIssue() != nil {
		t.Error("TopIssue() on empty assessment should be nil")
	}

	a := &HealthAssessment{
		DetectedIssues: IssueList{
			{Detection: Detection{Label: "rust"}, WeightedImpact: 40},
			{Detection: Detection{Label: "blight"}, WeightedImpact: 81},
			{Detection: Detection{Label: "aphid"}, WeightedImpact: 25},
		},
	}
	top := a.TopIssue()
	if top == nil || top.Label != "blight" {
		t.Fatalf("TopIssue() = %v, want blight", top)
	}

	// Ties resolve to the earliest detection.
	tie := &HealthAssessment{
		DetectedIssues: IssueList{
			{Detection: Detection{Label: "first"}, WeightedImpact: 40},
			{Detection: Detection{Label: "second"}, WeightedImpact: 40},
		},
	}
	if got := tie.TopIssue().Label; got != "first" {
		t.Errorf("tie TopIssue() = %q, want first", got)
	}
}

func TestActorHasScope(t *testing.T) {
	key := Actor{Type: ActorTypeAPIKey, Scopes: []string{"assessments:read"}}
	if !key.HasScope("assessments:read") {
		t.Error("expected scope to be granted")
	}
	if key.HasScope("assessments:write") {
		t.Error("missing scope should be denied")
	}

	system := Actor{Type: ActorTypeSystem}
	if !system.HasScope("assessments:write") {
		t.Error("system actor should hold every scope")
	}
}
