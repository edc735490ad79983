package advice

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"croplens/internal/types"
)

// mockGenerator implements types.AdviceGenerator with overridable behavior.
type mockGenerator struct {
	generateFn func(ctx context.Context, diseaseName string) (string, error)
	calls      int
}

func (m *mockGenerator) Generate(ctx context.Context, diseaseName string) (string, error) {
	m.calls++
	if m.generateFn != nil {
		return m.generateFn(ctx, diseaseName)
	}
	return "", nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestGetAdviceLocalKnowledge(t *testing.T) {
	gen := &mockGenerator{}
	svc := NewService(gen, discardLogger())

	rec := svc.GetAdvice(context.Background(), "late blight")
	if rec.Source != types.AdviceSourceLocal || rec.ConfidenceTier != types.TierHigh {
		t.Errorf("source/tier = %q/%q, want local/high", rec.Source, rec.ConfidenceTier)
	}
	if rec.DiseaseName != "late blight" {
		t.Errorf("disease name = %q, want original label", rec.DiseaseName)
	}
	if !strings.Contains(rec.Summary, "copper or mancozeb") {
		t.Errorf("summary does not look like the late blight entry: %q", rec.Summary)
	}
	if gen.calls != 0 {
		t.Error("local hit must not call the generator")
	}
}

// TestGetAdviceNameVariants verifies label normalization onto knowledge
// base keys.
func TestGetAdviceNameVariants(t *testing.T) {
	svc := NewService(nil, discardLogger())

	for _, label := range []string{
		"Tomato Late Blight",
		"late_blight",
		"LATE BLIGHT",
		"potato late blight disease",
	} {
		rec := svc.GetAdvice(context.Background(), label)
		if rec.Source != types.AdviceSourceLocal {
			t.Errorf("GetAdvice(%q) source = %q, want local", label, rec.Source)
		}
	}
}

func TestGetAdviceGenerated(t *testing.T) {
	gen := &mockGenerator{
		generateFn: func(ctx context.Context, diseaseName string) (string, error) {
			if _, ok := ctx.Deadline(); !ok {
				t.Error("generation call should carry a deadline")
			}
			return " generated guidance for " + diseaseName + " ", nil
		},
	}
	svc := NewService(gen, discardLogger())

	rec := svc.GetAdvice(context.Background(), "rare stem rot")
	if rec.Source != types.AdviceSourceGenerated || rec.ConfidenceTier != types.TierMedium {
		t.Errorf("source/tier = %q/%q, want generated/medium", rec.Source, rec.ConfidenceTier)
	}
	if rec.Summary != "generated guidance for rare stem rot" {
		t.Errorf("summary = %q, want trimmed generator output", rec.Summary)
	}
}

// TestGetAdviceGeneratorFailure verifies silent fall-through to the
// generic tier on any generation failure.
func TestGetAdviceGeneratorFailure(t *testing.T) {
	cases := []struct {
		name string
		fn   func(ctx context.Context, diseaseName string) (string, error)
	}{
		{"error", func(ctx context.Context, d string) (string, error) {
			return "", errors.New("upstream timeout")
		}},
		{"empty response", func(ctx context.Context, d string) (string, error) {
			return "   ", nil
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := NewService(&mockGenerator{generateFn: tc.fn}, discardLogger())
			rec := svc.GetAdvice(context.Background(), "rare stem rot")
			if rec.Source != types.AdviceSourceGeneric || rec.ConfidenceTier != types.TierLow {
				t.Errorf("source/tier = %q/%q, want generic/low", rec.Source, rec.ConfidenceTier)
			}
			if !strings.Contains(rec.Summary, "rare stem rot") {
				t.Errorf("generic summary should name the disease: %q", rec.Summary)
			}
		})
	}
}

func TestGetAdviceNoGenerator(t *testing.T) {
	svc := NewService(nil, discardLogger())

	rec := svc.GetAdvice(context.Background(), "unmapped disease")
	if rec.Source != types.AdviceSourceGeneric {
		t.Errorf("source = %q, want generic when no generator configured", rec.Source)
	}
	if !strings.Contains(rec.Summary, "General recommendations for unmapped disease") {
		t.Errorf("unexpected generic summary: %q", rec.Summary)
	}
}
