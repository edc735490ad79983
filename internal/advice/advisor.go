// Package advice implements the advisory guidance lookup: a static
// knowledge base first, an external text-generation fallback when
// configured, and a generic templated block when everything else misses.
// Advice is decorative; it never blocks or influences scoring.
package advice

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"croplens/internal/types"
)

// GenerationTimeout bounds the single external generation call. On expiry
// the resolution chain falls through to the generic tier.
const GenerationTimeout = 30 * time.Second

// Service resolves a disease label to descriptive guidance.
type Service interface {
	GetAdvice(ctx context.Context, diseaseLabel string) types.AdviceRecord
}

type service struct {
	generator types.AdviceGenerator // nil when no credential is configured
	logger    *slog.Logger
}

// NewService creates the advice service. generator may be nil, in which
// case the generated tier is skipped entirely. A nil logger defaults to
// slog.Default().
func NewService(generator types.AdviceGenerator, logger *slog.Logger) Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &service{generator: generator, logger: logger}
}

// GetAdvice resolves guidance for a disease label. It is total: every
// failure falls through to the next tier and the generic block always
// succeeds.
func (s *service) GetAdvice(ctx context.Context, diseaseLabel string) types.AdviceRecord {
	if summary, ok := knowledgeBase[simplifyName(diseaseLabel)]; ok {
		return types.AdviceRecord{
			DiseaseName:    diseaseLabel,
			Summary:        summary,
			ConfidenceTier: types.TierHigh,
			Source:         types.AdviceSourceLocal,
		}
	}

	if s.generator != nil {
		genCtx, cancel := context.WithTimeout(ctx, GenerationTimeout)
		defer cancel()

		summary, err := s.generator.Generate(genCtx, diseaseLabel)
		if err == nil && strings.TrimSpace(summary) != "" {
			return types.AdviceRecord{
				DiseaseName:    diseaseLabel,
				Summary:        strings.TrimSpace(summary),
				ConfidenceTier: types.TierMedium,
				Source:         types.AdviceSourceGenerated,
			}
		}
		if err != nil {
			s.logger.Warn("advice generation failed, using generic guidance",
				"disease", diseaseLabel, "error", err)
		}
	}

	return types.AdviceRecord{
		DiseaseName:    diseaseLabel,
		Summary:        genericAdvice(diseaseLabel),
		ConfidenceTier: types.TierLow,
		Source:         types.AdviceSourceGeneric,
	}
}

var whitespaceRe = regexp.MustCompile(`\s+`)

// simplifyName normalizes a label to a knowledge base key and folds known
// variants onto their canonical entries.
func simplifyName(label string) string {
	simplified := strings.ToLower(strings.ReplaceAll(label, "_", " "))
	simplified = whitespaceRe.ReplaceAllString(strings.TrimSpace(simplified), "_")

	switch {
	case strings.Contains(simplified, "early_blight") || strings.Contains(simplified, "earlyblight"):
		return "early_blight"
	case strings.Contains(simplified, "late_blight") || strings.Contains(simplified, "lateblight"):
		return "late_blight"
	case strings.Contains(simplified, "bacterial_spot") || strings.Contains(simplified, "bacterialspot"):
		return "bacterial_spot"
	case strings.Contains(simplified, "powdery_mildew"):
		return "powdery_mildew"
	case strings.Contains(simplified, "spider_mite"):
		return "spider_mite"
	}
	return simplified
}

// knowledgeBase holds full-text guidance for the common diseases.
var knowledgeBase = map[string]string{
	"early_blight": formatAdvice(`
		Early blight is a common fungal disease affecting tomatoes and potatoes.
		Symptoms: Dark spots with concentric rings on leaves, yellowing.
		Treatment: Apply fungicide, improve air circulation, avoid overhead watering.
		Prevention: Use resistant varieties, crop rotation, proper spacing.`),

	"late_blight": formatAdvice(`
		Late blight is a serious disease that can destroy crops quickly.
		Symptoms: Water-soaked spots on leaves, white mold on undersides.
		Treatment: URGENT - Apply copper or mancozeb fungicide immediately.
		Prevention: Avoid wet conditions, destroy infected plants, use resistant varieties.`),

	"bacterial_spot": formatAdvice(`
		Bacterial spot affects tomatoes and peppers.
		Symptoms: Small dark spots on leaves and fruits.
		Treatment: Apply copper-based bactericide, remove infected material.
		Prevention: Use disease-free seeds, avoid overhead watering, good sanitation.`),

	"powdery_mildew": formatAdvice(`
		Powdery mildew appears as white powdery coating on leaves.
		Symptoms: White powder on leaf surfaces, stunted growth.
		Treatment: Apply sulfur or potassium bicarbonate spray.
		Prevention: Good air circulation, avoid overcrowding, resistant varieties.`),

	"spider_mite": formatAdvice(`
		Spider mites are tiny pests that cause stippling on leaves.
		Symptoms: Fine webbing, yellow stippling, leaf bronzing.
		Treatment: Apply miticide, increase humidity, release beneficial insects.
		Prevention: Avoid water stress, maintain humidity, regular monitoring.`),
}

// formatAdvice strips indentation and blank lines from a raw text block.
func formatAdvice(raw string) string {
	var lines []string
	for _, line := range strings.Split(raw, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	return strings.Join(lines, "\n")
}

// genericAdvice is the always-available fallback block.
func genericAdvice(diseaseLabel string) string {
	return formatAdvice(fmt.Sprintf(`
		General recommendations for %s:
		1. IDENTIFICATION: Monitor plants regularly for symptoms
		2. IMMEDIATE ACTION: Remove and destroy affected plant parts
		3. TREATMENT: Consult local agricultural extension for specific treatments
		4. PREVENTION: Improve air circulation, avoid overhead watering, practice crop rotation, use disease-resistant varieties, maintain proper plant spacing
		5. MONITORING: Check plants weekly for disease progression
		6. SANITATION: Keep growing area clean and free of plant debris
		For specific treatment recommendations, contact your local agricultural advisor.`, diseaseLabel))
}
