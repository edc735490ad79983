package external

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"croplens/internal/types"
)

// plantNetAPIBase is the default PlantNet identification API base URL.
// Overridable in tests via SpeciesClientConfig.BaseURL.
const plantNetAPIBase = "https://my-api.plantnet.org/v2"

// speciesProjects are the PlantNet reference floras tried in order. The first
// project that answers 200 wins; the rest exist because not every flora covers
// every region.
var speciesProjects = []string{"all", "weurope", "useful", "k-world-flora", "the-plant-list"}

// SpeciesClientConfig holds the configuration for creating a SpeciesHTTPClient.
type SpeciesClientConfig struct {
	APIKey  string
	BaseURL string // Override for testing; defaults to plantNetAPIBase
	Logger  *slog.Logger
}

// plantNetResponse mirrors the subset of the PlantNet v2 response we consume.
type plantNetResponse struct {
	Results []plantNetResult `json:"results"`
}

type plantNetResult struct {
	Score   float64         `json:"score"`
	Species plantNetSpecies `json:"species"`
}

type plantNetSpecies struct {
	ScientificNameWithoutAuthor string        `json:"scientificNameWithoutAuthor"`
	ScientificName              string        `json:"scientificName"`
	CommonNames                 []string      `json:"commonNames"`
	Family                      plantNetTaxon `json:"family"`
	Genus                       plantNetTaxon `json:"genus"`
}

type plantNetTaxon struct {
	ScientificNameWithoutAuthor string `json:"scientificNameWithoutAuthor"`
	ScientificName              string `json:"scientificName"`
}

func (t plantNetTaxon) name() string {
	if t.ScientificNameWithoutAuthor != "" {
		return t.ScientificNameWithoutAuthor
	}
	return t.ScientificName
}

// SpeciesHTTPClient implements types.SpeciesIdentifier against the PlantNet
// identification API through BaseClient. Identification is best-effort: when
// every project fails, Identify returns an "Unknown species" placeholder
// rather than an error, so assessment creation never fails on species lookup.
type SpeciesHTTPClient struct {
	base    *BaseClient
	apiKey  string
	baseURL string
	logger  *slog.Logger
}

// NewSpeciesClient creates a new SpeciesHTTPClient.
func NewSpeciesClient(
	httpClient *http.Client,
	cfg SpeciesClientConfig,
) *SpeciesHTTPClient {
	base := NewBaseClient(
		httpClient,
		"species",
		RetryPolicy{
			MaxRetries: 1,
			MinWait:    1 * time.Second,
			MaxWait:    5 * time.Second,
		},
		"CropLens/1.0",
	)

	return NewSpeciesClientWithBase(base, cfg)
}

// NewSpeciesClientWithBase creates a SpeciesHTTPClient with a pre-configured
// BaseClient.
func NewSpeciesClientWithBase(
	base *BaseClient,
	cfg SpeciesClientConfig,
) *SpeciesHTTPClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = plantNetAPIBase
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &SpeciesHTTPClient{
		base:    base,
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
	}
}

// Identify resolves the plant species for the referenced image. It walks the
// project list until one answers, then maps the best-scoring results into a
// SpeciesResult with a confidence tier derived from the raw score.
func (c *SpeciesHTTPClient) Identify(ctx context.Context, imageRef string) (*types.SpeciesResult, error) {
	if imageRef == "" {
		return nil, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"image reference is required for species identification",
			nil,
		)
	}

	for _, project := range speciesProjects {
		result, err := c.identifyWithProject(ctx, project, imageRef)
		if err != nil {
			if ctx.Err() != nil {
				return nil, c.wrapError("Identify", err)
			}
			c.logger.DebugContext(ctx, "species project failed",
				"project", project,
				"error", err,
			)
			continue
		}

		c.logger.InfoContext(ctx, "species identified",
			"project", project,
			"scientific_name", result.ScientificName,
			"score", result.Score,
			"confidence", string(result.ConfidenceTier),
		)
		return result, nil
	}

	c.logger.WarnContext(ctx, "all species projects failed, using fallback",
		"image_ref", imageRef,
	)
	return UnknownSpecies(), nil
}

func (c *SpeciesHTTPClient) identifyWithProject(ctx context.Context, project, imageRef string) (*types.SpeciesResult, error) {
	endpoint := fmt.Sprintf("%s/identify/%s?api-key=%s", c.baseURL, project, url.QueryEscape(c.apiKey))

	form := url.Values{}
	form.Set("images", imageRef)
	form.Set("organs", "auto")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to create species identification request",
			err,
		)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.base.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, c.handleErrorResponse(resp, project)
	}

	var pnResp plantNetResponse
	if err := json.NewDecoder(resp.Body).Decode(&pnResp); err != nil {
		return nil, types.NewAppError(
			types.ErrCodeUpstreamMalformed,
			"failed to decode species identification response",
			err,
		)
	}

	if len(pnResp.Results) == 0 {
		return nil, types.NewAppError(
			types.ErrCodeUpstreamSpecies,
			fmt.Sprintf("species project %s returned no results", project),
			nil,
		)
	}

	sort.SliceStable(pnResp.Results, func(i, j int) bool {
		return pnResp.Results[i].Score > pnResp.Results[j].Score
	})

	best := pnResp.Results[0]
	result := &types.SpeciesResult{
		ScientificName: scientificNameOf(best.Species),
		CommonNames:    best.Species.CommonNames,
		Family:         best.Species.Family.name(),
		Genus:          best.Species.Genus.name(),
		Score:          best.Score,
		ConfidenceTier: ConfidenceTierForScore(best.Score),
	}

	for _, alt := range pnResp.Results[1:] {
		result.Alternatives = append(result.Alternatives, types.SpeciesMatch{
			ScientificName: scientificNameOf(alt.Species),
			Score:          alt.Score,
		})
	}

	return result, nil
}

func scientificNameOf(s plantNetSpecies) string {
	if s.ScientificNameWithoutAuthor != "" {
		return s.ScientificNameWithoutAuthor
	}
	if s.ScientificName != "" {
		return s.ScientificName
	}
	return "Unknown species"
}

// ConfidenceTierForScore maps a raw identification score to a confidence tier.
func ConfidenceTierForScore(score float64) types.ConfidenceTier {
	switch {
	case score >= 0.7:
		return types.TierHigh
	case score >= 0.4:
		return types.TierMedium
	case score >= 0.1:
		return types.TierLow
	default:
		return types.TierVeryLow
	}
}

// UnknownSpecies is the placeholder result returned when identification fails
// across every project.
func UnknownSpecies() *types.SpeciesResult {
	return &types.SpeciesResult{
		ScientificName: "Unknown species",
		CommonNames:    []string{"Unknown plant"},
		Family:         "Unknown",
		Genus:          "Unknown",
		Score:          0.0,
		ConfidenceTier: types.TierVeryLow,
	}
}

// handleErrorResponse reads and logs the error body from a non-2xx response,
// then returns an appropriate AppError.
func (c *SpeciesHTTPClient) handleErrorResponse(resp *http.Response, project string) *types.AppError {
	bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	bodyStr := string(bodyBytes)

	c.logger.Error("species API error",
		"project", project,
		"status_code", resp.StatusCode,
		"response_body", bodyStr,
	)

	return types.NewAppError(
		types.ErrCodeUpstreamSpecies,
		fmt.Sprintf("species project %s returned %d", project, resp.StatusCode),
		fmt.Errorf("species identify (%s) returned %d: %s", project, resp.StatusCode, bodyStr),
	)
}

// wrapError converts errors from BaseClient.Do into species errors.
func (c *SpeciesHTTPClient) wrapError(operation string, err error) error {
	var appErr *types.AppError
	if ok := isAppError(err, &appErr); ok {
		return types.NewAppError(
			appErr.Code,
			fmt.Sprintf("species %s: %s", operation, appErr.Message),
			appErr.Err,
		)
	}

	return types.NewAppError(
		types.ErrCodeUpstreamSpecies,
		fmt.Sprintf("species %s failed", operation),
		err,
	)
}

// Compile-time interface compliance check.
var _ types.SpeciesIdentifier = (*SpeciesHTTPClient)(nil)
