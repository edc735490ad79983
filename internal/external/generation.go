package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"croplens/internal/types"
)

// generationAPIBase is the default hosted inference API base URL.
// Overridable in tests via GenerationClientConfig.BaseURL.
const generationAPIBase = "https://api-inference.huggingface.co"

// generationDefaultModel is the instruction-tuned model used for advice text.
const generationDefaultModel = "mistralai/Mistral-7B-Instruct-v0.1"

// GenerationClientConfig holds the configuration for creating a
// GenerationHTTPClient.
type GenerationClientConfig struct {
	APIKey  string
	Model   string // Defaults to generationDefaultModel
	BaseURL string // Override for testing; defaults to generationAPIBase
	Logger  *slog.Logger
}

// generationRequest is the body sent to the hosted inference endpoint.
type generationRequest struct {
	Inputs     string               `json:"inputs"`
	Parameters generationParameters `json:"parameters"`
}

type generationParameters struct {
	MaxNewTokens   int     `json:"max_new_tokens"`
	Temperature    float64 `json:"temperature"`
	ReturnFullText bool    `json:"return_full_text"`
}

// generationResult is one element of the inference response array.
type generationResult struct {
	GeneratedText string `json:"generated_text"`
}

// GenerationHTTPClient implements types.AdviceGenerator against a hosted
// text-generation inference API through BaseClient.
type GenerationHTTPClient struct {
	base    *BaseClient
	apiKey  string
	model   string
	baseURL string
	logger  *slog.Logger
}

// NewGenerationClient creates a new GenerationHTTPClient. The httpClient
// timeout should match the advice generation budget (30 seconds).
func NewGenerationClient(
	httpClient *http.Client,
	cfg GenerationClientConfig,
) *GenerationHTTPClient {
	base := NewBaseClient(
		httpClient,
		"generation",
		RetryPolicy{
			MaxRetries: 1,
			MinWait:    1 * time.Second,
			MaxWait:    5 * time.Second,
		},
		"CropLens/1.0",
	)

	return NewGenerationClientWithBase(base, cfg)
}

// NewGenerationClientWithBase creates a GenerationHTTPClient with a
// pre-configured BaseClient.
func NewGenerationClientWithBase(
	base *BaseClient,
	cfg GenerationClientConfig,
) *GenerationHTTPClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = generationAPIBase
	}

	model := cfg.Model
	if model == "" {
		model = generationDefaultModel
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &GenerationHTTPClient{
		base:    base,
		apiKey:  cfg.APIKey,
		model:   model,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
	}
}

// Generate produces practical farming advice for the named disease. The
// instruction prompt is fixed; callers only supply the disease name.
func (c *GenerationHTTPClient) Generate(ctx context.Context, diseaseName string) (string, error) {
	if diseaseName == "" {
		return "", types.NewAppError(
			types.ErrCodeValidationMissingField,
			"disease name is required for advice generation",
			nil,
		)
	}

	prompt := fmt.Sprintf(`Provide practical farming advice for %s. Include:
1. Symptoms to identify
2. Treatment options
3. Prevention methods
Keep it simple and actionable for farmers.`, diseaseName)

	bodyBytes, err := json.Marshal(generationRequest{
		Inputs: fmt.Sprintf("[INST] %s [/INST]", prompt),
		Parameters: generationParameters{
			MaxNewTokens:   300,
			Temperature:    0.3,
			ReturnFullText: false,
		},
	})
	if err != nil {
		return "", types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to serialize generation request",
			err,
		)
	}

	url := fmt.Sprintf("%s/models/%s", c.baseURL, c.model)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to create generation request",
			err,
		)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	c.logger.InfoContext(ctx, "generating advice text",
		"disease", diseaseName,
		"model", c.model,
	)

	resp, err := c.base.Do(req)
	if err != nil {
		return "", c.wrapError("Generate", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", c.handleErrorResponse(resp, "Generate")
	}

	var results []generationResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return "", types.NewAppError(
			types.ErrCodeUpstreamMalformed,
			"failed to decode generation response",
			err,
		)
	}

	if len(results) == 0 {
		return "", types.NewAppError(
			types.ErrCodeUpstreamGeneration,
			"generation returned no candidates",
			nil,
		)
	}

	text := strings.TrimSpace(results[0].GeneratedText)

	c.logger.InfoContext(ctx, "advice text generated",
		"disease", diseaseName,
		"length", len(text),
	)

	return text, nil
}

// handleErrorResponse reads and logs the error body from a non-2xx response,
// then returns an appropriate AppError.
func (c *GenerationHTTPClient) handleErrorResponse(resp *http.Response, operation string) *types.AppError {
	bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	bodyStr := string(bodyBytes)

	c.logger.Error("generation API error",
		"operation", operation,
		"status_code", resp.StatusCode,
		"response_body", bodyStr,
	)

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return types.NewAppError(
			types.ErrCodeUpstreamGeneration,
			"generation authentication failed (401)",
			fmt.Errorf("generation %s returned 401: %s", operation, bodyStr),
		)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return types.NewAppError(
			types.ErrCodeUpstreamGeneration,
			fmt.Sprintf("generation client error (%d): %s", resp.StatusCode, operation),
			fmt.Errorf("generation %s returned %d: %s", operation, resp.StatusCode, bodyStr),
		)
	default:
		return types.NewAppError(
			types.ErrCodeUpstreamGeneration,
			fmt.Sprintf("generation server error (%d): %s", resp.StatusCode, operation),
			fmt.Errorf("generation %s returned %d: %s", operation, resp.StatusCode, bodyStr),
		)
	}
}

// wrapError converts errors from BaseClient.Do into generation errors.
func (c *GenerationHTTPClient) wrapError(operation string, err error) error {
	var appErr *types.AppError
	if ok := isAppError(err, &appErr); ok {
		return types.NewAppError(
			appErr.Code,
			fmt.Sprintf("generation %s: %s", operation, appErr.Message),
			appErr.Err,
		)
	}

	return types.NewAppError(
		types.ErrCodeUpstreamGeneration,
		fmt.Sprintf("generation %s failed", operation),
		err,
	)
}

// Compile-time interface compliance check.
var _ types.AdviceGenerator = (*GenerationHTTPClient)(nil)
