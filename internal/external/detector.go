package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"croplens/internal/types"
)

// DefaultConfidenceThreshold is the minimum confidence for a detection to be
// kept. Detections below this are noise from the model head and are dropped
// client-side even if the service returns them.
const DefaultConfidenceThreshold = 0.25

// DetectorClientConfig holds the configuration for creating a DetectorHTTPClient.
type DetectorClientConfig struct {
	APIKey              string
	BaseURL             string
	ConfidenceThreshold float64 // Defaults to DefaultConfidenceThreshold when zero
	Logger              *slog.Logger
}

// detectRequest is the body sent to the detector /v1/detect endpoint.
type detectRequest struct {
	ImageRef            string  `json:"image_ref"`
	ConfidenceThreshold float64 `json:"confidence_threshold"`
}

// detectResponse is the response from the detector /v1/detect endpoint.
type detectResponse struct {
	Detections []detectionPayload `json:"detections"`
	ModelID    string             `json:"model_id"`
}

type detectionPayload struct {
	Label       string            `json:"label"`
	Confidence  float64           `json:"confidence"`
	BoundingBox types.BoundingBox `json:"bounding_box"`
}

// DetectorHTTPClient implements types.Detector against the disease detection
// inference service through BaseClient, so every request goes through the
// shared resilience layer (circuit breaker, retries, error mapping).
type DetectorHTTPClient struct {
	base      *BaseClient
	apiKey    string
	baseURL   string
	threshold float64
	logger    *slog.Logger
}

// NewDetectorClient creates a new DetectorHTTPClient. The httpClient timeout
// should cover a full inference round trip (30 seconds is a safe default).
func NewDetectorClient(
	httpClient *http.Client,
	cfg DetectorClientConfig,
) *DetectorHTTPClient {
	base := NewBaseClient(
		httpClient,
		"detector",
		RetryPolicy{
			MaxRetries: 2,
			MinWait:    1 * time.Second,
			MaxWait:    10 * time.Second,
		},
		"CropLens/1.0",
	)

	return NewDetectorClientWithBase(base, cfg)
}

// NewDetectorClientWithBase creates a DetectorHTTPClient with a pre-configured
// BaseClient. Tests use this to disable retries or inject a breaker.
func NewDetectorClientWithBase(
	base *BaseClient,
	cfg DetectorClientConfig,
) *DetectorHTTPClient {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	threshold := cfg.ConfidenceThreshold
	if threshold <= 0 {
		threshold = DefaultConfidenceThreshold
	}

	return &DetectorHTTPClient{
		base:      base,
		apiKey:    cfg.APIKey,
		baseURL:   strings.TrimSuffix(cfg.BaseURL, "/"),
		threshold: threshold,
		logger:    logger,
	}
}

// Detect runs disease detection on the referenced image. It POSTs to
// /v1/detect, drops detections below the confidence threshold, fills in the
// relative area from the bounding box, and returns the survivors sorted by
// confidence descending.
func (c *DetectorHTTPClient) Detect(ctx context.Context, imageRef string) ([]types.Detection, error) {
	if imageRef == "" {
		return nil, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"image reference is required for detection",
			nil,
		)
	}

	bodyBytes, err := json.Marshal(detectRequest{
		ImageRef:            imageRef,
		ConfidenceThreshold: c.threshold,
	})
	if err != nil {
		return nil, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to serialize detection request",
			err,
		)
	}

	url := fmt.Sprintf("%s/v1/detect", c.baseURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to create detection request",
			err,
		)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	c.logger.InfoContext(ctx, "running disease detection",
		"image_ref", imageRef,
		"confidence_threshold", c.threshold,
	)

	resp, err := c.base.Do(req)
	if err != nil {
		return nil, c.wrapError("Detect", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, c.handleErrorResponse(resp, "Detect")
	}

	var detResp detectResponse
	if err := json.NewDecoder(resp.Body).Decode(&detResp); err != nil {
		return nil, types.NewAppError(
			types.ErrCodeUpstreamMalformed,
			"failed to decode detection response",
			err,
		)
	}

	detections := make([]types.Detection, 0, len(detResp.Detections))
	for _, d := range detResp.Detections {
		if d.Confidence < c.threshold {
			continue
		}
		det := types.Detection{
			Label:       d.Label,
			Confidence:  d.Confidence,
			BoundingBox: d.BoundingBox,
			Area:        d.BoundingBox.Width * d.BoundingBox.Height,
		}
		if err := types.ValidateDetection(det); err != nil {
			c.logger.WarnContext(ctx, "dropping malformed detection",
				"label", d.Label,
				"error", err,
			)
			continue
		}
		detections = append(detections, det)
	}

	sort.SliceStable(detections, func(i, j int) bool {
		return detections[i].Confidence > detections[j].Confidence
	})

	c.logger.InfoContext(ctx, "disease detection complete",
		"image_ref", imageRef,
		"model_id", detResp.ModelID,
		"detection_count", len(detections),
	)

	return detections, nil
}

// handleErrorResponse reads and logs the error body from a non-2xx response,
// then returns an appropriate AppError.
func (c *DetectorHTTPClient) handleErrorResponse(resp *http.Response, operation string) *types.AppError {
	bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	bodyStr := string(bodyBytes)

	c.logger.Error("detector API error",
		"operation", operation,
		"status_code", resp.StatusCode,
		"response_body", bodyStr,
	)

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return types.NewAppError(
			types.ErrCodeUpstreamDetector,
			"detector authentication failed (401)",
			fmt.Errorf("detector %s returned 401: %s", operation, bodyStr),
		)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return types.NewAppError(
			types.ErrCodeUpstreamDetector,
			fmt.Sprintf("detector client error (%d): %s", resp.StatusCode, operation),
			fmt.Errorf("detector %s returned %d: %s", operation, resp.StatusCode, bodyStr),
		)
	default:
		return types.NewAppError(
			types.ErrCodeUpstreamDetector,
			fmt.Sprintf("detector server error (%d): %s", resp.StatusCode, operation),
			fmt.Errorf("detector %s returned %d: %s", operation, resp.StatusCode, bodyStr),
		)
	}
}

// wrapError converts errors from BaseClient.Do into detector errors.
func (c *DetectorHTTPClient) wrapError(operation string, err error) error {
	var appErr *types.AppError
	if ok := isAppError(err, &appErr); ok {
		return types.NewAppError(
			appErr.Code,
			fmt.Sprintf("detector %s: %s", operation, appErr.Message),
			appErr.Err,
		)
	}

	return types.NewAppError(
		types.ErrCodeUpstreamDetector,
		fmt.Sprintf("detector %s failed", operation),
		err,
	)
}

// Compile-time interface compliance check.
var _ types.Detector = (*DetectorHTTPClient)(nil)
