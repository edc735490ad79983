// Package handlers contains the HTTP handler implementations for the CropLens API.
//
// This file implements the assessment handler:
//   - Create (detector-output scoring, optional species identification)
//   - Get, cursor-paginated List
//   - Advice for a stored assessment's top-ranked issue
//   - Route registration
package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"croplens/internal/assessments"
	"croplens/internal/core"
	"croplens/internal/db"
	"croplens/internal/types"
)

// --- Request/Response Models ---

// CreateAssessmentRequest is the request body for POST /v1/assessments.
// Detections and ImageRef are alternatives: with no detections the detector
// is invoked against the image reference.
type CreateAssessmentRequest struct {
	Detections     []types.Detection    `json:"detections,omitempty" validate:"max=100,dive"`
	Sensor         *types.SensorReading `json:"sensor,omitempty"`
	Crop           string               `json:"crop,omitempty" validate:"omitempty,max=64"`
	ImageRef       string               `json:"image_ref,omitempty" validate:"omitempty,max=512"`
	IncludeSpecies bool                 `json:"include_species,omitempty"`
}

// --- Handler ---

// AssessmentHandler exposes the assessment pipeline over HTTP.
type AssessmentHandler struct {
	svc       assessments.Service
	validator *core.Validator
	logger    *slog.Logger
}

// NewAssessmentHandler creates an AssessmentHandler with the provided dependencies.
func NewAssessmentHandler(svc assessments.Service, v *core.Validator, l *slog.Logger) *AssessmentHandler {
	if l == nil {
		l = slog.Default()
	}
	return &AssessmentHandler{svc: svc, validator: v, logger: l}
}

// RegisterRoutes mounts assessment routes on the provided chi.Router.
func (h *AssessmentHandler) RegisterRoutes(r chi.Router) {
	r.Route("/assessments", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Get("/", h.List)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.Get)
			r.Get("/advice", h.GetAdvice)
		})
	})
}

// --- Handler Methods ---

// Create handles POST /v1/assessments.
//
//  1. Decode and validate the request body.
//  2. Check detections and sensor values against the constraint tables.
//  3. Run the assessment pipeline (detector fetch when no detections were
//     supplied, scoring, optional species identification, persistence).
//  4. Return 201 Created with the stored assessment.
func (h *AssessmentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateAssessmentRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	if err := validateAssessmentInput(&req); err != nil {
		core.Error(w, r, err)
		return
	}

	// Source injection: the issuing key's source tag travels with the record.
	source := ""
	if actor, ok := types.GetActor(r.Context()); ok {
		source = actor.Source
	}

	assessment, err := h.svc.Create(r.Context(), assessments.CreateInput{
		Detections:     req.Detections,
		Sensor:         req.Sensor,
		Crop:           strings.ToLower(strings.TrimSpace(req.Crop)),
		ImageRef:       req.ImageRef,
		IncludeSpecies: req.IncludeSpecies,
		Source:         source,
	})
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusCreated, assessment, nil)
}

// Get handles GET /v1/assessments/{id}.
func (h *AssessmentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"assessment ID is required",
			nil,
		))
		return
	}

	assessment, err := h.svc.Get(r.Context(), id)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, assessment, nil)
}

// List handles GET /v1/assessments.
//
// Supports cursor pagination (limit 1..100, default 20) plus crop and
// risk_level filters. Results are newest first.
func (h *AssessmentHandler) List(w http.ResponseWriter, r *http.Request) {
	params := db.ListAssessmentsParams{
		Limit: types.DefaultListLimit,
	}

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 1 || limit > types.MaxListLimit {
			core.Error(w, r, types.NewAppError(
				types.ErrCodeValidationInvalidBody,
				"limit must be a number between 1 and 100",
				nil,
			))
			return
		}
		params.Limit = limit
	}

	params.Cursor = r.URL.Query().Get("cursor")
	params.Crop = strings.ToLower(strings.TrimSpace(r.URL.Query().Get("crop")))

	if rl := r.URL.Query().Get("risk_level"); rl != "" {
		level := types.RiskLevel(rl)
		switch level {
		case types.RiskLow, types.RiskMedium, types.RiskHigh, types.RiskCritical:
			params.RiskLevel = level
		default:
			core.Error(w, r, types.NewAppErrorWithDetails(
				types.ErrCodeValidationInvalidBody,
				"risk_level must be one of: low, medium, high, critical",
				nil,
				map[string]any{"risk_level": rl},
			))
			return
		}
	}

	items, pageInfo, err := h.svc.List(r.Context(), params)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	if items == nil {
		items = []*types.Assessment{}
	}

	core.JSON(w, r, http.StatusOK, items, &types.ResponseMeta{
		Pagination: &pageInfo,
	})
}

// GetAdvice handles GET /v1/assessments/{id}/advice. Guidance targets the
// stored assessment's top-ranked issue; assessments without issues receive
// the canned healthy-crop guidance.
func (h *AssessmentHandler) GetAdvice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"assessment ID is required",
			nil,
		))
		return
	}

	record, err := h.svc.AdviceFor(r.Context(), id)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, record, nil)
}

// --- Helper Functions ---

// validateAssessmentInput applies the constraint-table checks that struct
// tags cannot express: per-detection box and confidence ranges, sensor value
// plausibility, the batch size cap, and the detections/image_ref alternative.
func validateAssessmentInput(req *CreateAssessmentRequest) error {
	if len(req.Detections) == 0 && req.ImageRef == "" {
		return types.NewAppError(
			types.ErrCodeValidationMissingField,
			"either detections or image_ref must be provided",
			nil,
		)
	}

	if len(req.Detections) > types.MaxDetectionsPerRequest {
		return types.NewAppErrorWithDetails(
			types.ErrCodeValidationBatchSize,
			"too many detections in a single request",
			nil,
			map[string]any{
				"count": len(req.Detections),
				"max":   types.MaxDetectionsPerRequest,
			},
		)
	}

	if req.ImageRef != "" && !strings.HasPrefix(req.ImageRef, "http://") &&
		!strings.HasPrefix(req.ImageRef, "https://") && !strings.HasPrefix(req.ImageRef, "s3://") {
		return types.NewAppErrorWithDetails(
			types.ErrCodeValidationImageRef,
			"image_ref must be an http(s) or s3 URL",
			nil,
			map[string]any{"image_ref": req.ImageRef},
		)
	}

	for i, d := range req.Detections {
		if err := types.ValidateDetection(d); err != nil {
			code, msg := splitValidationError(err, types.ErrCodeValidationInvalidBody)
			return types.NewAppErrorWithDetails(code, msg, nil, map[string]any{"index": i})
		}
	}

	if err := types.ValidateSensorReading(req.Sensor); err != nil {
		code, msg := splitValidationError(err, types.ErrCodeValidationSensorRange)
		return types.NewAppError(code, msg, nil)
	}

	return nil
}

// splitValidationError separates the "code: message" form produced by the
// types validation helpers. The fallback code is used when the message does
// not carry one.
func splitValidationError(err error, fallback types.ErrorCode) (types.ErrorCode, string) {
	msg := err.Error()
	if idx := strings.Index(msg, ": "); idx > 0 {
		return types.ErrorCode(msg[:idx]), msg[idx+2:]
	}
	return fallback, msg
}
