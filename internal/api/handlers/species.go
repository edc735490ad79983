package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"croplens/internal/core"
	"croplens/internal/types"
)

// IdentifySpeciesRequest is the request body for POST /v1/species/identify.
type IdentifySpeciesRequest struct {
	ImageRef string `json:"image_ref" validate:"required,max=512"`
}

// SpeciesHandler exposes standalone plant identification. The result is
// decorative and never feeds into scoring.
type SpeciesHandler struct {
	identifier types.SpeciesIdentifier
	validator  *core.Validator
	logger     *slog.Logger
}

// NewSpeciesHandler creates a SpeciesHandler with the provided dependencies.
// identifier may be nil when no species provider is configured; requests
// then fail with an upstream error.
func NewSpeciesHandler(identifier types.SpeciesIdentifier, v *core.Validator, l *slog.Logger) *SpeciesHandler {
	if l == nil {
		l = slog.Default()
	}
	return &SpeciesHandler{identifier: identifier, validator: v, logger: l}
}

// RegisterRoutes mounts species routes on the provided chi.Router.
func (h *SpeciesHandler) RegisterRoutes(r chi.Router) {
	r.Post("/species/identify", h.Identify)
}

// Identify handles POST /v1/species/identify.
func (h *SpeciesHandler) Identify(w http.ResponseWriter, r *http.Request) {
	if h.identifier == nil {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeUpstreamSpecies,
			"species identification is not configured",
			nil,
		))
		return
	}

	var req IdentifySpeciesRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	if !strings.HasPrefix(req.ImageRef, "http://") &&
		!strings.HasPrefix(req.ImageRef, "https://") && !strings.HasPrefix(req.ImageRef, "s3://") {
		core.Error(w, r, types.NewAppErrorWithDetails(
			types.ErrCodeValidationImageRef,
			"image_ref must be an http(s) or s3 URL",
			nil,
			map[string]any{"image_ref": req.ImageRef},
		))
		return
	}

	result, err := h.identifier.Identify(r.Context(), req.ImageRef)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, result, nil)
}
