package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"croplens/internal/core"
	"croplens/internal/types"
)

// AdviceProvider resolves a disease label to guidance. Mirrors the
// advice.Service contract; resolution is total and never returns an error.
type AdviceProvider interface {
	GetAdvice(ctx context.Context, diseaseLabel string) types.AdviceRecord
}

// AdviceHandler serves direct disease-guidance lookups.
type AdviceHandler struct {
	provider AdviceProvider
	logger   *slog.Logger
}

// NewAdviceHandler creates an AdviceHandler with the provided dependencies.
func NewAdviceHandler(provider AdviceProvider, l *slog.Logger) *AdviceHandler {
	if l == nil {
		l = slog.Default()
	}
	return &AdviceHandler{provider: provider, logger: l}
}

// RegisterRoutes mounts advice routes on the provided chi.Router.
func (h *AdviceHandler) RegisterRoutes(r chi.Router) {
	r.Get("/advice/{disease}", h.Get)
}

// Get handles GET /v1/advice/{disease}. The label is free-form; the provider
// falls back through its resolution tiers, so the lookup always succeeds for
// any syntactically valid label.
func (h *AdviceHandler) Get(w http.ResponseWriter, r *http.Request) {
	disease := strings.TrimSpace(chi.URLParam(r, "disease"))
	if disease == "" {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"disease label is required",
			nil,
		))
		return
	}

	if len(disease) > types.MaxLabelLength {
		core.Error(w, r, types.NewAppErrorWithDetails(
			types.ErrCodeValidationInvalidBody,
			"disease label is too long",
			nil,
			map[string]any{"max_length": types.MaxLabelLength},
		))
		return
	}

	record := h.provider.GetAdvice(r.Context(), disease)
	core.JSON(w, r, http.StatusOK, record, nil)
}
