package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"croplens/internal/core"
	"croplens/internal/scoring"
	"croplens/internal/types"
)

// CatalogResponse summarizes the classification table and the sensor
// constraint table for API consumers.
type CatalogResponse struct {
	Diseases     []types.DiseaseRecord                    `json:"diseases"`
	TotalEntries int                                      `json:"total_entries"`
	SensorBounds map[types.SensorParam]types.SensorBounds `json:"sensor_bounds"`
}

// CatalogHandler serves read-only views over the static classification data.
type CatalogHandler struct {
	catalog *scoring.Catalog
}

// NewCatalogHandler creates a CatalogHandler over the given catalog.
func NewCatalogHandler(catalog *scoring.Catalog) *CatalogHandler {
	return &CatalogHandler{catalog: catalog}
}

// RegisterRoutes mounts catalog routes on the provided chi.Router.
func (h *CatalogHandler) RegisterRoutes(r chi.Router) {
	r.Get("/catalog/diseases", h.ListDiseases)
}

// ListDiseases handles GET /v1/catalog/diseases. The table is static, so the
// response is fully deterministic and safe to cache.
func (h *CatalogHandler) ListDiseases(w http.ResponseWriter, r *http.Request) {
	records := h.catalog.Records()

	core.JSON(w, r, http.StatusOK, CatalogResponse{
		Diseases:     records,
		TotalEntries: len(records),
		SensorBounds: types.StandardSensorBounds,
	}, nil)
}
