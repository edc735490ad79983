package external

import (
	"log/slog"
	"net/http"
	"time"

	"croplens/internal/config"
	"croplens/internal/types"
)

// ClientRegistry holds all external service clients. It is the single point
// of access for the rest of the application to reach the ML providers
// (disease detector, species identification, text generation).
type ClientRegistry struct {
	Detector  types.Detector
	Species   types.SpeciesIdentifier
	Generator types.AdviceGenerator
}

// NewClientRegistry initializes all external service clients.
// If cfg.IsTestMode is true or cfg.Environment is "local", the registry is
// populated with Stub implementations that log actions without requiring real
// credentials. Otherwise, real client implementations are initialized with
// strict timeouts per provider.
func NewClientRegistry(cfg *config.Config, logger *slog.Logger) *ClientRegistry {
	if logger == nil {
		logger = slog.Default()
	}

	useStubs := cfg.IsTestMode || cfg.Environment == "local"

	if useStubs {
		logger.Info("initializing external clients in STUB mode",
			"is_test_mode", cfg.IsTestMode,
			"environment", cfg.Environment,
		)
		return newStubRegistry(logger)
	}

	logger.Info("initializing external clients in PRODUCTION mode",
		"environment", cfg.Environment,
	)
	return newProductionRegistry(cfg, logger)
}

// newStubRegistry creates a ClientRegistry populated entirely with stub
// implementations. This allows the application to boot locally without any
// external service credentials.
func newStubRegistry(logger *slog.Logger) *ClientRegistry {
	stubLogger := logger.With("mode", "stub")

	return &ClientRegistry{
		Detector:  NewStubDetector(stubLogger),
		Species:   NewStubSpeciesIdentifier(stubLogger),
		Generator: NewStubAdviceGenerator(stubLogger),
	}
}

// newProductionRegistry creates a ClientRegistry with real client
// implementations configured with strict timeouts and resilience patterns.
func newProductionRegistry(cfg *config.Config, logger *slog.Logger) *ClientRegistry {
	reg := &ClientRegistry{}

	// Detection is on the synchronous assessment path; 30 seconds covers a
	// cold inference round trip.
	detectorHTTPClient := &http.Client{Timeout: 30 * time.Second}
	reg.Detector = NewDetectorClient(detectorHTTPClient, DetectorClientConfig{
		APIKey:              cfg.External.DetectorAPIKey.Unmask(),
		BaseURL:             cfg.External.DetectorBaseURL,
		ConfidenceThreshold: cfg.External.DetectorConfidenceThreshold,
		Logger:              logger.With("client", "detector"),
	})

	speciesHTTPClient := &http.Client{Timeout: 30 * time.Second}
	reg.Species = NewSpeciesClient(speciesHTTPClient, SpeciesClientConfig{
		APIKey:  cfg.External.SpeciesAPIKey.Unmask(),
		BaseURL: cfg.External.SpeciesBaseURL,
		Logger:  logger.With("client", "species"),
	})

	// Generation is optional; without a key the advice service falls back to
	// its generic template.
	if cfg.External.GenerationAPIKey.Unmask() != "" {
		generationHTTPClient := &http.Client{Timeout: 30 * time.Second}
		reg.Generator = NewGenerationClient(generationHTTPClient, GenerationClientConfig{
			APIKey:  cfg.External.GenerationAPIKey.Unmask(),
			Model:   cfg.External.GenerationModel,
			BaseURL: cfg.External.GenerationBaseURL,
			Logger:  logger.With("client", "generation"),
		})
	}

	return reg
}
