// This file implements the API key management handler:
//   - Listing keys (prefix filter, masked secrets)
//   - Creating keys (one-time plaintext return via the auth service)
//   - Revoking keys (soft delete via revoked_at)
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"croplens/internal/auth"
	"croplens/internal/core"
	"croplens/internal/types"
)

// --- Service Interfaces ---

// KeyMinter issues new API keys. Mirrors auth.Service.Mint.
type KeyMinter interface {
	Mint(ctx context.Context, params auth.MintParams) (string, *types.APIKey, error)
}

// APIKeyRepo defines the data access contract for key management.
type APIKeyRepo interface {
	List(ctx context.Context, params APIKeyListParams) ([]*types.APIKey, error)
	Delete(ctx context.Context, id string) error
}

// APIKeyListParams mirrors db.ListAPIKeysParams so the handler layer does not
// import the db package directly.
type APIKeyListParams struct {
	ActiveOnly bool
	Prefix     string
	Limit      int
	Cursor     string
}

// --- Request/Response Models ---

// CreateAPIKeyRequest is the request body for POST /v1/keys.
type CreateAPIKeyRequest struct {
	Name          string   `json:"name" validate:"required,max=100"`
	Scopes        []string `json:"scopes" validate:"required,min=1"`
	ExpiresInDays int      `json:"expires_in_days" validate:"min=0,max=365"`
	TestMode      bool     `json:"test_mode"`
}

// APIKeyResponse is the safe view for List/Get operations. It never includes
// the full secret, only the prefix.
type APIKeyResponse struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	KeyPrefix  string     `json:"key_prefix"`
	Scopes     []string   `json:"scopes"`
	TestMode   bool       `json:"test_mode"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// APIKeySecretResponse is the one-time response returned on creation. The
// plaintext key is never stored and cannot be retrieved again.
type APIKeySecretResponse struct {
	APIKeyResponse
	Key string `json:"key"`
}

// keysManageScope gates every key management operation.
const keysManageScope = "keys:manage"

// --- Handler ---

// APIKeyHandler manages programmatic access credentials.
type APIKeyHandler struct {
	minter    KeyMinter
	repo      APIKeyRepo
	validator *core.Validator
	logger    *slog.Logger
}

// NewAPIKeyHandler creates an APIKeyHandler with the provided dependencies.
func NewAPIKeyHandler(minter KeyMinter, repo APIKeyRepo, v *core.Validator, l *slog.Logger) *APIKeyHandler {
	if l == nil {
		l = slog.Default()
	}
	return &APIKeyHandler{minter: minter, repo: repo, validator: v, logger: l}
}

// RegisterRoutes mounts key management routes on the provided chi.Router.
func (h *APIKeyHandler) RegisterRoutes(r chi.Router) {
	r.Route("/keys", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Delete("/{id}", h.Revoke)
	})
}

// --- Handler Methods ---

// List handles GET /v1/keys. Secrets are never returned, only prefixes.
func (h *APIKeyHandler) List(w http.ResponseWriter, r *http.Request) {
	if err := requireKeysScope(r); err != nil {
		core.Error(w, r, err)
		return
	}

	params := APIKeyListParams{
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
	params.Prefix = r.URL.Query().Get("prefix")
	params.ActiveOnly = r.URL.Query().Get("active") == "true"

	keys, err := h.repo.List(r.Context(), params)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	// The repo returns up to limit+1 rows; an extra row means more pages.
	pageInfo := types.PageInfo{}
	if len(keys) > params.Limit {
		pageInfo.HasMore = true
		keys = keys[:params.Limit]
	}

	data := make([]APIKeyResponse, 0, len(keys))
	for _, k := range keys {
		data = append(data, toAPIKeyResponse(k))
	}

	if pageInfo.HasMore && len(data) > 0 {
		pageInfo.NextCursor = data[len(data)-1].CreatedAt.Format(time.RFC3339Nano)
	}

	core.JSON(w, r, http.StatusOK, data, &types.ResponseMeta{
		Pagination: &pageInfo,
	})
}

// Create handles POST /v1/keys.
//
//  1. Decode and validate the request.
//  2. Validate requested scopes against types.AllScopes.
//  3. Mint the key (generation, hashing, and persistence happen in the auth
//     service; the plaintext is never stored).
//  4. Return 201 Created with the one-time plaintext.
func (h *APIKeyHandler) Create(w http.ResponseWriter, r *http.Request) {
	if err := requireKeysScope(r); err != nil {
		core.Error(w, r, err)
		return
	}

	var req CreateAPIKeyRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	if err := validateScopes(req.Scopes); err != nil {
		core.Error(w, r, err)
		return
	}

	var expiresAt *time.Time
	if req.ExpiresInDays > 0 {
		t := time.Now().UTC().Add(time.Duration(req.ExpiresInDays) * 24 * time.Hour)
		expiresAt = &t
	}

	source := ""
	if actor, ok := types.GetActor(r.Context()); ok {
		source = actor.Source
	}

	plaintext, key, err := h.minter.Mint(r.Context(), auth.MintParams{
		Name:      req.Name,
		Scopes:    req.Scopes,
		Source:    source,
		TestMode:  req.TestMode,
		ExpiresAt: expiresAt,
	})
	if err != nil {
		core.Error(w, r, err)
		return
	}

	resp := APIKeySecretResponse{
		APIKeyResponse: toAPIKeyResponse(key),
		Key:            plaintext,
	}

	core.JSON(w, r, http.StatusCreated, resp, nil)
}

// Revoke handles DELETE /v1/keys/{id}. Revocation is a soft delete; the key
// row is kept for audit.
func (h *APIKeyHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	if err := requireKeysScope(r); err != nil {
		core.Error(w, r, err)
		return
	}

	keyID := chi.URLParam(r, "id")
	if keyID == "" {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"API key ID is required",
			nil,
		))
		return
	}

	if err := h.repo.Delete(r.Context(), keyID); err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "api key revoked", "key_id", keyID)

	w.WriteHeader(http.StatusNoContent)
}

// --- Helper Functions ---

// requireKeysScope enforces the key management scope. System actors pass
// implicitly via Actor.HasScope.
func requireKeysScope(r *http.Request) error {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		return types.NewAppError(
			types.ErrCodeAuthTokenMissing,
			"authentication is required",
			nil,
		)
	}
	if !actor.HasScope(keysManageScope) {
		return types.NewAppErrorWithDetails(
			types.ErrCodePermissionScope,
			"the API key does not grant the required scope",
			nil,
			map[string]any{"required_scope": keysManageScope},
		)
	}
	return nil
}

// validateScopes checks that all requested scopes exist in types.AllScopes.
func validateScopes(scopes []string) error {
	allowed := make(map[string]bool, len(types.AllScopes))
	for _, s := range types.AllScopes {
		allowed[s] = true
	}

	var invalid []string
	for _, s := range scopes {
		if !allowed[s] {
			invalid = append(invalid, s)
		}
	}

	if len(invalid) > 0 {
		return types.NewAppErrorWithDetails(
			types.ErrCodeValidationInvalidBody,
			"invalid scopes",
			nil,
			map[string]any{
				"invalid_scopes": invalid,
				"valid_scopes":   types.AllScopes,
			},
		)
	}

	return nil
}

// toAPIKeyResponse converts a types.APIKey to the safe APIKeyResponse DTO.
// The key hash is intentionally omitted.
func toAPIKeyResponse(k *types.APIKey) APIKeyResponse {
	return APIKeyResponse{
		ID:         k.ID,
		Name:       k.Name,
		KeyPrefix:  k.KeyPrefix,
		Scopes:     k.Scopes,
		TestMode:   k.TestMode,
		LastUsedAt: k.LastUsedAt,
		ExpiresAt:  k.ExpiresAt,
		CreatedAt:  k.CreatedAt,
	}
}
