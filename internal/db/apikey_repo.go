package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"croplens/internal/types"
)

// APIKeyRepository provides data access for the api_keys table.
// API keys use bcrypt hashing; plaintext secrets are never stored.
type APIKeyRepository struct {
	db DBTX
}

// NewAPIKeyRepository creates a new APIKeyRepository backed by the given
// database connection (pool or transaction).
func NewAPIKeyRepository(db DBTX) *APIKeyRepository {
	return &APIKeyRepository{db: db}
}

// apiKeyColumns defines the standard set of columns selected for API key
// queries. key_hash is intentionally included for internal operations but
// MUST NOT be exposed in API responses.
const apiKeyColumns = `id, key_hash, key_prefix, scopes, test_mode, source,
	name, last_used_at, expires_at, revoked_at, created_at`

// ListAPIKeysParams defines filtering options for listing API keys.
type ListAPIKeysParams struct {
	ActiveOnly bool
	Prefix     string
	Limit      int
	Cursor     string
}

// List retrieves API keys with optional filtering. Supports prefix filtering
// for compromise recovery (finding keys by leaked prefix).
func (r *APIKeyRepository) List(ctx context.Context, params ListAPIKeysParams) ([]*types.APIKey, error) {
	var conditions []string
	var args []any
	argIdx := 1

	// ActiveOnly filter: exclude revoked and expired keys.
	if params.ActiveOnly {
		conditions = append(conditions, "revoked_at IS NULL")
		conditions = append(conditions, fmt.Sprintf("(expires_at IS NULL OR expires_at > $%d)", argIdx))
		args = append(args, time.Now().UTC())
		argIdx++
	}

	// Prefix filter for compromise recovery.
	if params.Prefix != "" {
		conditions = append(conditions, fmt.Sprintf("key_prefix LIKE $%d", argIdx))
		args = append(args, params.Prefix+"%")
		argIdx++
	}

	// Cursor-based pagination using created_at.
	if params.Cursor != "" {
		cursorTime, err := time.Parse(time.RFC3339Nano, params.Cursor)
		if err != nil {
			return nil, types.NewAppError(
				types.ErrCodeValidationInvalidCursor,
				"invalid cursor format; expected RFC3339 timestamp",
				err,
			)
		}
		conditions = append(conditions, fmt.Sprintf("created_at < $%d", argIdx))
		args = append(args, cursorTime)
		argIdx++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	limit := params.Limit
	if limit <= 0 {
		limit = types.DefaultListLimit
	}

	query := fmt.Sprintf(
		`SELECT %s FROM api_keys %s ORDER BY created_at DESC LIMIT $%d`,
		apiKeyColumns,
		whereClause,
		argIdx,
	)
	args = append(args, limit+1)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query API keys", err)
	}
	defer rows.Close()

	var results []*types.APIKey
	for rows.Next() {
		key, scanErr := scanAPIKey(rows)
		if scanErr != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan API key row", scanErr)
		}
		results = append(results, key)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating API key rows", err)
	}

	// Return all results including the potential extra row (limit+1).
	// The handler is responsible for detecting pagination and trimming.
	return results, nil
}

// Create inserts a new API key record. The KeyHash MUST be the bcrypt hash
// of the plaintext secret; the plaintext MUST NOT be passed to this method.
func (r *APIKeyRepository) Create(ctx context.Context, key *types.APIKey) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO api_keys (id, key_hash, key_prefix, scopes, test_mode,
		 source, name, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, COALESCE($9, NOW()))`,
		key.ID,
		key.KeyHash,
		key.KeyPrefix,
		key.Scopes,
		key.TestMode,
		nilIfEmptyString(key.Source),
		key.Name,
		key.ExpiresAt,
		nilIfZeroTime(key.CreatedAt),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create API key", err)
	}
	return nil
}

// GetByID retrieves an API key by ID.
// Returns ErrCodeNotFoundAPIKey if the key does not exist.
func (r *APIKeyRepository) GetByID(ctx context.Context, id string) (*types.APIKey, error) {
	row := r.db.QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM api_keys WHERE id = $1`, apiKeyColumns),
		id,
	)

	key, err := scanAPIKeyRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundAPIKey, "API key not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve API key", err)
	}
	return key, nil
}

// GetActiveByPrefix retrieves the non-revoked, non-expired keys matching the
// exact key prefix. Authentication compares the presented secret against each
// candidate's bcrypt hash; the prefix keeps that candidate set tiny.
func (r *APIKeyRepository) GetActiveByPrefix(ctx context.Context, prefix string) ([]*types.APIKey, error) {
	rows, err := r.db.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM api_keys
		 WHERE key_prefix = $1
		   AND revoked_at IS NULL
		   AND (expires_at IS NULL OR expires_at > $2)`, apiKeyColumns),
		prefix,
		time.Now().UTC(),
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query API keys by prefix", err)
	}
	defer rows.Close()

	var results []*types.APIKey
	for rows.Next() {
		key, scanErr := scanAPIKey(rows)
		if scanErr != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan API key row", scanErr)
		}
		results = append(results, key)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating API key rows", err)
	}

	return results, nil
}

// Delete performs a soft revocation of an API key by setting revoked_at.
func (r *APIKeyRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE api_keys SET revoked_at = NOW() WHERE id = $1 AND revoked_at IS NULL`,
		id,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to revoke API key", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundAPIKey, "API key not found or already revoked", nil)
	}
	return nil
}

// Rotate implements dual-validity key rotation:
//  1. Updates the old key's expires_at to the grace end time.
//  2. Inserts a new key record with the new hash.
//
// The old key remains valid until graceEnd, allowing clients to transition to
// the new key without downtime.
func (r *APIKeyRepository) Rotate(ctx context.Context, oldKeyID string, newKey *types.APIKey, graceEnd time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE api_keys SET expires_at = $1
		 WHERE id = $2 AND revoked_at IS NULL`,
		graceEnd,
		oldKeyID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update old key expiry during rotation", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundAPIKey, "API key not found or already revoked", nil)
	}

	if err := r.Create(ctx, newKey); err != nil {
		return err
	}

	return nil
}

// TouchLastUsed updates the last_used_at timestamp for an API key.
// This is a fire-and-forget optimization; callers log errors without
// propagating them.
func (r *APIKeyRepository) TouchLastUsed(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE api_keys SET last_used_at = NOW() WHERE id = $1`,
		id,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update API key last_used_at", err)
	}
	return nil
}

// scanAPIKey scans an API key from pgx.Rows. Column order must match apiKeyColumns.
func scanAPIKey(rows pgx.Rows) (*types.APIKey, error) {
	var key types.APIKey
	err := rows.Scan(
		&key.ID,
		&key.KeyHash,
		&key.KeyPrefix,
		&key.Scopes,
		&key.TestMode,
		&key.Source,
		&key.Name,
		&key.LastUsedAt,
		&key.ExpiresAt,
		&key.RevokedAt,
		&key.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &key, nil
}

// scanAPIKeyRow scans an API key from a single pgx.Row (for QueryRow).
// Column order must match apiKeyColumns.
func scanAPIKeyRow(row pgx.Row) (*types.APIKey, error) {
	var key types.APIKey
	err := row.Scan(
		&key.ID,
		&key.KeyHash,
		&key.KeyPrefix,
		&key.Scopes,
		&key.TestMode,
		&key.Source,
		&key.Name,
		&key.LastUsedAt,
		&key.ExpiresAt,
		&key.RevokedAt,
		&key.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &key, nil
}

// nilIfEmptyString returns nil if the string is empty, otherwise returns a
// pointer to the string. Used for nullable VARCHAR columns.
func nilIfEmptyString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// nilIfEmpty returns nil for empty strings. Alias kept for the columns that
// read more naturally with the short name.
func nilIfEmpty(s string) *string {
	return nilIfEmptyString(s)
}

// nilIfZeroTime returns nil if the time is the zero value, otherwise a
// pointer to it. Lets the database apply NOW() defaults via COALESCE.
func nilIfZeroTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
