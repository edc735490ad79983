package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/klauspost/compress/zstd"

	"croplens/internal/types"
)

// ListAssessmentsParams defines the filtering and pagination parameters for
// listing assessments.
type ListAssessmentsParams struct {
	Crop      string          `json:"crop"`
	RiskLevel types.RiskLevel `json:"risk_level"`
	Limit     int             `json:"limit"`
	Cursor    string          `json:"cursor"`
}

// AssessmentRepository provides data access for the assessments table.
//
// The raw_payload column holds the zstd-compressed detector response exactly
// as received, so scoring regressions can be replayed against historical
// inputs. It is never returned on the normal read paths.
type AssessmentRepository struct {
	db      DBTX
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewAssessmentRepository creates a new AssessmentRepository backed by the
// given database connection (pool or transaction).
func NewAssessmentRepository(db DBTX) *AssessmentRepository {
	// EncodeAll/DecodeAll on shared instances are safe for concurrent use.
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		// Cannot fail with nil writer and a valid level.
		panic(fmt.Sprintf("failed to create zstd encoder: %v", err))
	}
	decoder, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		panic(fmt.Sprintf("failed to create zstd decoder: %v", err))
	}
	return &AssessmentRepository{db: db, encoder: encoder, decoder: decoder}
}

// assessmentColumns defines the standard set of columns selected for
// assessment queries. raw_payload is excluded; it is only fetched by
// GetRawPayload.
const assessmentColumns = `a.id, a.crop, a.image_ref, a.result, a.species,
	a.source, a.created_at`

func scanAssessmentFields(a *types.Assessment, scan func(dest ...any) error) error {
	var (
		crop        *string
		imageRef    *string
		speciesJSON []byte
		source      *string
	)

	err := scan(
		&a.ID,
		&crop,
		&imageRef,
		&a.Result,
		&speciesJSON,
		&source,
		&a.CreatedAt,
	)
	if err != nil {
		return err
	}

	if crop != nil {
		a.Crop = *crop
	}
	if imageRef != nil {
		a.ImageRef = *imageRef
	}
	if source != nil {
		a.Source = *source
	}
	if speciesJSON != nil {
		var sp types.SpeciesResult
		if err := json.Unmarshal(speciesJSON, &sp); err != nil {
			return fmt.Errorf("failed to parse species JSONB: %w", err)
		}
		a.Species = &sp
	}

	return nil
}

// scanAssessment scans a single assessment row. The columns must match the
// order defined in assessmentColumns.
func scanAssessment(row pgx.Row) (*types.Assessment, error) {
	var a types.Assessment
	if err := scanAssessmentFields(&a, row.Scan); err != nil {
		return nil, err
	}
	return &a, nil
}

// scanAssessmentFromRows scans a single row from a pgx.Rows result set.
func scanAssessmentFromRows(rows pgx.Rows) (*types.Assessment, error) {
	var a types.Assessment
	if err := scanAssessmentFields(&a, rows.Scan); err != nil {
		return nil, err
	}
	return &a, nil
}

// Create inserts a new assessment record. The caller must set the ID (UUID)
// and CreatedAt before calling. rawPayload is the verbatim detector response;
// it may be nil when the caller supplied detections directly.
func (r *AssessmentRepository) Create(ctx context.Context, a *types.Assessment, rawPayload []byte) error {
	var archived []byte
	if len(rawPayload) > 0 {
		archived = r.encoder.EncodeAll(rawPayload, nil)
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO assessments (
			id, crop, image_ref, result, species, source, raw_payload, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, COALESCE($8, NOW())
		)`,
		a.ID,
		nilIfEmpty(a.Crop),
		nilIfEmpty(a.ImageRef),
		a.Result,
		a.Species,
		nilIfEmpty(a.Source),
		archived,
		nilIfZeroTime(a.CreatedAt),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create assessment", err)
	}
	return nil
}

// GetByID retrieves an assessment by its UUID.
// Returns ErrCodeNotFoundAssessment if not found.
func (r *AssessmentRepository) GetByID(ctx context.Context, id string) (*types.Assessment, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+assessmentColumns+`
		 FROM assessments a
		 WHERE a.id = $1`,
		id,
	)

	a, err := scanAssessment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundAssessment, "assessment not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve assessment", err)
	}
	return a, nil
}

// GetRawPayload retrieves and decompresses the archived detector payload for
// an assessment. Returns nil with no error when no payload was archived.
func (r *AssessmentRepository) GetRawPayload(ctx context.Context, id string) ([]byte, error) {
	var archived []byte
	err := r.db.QueryRow(ctx,
		`SELECT raw_payload FROM assessments WHERE id = $1`,
		id,
	).Scan(&archived)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundAssessment, "assessment not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve assessment payload", err)
	}

	if len(archived) == 0 {
		return nil, nil
	}

	payload, err := r.decoder.DecodeAll(archived, nil)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalArchive, "failed to decompress assessment payload", err)
	}
	return payload, nil
}

// List retrieves assessments with optional filtering and cursor-based
// pagination. Results are ordered by created_at DESC (newest first).
//
// Uses limit+1 fetch strategy to determine HasMore without a separate COUNT
// query.
func (r *AssessmentRepository) List(ctx context.Context, params ListAssessmentsParams) ([]*types.Assessment, types.PageInfo, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = types.DefaultListLimit
	}
	if limit > types.MaxListLimit {
		limit = types.MaxListLimit
	}

	var conditions []string
	var args []any
	argIdx := 1

	if params.Crop != "" {
		conditions = append(conditions, fmt.Sprintf("a.crop = $%d", argIdx))
		args = append(args, params.Crop)
		argIdx++
	}

	// Risk level lives inside the result document.
	if params.RiskLevel != "" {
		conditions = append(conditions, fmt.Sprintf("a.result->>'risk_level' = $%d", argIdx))
		args = append(args, string(params.RiskLevel))
		argIdx++
	}

	// Cursor-based pagination: fetch items older than the cursor timestamp.
	if params.Cursor != "" {
		cursorTime, err := time.Parse(time.RFC3339Nano, params.Cursor)
		if err != nil {
			return nil, types.PageInfo{}, types.NewAppError(
				types.ErrCodeValidationInvalidCursor,
				"invalid cursor format; expected RFC3339 timestamp",
				err,
			)
		}
		conditions = append(conditions, fmt.Sprintf("a.created_at < $%d", argIdx))
		args = append(args, cursorTime)
		argIdx++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	// Fetch limit+1 to detect if there are more results.
	query := fmt.Sprintf(
		`SELECT %s
		 FROM assessments a
		 %s
		 ORDER BY a.created_at DESC
		 LIMIT $%d`,
		assessmentColumns,
		whereClause,
		argIdx,
	)
	args = append(args, limit+1)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, types.PageInfo{}, types.NewAppError(types.ErrCodeInternalDB, "failed to list assessments", err)
	}
	defer rows.Close()

	var results []*types.Assessment
	for rows.Next() {
		a, scanErr := scanAssessmentFromRows(rows)
		if scanErr != nil {
			return nil, types.PageInfo{}, types.NewAppError(types.ErrCodeInternalDB, "failed to scan assessment row", scanErr)
		}
		results = append(results, a)
	}
	if err := rows.Err(); err != nil {
		return nil, types.PageInfo{}, types.NewAppError(types.ErrCodeInternalDB, "error iterating assessment rows", err)
	}

	pageInfo := types.PageInfo{}
	if len(results) > limit {
		pageInfo.HasMore = true
		// The cursor is the created_at of the last item we will return.
		pageInfo.NextCursor = results[limit-1].CreatedAt.Format(time.RFC3339Nano)
		results = results[:limit]
	}

	return results, pageInfo, nil
}

// CountByRiskLevel returns a map of risk level -> count of assessments created
// since the given time. Used by the health endpoint's stats block.
func (r *AssessmentRepository) CountByRiskLevel(ctx context.Context, since time.Time) (map[types.RiskLevel]int, error) {
	rows, err := r.db.Query(ctx,
		`SELECT result->>'risk_level' AS risk, COUNT(*) AS cnt
		 FROM assessments
		 WHERE created_at >= $1
		 GROUP BY result->>'risk_level'`,
		since,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to count assessments by risk level", err)
	}
	defer rows.Close()

	result := make(map[types.RiskLevel]int)
	for rows.Next() {
		var risk string
		var count int
		if err := rows.Scan(&risk, &count); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan risk count row", err)
		}
		result[types.RiskLevel(risk)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating risk count rows", err)
	}

	return result, nil
}
