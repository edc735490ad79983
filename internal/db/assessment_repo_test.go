package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"croplens/internal/types"
)

func sampleResult() types.HealthAssessment {
	return types.HealthAssessment{
		OverallHealth:      62.5,
		DiseaseScore:       55.0,
		EnvironmentalScore: 80.0,
		RiskLevel:          types.RiskMedium,
		Confidence:         75.0,
		Recommendations:    types.RecommendationList{"Apply appropriate fungicide"},
	}
}

// ============================================================
// Create Tests
// ============================================================

func TestAssessmentRepository_Create_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewAssessmentRepository(db)
	ctx := context.Background()

	a := &types.Assessment{
		ID:        "8f14e45f-ceea-4672-9d5a-3f5e6bb1caf1",
		Crop:      "tomato",
		Result:    sampleResult(),
		CreatedAt: time.Now().UTC(),
	}

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	err := repo.Create(ctx, a, nil)
	require.NoError(t, err)
	db.AssertExpectations(t)
}

func TestAssessmentRepository_Create_CompressesRawPayload(t *testing.T) {
	db := new(mockDBTX)
	repo := NewAssessmentRepository(db)
	ctx := context.Background()

	rawPayload := []byte(`{"detections":[{"label":"blight","confidence":0.9}]}`)

	var storedPayload []byte
	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).
		Run(func(args mock.Arguments) {
			execArgs := args.Get(2).([]any)
			// raw_payload is the 7th placeholder.
			storedPayload = execArgs[6].([]byte)
		}).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	a := &types.Assessment{
		ID:     "8f14e45f-ceea-4672-9d5a-3f5e6bb1caf1",
		Result: sampleResult(),
	}
	err := repo.Create(ctx, a, rawPayload)
	require.NoError(t, err)

	require.NotEmpty(t, storedPayload)
	assert.NotEqual(t, rawPayload, storedPayload)

	decoder, err := zstd.NewReader(nil)
	require.NoError(t, err)
	defer decoder.Close()

	restored, err := decoder.DecodeAll(storedPayload, nil)
	require.NoError(t, err)
	assert.Equal(t, rawPayload, restored)
}

func TestAssessmentRepository_Create_DBError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewAssessmentRepository(db)
	ctx := context.Background()

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.CommandTag{}, errors.New("connection refused"))

	err := repo.Create(ctx, &types.Assessment{ID: "x", Result: sampleResult()}, nil)
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}

// ============================================================
// GetByID Tests
// ============================================================

func TestAssessmentRepository_GetByID_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewAssessmentRepository(db)

	now := time.Now().UTC()
	result := sampleResult()
	row := &mockRow{scanFn: assessmentRow("8f14e45f-ceea-4672-9d5a-3f5e6bb1caf1", "tomato", result, now)}

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(row)

	a, err := repo.GetByID(context.Background(), "8f14e45f-ceea-4672-9d5a-3f5e6bb1caf1")
	require.NoError(t, err)

	assert.Equal(t, "8f14e45f-ceea-4672-9d5a-3f5e6bb1caf1", a.ID)
	assert.Equal(t, "tomato", a.Crop)
	assert.Equal(t, types.RiskMedium, a.Result.RiskLevel)
	assert.Equal(t, now, a.CreatedAt)
	assert.Nil(t, a.Species)
}

func TestAssessmentRepository_GetByID_NotFound(t *testing.T) {
	db := new(mockDBTX)
	repo := NewAssessmentRepository(db)

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: pgx.ErrNoRows})

	_, err := repo.GetByID(context.Background(), "missing")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeNotFoundAssessment, appErr.Code)
}

// ============================================================
// GetRawPayload Tests
// ============================================================

func TestAssessmentRepository_GetRawPayload_Roundtrip(t *testing.T) {
	db := new(mockDBTX)
	repo := NewAssessmentRepository(db)

	original := []byte(`{"detections":[]}`)
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	require.NoError(t, err)
	archived := encoder.EncodeAll(original, nil)

	row := &mockRow{scanFn: func(dest ...any) error {
		*dest[0].(*[]byte) = archived
		return nil
	}}
	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(row)

	payload, err := repo.GetRawPayload(context.Background(), "8f14e45f-ceea-4672-9d5a-3f5e6bb1caf1")
	require.NoError(t, err)
	assert.Equal(t, original, payload)
}

func TestAssessmentRepository_GetRawPayload_NoArchive(t *testing.T) {
	db := new(mockDBTX)
	repo := NewAssessmentRepository(db)

	row := &mockRow{scanFn: func(dest ...any) error {
		*dest[0].(*[]byte) = nil
		return nil
	}}
	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(row)

	payload, err := repo.GetRawPayload(context.Background(), "8f14e45f-ceea-4672-9d5a-3f5e6bb1caf1")
	require.NoError(t, err)
	assert.Nil(t, payload)
}

func TestAssessmentRepository_GetRawPayload_Corrupt(t *testing.T) {
	db := new(mockDBTX)
	repo := NewAssessmentRepository(db)

	row := &mockRow{scanFn: func(dest ...any) error {
		*dest[0].(*[]byte) = []byte("definitely not zstd")
		return nil
	}}
	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(row)

	_, err := repo.GetRawPayload(context.Background(), "8f14e45f-ceea-4672-9d5a-3f5e6bb1caf1")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalArchive, appErr.Code)
}

// ============================================================
// List Tests
// ============================================================

func TestAssessmentRepository_List_PaginationTrimsExtraRow(t *testing.T) {
	db := new(mockDBTX)
	repo := NewAssessmentRepository(db)

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	result := sampleResult()
	// Three rows returned for limit=2 means HasMore.
	rows := newMockRows(
		assessmentRow("id-1", "tomato", result, base),
		assessmentRow("id-2", "tomato", result, base.Add(-time.Minute)),
		assessmentRow("id-3", "tomato", result, base.Add(-2*time.Minute)),
	)

	db.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Run(func(args mock.Arguments) {
			queryArgs := args.Get(2).([]any)
			// The trailing argument is the fetch limit of limit+1.
			assert.Equal(t, 3, queryArgs[len(queryArgs)-1])
		}).
		Return(rows, nil)

	results, pageInfo, err := repo.List(context.Background(), ListAssessmentsParams{Limit: 2})
	require.NoError(t, err)

	require.Len(t, results, 2)
	assert.True(t, pageInfo.HasMore)
	assert.Equal(t, base.Add(-time.Minute).Format(time.RFC3339Nano), pageInfo.NextCursor)
}

func TestAssessmentRepository_List_NoMoreResults(t *testing.T) {
	db := new(mockDBTX)
	repo := NewAssessmentRepository(db)

	rows := newMockRows(
		assessmentRow("id-1", "rice", sampleResult(), time.Now().UTC()),
	)
	db.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(rows, nil)

	results, pageInfo, err := repo.List(context.Background(), ListAssessmentsParams{Limit: 20})
	require.NoError(t, err)

	require.Len(t, results, 1)
	assert.False(t, pageInfo.HasMore)
	assert.Empty(t, pageInfo.NextCursor)
}

func TestAssessmentRepository_List_InvalidCursor(t *testing.T) {
	db := new(mockDBTX)
	repo := NewAssessmentRepository(db)

	_, _, err := repo.List(context.Background(), ListAssessmentsParams{Cursor: "not-a-timestamp"})
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeValidationInvalidCursor, appErr.Code)
	db.AssertNotCalled(t, "Query")
}

func TestAssessmentRepository_List_FiltersByRiskLevel(t *testing.T) {
	db := new(mockDBTX)
	repo := NewAssessmentRepository(db)

	rows := newMockRows()
	db.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Run(func(args mock.Arguments) {
			sql := args.Get(1).(string)
			assert.Contains(t, sql, "result->>'risk_level'")
			queryArgs := args.Get(2).([]any)
			assert.Equal(t, "critical", queryArgs[0])
		}).
		Return(rows, nil)

	_, _, err := repo.List(context.Background(), ListAssessmentsParams{RiskLevel: types.RiskCritical})
	require.NoError(t, err)
	db.AssertExpectations(t)
}

// ============================================================
// CountByRiskLevel Tests
// ============================================================

func TestAssessmentRepository_CountByRiskLevel(t *testing.T) {
	db := new(mockDBTX)
	repo := NewAssessmentRepository(db)

	rows := newMockRows(
		func(dest ...any) error {
			*dest[0].(*string) = "low"
			*dest[1].(*int) = 42
			return nil
		},
		func(dest ...any) error {
			*dest[0].(*string) = "critical"
			*dest[1].(*int) = 3
			return nil
		},
	)
	db.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(rows, nil)

	counts, err := repo.CountByRiskLevel(context.Background(), time.Now().Add(-24*time.Hour))
	require.NoError(t, err)

	assert.Equal(t, 42, counts[types.RiskLow])
	assert.Equal(t, 3, counts[types.RiskCritical])
}
