// Package auth implements API-key authentication for the CropLens API.
//
// Keys are bearer credentials of the form "ck_live_<random>" (or
// "ck_test_<random>" for test mode). Only a bcrypt hash is stored; lookup
// narrows candidates by the stored plaintext prefix before comparing.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"croplens/internal/types"
)

// bcryptCost is the bcrypt cost factor used for API key hashing.
const bcryptCost = 12

const (
	liveKeyPrefix = "ck_live_"
	testKeyPrefix = "ck_test_"

	// keyPrefixLen is how many leading characters of a key are stored in
	// plaintext for candidate lookup.
	keyPrefixLen = 12

	// keyRandomBytes is the entropy of the random key suffix.
	keyRandomBytes = 24
)

// KeyRepo defines the data access methods needed for API key authentication
// and issuance.
type KeyRepo interface {
	GetActiveByPrefix(ctx context.Context, prefix string) ([]*types.APIKey, error)
	TouchLastUsed(ctx context.Context, id string) error
	Create(ctx context.Context, key *types.APIKey) error
}

// KeyHasher abstracts bcrypt operations for testability.
type KeyHasher interface {
	Compare(hashedKey, rawKey string) error
	Generate(rawKey string) (string, error)
}

// bcryptHasher is the production implementation of KeyHasher.
type bcryptHasher struct{}

func (b *bcryptHasher) Compare(hashedKey, rawKey string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedKey), []byte(rawKey))
}

func (b *bcryptHasher) Generate(rawKey string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(rawKey), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Service authenticates raw API keys and mints new ones.
type Service struct {
	repo   KeyRepo
	hasher KeyHasher
	clock  types.Clock
	logger *slog.Logger
}

// NewService creates an auth Service. If hasher is nil the production bcrypt
// implementation is used; nil clock defaults to RealClock.
func NewService(repo KeyRepo, hasher KeyHasher, clock types.Clock, logger *slog.Logger) *Service {
	if hasher == nil {
		hasher = &bcryptHasher{}
	}
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, hasher: hasher, clock: clock, logger: logger}
}

// Authenticate verifies a raw bearer key and returns the Actor it represents.
//
// Lookup fetches all active keys sharing the plaintext prefix, then compares
// the bcrypt hash of each candidate. A missing key and a wrong key both map
// to the same generic error so responses cannot be used to enumerate keys.
func (s *Service) Authenticate(ctx context.Context, rawKey string) (types.Actor, error) {
	if rawKey == "" {
		return types.Actor{}, types.NewAppError(types.ErrCodeAuthTokenMissing, "missing API key", nil)
	}
	if len(rawKey) < keyPrefixLen || !strings.HasPrefix(rawKey, "ck_") {
		return types.Actor{}, types.NewAppError(types.ErrCodeAuthTokenInvalid, "invalid API key", nil)
	}

	prefix := rawKey[:keyPrefixLen]
	candidates, err := s.repo.GetActiveByPrefix(ctx, prefix)
	if err != nil {
		return types.Actor{}, err
	}

	for _, key := range candidates {
		if compareErr := s.hasher.Compare(key.KeyHash, rawKey); compareErr != nil {
			continue
		}

		if err := s.repo.TouchLastUsed(ctx, key.ID); err != nil {
			// Usage tracking is advisory; authentication still succeeds.
			s.logger.WarnContext(ctx, "failed to update key last_used_at",
				"key_id", key.ID,
				"error", err,
			)
		}

		return types.Actor{
			ID:     key.ID,
			Type:   types.ActorTypeAPIKey,
			Scopes: key.Scopes,
			Source: key.Source,
		}, nil
	}

	return types.Actor{}, types.NewAppError(types.ErrCodeAuthTokenInvalid, "invalid API key", nil)
}

// MintParams describes a new API key to issue.
type MintParams struct {
	Name      string
	Scopes    []string
	Source    string
	TestMode  bool
	ExpiresAt *time.Time
}

// Mint issues a new API key. The raw key is returned exactly once; only its
// bcrypt hash and lookup prefix are persisted.
func (s *Service) Mint(ctx context.Context, params MintParams) (string, *types.APIKey, error) {
	rawKey, err := generateRawKey(params.TestMode)
	if err != nil {
		return "", nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to generate API key", err)
	}

	hash, err := s.hasher.Generate(rawKey)
	if err != nil {
		return "", nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to hash API key", err)
	}

	key := &types.APIKey{
		ID:        uuid.New().String(),
		KeyHash:   hash,
		KeyPrefix: rawKey[:keyPrefixLen],
		Name:      params.Name,
		Scopes:    params.Scopes,
		Source:    params.Source,
		TestMode:  params.TestMode,
		ExpiresAt: params.ExpiresAt,
		CreatedAt: s.clock.Now(),
	}

	if err := s.repo.Create(ctx, key); err != nil {
		return "", nil, err
	}

	s.logger.InfoContext(ctx, "api key minted",
		"key_id", key.ID,
		"key_prefix", key.KeyPrefix,
		"test_mode", key.TestMode,
	)

	return rawKey, key, nil
}

func generateRawKey(testMode bool) (string, error) {
	buf := make([]byte, keyRandomBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	prefix := liveKeyPrefix
	if testMode {
		prefix = testKeyPrefix
	}
	return prefix + hex.EncodeToString(buf), nil
}
