package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dimicheck/public-api/internal/circuitbreaker"
	"github.com/dimicheck/public-api/internal/models"
	"github.com/dimicheck/public-api/internal/repository"
	"github.com/dimicheck/public-api/internal/storage"
	"github.com/dimicheck/public-api/internal/tier"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

const MaxKeysPerUser = 5

var (
	ErrKeyLimitReached = errors.New("API key limit reached")
	ErrKeyNotFound     = errors.New("API key not found")
	ErrNotDefaultTier  = errors.New("only default-tier keys can be upgraded")
	ErrNotEligible     = errors.New("upgrade requirements not met")
	ErrNoUpgradePath   = errors.New("no higher tier configured")
)

type APIKeyService struct {
	repository *repository.APIKeyRepository
	redis      *storage.RedisClient
	// Guards the Redis cache path so a dead Redis degrades to DB lookups
	// instead of failing every request.
	breaker *circuitbreaker.CircuitBreaker
	policy  *tier.Policy
}

func NewAPIKeyService(repo *repository.APIKeyRepository, redis *storage.RedisClient, policy *tier.Policy) *APIKeyService {
	return &APIKeyService{
		repository: repo,
		redis:      redis,
		breaker: circuitbreaker.New(circuitbreaker.Config{
			// A cold key is a cache miss, not a Redis failure; a run of
			// misses must never open the circuit.
			IsFailure: func(err error) bool {
				return err != nil && !errors.Is(err, goredis.Nil)
			},
		}),
		policy: policy,
	}
}

// Create issues a new key for the user. The plain key value is returned
// once and never stored.
func (s *APIKeyService) Create(ctx context.Context, userID uuid.UUID, label string) (string, *models.APIKey, error) {
	count, err := s.repository.CountByUser(ctx, userID)
	if err != nil {
		return "", nil, err
	}
	if count >= MaxKeysPerUser {
		return "", nil, ErrKeyLimitReached
	}

	keyBytes := make([]byte, 32)
	if _, err := rand.Read(keyBytes); err != nil {
		return "", nil, fmt.Errorf("failed to generate random key: %w", err)
	}
	key := "dmc_" + base64.URLEncoding.EncodeToString(keyBytes)

	if label == "" {
		label = "unnamed key"
	}

	apiKey := models.APIKey{
		KeyHash:  hashKey(key),
		Label:    label,
		UserID:   userID,
		Tier:     s.policy.Default().Name,
		IsActive: true,
	}

	if err := s.repository.Create(ctx, &apiKey); err != nil {
		return "", nil, fmt.Errorf("failed to create API key: %w", err)
	}

	return key, &apiKey, nil
}

// Validate resolves a presented key value to its stored row, active or
// not. Returns nil when the key is unknown.
func (s *APIKeyService) Validate(ctx context.Context, key string) (*models.APIKey, error) {
	keyHash := hashKey(key)
	cacheKey := fmt.Sprintf("apikey:cache:%s", keyHash)

	var cached string
	cacheErr := s.breaker.Call(func() error {
		var err error
		cached, err = s.redis.Get(ctx, cacheKey)
		return err
	})

	if cacheErr == nil && cached != "" {
		var apiKey models.APIKey
		if err := json.Unmarshal([]byte(cached), &apiKey); err == nil {
			return &apiKey, nil
		}
	}

	apiKey, err := s.repository.FindByHash(ctx, keyHash)
	if err != nil {
		return nil, err
	}
	if apiKey == nil {
		return nil, nil
	}

	// Best effort; the breaker absorbs a down cache.
	s.breaker.Call(func() error {
		apiKeyJSON, _ := json.Marshal(apiKey)
		return s.redis.Set(ctx, cacheKey, apiKeyJSON, 5*time.Minute)
	})

	return apiKey, nil
}

func (s *APIKeyService) Get(ctx context.Context, userID, keyID uuid.UUID) (*models.APIKey, error) {
	apiKey, err := s.repository.FindByID(ctx, keyID)
	if err != nil {
		return nil, err
	}
	if apiKey == nil || apiKey.UserID != userID {
		return nil, ErrKeyNotFound
	}
	return apiKey, nil
}

func (s *APIKeyService) List(ctx context.Context, userID uuid.UUID) ([]models.APIKey, error) {
	return s.repository.FindByUser(ctx, userID)
}

func (s *APIKeyService) Update(ctx context.Context, userID, keyID uuid.UUID, updates map[string]interface{}) (*models.APIKey, error) {
	apiKey, err := s.Get(ctx, userID, keyID)
	if err != nil {
		return nil, err
	}

	if err := s.repository.Update(ctx, keyID, updates); err != nil {
		return nil, err
	}
	s.invalidateCache(ctx, apiKey)

	return s.repository.FindByID(ctx, keyID)
}

func (s *APIKeyService) Delete(ctx context.Context, userID, keyID uuid.UUID) error {
	apiKey, err := s.Get(ctx, userID, keyID)
	if err != nil {
		return err
	}

	s.invalidateCache(ctx, apiKey)
	return s.repository.Delete(ctx, keyID)
}

// UpgradeTier promotes the whole account to the next tier once the
// eligibility evaluator signs off. The named key must be on the default
// tier; the promotion itself covers every key the user owns.
func (s *APIKeyService) UpgradeTier(ctx context.Context, userID, keyID uuid.UUID, evaluator *tier.EligibilityEvaluator) (*models.APIKey, error) {
	apiKey, err := s.Get(ctx, userID, keyID)
	if err != nil {
		return nil, err
	}
	if apiKey.Tier != s.policy.Default().Name {
		return nil, ErrNotDefaultTier
	}

	progress, err := evaluator.Evaluate(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !progress.Eligible {
		return nil, ErrNotEligible
	}

	next, ok := s.policy.Next(apiKey.Tier)
	if !ok {
		return nil, ErrNoUpgradePath
	}

	now := time.Now().UTC()
	if err := s.repository.UpgradeTierForUser(ctx, userID, next.Name, now); err != nil {
		return nil, err
	}

	keys, err := s.repository.FindByUser(ctx, userID)
	if err == nil {
		for i := range keys {
			s.invalidateCache(ctx, &keys[i])
		}
	}

	return s.repository.FindByID(ctx, keyID)
}

func (s *APIKeyService) invalidateCache(ctx context.Context, apiKey *models.APIKey) {
	cacheKey := fmt.Sprintf("apikey:cache:%s", apiKey.KeyHash)
	s.breaker.Call(func() error {
		return s.redis.Del(ctx, cacheKey)
	})
}

func hashKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}
