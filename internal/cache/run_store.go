// Package cache holds the Redis-backed pipeline run lock and run records.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/segyhp/payout-engine/internal/domain"
	customError "github.com/segyhp/payout-engine/pkg/errors"
)

const (
	lockKeyPrefix   = "pipeline:lock:"
	resultKeyPrefix = "pipeline:run:"
)

// releaseScript deletes the lock only if it still holds our token, so a run
// that outlived its TTL cannot release a lock taken by the next run.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RunStore serialises pipeline runs per trigger and keeps run results for tracing.
type RunStore struct {
	client    *redis.Client
	resultTTL time.Duration
}

func NewRunStore(client *redis.Client, resultTTL time.Duration) *RunStore {
	return &RunStore{client: client, resultTTL: resultTTL}
}

// AcquireLock takes the run lock for trigger. It returns the lock token and
// false when another run holds it.
func (s *RunStore) AcquireLock(ctx context.Context, trigger string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	ok, err := s.client.SetNX(ctx, lockKeyPrefix+trigger, token, ttl).Result()
	if err != nil {
		return "", false, customError.WrapCacheError(err)
	}
	return token, ok, nil
}

// ReleaseLock releases the lock if token still owns it.
func (s *RunStore) ReleaseLock(ctx context.Context, trigger, token string) error {
	if err := releaseScript.Run(ctx, s.client, []string{lockKeyPrefix + trigger}, token).Err(); err != nil {
		return customError.WrapCacheError(err)
	}
	return nil
}

// SaveResult stores a run result under its request id.
func (s *RunStore) SaveResult(ctx context.Context, result *domain.PipelineResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal pipeline result: %w", err)
	}
	if err := s.client.Set(ctx, resultKeyPrefix+result.RequestID, payload, s.resultTTL).Err(); err != nil {
		return customError.WrapCacheError(err)
	}
	return nil
}

// GetResult loads a stored run result. Returns ErrPipelineRunNotFound when
// nothing is stored for requestID.
func (s *RunStore) GetResult(ctx context.Context, requestID string) (*domain.PipelineResult, error) {
	payload, err := s.client.Get(ctx, resultKeyPrefix+requestID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, customError.ErrPipelineRunNotFound
	}
	if err != nil {
		return nil, customError.WrapCacheError(err)
	}

	var result domain.PipelineResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal pipeline result: %w", err)
	}
	return &result, nil
}

// Ping checks connectivity for the readiness check.
func (s *RunStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
