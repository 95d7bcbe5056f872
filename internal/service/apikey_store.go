package service

import (
	"context"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"
)

const apiKeySetKey = "apikeys"

// APIKeyStore holds the valid API keys in Redis, with a read-through fallback
// to the statically configured keys when Redis is empty or unavailable. Keys
// are managed with explicit add/remove/rotate operations, never through
// in-process mutable state.
type APIKeyStore struct {
	redis      *redis.Client
	staticKeys []string
}

func NewAPIKeyStore(redisClient *redis.Client, staticKeys []string) *APIKeyStore {
	return &APIKeyStore{redis: redisClient, staticKeys: staticKeys}
}

// Verify reports whether key is currently valid.
func (s *APIKeyStore) Verify(ctx context.Context, key string) bool {
	if key == "" {
		return false
	}
	if s.redis != nil {
		ok, err := s.redis.SIsMember(ctx, apiKeySetKey, key).Result()
		if err == nil && ok {
			return true
		}
		if err != nil {
			log.Printf("api key lookup failed, falling back to static keys: %v", err)
		}
	}
	for _, k := range s.staticKeys {
		if k == key {
			return true
		}
	}
	return false
}

// Add registers a new key.
func (s *APIKeyStore) Add(ctx context.Context, key string) error {
	if s.redis == nil {
		return fmt.Errorf("api key store is read-only without redis")
	}
	return s.redis.SAdd(ctx, apiKeySetKey, key).Err()
}

// Remove revokes a key.
func (s *APIKeyStore) Remove(ctx context.Context, key string) error {
	if s.redis == nil {
		return fmt.Errorf("api key store is read-only without redis")
	}
	return s.redis.SRem(ctx, apiKeySetKey, key).Err()
}

// Rotate atomically replaces oldKey with newKey.
func (s *APIKeyStore) Rotate(ctx context.Context, oldKey, newKey string) error {
	if s.redis == nil {
		return fmt.Errorf("api key store is read-only without redis")
	}
	pipe := s.redis.TxPipeline()
	pipe.SAdd(ctx, apiKeySetKey, newKey)
	pipe.SRem(ctx, apiKeySetKey, oldKey)
	_, err := pipe.Exec(ctx)
	return err
}

// Seed loads the static keys into Redis when the set is empty, so explicitly
// managed keys and configured keys share one source of truth afterwards.
func (s *APIKeyStore) Seed(ctx context.Context) error {
	if s.redis == nil || len(s.staticKeys) == 0 {
		return nil
	}
	n, err := s.redis.SCard(ctx, apiKeySetKey).Result()
	if err != nil || n > 0 {
		return err
	}
	keys := make([]interface{}, len(s.staticKeys))
	for i, k := range s.staticKeys {
		keys[i] = k
	}
	return s.redis.SAdd(ctx, apiKeySetKey, keys...).Err()
}
