package events

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const dedupKeyPrefix = "governor:dedup:"

// RedisDeduplicationStore implements DeduplicationStore on Redis so that
// any governor replica can claim a measurement window exactly once.
type RedisDeduplicationStore struct {
	client redis.UniversalClient
}

// NewRedisDeduplicationStore creates a Redis-backed deduplication store.
func NewRedisDeduplicationStore(client redis.UniversalClient) *RedisDeduplicationStore {
	return &RedisDeduplicationStore{client: client}
}

// MarkProcessed records the key atomically, returning true on first sight.
func (s *RedisDeduplicationStore) MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, dedupKeyPrefix+key, time.Now().UTC().Format(time.RFC3339Nano), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("mark processed %s: %w", key, err)
	}
	return ok, nil
}

// IsProcessed returns true if the key has been processed.
func (s *RedisDeduplicationStore) IsProcessed(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, dedupKeyPrefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("is processed %s: %w", key, err)
	}
	return n > 0, nil
}
