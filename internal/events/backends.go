package events

import (
	"context"
	"fmt"

	"github.com/pitabwire/util"
	"github.com/redis/go-redis/v9"
)

// Backends holds the coordination backend implementations. With a Redis URI
// the stores are shared across governor replicas; without one they are
// process-local, which is correct for single-instance deployments and tests.
type Backends struct {
	Deduplication DeduplicationStore
	Locking       LockManager

	redisClient *redis.Client
	memoryLocks *InMemoryLockManager
}

// NewBackends creates the coordination backends. An empty redisURI selects
// the in-memory implementations.
func NewBackends(ctx context.Context, redisURI string) (*Backends, error) {
	log := util.Log(ctx)

	if redisURI == "" {
		log.Info("using in-memory coordination backends")
		memoryLocks := NewInMemoryLockManager()
		return &Backends{
			Deduplication: NewInMemoryDeduplicationStore(),
			Locking:       memoryLocks,
			memoryLocks:   memoryLocks,
		}, nil
	}

	opts, err := redis.ParseURL(redisURI)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URI: %w", err)
	}

	client := redis.NewClient(opts)
	if err = client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	log.Info("using redis coordination backends", "addr", opts.Addr)
	return &Backends{
		Deduplication: NewRedisDeduplicationStore(client),
		Locking:       NewRedisLockManager(client),
		redisClient:   client,
	}, nil
}

// Close releases backend resources.
func (b *Backends) Close() error {
	if b.memoryLocks != nil {
		_ = b.memoryLocks.Close()
	}
	if b.redisClient != nil {
		return b.redisClient.Close()
	}
	return nil
}
