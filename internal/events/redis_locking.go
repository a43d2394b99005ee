package events

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	lockKeyPrefix    = "governor:lock:"
	lockPollInterval = 50 * time.Millisecond
)

// releaseScript deletes the key only if the caller still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`)

// extendScript refreshes the TTL only if the caller still owns the key.
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
else
	return 0
end
`)

// RedisLockManager implements LockManager on Redis, so that multiple
// governor replicas serialize approval transitions against the same store.
type RedisLockManager struct {
	client redis.UniversalClient
}

// NewRedisLockManager creates a Redis-backed lock manager.
func NewRedisLockManager(client redis.UniversalClient) *RedisLockManager {
	return &RedisLockManager{client: client}
}

func redisLockKey(key string) string {
	return lockKeyPrefix + key
}

// Acquire attempts to acquire a lock, polling until acquired or the
// context deadline passes.
func (m *RedisLockManager) Acquire(ctx context.Context, key string, owner string, ttl time.Duration) (DistributedLock, error) {
	ticker := time.NewTicker(lockPollInterval)
	defer ticker.Stop()

	for {
		lock, acquired, err := m.TryAcquire(ctx, key, owner, ttl)
		if err != nil {
			return nil, err
		}
		if acquired {
			return lock, nil
		}

		select {
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				return nil, ErrLockNotAcquired
			}
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// TryAcquire attempts to acquire a lock without blocking.
func (m *RedisLockManager) TryAcquire(ctx context.Context, key string, owner string, ttl time.Duration) (DistributedLock, bool, error) {
	ok, err := m.client.SetNX(ctx, redisLockKey(key), owner, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("setnx %s: %w", key, err)
	}
	if !ok {
		// The holder may be us, re-entering; extend in that case.
		current, getErr := m.client.Get(ctx, redisLockKey(key)).Result()
		if getErr == nil && current == owner {
			if expErr := m.client.PExpire(ctx, redisLockKey(key), ttl).Err(); expErr != nil {
				return nil, false, fmt.Errorf("pexpire %s: %w", key, expErr)
			}
			return &redisLock{manager: m, key: key, owner: owner, expiresAt: time.Now().Add(ttl)}, true, nil
		}
		return nil, false, nil
	}

	return &redisLock{manager: m, key: key, owner: owner, expiresAt: time.Now().Add(ttl)}, true, nil
}

// Release releases a lock if held by the given owner.
func (m *RedisLockManager) Release(ctx context.Context, key string, owner string) error {
	res, err := releaseScript.Run(ctx, m.client, []string{redisLockKey(key)}, owner).Int64()
	if err != nil {
		return fmt.Errorf("release %s: %w", key, err)
	}
	if res == 0 {
		return ErrLockNotHeld
	}
	return nil
}

// IsLocked returns true if the key is currently locked.
func (m *RedisLockManager) IsLocked(ctx context.Context, key string) (bool, error) {
	n, err := m.client.Exists(ctx, redisLockKey(key)).Result()
	if err != nil {
		return false, fmt.Errorf("exists %s: %w", key, err)
	}
	return n > 0, nil
}

type redisLock struct {
	manager   *RedisLockManager
	key       string
	owner     string
	expiresAt time.Time
}

func (l *redisLock) Key() string          { return l.key }
func (l *redisLock) Owner() string        { return l.owner }
func (l *redisLock) ExpiresAt() time.Time { return l.expiresAt }

func (l *redisLock) Unlock(ctx context.Context) error {
	err := l.manager.Release(ctx, l.key, l.owner)
	if err == ErrLockNotHeld {
		// Expired and possibly re-acquired by another owner.
		return nil
	}
	return err
}

func (l *redisLock) Extend(ctx context.Context, duration time.Duration) error {
	res, err := extendScript.Run(ctx, l.manager.client, []string{redisLockKey(l.key)}, l.owner, duration.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("extend %s: %w", l.key, err)
	}
	if res == 0 {
		return ErrLockExpired
	}
	l.expiresAt = time.Now().Add(duration)
	return nil
}

func (l *redisLock) IsHeld(ctx context.Context) (bool, error) {
	current, err := l.manager.client.Get(ctx, redisLockKey(l.key)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %s: %w", l.key, err)
	}
	return current == l.owner, nil
}
