package events

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"
)

// The governor's evaluative core is pure, but resolving an approval
// request is a read-modify-write against the persisted record. The lock
// manager serializes concurrent reviewers so that exactly one terminal
// transition wins.

// Backoff configuration constants.
const (
	lockBaseBackoff    = 100 * time.Millisecond
	lockMaxBackoff     = 30 * time.Second
	lockJitterFraction = 0.3
	lockMaxAttemptCap  = 10 // Maximum exponent for backoff calculation
)

// Common locking errors.
var (
	ErrLockNotAcquired = errors.New("lock not acquired")
	ErrLockExpired     = errors.New("lock expired")
	ErrLockNotHeld     = errors.New("lock not held by caller")
)

// DistributedLock represents a held lock.
type DistributedLock interface {
	// Key returns the lock key.
	Key() string

	// Owner returns the lock owner.
	Owner() string

	// ExpiresAt returns when the lock expires.
	ExpiresAt() time.Time

	// Unlock releases the lock.
	Unlock(ctx context.Context) error

	// Extend extends the lock TTL.
	Extend(ctx context.Context, duration time.Duration) error

	// IsHeld returns true if the lock is still held.
	IsHeld(ctx context.Context) (bool, error)
}

// LockManager manages distributed locks.
type LockManager interface {
	// Acquire attempts to acquire a lock, blocking with backoff until
	// acquired, the context is done, or its deadline passes.
	Acquire(ctx context.Context, key string, owner string, ttl time.Duration) (DistributedLock, error)

	// TryAcquire attempts to acquire a lock without blocking.
	TryAcquire(ctx context.Context, key string, owner string, ttl time.Duration) (DistributedLock, bool, error)

	// Release releases a lock.
	Release(ctx context.Context, key string, owner string) error

	// IsLocked returns true if the key is locked.
	IsLocked(ctx context.Context, key string) (bool, error)
}

// WithLock executes fn while holding the named lock.
func WithLock(ctx context.Context, manager LockManager, key, owner string, ttl time.Duration, fn func(ctx context.Context) error) error {
	lock, err := manager.Acquire(ctx, key, owner, ttl)
	if err != nil {
		return fmt.Errorf("acquire lock %s: %w", key, err)
	}
	defer lock.Unlock(ctx)

	return fn(ctx)
}

// InMemoryLockManager is a process-local implementation, used in tests and
// single-instance deployments without Redis.
type InMemoryLockManager struct {
	mu        sync.RWMutex
	locks     map[string]*inMemoryLock
	stopCh    chan struct{}
	stoppedCh chan struct{}
}

type inMemoryLock struct {
	key       string
	owner     string
	expiresAt time.Time
	manager   *InMemoryLockManager
	released  bool
}

// NewInMemoryLockManager creates a new in-memory lock manager.
func NewInMemoryLockManager() *InMemoryLockManager {
	m := &InMemoryLockManager{
		locks:     make(map[string]*inMemoryLock),
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
	go m.cleanupExpired()
	return m
}

// Close stops the lock manager's cleanup goroutine gracefully.
func (m *InMemoryLockManager) Close() error {
	close(m.stopCh)
	<-m.stoppedCh
	return nil
}

func (m *InMemoryLockManager) cleanupExpired() {
	defer close(m.stoppedCh)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.mu.Lock()
			now := time.Now()
			for key, lock := range m.locks {
				if lock.expiresAt.Before(now) {
					delete(m.locks, key)
				}
			}
			m.mu.Unlock()
		}
	}
}

// Acquire attempts to acquire a lock with exponential backoff.
func (m *InMemoryLockManager) Acquire(ctx context.Context, key string, owner string, ttl time.Duration) (DistributedLock, error) {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(30 * time.Second)
	}

	attempt := 0
	for {
		lock, acquired, err := m.TryAcquire(ctx, key, owner, ttl)
		if err != nil {
			return nil, err
		}
		if acquired {
			return lock, nil
		}
		if time.Now().After(deadline) {
			return nil, ErrLockNotAcquired
		}

		backoff := lockBackoff(attempt)
		attempt++

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// lockBackoff computes backoff duration with exponential increase and jitter.
func lockBackoff(attempt int) time.Duration {
	backoff := min(
		lockBaseBackoff*time.Duration(1<<min(attempt, lockMaxAttemptCap)),
		lockMaxBackoff,
	)

	// Jitter doesn't need cryptographic randomness.
	jitterRange := float64(backoff) * lockJitterFraction
	jitter := time.Duration((rand.Float64()*2 - 1) * jitterRange) //nolint:gosec

	return backoff + jitter
}

// TryAcquire attempts to acquire a lock without blocking.
func (m *InMemoryLockManager) TryAcquire(ctx context.Context, key string, owner string, ttl time.Duration) (DistributedLock, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()

	existing, ok := m.locks[key]
	if ok && existing.expiresAt.After(now) {
		if existing.owner == owner {
			// Re-entrant acquisition extends the hold.
			existing.expiresAt = now.Add(ttl)
			return existing, true, nil
		}
		return nil, false, nil
	}

	lock := &inMemoryLock{
		key:       key,
		owner:     owner,
		expiresAt: now.Add(ttl),
		manager:   m,
	}
	m.locks[key] = lock
	return lock, true, nil
}

// Release releases a lock.
func (m *InMemoryLockManager) Release(ctx context.Context, key string, owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.locks[key]
	if !ok {
		return nil // Already released
	}

	if existing.owner != owner {
		return ErrLockNotHeld
	}

	delete(m.locks, key)
	return nil
}

// IsLocked returns true if the key is locked.
func (m *InMemoryLockManager) IsLocked(ctx context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	lock, ok := m.locks[key]
	if !ok {
		return false, nil
	}

	return lock.expiresAt.After(time.Now()), nil
}

// Key returns the lock key.
func (l *inMemoryLock) Key() string {
	return l.key
}

// Owner returns the lock owner.
func (l *inMemoryLock) Owner() string {
	return l.owner
}

// ExpiresAt returns when the lock expires.
func (l *inMemoryLock) ExpiresAt() time.Time {
	return l.expiresAt
}

// Unlock releases the lock.
func (l *inMemoryLock) Unlock(ctx context.Context) error {
	if l.released {
		return nil
	}
	err := l.manager.Release(ctx, l.key, l.owner)
	if err == nil {
		l.released = true
	}
	return err
}

// Extend extends the lock TTL.
func (l *inMemoryLock) Extend(ctx context.Context, duration time.Duration) error {
	l.manager.mu.Lock()
	defer l.manager.mu.Unlock()

	existing, ok := l.manager.locks[l.key]
	if !ok {
		return ErrLockExpired
	}

	if existing.owner != l.owner {
		return ErrLockNotHeld
	}

	if existing.expiresAt.Before(time.Now()) {
		return ErrLockExpired
	}

	existing.expiresAt = time.Now().Add(duration)
	l.expiresAt = existing.expiresAt
	return nil
}

// IsHeld returns true if the lock is still held.
func (l *inMemoryLock) IsHeld(ctx context.Context) (bool, error) {
	l.manager.mu.RLock()
	defer l.manager.mu.RUnlock()

	existing, ok := l.manager.locks[l.key]
	if !ok {
		return false, nil
	}

	return existing.owner == l.owner && existing.expiresAt.After(time.Now()), nil
}
