package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryLockManager_TryAcquire(t *testing.T) {
	manager := NewInMemoryLockManager()
	defer manager.Close()

	ctx := context.Background()

	lock, acquired, err := manager.TryAcquire(ctx, "approval:a", "reviewer-1", time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)
	assert.Equal(t, "approval:a", lock.Key())
	assert.Equal(t, "reviewer-1", lock.Owner())

	// A second owner cannot take the held lock.
	_, acquired, err = manager.TryAcquire(ctx, "approval:a", "reviewer-2", time.Minute)
	require.NoError(t, err)
	assert.False(t, acquired)

	// The same owner re-enters.
	_, acquired, err = manager.TryAcquire(ctx, "approval:a", "reviewer-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, acquired)
}

func TestInMemoryLockManager_ReleaseWrongOwner(t *testing.T) {
	manager := NewInMemoryLockManager()
	defer manager.Close()

	ctx := context.Background()

	_, acquired, err := manager.TryAcquire(ctx, "approval:b", "reviewer-1", time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)

	err = manager.Release(ctx, "approval:b", "reviewer-2")
	assert.ErrorIs(t, err, ErrLockNotHeld)

	require.NoError(t, manager.Release(ctx, "approval:b", "reviewer-1"))

	locked, err := manager.IsLocked(ctx, "approval:b")
	require.NoError(t, err)
	assert.False(t, locked)
}

func TestInMemoryLockManager_Expiry(t *testing.T) {
	manager := NewInMemoryLockManager()
	defer manager.Close()

	ctx := context.Background()

	lock, acquired, err := manager.TryAcquire(ctx, "approval:c", "reviewer-1", 10*time.Millisecond)
	require.NoError(t, err)
	require.True(t, acquired)

	time.Sleep(20 * time.Millisecond)

	held, err := lock.IsHeld(ctx)
	require.NoError(t, err)
	assert.False(t, held)

	// An expired lock can be taken by someone else.
	_, acquired, err = manager.TryAcquire(ctx, "approval:c", "reviewer-2", time.Minute)
	require.NoError(t, err)
	assert.True(t, acquired)
}

func TestInMemoryLockManager_Extend(t *testing.T) {
	manager := NewInMemoryLockManager()
	defer manager.Close()

	ctx := context.Background()

	lock, acquired, err := manager.TryAcquire(ctx, "approval:d", "reviewer-1", 50*time.Millisecond)
	require.NoError(t, err)
	require.True(t, acquired)

	require.NoError(t, lock.Extend(ctx, time.Minute))

	held, err := lock.IsHeld(ctx)
	require.NoError(t, err)
	assert.True(t, held)
}

func TestInMemoryLockManager_AcquireTimesOut(t *testing.T) {
	manager := NewInMemoryLockManager()
	defer manager.Close()

	ctx := context.Background()

	_, acquired, err := manager.TryAcquire(ctx, "approval:e", "reviewer-1", time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)

	deadlineCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()

	_, err = manager.Acquire(deadlineCtx, "approval:e", "reviewer-2", time.Minute)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLockNotAcquired) || errors.Is(err, context.DeadlineExceeded))
}

func TestWithLock(t *testing.T) {
	manager := NewInMemoryLockManager()
	defer manager.Close()

	ctx := context.Background()

	var executed bool
	err := WithLock(ctx, manager, "approval:f", "reviewer-1", time.Minute, func(ctx context.Context) error {
		executed = true

		locked, lockErr := manager.IsLocked(ctx, "approval:f")
		require.NoError(t, lockErr)
		assert.True(t, locked)
		return nil
	})
	require.NoError(t, err)
	assert.True(t, executed)

	// Released after fn returns.
	locked, err := manager.IsLocked(ctx, "approval:f")
	require.NoError(t, err)
	assert.False(t, locked)
}

func TestInMemoryDeduplicationStore(t *testing.T) {
	store := NewInMemoryDeduplicationStore()
	ctx := context.Background()

	key := MeasurementKey(NewAgentID(), time.Now().Add(-24*time.Hour), time.Now())

	first, err := store.MarkProcessed(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.True(t, first)

	second, err := store.MarkProcessed(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.False(t, second)

	processed, err := store.IsProcessed(ctx, key)
	require.NoError(t, err)
	assert.True(t, processed)
}

func TestInMemoryDeduplicationStore_TTLExpires(t *testing.T) {
	store := NewInMemoryDeduplicationStore()
	ctx := context.Background()

	first, err := store.MarkProcessed(ctx, "window", 5*time.Millisecond)
	require.NoError(t, err)
	require.True(t, first)

	time.Sleep(10 * time.Millisecond)

	again, err := store.MarkProcessed(ctx, "window", time.Minute)
	require.NoError(t, err)
	assert.True(t, again)
}
