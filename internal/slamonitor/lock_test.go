package slamonitor

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRedisStore struct {
	values map[string]string
}

func newFakeRedisStore() *fakeRedisStore {
	return &fakeRedisStore{values: map[string]string{}}
}

func (f *fakeRedisStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, ok := f.values[key]; ok {
		return false, nil
	}
	f.values[key] = value.(string)
	return true, nil
}

func (f *fakeRedisStore) Get(ctx context.Context, key string) (string, error) {
	value, ok := f.values[key]
	if !ok {
		return "", redis.Nil
	}
	return value, nil
}

func (f *fakeRedisStore) Del(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.values, key)
	}
	return nil
}

func TestRedisLockAcquireRelease(t *testing.T) {
	store := newFakeRedisStore()
	lock, err := NewRedisLock(store, "kp:lock:sla-monitor", time.Minute)
	require.NoError(t, err)

	ok, err := lock.Acquire(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)

	other, err := NewRedisLock(store, "kp:lock:sla-monitor", time.Minute)
	require.NoError(t, err)
	ok, err = other.Acquire(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, lock.Release(context.Background()))
	ok, err = other.Acquire(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLockReleaseOnlyByOwner(t *testing.T) {
	store := newFakeRedisStore()
	first, err := NewRedisLock(store, "kp:lock:sla-monitor", time.Minute)
	require.NoError(t, err)

	ok, err := first.Acquire(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	// Simulate a TTL lapse followed by another replica taking the lock.
	owner := store.values["kp:lock:sla-monitor"]
	delete(store.values, "kp:lock:sla-monitor")
	second, err := NewRedisLock(store, "kp:lock:sla-monitor", time.Minute)
	require.NoError(t, err)
	ok, err = second.Acquire(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	// The stale owner must not free a lock it no longer holds.
	require.NoError(t, first.Release(context.Background()))
	_, held := store.values["kp:lock:sla-monitor"]
	assert.True(t, held)
	assert.NotEqual(t, owner, store.values["kp:lock:sla-monitor"])
}

func TestRedisLockReleaseTolerantOfExpiry(t *testing.T) {
	store := newFakeRedisStore()
	lock, err := NewRedisLock(store, "kp:lock:sla-monitor", time.Minute)
	require.NoError(t, err)

	ok, err := lock.Acquire(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	delete(store.values, "kp:lock:sla-monitor")
	assert.NoError(t, lock.Release(context.Background()))
}
