package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_ReserveAndRelease(t *testing.T) {
	store := NewMemoryStore()
	recipient := uuid.New()
	now := time.Date(2026, time.March, 10, 12, 30, 0, 0, time.UTC)

	for i := 0; i < 2; i++ {
		ok, err := store.Reserve(context.Background(), recipient, now, 2)
		require.NoError(t, err)
		assert.True(t, ok)
	}

	ok, err := store.Reserve(context.Background(), recipient, now, 2)
	require.NoError(t, err)
	assert.False(t, ok, "bucket is full")

	count, err := store.CountHour(context.Background(), recipient, now)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	require.NoError(t, store.Release(context.Background(), recipient, now))
	ok, err = store.Reserve(context.Background(), recipient, now, 2)
	require.NoError(t, err)
	assert.True(t, ok, "released slot is reusable")
}

func TestMemoryStore_HourBuckets(t *testing.T) {
	store := NewMemoryStore()
	recipient := uuid.New()
	now := time.Date(2026, time.March, 10, 12, 59, 0, 0, time.UTC)

	ok, err := store.Reserve(context.Background(), recipient, now, 1)
	require.NoError(t, err)
	require.True(t, ok)

	// Two minutes later is a new bucket.
	ok, err = store.Reserve(context.Background(), recipient, now.Add(2*time.Minute), 1)
	require.NoError(t, err)
	assert.True(t, ok)

	count, err := store.CountHour(context.Background(), recipient, now)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMemoryStore_UnlimitedWhenMaxIsZero(t *testing.T) {
	store := NewMemoryStore()
	recipient := uuid.New()
	now := time.Now().UTC()

	for i := 0; i < 10; i++ {
		ok, err := store.Reserve(context.Background(), recipient, now, 0)
		require.NoError(t, err)
		assert.True(t, ok)
	}
}

func TestMemoryStore_LastFire(t *testing.T) {
	store := NewMemoryStore()
	ruleID := uuid.New()
	recipient := uuid.New()

	_, ok, err := store.LastFire(context.Background(), ruleID, recipient)
	require.NoError(t, err)
	assert.False(t, ok)

	stamp := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.RecordFire(context.Background(), ruleID, recipient, stamp))

	got, ok, err := store.LastFire(context.Background(), ruleID, recipient)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, stamp, got)

	// Per rule/recipient pair, not global.
	_, ok, err = store.LastFire(context.Background(), uuid.New(), recipient)
	require.NoError(t, err)
	assert.False(t, ok)
}
