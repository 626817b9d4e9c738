package jobstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreSetGet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k1", []byte("v1"), 0))

	data, err := s.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), data)

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreKeysAndMGet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "job:a", []byte("a"), 0))
	require.NoError(t, s.Set(ctx, "job:b", []byte("b"), 0))
	require.NoError(t, s.Set(ctx, "other:c", []byte("c"), 0))

	keys, err := s.Keys(ctx, "job:")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"job:a", "job:b"}, keys)

	values, err := s.MGet(ctx, []string{"job:a", "missing", "job:b"})
	require.NoError(t, err)
	require.Len(t, values, 3)
	assert.Equal(t, []byte("a"), values[0])
	assert.Nil(t, values[1])
	assert.Equal(t, []byte("b"), values[2])
}

func TestMemoryStoreTTLExpiry(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	current := time.Now()
	s.now = func() time.Time { return current }

	require.NoError(t, s.Set(ctx, "ephemeral", []byte("v"), time.Minute))
	require.NoError(t, s.Set(ctx, "durable", []byte("v"), 0))

	// Before expiry both are visible.
	_, err := s.Get(ctx, "ephemeral")
	require.NoError(t, err)

	current = current.Add(2 * time.Minute)

	_, err = s.Get(ctx, "ephemeral")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Get(ctx, "durable")
	assert.NoError(t, err, "keys without TTL never expire")

	keys, err := s.Keys(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"durable"}, keys)
}

func TestMemoryStoreExpire(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	current := time.Now()
	s.now = func() time.Time { return current }

	require.NoError(t, s.Set(ctx, "k", []byte("v"), 0))

	ttl, exists := s.TTL("k")
	require.True(t, exists)
	assert.Equal(t, time.Duration(0), ttl)

	require.NoError(t, s.Expire(ctx, "k", 10*time.Minute))

	ttl, exists = s.TTL("k")
	require.True(t, exists)
	assert.Equal(t, 10*time.Minute, ttl)

	assert.ErrorIs(t, s.Expire(ctx, "missing", time.Minute), ErrNotFound)
}

func TestMemoryStoreDel(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", []byte("v"), 0))
	require.NoError(t, s.Del(ctx, "k"))
	require.NoError(t, s.Del(ctx, "k"), "deleting an absent key is not an error")

	_, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreCopiesValues(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	original := []byte("value")
	require.NoError(t, s.Set(ctx, "k", original, 0))
	original[0] = 'X'

	data, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), data)
}
