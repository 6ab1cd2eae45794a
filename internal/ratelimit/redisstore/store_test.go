package redisstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/creditgate/internal/ratelimit/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	return New(client)
}

func TestTakeWindowThenBlock(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	key := "rl:test:" + uuid.NewString()
	cfg := domain.Config{MaxRequests: 3, Window: time.Second, BlockDuration: 5 * time.Second}
	now := time.Now().UTC().Truncate(time.Millisecond)

	for i := 0; i < 3; i++ {
		res, err := store.Take(ctx, key, cfg, now)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, 2-i, res.Remaining)
	}

	res, err := store.Take(ctx, key, cfg, now)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.True(t, res.Blocked)
	assert.Equal(t, now.Add(5*time.Second), res.ResetTime)

	peek, err := store.Peek(ctx, key, cfg, now.Add(time.Second))
	require.NoError(t, err)
	assert.True(t, peek.Blocked)

	res, err = store.Take(ctx, key, cfg, now.Add(5*time.Second))
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 2, res.Remaining)
}

func TestPeekUnknownKey(t *testing.T) {
	store := newTestStore(t)
	cfg := domain.Config{MaxRequests: 10, Window: time.Minute}

	res, err := store.Peek(context.Background(), "rl:test:"+uuid.NewString(), cfg, time.Now())
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 10, res.Remaining)
}

func TestDecodeRecord(t *testing.T) {
	rec, ok := decodeRecord([]interface{}{"2", "1700000000000", "0"})
	require.True(t, ok)
	assert.Equal(t, 2, rec.Count)
	assert.Nil(t, rec.BlockedUntil)

	rec, ok = decodeRecord([]interface{}{"3", "1700000000000", "1700000005000"})
	require.True(t, ok)
	require.NotNil(t, rec.BlockedUntil)
	assert.Equal(t, int64(1700000005000), rec.BlockedUntil.UnixMilli())

	_, ok = decodeRecord([]interface{}{nil, nil, nil})
	assert.False(t, ok)
}
