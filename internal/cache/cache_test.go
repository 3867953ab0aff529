package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRedis(client, time.Minute), mr
}

func TestRedis_MissThenHit(t *testing.T) {
	c, _ := setupTestRedis(t)
	ctx := context.Background()

	_, ok, gen, err := c.Get(ctx, "item-1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int64(0), gen)

	require.NoError(t, c.Set(ctx, "item-1", 7, gen))

	n, ok, _, err := c.Get(ctx, "item-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 7, n)
}

func TestRedis_ZeroIsAHit(t *testing.T) {
	c, _ := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "item-1", 0, 0))

	n, ok, _, err := c.Get(ctx, "item-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 0, n)
}

func TestRedis_Invalidate(t *testing.T) {
	c, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "item-1", 3, 0))
	require.NoError(t, c.Invalidate(ctx, "item-1"))

	assert.False(t, mr.Exists("atlas:likes:item-1"))
	_, ok, gen, err := c.Get(ctx, "item-1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int64(1), gen, "Invalidate bumps the generation")
}

func TestRedis_InvalidateMissingKey(t *testing.T) {
	c, _ := setupTestRedis(t)
	assert.NoError(t, c.Invalidate(context.Background(), "never-set"))
}

func TestRedis_TTL(t *testing.T) {
	c, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "item-1", 3, 0))
	assert.Equal(t, time.Minute, mr.TTL("atlas:likes:item-1"))

	mr.FastForward(2 * time.Minute)

	_, ok, _, err := c.Get(ctx, "item-1")
	require.NoError(t, err)
	assert.False(t, ok, "entry should expire after its TTL")
}

func TestRedis_GarbageIsAMiss(t *testing.T) {
	c, mr := setupTestRedis(t)
	require.NoError(t, mr.Set("atlas:likes:item-1", "not-a-number"))

	_, ok, _, err := c.Get(context.Background(), "item-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedis_ServerDown(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { client.Close() })
	c := NewRedis(client, time.Minute)
	mr.Close()

	_, _, _, err = c.Get(context.Background(), "item-1")
	assert.Error(t, err)
}

func TestNop(t *testing.T) {
	var c LikeCounts = Nop{}
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "item-1", 5, 0))
	_, ok, _, err := c.Get(ctx, "item-1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, c.Invalidate(ctx, "item-1"))
}

// A count taken before an invalidation must not be stored after it.
func TestRedis_SetAfterInvalidateIsDropped(t *testing.T) {
	c, mr := setupTestRedis(t)
	ctx := context.Background()

	_, ok, gen, err := c.Get(ctx, "item-1")
	require.NoError(t, err)
	require.False(t, ok)

	// A like commits while the reader is counting.
	require.NoError(t, c.Invalidate(ctx, "item-1"))

	require.NoError(t, c.Set(ctx, "item-1", 0, gen))
	assert.False(t, mr.Exists("atlas:likes:item-1"), "stale count was stored")

	// The next reader sees the new generation and may store.
	_, _, gen, err = c.Get(ctx, "item-1")
	require.NoError(t, err)
	require.NoError(t, c.Set(ctx, "item-1", 1, gen))

	n, ok, _, err := c.Get(ctx, "item-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, n)
}

func TestRedis_GenerationExpires(t *testing.T) {
	c, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, c.Invalidate(ctx, "item-1"))
	assert.Equal(t, generationTTL, mr.TTL("atlas:likes:gen:item-1"))
}
