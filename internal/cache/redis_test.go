package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisCache(client), mr
}

func TestRedisCache_SetGet(t *testing.T) {
	c, mr := newTestRedisCache(t)
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "k", []byte(`{"a":1}`), time.Minute))
	val, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.JSONEq(t, `{"a":1}`, string(val))

	mr.FastForward(2 * time.Minute)
	_, ok, err = c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisCache_DeleteByPattern(t *testing.T) {
	c, mr := newTestRedisCache(t)
	ctx := context.Background()

	for i := 0; i < 250; i++ {
		require.NoError(t, mr.Set(fmt.Sprintf("rec:t1:u1:hybrid:%d", i), "x"))
	}
	require.NoError(t, mr.Set("rec:t1:u2:hybrid:x", "y"))

	n, err := c.DeleteByPattern(ctx, "rec:t1:u1:*")
	require.NoError(t, err)
	assert.Equal(t, 250, n)
	assert.True(t, mr.Exists("rec:t1:u2:hybrid:x"))
}

func TestRedisCache_Unavailable(t *testing.T) {
	c, mr := newTestRedisCache(t)
	mr.Close()

	_, ok, err := c.Get(context.Background(), "k")
	assert.Error(t, err)
	assert.False(t, ok)
}
