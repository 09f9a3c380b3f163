package cachesvc

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/examreg/core"
	"github.com/trezcool/examreg/core/export"
)

func setupTestRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisCacheFromClient(client), mr
}

func TestRedisCache_CodeMap(t *testing.T) {
	cache, mr := setupTestRedis(t)
	ctx := context.Background()

	_, ok, err := cache.GetCodeMap(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	m := export.CodeMap{"AKK-001": "101", "101-001": "101"}
	require.NoError(t, cache.SetCodeMap(ctx, m, time.Minute))

	got, ok, err := cache.GetCodeMap(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, m, got)

	// replaced wholesale
	require.NoError(t, cache.SetCodeMap(ctx, export.CodeMap{"EPE-002": "103"}, time.Minute))
	got, _, err = cache.GetCodeMap(ctx)
	require.NoError(t, err)
	assert.Equal(t, export.CodeMap{"EPE-002": "103"}, got)

	mr.FastForward(2 * time.Minute)
	_, ok, err = cache.GetCodeMap(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisCache_unavailable(t *testing.T) {
	cache, mr := setupTestRedis(t)
	mr.Close()

	_, _, err := cache.GetCodeMap(context.Background())
	assert.Error(t, err)
}

func TestNewRedisCache(t *testing.T) {
	cache, err := NewRedisCache(context.Background(), core.RedisConfig{})
	require.NoError(t, err)
	assert.Nil(t, cache)

	mr := miniredis.RunT(t)
	cache, err = NewRedisCache(context.Background(), core.RedisConfig{Address: mr.Addr()})
	require.NoError(t, err)
	require.NotNil(t, cache)
	assert.NoError(t, cache.Close())
}
