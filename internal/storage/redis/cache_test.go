package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"usercenter/backend/internal/cache"
	"usercenter/backend/internal/config"
)

func TestCache_GetSetDelete(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	c := NewCache(rdb)

	_, err := c.Get(ctx, "users:get_user_by_id:1")
	assert.ErrorIs(t, err, cache.ErrMiss)

	require.NoError(t, c.Set(ctx, "users:get_user_by_id:1", `{"id":1}`, time.Minute))
	got, err := c.Get(ctx, "users:get_user_by_id:1")
	require.NoError(t, err)
	assert.Equal(t, `{"id":1}`, got)
	assert.Equal(t, time.Minute, mr.TTL("users:get_user_by_id:1"))

	mr.FastForward(2 * time.Minute)
	_, err = c.Get(ctx, "users:get_user_by_id:1")
	assert.ErrorIs(t, err, cache.ErrMiss)

	require.NoError(t, c.Set(ctx, "a", "1", time.Minute))
	require.NoError(t, c.Set(ctx, "b", "2", time.Minute))
	require.NoError(t, c.Delete(ctx, "a", "b"))
	assert.False(t, mr.Exists("a"))
	assert.False(t, mr.Exists("b"))
	assert.NoError(t, c.Delete(ctx))
}

func TestCache_ServerDown(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	mr.Close()

	_, err := NewCache(rdb).Get(context.Background(), "k")
	require.Error(t, err)
	assert.NotErrorIs(t, err, cache.ErrMiss)
}

func TestNew(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := New(context.Background(), &config.RedisConfig{Address: mr.Addr()}, zap.NewNop())
	require.NoError(t, err)
	assert.NoError(t, client.Ping(context.Background()))
	assert.NoError(t, client.Close())

	mr.Close()
	_, err = New(context.Background(), &config.RedisConfig{Address: mr.Addr()}, zap.NewNop())
	assert.Error(t, err)
}
