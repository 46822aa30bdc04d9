package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalCache_GetSet(t *testing.T) {
	ctx := context.Background()
	c, err := NewLocalCache(8, time.Minute)
	require.NoError(t, err)

	_, err = c.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, c.Set(ctx, "k", "v", 0))
	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)

	require.NoError(t, c.Delete(ctx, "k", "other"))
	_, err = c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestLocalCache_Expiry(t *testing.T) {
	ctx := context.Background()
	c, err := NewLocalCache(8, time.Minute)
	require.NoError(t, err)

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "short", "1", time.Second))
	require.NoError(t, c.Set(ctx, "default", "2", 0))

	now = now.Add(2 * time.Second)
	_, err = c.Get(ctx, "short")
	assert.ErrorIs(t, err, ErrMiss)

	got, err := c.Get(ctx, "default")
	require.NoError(t, err)
	assert.Equal(t, "2", got)

	now = now.Add(time.Minute)
	_, err = c.Get(ctx, "default")
	assert.ErrorIs(t, err, ErrMiss)
	assert.Zero(t, c.Len())
}

func TestLocalCache_Eviction(t *testing.T) {
	ctx := context.Background()
	c, err := NewLocalCache(2, time.Minute)
	require.NoError(t, err)

	require.NoError(t, c.Set(ctx, "a", "1", 0))
	require.NoError(t, c.Set(ctx, "b", "2", 0))
	_, _ = c.Get(ctx, "a")
	require.NoError(t, c.Set(ctx, "c", "3", 0))

	_, err = c.Get(ctx, "b")
	assert.ErrorIs(t, err, ErrMiss)
	_, err = c.Get(ctx, "a")
	assert.NoError(t, err)
}
