package redis

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"usercenter/backend/internal/cache"
)

// Cache Redis 缓存实现
type Cache struct {
	rdb goredis.Cmdable
}

// NewCache 基于已连接的客户端创建缓存
func NewCache(rdb goredis.Cmdable) *Cache {
	return &Cache{rdb: rdb}
}

// Get 获取缓存值，redis.Nil 映射为 cache.ErrMiss
func (c *Cache) Get(ctx context.Context, key string) (string, error) {
	value, err := c.rdb.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return "", cache.ErrMiss
		}
		return "", err
	}
	return value, nil
}

// Set 设置缓存值（带过期时间）
func (c *Cache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

// Delete 删除缓存键
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.rdb.Del(ctx, keys...).Err()
}

var _ cache.Cache = (*Cache)(nil)
