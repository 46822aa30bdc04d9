package cache

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// LocalCache 本地内存缓存
//
// 特点：
// - 容量限制（LRU 淘汰）
// - 每个条目独立 TTL，读取时惰性过期
type LocalCache struct {
	entries *lru.Cache[string, cacheEntry]
	ttl     time.Duration
	now     func() time.Time
}

type cacheEntry struct {
	value     string
	expiresAt time.Time
}

// NewLocalCache 创建本地缓存
//
// 参数:
//   - maxSize: 最大缓存条目数
//   - ttl: 默认过期时间
func NewLocalCache(maxSize int, ttl time.Duration) (*LocalCache, error) {
	if maxSize <= 0 {
		maxSize = 1024
	}
	entries, err := lru.New[string, cacheEntry](maxSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create lru cache: %w", err)
	}
	return &LocalCache{entries: entries, ttl: ttl, now: time.Now}, nil
}

// Get 获取缓存值
func (c *LocalCache) Get(_ context.Context, key string) (string, error) {
	entry, ok := c.entries.Get(key)
	if !ok {
		return "", ErrMiss
	}
	if !c.now().Before(entry.expiresAt) {
		c.entries.Remove(key)
		return "", ErrMiss
	}
	return entry.value, nil
}

// Set 设置缓存值，ttl 为 0 时使用默认过期时间
func (c *LocalCache) Set(_ context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.ttl
	}
	c.entries.Add(key, cacheEntry{value: value, expiresAt: c.now().Add(ttl)})
	return nil
}

// Delete 删除缓存值
func (c *LocalCache) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		c.entries.Remove(key)
	}
	return nil
}

// Len 返回当前条目数（含未清理的过期条目）
func (c *LocalCache) Len() int {
	return c.entries.Len()
}

// Purge 清空所有缓存
func (c *LocalCache) Purge() {
	c.entries.Purge()
}

var _ Cache = (*LocalCache)(nil)
