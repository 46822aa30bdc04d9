package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ListKey 返回主题对应的 Redis 列表键
func ListKey(topic string) string {
	return "queue:" + topic
}

// RedisQueue 基于 Redis 列表的事件队列
//
// 连接在首次发布时建立；连接错误会丢弃当前连接，下次发布时重新拨号。
type RedisQueue struct {
	opts *goredis.Options
	log  *zap.Logger

	mu     sync.Mutex
	client *goredis.Client
}

// NewRedisQueue 创建 Redis 队列，不立即建立连接
func NewRedisQueue(opts *goredis.Options, log *zap.Logger) *RedisQueue {
	return &RedisQueue{opts: opts, log: log}
}

// conn 返回当前连接，必要时创建
func (q *RedisQueue) conn() *goredis.Client {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.client == nil {
		q.client = goredis.NewClient(q.opts)
		q.log.Debug("redis queue dialed", zap.String("address", q.opts.Addr))
	}
	return q.client
}

// drop 丢弃出错的连接
func (q *RedisQueue) drop(client *goredis.Client) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.client == client {
		_ = client.Close()
		q.client = nil
	}
}

// Publish 将事件追加到主题列表
func (q *RedisQueue) Publish(ctx context.Context, topic string, payload []byte) error {
	client := q.conn()
	if err := client.RPush(ctx, ListKey(topic), payload).Err(); err != nil {
		var redisErr goredis.Error
		if !errors.As(err, &redisErr) {
			q.drop(client)
		}
		return fmt.Errorf("redis rpush %s: %w", topic, err)
	}
	return nil
}

// Close 关闭连接
func (q *RedisQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.client == nil {
		return nil
	}
	err := q.client.Close()
	q.client = nil
	return err
}

// RedisConsumer 通过 BLPOP 消费 Redis 列表
type RedisConsumer struct {
	rdb     *goredis.Client
	topic   string
	timeout time.Duration
	log     *zap.Logger
}

// NewRedisConsumer 创建 Redis 消费者
func NewRedisConsumer(rdb *goredis.Client, topic string, log *zap.Logger) *RedisConsumer {
	return &RedisConsumer{rdb: rdb, topic: topic, timeout: time.Second, log: log}
}

// Consume 阻塞消费直到 ctx 结束
func (c *RedisConsumer) Consume(ctx context.Context, handler Handler) error {
	key := ListKey(c.topic)
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		result, err := c.rdb.BLPop(ctx, c.timeout, key).Result()
		if err != nil {
			if errors.Is(err, goredis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			c.log.Warn("redis blpop failed", zap.String("key", key), zap.Error(err))
			if !sleep(ctx, c.timeout) {
				return nil
			}
			continue
		}

		// BLPOP 返回 [key, value]
		msg := Message{Topic: c.topic, Payload: []byte(result[1])}
		if err := handler(ctx, msg); err != nil {
			c.log.Warn("event handler failed", zap.String("topic", c.topic), zap.Error(err))
		}
	}
}

// Close 关闭连接
func (c *RedisConsumer) Close() error {
	return c.rdb.Close()
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
