package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRedisQueue_Publish(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	q := NewRedisQueue(&goredis.Options{Addr: mr.Addr()}, zap.NewNop())
	t.Cleanup(func() { _ = q.Close() })

	require.NoError(t, q.Publish(ctx, TopicUserCreated, []byte(`{"user_id":1}`)))
	require.NoError(t, q.Publish(ctx, TopicUserCreated, []byte(`{"user_id":2}`)))

	items, err := mr.List("queue:user.created")
	require.NoError(t, err)
	assert.Equal(t, []string{`{"user_id":1}`, `{"user_id":2}`}, items)
}

func TestRedisQueue_RedialsAfterOutage(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	q := NewRedisQueue(&goredis.Options{Addr: mr.Addr(), MaxRetries: -1}, zap.NewNop())
	t.Cleanup(func() { _ = q.Close() })
	require.NoError(t, q.Publish(ctx, "t", []byte("a")))

	mr.Close()
	assert.Error(t, q.Publish(ctx, "t", []byte("b")))

	// 重启后数据保留，队列重新拨号
	require.NoError(t, mr.Restart())
	require.NoError(t, q.Publish(ctx, "t", []byte("c")))

	items, err := mr.List(ListKey("t"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, items)
}

func TestRedisConsumer_Consume(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})

	consumer := NewRedisConsumer(rdb, TopicUserCreated, zap.NewNop())
	consumer.timeout = 50 * time.Millisecond
	t.Cleanup(func() { _ = consumer.Close() })

	_, err := mr.Push(ListKey(TopicUserCreated), "first", "second")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var (
		mu   sync.Mutex
		seen []string
	)
	done := make(chan error, 1)
	go func() {
		done <- consumer.Consume(ctx, func(_ context.Context, msg Message) error {
			mu.Lock()
			defer mu.Unlock()
			assert.Equal(t, TopicUserCreated, msg.Topic)
			seen = append(seen, string(msg.Payload))
			if len(seen) == 2 {
				cancel()
			}
			return nil
		})
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not stop")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"first", "second"}, seen)
}
