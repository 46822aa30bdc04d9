package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"usercenter/backend/internal/domain"
	"usercenter/backend/internal/monitoring"
	"usercenter/backend/internal/pool"
)

func TestNotifier_PublishesUserCreated(t *testing.T) {
	workers := pool.NewWorkerPool(1, 4, zap.NewNop())
	workers.Start(context.Background())

	publisher := &flakyPublisher{}
	metrics := monitoring.NewMetrics(nil)
	n := NewNotifier(publisher, workers, "", metrics, zap.NewNop())

	user := &domain.User{ID: 7, Username: "alice", Email: "alice@example.com", CreatedAt: time.Now()}

	// 请求上下文取消后发布仍应完成
	ctx, cancel := context.WithCancel(context.Background())
	n.UserCreated(ctx, user)
	cancel()
	workers.Stop()

	require.Len(t, publisher.payloads, 1)
	event, err := DecodeUserCreated(publisher.payloads[0])
	require.NoError(t, err)
	assert.Equal(t, int64(7), event.UserID)
	assert.Equal(t, "alice", event.Username)
	assert.NotEmpty(t, event.EventID)
}

func TestNotifier_FullQueueDoesNotBlock(t *testing.T) {
	// 协程池未启动，队列容量为 0，提交必然失败
	workers := pool.NewWorkerPool(1, 0, zap.NewNop())
	publisher := &flakyPublisher{}
	n := NewNotifier(publisher, workers, "custom", nil, zap.NewNop())

	done := make(chan struct{})
	go func() {
		n.UserCreated(context.Background(), &domain.User{ID: 1, Username: "bob"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("UserCreated blocked on a full queue")
	}
	assert.Zero(t, publisher.Calls())
}

func TestNotifier_FailureIsSwallowed(t *testing.T) {
	workers := pool.NewWorkerPool(1, 4, zap.NewNop())
	workers.Start(context.Background())

	publisher := &flakyPublisher{failures: 1}
	n := NewNotifier(publisher, workers, "", nil, zap.NewNop())
	n.UserCreated(context.Background(), &domain.User{ID: 2, Username: "carol"})
	workers.Stop()

	assert.Equal(t, 1, publisher.Calls())
	assert.Empty(t, publisher.payloads)
}
