package events

import (
	"context"
	"time"

	"go.uber.org/zap"

	"usercenter/backend/internal/domain"
	"usercenter/backend/internal/monitoring"
	"usercenter/backend/internal/pool"
)

const publishTimeout = 30 * time.Second

// Notifier 异步发布用户事件
//
// 发布在协程池中执行，失败只记录 warn 日志，从不影响调用方。
type Notifier struct {
	publisher Publisher
	pool      *pool.WorkerPool
	topic     string
	metrics   *monitoring.Metrics
	log       *zap.Logger
}

// NewNotifier 创建通知器，topic 为空时使用 user.created
func NewNotifier(publisher Publisher, workers *pool.WorkerPool, topic string, metrics *monitoring.Metrics, log *zap.Logger) *Notifier {
	if topic == "" {
		topic = TopicUserCreated
	}
	return &Notifier{
		publisher: publisher,
		pool:      workers,
		topic:     topic,
		metrics:   metrics,
		log:       log,
	}
}

// UserCreated 发布用户创建事件
func (n *Notifier) UserCreated(ctx context.Context, user *domain.User) {
	event := NewUserCreated(user)
	payload, err := event.Encode()
	if err != nil {
		n.log.Warn("failed to encode user created event", zap.Int64("user_id", user.ID), zap.Error(err))
		return
	}

	// 脱离请求生命周期，保留链路信息
	taskCtx := context.WithoutCancel(ctx)
	submitted := n.pool.TrySubmit(func() {
		ctx, cancel := context.WithTimeout(taskCtx, publishTimeout)
		defer cancel()

		err := n.publisher.Publish(ctx, n.topic, payload)
		n.metrics.RecordEventPublished(n.topic, err)
		if err != nil {
			n.log.Warn("failed to publish user created event",
				zap.String("event_id", event.EventID),
				zap.Int64("user_id", user.ID),
				zap.Error(err),
			)
			return
		}
		n.log.Debug("user created event published", zap.String("event_id", event.EventID))
	})
	if !submitted {
		n.log.Warn("event queue full, dropping user created event",
			zap.String("event_id", event.EventID),
			zap.Int64("user_id", user.ID),
		)
	}
}
