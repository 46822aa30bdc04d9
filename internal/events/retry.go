package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// 默认重试参数
const (
	DefaultRetryInterval = 2 * time.Second
	DefaultMaxAttempts   = 5
)

// Retrying 以固定间隔重试发布，超过次数后返回最后一次错误
type Retrying struct {
	next     Publisher
	interval time.Duration
	attempts int
	log      *zap.Logger
}

// NewRetrying 包装发布者
func NewRetrying(next Publisher, interval time.Duration, attempts int, log *zap.Logger) *Retrying {
	if interval <= 0 {
		interval = DefaultRetryInterval
	}
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}
	return &Retrying{next: next, interval: interval, attempts: attempts, log: log}
}

func (r *Retrying) policy(ctx context.Context) backoff.BackOffContext {
	constant := backoff.NewConstantBackOff(r.interval)
	return backoff.WithContext(backoff.WithMaxRetries(constant, uint64(r.attempts-1)), ctx)
}

// Publish 发布事件，失败时按固定间隔重试
func (r *Retrying) Publish(ctx context.Context, topic string, payload []byte) error {
	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		return r.next.Publish(ctx, topic, payload)
	}, r.policy(ctx), func(err error, wait time.Duration) {
		r.log.Debug("publish attempt failed",
			zap.String("topic", topic),
			zap.Int("attempt", attempt),
			zap.Duration("retry_in", wait),
			zap.Error(err),
		)
	})
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		return fmt.Errorf("publish to %s canceled after %d attempts: %w", topic, attempt, err)
	}
	return fmt.Errorf("publish to %s failed after %d attempts: %w", topic, attempt, err)
}
