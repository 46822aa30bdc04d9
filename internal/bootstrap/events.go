package bootstrap

import (
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"usercenter/backend/internal/config"
	"usercenter/backend/internal/events"
	"usercenter/backend/internal/storage/redis"
)

// NewPublisher 按队列类型创建带重试的事件发布者
//
// 队列类型为 none 时返回 (nil, nil, nil)。
func NewPublisher(cfg *config.Config, log *zap.Logger) (events.Publisher, func() error, error) {
	var (
		publisher events.Publisher
		closer    func() error
	)

	switch cfg.Queue.Type {
	case "", "none":
		return nil, nil, nil
	case "redis":
		q := events.NewRedisQueue(redis.Options(&cfg.Redis), log)
		publisher, closer = q, q.Close
	case "kafka":
		p, err := events.NewKafkaPublisher(cfg.Queue.Brokers)
		if err != nil {
			return nil, nil, err
		}
		publisher, closer = p, p.Close
	default:
		return nil, nil, fmt.Errorf("unsupported queue type: %s", cfg.Queue.Type)
	}

	log.Info("event publisher enabled",
		zap.String("type", cfg.Queue.Type),
		zap.String("topic", cfg.Queue.Topic),
		zap.Int("max_attempts", cfg.Queue.MaxAttempts),
	)
	return events.NewRetrying(publisher, cfg.Queue.RetryInterval, cfg.Queue.MaxAttempts, log), closer, nil
}

// NewConsumer 按队列类型创建事件消费者
func NewConsumer(cfg *config.Config, log *zap.Logger) (events.Consumer, error) {
	switch cfg.Queue.Type {
	case "redis":
		rdb := goredis.NewClient(redis.Options(&cfg.Redis))
		return events.NewRedisConsumer(rdb, cfg.Queue.Topic, log), nil
	case "kafka":
		return events.NewKafkaConsumer(cfg.Queue.Brokers, cfg.Queue.GroupID, cfg.Queue.Topic, log)
	default:
		return nil, fmt.Errorf("queue type %q has no consumer", cfg.Queue.Type)
	}
}
