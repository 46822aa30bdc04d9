package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"usercenter/backend/internal/bootstrap"
	"usercenter/backend/internal/config"
	"usercenter/backend/internal/events"
	"usercenter/backend/internal/logger"
)

// main 消费用户创建事件并写入日志
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	log, err := logger.NewLogger(logger.Config{
		Service:     "usercenter-consumer",
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
		LogFile:     cfg.Log.File,
		MaxSize:     100,
		MaxBackups:  3,
		MaxAge:      28,
		Compress:    true,
	})
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	consumer, err := bootstrap.NewConsumer(cfg, log)
	if err != nil {
		log.Fatal("failed to create consumer", zap.Error(err))
	}
	defer func() { _ = consumer.Close() }()

	log.Info("consuming user events",
		zap.String("queue", cfg.Queue.Type),
		zap.String("topic", cfg.Queue.Topic),
	)

	if err := consumer.Consume(ctx, logUserCreated(log)); err != nil {
		log.Error("consumer stopped", zap.Error(err))
		return
	}
	log.Info("consumer exited cleanly")
}

func logUserCreated(log *zap.Logger) events.Handler {
	return func(_ context.Context, msg events.Message) error {
		event, err := events.DecodeUserCreated(msg.Payload)
		if err != nil {
			return err
		}
		log.Info("user created",
			zap.String("event_id", event.EventID),
			zap.Int64("user_id", event.UserID),
			zap.String("username", event.Username),
			zap.String("email", event.Email),
			zap.Time("created_at", event.CreatedAt),
		)
		return nil
	}
}
