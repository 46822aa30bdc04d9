// Package bootstrap 根据配置组装存储、缓存与事件组件，供各命令行入口共用。
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"usercenter/backend/internal/cache"
	"usercenter/backend/internal/config"
	"usercenter/backend/internal/storage"
	"usercenter/backend/internal/storage/hybrid"
	"usercenter/backend/internal/storage/memory"
	"usercenter/backend/internal/storage/postgres"
	"usercenter/backend/internal/storage/redis"
)

// Backend 已初始化的存储后端
type Backend struct {
	// Store 启用缓存时为读穿缓存存储
	Store storage.Store
	// Database 底层持久化存储，用于健康检查
	Database storage.Store
	// Redis 配置了 Redis 地址时非 nil
	Redis *redis.Client

	closers []func() error
}

// OpenBackend 按配置打开存储后端
//
// 存储类型为 memory、postgres 或 mysql；启用缓存时优先使用 Redis，
// 未配置 Redis 则退化为进程内 LRU 缓存。
func OpenBackend(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Backend, error) {
	b := &Backend{}

	db, err := openDatabase(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	b.Database = db
	b.Store = db
	b.closers = append(b.closers, db.Close)

	if cfg.Redis.Address != "" {
		client, err := redis.New(ctx, &cfg.Redis, log)
		if err != nil {
			_ = b.Close()
			return nil, err
		}
		b.Redis = client
		b.closers = append(b.closers, client.Close)
	}

	if cfg.Cache.Enabled {
		c, err := b.newCache(cfg.Cache)
		if err != nil {
			_ = b.Close()
			return nil, err
		}
		b.Store = hybrid.NewStore(db, c, cfg.Cache.TTL, log)
		log.Info("read-through cache enabled",
			zap.Bool("redis", b.Redis != nil),
			zap.Duration("ttl", cfg.Cache.TTL),
		)
	}

	return b, nil
}

func openDatabase(ctx context.Context, cfg *config.Config, log *zap.Logger) (storage.Store, error) {
	switch cfg.Storage.Type {
	case "memory":
		log.Info("using memory storage")
		return memory.NewStore(), nil
	case "postgres", "postgresql":
		store, err := postgres.NewStore(ctx, &cfg.Database, log)
		if err != nil {
			return nil, fmt.Errorf("open postgres storage: %w", err)
		}
		log.Info("using postgres storage", zap.Bool("auto_migrate", cfg.Database.AutoMigrate))
		return store, nil
	case "mysql":
		store, err := postgres.NewMySQLStore(&cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("open mysql storage: %w", err)
		}
		log.Info("using mysql storage", zap.Bool("auto_migrate", cfg.Database.AutoMigrate))
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Storage.Type)
	}
}

func (b *Backend) newCache(cfg config.CacheConfig) (cache.Cache, error) {
	if b.Redis != nil {
		return redis.NewCache(b.Redis.Client()), nil
	}
	return cache.NewLocalCache(cfg.LocalSize, cfg.TTL)
}

// Close 逆序关闭全部资源
func (b *Backend) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	b.closers = nil
	return errors.Join(errs...)
}
