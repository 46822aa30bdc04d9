package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"usercenter/backend/internal/domain"
	"usercenter/backend/internal/monitoring"
	"usercenter/backend/internal/storage"
)

// APIKeyService API Key 生命周期管理
//
// 状态迁移: active -> inactive（终态），不可回退。
// 失效默认惰性执行，仅在校验时触发；Reap 为可选的后台批量清理。
type APIKeyService struct {
	store   storage.APIKeyRepository
	metrics *monitoring.Metrics
	log     *zap.Logger
	now     func() time.Time
}

// NewAPIKeyService 创建 API Key 服务
func NewAPIKeyService(store storage.APIKeyRepository, metrics *monitoring.Metrics, log *zap.Logger) *APIKeyService {
	return &APIKeyService{
		store:   store,
		metrics: metrics,
		log:     log,
		now:     time.Now,
	}
}

// Issue 为用户持久化新签发的令牌
//
// 令牌重复时返回 storage.ErrConflict。
func (s *APIKeyService) Issue(ctx context.Context, user *domain.User, token string, expiresAt time.Time) (*domain.APIKey, error) {
	key := &domain.APIKey{
		APIKey:    token,
		UserID:    user.ID,
		IsActive:  true,
		ExpiresAt: expiresAt.UTC(),
	}
	if err := s.store.InsertAPIKey(ctx, key); err != nil {
		return nil, err
	}
	s.metrics.RecordAPIKeyIssued()
	return key, nil
}

// ValidateActive 判断令牌当前是否可用，不修改任何状态
func (s *APIKeyService) ValidateActive(ctx context.Context, token string) (bool, error) {
	key, err := s.ActiveKey(ctx, token)
	if err != nil {
		return false, err
	}
	return key != nil, nil
}

// ActiveKey 返回令牌对应的可用记录，不可用时返回 (nil, nil)
func (s *APIKeyService) ActiveKey(ctx context.Context, token string) (*domain.APIKey, error) {
	key, err := s.store.FindUsableAPIKey(ctx, token, s.now())
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("find usable api key: %w", err)
	}
	return key, nil
}

// ExpireIfPastDue 若令牌仍为激活状态但已过期，则将其置为失效
//
// 返回 true 表示本次调用完成了状态迁移。
// 并发调用同一令牌时只有一个调用者返回 true，其余为无害的空操作。
func (s *APIKeyService) ExpireIfPastDue(ctx context.Context, token string) (bool, error) {
	key, err := s.store.FindExpiredAPIKey(ctx, token, s.now())
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("find expired api key: %w", err)
	}

	moved, err := s.store.MarkAPIKeyInactive(ctx, key.ID)
	if err != nil {
		return false, err
	}
	if moved {
		s.metrics.RecordAPIKeysExpired(monitoring.ExpiryLazy, 1)
		s.log.Debug("api key expired", zap.Int64("api_key_id", key.ID), zap.Int64("user_id", key.UserID))
	}
	return moved, nil
}

// Reap 批量失效所有已过期的激活记录
func (s *APIKeyService) Reap(ctx context.Context) (int64, error) {
	count, err := s.store.DeactivateExpiredAPIKeys(ctx, s.now())
	if err != nil {
		return 0, err
	}
	s.metrics.RecordAPIKeysExpired(monitoring.ExpiryReaper, count)
	return count, nil
}
