package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"usercenter/backend/internal/domain"
	"usercenter/backend/internal/storage"
)

var (
	ErrPermissionNotFound = errors.New("permission not found")
	ErrPermissionExists   = errors.New("permission already exists")
)

// PermissionInput 创建或更新权限的参数
type PermissionInput struct {
	Name        string
	Description string
}

// PermissionService 权限管理服务
type PermissionService struct {
	store storage.PermissionRepository
	log   *zap.Logger
}

// NewPermissionService 创建权限服务
func NewPermissionService(store storage.PermissionRepository, log *zap.Logger) *PermissionService {
	return &PermissionService{store: store, log: log}
}

// Create 创建权限
func (s *PermissionService) Create(ctx context.Context, input PermissionInput) (*domain.Permission, error) {
	name := strings.TrimSpace(input.Name)
	if err := domain.ValidateName(name); err != nil {
		return nil, err
	}

	perm := &domain.Permission{PermissionName: name, Description: strings.TrimSpace(input.Description)}
	if err := s.store.CreatePermission(ctx, perm); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return nil, ErrPermissionExists
		}
		return nil, err
	}
	s.log.Info("permission created", zap.Int64("permission_id", perm.ID), zap.String("permission_name", perm.PermissionName))
	return perm, nil
}

// Get 根据 ID 获取权限
func (s *PermissionService) Get(ctx context.Context, id int64) (*domain.Permission, error) {
	perm, err := s.store.GetPermissionByID(ctx, id)
	if err != nil {
		return nil, mapNotFound(err, ErrPermissionNotFound)
	}
	return perm, nil
}

// GetByName 根据名称获取权限
func (s *PermissionService) GetByName(ctx context.Context, name string) (*domain.Permission, error) {
	perm, err := s.store.GetPermissionByName(ctx, name)
	if err != nil {
		return nil, mapNotFound(err, ErrPermissionNotFound)
	}
	return perm, nil
}

// List 返回全部权限
func (s *PermissionService) List(ctx context.Context) ([]domain.Permission, error) {
	return s.store.ListPermissions(ctx)
}

// Update 更新权限名称与描述
func (s *PermissionService) Update(ctx context.Context, id int64, input PermissionInput) (*domain.Permission, error) {
	name := strings.TrimSpace(input.Name)
	if err := domain.ValidateName(name); err != nil {
		return nil, err
	}

	perm, err := s.store.GetPermissionByID(ctx, id)
	if err != nil {
		return nil, mapNotFound(err, ErrPermissionNotFound)
	}
	perm.PermissionName = name
	perm.Description = strings.TrimSpace(input.Description)
	if err := s.store.UpdatePermission(ctx, perm); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return nil, ErrPermissionExists
		}
		return nil, mapNotFound(err, ErrPermissionNotFound)
	}
	return perm, nil
}

// Delete 删除权限及其角色关联
func (s *PermissionService) Delete(ctx context.Context, id int64) error {
	if err := s.store.DeletePermission(ctx, id); err != nil {
		return mapNotFound(err, ErrPermissionNotFound)
	}
	s.log.Info("permission deleted", zap.Int64("permission_id", id))
	return nil
}
