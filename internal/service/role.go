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
	ErrRoleNotFound = errors.New("role not found")
	ErrRoleExists   = errors.New("role already exists")
)

// RoleService 角色管理服务
type RoleService struct {
	store storage.RoleRepository
	log   *zap.Logger
}

// NewRoleService 创建角色服务
func NewRoleService(store storage.RoleRepository, log *zap.Logger) *RoleService {
	return &RoleService{store: store, log: log}
}

// Create 创建角色
func (s *RoleService) Create(ctx context.Context, name string) (*domain.Role, error) {
	name = strings.TrimSpace(name)
	if err := domain.ValidateName(name); err != nil {
		return nil, err
	}

	role := &domain.Role{RoleName: name}
	if err := s.store.CreateRole(ctx, role); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return nil, ErrRoleExists
		}
		return nil, err
	}
	s.log.Info("role created", zap.Int64("role_id", role.ID), zap.String("role_name", role.RoleName))
	return role, nil
}

// Get 根据 ID 获取角色
func (s *RoleService) Get(ctx context.Context, id int64) (*domain.Role, error) {
	role, err := s.store.GetRoleByID(ctx, id)
	if err != nil {
		return nil, mapNotFound(err, ErrRoleNotFound)
	}
	return role, nil
}

// GetByName 根据名称获取角色
func (s *RoleService) GetByName(ctx context.Context, name string) (*domain.Role, error) {
	role, err := s.store.GetRoleByName(ctx, name)
	if err != nil {
		return nil, mapNotFound(err, ErrRoleNotFound)
	}
	return role, nil
}

// List 返回全部角色
func (s *RoleService) List(ctx context.Context) ([]domain.Role, error) {
	return s.store.ListRoles(ctx)
}

// Rename 重命名角色
func (s *RoleService) Rename(ctx context.Context, id int64, name string) (*domain.Role, error) {
	name = strings.TrimSpace(name)
	if err := domain.ValidateName(name); err != nil {
		return nil, err
	}

	role, err := s.store.GetRoleByID(ctx, id)
	if err != nil {
		return nil, mapNotFound(err, ErrRoleNotFound)
	}
	role.RoleName = name
	if err := s.store.UpdateRole(ctx, role); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return nil, ErrRoleExists
		}
		return nil, mapNotFound(err, ErrRoleNotFound)
	}
	return role, nil
}

// Delete 删除角色及其关联
func (s *RoleService) Delete(ctx context.Context, id int64) error {
	if err := s.store.DeleteRole(ctx, id); err != nil {
		return mapNotFound(err, ErrRoleNotFound)
	}
	s.log.Info("role deleted", zap.Int64("role_id", id))
	return nil
}
