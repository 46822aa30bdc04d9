package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"usercenter/backend/internal/domain"
	"usercenter/backend/internal/monitoring"
	"usercenter/backend/internal/storage"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUserExists         = errors.New("user already exists")
	ErrUsernameExists     = fmt.Errorf("%w: username taken", ErrUserExists)
	ErrEmailExists        = fmt.Errorf("%w: email taken", ErrUserExists)
	ErrRoleAlreadyGranted = errors.New("role already assigned to user")
	ErrPermAlreadyGranted = errors.New("permission already assigned to role")
	ErrAssignmentNotFound = errors.New("assignment not found")
)

// PasswordHasher 密码哈希
type PasswordHasher interface {
	Hash(plain string) (string, error)
}

// UserNotifier 用户事件通知，失败不影响调用方
type UserNotifier interface {
	UserCreated(ctx context.Context, user *domain.User)
}

// UserService 用户业务逻辑服务
type UserService struct {
	store    storage.Store
	hasher   PasswordHasher
	notifier UserNotifier
	metrics  *monitoring.Metrics
	log      *zap.Logger
}

// NewUserService 创建用户服务，notifier 可为 nil
func NewUserService(store storage.Store, hasher PasswordHasher, notifier UserNotifier, metrics *monitoring.Metrics, log *zap.Logger) *UserService {
	return &UserService{
		store:    store,
		hasher:   hasher,
		notifier: notifier,
		metrics:  metrics,
		log:      log,
	}
}

// RegisterInput 注册参数
type RegisterInput struct {
	Username string
	Email    string
	Password string
}

// UpdateUserInput 部分更新参数，nil 字段保持不变
type UpdateUserInput struct {
	Username   *string
	Email      *string
	Password   *string
	IsActive   *bool
	IsDisabled *bool
}

// Register 注册新用户
//
// 用户名与邮箱均需唯一。注册成功后异步发布 user.created 事件。
func (s *UserService) Register(ctx context.Context, input RegisterInput) (*domain.User, error) {
	username := strings.TrimSpace(input.Username)
	email := strings.ToLower(strings.TrimSpace(input.Email))

	if err := domain.ValidateUsername(username); err != nil {
		return nil, err
	}
	if err := domain.ValidateEmail(email); err != nil {
		return nil, err
	}
	if err := domain.ValidatePassword(input.Password); err != nil {
		return nil, err
	}

	if err := s.ensureUnique(ctx, 0, username, email); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &domain.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		IsActive:     true,
		IsDisabled:   false,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return nil, ErrUserExists
		}
		return nil, err
	}

	s.metrics.RecordUserRegistered()
	s.log.Info("user registered", zap.Int64("user_id", user.ID), zap.String("username", user.Username))

	if s.notifier != nil {
		s.notifier.UserCreated(ctx, user)
	}
	return user, nil
}

// ensureUnique 检查用户名和邮箱未被其他用户占用
func (s *UserService) ensureUnique(ctx context.Context, selfID int64, username, email string) error {
	if username != "" {
		existing, err := s.store.GetUserByUsername(ctx, username)
		if err == nil && existing.ID != selfID {
			return ErrUsernameExists
		}
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return err
		}
	}
	if email != "" {
		existing, err := s.store.GetUserByEmail(ctx, email)
		if err == nil && existing.ID != selfID {
			return ErrEmailExists
		}
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return err
		}
	}
	return nil
}

// Get 根据 ID 获取用户
func (s *UserService) Get(ctx context.Context, id int64) (*domain.User, error) {
	user, err := s.store.GetUserByID(ctx, id)
	if err != nil {
		return nil, mapNotFound(err, ErrUserNotFound)
	}
	return user, nil
}

// Update 部分更新用户
func (s *UserService) Update(ctx context.Context, id int64, input UpdateUserInput) (*domain.User, error) {
	user, err := s.store.GetUserByID(ctx, id)
	if err != nil {
		return nil, mapNotFound(err, ErrUserNotFound)
	}

	var newUsername, newEmail string
	if input.Username != nil {
		newUsername = strings.TrimSpace(*input.Username)
		if err := domain.ValidateUsername(newUsername); err != nil {
			return nil, err
		}
	}
	if input.Email != nil {
		newEmail = strings.ToLower(strings.TrimSpace(*input.Email))
		if err := domain.ValidateEmail(newEmail); err != nil {
			return nil, err
		}
	}
	if err := s.ensureUnique(ctx, user.ID, newUsername, newEmail); err != nil {
		return nil, err
	}

	if newUsername != "" {
		user.Username = newUsername
	}
	if newEmail != "" {
		user.Email = newEmail
	}
	if input.Password != nil {
		if err := domain.ValidatePassword(*input.Password); err != nil {
			return nil, err
		}
		hash, err := s.hasher.Hash(*input.Password)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		user.PasswordHash = hash
	}
	if input.IsActive != nil {
		user.IsActive = *input.IsActive
	}
	if input.IsDisabled != nil {
		user.IsDisabled = *input.IsDisabled
	}

	if err := s.store.UpdateUser(ctx, user); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return nil, ErrUserExists
		}
		return nil, mapNotFound(err, ErrUserNotFound)
	}
	return user, nil
}

// Delete 删除用户及其资料、角色关联和 API Key
func (s *UserService) Delete(ctx context.Context, id int64) error {
	if err := s.store.DeleteUser(ctx, id); err != nil {
		return mapNotFound(err, ErrUserNotFound)
	}
	s.log.Info("user deleted", zap.Int64("user_id", id))
	return nil
}

// SaveProfile 新建或覆盖用户资料
func (s *UserService) SaveProfile(ctx context.Context, profile *domain.UserProfile) (*domain.UserProfile, error) {
	if err := domain.ValidateProfile(profile); err != nil {
		return nil, err
	}
	if err := s.store.SaveProfile(ctx, profile); err != nil {
		return nil, mapNotFound(err, ErrUserNotFound)
	}
	return profile, nil
}

// GetProfile 获取用户资料
func (s *UserService) GetProfile(ctx context.Context, userID int64) (*domain.UserProfile, error) {
	profile, err := s.store.GetProfile(ctx, userID)
	if err != nil {
		return nil, mapNotFound(err, ErrUserNotFound)
	}
	return profile, nil
}

// AssignRole 为用户分配角色
func (s *UserService) AssignRole(ctx context.Context, userID, roleID int64) (*domain.UserRole, error) {
	if _, err := s.store.GetUserByID(ctx, userID); err != nil {
		return nil, mapNotFound(err, ErrUserNotFound)
	}
	if _, err := s.store.GetRoleByID(ctx, roleID); err != nil {
		return nil, mapNotFound(err, ErrRoleNotFound)
	}

	link, err := s.store.AssignRole(ctx, userID, roleID)
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return nil, ErrRoleAlreadyGranted
		}
		return nil, mapNotFound(err, ErrAssignmentNotFound)
	}
	s.log.Info("role assigned", zap.Int64("user_id", userID), zap.Int64("role_id", roleID))
	return link, nil
}

// RevokeRole 撤销用户的角色
func (s *UserService) RevokeRole(ctx context.Context, userID, roleID int64) error {
	if err := s.store.RevokeRole(ctx, userID, roleID); err != nil {
		return mapNotFound(err, ErrAssignmentNotFound)
	}
	return nil
}

// AssignPermission 为角色授予权限
func (s *UserService) AssignPermission(ctx context.Context, roleID, permissionID int64) (*domain.RolePermission, error) {
	if _, err := s.store.GetRoleByID(ctx, roleID); err != nil {
		return nil, mapNotFound(err, ErrRoleNotFound)
	}
	if _, err := s.store.GetPermissionByID(ctx, permissionID); err != nil {
		return nil, mapNotFound(err, ErrPermissionNotFound)
	}

	link, err := s.store.AssignPermission(ctx, roleID, permissionID)
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return nil, ErrPermAlreadyGranted
		}
		return nil, mapNotFound(err, ErrAssignmentNotFound)
	}
	s.log.Info("permission assigned", zap.Int64("role_id", roleID), zap.Int64("permission_id", permissionID))
	return link, nil
}

// RevokePermission 撤销角色的权限
func (s *UserService) RevokePermission(ctx context.Context, roleID, permissionID int64) error {
	if err := s.store.RevokePermission(ctx, roleID, permissionID); err != nil {
		return mapNotFound(err, ErrAssignmentNotFound)
	}
	return nil
}

// ListRoles 返回用户的全部角色
func (s *UserService) ListRoles(ctx context.Context, userID int64) ([]domain.Role, error) {
	return s.store.ListRolesForUser(ctx, userID)
}

// mapNotFound 将 storage.ErrNotFound 替换为业务错误
func mapNotFound(err, target error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return target
	}
	return err
}
