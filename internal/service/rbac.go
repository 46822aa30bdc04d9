package service

import (
	"context"
	"errors"
	"fmt"

	"usercenter/backend/internal/domain"
)

var (
	// ErrNotPermitted RBAC 拒绝，对外统一展示的错误
	ErrNotPermitted = errors.New("not permitted")
	// ErrNoRoleAssigned 用户未分配任何角色
	ErrNoRoleAssigned = fmt.Errorf("%w: no role assigned", ErrNotPermitted)
	// ErrPermissionDenied 用户的角色均不包含所需权限
	ErrPermissionDenied = fmt.Errorf("%w: permission denied", ErrNotPermitted)
)

// RoleLookup RBAC 判定所需的两次查询
type RoleLookup interface {
	ListRolesForUser(ctx context.Context, userID int64) ([]domain.Role, error)
	ListPermissionsForRole(ctx context.Context, roleName string) ([]domain.Permission, error)
}

// RBACService 基于 user -> role -> permission 的访问控制判定
//
// 用户的有效权限为其全部角色权限的并集。
// 判定结果本身不缓存，两次查询由存储层缓存。
type RBACService struct {
	lookup RoleLookup
}

// NewRBACService 创建 RBAC 服务
func NewRBACService(lookup RoleLookup) *RBACService {
	return &RBACService{lookup: lookup}
}

// Check 判断用户是否拥有 action 对应的权限
//
// 返回值:
//   - ErrNoRoleAssigned: 用户没有任何角色
//   - ErrPermissionDenied: 所有角色均不包含该权限
//   - 其他错误: 存储查询失败
func (s *RBACService) Check(ctx context.Context, user *domain.User, action string) error {
	roles, err := s.lookup.ListRolesForUser(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("list roles for user %d: %w", user.ID, err)
	}
	if len(roles) == 0 {
		return ErrNoRoleAssigned
	}

	for _, role := range roles {
		perms, err := s.lookup.ListPermissionsForRole(ctx, role.RoleName)
		if err != nil {
			return fmt.Errorf("list permissions for role %q: %w", role.RoleName, err)
		}
		for _, perm := range perms {
			if perm.PermissionName == action {
				return nil
			}
		}
	}
	return ErrPermissionDenied
}

// Authorize 返回用户是否被允许执行 action，仅在查询失败时返回错误
func (s *RBACService) Authorize(ctx context.Context, user *domain.User, action string) (bool, error) {
	err := s.Check(ctx, user, action)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotPermitted):
		return false, nil
	default:
		return false, err
	}
}
