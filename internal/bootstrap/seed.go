package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"usercenter/backend/internal/config"
	"usercenter/backend/internal/domain"
	"usercenter/backend/internal/service"
	"usercenter/backend/internal/storage"
)

// SeedRBAC 确保内置角色与权限存在，可重复执行
//
//   - admin: generate-token, manage-roles
//   - api-user: generate-token
func SeedRBAC(ctx context.Context, store storage.Store, cfg config.AuthConfig, log *zap.Logger) error {
	tokenPerm, err := ensurePermission(ctx, store, cfg.TokenPermission, "签发访问令牌")
	if err != nil {
		return err
	}
	managePerm, err := ensurePermission(ctx, store, cfg.ManagePermission, "管理用户、角色与权限")
	if err != nil {
		return err
	}

	grants := map[string][]*domain.Permission{
		domain.RoleAdmin:   {tokenPerm, managePerm},
		domain.RoleAPIUser: {tokenPerm},
	}
	for roleName, perms := range grants {
		role, err := ensureRole(ctx, store, roleName)
		if err != nil {
			return err
		}
		for _, perm := range perms {
			if _, err := store.AssignPermission(ctx, role.ID, perm.ID); err != nil && !errors.Is(err, storage.ErrConflict) {
				return fmt.Errorf("grant %s to %s: %w", perm.PermissionName, roleName, err)
			}
		}
	}

	log.Info("built-in roles ensured",
		zap.String("token_permission", cfg.TokenPermission),
		zap.String("manage_permission", cfg.ManagePermission),
	)
	return nil
}

func ensurePermission(ctx context.Context, store storage.Store, name, description string) (*domain.Permission, error) {
	perm, err := store.GetPermissionByName(ctx, name)
	if err == nil {
		return perm, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("load permission %s: %w", name, err)
	}

	perm = &domain.Permission{PermissionName: name, Description: description}
	if err := store.CreatePermission(ctx, perm); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return store.GetPermissionByName(ctx, name)
		}
		return nil, fmt.Errorf("create permission %s: %w", name, err)
	}
	return perm, nil
}

func ensureRole(ctx context.Context, store storage.Store, name string) (*domain.Role, error) {
	role, err := store.GetRoleByName(ctx, name)
	if err == nil {
		return role, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("load role %s: %w", name, err)
	}

	role = &domain.Role{RoleName: name}
	if err := store.CreateRole(ctx, role); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return store.GetRoleByName(ctx, name)
		}
		return nil, fmt.Errorf("create role %s: %w", name, err)
	}
	return role, nil
}

// AdminInput 管理员账号参数
type AdminInput struct {
	Username string
	Email    string
	Password string
}

// EnsureAdmin 创建管理员账号并授予 admin 角色
//
// 用户名已存在时只补充角色，不修改密码。
func EnsureAdmin(ctx context.Context, store storage.Store, hasher service.PasswordHasher, input AdminInput, log *zap.Logger) (*domain.User, error) {
	users := service.NewUserService(store, hasher, nil, nil, log)

	user, err := users.Register(ctx, service.RegisterInput{
		Username: input.Username,
		Email:    input.Email,
		Password: input.Password,
	})
	switch {
	case err == nil:
	case errors.Is(err, service.ErrUsernameExists):
		user, err = store.GetUserByUsername(ctx, input.Username)
		if err != nil {
			return nil, fmt.Errorf("load existing admin: %w", err)
		}
		log.Info("admin user already exists", zap.String("username", input.Username))
	default:
		return nil, err
	}

	role, err := store.GetRoleByName(ctx, domain.RoleAdmin)
	if err != nil {
		return nil, fmt.Errorf("load admin role: %w", err)
	}
	if _, err := users.AssignRole(ctx, user.ID, role.ID); err != nil && !errors.Is(err, service.ErrRoleAlreadyGranted) {
		return nil, err
	}
	return user, nil
}
