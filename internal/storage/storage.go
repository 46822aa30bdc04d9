package storage

import (
	"context"
	"errors"
	"time"

	"usercenter/backend/internal/domain"
)

var (
	// ErrNotFound 记录不存在
	ErrNotFound = errors.New("record not found")
	// ErrConflict 违反唯一约束
	ErrConflict = errors.New("record already exists")
)

// UserRepository 定义用户数据存取操作。
type UserRepository interface {
	CreateUser(ctx context.Context, user *domain.User) error
	GetUserByID(ctx context.Context, id int64) (*domain.User, error)
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	UpdateUser(ctx context.Context, user *domain.User) error
	// DeleteUser 同时删除资料、角色关联与 API Key
	DeleteUser(ctx context.Context, id int64) error

	SaveProfile(ctx context.Context, profile *domain.UserProfile) error
	GetProfile(ctx context.Context, userID int64) (*domain.UserProfile, error)
}

// RoleRepository 定义角色数据存取操作。
type RoleRepository interface {
	CreateRole(ctx context.Context, role *domain.Role) error
	GetRoleByID(ctx context.Context, id int64) (*domain.Role, error)
	GetRoleByName(ctx context.Context, name string) (*domain.Role, error)
	ListRoles(ctx context.Context) ([]domain.Role, error)
	UpdateRole(ctx context.Context, role *domain.Role) error
	// DeleteRole 同时删除该角色的用户关联与权限关联
	DeleteRole(ctx context.Context, id int64) error
}

// PermissionRepository 定义权限数据存取操作。
type PermissionRepository interface {
	CreatePermission(ctx context.Context, perm *domain.Permission) error
	GetPermissionByID(ctx context.Context, id int64) (*domain.Permission, error)
	GetPermissionByName(ctx context.Context, name string) (*domain.Permission, error)
	ListPermissions(ctx context.Context) ([]domain.Permission, error)
	UpdatePermission(ctx context.Context, perm *domain.Permission) error
	// DeletePermission 同时删除该权限的角色关联
	DeletePermission(ctx context.Context, id int64) error
}

// AssignmentRepository 定义 user->role->permission 关联的存取操作。
//
// 关联记录创建后不可修改，只能删除。
type AssignmentRepository interface {
	// AssignRole 任一端不存在返回 ErrNotFound，重复关联返回 ErrConflict
	AssignRole(ctx context.Context, userID, roleID int64) (*domain.UserRole, error)
	RevokeRole(ctx context.Context, userID, roleID int64) error
	// AssignPermission 任一端不存在返回 ErrNotFound，重复关联返回 ErrConflict
	AssignPermission(ctx context.Context, roleID, permissionID int64) (*domain.RolePermission, error)
	RevokePermission(ctx context.Context, roleID, permissionID int64) error

	// ListRolesForUser 按角色 ID 升序返回用户的全部角色
	ListRolesForUser(ctx context.Context, userID int64) ([]domain.Role, error)
	// ListPermissionsForRole 角色不存在时返回空集合
	ListPermissionsForRole(ctx context.Context, roleName string) ([]domain.Permission, error)
}

// APIKeyRepository 定义 API Key 数据存取操作。
type APIKeyRepository interface {
	// InsertAPIKey 令牌重复时返回 ErrConflict
	InsertAPIKey(ctx context.Context, key *domain.APIKey) error
	GetAPIKeyByToken(ctx context.Context, token string) (*domain.APIKey, error)
	ListAPIKeysByUser(ctx context.Context, userID int64) ([]domain.APIKey, error)

	// FindUsableAPIKey 返回 is_active=true、expires_at > now 且所属用户激活的记录
	FindUsableAPIKey(ctx context.Context, token string, now time.Time) (*domain.APIKey, error)
	// FindExpiredAPIKey 返回 is_active=true 且 expires_at < now 的记录
	FindExpiredAPIKey(ctx context.Context, token string, now time.Time) (*domain.APIKey, error)

	// MarkAPIKeyInactive 仅当记录仍为激活状态时置为失效，返回是否发生了状态迁移。
	// 已失效的记录返回 (false, nil)。
	MarkAPIKeyInactive(ctx context.Context, id int64) (bool, error)
	// DeactivateExpiredAPIKeys 批量失效所有已过期的激活记录，返回迁移数量
	DeactivateExpiredAPIKeys(ctx context.Context, now time.Time) (int64, error)
}

// Store 聚合所有存储接口
type Store interface {
	UserRepository
	RoleRepository
	PermissionRepository
	AssignmentRepository
	APIKeyRepository

	Ping(ctx context.Context) error
	Close() error
}
