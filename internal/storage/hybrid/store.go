package hybrid

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"usercenter/backend/internal/cache"
	"usercenter/backend/internal/domain"
	"usercenter/backend/internal/storage"
)

// DefaultTTL 缓存条目默认有效期
const DefaultTTL = 60 * time.Second

// 缓存键格式
const (
	keyUserByID        = "users:get_user_by_id:%d"
	keyUserByUsername  = "users:get_user_by_username:%s"
	keyRolesByUserID   = "roles:byuserid:%d"
	keyRolePermissions = "role_permissions:get_role_permission:%s"
)

// Store 读穿缓存存储，包装任意 storage.Store
//
// 用户查询、用户角色列表和角色权限列表经过缓存，
// 其余操作（包括全部 API Key 查询）直接访问底层存储。
// 缓存读写失败只记录 debug 日志，不影响请求结果。
type Store struct {
	storage.Store

	cache cache.Cache
	ttl   time.Duration
	group singleflight.Group
	log   *zap.Logger
}

// NewStore 创建混合存储实例
func NewStore(inner storage.Store, c cache.Cache, ttl time.Duration, log *zap.Logger) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		Store: inner,
		cache: c,
		ttl:   ttl,
		log:   log,
	}
}

// userRecord 缓存中的用户表示，保留密码哈希
type userRecord struct {
	domain.User
	PasswordHash string `json:"password_hash"`
}

func newUserRecord(u *domain.User) *userRecord {
	return &userRecord{User: *u, PasswordHash: u.PasswordHash}
}

func (r *userRecord) user() *domain.User {
	u := r.User
	u.PasswordHash = r.PasswordHash
	return &u
}

// readThrough 先查缓存，未命中时由 singleflight 合并并发加载并回填缓存。
// 每个调用者各自解码一份结果，互不共享指针。
func readThrough[T any](ctx context.Context, s *Store, key string, load func(context.Context) (T, error)) (T, error) {
	var zero T

	raw, err := s.cache.Get(ctx, key)
	switch {
	case err == nil:
		var out T
		if err := json.Unmarshal([]byte(raw), &out); err == nil {
			return out, nil
		}
		s.log.Debug("discard undecodable cache entry", zap.String("key", key))
	case !errors.Is(err, cache.ErrMiss):
		s.log.Debug("cache get failed", zap.String("key", key), zap.Error(err))
	}

	// 合并后的加载不随首个调用者取消，每个调用者只等待自己的 ctx
	ch := s.group.DoChan(key, func() (interface{}, error) {
		loadCtx := context.WithoutCancel(ctx)
		value, err := load(loadCtx)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("encode cache value: %w", err)
		}
		if err := s.cache.Set(loadCtx, key, string(data), s.ttl); err != nil {
			s.log.Debug("cache set failed", zap.String("key", key), zap.Error(err))
		}
		return data, nil
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return zero, res.Err
	}

	var out T
	if err := json.Unmarshal(res.Val.([]byte), &out); err != nil {
		return zero, fmt.Errorf("decode cache value: %w", err)
	}
	return out, nil
}

func (s *Store) invalidate(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	if err := s.cache.Delete(ctx, keys...); err != nil {
		s.log.Debug("cache delete failed", zap.Strings("keys", keys), zap.Error(err))
	}
}

func (s *Store) userKeys(u *domain.User) []string {
	return []string{
		fmt.Sprintf(keyUserByID, u.ID),
		fmt.Sprintf(keyUserByUsername, u.Username),
	}
}

// ========== User Repository ==========

// GetUserByID 根据 ID 获取用户（缓存）
func (s *Store) GetUserByID(ctx context.Context, id int64) (*domain.User, error) {
	rec, err := readThrough(ctx, s, fmt.Sprintf(keyUserByID, id), func(ctx context.Context) (*userRecord, error) {
		u, err := s.Store.GetUserByID(ctx, id)
		if err != nil {
			return nil, err
		}
		return newUserRecord(u), nil
	})
	if err != nil {
		return nil, err
	}
	return rec.user(), nil
}

// GetUserByUsername 根据用户名获取用户（缓存）
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	rec, err := readThrough(ctx, s, fmt.Sprintf(keyUserByUsername, username), func(ctx context.Context) (*userRecord, error) {
		u, err := s.Store.GetUserByUsername(ctx, username)
		if err != nil {
			return nil, err
		}
		return newUserRecord(u), nil
	})
	if err != nil {
		return nil, err
	}
	return rec.user(), nil
}

// UpdateUser 更新用户并失效新旧用户名对应的缓存
func (s *Store) UpdateUser(ctx context.Context, user *domain.User) error {
	previous, err := s.Store.GetUserByID(ctx, user.ID)
	if err != nil {
		return err
	}
	if err := s.Store.UpdateUser(ctx, user); err != nil {
		return err
	}
	s.invalidate(ctx, append(s.userKeys(previous), fmt.Sprintf(keyUserByUsername, user.Username))...)
	return nil
}

// DeleteUser 删除用户并失效相关缓存
func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	previous, err := s.Store.GetUserByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.Store.DeleteUser(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, append(s.userKeys(previous), fmt.Sprintf(keyRolesByUserID, id))...)
	return nil
}

// ========== Role / Permission Repository ==========

// UpdateRole 重命名角色并失效新旧名称的权限缓存
func (s *Store) UpdateRole(ctx context.Context, role *domain.Role) error {
	previous, err := s.Store.GetRoleByID(ctx, role.ID)
	if err != nil {
		return err
	}
	if err := s.Store.UpdateRole(ctx, role); err != nil {
		return err
	}
	s.invalidate(ctx,
		fmt.Sprintf(keyRolePermissions, previous.RoleName),
		fmt.Sprintf(keyRolePermissions, role.RoleName),
	)
	return nil
}

// DeleteRole 删除角色并失效其权限缓存
func (s *Store) DeleteRole(ctx context.Context, id int64) error {
	previous, err := s.Store.GetRoleByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.Store.DeleteRole(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, fmt.Sprintf(keyRolePermissions, previous.RoleName))
	return nil
}

// UpdatePermission 更新权限并失效所有角色的权限缓存
func (s *Store) UpdatePermission(ctx context.Context, perm *domain.Permission) error {
	if err := s.Store.UpdatePermission(ctx, perm); err != nil {
		return err
	}
	s.invalidateAllRolePermissions(ctx)
	return nil
}

// DeletePermission 删除权限并失效所有角色的权限缓存
func (s *Store) DeletePermission(ctx context.Context, id int64) error {
	if err := s.Store.DeletePermission(ctx, id); err != nil {
		return err
	}
	s.invalidateAllRolePermissions(ctx)
	return nil
}

func (s *Store) invalidateAllRolePermissions(ctx context.Context) {
	roles, err := s.Store.ListRoles(ctx)
	if err != nil {
		s.log.Debug("list roles for cache invalidation failed", zap.Error(err))
		return
	}
	keys := make([]string, 0, len(roles))
	for _, role := range roles {
		keys = append(keys, fmt.Sprintf(keyRolePermissions, role.RoleName))
	}
	s.invalidate(ctx, keys...)
}

// ========== Assignment Repository ==========

// AssignRole 分配角色并失效用户角色缓存
func (s *Store) AssignRole(ctx context.Context, userID, roleID int64) (*domain.UserRole, error) {
	link, err := s.Store.AssignRole(ctx, userID, roleID)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, fmt.Sprintf(keyRolesByUserID, userID))
	return link, nil
}

// RevokeRole 撤销角色并失效用户角色缓存
func (s *Store) RevokeRole(ctx context.Context, userID, roleID int64) error {
	if err := s.Store.RevokeRole(ctx, userID, roleID); err != nil {
		return err
	}
	s.invalidate(ctx, fmt.Sprintf(keyRolesByUserID, userID))
	return nil
}

// AssignPermission 授予权限并失效角色权限缓存
func (s *Store) AssignPermission(ctx context.Context, roleID, permissionID int64) (*domain.RolePermission, error) {
	link, err := s.Store.AssignPermission(ctx, roleID, permissionID)
	if err != nil {
		return nil, err
	}
	s.invalidateRole(ctx, roleID)
	return link, nil
}

// RevokePermission 撤销权限并失效角色权限缓存
func (s *Store) RevokePermission(ctx context.Context, roleID, permissionID int64) error {
	if err := s.Store.RevokePermission(ctx, roleID, permissionID); err != nil {
		return err
	}
	s.invalidateRole(ctx, roleID)
	return nil
}

func (s *Store) invalidateRole(ctx context.Context, roleID int64) {
	role, err := s.Store.GetRoleByID(ctx, roleID)
	if err != nil {
		s.log.Debug("load role for cache invalidation failed", zap.Int64("role_id", roleID), zap.Error(err))
		return
	}
	s.invalidate(ctx, fmt.Sprintf(keyRolePermissions, role.RoleName))
}

// ListRolesForUser 返回用户的全部角色（缓存）
func (s *Store) ListRolesForUser(ctx context.Context, userID int64) ([]domain.Role, error) {
	return readThrough(ctx, s, fmt.Sprintf(keyRolesByUserID, userID), func(ctx context.Context) ([]domain.Role, error) {
		return s.Store.ListRolesForUser(ctx, userID)
	})
}

// ListPermissionsForRole 返回角色的全部权限（缓存）
func (s *Store) ListPermissionsForRole(ctx context.Context, roleName string) ([]domain.Permission, error) {
	return readThrough(ctx, s, fmt.Sprintf(keyRolePermissions, roleName), func(ctx context.Context) ([]domain.Permission, error) {
		return s.Store.ListPermissionsForRole(ctx, roleName)
	})
}

var _ storage.Store = (*Store)(nil)
