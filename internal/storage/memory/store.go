package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"usercenter/backend/internal/domain"
	"usercenter/backend/internal/storage"
)

type userRoleKey struct{ userID, roleID int64 }

type rolePermKey struct{ roleID, permissionID int64 }

// Store 使用内存保存凭证数据，主要用于开发验证与测试。
//
// 所有返回值均为副本，调用方修改不会影响存储内容。
type Store struct {
	mu sync.RWMutex

	users      map[int64]*domain.User
	byUsername map[string]int64
	byEmail    map[string]int64
	profiles   map[int64]*domain.UserProfile // userID -> profile

	roles      map[int64]*domain.Role
	byRoleName map[string]int64

	permissions map[int64]*domain.Permission
	byPermName  map[string]int64

	userRoles map[userRoleKey]*domain.UserRole
	rolePerms map[rolePermKey]*domain.RolePermission

	apiKeys map[int64]*domain.APIKey
	byToken map[string]int64

	nextID int64
	now    func() time.Time
}

// NewStore 创建一个内存存储实例。
func NewStore() *Store {
	return &Store{
		users:       make(map[int64]*domain.User),
		byUsername:  make(map[string]int64),
		byEmail:     make(map[string]int64),
		profiles:    make(map[int64]*domain.UserProfile),
		roles:       make(map[int64]*domain.Role),
		byRoleName:  make(map[string]int64),
		permissions: make(map[int64]*domain.Permission),
		byPermName:  make(map[string]int64),
		userRoles:   make(map[userRoleKey]*domain.UserRole),
		rolePerms:   make(map[rolePermKey]*domain.RolePermission),
		apiKeys:     make(map[int64]*domain.APIKey),
		byToken:     make(map[string]int64),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) allocID() int64 {
	s.nextID++
	return s.nextID
}

// Ping 内存存储始终可用
func (s *Store) Ping(context.Context) error { return nil }

// Close 内存存储无需释放资源
func (s *Store) Close() error { return nil }

// ========== User Repository ==========

// CreateUser 创建用户，用户名或邮箱重复返回 ErrConflict
func (s *Store) CreateUser(_ context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byUsername[user.Username]; ok {
		return storage.ErrConflict
	}
	if _, ok := s.byEmail[user.Email]; ok {
		return storage.ErrConflict
	}

	now := s.now()
	user.ID = s.allocID()
	user.CreatedAt = now
	user.UpdatedAt = now

	stored := *user
	s.users[user.ID] = &stored
	s.byUsername[user.Username] = user.ID
	s.byEmail[user.Email] = user.ID
	return nil
}

// GetUserByID 根据 ID 获取用户
func (s *Store) GetUserByID(_ context.Context, id int64) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *user
	return &cp, nil
}

// GetUserByUsername 根据用户名获取用户
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	s.mu.RLock()
	id, ok := s.byUsername[username]
	s.mu.RUnlock()
	if !ok {
		return nil, storage.ErrNotFound
	}
	return s.GetUserByID(ctx, id)
}

// GetUserByEmail 根据邮箱获取用户
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	s.mu.RLock()
	id, ok := s.byEmail[email]
	s.mu.RUnlock()
	if !ok {
		return nil, storage.ErrNotFound
	}
	return s.GetUserByID(ctx, id)
}

// UpdateUser 更新用户，用户名或邮箱与其他用户冲突返回 ErrConflict
func (s *Store) UpdateUser(_ context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.users[user.ID]
	if !ok {
		return storage.ErrNotFound
	}
	if id, ok := s.byUsername[user.Username]; ok && id != user.ID {
		return storage.ErrConflict
	}
	if id, ok := s.byEmail[user.Email]; ok && id != user.ID {
		return storage.ErrConflict
	}

	delete(s.byUsername, existing.Username)
	delete(s.byEmail, existing.Email)

	user.CreatedAt = existing.CreatedAt
	user.UpdatedAt = s.now()
	stored := *user
	s.users[user.ID] = &stored
	s.byUsername[user.Username] = user.ID
	s.byEmail[user.Email] = user.ID
	return nil
}

// DeleteUser 删除用户及其资料、角色关联和 API Key
func (s *Store) DeleteUser(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return storage.ErrNotFound
	}

	delete(s.users, id)
	delete(s.byUsername, user.Username)
	delete(s.byEmail, user.Email)
	delete(s.profiles, id)

	for k := range s.userRoles {
		if k.userID == id {
			delete(s.userRoles, k)
		}
	}
	for keyID, key := range s.apiKeys {
		if key.UserID == id {
			delete(s.apiKeys, keyID)
			delete(s.byToken, key.APIKey)
		}
	}
	return nil
}

// SaveProfile 新建或覆盖用户资料
func (s *Store) SaveProfile(_ context.Context, profile *domain.UserProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[profile.UserID]; !ok {
		return storage.ErrNotFound
	}

	now := s.now()
	if existing, ok := s.profiles[profile.UserID]; ok {
		profile.ID = existing.ID
		profile.CreatedAt = existing.CreatedAt
	} else {
		profile.ID = s.allocID()
		profile.CreatedAt = now
	}
	profile.UpdatedAt = now

	stored := *profile
	s.profiles[profile.UserID] = &stored
	return nil
}

// GetProfile 获取用户资料
func (s *Store) GetProfile(_ context.Context, userID int64) (*domain.UserProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	profile, ok := s.profiles[userID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *profile
	return &cp, nil
}

// ========== Role Repository ==========

// CreateRole 创建角色，名称重复返回 ErrConflict
func (s *Store) CreateRole(_ context.Context, role *domain.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byRoleName[role.RoleName]; ok {
		return storage.ErrConflict
	}
	role.ID = s.allocID()
	role.CreatedAt = s.now()

	stored := *role
	s.roles[role.ID] = &stored
	s.byRoleName[role.RoleName] = role.ID
	return nil
}

// GetRoleByID 根据 ID 获取角色
func (s *Store) GetRoleByID(_ context.Context, id int64) (*domain.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	role, ok := s.roles[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *role
	return &cp, nil
}

// GetRoleByName 根据名称获取角色
func (s *Store) GetRoleByName(ctx context.Context, name string) (*domain.Role, error) {
	s.mu.RLock()
	id, ok := s.byRoleName[name]
	s.mu.RUnlock()
	if !ok {
		return nil, storage.ErrNotFound
	}
	return s.GetRoleByID(ctx, id)
}

// ListRoles 按 ID 升序返回全部角色
func (s *Store) ListRoles(context.Context) ([]domain.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	roles := make([]domain.Role, 0, len(s.roles))
	for _, role := range s.roles {
		roles = append(roles, *role)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i].ID < roles[j].ID })
	return roles, nil
}

// UpdateRole 更新角色名称
func (s *Store) UpdateRole(_ context.Context, role *domain.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.roles[role.ID]
	if !ok {
		return storage.ErrNotFound
	}
	if id, ok := s.byRoleName[role.RoleName]; ok && id != role.ID {
		return storage.ErrConflict
	}

	delete(s.byRoleName, existing.RoleName)
	role.CreatedAt = existing.CreatedAt
	stored := *role
	s.roles[role.ID] = &stored
	s.byRoleName[role.RoleName] = role.ID
	return nil
}

// DeleteRole 删除角色及其关联
func (s *Store) DeleteRole(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	role, ok := s.roles[id]
	if !ok {
		return storage.ErrNotFound
	}

	delete(s.roles, id)
	delete(s.byRoleName, role.RoleName)
	for k := range s.userRoles {
		if k.roleID == id {
			delete(s.userRoles, k)
		}
	}
	for k := range s.rolePerms {
		if k.roleID == id {
			delete(s.rolePerms, k)
		}
	}
	return nil
}

// ========== Permission Repository ==========

// CreatePermission 创建权限，名称重复返回 ErrConflict
func (s *Store) CreatePermission(_ context.Context, perm *domain.Permission) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byPermName[perm.PermissionName]; ok {
		return storage.ErrConflict
	}
	perm.ID = s.allocID()
	perm.CreatedAt = s.now()

	stored := *perm
	s.permissions[perm.ID] = &stored
	s.byPermName[perm.PermissionName] = perm.ID
	return nil
}

// GetPermissionByID 根据 ID 获取权限
func (s *Store) GetPermissionByID(_ context.Context, id int64) (*domain.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	perm, ok := s.permissions[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *perm
	return &cp, nil
}

// GetPermissionByName 根据名称获取权限
func (s *Store) GetPermissionByName(ctx context.Context, name string) (*domain.Permission, error) {
	s.mu.RLock()
	id, ok := s.byPermName[name]
	s.mu.RUnlock()
	if !ok {
		return nil, storage.ErrNotFound
	}
	return s.GetPermissionByID(ctx, id)
}

// ListPermissions 按 ID 升序返回全部权限
func (s *Store) ListPermissions(context.Context) ([]domain.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	perms := make([]domain.Permission, 0, len(s.permissions))
	for _, perm := range s.permissions {
		perms = append(perms, *perm)
	}
	sort.Slice(perms, func(i, j int) bool { return perms[i].ID < perms[j].ID })
	return perms, nil
}

// UpdatePermission 更新权限名称与描述
func (s *Store) UpdatePermission(_ context.Context, perm *domain.Permission) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.permissions[perm.ID]
	if !ok {
		return storage.ErrNotFound
	}
	if id, ok := s.byPermName[perm.PermissionName]; ok && id != perm.ID {
		return storage.ErrConflict
	}

	delete(s.byPermName, existing.PermissionName)
	perm.CreatedAt = existing.CreatedAt
	stored := *perm
	s.permissions[perm.ID] = &stored
	s.byPermName[perm.PermissionName] = perm.ID
	return nil
}

// DeletePermission 删除权限及其角色关联
func (s *Store) DeletePermission(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	perm, ok := s.permissions[id]
	if !ok {
		return storage.ErrNotFound
	}

	delete(s.permissions, id)
	delete(s.byPermName, perm.PermissionName)
	for k := range s.rolePerms {
		if k.permissionID == id {
			delete(s.rolePerms, k)
		}
	}
	return nil
}

// ========== Assignment Repository ==========

// AssignRole 为用户分配角色
func (s *Store) AssignRole(_ context.Context, userID, roleID int64) (*domain.UserRole, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[userID]; !ok {
		return nil, storage.ErrNotFound
	}
	if _, ok := s.roles[roleID]; !ok {
		return nil, storage.ErrNotFound
	}

	key := userRoleKey{userID, roleID}
	if _, ok := s.userRoles[key]; ok {
		return nil, storage.ErrConflict
	}

	link := &domain.UserRole{UserID: userID, RoleID: roleID, CreatedAt: s.now()}
	s.userRoles[key] = link
	cp := *link
	return &cp, nil
}

// RevokeRole 撤销用户的角色
func (s *Store) RevokeRole(_ context.Context, userID, roleID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := userRoleKey{userID, roleID}
	if _, ok := s.userRoles[key]; !ok {
		return storage.ErrNotFound
	}
	delete(s.userRoles, key)
	return nil
}

// AssignPermission 为角色授予权限
func (s *Store) AssignPermission(_ context.Context, roleID, permissionID int64) (*domain.RolePermission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.roles[roleID]; !ok {
		return nil, storage.ErrNotFound
	}
	if _, ok := s.permissions[permissionID]; !ok {
		return nil, storage.ErrNotFound
	}

	key := rolePermKey{roleID, permissionID}
	if _, ok := s.rolePerms[key]; ok {
		return nil, storage.ErrConflict
	}

	link := &domain.RolePermission{RoleID: roleID, PermissionID: permissionID, GrantedAt: s.now()}
	s.rolePerms[key] = link
	cp := *link
	return &cp, nil
}

// RevokePermission 撤销角色的权限
func (s *Store) RevokePermission(_ context.Context, roleID, permissionID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := rolePermKey{roleID, permissionID}
	if _, ok := s.rolePerms[key]; !ok {
		return storage.ErrNotFound
	}
	delete(s.rolePerms, key)
	return nil
}

// ListRolesForUser 返回用户的全部角色
func (s *Store) ListRolesForUser(_ context.Context, userID int64) ([]domain.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var roles []domain.Role
	for k := range s.userRoles {
		if k.userID != userID {
			continue
		}
		if role, ok := s.roles[k.roleID]; ok {
			roles = append(roles, *role)
		}
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i].ID < roles[j].ID })
	return roles, nil
}

// ListPermissionsForRole 返回角色的全部权限
func (s *Store) ListPermissionsForRole(_ context.Context, roleName string) ([]domain.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	roleID, ok := s.byRoleName[roleName]
	if !ok {
		return nil, nil
	}

	var perms []domain.Permission
	for k := range s.rolePerms {
		if k.roleID != roleID {
			continue
		}
		if perm, ok := s.permissions[k.permissionID]; ok {
			perms = append(perms, *perm)
		}
	}
	sort.Slice(perms, func(i, j int) bool { return perms[i].ID < perms[j].ID })
	return perms, nil
}

// ========== APIKey Repository ==========

// InsertAPIKey 保存新签发的 API Key
func (s *Store) InsertAPIKey(_ context.Context, key *domain.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byToken[key.APIKey]; ok {
		return storage.ErrConflict
	}
	if _, ok := s.users[key.UserID]; !ok {
		return storage.ErrNotFound
	}

	now := s.now()
	key.ID = s.allocID()
	key.CreatedAt = now
	key.UpdatedAt = now

	stored := *key
	s.apiKeys[key.ID] = &stored
	s.byToken[key.APIKey] = key.ID
	return nil
}

// GetAPIKeyByToken 根据令牌获取 API Key
func (s *Store) GetAPIKeyByToken(_ context.Context, token string) (*domain.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byToken[token]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *s.apiKeys[id]
	return &cp, nil
}

// ListAPIKeysByUser 按 ID 升序返回用户的全部 API Key
func (s *Store) ListAPIKeysByUser(_ context.Context, userID int64) ([]domain.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys []domain.APIKey
	for _, key := range s.apiKeys {
		if key.UserID == userID {
			keys = append(keys, *key)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].ID < keys[j].ID })
	return keys, nil
}

// FindUsableAPIKey 查找当前可用的 API Key
func (s *Store) FindUsableAPIKey(_ context.Context, token string, now time.Time) (*domain.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byToken[token]
	if !ok {
		return nil, storage.ErrNotFound
	}
	key := s.apiKeys[id]
	if !key.Usable(now) {
		return nil, storage.ErrNotFound
	}
	owner, ok := s.users[key.UserID]
	if !ok || !owner.IsActive {
		return nil, storage.ErrNotFound
	}
	cp := *key
	return &cp, nil
}

// FindExpiredAPIKey 查找已过期但仍处于激活状态的 API Key
func (s *Store) FindExpiredAPIKey(_ context.Context, token string, now time.Time) (*domain.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byToken[token]
	if !ok {
		return nil, storage.ErrNotFound
	}
	key := s.apiKeys[id]
	if !key.IsActive || !key.PastDue(now) {
		return nil, storage.ErrNotFound
	}
	cp := *key
	return &cp, nil
}

// MarkAPIKeyInactive 在写锁内比较并置为失效
func (s *Store) MarkAPIKeyInactive(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.apiKeys[id]
	if !ok || !key.IsActive {
		return false, nil
	}
	key.IsActive = false
	key.UpdatedAt = s.now()
	return true, nil
}

// DeactivateExpiredAPIKeys 失效所有已过期的激活记录
func (s *Store) DeactivateExpiredAPIKeys(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	for _, key := range s.apiKeys {
		if key.IsActive && key.PastDue(now) {
			key.IsActive = false
			key.UpdatedAt = s.now()
			count++
		}
	}
	return count, nil
}

var _ storage.Store = (*Store)(nil)
