package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"usercenter/backend/internal/config"
	"usercenter/backend/internal/domain"
	"usercenter/backend/internal/storage"
)

// 数据库错误码
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	myDuplicateEntry      = 1062
	myNoReferencedRow     = 1452
)

// Store 基于 GORM 的关系型存储实现（PostgreSQL / MySQL）
type Store struct {
	db      *gorm.DB
	closers []func() error
}

// Options 控制存储初始化行为
type Options struct {
	AutoMigrate bool
}

// NewStore 使用 pgx 连接池创建 PostgreSQL 存储实例
func NewStore(ctx context.Context, cfg *config.DatabaseConfig, log *zap.Logger) (*Store, error) {
	client, err := NewClient(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	store, err := NewStoreWithDialector(postgres.New(postgres.Config{Conn: client.DB()}), Options{AutoMigrate: cfg.AutoMigrate})
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	store.closers = append(store.closers, client.Close)
	return store, nil
}

// NewMySQLStore 创建 MySQL 存储实例
func NewMySQLStore(cfg *config.DatabaseConfig) (*Store, error) {
	store, err := NewStoreWithDialector(gormmysql.Open(cfg.DSN), Options{AutoMigrate: cfg.AutoMigrate})
	if err != nil {
		return nil, err
	}

	sqlDB, err := store.db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	store.closers = append(store.closers, sqlDB.Close)
	return store, nil
}

// NewStoreWithDialector 使用指定的 GORM dialector 创建存储实例
func NewStoreWithDialector(dialector gorm.Dialector, opts Options) (*Store, error) {
	gormConfig := &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	store := &Store{db: db}
	if opts.AutoMigrate {
		if err := store.migrate(); err != nil {
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
	}
	return store, nil
}

// migrate 自动迁移数据库表结构
func (s *Store) migrate() error {
	return s.db.AutoMigrate(
		&domain.User{},
		&domain.UserProfile{},
		&domain.Role{},
		&domain.Permission{},
		&domain.UserRole{},
		&domain.RolePermission{},
		&domain.APIKey{},
	)
}

// Ping 测试数据库连接
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close 关闭底层连接
func (s *Store) Close() error {
	var errs []error
	for _, closeFn := range s.closers {
		if err := closeFn(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// translate 将驱动错误映射为存储层错误
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) || errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return storage.ErrConflict
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%w: %s", storage.ErrConflict, pgErr.ConstraintName)
		case pgForeignKeyViolation:
			return fmt.Errorf("%w: %s", storage.ErrNotFound, pgErr.ConstraintName)
		}
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case myDuplicateEntry:
			return storage.ErrConflict
		case myNoReferencedRow:
			return storage.ErrNotFound
		}
	}
	return err
}

func (s *Store) first(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return translate(s.db.WithContext(ctx).Where(query, args...).First(dest).Error)
}

func exists(tx *gorm.DB, model interface{}, id int64) error {
	var count int64
	if err := tx.Model(model).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ========== User Repository ==========

// CreateUser 创建用户
func (s *Store) CreateUser(ctx context.Context, user *domain.User) error {
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		return fmt.Errorf("create user: %w", translate(err))
	}
	return nil
}

// GetUserByID 根据 ID 获取用户
func (s *Store) GetUserByID(ctx context.Context, id int64) (*domain.User, error) {
	var user domain.User
	if err := s.first(ctx, &user, "id = ?", id); err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByUsername 根据用户名获取用户
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	var user domain.User
	if err := s.first(ctx, &user, "username = ?", username); err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByEmail 根据邮箱获取用户
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	var user domain.User
	if err := s.first(ctx, &user, "email = ?", email); err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateUser 更新用户的可变字段
func (s *Store) UpdateUser(ctx context.Context, user *domain.User) error {
	user.UpdatedAt = time.Now().UTC()
	result := s.db.WithContext(ctx).Model(&domain.User{}).
		Where("id = ?", user.ID).
		Updates(map[string]interface{}{
			"username":      user.Username,
			"email":         user.Email,
			"password_hash": user.PasswordHash,
			"is_active":     user.IsActive,
			"is_disabled":   user.IsDisabled,
			"updated_at":    user.UpdatedAt,
		})
	if result.Error != nil {
		return fmt.Errorf("update user: %w", translate(result.Error))
	}
	if result.RowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// DeleteUser 删除用户及其资料、角色关联和 API Key
func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", id).Delete(&domain.UserProfile{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", id).Delete(&domain.UserRole{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", id).Delete(&domain.APIKey{}).Error; err != nil {
			return err
		}

		result := tx.Where("id = ?", id).Delete(&domain.User{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return storage.ErrNotFound
		}
		return nil
	})
}

// SaveProfile 按 user_id 新建或覆盖用户资料
func (s *Store) SaveProfile(ctx context.Context, profile *domain.UserProfile) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := exists(tx, &domain.User{}, profile.UserID); err != nil {
			return err
		}

		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"first_name", "last_name", "sex", "phone_number", "address",
				"birth_date", "bio", "description", "updated_at",
			}),
		}).Create(profile).Error
		if err != nil {
			return translate(err)
		}
		return tx.Where("user_id = ?", profile.UserID).First(profile).Error
	})
}

// GetProfile 获取用户资料
func (s *Store) GetProfile(ctx context.Context, userID int64) (*domain.UserProfile, error) {
	var profile domain.UserProfile
	if err := s.first(ctx, &profile, "user_id = ?", userID); err != nil {
		return nil, err
	}
	return &profile, nil
}

// ========== Role Repository ==========

// CreateRole 创建角色
func (s *Store) CreateRole(ctx context.Context, role *domain.Role) error {
	if err := s.db.WithContext(ctx).Create(role).Error; err != nil {
		return fmt.Errorf("create role: %w", translate(err))
	}
	return nil
}

// GetRoleByID 根据 ID 获取角色
func (s *Store) GetRoleByID(ctx context.Context, id int64) (*domain.Role, error) {
	var role domain.Role
	if err := s.first(ctx, &role, "id = ?", id); err != nil {
		return nil, err
	}
	return &role, nil
}

// GetRoleByName 根据名称获取角色
func (s *Store) GetRoleByName(ctx context.Context, name string) (*domain.Role, error) {
	var role domain.Role
	if err := s.first(ctx, &role, "role_name = ?", name); err != nil {
		return nil, err
	}
	return &role, nil
}

// ListRoles 返回全部角色
func (s *Store) ListRoles(ctx context.Context) ([]domain.Role, error) {
	var roles []domain.Role
	if err := s.db.WithContext(ctx).Order("id").Find(&roles).Error; err != nil {
		return nil, err
	}
	return roles, nil
}

// UpdateRole 更新角色名称
func (s *Store) UpdateRole(ctx context.Context, role *domain.Role) error {
	result := s.db.WithContext(ctx).Model(&domain.Role{}).
		Where("id = ?", role.ID).
		Update("role_name", role.RoleName)
	if result.Error != nil {
		return fmt.Errorf("update role: %w", translate(result.Error))
	}
	if result.RowsAffected == 0 {
		return exists(s.db.WithContext(ctx), &domain.Role{}, role.ID)
	}
	return nil
}

// DeleteRole 删除角色及其关联
func (s *Store) DeleteRole(ctx context.Context, id int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("role_id = ?", id).Delete(&domain.UserRole{}).Error; err != nil {
			return err
		}
		if err := tx.Where("role_id = ?", id).Delete(&domain.RolePermission{}).Error; err != nil {
			return err
		}

		result := tx.Where("id = ?", id).Delete(&domain.Role{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return storage.ErrNotFound
		}
		return nil
	})
}

// ========== Permission Repository ==========

// CreatePermission 创建权限
func (s *Store) CreatePermission(ctx context.Context, perm *domain.Permission) error {
	if err := s.db.WithContext(ctx).Create(perm).Error; err != nil {
		return fmt.Errorf("create permission: %w", translate(err))
	}
	return nil
}

// GetPermissionByID 根据 ID 获取权限
func (s *Store) GetPermissionByID(ctx context.Context, id int64) (*domain.Permission, error) {
	var perm domain.Permission
	if err := s.first(ctx, &perm, "id = ?", id); err != nil {
		return nil, err
	}
	return &perm, nil
}

// GetPermissionByName 根据名称获取权限
func (s *Store) GetPermissionByName(ctx context.Context, name string) (*domain.Permission, error) {
	var perm domain.Permission
	if err := s.first(ctx, &perm, "permission_name = ?", name); err != nil {
		return nil, err
	}
	return &perm, nil
}

// ListPermissions 返回全部权限
func (s *Store) ListPermissions(ctx context.Context) ([]domain.Permission, error) {
	var perms []domain.Permission
	if err := s.db.WithContext(ctx).Order("id").Find(&perms).Error; err != nil {
		return nil, err
	}
	return perms, nil
}

// UpdatePermission 更新权限名称与描述
func (s *Store) UpdatePermission(ctx context.Context, perm *domain.Permission) error {
	result := s.db.WithContext(ctx).Model(&domain.Permission{}).
		Where("id = ?", perm.ID).
		Updates(map[string]interface{}{
			"permission_name": perm.PermissionName,
			"description":     perm.Description,
		})
	if result.Error != nil {
		return fmt.Errorf("update permission: %w", translate(result.Error))
	}
	if result.RowsAffected == 0 {
		return exists(s.db.WithContext(ctx), &domain.Permission{}, perm.ID)
	}
	return nil
}

// DeletePermission 删除权限及其角色关联
func (s *Store) DeletePermission(ctx context.Context, id int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("permission_id = ?", id).Delete(&domain.RolePermission{}).Error; err != nil {
			return err
		}

		result := tx.Where("id = ?", id).Delete(&domain.Permission{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return storage.ErrNotFound
		}
		return nil
	})
}

// ========== Assignment Repository ==========

// AssignRole 为用户分配角色
func (s *Store) AssignRole(ctx context.Context, userID, roleID int64) (*domain.UserRole, error) {
	link := &domain.UserRole{UserID: userID, RoleID: roleID}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := exists(tx, &domain.User{}, userID); err != nil {
			return err
		}
		if err := exists(tx, &domain.Role{}, roleID); err != nil {
			return err
		}
		return translate(tx.Create(link).Error)
	})
	if err != nil {
		return nil, err
	}
	return link, nil
}

// RevokeRole 撤销用户的角色
func (s *Store) RevokeRole(ctx context.Context, userID, roleID int64) error {
	result := s.db.WithContext(ctx).Where("user_id = ? AND role_id = ?", userID, roleID).Delete(&domain.UserRole{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// AssignPermission 为角色授予权限
func (s *Store) AssignPermission(ctx context.Context, roleID, permissionID int64) (*domain.RolePermission, error) {
	link := &domain.RolePermission{RoleID: roleID, PermissionID: permissionID}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := exists(tx, &domain.Role{}, roleID); err != nil {
			return err
		}
		if err := exists(tx, &domain.Permission{}, permissionID); err != nil {
			return err
		}
		return translate(tx.Create(link).Error)
	})
	if err != nil {
		return nil, err
	}
	return link, nil
}

// RevokePermission 撤销角色的权限
func (s *Store) RevokePermission(ctx context.Context, roleID, permissionID int64) error {
	result := s.db.WithContext(ctx).Where("role_id = ? AND permission_id = ?", roleID, permissionID).Delete(&domain.RolePermission{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ListRolesForUser 返回用户的全部角色
func (s *Store) ListRolesForUser(ctx context.Context, userID int64) ([]domain.Role, error) {
	var roles []domain.Role
	err := s.db.WithContext(ctx).Model(&domain.Role{}).
		Select("roles.*").
		Joins("JOIN user_roles ON user_roles.role_id = roles.id").
		Where("user_roles.user_id = ?", userID).
		Order("roles.id").
		Find(&roles).Error
	if err != nil {
		return nil, fmt.Errorf("list roles for user: %w", err)
	}
	return roles, nil
}

// ListPermissionsForRole 返回角色的全部权限
func (s *Store) ListPermissionsForRole(ctx context.Context, roleName string) ([]domain.Permission, error) {
	var perms []domain.Permission
	err := s.db.WithContext(ctx).Model(&domain.Permission{}).
		Select("permissions.*").
		Joins("JOIN role_permissions ON role_permissions.permission_id = permissions.id").
		Joins("JOIN roles ON roles.id = role_permissions.role_id").
		Where("roles.role_name = ?", roleName).
		Order("permissions.id").
		Find(&perms).Error
	if err != nil {
		return nil, fmt.Errorf("list permissions for role: %w", err)
	}
	return perms, nil
}

// ========== APIKey Repository ==========

// InsertAPIKey 保存新签发的 API Key
func (s *Store) InsertAPIKey(ctx context.Context, key *domain.APIKey) error {
	if err := s.db.WithContext(ctx).Create(key).Error; err != nil {
		return fmt.Errorf("insert api key: %w", translate(err))
	}
	return nil
}

// GetAPIKeyByToken 根据令牌获取 API Key
func (s *Store) GetAPIKeyByToken(ctx context.Context, token string) (*domain.APIKey, error) {
	var key domain.APIKey
	if err := s.first(ctx, &key, "api_key = ?", token); err != nil {
		return nil, err
	}
	return &key, nil
}

// ListAPIKeysByUser 返回用户的全部 API Key
func (s *Store) ListAPIKeysByUser(ctx context.Context, userID int64) ([]domain.APIKey, error) {
	var keys []domain.APIKey
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("id").Find(&keys).Error; err != nil {
		return nil, err
	}
	return keys, nil
}

// FindUsableAPIKey 查找当前可用的 API Key
func (s *Store) FindUsableAPIKey(ctx context.Context, token string, now time.Time) (*domain.APIKey, error) {
	var key domain.APIKey
	err := s.db.WithContext(ctx).Model(&domain.APIKey{}).
		Select("api_keys.*").
		Joins("JOIN users ON users.id = api_keys.user_id").
		Where("api_keys.api_key = ? AND api_keys.is_active = ? AND api_keys.expires_at > ? AND users.is_active = ?",
			token, true, now, true).
		Take(&key).Error
	if err != nil {
		return nil, translate(err)
	}
	return &key, nil
}

// FindExpiredAPIKey 查找已过期但仍处于激活状态的 API Key
func (s *Store) FindExpiredAPIKey(ctx context.Context, token string, now time.Time) (*domain.APIKey, error) {
	var key domain.APIKey
	err := s.db.WithContext(ctx).
		Where("api_key = ? AND is_active = ? AND expires_at < ?", token, true, now).
		Take(&key).Error
	if err != nil {
		return nil, translate(err)
	}
	return &key, nil
}

// MarkAPIKeyInactive 条件更新：仅当 is_active 仍为 true 时置为失效
func (s *Store) MarkAPIKeyInactive(ctx context.Context, id int64) (bool, error) {
	result := s.db.WithContext(ctx).Model(&domain.APIKey{}).
		Where("id = ? AND is_active = ?", id, true).
		Updates(map[string]interface{}{
			"is_active":  false,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return false, fmt.Errorf("mark api key inactive: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

// DeactivateExpiredAPIKeys 批量失效所有已过期的激活记录
func (s *Store) DeactivateExpiredAPIKeys(ctx context.Context, now time.Time) (int64, error) {
	result := s.db.WithContext(ctx).Model(&domain.APIKey{}).
		Where("is_active = ? AND expires_at < ?", true, now).
		Updates(map[string]interface{}{
			"is_active":  false,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return 0, fmt.Errorf("deactivate expired api keys: %w", result.Error)
	}
	return result.RowsAffected, nil
}

var _ storage.Store = (*Store)(nil)
