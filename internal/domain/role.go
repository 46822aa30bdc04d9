package domain

import "time"

// 系统内置的角色与权限名称
const (
	RoleAdmin   = "admin"
	RoleAPIUser = "api-user"

	PermissionGenerateToken = "generate-token"
	PermissionManageRoles   = "manage-roles"
)

// Role 角色，通过 UserRole 与用户多对多关联
type Role struct {
	ID        int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	RoleName  string    `json:"role_name" gorm:"type:varchar(100);uniqueIndex;not null"`
	CreatedAt time.Time `json:"created_at"`
}

// Permission 权限，通过 RolePermission 与角色多对多关联
type Permission struct {
	ID             int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	PermissionName string    `json:"permission_name" gorm:"type:varchar(100);uniqueIndex;not null"`
	Description    string    `json:"description" gorm:"type:varchar(255)"`
	CreatedAt      time.Time `json:"created_at"`
}

// UserRole 用户与角色的关联，(user_id, role_id) 为复合主键
type UserRole struct {
	UserID    int64     `json:"user_id" gorm:"primaryKey;autoIncrement:false"`
	RoleID    int64     `json:"role_id" gorm:"primaryKey;autoIncrement:false;index"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName 指定 GORM 表名
func (UserRole) TableName() string { return "user_roles" }

// RolePermission 角色与权限的关联，(role_id, permission_id) 为复合主键
type RolePermission struct {
	RoleID       int64     `json:"role_id" gorm:"primaryKey;autoIncrement:false"`
	PermissionID int64     `json:"permission_id" gorm:"primaryKey;autoIncrement:false;index"`
	GrantedAt    time.Time `json:"granted_at" gorm:"autoCreateTime"`
}

// TableName 指定 GORM 表名
func (RolePermission) TableName() string { return "role_permissions" }
