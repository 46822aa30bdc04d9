package domain

import "time"

// APIKey 已签发令牌的持久化记录
//
// 状态只允许 active -> inactive 单向迁移。只有 is_active=true、
// expires_at 晚于当前时间且所属用户处于激活状态的记录可用。
type APIKey struct {
	ID        int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	APIKey    string    `json:"-" gorm:"column:api_key;type:varchar(512);uniqueIndex;not null"`
	UserID    int64     `json:"user_id" gorm:"index;not null"`
	IsActive  bool      `json:"is_active" gorm:"not null;index"`
	ExpiresAt time.Time `json:"expires_at" gorm:"index;not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName 指定 GORM 表名
func (APIKey) TableName() string { return "api_keys" }

// PastDue 判断密钥在给定时间是否已过期
func (k *APIKey) PastDue(now time.Time) bool {
	return k.ExpiresAt.Before(now)
}

// Usable 判断密钥在给定时间是否可用（不检查所属用户）
func (k *APIKey) Usable(now time.Time) bool {
	return k.IsActive && k.ExpiresAt.After(now)
}
