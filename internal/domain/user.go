package domain

import "time"

// User 表示注册用户的业务实体
type User struct {
	ID           int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	Username     string    `json:"username" gorm:"type:varchar(100);uniqueIndex;not null"`
	Email        string    `json:"email" gorm:"type:varchar(255);uniqueIndex;not null"`
	PasswordHash string    `json:"-" gorm:"type:varchar(255);not null"` // 不返回给前端
	IsActive     bool      `json:"is_active" gorm:"not null"`
	IsDisabled   bool      `json:"is_disabled" gorm:"not null"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// CanAuthenticate 判断用户当前是否允许使用凭证访问系统
func (u *User) CanAuthenticate() bool {
	return u.IsActive && !u.IsDisabled
}

// UserProfile 用户资料，与 User 一对一
type UserProfile struct {
	ID          int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID      int64     `json:"user_id" gorm:"uniqueIndex;not null"`
	FirstName   string    `json:"first_name" gorm:"type:varchar(100);index;not null"`
	LastName    string    `json:"last_name" gorm:"type:varchar(100);not null"`
	Sex         *string   `json:"sex,omitempty" gorm:"type:varchar(20)"`
	PhoneNumber *string   `json:"phone_number,omitempty" gorm:"type:varchar(50)"`
	Address     *string   `json:"address,omitempty" gorm:"type:varchar(255)"`
	BirthDate   time.Time `json:"birth_date" gorm:"type:date;not null"`
	Bio         *string   `json:"bio,omitempty" gorm:"type:text"`
	Description *string   `json:"description,omitempty" gorm:"type:text"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName 指定 GORM 表名
func (UserProfile) TableName() string { return "user_profiles" }
