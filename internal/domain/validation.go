package domain

import (
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
)

// ErrValidation 所有输入校验错误的根错误
var ErrValidation = errors.New("validation failed")

// 验证相关的错误定义
var (
	ErrInvalidEmail      = fmt.Errorf("%w: invalid email format", ErrValidation)
	ErrEmailTooLong      = fmt.Errorf("%w: email address too long", ErrValidation)
	ErrPasswordTooShort  = fmt.Errorf("%w: password too short (min 8 chars)", ErrValidation)
	ErrPasswordTooLong   = fmt.Errorf("%w: password too long (max 72 bytes)", ErrValidation)
	ErrUsernameTooShort  = fmt.Errorf("%w: username too short (min 3 chars)", ErrValidation)
	ErrUsernameTooLong   = fmt.Errorf("%w: username too long (max 32 chars)", ErrValidation)
	ErrInvalidUsername   = fmt.Errorf("%w: invalid username format", ErrValidation)
	ErrInvalidName       = fmt.Errorf("%w: invalid role or permission name", ErrValidation)
	ErrFirstNameRequired = fmt.Errorf("%w: first name is required", ErrValidation)
	ErrLastNameRequired  = fmt.Errorf("%w: last name is required", ErrValidation)
	ErrBirthDateRequired = fmt.Errorf("%w: birth date is required", ErrValidation)
)

// 验证常量
const (
	MaxEmailLength = 254

	// bcrypt 只处理前 72 字节
	MinPasswordLength = 8
	MaxPasswordLength = 72

	MinUsernameLength = 3
	MaxUsernameLength = 32

	MaxNameLength = 100
)

var (
	// 用户名必须以字母开头
	usernameRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9._-]*[a-zA-Z0-9]$|^[a-zA-Z]$`)

	// 角色与权限名称：小写字母、数字、下划线和连字符
	nameRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)
)

// ValidateEmail 验证邮箱地址
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return ErrInvalidEmail
	}
	if len(email) > MaxEmailLength {
		return ErrEmailTooLong
	}

	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return ErrInvalidEmail
	}

	parts := strings.Split(email, "@")
	if len(parts) != 2 || parts[0] == "" || !strings.Contains(parts[1], ".") {
		return ErrInvalidEmail
	}
	return nil
}

// ValidatePassword 验证密码长度
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	if len(password) > MaxPasswordLength {
		return ErrPasswordTooLong
	}
	return nil
}

// ValidateUsername 验证用户名
func ValidateUsername(username string) error {
	if len(username) < MinUsernameLength {
		return ErrUsernameTooShort
	}
	if len(username) > MaxUsernameLength {
		return ErrUsernameTooLong
	}
	if !usernameRegex.MatchString(username) {
		return ErrInvalidUsername
	}
	return nil
}

// ValidateName 验证角色或权限名称
func ValidateName(name string) error {
	if name == "" || len(name) > MaxNameLength || !nameRegex.MatchString(name) {
		return ErrInvalidName
	}
	return nil
}

// ValidateProfile 验证用户资料的必填字段
func ValidateProfile(p *UserProfile) error {
	if strings.TrimSpace(p.FirstName) == "" {
		return ErrFirstNameRequired
	}
	if strings.TrimSpace(p.LastName) == "" {
		return ErrLastNameRequired
	}
	if p.BirthDate.IsZero() {
		return ErrBirthDateRequired
	}
	return nil
}
