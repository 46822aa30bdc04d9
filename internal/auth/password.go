package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Hasher 单向密码哈希
type Hasher interface {
	Hash(plain string) (string, error)
	Verify(plain, digest string) bool
}

// BcryptHasher 基于 bcrypt 的 Hasher，Cost 为 0 时使用 bcrypt.DefaultCost
type BcryptHasher struct {
	Cost int
}

// Hash 生成带盐的 bcrypt 摘要
func (h BcryptHasher) Hash(plain string) (string, error) {
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	digest, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", err
		}
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(digest), nil
}

// Verify 校验明文与摘要是否匹配，摘要格式错误同样返回 false
func (h BcryptHasher) Verify(plain, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plain)) == nil
}

// HashPassword 使用默认代价哈希密码
func HashPassword(password string) (string, error) {
	return BcryptHasher{}.Hash(password)
}

// CheckPassword 验证密码
func CheckPassword(password, hash string) bool {
	return BcryptHasher{}.Verify(password, hash)
}
