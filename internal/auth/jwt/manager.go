package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrTokenInvalid 令牌无法通过校验，下列错误均包裹此错误
	ErrTokenInvalid = errors.New("token invalid")
	// ErrInvalidSignature 签名错误或签名算法不被接受
	ErrInvalidSignature = fmt.Errorf("%w: invalid signature", ErrTokenInvalid)
	// ErrMalformed 令牌结构或声明不合法
	ErrMalformed = fmt.Errorf("%w: malformed", ErrTokenInvalid)
	// ErrExpired 令牌已过期
	ErrExpired = fmt.Errorf("%w: expired", ErrTokenInvalid)
)

// Claims 访问令牌声明，Subject 为用户名
type Claims struct {
	jwt.RegisteredClaims
}

// Manager 访问令牌的签发与解析（HS256）
type Manager struct {
	secret []byte
	issuer string
	expiry time.Duration
	now    func() time.Time
}

// Option 配置 Manager
type Option func(*Manager)

// WithClock 替换时间来源
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager 创建 JWT 管理器
func NewManager(secret, issuer string, expiry time.Duration, opts ...Option) *Manager {
	m := &Manager{
		secret: []byte(secret),
		issuer: issuer,
		expiry: expiry,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Issue 为 subject 签发访问令牌，返回令牌及其过期时间
func (m *Manager) Issue(subject string) (string, time.Time, error) {
	if subject == "" {
		return "", time.Time{}, fmt.Errorf("%w: empty subject", ErrMalformed)
	}

	now := m.now()
	expiresAt := now.Add(m.expiry)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign access token: %w", err)
	}

	// exp 声明精确到秒，返回值与令牌内保持一致
	return signed, claims.ExpiresAt.Time, nil
}

// Decode 校验令牌并返回声明
//
// 签名错误返回 ErrInvalidSignature，过期返回 ErrExpired，
// 其他结构或声明问题返回 ErrMalformed。
func (m *Manager) Decode(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(token *jwt.Token) (interface{}, error) {
			return m.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, classify(err)
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrMalformed)
	}
	return claims, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return ErrInvalidSignature
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	default:
		return ErrMalformed
	}
}
