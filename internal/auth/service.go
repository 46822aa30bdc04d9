package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"usercenter/backend/internal/auth/jwt"
	"usercenter/backend/internal/domain"
	"usercenter/backend/internal/monitoring"
	"usercenter/backend/internal/service"
	"usercenter/backend/internal/storage"
)

var (
	// ErrInvalidCredentials 用户名或密码错误，不区分用户是否存在
	ErrInvalidCredentials = errors.New("incorrect username or password")
	// ErrNotPermitted 用户不具备签发令牌的权限
	ErrNotPermitted = service.ErrNotPermitted

	// ErrUnauthorized 请求携带的令牌不可用，下列错误均包裹此错误
	ErrUnauthorized = errors.New("could not validate credentials")
	// ErrKeyInactive 令牌对应的 API Key 已失效或不存在
	ErrKeyInactive = fmt.Errorf("%w: api key inactive", ErrUnauthorized)
	// ErrKeyExpired 令牌对应的 API Key 已过期
	ErrKeyExpired = fmt.Errorf("%w: api key expired", ErrUnauthorized)
	// ErrUserDisabled 用户已被禁用
	ErrUserDisabled = fmt.Errorf("%w: user disabled", ErrUnauthorized)
	// ErrKeyOwnerMismatch API Key 不属于令牌主体当前对应的用户
	ErrKeyOwnerMismatch = fmt.Errorf("%w: api key owner mismatch", ErrUnauthorized)
)

// TokenType 访问令牌类型
const TokenType = "bearer"

const tracerName = "usercenter/backend/internal/auth"

// UserLookup 按用户名查询用户
type UserLookup interface {
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)
}

// Authorizer RBAC 判定
type Authorizer interface {
	Check(ctx context.Context, user *domain.User, action string) error
}

// TokenCodec 访问令牌签发与解析
type TokenCodec interface {
	Issue(subject string) (string, time.Time, error)
	Decode(token string) (*jwt.Claims, error)
}

// KeyLifecycle API Key 生命周期操作
type KeyLifecycle interface {
	Issue(ctx context.Context, user *domain.User, token string, expiresAt time.Time) (*domain.APIKey, error)
	ActiveKey(ctx context.Context, token string) (*domain.APIKey, error)
	ExpireIfPastDue(ctx context.Context, token string) (bool, error)
}

// Deps 认证服务依赖
type Deps struct {
	Users   UserLookup
	Hasher  Hasher
	RBAC    Authorizer
	Tokens  TokenCodec
	Keys    KeyLifecycle
	Tracer  trace.Tracer
	Metrics *monitoring.Metrics
	Logger  *zap.Logger

	// TokenPermission 签发令牌所需的权限名称
	TokenPermission string
}

// TokenResult 登录成功返回的访问令牌
type TokenResult struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"-"`
}

// Service 认证服务
//
// 登录流程严格顺序执行：认证 -> 授权 -> 签发 -> 持久化，任一步失败即终止。
// 令牌仅在 API Key 记录持久化成功后返回。
type Service struct {
	users      UserLookup
	hasher     Hasher
	rbac       Authorizer
	tokens     TokenCodec
	keys       KeyLifecycle
	tracer     trace.Tracer
	metrics    *monitoring.Metrics
	log        *zap.Logger
	permission string

	dummyOnce sync.Once
	dummyHash string
}

// NewService 创建认证服务，Tracer 为空时使用 noop 实现
func NewService(deps Deps) *Service {
	tracer := deps.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer(tracerName)
	}
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	permission := deps.TokenPermission
	if permission == "" {
		permission = domain.PermissionGenerateToken
	}
	return &Service{
		users:      deps.Users,
		hasher:     deps.Hasher,
		rbac:       deps.RBAC,
		tokens:     deps.Tokens,
		keys:       deps.Keys,
		tracer:     tracer,
		metrics:    deps.Metrics,
		log:        log,
		permission: permission,
	}
}

// Login 校验用户名密码并签发访问令牌
//
// 返回值:
//   - ErrInvalidCredentials: 用户不存在、密码错误或账号不可用
//   - ErrNotPermitted: 用户缺少签发令牌所需的权限
//   - storage.ErrConflict: 令牌持久化冲突
func (s *Service) Login(ctx context.Context, username, password string) (*TokenResult, error) {
	ctx, span := s.tracer.Start(ctx, "login-for-access-token")
	defer span.End()
	span.SetAttributes(attribute.String("user.name", username))

	result, err := s.login(ctx, username, password)
	s.metrics.RecordLogin(loginOutcome(err))
	if err != nil {
		endWithError(span, err)
		return nil, err
	}
	return result, nil
}

func (s *Service) login(ctx context.Context, username, password string) (*TokenResult, error) {
	user, err := s.authenticate(ctx, username, password)
	if err != nil {
		return nil, err
	}

	if err := s.authorize(ctx, user); err != nil {
		return nil, err
	}

	token, expiresAt, err := s.issueToken(ctx, user)
	if err != nil {
		return nil, err
	}

	if err := s.persistKey(ctx, user, token, expiresAt); err != nil {
		return nil, err
	}

	s.log.Info("access token issued", zap.Int64("user_id", user.ID), zap.Time("expires_at", expiresAt))
	return &TokenResult{AccessToken: token, TokenType: TokenType, ExpiresAt: expiresAt}, nil
}

func (s *Service) authenticate(ctx context.Context, username, password string) (*domain.User, error) {
	ctx, span := s.tracer.Start(ctx, "authenticate")
	defer span.End()

	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			endWithError(span, err)
			return nil, fmt.Errorf("load user: %w", err)
		}
		// 对不存在的用户同样执行一次哈希比较
		s.hasher.Verify(password, s.dummyDigest())
		endWithError(span, ErrInvalidCredentials)
		return nil, ErrInvalidCredentials
	}

	if !s.hasher.Verify(password, user.PasswordHash) || !user.CanAuthenticate() {
		endWithError(span, ErrInvalidCredentials)
		return nil, ErrInvalidCredentials
	}
	span.SetAttributes(attribute.Int64("user.id", user.ID))
	return user, nil
}

func (s *Service) authorize(ctx context.Context, user *domain.User) error {
	ctx, span := s.tracer.Start(ctx, "authorize-for-token-issuance")
	defer span.End()
	span.SetAttributes(attribute.String("rbac.action", s.permission))

	if err := s.rbac.Check(ctx, user, s.permission); err != nil {
		endWithError(span, err)
		if errors.Is(err, ErrNotPermitted) {
			s.log.Info("token issuance denied",
				zap.Int64("user_id", user.ID),
				zap.String("reason", err.Error()),
			)
		}
		return err
	}
	return nil
}

func (s *Service) issueToken(ctx context.Context, user *domain.User) (string, time.Time, error) {
	_, span := s.tracer.Start(ctx, "issue-token")
	defer span.End()

	token, expiresAt, err := s.tokens.Issue(user.Username)
	if err != nil {
		endWithError(span, err)
		return "", time.Time{}, fmt.Errorf("issue token: %w", err)
	}
	return token, expiresAt, nil
}

func (s *Service) persistKey(ctx context.Context, user *domain.User, token string, expiresAt time.Time) error {
	ctx, span := s.tracer.Start(ctx, "persist-key")
	defer span.End()

	if _, err := s.keys.Issue(ctx, user, token, expiresAt); err != nil {
		endWithError(span, err)
		if errors.Is(err, storage.ErrConflict) {
			s.log.Error("api key conflict", zap.Int64("user_id", user.ID))
		}
		return err
	}
	return nil
}

// ResolveCurrentUser 解析请求携带的令牌并返回当前用户
//
// 所有拒绝原因均包裹 ErrUnauthorized；存储故障原样返回。
func (s *Service) ResolveCurrentUser(ctx context.Context, token string) (*domain.User, error) {
	ctx, span := s.tracer.Start(ctx, "resolve-current-user")
	defer span.End()

	user, err := s.resolve(ctx, token)
	if err != nil {
		endWithError(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.Int64("user.id", user.ID))
	return user, nil
}

func (s *Service) resolve(ctx context.Context, token string) (*domain.User, error) {
	claims, err := s.tokens.Decode(token)
	if err != nil {
		if errors.Is(err, jwt.ErrExpired) {
			// 令牌已过期时同步失效对应的 API Key 记录
			if _, expErr := s.keys.ExpireIfPastDue(ctx, token); expErr != nil {
				s.log.Warn("failed to expire api key", zap.Error(expErr))
			}
			return nil, fmt.Errorf("%w: %w", ErrKeyExpired, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}

	user, err := s.users.GetUserByUsername(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown subject", ErrUnauthorized)
		}
		return nil, fmt.Errorf("load user: %w", err)
	}

	key, err := s.keys.ActiveKey(ctx, token)
	if err != nil {
		return nil, err
	}
	if key == nil {
		expired, err := s.keys.ExpireIfPastDue(ctx, token)
		if err != nil {
			return nil, err
		}
		if expired {
			return nil, ErrKeyExpired
		}
		return nil, ErrKeyInactive
	}

	// 用户名可修改，归属以 API Key 记录为准
	if key.UserID != user.ID {
		s.log.Warn("api key owner mismatch",
			zap.Int64("api_key_id", key.ID),
			zap.Int64("key_user_id", key.UserID),
			zap.Int64("subject_user_id", user.ID),
		)
		return nil, ErrKeyOwnerMismatch
	}

	if !user.CanAuthenticate() {
		return nil, ErrUserDisabled
	}
	return user, nil
}

// dummyDigest 返回用于等时比较的摘要
func (s *Service) dummyDigest() string {
	s.dummyOnce.Do(func() {
		digest, err := s.hasher.Hash("usercenter-timing-equalizer")
		if err == nil {
			s.dummyHash = digest
		}
	})
	return s.dummyHash
}

func loginOutcome(err error) string {
	switch {
	case err == nil:
		return monitoring.LoginSuccess
	case errors.Is(err, ErrInvalidCredentials):
		return monitoring.LoginInvalidCredentials
	case errors.Is(err, ErrNotPermitted):
		return monitoring.LoginNotPermitted
	default:
		return monitoring.LoginError
	}
}

func endWithError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
