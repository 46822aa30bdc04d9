package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"usercenter/backend/internal/auth"
	"usercenter/backend/internal/domain"
	"usercenter/backend/internal/service"
)

// ContextUser 当前用户在 gin 上下文中的键
const ContextUser = "currentUser"

const (
	msgAuthRequired = "需要登录认证"
	msgInternal     = "服务器内部错误，请稍后重试"
	msgForbidden    = "权限不足"
)

// UserResolver 根据访问令牌解析当前用户
type UserResolver interface {
	ResolveCurrentUser(ctx context.Context, token string) (*domain.User, error)
}

// PermissionChecker RBAC 判定
type PermissionChecker interface {
	Check(ctx context.Context, user *domain.User, action string) error
}

// BearerAuth Bearer 令牌认证中间件
type BearerAuth struct {
	resolver UserResolver
	log      *zap.Logger
}

// NewBearerAuth 创建认证中间件
func NewBearerAuth(resolver UserResolver, log *zap.Logger) *BearerAuth {
	return &BearerAuth{resolver: resolver, log: log}
}

// RequireUser 要求携带可用的访问令牌
func (a *BearerAuth) RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			unauthorized(c)
			return
		}

		user, err := a.resolver.ResolveCurrentUser(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, auth.ErrUnauthorized) {
				a.log.Debug("bearer token rejected", zap.String("ip", c.ClientIP()), zap.Error(err))
				unauthorized(c)
				return
			}
			a.log.Error("failed to resolve current user", zap.Error(err))
			abort(c, http.StatusInternalServerError, msgInternal)
			return
		}

		c.Set(ContextUser, user)
		c.Next()
	}
}

// RequirePermission 要求当前用户具备指定权限，必须位于 RequireUser 之后
func RequirePermission(checker PermissionChecker, permission string, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok {
			unauthorized(c)
			return
		}

		if err := checker.Check(c.Request.Context(), user, permission); err != nil {
			if errors.Is(err, service.ErrNotPermitted) {
				abort(c, http.StatusForbidden, msgForbidden)
				return
			}
			log.Error("permission check failed", zap.Int64("user_id", user.ID), zap.Error(err))
			abort(c, http.StatusInternalServerError, msgInternal)
			return
		}
		c.Next()
	}
}

// CurrentUser 返回 RequireUser 写入的当前用户
func CurrentUser(c *gin.Context) (*domain.User, bool) {
	value, ok := c.Get(ContextUser)
	if !ok {
		return nil, false
	}
	user, ok := value.(*domain.User)
	return user, ok
}

// bearerToken 从 Authorization 头提取令牌，scheme 不区分大小写
func bearerToken(header string) string {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func unauthorized(c *gin.Context) {
	c.Header("WWW-Authenticate", "Bearer")
	abort(c, http.StatusUnauthorized, msgAuthRequired)
}

// abort 以统一响应结构终止请求
func abort(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"code": status, "msg": msg})
}
