package httptransport

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"usercenter/backend/internal/auth"
	"usercenter/backend/internal/domain"
	"usercenter/backend/internal/service"
	"usercenter/backend/internal/storage"
)

// errorMapping 业务错误到 HTTP 状态码与中文消息的映射
type errorMapping struct {
	err    error
	status int
	msg    string
}

// errorTable 按顺序匹配，越具体的错误越靠前
var errorTable = []errorMapping{
	// 输入校验
	{domain.ErrInvalidEmail, http.StatusUnprocessableEntity, "邮箱格式无效"},
	{domain.ErrEmailTooLong, http.StatusUnprocessableEntity, "邮箱地址过长"},
	{domain.ErrPasswordTooShort, http.StatusUnprocessableEntity, "密码长度至少 8 位"},
	{domain.ErrPasswordTooLong, http.StatusUnprocessableEntity, "密码长度不能超过 72 字节"},
	{domain.ErrUsernameTooShort, http.StatusUnprocessableEntity, "用户名长度至少 3 位"},
	{domain.ErrUsernameTooLong, http.StatusUnprocessableEntity, "用户名长度不能超过 32 位"},
	{domain.ErrInvalidUsername, http.StatusUnprocessableEntity, "用户名格式无效"},
	{domain.ErrInvalidName, http.StatusUnprocessableEntity, "名称格式无效"},
	{domain.ErrFirstNameRequired, http.StatusUnprocessableEntity, "名字不能为空"},
	{domain.ErrLastNameRequired, http.StatusUnprocessableEntity, "姓氏不能为空"},
	{domain.ErrBirthDateRequired, http.StatusUnprocessableEntity, "出生日期不能为空"},
	{domain.ErrValidation, http.StatusUnprocessableEntity, MsgInvalidRequest},

	// 认证与授权
	{auth.ErrInvalidCredentials, http.StatusUnauthorized, MsgInvalidCredentials},
	{auth.ErrKeyExpired, http.StatusUnauthorized, MsgTokenExpired},
	{auth.ErrUnauthorized, http.StatusUnauthorized, MsgTokenInvalid},
	{service.ErrNotPermitted, http.StatusForbidden, MsgPermissionDenied},

	// 资源不存在
	{service.ErrUserNotFound, http.StatusNotFound, MsgUserNotFound},
	{service.ErrRoleNotFound, http.StatusNotFound, MsgRoleNotFound},
	{service.ErrPermissionNotFound, http.StatusNotFound, MsgPermissionNotFound},
	{service.ErrAssignmentNotFound, http.StatusNotFound, "关联记录不存在"},
	{storage.ErrNotFound, http.StatusNotFound, "资源不存在"},

	// 资源冲突
	{service.ErrUsernameExists, http.StatusConflict, "用户名已被注册"},
	{service.ErrEmailExists, http.StatusConflict, "邮箱已被注册"},
	{service.ErrUserExists, http.StatusConflict, "用户已存在"},
	{service.ErrRoleExists, http.StatusConflict, "角色名称已存在"},
	{service.ErrPermissionExists, http.StatusConflict, "权限名称已存在"},
	{service.ErrRoleAlreadyGranted, http.StatusConflict, "该用户已拥有此角色"},
	{service.ErrPermAlreadyGranted, http.StatusConflict, "该角色已拥有此权限"},
	{storage.ErrConflict, http.StatusConflict, "资源冲突"},
}

// 通用错误消息
const (
	MsgInvalidRequest     = "请求参数格式错误"
	MsgInvalidID          = "ID 格式无效"
	MsgAuthRequired       = "需要登录认证"
	MsgInvalidCredentials = "用户名或密码错误"
	MsgTokenExpired       = "登录已过期，请重新登录"
	MsgTokenInvalid       = "无效的访问令牌"
	MsgPermissionDenied   = "权限不足"
	MsgUserNotFound       = "用户不存在"
	MsgRoleNotFound       = "角色不存在"
	MsgPermissionNotFound = "权限不存在"
	MsgInternalError      = "服务器内部错误，请稍后重试"
)

// classify 返回错误对应的状态码与消息，未知错误返回 500
func classify(err error) (int, string) {
	for _, m := range errorTable {
		if errors.Is(err, m.err) {
			return m.status, m.msg
		}
	}
	return http.StatusInternalServerError, MsgInternalError
}

// writeServiceError 将业务错误写为统一响应，内部错误只记录日志不返回细节
func writeServiceError(c *gin.Context, log *zap.Logger, op string, err error) {
	status, msg := classify(err)
	switch status {
	case http.StatusInternalServerError:
		log.Error(op+" failed", zap.Error(err), zap.String("path", c.FullPath()))
		InternalError(c, msg)
	case http.StatusUnauthorized:
		Unauthorized(c, msg)
	default:
		Error(c, status, msg)
	}
}
