package httptransport

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"usercenter/backend/internal/auth"
	"usercenter/backend/internal/middleware"
	"usercenter/backend/internal/storage"
)

// AuthHandler 处理令牌签发与当前用户查询
type AuthHandler struct {
	authService *auth.Service
	log         *zap.Logger
}

// NewAuthHandler 创建认证处理器
func NewAuthHandler(authService *auth.Service, log *zap.Logger) *AuthHandler {
	return &AuthHandler{authService: authService, log: log}
}

type tokenRequest struct {
	Username string `form:"username"`
	Password string `form:"password"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Token 以用户名密码换取访问令牌
//
// 请求体为 application/x-www-form-urlencoded，成功时直接返回
// {access_token, token_type}，不使用统一响应结构。
// 用户不具备签发权限时返回 404。
func (h *AuthHandler) Token(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBind(&req); err != nil {
		Error(c, http.StatusUnprocessableEntity, MsgInvalidRequest)
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		Error(c, http.StatusUnprocessableEntity, "用户名和密码不能为空")
		return
	}

	result, err := h.authService.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials):
			Unauthorized(c, MsgInvalidCredentials)
		case errors.Is(err, auth.ErrNotPermitted):
			NotFound(c, "该用户无权获取访问令牌")
		case errors.Is(err, storage.ErrConflict):
			Error(c, http.StatusConflict, "令牌已存在，请重试")
		default:
			h.log.Error("failed to issue access token", zap.String("username", req.Username), zap.Error(err))
			InternalError(c, MsgInternalError)
		}
		return
	}

	c.JSON(http.StatusOK, tokenResponse{
		AccessToken: result.AccessToken,
		TokenType:   result.TokenType,
	})
}

// Me 返回当前登录用户
func (h *AuthHandler) Me(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		Unauthorized(c, MsgAuthRequired)
		return
	}
	Success(c, user)
}
