package httptransport

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"usercenter/backend/internal/domain"
	"usercenter/backend/internal/middleware"
	"usercenter/backend/internal/service"
)

// PermissionChecker RBAC 判定
type PermissionChecker interface {
	Check(ctx context.Context, user *domain.User, action string) error
}

// UserHandler 处理用户、资料与授权关联
type UserHandler struct {
	users            *service.UserService
	rbac             PermissionChecker
	managePermission string
	log              *zap.Logger
}

// NewUserHandler 创建用户处理器
func NewUserHandler(users *service.UserService, rbac PermissionChecker, managePermission string, log *zap.Logger) *UserHandler {
	return &UserHandler{
		users:            users,
		rbac:             rbac,
		managePermission: managePermission,
		log:              log,
	}
}

type createUserRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type updateUserRequest struct {
	Username   *string `json:"username"`
	Email      *string `json:"email"`
	Password   *string `json:"password"`
	IsActive   *bool   `json:"is_active"`
	IsDisabled *bool   `json:"is_disabled"`
}

type profileRequest struct {
	UserID      int64   `json:"user_id" binding:"required"`
	FirstName   string  `json:"first_name" binding:"required"`
	LastName    string  `json:"last_name" binding:"required"`
	Sex         *string `json:"sex"`
	PhoneNumber *string `json:"phone_number"`
	Address     *string `json:"address"`
	BirthDate   string  `json:"birth_date" binding:"required"` // YYYY-MM-DD
	Bio         *string `json:"bio"`
	Description *string `json:"description"`
}

type assignRoleRequest struct {
	UserID int64 `json:"user_id" binding:"required"`
	RoleID int64 `json:"role_id" binding:"required"`
}

type assignPermissionRequest struct {
	RoleID       int64 `json:"role_id" binding:"required"`
	PermissionID int64 `json:"permission_id" binding:"required"`
}

// Create 公开注册
func (h *UserHandler) Create(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusUnprocessableEntity, MsgInvalidRequest)
		return
	}

	user, err := h.users.Register(c.Request.Context(), service.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		writeServiceError(c, h.log, "register user", err)
		return
	}
	Created(c, user)
}

// Get 获取用户
func (h *UserHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	user, err := h.users.Get(c.Request.Context(), id)
	if err != nil {
		writeServiceError(c, h.log, "get user", err)
		return
	}
	Success(c, user)
}

// Update 部分更新用户，仅本人或管理者可操作
func (h *UserHandler) Update(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok || !h.authorizeSelf(c, id) {
		return
	}

	var req updateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusUnprocessableEntity, MsgInvalidRequest)
		return
	}
	// 账号状态只能由管理者修改
	if (req.IsActive != nil || req.IsDisabled != nil) && !h.isManager(c) {
		if c.IsAborted() {
			return
		}
		Forbidden(c, MsgPermissionDenied)
		return
	}

	user, err := h.users.Update(c.Request.Context(), id, service.UpdateUserInput{
		Username:   req.Username,
		Email:      req.Email,
		Password:   req.Password,
		IsActive:   req.IsActive,
		IsDisabled: req.IsDisabled,
	})
	if err != nil {
		writeServiceError(c, h.log, "update user", err)
		return
	}
	Success(c, user)
}

// Delete 删除用户，仅本人或管理者可操作
func (h *UserHandler) Delete(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok || !h.authorizeSelf(c, id) {
		return
	}
	if err := h.users.Delete(c.Request.Context(), id); err != nil {
		writeServiceError(c, h.log, "delete user", err)
		return
	}
	NoContent(c)
}

// SaveProfile 新建或覆盖用户资料
func (h *UserHandler) SaveProfile(c *gin.Context) {
	var req profileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusUnprocessableEntity, MsgInvalidRequest)
		return
	}
	birthDate, err := time.Parse(time.DateOnly, req.BirthDate)
	if err != nil {
		Error(c, http.StatusUnprocessableEntity, "出生日期格式应为 YYYY-MM-DD")
		return
	}
	if !h.authorizeSelf(c, req.UserID) {
		return
	}

	profile, err := h.users.SaveProfile(c.Request.Context(), &domain.UserProfile{
		UserID:      req.UserID,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Sex:         req.Sex,
		PhoneNumber: req.PhoneNumber,
		Address:     req.Address,
		BirthDate:   birthDate,
		Bio:         req.Bio,
		Description: req.Description,
	})
	if err != nil {
		writeServiceError(c, h.log, "save profile", err)
		return
	}
	Created(c, profile)
}

// GetProfile 获取用户资料
func (h *UserHandler) GetProfile(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	profile, err := h.users.GetProfile(c.Request.Context(), id)
	if err != nil {
		writeServiceError(c, h.log, "get profile", err)
		return
	}
	Success(c, profile)
}

// ListRoles 列出用户的角色
func (h *UserHandler) ListRoles(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	roles, err := h.users.ListRoles(c.Request.Context(), id)
	if err != nil {
		writeServiceError(c, h.log, "list user roles", err)
		return
	}
	Success(c, roles)
}

// AssignRole 为用户分配角色
func (h *UserHandler) AssignRole(c *gin.Context) {
	var req assignRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusUnprocessableEntity, MsgInvalidRequest)
		return
	}
	link, err := h.users.AssignRole(c.Request.Context(), req.UserID, req.RoleID)
	if err != nil {
		writeServiceError(c, h.log, "assign role", err)
		return
	}
	Created(c, link)
}

// RevokeRole 撤销用户角色
func (h *UserHandler) RevokeRole(c *gin.Context) {
	userID, ok := pathID(c, "id")
	if !ok {
		return
	}
	roleID, ok := pathID(c, "role_id")
	if !ok {
		return
	}
	if err := h.users.RevokeRole(c.Request.Context(), userID, roleID); err != nil {
		writeServiceError(c, h.log, "revoke role", err)
		return
	}
	NoContent(c)
}

// AssignPermission 为角色授予权限
func (h *UserHandler) AssignPermission(c *gin.Context) {
	var req assignPermissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusUnprocessableEntity, MsgInvalidRequest)
		return
	}
	link, err := h.users.AssignPermission(c.Request.Context(), req.RoleID, req.PermissionID)
	if err != nil {
		writeServiceError(c, h.log, "assign permission", err)
		return
	}
	Created(c, link)
}

// RevokePermission 撤销角色权限
func (h *UserHandler) RevokePermission(c *gin.Context) {
	roleID, ok := pathID(c, "id")
	if !ok {
		return
	}
	permissionID, ok := pathID(c, "permission_id")
	if !ok {
		return
	}
	if err := h.users.RevokePermission(c.Request.Context(), roleID, permissionID); err != nil {
		writeServiceError(c, h.log, "revoke permission", err)
		return
	}
	NoContent(c)
}

// authorizeSelf 当前用户为目标用户本人或具备管理权限时返回 true，否则写出错误响应
func (h *UserHandler) authorizeSelf(c *gin.Context, targetID int64) bool {
	current, ok := middleware.CurrentUser(c)
	if !ok {
		Unauthorized(c, MsgAuthRequired)
		return false
	}
	if current.ID == targetID {
		return true
	}
	if h.isManager(c) {
		return true
	}
	if !c.IsAborted() && !c.Writer.Written() {
		Forbidden(c, MsgPermissionDenied)
	}
	return false
}

// isManager 判断当前用户是否具备管理权限，存储故障时写出 500
func (h *UserHandler) isManager(c *gin.Context) bool {
	current, ok := middleware.CurrentUser(c)
	if !ok {
		return false
	}
	err := h.rbac.Check(c.Request.Context(), current, h.managePermission)
	if err == nil {
		return true
	}
	if !errors.Is(err, service.ErrNotPermitted) {
		writeServiceError(c, h.log, "check manage permission", err)
		c.Abort()
	}
	return false
}

// pathID 解析路径中的正整数 ID，失败时写出 422
func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		Error(c, http.StatusUnprocessableEntity, MsgInvalidID)
		return 0, false
	}
	return id, true
}
