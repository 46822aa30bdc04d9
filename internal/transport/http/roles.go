package httptransport

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"usercenter/backend/internal/service"
)

// RoleHandler 角色管理
type RoleHandler struct {
	roles *service.RoleService
	log   *zap.Logger
}

// NewRoleHandler 创建角色处理器
func NewRoleHandler(roles *service.RoleService, log *zap.Logger) *RoleHandler {
	return &RoleHandler{roles: roles, log: log}
}

type roleRequest struct {
	RoleName string `json:"role_name" binding:"required"`
}

// List 列出全部角色
func (h *RoleHandler) List(c *gin.Context) {
	roles, err := h.roles.List(c.Request.Context())
	if err != nil {
		writeServiceError(c, h.log, "list roles", err)
		return
	}
	Success(c, roles)
}

// Get 根据 ID 获取角色
func (h *RoleHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	role, err := h.roles.Get(c.Request.Context(), id)
	if err != nil {
		writeServiceError(c, h.log, "get role", err)
		return
	}
	Success(c, role)
}

// GetByName 根据名称获取角色
func (h *RoleHandler) GetByName(c *gin.Context) {
	role, err := h.roles.GetByName(c.Request.Context(), c.Param("name"))
	if err != nil {
		writeServiceError(c, h.log, "get role by name", err)
		return
	}
	Success(c, role)
}

// Create 创建角色
func (h *RoleHandler) Create(c *gin.Context) {
	var req roleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusUnprocessableEntity, MsgInvalidRequest)
		return
	}
	role, err := h.roles.Create(c.Request.Context(), req.RoleName)
	if err != nil {
		writeServiceError(c, h.log, "create role", err)
		return
	}
	Created(c, role)
}

// Update 重命名角色
func (h *RoleHandler) Update(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req roleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusUnprocessableEntity, MsgInvalidRequest)
		return
	}
	role, err := h.roles.Rename(c.Request.Context(), id, req.RoleName)
	if err != nil {
		writeServiceError(c, h.log, "rename role", err)
		return
	}
	Success(c, role)
}

// Delete 删除角色及其关联
func (h *RoleHandler) Delete(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.roles.Delete(c.Request.Context(), id); err != nil {
		writeServiceError(c, h.log, "delete role", err)
		return
	}
	NoContent(c)
}
