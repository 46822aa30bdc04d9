package httptransport

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"usercenter/backend/internal/service"
)

// PermissionHandler 权限管理
type PermissionHandler struct {
	permissions *service.PermissionService
	log         *zap.Logger
}

// NewPermissionHandler 创建权限处理器
func NewPermissionHandler(permissions *service.PermissionService, log *zap.Logger) *PermissionHandler {
	return &PermissionHandler{permissions: permissions, log: log}
}

type permissionRequest struct {
	PermissionName string `json:"permission_name" binding:"required"`
	Description    string `json:"description"`
}

func (r permissionRequest) input() service.PermissionInput {
	return service.PermissionInput{Name: r.PermissionName, Description: r.Description}
}

// List 列出全部权限
func (h *PermissionHandler) List(c *gin.Context) {
	perms, err := h.permissions.List(c.Request.Context())
	if err != nil {
		writeServiceError(c, h.log, "list permissions", err)
		return
	}
	Success(c, perms)
}

// Get 根据 ID 获取权限
func (h *PermissionHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	perm, err := h.permissions.Get(c.Request.Context(), id)
	if err != nil {
		writeServiceError(c, h.log, "get permission", err)
		return
	}
	Success(c, perm)
}

// GetByName 根据名称获取权限
func (h *PermissionHandler) GetByName(c *gin.Context) {
	perm, err := h.permissions.GetByName(c.Request.Context(), c.Param("name"))
	if err != nil {
		writeServiceError(c, h.log, "get permission by name", err)
		return
	}
	Success(c, perm)
}

// Create 创建权限
func (h *PermissionHandler) Create(c *gin.Context) {
	var req permissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusUnprocessableEntity, MsgInvalidRequest)
		return
	}
	perm, err := h.permissions.Create(c.Request.Context(), req.input())
	if err != nil {
		writeServiceError(c, h.log, "create permission", err)
		return
	}
	Created(c, perm)
}

// Update 更新权限
func (h *PermissionHandler) Update(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req permissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusUnprocessableEntity, MsgInvalidRequest)
		return
	}
	perm, err := h.permissions.Update(c.Request.Context(), id, req.input())
	if err != nil {
		writeServiceError(c, h.log, "update permission", err)
		return
	}
	Success(c, perm)
}

// Delete 删除权限及其关联
func (h *PermissionHandler) Delete(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.permissions.Delete(c.Request.Context(), id); err != nil {
		writeServiceError(c, h.log, "delete permission", err)
		return
	}
	NoContent(c)
}
