package httptransport

import (
	"net/http"
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"usercenter/backend/internal/auth"
	"usercenter/backend/internal/config"
	"usercenter/backend/internal/health"
	"usercenter/backend/internal/middleware"
	"usercenter/backend/internal/monitoring"
	"usercenter/backend/internal/service"
)

// RouterDependencies 路由器依赖项
type RouterDependencies struct {
	Config            *config.Config
	AuthService       *auth.Service
	UserService       *service.UserService
	RoleService       *service.RoleService
	PermissionService *service.PermissionService
	RBAC              PermissionChecker
	Health            *health.Checker     // 可为 nil
	Metrics           *monitoring.Metrics // 可为 nil
	Logger            *zap.Logger
}

// NewRouter 创建并返回 Gin 路由实例。
func NewRouter(deps RouterDependencies) *gin.Engine {
	cfg := deps.Config
	log := deps.Logger

	router := gin.New()
	router.Use(middleware.Recovery(log, deps.Metrics))
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.HTTPMetrics(deps.Metrics))
	router.Use(middleware.BodySizeLimit(cfg.Server.BodyLimit))
	router.Use(gincors.New(corsConfig(cfg.CORS)))

	authHandler := NewAuthHandler(deps.AuthService, log)
	userHandler := NewUserHandler(deps.UserService, deps.RBAC, cfg.Auth.ManagePermission, log)
	roleHandler := NewRoleHandler(deps.RoleService, log)
	permissionHandler := NewPermissionHandler(deps.PermissionService, log)

	bearer := middleware.NewBearerAuth(deps.AuthService, log)
	requireUser := bearer.RequireUser()
	requireManager := middleware.RequirePermission(deps.RBAC, cfg.Auth.ManagePermission, log)

	// 健康检查与指标
	if deps.Health != nil {
		router.GET("/health/live", gin.WrapF(deps.Health.LiveHandler()))
		router.GET("/health/ready", gin.WrapF(deps.Health.ReadyHandler()))
	}
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.HTTPHandler()))
	}

	// ========== Token ==========
	tokenLimiter := middleware.NewIPRateLimiter(cfg.Server.TokenRateLimit, cfg.Server.TokenRateBurst)
	router.POST("/token", middleware.RateLimit(tokenLimiter, "/token", deps.Metrics), authHandler.Token)

	api := router.Group("/api")

	// 公开注册
	api.POST("/users", userHandler.Create)

	protected := api.Group("", requireUser)

	// ========== User Routes ==========
	users := protected.Group("/users")
	{
		users.GET("/me", authHandler.Me)
		users.GET("/:id", userHandler.Get)
		users.PUT("/:id", userHandler.Update)
		users.DELETE("/:id", userHandler.Delete)
		users.GET("/:id/profile", userHandler.GetProfile)
		users.GET("/:id/roles", userHandler.ListRoles)
		users.POST("/profile", userHandler.SaveProfile)

		users.POST("/assign_roles", requireManager, userHandler.AssignRole)
		users.POST("/assign_permission", requireManager, userHandler.AssignPermission)
		users.DELETE("/:id/roles/:role_id", requireManager, userHandler.RevokeRole)
	}

	// ========== Role Routes ==========
	roles := protected.Group("/roles")
	{
		roles.GET("", roleHandler.List)
		roles.GET("/:id", roleHandler.Get)
		roles.GET("/by-name/:name", roleHandler.GetByName)
		roles.POST("", requireManager, roleHandler.Create)
		roles.PUT("/:id", requireManager, roleHandler.Update)
		roles.DELETE("/:id", requireManager, roleHandler.Delete)
		roles.DELETE("/:id/permissions/:permission_id", requireManager, userHandler.RevokePermission)
	}

	// ========== Permission Routes ==========
	permissions := protected.Group("/permissions")
	{
		permissions.GET("", permissionHandler.List)
		permissions.GET("/:id", permissionHandler.Get)
		permissions.GET("/by-name/:name", permissionHandler.GetByName)
		permissions.POST("", requireManager, permissionHandler.Create)
		permissions.PUT("/:id", requireManager, permissionHandler.Update)
		permissions.DELETE("/:id", requireManager, permissionHandler.Delete)
	}

	router.NoRoute(func(c *gin.Context) {
		NotFound(c, "接口不存在")
	})

	return router
}

// corsConfig 构造 CORS 配置，允许所有来源时关闭凭证支持
func corsConfig(cfg config.CORSConfig) gincors.Config {
	corsCfg := gincors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderRequestID},
		ExposeHeaders:    []string{"Content-Length", middleware.HeaderProcessTime, middleware.HeaderRequestID},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	for _, origin := range corsCfg.AllowOrigins {
		if origin == "*" {
			corsCfg.AllowOrigins = nil
			corsCfg.AllowAllOrigins = true
			corsCfg.AllowCredentials = false
			break
		}
	}
	return corsCfg
}
