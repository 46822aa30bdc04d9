package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"usercenter/backend/internal/auth"
	jwtpkg "usercenter/backend/internal/auth/jwt"
	"usercenter/backend/internal/bootstrap"
	"usercenter/backend/internal/config"
	"usercenter/backend/internal/events"
	"usercenter/backend/internal/health"
	"usercenter/backend/internal/logger"
	"usercenter/backend/internal/monitoring"
	"usercenter/backend/internal/pool"
	"usercenter/backend/internal/service"
	"usercenter/backend/internal/tracing"
	httptransport "usercenter/backend/internal/transport/http"
)

const serviceName = "usercenter"

// main 启动用户中心 HTTP 服务。
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	if cfg.Log.Development {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	log, err := logger.NewLogger(logger.Config{
		Service:     serviceName,
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
		LogFile:     cfg.Log.File,
		MaxSize:     100,
		MaxBackups:  3,
		MaxAge:      28,
		Compress:    true,
	})
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
	log.Info("server exited cleanly")
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("starting usercenter server",
		zap.String("storage", cfg.Storage.Type),
		zap.String("queue", cfg.Queue.Type),
		zap.Bool("development", cfg.Log.Development),
	)

	// 存储与缓存
	backend, err := bootstrap.OpenBackend(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := backend.Close(); err != nil {
			log.Warn("failed to close storage", zap.Error(err))
		}
	}()
	store := backend.Store

	if err := bootstrap.SeedRBAC(ctx, store, cfg.Auth, log); err != nil {
		return fmt.Errorf("seed rbac: %w", err)
	}

	// 链路追踪
	tracer, err := tracing.Init(ctx, cfg.Tracing, log)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracer.Shutdown(shutdownCtx); err != nil {
			log.Warn("failed to flush traces", zap.Error(err))
		}
	}()

	metrics := monitoring.NewMetrics(nil)

	// 事件发布，发布器在工作池排空后关闭
	var notifier service.UserNotifier
	publisher, closePublisher, err := bootstrap.NewPublisher(cfg, log)
	if err != nil {
		return err
	}
	if publisher != nil {
		defer func() { _ = closePublisher() }()

		workers := pool.NewWorkerPool(cfg.Queue.Workers, cfg.Queue.QueueSize, log)
		workers.Start(context.WithoutCancel(ctx))
		defer workers.Stop()

		notifier = events.NewNotifier(publisher, workers, cfg.Queue.Topic, metrics, log)
	}

	// 服务层
	hasher := auth.BcryptHasher{}
	rbac := service.NewRBACService(store)
	apiKeys := service.NewAPIKeyService(store, metrics, log)
	jwtManager := jwtpkg.NewManager(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.AccessExpiry)

	authService := auth.NewService(auth.Deps{
		Users:           store,
		Hasher:          hasher,
		RBAC:            rbac,
		Tokens:          jwtManager,
		Keys:            apiKeys,
		Tracer:          tracer.Tracer("usercenter/backend/internal/auth"),
		Metrics:         metrics,
		Logger:          log,
		TokenPermission: cfg.Auth.TokenPermission,
	})
	userService := service.NewUserService(store, hasher, notifier, metrics, log)
	roleService := service.NewRoleService(store, log)
	permissionService := service.NewPermissionService(store, log)

	log.Info("JWT configuration",
		zap.String("issuer", cfg.JWT.Issuer),
		zap.Duration("access_expiry", cfg.JWT.AccessExpiry),
	)

	// 健康检查
	checker := health.NewChecker(log)
	checker.AddDependency("database", backend.Database)
	if backend.Redis != nil {
		checker.AddDependency("redis", backend.Redis)
	}

	router := httptransport.NewRouter(httptransport.RouterDependencies{
		Config:            cfg,
		AuthService:       authService,
		UserService:       userService,
		RoleService:       roleService,
		PermissionService: permissionService,
		RBAC:              rbac,
		Health:            checker,
		Metrics:           metrics,
		Logger:            log,
	})

	var handler http.Handler = router
	if cfg.Tracing.Enabled {
		handler = otelhttp.NewHandler(router, serviceName,
			otelhttp.WithTracerProvider(tracer.TracerProvider()),
			otelhttp.WithPropagators(tracer.Propagator()),
		)
	}

	httpServer := &http.Server{
		Addr:              cfg.Server.Address(),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.Info("starting HTTP server", zap.String("address", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	// 过期 API Key 后台回收，未配置间隔时仅惰性过期
	if cfg.APIKey.ReapInterval > 0 {
		group.Go(func() error {
			ticker := time.NewTicker(cfg.APIKey.ReapInterval)
			defer ticker.Stop()

			log.Info("starting expired api key reaper", zap.Duration("interval", cfg.APIKey.ReapInterval))
			for {
				select {
				case <-groupCtx.Done():
					log.Info("api key reaper stopped")
					return nil
				case <-ticker.C:
					if _, err := apiKeys.Reap(groupCtx); err != nil && groupCtx.Err() == nil {
						log.Error("failed to reap expired api keys", zap.Error(err))
					}
				}
			}
		})
	}

	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutdown signal received, gracefully shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
		}
		return nil
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
