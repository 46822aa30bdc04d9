package health

import (
	"context"
	"net/http"
	"time"

	"github.com/heptiolabs/healthcheck"
	"go.uber.org/zap"
)

const checkTimeout = 3 * time.Second

// Pinger 可探测连通性的依赖
type Pinger interface {
	Ping(ctx context.Context) error
}

// Checker 健康检查器
//
// /live 只检查进程自身，/ready 额外检查存储与缓存等外部依赖。
type Checker struct {
	handler healthcheck.Handler
	logger  *zap.Logger
}

// NewChecker 创建健康检查器
func NewChecker(logger *zap.Logger) *Checker {
	c := &Checker{
		handler: healthcheck.NewHandler(),
		logger:  logger,
	}
	c.handler.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(10000))
	return c
}

// AddDependency 注册就绪检查，dep 为 nil 时忽略
func (c *Checker) AddDependency(name string, dep Pinger) {
	if dep == nil {
		return
	}
	c.handler.AddReadinessCheck(name, healthcheck.Timeout(c.pingCheck(name, dep), checkTimeout))
}

func (c *Checker) pingCheck(name string, dep Pinger) healthcheck.Check {
	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
		defer cancel()

		if err := dep.Ping(ctx); err != nil {
			c.logger.Warn("readiness check failed", zap.String("dependency", name), zap.Error(err))
			return err
		}
		return nil
	}
}

// LiveHandler 存活探针
func (c *Checker) LiveHandler() http.HandlerFunc {
	return c.handler.LiveEndpoint
}

// ReadyHandler 就绪探针
func (c *Checker) ReadyHandler() http.HandlerFunc {
	return c.handler.ReadyEndpoint
}
