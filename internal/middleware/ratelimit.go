package middleware

import (
	"net/http"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"usercenter/backend/internal/monitoring"
)

const maxTrackedClients = 10000

// IPRateLimiter 按客户端 IP 的令牌桶限流
//
// 活跃 IP 数量有上限，超出时淘汰最久未访问的限流器。
type IPRateLimiter struct {
	limit   rate.Limit
	burst   int
	clients *lru.Cache[string, *rate.Limiter]
	mu      sync.Mutex
}

// NewIPRateLimiter 创建限流器，perSecond <= 0 时返回 nil 表示不限流
func NewIPRateLimiter(perSecond float64, burst int) *IPRateLimiter {
	if perSecond <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	clients, _ := lru.New[string, *rate.Limiter](maxTrackedClients)
	return &IPRateLimiter{
		limit:   rate.Limit(perSecond),
		burst:   burst,
		clients: clients,
	}
}

// Allow 判断该 IP 当前是否允许请求
func (l *IPRateLimiter) Allow(ip string) bool {
	l.mu.Lock()
	limiter, ok := l.clients.Get(ip)
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.clients.Add(ip, limiter)
	}
	l.mu.Unlock()
	return limiter.Allow()
}

// RateLimit 限流中间件，limiter 为 nil 时直接放行
func RateLimit(limiter *IPRateLimiter, endpoint string, metrics *monitoring.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}
		if !limiter.Allow(c.ClientIP()) {
			metrics.RecordRateLimitBlock(endpoint)
			c.Header("Retry-After", strconv.Itoa(1))
			abort(c, http.StatusTooManyRequests, "请求过于频繁，请稍后重试")
			return
		}
		c.Next()
	}
}
