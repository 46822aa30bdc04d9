package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"usercenter/backend/internal/monitoring"
)

// HTTPMetrics HTTP 指标中间件
//
// 以路由模板作为 endpoint 标签，未匹配的路由统一记为 "unmatched"。
func HTTPMetrics(metrics *monitoring.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestSize := c.Request.ContentLength
		if requestSize < 0 {
			requestSize = 0
		}

		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		metrics.RecordHTTPRequest(
			c.Request.Method,
			endpoint,
			strconv.Itoa(c.Writer.Status()),
			time.Since(start),
			requestSize,
			int64(c.Writer.Size()),
		)
	}
}
