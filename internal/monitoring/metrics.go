package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 登录结果标签
const (
	LoginSuccess            = "success"
	LoginInvalidCredentials = "invalid_credentials"
	LoginNotPermitted       = "not_permitted"
	LoginError              = "error"
)

// API Key 失效路径标签
const (
	ExpiryLazy   = "lazy"
	ExpiryReaper = "reaper"
)

// Metrics 监控指标
//
// 所有 Record 方法对 nil 接收者安全，未注入指标的组件可直接传 nil。
type Metrics struct {
	registry *prometheus.Registry

	// HTTP 请求指标
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPRequestSize     *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// 认证指标
	LoginAttempts  *prometheus.CounterVec
	APIKeysIssued  prometheus.Counter
	APIKeysExpired *prometheus.CounterVec

	// 用户指标
	UsersRegistered prometheus.Counter

	// 事件指标
	EventsPublished *prometheus.CounterVec

	// 错误指标
	PanicsTotal prometheus.Counter

	// 限流指标
	RateLimitBlocks *prometheus.CounterVec
}

// NewMetrics 在指定注册表上创建监控指标，reg 为 nil 时创建新注册表并附带进程与 Go 运行时指标
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "usercenter_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "usercenter_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		HTTPRequestSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "usercenter_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "endpoint"},
		),

		HTTPResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "usercenter_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "endpoint"},
		),

		LoginAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "usercenter_login_attempts_total",
				Help: "Total number of token requests by outcome",
			},
			[]string{"outcome"},
		),

		APIKeysIssued: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "usercenter_api_keys_issued_total",
				Help: "Total number of API keys issued",
			},
		),

		APIKeysExpired: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "usercenter_api_keys_expired_total",
				Help: "Total number of API keys transitioned to inactive",
			},
			[]string{"path"},
		),

		UsersRegistered: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "usercenter_users_registered_total",
				Help: "Total number of users registered",
			},
		),

		EventsPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "usercenter_events_published_total",
				Help: "Total number of events handed to the broker",
			},
			[]string{"topic", "result"},
		),

		PanicsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "usercenter_panics_total",
				Help: "Total number of panics",
			},
		),

		RateLimitBlocks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "usercenter_rate_limit_blocks_total",
				Help: "Total number of rate limit blocks",
			},
			[]string{"endpoint"},
		),
	}
}

// RecordHTTPRequest 记录 HTTP 请求指标
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration, requestSize, responseSize int64) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
	m.HTTPRequestSize.WithLabelValues(method, endpoint).Observe(float64(requestSize))
	m.HTTPResponseSize.WithLabelValues(method, endpoint).Observe(float64(responseSize))
}

// RecordLogin 记录登录结果
func (m *Metrics) RecordLogin(outcome string) {
	if m == nil {
		return
	}
	m.LoginAttempts.WithLabelValues(outcome).Inc()
}

// RecordAPIKeyIssued 记录 API Key 签发
func (m *Metrics) RecordAPIKeyIssued() {
	if m == nil {
		return
	}
	m.APIKeysIssued.Inc()
}

// RecordAPIKeysExpired 记录 API Key 失效数量
func (m *Metrics) RecordAPIKeysExpired(path string, count int64) {
	if m == nil || count <= 0 {
		return
	}
	m.APIKeysExpired.WithLabelValues(path).Add(float64(count))
}

// RecordUserRegistered 记录用户注册
func (m *Metrics) RecordUserRegistered() {
	if m == nil {
		return
	}
	m.UsersRegistered.Inc()
}

// RecordEventPublished 记录事件投递结果
func (m *Metrics) RecordEventPublished(topic string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "failed"
	}
	m.EventsPublished.WithLabelValues(topic, result).Inc()
}

// RecordPanic 记录 panic
func (m *Metrics) RecordPanic() {
	if m == nil {
		return
	}
	m.PanicsTotal.Inc()
}

// RecordRateLimitBlock 记录限流阻止
func (m *Metrics) RecordRateLimitBlock(endpoint string) {
	if m == nil {
		return
	}
	m.RateLimitBlocks.WithLabelValues(endpoint).Inc()
}

// Registry 返回底层注册表
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// HTTPHandler 返回 Prometheus HTTP 处理器
func (m *Metrics) HTTPHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
