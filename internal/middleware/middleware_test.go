package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"usercenter/backend/internal/auth"
	"usercenter/backend/internal/domain"
	"usercenter/backend/internal/monitoring"
	"usercenter/backend/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type resolverFunc func(ctx context.Context, token string) (*domain.User, error)

func (f resolverFunc) ResolveCurrentUser(ctx context.Context, token string) (*domain.User, error) {
	return f(ctx, token)
}

type checkerFunc func(ctx context.Context, user *domain.User, action string) error

func (f checkerFunc) Check(ctx context.Context, user *domain.User, action string) error {
	return f(ctx, user, action)
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestBearerToken(t *testing.T) {
	tests := map[string]string{
		"Bearer abc":   "abc",
		"bearer abc":   "abc",
		"BEARER  abc ": "abc",
		"Basic abc":    "",
		"abc":          "",
		"":             "",
	}
	for header, want := range tests {
		assert.Equal(t, want, bearerToken(header), header)
	}
}

func TestBearerAuth_RequireUser(t *testing.T) {
	alice := &domain.User{ID: 1, Username: "alice"}
	resolver := resolverFunc(func(_ context.Context, token string) (*domain.User, error) {
		switch token {
		case "good":
			return alice, nil
		case "broken":
			return nil, errors.New("database down")
		default:
			return nil, auth.ErrKeyInactive
		}
	})

	r := gin.New()
	r.GET("/me", NewBearerAuth(resolver, zap.NewNop()).RequireUser(), func(c *gin.Context) {
		user, ok := CurrentUser(c)
		require.True(t, ok)
		c.String(http.StatusOK, user.Username)
	})

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"有效令牌", "Bearer good", http.StatusOK},
		{"缺少令牌", "", http.StatusUnauthorized},
		{"令牌失效", "Bearer stale", http.StatusUnauthorized},
		{"存储故障", "Bearer broken", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := serve(r, req)
			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusUnauthorized {
				assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
			}
			if tt.status == http.StatusInternalServerError {
				assert.NotContains(t, rec.Body.String(), "database down")
			}
		})
	}
}

func TestRequirePermission(t *testing.T) {
	checker := checkerFunc(func(_ context.Context, user *domain.User, action string) error {
		if user.Username == "admin" && action == domain.PermissionManageRoles {
			return nil
		}
		return service.ErrPermissionDenied
	})

	newRouter := func(user *domain.User) *gin.Engine {
		r := gin.New()
		r.POST("/roles",
			func(c *gin.Context) {
				if user != nil {
					c.Set(ContextUser, user)
				}
			},
			RequirePermission(checker, domain.PermissionManageRoles, zap.NewNop()),
			func(c *gin.Context) { c.Status(http.StatusCreated) },
		)
		return r
	}

	rec := serve(newRouter(&domain.User{ID: 1, Username: "admin"}), httptest.NewRequest(http.MethodPost, "/roles", nil))
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = serve(newRouter(&domain.User{ID: 2, Username: "bob"}), httptest.NewRequest(http.MethodPost, "/roles", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = serve(newRouter(nil), httptest.NewRequest(http.MethodPost, "/roles", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRateLimit(t *testing.T) {
	metrics := monitoring.NewMetrics(nil)
	limiter := NewIPRateLimiter(0.001, 2)

	r := gin.New()
	r.POST("/token", RateLimit(limiter, "/token", metrics), func(c *gin.Context) { c.Status(http.StatusOK) })

	var codes []int
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/token", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		codes = append(codes, serve(r, req).Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	// 其他 IP 不受影响
	req := httptest.NewRequest(http.MethodPost, "/token", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	assert.Equal(t, http.StatusOK, serve(r, req).Code)

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.RateLimitBlocks.WithLabelValues("/token")))
	assert.Nil(t, NewIPRateLimiter(0, 10))
}

func TestRequestLogger_ProcessTimeHeader(t *testing.T) {
	r := gin.New()
	r.Use(RequestID(), RequestLogger(zap.NewNop()))
	r.GET("/json", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) })
	r.DELETE("/empty", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/json", nil),
		httptest.NewRequest(http.MethodDelete, "/empty", nil),
	} {
		rec := serve(r, req)
		assert.NotEmpty(t, rec.Header().Get(HeaderProcessTime), req.URL.Path)
		assert.NotEmpty(t, rec.Header().Get(HeaderRequestID), req.URL.Path)
	}

	req := httptest.NewRequest(http.MethodGet, "/json", nil)
	req.Header.Set(HeaderRequestID, "client-id")
	assert.Equal(t, "client-id", serve(r, req).Header().Get(HeaderRequestID))
}

func TestRecovery(t *testing.T) {
	metrics := monitoring.NewMetrics(nil)
	r := gin.New()
	r.Use(Recovery(zap.NewNop(), metrics))
	r.GET("/panic", func(*gin.Context) { panic(fmt.Sprintf("secret %d", 42)) })

	rec := serve(r, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "secret")
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.PanicsTotal))
}

func TestBodySizeLimit(t *testing.T) {
	r := gin.New()
	r.Use(BodySizeLimit(8))
	r.POST("/echo", func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := serve(r, httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader("0123456789")))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	rec = serve(r, httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader("0123")))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSecurityHeaders(t *testing.T) {
	r := gin.New()
	r.Use(SecurityHeaders())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := serve(r, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}
