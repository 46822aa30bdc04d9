package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-for-development-32-chars-long-at-least"

func TestLoad(t *testing.T) {
	t.Run("加载默认配置成功", func(t *testing.T) {
		t.Setenv("USERCENTER_JWT_SECRET", testSecret)

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "0.0.0.0", cfg.Server.Host)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, "0.0.0.0:8080", cfg.Server.Address())
		assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
		assert.Equal(t, []string{"*"}, cfg.CORS.AllowedOrigins)
		assert.Equal(t, "info", cfg.Log.Level)
		assert.Equal(t, "memory", cfg.Storage.Type)
		assert.True(t, cfg.Cache.Enabled)
		assert.Equal(t, 60*time.Second, cfg.Cache.TTL)
		assert.Equal(t, "usercenter", cfg.JWT.Issuer)
		assert.Equal(t, 30*time.Minute, cfg.JWT.AccessExpiry)
		assert.Equal(t, "generate-token", cfg.Auth.TokenPermission)
		assert.Equal(t, "manage-roles", cfg.Auth.ManagePermission)
		assert.Zero(t, cfg.APIKey.ReapInterval)
		assert.Equal(t, "none", cfg.Queue.Type)
		assert.Equal(t, "user.created", cfg.Queue.Topic)
		assert.Equal(t, 2*time.Second, cfg.Queue.RetryInterval)
		assert.Equal(t, 5, cfg.Queue.MaxAttempts)
		assert.False(t, cfg.Tracing.Enabled)
	})

	t.Run("加载自定义配置成功", func(t *testing.T) {
		t.Setenv("USERCENTER_JWT_SECRET", testSecret)
		t.Setenv("USERCENTER_SERVER_PORT", "9090")
		t.Setenv("USERCENTER_CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
		t.Setenv("USERCENTER_JWT_ACCESS_EXPIRY", "5m")
		t.Setenv("USERCENTER_CACHE_TTL", "2m")
		t.Setenv("USERCENTER_APIKEY_REAP_INTERVAL", "1h")
		t.Setenv("USERCENTER_QUEUE_TYPE", "kafka")
		t.Setenv("USERCENTER_QUEUE_BROKERS", "k1:9092,k2:9092")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, 9090, cfg.Server.Port)
		assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
		assert.Equal(t, 5*time.Minute, cfg.JWT.AccessExpiry)
		assert.Equal(t, 2*time.Minute, cfg.Cache.TTL)
		assert.Equal(t, time.Hour, cfg.APIKey.ReapInterval)
		assert.Equal(t, "kafka", cfg.Queue.Type)
		assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Queue.Brokers)
	})

	t.Run("非法时长回退到默认值", func(t *testing.T) {
		t.Setenv("USERCENTER_JWT_SECRET", testSecret)
		t.Setenv("USERCENTER_CACHE_TTL", "not-a-duration")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, 60*time.Second, cfg.Cache.TTL)
	})
}

func TestLoad_Validation(t *testing.T) {
	t.Run("生产模式拒绝默认密钥", func(t *testing.T) {
		t.Setenv("USERCENTER_JWT_SECRET", "")
		t.Setenv("USERCENTER_LOG_DEVELOPMENT", "false")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "default value")
	})

	t.Run("开发模式允许默认密钥", func(t *testing.T) {
		t.Setenv("USERCENTER_JWT_SECRET", "")
		t.Setenv("USERCENTER_LOG_DEVELOPMENT", "true")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, defaultJWTSecret, cfg.JWT.Secret)
	})

	t.Run("密钥过短", func(t *testing.T) {
		t.Setenv("USERCENTER_JWT_SECRET", "short")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "32 characters")
	})

	t.Run("数据库存储缺少 DSN", func(t *testing.T) {
		t.Setenv("USERCENTER_JWT_SECRET", testSecret)
		t.Setenv("USERCENTER_STORAGE_TYPE", "postgres")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.dsn")
	})

	t.Run("不支持的存储类型", func(t *testing.T) {
		t.Setenv("USERCENTER_JWT_SECRET", testSecret)
		t.Setenv("USERCENTER_STORAGE_TYPE", "sqlite")

		_, err := Load()
		require.Error(t, err)
	})

	t.Run("Redis 队列缺少地址", func(t *testing.T) {
		t.Setenv("USERCENTER_JWT_SECRET", testSecret)
		t.Setenv("USERCENTER_QUEUE_TYPE", "redis")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "redis.address")
	})
}
