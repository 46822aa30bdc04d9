package monitoring

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordLogin(LoginSuccess)
	m.RecordLogin(LoginSuccess)
	m.RecordLogin(LoginNotPermitted)
	m.RecordAPIKeyIssued()
	m.RecordAPIKeysExpired(ExpiryLazy, 1)
	m.RecordAPIKeysExpired(ExpiryReaper, 3)
	m.RecordAPIKeysExpired(ExpiryReaper, 0)
	m.RecordEventPublished("user.created", nil)
	m.RecordEventPublished("user.created", errors.New("boom"))
	m.RecordHTTPRequest("POST", "/token", "200", time.Millisecond, 10, 20)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.LoginAttempts.WithLabelValues(LoginSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LoginAttempts.WithLabelValues(LoginNotPermitted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.APIKeysIssued))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.APIKeysExpired.WithLabelValues(ExpiryReaper)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsPublished.WithLabelValues("user.created", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("POST", "/token", "200")))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordLogin(LoginError)
		m.RecordAPIKeyIssued()
		m.RecordAPIKeysExpired(ExpiryLazy, 1)
		m.RecordUserRegistered()
		m.RecordEventPublished("t", nil)
		m.RecordPanic()
		m.RecordRateLimitBlock("/token")
		m.RecordHTTPRequest("GET", "/", "200", 0, 0, 0)
	})
}

func TestMetrics_HTTPHandler(t *testing.T) {
	m := NewMetrics(nil)
	m.RecordUserRegistered()

	rec := httptest.NewRecorder()
	m.HTTPHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "usercenter_users_registered_total 1")
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
