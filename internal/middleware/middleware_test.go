package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homeopathy-case-engine/internal/domain"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel) // Suppress logs during testing
	return logger
}

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(handlers...)
	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"doctor_id": DoctorID(c)})
	})
	return router
}

func doGet(router http.Handler, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestSecurityHeaders(t *testing.T) {
	w := doGet(newRouter(SecurityHeaders()), nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	assert.Empty(t, w.Header().Get("Strict-Transport-Security"))
}

func TestCorrelationID(t *testing.T) {
	t.Run("generated", func(t *testing.T) {
		w := doGet(newRouter(CorrelationID()), nil)
		assert.Len(t, w.Header().Get("X-Correlation-ID"), 36)
	})

	t.Run("propagated", func(t *testing.T) {
		w := doGet(newRouter(CorrelationID()), map[string]string{"X-Correlation-ID": "corr-1"})
		assert.Equal(t, "corr-1", w.Header().Get("X-Correlation-ID"))
	})
}

func TestCallerIdentity(t *testing.T) {
	router := newRouter(CallerIdentity())

	w := doGet(router, map[string]string{DoctorIDHeader: "  doc-1 "})
	assert.JSONEq(t, `{"doctor_id":"doc-1"}`, w.Body.String())

	w = doGet(router, nil)
	assert.JSONEq(t, `{"doctor_id":""}`, w.Body.String())
}

func TestAuditLogger(t *testing.T) {
	logger, hook := test.NewNullLogger()
	router := newRouter(CorrelationID(), CallerIdentity(), AuditLogger(logger))

	injected := `doc-1","doctor_id":"admin`
	w := doGet(router, map[string]string{
		DoctorIDHeader:     injected,
		"X-Correlation-ID": "corr-1\n{\"forged\":true}",
	})
	require.Equal(t, http.StatusOK, w.Code)

	require.Len(t, hook.AllEntries(), 1)
	entry := hook.LastEntry()
	assert.Equal(t, logrus.InfoLevel, entry.Level)
	assert.Equal(t, injected, entry.Data["doctor_id"])
	assert.Equal(t, "corr-1\n{\"forged\":true}", entry.Data["correlation_id"])
	assert.Equal(t, http.MethodGet, entry.Data["method"])
	assert.Equal(t, "/ping", entry.Data["path"])
	assert.Equal(t, http.StatusOK, entry.Data["status"])

	line, err := (&logrus.JSONFormatter{}).Format(entry)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(line), "\n"), "one audit line per request")
	assert.Equal(t, 1, strings.Count(string(line), `"doctor_id":`))
}

func TestRateLimiter_Allow(t *testing.T) {
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(domain.RateLimitConfig{
		Enabled:           true,
		RequestsPerSecond: 1,
		Burst:             2,
		IdleTTL:           time.Minute,
	}, testLogger())
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("doc-1"))
	assert.True(t, rl.Allow("doc-1"))
	assert.False(t, rl.Allow("doc-1"), "burst exhausted")
	assert.True(t, rl.Allow("doc-2"), "clients have separate buckets")

	now = now.Add(time.Second)
	assert.True(t, rl.Allow("doc-1"), "one token refilled after a second")
}

func TestRateLimiter_Disabled(t *testing.T) {
	rl := NewRateLimiter(domain.RateLimitConfig{Enabled: false, RequestsPerSecond: 1, Burst: 1}, testLogger())
	for i := 0; i < 10; i++ {
		assert.True(t, rl.Allow("doc-1"))
	}
	assert.Equal(t, 0, rl.Clients())
}

func TestRateLimiter_Cleanup(t *testing.T) {
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(domain.RateLimitConfig{Enabled: true, IdleTTL: time.Minute}, testLogger())
	rl.now = func() time.Time { return now }

	rl.Allow("idle")
	now = now.Add(2 * time.Minute)
	rl.Allow("active")

	assert.Equal(t, 1, rl.Cleanup())
	assert.Equal(t, 1, rl.Clients())
}

func TestRateLimitMiddleware(t *testing.T) {
	rl := NewRateLimiter(domain.RateLimitConfig{Enabled: true, RequestsPerSecond: 0.001, Burst: 1}, testLogger())
	router := newRouter(RateLimit(rl))
	headers := map[string]string{DoctorIDHeader: "doc-1"}

	w := doGet(router, headers)
	require.Equal(t, http.StatusOK, w.Code)

	w = doGet(router, headers)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), domain.ErrCodeRateLimit)
}

func TestRequestTimeout(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestTimeout(10 * time.Millisecond))
	router.GET("/slow", func(c *gin.Context) {
		<-c.Request.Context().Done()
	})
	router.GET("/fast", func(c *gin.Context) {
		_, hasDeadline := c.Request.Context().Deadline()
		c.JSON(http.StatusOK, gin.H{"deadline": hasDeadline})
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/slow", nil))
	assert.Equal(t, http.StatusRequestTimeout, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/fast", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"deadline":true}`, w.Body.String())
}
