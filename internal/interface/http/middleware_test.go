package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/yanqian/airwise/internal/infra/config"
)

func TestIPRateLimiterRefills(t *testing.T) {
	now := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	l := newIPRateLimiter(config.RateLimitConfig{RequestsPerMinute: 60, Burst: 2}, func() time.Time { return now })

	ok, _ := l.allow("10.0.0.1")
	require.True(t, ok)
	ok, _ = l.allow("10.0.0.1")
	require.True(t, ok)
	ok, wait := l.allow("10.0.0.1")
	require.False(t, ok)
	require.InDelta(t, float64(time.Second), float64(wait), float64(time.Millisecond))

	ok, _ = l.allow("10.0.0.2")
	require.True(t, ok, "buckets are per client")

	now = now.Add(2 * time.Second)
	ok, _ = l.allow("10.0.0.1")
	require.True(t, ok)
}

func TestIPRateLimiterForgetsIdleClients(t *testing.T) {
	now := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	l := newIPRateLimiter(config.RateLimitConfig{RequestsPerMinute: 1, Burst: 1}, func() time.Time { return now })

	l.allow("10.0.0.1")
	now = now.Add(6 * time.Minute)
	l.allow("10.0.0.2")
	require.Len(t, l.visitors, 1)
}

func TestIPRateLimiterSweepsOncePerInterval(t *testing.T) {
	now := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	l := newIPRateLimiter(config.RateLimitConfig{RequestsPerMinute: 1, Burst: 1}, func() time.Time { return now })

	l.allow("10.0.0.1")
	now = now.Add(30 * time.Second)
	l.allow("10.0.0.2")
	require.Len(t, l.visitors, 2)
}

func TestCORSPolicyOrigin(t *testing.T) {
	open := newCORSPolicy(nil)
	require.Equal(t, "*", open.origin("https://app.example"))

	wildcard := newCORSPolicy([]string{"https://app.example", "*"})
	require.Equal(t, "*", wildcard.origin("https://other.example"))

	strict := newCORSPolicy([]string{" https://app.example ", "https://ops.example"})
	require.Equal(t, "https://ops.example", strict.origin("https://ops.example"))
	require.Equal(t, "HTTPS://APP.example", strict.origin("HTTPS://APP.example"))
	require.Equal(t, "https://app.example", strict.origin("https://evil.example"))
}

func TestCORSMiddlewarePreflight(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(corsMiddleware([]string{"https://app.example"}))
	r.DELETE("/api/v1/cache", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/cache", nil)
	req.Header.Set("Origin", "https://app.example")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))
	require.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "DELETE")
	require.Equal(t, "Origin", rec.Header().Get("Vary"))

	req = httptest.NewRequest(http.MethodDelete, "/api/v1/cache", nil)
	req.Header.Set("Origin", "https://app.example")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Methods"))
	require.Equal(t, "X-Request-ID, Retry-After", rec.Header().Get("Access-Control-Expose-Headers"))
}
