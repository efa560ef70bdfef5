package http

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yanqian/airwise/internal/infra/config"
)

func errorHandlingMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		httpErr := asHTTPError(c.Errors.Last().Err)
		message := httpErr.Message
		if message == "" {
			message = httpErr.Error()
		}
		requestID := c.GetString("request_id")

		attrs := []any{"code", httpErr.Code, "status", httpErr.Status, "path", c.Request.URL.Path, "request_id", requestID, "error", httpErr.Err}
		if httpErr.Status >= http.StatusInternalServerError {
			logger.Error("request failed", attrs...)
		} else {
			logger.Warn("request failed", attrs...)
		}

		c.JSON(httpErr.Status, gin.H{
			"error": gin.H{
				"code":      httpErr.Code,
				"message":   message,
				"requestId": requestID,
			},
		})
	}
}

func rateLimitMiddleware(cfg config.RateLimitConfig, logger *slog.Logger) gin.HandlerFunc {
	if !cfg.Enabled || cfg.RequestsPerMinute <= 0 {
		return func(c *gin.Context) { c.Next() }
	}

	limiter := newIPRateLimiter(cfg, time.Now)
	return func(c *gin.Context) {
		ip := c.ClientIP()
		ok, wait := limiter.allow(ip)
		if ok {
			c.Next()
			return
		}
		logger.Warn("rate limit exceeded", "ip", ip, "path", c.Request.URL.Path)
		c.Header("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
		abortWithError(c, NewHTTPError(http.StatusTooManyRequests, "rate_limit_exceeded", "too many requests", nil))
	}
}

const (
	idleVisitorTTL = 5 * time.Minute
	sweepEvery     = time.Minute
)

// bucket holds one client's tokens. Tokens refill continuously at the
// configured per-minute rate up to the burst size.
type bucket struct {
	tokens   float64
	lastSeen time.Time
}

func (b *bucket) refill(now time.Time, perMinute, burst float64) {
	if elapsed := now.Sub(b.lastSeen); elapsed > 0 {
		b.tokens = math.Min(burst, b.tokens+elapsed.Minutes()*perMinute)
	}
	b.lastSeen = now
}

// ipRateLimiter keeps a token bucket per client IP and forgets clients that
// have been idle for idleVisitorTTL.
type ipRateLimiter struct {
	mu        sync.Mutex
	visitors  map[string]*bucket
	perMinute float64
	burst     float64
	now       func() time.Time
	lastSweep time.Time
}

func newIPRateLimiter(cfg config.RateLimitConfig, now func() time.Time) *ipRateLimiter {
	return &ipRateLimiter{
		visitors:  make(map[string]*bucket),
		perMinute: float64(cfg.RequestsPerMinute),
		burst:     float64(cfg.Burst),
		now:       now,
		lastSweep: now(),
	}
}

// allow takes a token for ip. When none is left it reports how long until
// the next one refills.
func (l *ipRateLimiter) allow(ip string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) >= sweepEvery {
		l.sweepLocked(now)
	}

	b, ok := l.visitors[ip]
	if !ok {
		b = &bucket{tokens: l.burst, lastSeen: now}
		l.visitors[ip] = b
	}
	b.refill(now, l.perMinute, l.burst)
	if b.tokens < 1 {
		deficit := 1 - b.tokens
		return false, time.Duration(deficit / l.perMinute * float64(time.Minute))
	}
	b.tokens--
	return true, 0
}

func (l *ipRateLimiter) sweepLocked(now time.Time) {
	for ip, b := range l.visitors {
		if now.Sub(b.lastSeen) > idleVisitorTTL {
			delete(l.visitors, ip)
		}
	}
	l.lastSweep = now
}
