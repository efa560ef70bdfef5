package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	corsAllowMethods  = "GET, POST, DELETE, OPTIONS"
	corsAllowHeaders  = "Content-Type, Authorization, X-Request-ID"
	corsExposeHeaders = "X-Request-ID, Retry-After"
	corsMaxAge        = "600"
)

// corsPolicy answers browser clients of the briefing API. An empty
// allow-list or a "*" entry opens the API to every origin.
type corsPolicy struct {
	any      bool
	origins  map[string]struct{}
	fallback string
}

func newCORSPolicy(allowed []string) corsPolicy {
	p := corsPolicy{origins: make(map[string]struct{}, len(allowed))}
	for _, origin := range allowed {
		origin = strings.TrimSpace(origin)
		switch {
		case origin == "":
			continue
		case origin == "*":
			p.any = true
		default:
			if p.fallback == "" {
				p.fallback = origin
			}
			p.origins[strings.ToLower(origin)] = struct{}{}
		}
	}
	if len(p.origins) == 0 {
		p.any = true
	}
	return p
}

// origin picks the Access-Control-Allow-Origin value for a request. Unknown
// origins get the first configured one, which browsers then reject.
func (p corsPolicy) origin(requestOrigin string) string {
	if p.any {
		return "*"
	}
	if _, ok := p.origins[strings.ToLower(requestOrigin)]; ok {
		return requestOrigin
	}
	return p.fallback
}

func corsMiddleware(allowed []string) gin.HandlerFunc {
	policy := newCORSPolicy(allowed)
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", policy.origin(c.GetHeader("Origin")))
		h.Set("Access-Control-Expose-Headers", corsExposeHeaders)
		if !policy.any {
			h.Add("Vary", "Origin")
		}
		if c.Request.Method != http.MethodOptions {
			c.Next()
			return
		}
		h.Set("Access-Control-Allow-Methods", corsAllowMethods)
		h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
		h.Set("Access-Control-Max-Age", corsMaxAge)
		c.AbortWithStatus(http.StatusNoContent)
	}
}
