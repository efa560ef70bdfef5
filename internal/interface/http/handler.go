package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yanqian/airwise/internal/domain/advisor"
	"github.com/yanqian/airwise/internal/domain/cache"
	"github.com/yanqian/airwise/internal/domain/risk"
	"github.com/yanqian/airwise/internal/domain/usage"
)

// CacheAdmin is the slice of the cache manager exposed over HTTP.
type CacheAdmin interface {
	Stats() cache.Stats
	Invalidate(ctx context.Context, pattern string) (int, error)
}

// UsageReporter is the slice of the usage monitor exposed over HTTP.
type UsageReporter interface {
	All() []usage.Stats
	Stats(provider string) (usage.Stats, bool)
	Alerts() []usage.Alert
	Warnings() []string
	History(ctx context.Context, provider string, limit int) ([]usage.Record, error)
}

// Handler wires the HTTP transport to domain services.
type Handler struct {
	advisorSvc advisor.Service
	cache      CacheAdmin
	usage      UsageReporter
	logger     *slog.Logger
}

// NewHandler constructs the root HTTP handler.
func NewHandler(advisorSvc advisor.Service, cacheAdmin CacheAdmin, usageReporter UsageReporter, logger *slog.Logger) *Handler {
	return &Handler{
		advisorSvc: advisorSvc,
		cache:      cacheAdmin,
		usage:      usageReporter,
		logger:     logger.With("component", "http.handler"),
	}
}

// CreateBriefing assembles a full risk briefing for a location.
func (h *Handler) CreateBriefing(c *gin.Context) {
	var req advisor.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", errMessage(err), err))
		return
	}

	resp, err := h.advisorSvc.Brief(c.Request.Context(), req)
	if err != nil {
		abortWithError(c, fromDomainError(err, "briefing_failed"))
		return
	}

	c.JSON(http.StatusOK, resp)
}

// ComputeRisk scores a caller-supplied snapshot.
func (h *Handler) ComputeRisk(c *gin.Context) {
	var snap risk.Snapshot
	if err := c.ShouldBindJSON(&snap); err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", errMessage(err), err))
		return
	}

	eval, err := h.advisorSvc.Assess(snap)
	if err != nil {
		abortWithError(c, fromDomainError(err, "risk_failed"))
		return
	}

	c.JSON(http.StatusOK, eval)
}

// SampleGuidance draws tips or actions for a band and driver.
func (h *Handler) SampleGuidance(c *gin.Context) {
	count, err := optionalInt(c.Query("count"))
	if err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", "count must be an integer", err))
		return
	}
	req := advisor.GuidanceRequest{
		Pool:       c.Query("pool"),
		Band:       risk.Band(c.Query("band")),
		Driver:     c.Query("driver"),
		Count:      count,
		Conditions: queryList(c, "condition"),
		Exclude:    queryList(c, "exclude"),
	}

	items, err := h.advisorSvc.Guidance(req)
	if err != nil {
		abortWithError(c, fromDomainError(err, "guidance_failed"))
		return
	}

	c.JSON(http.StatusOK, gin.H{"items": items})
}

// CacheStats reports hit rate and estimated savings.
func (h *Handler) CacheStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.cache.Stats())
}

// InvalidateCache removes entries whose keys match the glob pattern.
func (h *Handler) InvalidateCache(c *gin.Context) {
	pattern := strings.TrimSpace(c.Query("pattern"))
	removed, err := h.cache.Invalidate(c.Request.Context(), pattern)
	if err != nil {
		abortWithError(c, fromDomainError(err, "cache_invalidate_failed"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"pattern": pattern, "removed": removed})
}

// UsageOverview lists every provider's current window.
func (h *Handler) UsageOverview(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"providers": h.usage.All(),
		"alerts":    h.usage.Alerts(),
	})
}

// ProviderUsage returns one provider's current window.
func (h *Handler) ProviderUsage(c *gin.Context) {
	provider := c.Param("provider")
	stats, ok := h.usage.Stats(provider)
	if !ok {
		abortWithError(c, NewHTTPError(http.StatusNotFound, "unknown_provider", "no usage recorded for "+provider, nil))
		return
	}
	c.JSON(http.StatusOK, stats)
}

// ProviderHistory returns archived windows for one provider, newest first.
func (h *Handler) ProviderHistory(c *gin.Context) {
	limit, err := optionalInt(c.Query("limit"))
	if err != nil || limit < 0 {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", "limit must be a non-negative integer", err))
		return
	}
	records, err := h.usage.History(c.Request.Context(), c.Param("provider"), limit)
	if err != nil {
		abortWithError(c, NewHTTPError(http.StatusServiceUnavailable, "usage_history_unavailable", "usage history unavailable", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"provider": c.Param("provider"), "windows": records})
}

// UsageWarnings returns human-readable warning lines.
func (h *Handler) UsageWarnings(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"warnings": h.usage.Warnings()})
}

// Healthz reports liveness and whether any upstream is unhealthy.
func (h *Handler) Healthz(c *gin.Context) {
	status := "ok"
	for _, s := range h.usage.All() {
		if s.Health == usage.HealthUnhealthy {
			status = "degraded"
			break
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": status})
}

func optionalInt(raw string) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

// queryList accepts both repeated and comma separated parameters.
func queryList(c *gin.Context, key string) []string {
	var out []string
	for _, v := range c.QueryArray(key) {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
