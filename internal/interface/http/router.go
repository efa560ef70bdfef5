package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/yanqian/airwise/internal/infra/config"
	"github.com/yanqian/airwise/pkg/metrics"
)

const requestIDHeader = "X-Request-ID"

// NewRouter wires up the HTTP handlers and returns a configured server.
func NewRouter(cfg *config.Config, handler *Handler, registry *prometheus.Registry) *http.Server {
	gin.SetMode(gin.ReleaseMode)

	httpMetrics := metrics.NewHTTP(registry)

	router := gin.New()
	router.Use(
		gin.Recovery(),
		requestID(),
		requestLogger(handler.logger),
		httpMetrics.Middleware(),
		corsMiddleware(cfg.HTTP.AllowedOrigins),
		errorHandlingMiddleware(handler.logger),
	)

	router.GET("/healthz", handler.Healthz)
	router.GET("/metrics", metrics.Handler(registry))

	api := router.Group("/api/v1")
	api.Use(rateLimitMiddleware(cfg.HTTP.RateLimit, handler.logger))
	{
		api.POST("/briefings", handler.CreateBriefing)
		api.POST("/risk", handler.ComputeRisk)
		api.GET("/guidance", handler.SampleGuidance)

		api.GET("/cache/stats", handler.CacheStats)
		api.DELETE("/cache", handler.InvalidateCache)

		api.GET("/usage", handler.UsageOverview)
		api.GET("/usage/warnings", handler.UsageWarnings)
		api.GET("/usage/providers/:provider", handler.ProviderUsage)
		api.GET("/usage/providers/:provider/history", handler.ProviderHistory)
	}

	return &http.Server{
		Addr:           cfg.HTTP.Address,
		Handler:        router,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		MaxHeaderBytes: 1 << 20,
	}
}

// requestID propagates an inbound X-Request-ID or mints one.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Writer.Header().Set(requestIDHeader, id)
		c.Next()
	}
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		logger.Info("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency_ms", latency.Milliseconds(),
			"request_id", c.GetString("request_id"))
	}
}
