package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/yanqian/airwise/internal/domain/cache"
	"github.com/yanqian/airwise/internal/infra/config"
)

// App encapsulates the HTTP server lifecycle and background jobs.
type App struct {
	cfg    *config.Config
	logger *slog.Logger
	server *http.Server
	cache  *cache.Manager
}

// NewApp is used by Wire to build the runnable app.
func NewApp(cfg *config.Config, logger *slog.Logger, server *http.Server, cacheManager *cache.Manager) *App {
	return &App{cfg: cfg, logger: logger.With("component", "bootstrap"), server: server, cache: cacheManager}
}

// Run starts the HTTP server and cache cleanup, and blocks until shutdown.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	jobCtx, stopJobs := context.WithCancel(ctx)
	defer stopJobs()
	go a.cache.Run(jobCtx)

	go func() {
		a.logger.Info("http server starting", "address", a.cfg.HTTP.Address)
		if err := a.server.ListenAndServe(); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		a.logger.Info("shutdown signal received")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
