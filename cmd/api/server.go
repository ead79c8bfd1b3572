package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/FACorreiaa/echo-ingest/pkg/config"
)

const shutdownTimeout = 15 * time.Second

// Run starts the API server and blocks until ctx is cancelled, then shuts
// down gracefully.
func Run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	deps, err := InitDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Cleanup()

	if err := deps.Scheduler.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer deps.Scheduler.Stop()

	routerCfg := RouterConfig{
		Routes:             deps.ImportHandler,
		JWTSecret:          []byte(cfg.Auth.JWTSecret),
		CORSOrigins:        cfg.Server.CORSOrigins,
		RateLimitPerSecond: float64(cfg.Server.RateLimitPerSecond),
		RateLimitBurst:     cfg.Server.RateLimitBurst,
		Logger:             logger,
	}
	if cfg.Observability.MetricsEnabled {
		routerCfg.Metrics = deps.HTTPMetrics
		routerCfg.Gatherer = deps.Registry
	}

	server := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:           NewRouter(routerCfg),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       2 * time.Minute,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}
