package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/allisson/userevents/internal/app"
	"github.com/allisson/userevents/internal/config"
)

// Service is a long running component started and stopped by the worker command.
type Service interface {
	Start(ctx context.Context) error
}

// ShutdownService is a Service that must be stopped explicitly, like an HTTP server.
type ShutdownService interface {
	Service
	Shutdown(ctx context.Context) error
}

// RunWorker starts the publish workers, the outbox sweeper and the health and metrics
// servers. Blocks until receiving SIGINT/SIGTERM or until one of them fails, then stops
// all of them, giving in-flight tasks up to WorkerTaskTimeout to finish.
func RunWorker(ctx context.Context, version string) error {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	gin.SetMode(cfg.GetGinMode())

	container := app.NewContainer(cfg)
	logger := container.Logger()
	logger.Info("starting worker", slog.String("version", version))

	defer closeContainer(container, logger)

	runner, err := container.Runner()
	if err != nil {
		return fmt.Errorf("failed to initialize publish workers: %w", err)
	}

	sweeper, err := container.Sweeper()
	if err != nil {
		return fmt.Errorf("failed to initialize outbox sweeper: %w", err)
	}

	server, err := container.HTTPServer()
	if err != nil {
		return fmt.Errorf("failed to initialize HTTP server: %w", err)
	}

	servers := []ShutdownService{server}

	metricsServer, err := container.MetricsServer()
	if err != nil {
		return fmt.Errorf("failed to initialize metrics server: %w", err)
	}
	if metricsServer != nil {
		servers = append(servers, metricsServer)
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return runServices(ctx, logger, cfg, []Service{runner, sweeper}, servers)
}

// runServices runs services and servers until ctx is cancelled or one of them fails.
// Servers are shut down once the group stops.
func runServices(
	ctx context.Context,
	logger *slog.Logger,
	cfg *config.Config,
	services []Service,
	servers []ShutdownService,
) error {
	g, gctx := errgroup.WithContext(ctx)

	for _, service := range services {
		g.Go(func() error {
			if err := service.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	for _, server := range servers {
		g.Go(func() error {
			return server.Start(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		if ctx.Err() != nil {
			logger.Info("shutdown signal received")
		} else {
			logger.Error("worker component failed, initiating shutdown")
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.WorkerTaskTimeout)
		defer shutdownCancel()

		var shutdownErrors []error
		for _, server := range servers {
			if err := server.Shutdown(shutdownCtx); err != nil {
				shutdownErrors = append(shutdownErrors, fmt.Errorf("server shutdown: %w", err))
			}
		}
		return errors.Join(shutdownErrors...)
	})

	return g.Wait()
}
