package app

import (
	"context"
	"fmt"

	"github.com/allisson/userevents/internal/errors"
	"github.com/allisson/userevents/internal/http"
)

// HTTPServer returns the operational HTTP server.
func (c *Container) HTTPServer() (*http.Server, error) {
	var err error
	c.httpServerInit.Do(func() {
		c.httpServer, err = c.initHTTPServer()
		if err != nil {
			c.initErrors["httpServer"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["httpServer"]; exists {
		return nil, storedErr
	}
	return c.httpServer, nil
}

// MetricsServer returns the Prometheus metrics server, or nil when metrics are disabled.
func (c *Container) MetricsServer() (*http.MetricsServer, error) {
	var err error
	c.metricsServerInit.Do(func() {
		c.metricsServer, err = c.initMetricsServer()
		if err != nil {
			c.initErrors["metricsServer"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["metricsServer"]; exists {
		return nil, storedErr
	}
	return c.metricsServer, nil
}

// initHTTPServer creates the HTTP server with readiness checks for every dependency.
func (c *Container) initHTTPServer() (*http.Server, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for http server: %w", err)
	}

	eventLog, err := c.EventLog()
	if err != nil {
		return nil, fmt.Errorf("failed to get event log for http server: %w", err)
	}

	admin, err := c.OutboxAdmin()
	if err != nil {
		return nil, fmt.Errorf("failed to get outbox admin for http server: %w", err)
	}

	provider, err := c.MetricsProvider()
	if err != nil {
		return nil, fmt.Errorf("failed to get metrics provider for http server: %w", err)
	}

	queue := c.TaskQueue()
	server := http.NewServer(
		c.config.ServerHost,
		c.config.ServerPort,
		c.Logger(),
		admin,
		http.ReadinessCheck{Name: "database", Check: db.PingContext},
		http.ReadinessCheck{Name: "queue", Check: queue.Ping},
		http.ReadinessCheck{Name: "event_log", Check: func(ctx context.Context) error {
			if !eventLog.IsConnected(ctx) {
				return errors.ErrUnavailable
			}
			return nil
		}},
	)

	if provider != nil {
		server.SetupRouter(provider.MeterProvider(), c.config.MetricsNamespace)
	} else {
		server.SetupRouter(nil, "")
	}

	return server, nil
}

// initMetricsServer creates the metrics server.
func (c *Container) initMetricsServer() (*http.MetricsServer, error) {
	provider, err := c.MetricsProvider()
	if err != nil {
		return nil, fmt.Errorf("failed to get metrics provider for metrics server: %w", err)
	}
	if provider == nil {
		return nil, nil
	}

	return http.NewMetricsServer(c.config.ServerHost, c.config.MetricsPort, c.Logger(), provider.Handler()), nil
}
