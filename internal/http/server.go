// Package http provides the operational HTTP servers: health and readiness probes,
// outbox administration and Prometheus metrics.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/metric"

	"github.com/allisson/userevents/internal/metrics"
)

const readinessTimeout = 3 * time.Second

// ReadinessCheck reports whether one dependency can serve traffic.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Server is the operational HTTP server: probes plus outbox administration.
type Server struct {
	listener
	checks []ReadinessCheck
	outbox *OutboxHandler
}

// NewServer creates a new HTTP server. admin may be nil, in which case the outbox
// endpoints are not registered.
func NewServer(
	host string,
	port int,
	logger *slog.Logger,
	admin OutboxAdmin,
	checks ...ReadinessCheck,
) *Server {
	s := &Server{
		listener: newListener("http server", host, port, logger),
		checks:   checks,
	}
	if admin != nil {
		s.outbox = NewOutboxHandler(admin, logger)
	}
	return s
}

// SetupRouter builds the gin router. When meterProvider is not nil every request is
// recorded by the HTTP metrics middleware.
func (s *Server) SetupRouter(meterProvider metric.MeterProvider, namespace string) {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestIDMiddleware())
	router.Use(CorrelationMiddleware())
	router.Use(CustomLoggerMiddleware(s.logger))
	if meterProvider != nil {
		router.Use(metrics.HTTPMetricsMiddleware(meterProvider, namespace))
	}

	router.GET("/health", s.healthHandler)
	router.GET("/ready", s.readinessHandler)

	if s.outbox != nil {
		v1 := router.Group("/v1/outbox")
		v1.GET("/stats", s.outbox.StatsHandler)
		v1.GET("/records", s.outbox.ListHandler)
		v1.POST("/records/:id/replay", s.outbox.ReplayHandler)
		v1.POST("/replay-failed", s.outbox.ReplayAllFailedHandler)
	}

	s.server.Handler = router
}

// Start blocks serving requests until Shutdown. A router without metrics is built when
// SetupRouter was not called.
func (s *Server) Start(ctx context.Context) error {
	if s.server.Handler == nil {
		s.SetupRouter(nil, "")
	}
	return s.serve()
}

func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// readinessHandler runs every readiness check and answers 503 when any of them fails.
func (s *Server) readinessHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
	defer cancel()

	ready := true
	components := make(map[string]string, len(s.checks))

	for _, check := range s.checks {
		if err := check.Check(ctx); err != nil {
			ready = false
			components[check.Name] = "error"
			s.logger.Warn("readiness check failed",
				slog.String("component", check.Name),
				slog.Any("error", err),
			)
			continue
		}
		components[check.Name] = "ok"
	}

	if !ready {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "components": components})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ready", "components": components})
}
