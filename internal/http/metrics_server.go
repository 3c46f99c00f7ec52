package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// MetricsServer exposes a Prometheus scrape handler on its own port.
type MetricsServer struct {
	listener
}

// NewMetricsServer serves scrape on GET /metrics. A nil scrape handler leaves only the
// health probe.
func NewMetricsServer(host string, port int, logger *slog.Logger, scrape http.Handler) *MetricsServer {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(CustomLoggerMiddleware(logger))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	if scrape != nil {
		router.GET("/metrics", gin.WrapH(scrape))
	}

	s := &MetricsServer{listener: newListener("metrics server", host, port, logger)}
	s.server.Handler = router
	return s
}

// Start blocks serving scrapes until Shutdown.
func (s *MetricsServer) Start(ctx context.Context) error {
	return s.serve()
}
