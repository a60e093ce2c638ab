package middleware

import (
	"strconv"
	"time"

	"github.com/erp/backoffice/internal/infrastructure/telemetry"
	"github.com/gin-gonic/gin"
)

// HTTPMetrics records request count, latency and in-flight requests.
// Routes are labelled by their pattern to keep cardinality bounded.
func HTTPMetrics(metrics *telemetry.Metrics) gin.HandlerFunc {
	if metrics == nil {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	return func(c *gin.Context) {
		start := time.Now()
		metrics.RequestStarted()

		c.Next()

		metrics.RequestServed(
			c.Request.Method,
			routePattern(c),
			strconv.Itoa(c.Writer.Status()),
			time.Since(start),
		)
	}
}

// routePattern returns the matched route (e.g. "/api/v1/resources/:resource")
// instead of the raw path
func routePattern(c *gin.Context) string {
	if route := c.FullPath(); route != "" {
		return route
	}
	return "unknown"
}
