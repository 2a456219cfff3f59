package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yametee/storefront-api/internal/pkg/metrics"
)

// Metrics records request latency by matched route
func Metrics(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.ObserveRequest(route, c.Request.Method, c.Writer.Status(), time.Since(start))
	}
}
