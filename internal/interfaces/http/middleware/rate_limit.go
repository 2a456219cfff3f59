package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Limiter counts requests per key in fixed windows
type Limiter interface {
	Hit(ctx context.Context, key string, window time.Duration) (count int, resetIn time.Duration, err error)
}

// RateLimit allows perMinute requests per client IP. It fails open when the
// limiter is unavailable.
func RateLimit(limiter Limiter, perMinute int, logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if perMinute <= 0 {
			c.Next()
			return
		}

		count, resetIn, err := limiter.Hit(c.Request.Context(), c.ClientIP(), time.Minute)
		if err != nil {
			logger.WithError(err).Warn("Rate limiter unavailable, allowing request")
			c.Next()
			return
		}

		remaining := perMinute - count
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(perMinute))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(resetIn).Unix(), 10))

		if count > perMinute {
			c.Header("Retry-After", strconv.Itoa(int(resetIn.Seconds())+1))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Rate limit exceeded",
				"retry_after": int(resetIn.Seconds()) + 1,
			})
			return
		}

		c.Next()
	}
}
