package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const rateLimitKeyPrefix = "rate_limit:"

// RateLimiter is a fixed window request counter shared by every API instance
type RateLimiter struct {
	rdb *redis.Client
}

// NewRateLimiter creates a limiter backed by rdb
func NewRateLimiter(rdb *redis.Client) *RateLimiter {
	return &RateLimiter{rdb: rdb}
}

// Hit counts one request for key in the current window and returns the count
// so far together with the time left until the window resets.
func (l *RateLimiter) Hit(ctx context.Context, key string, window time.Duration) (int, time.Duration, error) {
	k := rateLimitKeyPrefix + key

	pipe := l.rdb.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.ExpireNX(ctx, k, window)
	ttl := pipe.PTTL(ctx, k)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, err
	}

	left := ttl.Val()
	if left < 0 {
		left = window
	}
	return int(incr.Val()), left, nil
}
