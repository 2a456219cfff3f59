package memory

import (
	"context"
	"sync"
	"time"
)

type window struct {
	count   int
	resetAt time.Time
}

// RateLimiter is a per-process fixed window counter
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string]window
	now     func() time.Time
}

// NewRateLimiter creates an empty limiter
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{windows: map[string]window{}, now: time.Now}
}

// Hit counts one request for key and returns the count in the current window
func (l *RateLimiter) Hit(ctx context.Context, key string, size time.Duration) (int, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = window{resetAt: now.Add(size)}
	}
	w.count++
	l.windows[key] = w

	if len(l.windows) > 10000 {
		for k, v := range l.windows {
			if !now.Before(v.resetAt) {
				delete(l.windows, k)
			}
		}
	}
	return w.count, w.resetAt.Sub(now), nil
}
