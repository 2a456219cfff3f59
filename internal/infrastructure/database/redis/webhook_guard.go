package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/yametee/storefront-api/internal/domain/order"
)

const webhookKeyPrefix = "webhook:event:"

// WebhookGuard remembers processed webhook event ids in Redis
type WebhookGuard struct {
	rdb *redis.Client
}

// NewWebhookGuard creates a guard backed by rdb
func NewWebhookGuard(rdb *redis.Client) *WebhookGuard {
	return &WebhookGuard{rdb: rdb}
}

var _ order.EventGuard = (*WebhookGuard)(nil)

// Seen reports whether eventID was remembered and has not expired
func (g *WebhookGuard) Seen(ctx context.Context, eventID string) (bool, error) {
	n, err := g.rdb.Exists(ctx, webhookKeyPrefix+eventID).Result()
	return n > 0, err
}

// Remember stores eventID for ttl
func (g *WebhookGuard) Remember(ctx context.Context, eventID string, ttl time.Duration) error {
	return g.rdb.Set(ctx, webhookKeyPrefix+eventID, time.Now().UTC().Unix(), ttl).Err()
}
