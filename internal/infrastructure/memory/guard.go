package memory

import (
	"context"
	"sync"
	"time"
)

// EventGuard remembers webhook event ids in process
type EventGuard struct {
	mu   sync.Mutex
	seen map[string]time.Time
	now  func() time.Time
}

// NewEventGuard creates an empty guard
func NewEventGuard() *EventGuard {
	return &EventGuard{seen: map[string]time.Time{}, now: time.Now}
}

// Seen reports whether eventID was remembered and has not expired
func (g *EventGuard) Seen(ctx context.Context, eventID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	expires, ok := g.seen[eventID]
	if !ok {
		return false, nil
	}
	if !g.now().Before(expires) {
		delete(g.seen, eventID)
		return false, nil
	}
	return true, nil
}

// Remember records eventID for ttl
func (g *EventGuard) Remember(ctx context.Context, eventID string, ttl time.Duration) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seen[eventID] = g.now().Add(ttl)
	return nil
}
