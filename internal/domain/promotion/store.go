package promotion

import (
	"context"
	"errors"
)

var (
	ErrPromotionNotFound = errors.New("promotion not found")
	ErrDuplicateCode     = errors.New("promotion code already exists")
	// ErrUsageLimitReached is returned when a conditional usage increment
	// finds the limit already consumed.
	ErrUsageLimitReached = errors.New("promotion usage limit reached")
)

// Store persists promotions and their rules
type Store interface {
	// ListActive returns every promotion with status ACTIVE, rules included.
	ListActive(ctx context.Context) ([]Promotion, error)
	// FindByCode looks a promotion up by normalized code regardless of status.
	FindByCode(ctx context.Context, code string) (*Promotion, error)

	Create(ctx context.Context, p *Promotion) error
	// Update replaces the promotion's fields and its whole rule set.
	Update(ctx context.Context, p *Promotion) error
	Get(ctx context.Context, id uint) (*Promotion, error)
	List(ctx context.Context, offset, limit int) ([]Promotion, int64, error)
	Delete(ctx context.Context, id uint) error
}
