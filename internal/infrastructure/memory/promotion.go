package memory

import (
	"context"
	"slices"

	"github.com/yametee/storefront-api/internal/domain/promotion"
)

// PromotionStore is the promotion.Store view of the memory store
type PromotionStore struct{ *Store }

// Promotions returns the promotion.Store view
func (s *Store) Promotions() *PromotionStore { return &PromotionStore{s} }

var _ promotion.Store = (*PromotionStore)(nil)

func (st *state) loadPromotion(id uint) promotion.Promotion {
	p := st.promotions[id]
	p.Channels = slices.Clone(p.Channels)
	p.Rules = nil
	for _, rid := range sortedKeys(st.rules) {
		if r := st.rules[rid]; r.PromotionID == id {
			p.Rules = append(p.Rules, r)
		}
	}
	return p
}

func (st *state) codeTaken(code *string, excludeID uint) bool {
	if code == nil {
		return false
	}
	for id, p := range st.promotions {
		if id != excludeID && p.Code != nil && *p.Code == *code {
			return true
		}
	}
	return false
}

func (st *state) savePromotion(p *promotion.Promotion) {
	for id, r := range st.rules {
		if r.PromotionID == p.ID {
			delete(st.rules, id)
		}
	}
	for i := range p.Rules {
		r := &p.Rules[i]
		r.ID = st.nextID()
		r.PromotionID = p.ID
		r.CreatedAt = p.UpdatedAt
		st.rules[r.ID] = *r
	}
	row := *p
	row.Rules = nil
	row.Channels = slices.Clone(p.Channels)
	st.promotions[p.ID] = row
}

// ListActive returns every ACTIVE promotion with its rules
func (s *PromotionStore) ListActive(ctx context.Context) ([]promotion.Promotion, error) {
	var out []promotion.Promotion
	s.read(func(st *state) {
		for _, id := range sortedKeys(st.promotions) {
			if st.promotions[id].Status == promotion.StatusActive {
				out = append(out, st.loadPromotion(id))
			}
		}
	})
	return out, nil
}

// FindByCode looks a promotion up by its normalized code
func (s *PromotionStore) FindByCode(ctx context.Context, code string) (*promotion.Promotion, error) {
	var (
		p     promotion.Promotion
		found bool
	)
	s.read(func(st *state) {
		for _, id := range sortedKeys(st.promotions) {
			if c := st.promotions[id].Code; c != nil && *c == code {
				p, found = st.loadPromotion(id), true
				return
			}
		}
	})
	if !found {
		return nil, promotion.ErrPromotionNotFound
	}
	return &p, nil
}

// Create stores a promotion and its rules
func (s *PromotionStore) Create(ctx context.Context, p *promotion.Promotion) error {
	return s.write(func(st *state) error {
		if st.codeTaken(p.Code, 0) {
			return promotion.ErrDuplicateCode
		}
		now := s.now()
		p.ID = st.nextID()
		p.CreatedAt, p.UpdatedAt = now, now
		st.savePromotion(p)
		return nil
	})
}

// Update replaces a promotion and its rules
func (s *PromotionStore) Update(ctx context.Context, p *promotion.Promotion) error {
	return s.write(func(st *state) error {
		if _, ok := st.promotions[p.ID]; !ok {
			return promotion.ErrPromotionNotFound
		}
		if st.codeTaken(p.Code, p.ID) {
			return promotion.ErrDuplicateCode
		}
		p.UpdatedAt = s.now()
		st.savePromotion(p)
		return nil
	})
}

// Get returns a promotion with its rules
func (s *PromotionStore) Get(ctx context.Context, id uint) (*promotion.Promotion, error) {
	var (
		p  promotion.Promotion
		ok bool
	)
	s.read(func(st *state) {
		if _, ok = st.promotions[id]; ok {
			p = st.loadPromotion(id)
		}
	})
	if !ok {
		return nil, promotion.ErrPromotionNotFound
	}
	return &p, nil
}

// List returns a page of promotions, newest first
func (s *PromotionStore) List(ctx context.Context, offset, limit int) ([]promotion.Promotion, int64, error) {
	var all []promotion.Promotion
	s.read(func(st *state) {
		keys := sortedKeys(st.promotions)
		slices.Reverse(keys)
		for _, id := range keys {
			all = append(all, st.loadPromotion(id))
		}
	})
	return page(all, offset, limit), int64(len(all)), nil
}

// Delete removes a promotion and its rules
func (s *PromotionStore) Delete(ctx context.Context, id uint) error {
	return s.write(func(st *state) error {
		if _, ok := st.promotions[id]; !ok {
			return promotion.ErrPromotionNotFound
		}
		for rid, r := range st.rules {
			if r.PromotionID == id {
				delete(st.rules, rid)
			}
		}
		delete(st.promotions, id)
		return nil
	})
}
