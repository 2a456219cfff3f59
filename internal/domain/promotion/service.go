// internal/domain/promotion/service.go
package promotion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/yametee/storefront-api/internal/pkg/apperrors"
	"github.com/yametee/storefront-api/internal/pkg/metrics"
	"golang.org/x/sync/singleflight"
)

// Service evaluates promotions for carts and manages them for admins
type Service struct {
	store   Store
	logger  logrus.FieldLogger
	metrics *metrics.Metrics
	loads   singleflight.Group
}

// NewService creates a new promotion service
func NewService(store Store, logger logrus.FieldLogger, m *metrics.Metrics) *Service {
	return &Service{
		store:   store,
		logger:  logger.WithField("component", "promotion"),
		metrics: m,
	}
}

// Request represents the admin create/update payload
type Request struct {
	Name              string           `json:"name"`
	Code              string           `json:"code"`
	Description       string           `json:"description"`
	Type              Type             `json:"type"`
	Status            Status           `json:"status"`
	Value             *decimal.Decimal `json:"value"`
	Stackable         bool             `json:"stackable"`
	UsageLimit        *int             `json:"usage_limit"`
	StartsAt          *time.Time       `json:"starts_at"`
	EndsAt            *time.Time       `json:"ends_at"`
	Channels          []string         `json:"channels"`
	CollectionID      *uint            `json:"collection_id"`
	MinSubtotal       *decimal.Decimal `json:"min_subtotal"`
	CustomerTier      string           `json:"customer_tier"`
	FirstPurchaseOnly bool             `json:"first_purchase_only"`
}

// Evaluate runs the evaluator against the currently active promotions. A
// non-empty code that matches no promotion at all is a validation error; a
// code that exists but does not apply is reported through the rejections.
func (s *Service) Evaluate(ctx context.Context, in Input) (*Result, error) {
	defs, err := s.activeDefinitions(ctx)
	if err != nil {
		return nil, err
	}

	if code := NormalizeCode(in.Code); code != "" {
		p, err := s.store.FindByCode(ctx, code)
		if err != nil {
			if errors.Is(err, ErrPromotionNotFound) {
				return nil, apperrors.Validation("promotion_code", "Invalid promotion code")
			}
			return nil, fmt.Errorf("failed to look up promotion code: %w", err)
		}
		if p.Status != StatusActive {
			// surface EXPIRED/NOT_ACTIVE for the entered code
			defs = append(defs, Compile(*p))
		}
	}

	res := Evaluate(defs, in)

	for _, a := range res.Applied {
		s.metrics.PromotionApplied(string(a.Type))
	}
	for _, r := range res.Rejections {
		s.metrics.PromotionRejected(string(r.Reason))
		if r.Reason == ReasonInvalidRule {
			s.logger.WithField("promotion_id", r.PromotionID).Warn("Promotion skipped because a rule payload is malformed")
		}
	}

	return &res, nil
}

// activeDefinitions loads and compiles active promotions. Concurrent callers
// share one store round trip.
func (s *Service) activeDefinitions(ctx context.Context) ([]Definition, error) {
	v, err, _ := s.loads.Do("active", func() (interface{}, error) {
		ps, err := s.store.ListActive(ctx)
		if err != nil {
			return nil, err
		}
		return CompileAll(ps), nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load promotions: %w", err)
	}

	shared := v.([]Definition)
	defs := make([]Definition, len(shared), len(shared)+1)
	copy(defs, shared)
	return defs, nil
}

// Create validates and stores a new promotion
func (s *Service) Create(ctx context.Context, req Request) (*Promotion, error) {
	p, err := buildPromotion(req)
	if err != nil {
		return nil, err
	}

	if err := s.store.Create(ctx, p); err != nil {
		if errors.Is(err, ErrDuplicateCode) {
			return nil, apperrors.Validation("code", "Promotion code already exists")
		}
		return nil, apperrors.Persistence("create promotion", err)
	}

	s.logger.WithFields(logrus.Fields{
		"promotion_id": p.ID,
		"type":         p.Type,
		"status":       p.Status,
	}).Info("Promotion created")

	return p, nil
}

// Update replaces a promotion and its rules. The usage counter is kept.
func (s *Service) Update(ctx context.Context, id uint, req Request) (*Promotion, error) {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	p, err := buildPromotion(req)
	if err != nil {
		return nil, err
	}
	p.ID = id
	p.UsageCount = existing.UsageCount
	p.CreatedAt = existing.CreatedAt

	if err := s.store.Update(ctx, p); err != nil {
		if errors.Is(err, ErrDuplicateCode) {
			return nil, apperrors.Validation("code", "Promotion code already exists")
		}
		return nil, apperrors.Persistence("update promotion", err)
	}

	s.logger.WithField("promotion_id", id).Info("Promotion updated")
	return p, nil
}

// Get returns one promotion
func (s *Service) Get(ctx context.Context, id uint) (*Promotion, error) {
	p, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrPromotionNotFound) {
			return nil, fmt.Errorf("promotion %d: %w", id, apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get promotion: %w", err)
	}
	return p, nil
}

// List returns a page of promotions, newest first
func (s *Service) List(ctx context.Context, page, limit int) ([]Promotion, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	ps, total, err := s.store.List(ctx, (page-1)*limit, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list promotions: %w", err)
	}
	return ps, total, nil
}

// Delete removes a promotion. Orders keep their recorded discounts.
func (s *Service) Delete(ctx context.Context, id uint) error {
	if err := s.store.Delete(ctx, id); err != nil {
		if errors.Is(err, ErrPromotionNotFound) {
			return fmt.Errorf("promotion %d: %w", id, apperrors.ErrNotFound)
		}
		return apperrors.Persistence("delete promotion", err)
	}
	s.logger.WithField("promotion_id", id).Info("Promotion deleted")
	return nil
}

func buildPromotion(req Request) (*Promotion, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" || req.Type == "" || req.Status == "" || req.Value == nil {
		return nil, apperrors.Validation("", "Name, type, status, and value are required")
	}

	switch req.Type {
	case TypePercentage, TypeFixedAmount, TypeFreeShipping, TypeBundle, TypeGift:
	default:
		return nil, apperrors.Validation("type", "Unknown promotion type %q", req.Type)
	}
	switch req.Status {
	case StatusDraft, StatusScheduled, StatusActive, StatusPaused, StatusExpired, StatusArchived:
	default:
		return nil, apperrors.Validation("status", "Unknown promotion status %q", req.Status)
	}

	value := *req.Value
	if value.IsNegative() {
		return nil, apperrors.Validation("value", "Value must not be negative")
	}
	if (req.Type == TypePercentage || req.Type == TypeBundle) && value.GreaterThan(hundred) {
		return nil, apperrors.Validation("value", "Percentage cannot exceed 100")
	}
	if req.UsageLimit != nil && *req.UsageLimit < 0 {
		return nil, apperrors.Validation("usage_limit", "Usage limit must not be negative")
	}
	if req.StartsAt != nil && req.EndsAt != nil && req.EndsAt.Before(*req.StartsAt) {
		return nil, apperrors.Validation("ends_at", "End date must be after start date")
	}

	p := &Promotion{
		Name:         name,
		Description:  req.Description,
		Type:         req.Type,
		Status:       req.Status,
		Value:        value.Round(2),
		Stackable:    req.Stackable,
		UsageLimit:   req.UsageLimit,
		StartsAt:     req.StartsAt,
		EndsAt:       req.EndsAt,
		Channels:     cleanChannels(req.Channels),
		CollectionID: req.CollectionID,
	}
	if code := NormalizeCode(req.Code); code != "" {
		p.Code = &code
	}

	var rules []Rule
	if req.MinSubtotal != nil {
		if req.MinSubtotal.IsNegative() {
			return nil, apperrors.Validation("min_subtotal", "Minimum subtotal must not be negative")
		}
		rules = append(rules, MinSubtotal{Threshold: *req.MinSubtotal})
	}
	if tier := strings.TrimSpace(req.CustomerTier); tier != "" {
		rules = append(rules, CustomerTier{Tier: tier})
	}
	if req.FirstPurchaseOnly {
		rules = append(rules, FirstPurchaseOnly{})
	}
	for _, r := range rules {
		stored, err := EncodeRule(r)
		if err != nil {
			return nil, err
		}
		p.Rules = append(p.Rules, stored)
	}

	return p, nil
}

func cleanChannels(channels []string) []string {
	out := make([]string, 0, len(channels))
	for _, c := range channels {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}
