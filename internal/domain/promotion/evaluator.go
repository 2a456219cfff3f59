package promotion

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yametee/storefront-api/internal/pkg/money"
)

// Reason explains why a promotion was not applied
type Reason string

const (
	ReasonNoMatch           Reason = "NO_MATCH"
	ReasonBelowThreshold    Reason = "BELOW_THRESHOLD"
	ReasonExpired           Reason = "EXPIRED"
	ReasonAlreadyUsed       Reason = "ALREADY_USED"
	ReasonNotStarted        Reason = "NOT_STARTED"
	ReasonNotActive         Reason = "NOT_ACTIVE"
	ReasonChannelMismatch   Reason = "CHANNEL_MISMATCH"
	ReasonTierMismatch      Reason = "TIER_MISMATCH"
	ReasonUsageLimitReached Reason = "USAGE_LIMIT_REACHED"
	ReasonInvalidRule       Reason = "INVALID_RULE"
	ReasonSuperseded        Reason = "SUPERSEDED"
)

var hundred = decimal.NewFromInt(100)

// Line is one cart line priced at the live catalog price
type Line struct {
	VariantID     uint
	ProductID     uint
	UnitPrice     decimal.Decimal
	Quantity      int
	CollectionIDs []uint
}

// Customer is what the rules need to know about the shopper
type Customer struct {
	ID                *uint
	Tier              string
	HasCompletedOrder bool
}

// Input is everything evaluation depends on. Now is passed in so results
// are reproducible.
type Input struct {
	Lines       []Line
	Customer    Customer
	Now         time.Time
	Channel     string
	Code        string
	ShippingFee decimal.Decimal
}

// Applied is a promotion included in the result
type Applied struct {
	PromotionID    uint            `json:"promotion_id"`
	Name           string          `json:"name"`
	Code           string          `json:"code,omitempty"`
	Type           Type            `json:"type"`
	Stackable      bool            `json:"stackable"`
	Amount         decimal.Decimal `json:"amount"`
	ShippingWaived decimal.Decimal `json:"shipping_waived"`
	Gift           bool            `json:"gift,omitempty"`
	Limited        bool            `json:"-"`
}

// Rejection is a promotion that was considered and left out
type Rejection struct {
	PromotionID uint   `json:"promotion_id"`
	Name        string `json:"name"`
	Reason      Reason `json:"reason"`
}

// Result is the outcome of an evaluation
type Result struct {
	Subtotal      decimal.Decimal `json:"subtotal"`
	DiscountTotal decimal.Decimal `json:"discount_total"`
	FreeShipping  bool            `json:"free_shipping"`
	Applied       []Applied       `json:"applied"`
	Rejections    []Rejection     `json:"rejections,omitempty"`
}

type candidate struct {
	def      Definition
	eligible []int
}

// Evaluate determines which promotions apply to the input and the discount
// they produce. It is a pure function of its arguments.
//
// At most one non-stackable promotion applies (largest saving, earliest
// created on ties) and it is applied first. Stackable promotions follow in
// ascending creation order, each against what is left after the previous
// ones. Discounts are spread over the eligible lines so a collection-scoped
// promotion never touches lines outside its collection.
func Evaluate(defs []Definition, in Input) Result {
	sorted := make([]Definition, len(defs))
	copy(sorted, defs)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
		}
		return sorted[i].ID < sorted[j].ID
	})

	lineTotals := make([]decimal.Decimal, len(in.Lines))
	subtotal := decimal.Zero
	for i, l := range in.Lines {
		lineTotals[i] = l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
		subtotal = subtotal.Add(lineTotals[i])
	}

	res := Result{
		Subtotal:      subtotal,
		DiscountTotal: decimal.Zero,
		Applied:       []Applied{},
	}
	code := NormalizeCode(in.Code)

	var nonStackable, stackable []candidate
	for _, def := range sorted {
		if def.Code != "" && def.Code != code {
			// code promotions only take part when their code was entered
			continue
		}

		eligible, reason := screen(def, in, lineTotals)
		if reason != "" {
			res.Rejections = append(res.Rejections, Rejection{PromotionID: def.ID, Name: def.Name, Reason: reason})
			continue
		}

		c := candidate{def: def, eligible: eligible}
		if def.Stackable {
			stackable = append(stackable, c)
		} else {
			nonStackable = append(nonStackable, c)
		}
	}

	remaining := make([]decimal.Decimal, len(lineTotals))
	copy(remaining, lineTotals)
	shippingWaived := false

	var chosen *candidate
	var chosenSaving decimal.Decimal
	for i := range nonStackable {
		merch, shipping, _ := discountFor(nonStackable[i], remaining, in.ShippingFee, shippingWaived)
		saving := merch.Add(shipping)
		if chosen == nil || saving.GreaterThan(chosenSaving) {
			chosen = &nonStackable[i]
			chosenSaving = saving
		}
	}
	for i := range nonStackable {
		if chosen != nil && &nonStackable[i] != chosen {
			res.Rejections = append(res.Rejections, Rejection{
				PromotionID: nonStackable[i].def.ID,
				Name:        nonStackable[i].def.Name,
				Reason:      ReasonSuperseded,
			})
		}
	}

	ordered := make([]candidate, 0, len(stackable)+1)
	if chosen != nil {
		ordered = append(ordered, *chosen)
	}
	ordered = append(ordered, stackable...)

	for _, c := range ordered {
		merch, shipping, gift := discountFor(c, remaining, in.ShippingFee, shippingWaived)
		if merch.IsZero() && shipping.IsZero() && !gift {
			reason := ReasonNoMatch
			if c.def.Type == TypeFreeShipping && shippingWaived {
				reason = ReasonSuperseded
			}
			res.Rejections = append(res.Rejections, Rejection{PromotionID: c.def.ID, Name: c.def.Name, Reason: reason})
			continue
		}

		allocate(merch, remaining, c.eligible)
		if shipping.IsPositive() {
			shippingWaived = true
		}

		res.Applied = append(res.Applied, Applied{
			PromotionID:    c.def.ID,
			Name:           c.def.Name,
			Code:           c.def.Code,
			Type:           c.def.Type,
			Stackable:      c.def.Stackable,
			Amount:         merch,
			ShippingWaived: shipping,
			Gift:           gift,
			Limited:        c.def.UsageLimit != nil,
		})
		res.DiscountTotal = res.DiscountTotal.Add(merch)
	}

	res.FreeShipping = shippingWaived
	return res
}

// screen applies the candidate filters and rule checks. It returns the
// indexes of the lines the promotion may discount.
func screen(def Definition, in Input, lineTotals []decimal.Decimal) ([]int, Reason) {
	if def.DecodeErr != nil {
		return nil, ReasonInvalidRule
	}

	switch def.Status {
	case StatusActive:
	case StatusExpired:
		return nil, ReasonExpired
	default:
		return nil, ReasonNotActive
	}

	if def.StartsAt != nil && in.Now.Before(*def.StartsAt) {
		return nil, ReasonNotStarted
	}
	if def.EndsAt != nil && in.Now.After(*def.EndsAt) {
		return nil, ReasonExpired
	}

	if len(def.Channels) > 0 && !containsString(def.Channels, in.Channel) {
		return nil, ReasonChannelMismatch
	}

	if def.UsageLimit != nil && def.UsageCount >= *def.UsageLimit {
		return nil, ReasonUsageLimitReached
	}

	eligible := make([]int, 0, len(in.Lines))
	eligibleSubtotal := decimal.Zero
	distinct := map[uint]struct{}{}
	for i, l := range in.Lines {
		if def.CollectionID != nil && !containsUint(l.CollectionIDs, *def.CollectionID) {
			continue
		}
		eligible = append(eligible, i)
		eligibleSubtotal = eligibleSubtotal.Add(lineTotals[i])
		distinct[l.VariantID] = struct{}{}
	}
	if len(eligible) == 0 {
		return nil, ReasonNoMatch
	}
	if def.Type == TypeBundle && len(distinct) < 2 {
		return nil, ReasonNoMatch
	}

	rc := ruleContext{eligibleSubtotal: eligibleSubtotal, customer: in.Customer}
	for _, r := range def.Rules {
		if reason := r.check(rc); reason != "" {
			return nil, reason
		}
	}

	return eligible, ""
}

// discountFor computes the merchandise discount and shipping waiver of c
// against the current remaining line amounts, without mutating them.
func discountFor(c candidate, remaining []decimal.Decimal, shippingFee decimal.Decimal, shippingWaived bool) (decimal.Decimal, decimal.Decimal, bool) {
	base := decimal.Zero
	for _, i := range c.eligible {
		base = base.Add(remaining[i])
	}

	value := money.ClampZero(c.def.Value)

	switch c.def.Type {
	case TypePercentage, TypeBundle:
		pct := money.Min(value, hundred)
		return money.Round(base.Mul(pct).Div(hundred)), decimal.Zero, false
	case TypeFixedAmount:
		return money.Min(money.Round(value), base), decimal.Zero, false
	case TypeFreeShipping:
		if shippingWaived {
			return decimal.Zero, decimal.Zero, false
		}
		return decimal.Zero, money.ClampZero(shippingFee), false
	case TypeGift:
		return decimal.Zero, decimal.Zero, true
	default:
		return decimal.Zero, decimal.Zero, false
	}
}

// allocate subtracts amount from the eligible lines in proportion to what
// each still carries, to the centavo. amount never exceeds their sum.
func allocate(amount decimal.Decimal, remaining []decimal.Decimal, eligible []int) {
	if !amount.IsPositive() || len(eligible) == 0 {
		return
	}

	base := decimal.Zero
	for _, i := range eligible {
		base = base.Add(remaining[i])
	}
	if !base.IsPositive() {
		return
	}
	if amount.GreaterThanOrEqual(base) {
		for _, i := range eligible {
			remaining[i] = decimal.Zero
		}
		return
	}

	left := amount
	for n, i := range eligible {
		share := money.Round(amount.Mul(remaining[i]).Div(base))
		if n == len(eligible)-1 {
			share = left
		}
		share = money.Min(share, remaining[i])
		share = money.Min(share, left)
		remaining[i] = remaining[i].Sub(share)
		left = left.Sub(share)
	}

	// rounding can leave a few centavos; take them from any line with room
	for _, i := range eligible {
		if !left.IsPositive() {
			break
		}
		take := money.Min(left, remaining[i])
		remaining[i] = remaining[i].Sub(take)
		left = left.Sub(take)
	}
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsUint(list []uint, v uint) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
