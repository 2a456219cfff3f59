package promotion

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Rule is a decoded promotion rule. The concrete types are MinSubtotal,
// CustomerTier and FirstPurchaseOnly; the set is closed.
type Rule interface {
	Type() RuleType
	check(c ruleContext) Reason
}

type ruleContext struct {
	eligibleSubtotal decimal.Decimal
	customer         Customer
}

// MinSubtotal requires the eligible subtotal to reach Threshold
type MinSubtotal struct {
	Threshold decimal.Decimal
}

func (MinSubtotal) Type() RuleType { return RuleMinSubtotal }

func (r MinSubtotal) check(c ruleContext) Reason {
	if c.eligibleSubtotal.LessThan(r.Threshold) {
		return ReasonBelowThreshold
	}
	return ""
}

// CustomerTier requires the customer to be in Tier
type CustomerTier struct {
	Tier string
}

func (CustomerTier) Type() RuleType { return RuleCustomerTier }

func (r CustomerTier) check(c ruleContext) Reason {
	if !strings.EqualFold(c.customer.Tier, r.Tier) {
		return ReasonTierMismatch
	}
	return ""
}

// FirstPurchaseOnly requires the customer to have no completed order
type FirstPurchaseOnly struct{}

func (FirstPurchaseOnly) Type() RuleType { return RuleFirstPurchase }

func (FirstPurchaseOnly) check(c ruleContext) Reason {
	if c.customer.HasCompletedOrder {
		return ReasonAlreadyUsed
	}
	return ""
}

type minSubtotalPayload struct {
	MinSubtotal *decimal.Decimal `json:"minSubtotal"`
}

type customerTierPayload struct {
	Tier string `json:"tier"`
}

type firstPurchasePayload struct {
	FirstPurchaseOnly bool `json:"firstPurchaseOnly"`
}

// DecodeRule turns a stored rule into its typed form. A nil Rule with a nil
// error means the rule is switched off (e.g. firstPurchaseOnly=false).
func DecodeRule(ruleType RuleType, payload string) (Rule, error) {
	switch ruleType {
	case RuleMinSubtotal:
		var p minSubtotalPayload
		if err := json.Unmarshal([]byte(payload), &p); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", ruleType, err)
		}
		if p.MinSubtotal == nil {
			return nil, fmt.Errorf("decode %s payload: minSubtotal is missing", ruleType)
		}
		if p.MinSubtotal.IsNegative() {
			return nil, fmt.Errorf("decode %s payload: minSubtotal is negative", ruleType)
		}
		return MinSubtotal{Threshold: *p.MinSubtotal}, nil

	case RuleCustomerTier:
		var p customerTierPayload
		if err := json.Unmarshal([]byte(payload), &p); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", ruleType, err)
		}
		if strings.TrimSpace(p.Tier) == "" {
			return nil, fmt.Errorf("decode %s payload: tier is missing", ruleType)
		}
		return CustomerTier{Tier: strings.TrimSpace(p.Tier)}, nil

	case RuleFirstPurchase:
		var p firstPurchasePayload
		if err := json.Unmarshal([]byte(payload), &p); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", ruleType, err)
		}
		if !p.FirstPurchaseOnly {
			return nil, nil
		}
		return FirstPurchaseOnly{}, nil

	default:
		return nil, fmt.Errorf("unknown rule type %q", ruleType)
	}
}

// EncodeRule produces the stored payload for a typed rule.
func EncodeRule(r Rule) (PromotionRule, error) {
	var payload interface{}
	switch rule := r.(type) {
	case MinSubtotal:
		payload = map[string]interface{}{"minSubtotal": rule.Threshold}
	case CustomerTier:
		payload = customerTierPayload{Tier: rule.Tier}
	case FirstPurchaseOnly:
		payload = firstPurchasePayload{FirstPurchaseOnly: true}
	default:
		return PromotionRule{}, fmt.Errorf("unsupported rule %T", r)
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return PromotionRule{}, fmt.Errorf("encode %s payload: %w", r.Type(), err)
	}
	return PromotionRule{RuleType: r.Type(), Payload: string(b)}, nil
}
