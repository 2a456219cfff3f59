package promotion

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Definition is a promotion with its rules decoded, ready for evaluation
type Definition struct {
	ID           uint
	Name         string
	Code         string // normalized; empty for automatic promotions
	Type         Type
	Status       Status
	Value        decimal.Decimal
	Stackable    bool
	UsageLimit   *int
	UsageCount   int
	StartsAt     *time.Time
	EndsAt       *time.Time
	Channels     []string
	CollectionID *uint
	CreatedAt    time.Time
	Rules        []Rule

	// DecodeErr is set when a stored rule could not be decoded. Such a
	// promotion is never applied.
	DecodeErr error
}

// Compile decodes the stored rules of p once.
func Compile(p Promotion) Definition {
	d := Definition{
		ID:           p.ID,
		Name:         p.Name,
		Type:         p.Type,
		Status:       p.Status,
		Value:        p.Value,
		Stackable:    p.Stackable,
		UsageLimit:   p.UsageLimit,
		UsageCount:   p.UsageCount,
		StartsAt:     p.StartsAt,
		EndsAt:       p.EndsAt,
		Channels:     p.Channels,
		CollectionID: p.CollectionID,
		CreatedAt:    p.CreatedAt,
	}
	if p.Code != nil {
		d.Code = NormalizeCode(*p.Code)
	}

	for _, stored := range p.Rules {
		rule, err := DecodeRule(stored.RuleType, stored.Payload)
		if err != nil {
			d.DecodeErr = err
			d.Rules = nil
			break
		}
		if rule != nil {
			d.Rules = append(d.Rules, rule)
		}
	}
	return d
}

// CompileAll compiles a slice of stored promotions.
func CompileAll(ps []Promotion) []Definition {
	out := make([]Definition, 0, len(ps))
	for _, p := range ps {
		out = append(out, Compile(p))
	}
	return out
}

// NormalizeCode canonicalizes a shopper-entered or admin-entered code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
