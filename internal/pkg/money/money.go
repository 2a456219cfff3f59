// Package money holds the decimal helpers used for PHP amounts.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Places is the number of fractional digits kept for PHP (centavos).
const Places = 2

var hundred = decimal.NewFromInt(100)

// Round rounds half away from zero to centavos.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Places)
}

// ClampZero returns d, or zero when d is negative.
func ClampZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// Min returns the smaller of a and b.
func Min(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

// ToMinorUnits converts an amount to integer centavos. Negative amounts and
// amounts with a sub-centavo remainder are rejected rather than rounded.
func ToMinorUnits(d decimal.Decimal) (int64, error) {
	if d.IsNegative() {
		return 0, fmt.Errorf("amount %s is negative", d.String())
	}
	if !d.Round(Places).Equal(d) {
		return 0, fmt.Errorf("amount %s has a fraction of a centavo", d.String())
	}
	return d.Mul(hundred).IntPart(), nil
}

// FromMinorUnits converts integer centavos back to a decimal amount.
func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.New(minor, -Places)
}

// Format renders an amount for receipts and emails, e.g. "PHP 1,000.00".
func Format(currency string, d decimal.Decimal) string {
	s := Round(d).StringFixed(Places)
	neg := false
	if s[0] == '-' {
		neg = true
		s = s[1:]
	}
	intPart, frac := s[:len(s)-Places-1], s[len(s)-Places:]
	grouped := make([]byte, 0, len(intPart)+len(intPart)/3)
	for i, ch := range []byte(intPart) {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			grouped = append(grouped, ',')
		}
		grouped = append(grouped, ch)
	}
	sign := ""
	if neg {
		sign = "-"
	}
	return fmt.Sprintf("%s %s%s.%s", currency, sign, grouped, frac)
}
