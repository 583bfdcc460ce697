package coupon

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// CalculateDiscount returns the discount rule grants on subtotal. The result
// is rounded to cents and always lies within [0, subtotal].
func CalculateDiscount(rule *Rule, subtotal decimal.Decimal) decimal.Decimal {
	if rule == nil || !subtotal.IsPositive() {
		return decimal.Zero
	}

	var amount decimal.Decimal
	switch rule.DiscountType {
	case DiscountPercentage:
		amount = subtotal.Mul(rule.Value).Div(hundred)
		if rule.MaxDiscount.IsPositive() {
			amount = decimal.Min(amount, rule.MaxDiscount)
		}
	case DiscountFixed:
		amount = rule.Value
	default:
		return decimal.Zero
	}

	amount = amount.Round(2)
	if amount.IsNegative() {
		return decimal.Zero
	}
	return decimal.Min(amount, subtotal)
}

// Discounter adapts rule to the func(subtotal) shape used by the pricing
// calculator.
func Discounter(rule *Rule) func(decimal.Decimal) decimal.Decimal {
	return func(subtotal decimal.Decimal) decimal.Decimal {
		return CalculateDiscount(rule, subtotal)
	}
}
