// Package pricing computes cart totals: subtotal, coupon discount, tax and
// the final amount. Everything here is pure; callers supply the effective
// unit prices and the tax rate.
package pricing

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Line is one priced cart entry.
type Line struct {
	ProductID int64
	Quantity  int
	UnitPrice decimal.Decimal
}

// Subtotal returns UnitPrice * Quantity. Negative results count as zero.
func (l Line) Subtotal() decimal.Decimal {
	if l.Quantity <= 0 {
		return decimal.Zero
	}
	return floorAtZero(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
}

// Discounter computes a discount for the given subtotal. The result is
// clamped by Compute, so implementations need not guard the bounds.
type Discounter func(subtotal decimal.Decimal) decimal.Decimal

// Snapshot is the derived pricing of a cart at one point in time.
type Snapshot struct {
	Subtotal       decimal.Decimal
	Discount       decimal.Decimal
	TaxableAmount  decimal.Decimal
	TaxRatePercent decimal.Decimal
	Tax            decimal.Decimal
	Total          decimal.Decimal
	ItemCount      int
}

// Empty reports whether the snapshot priced no items.
func (s Snapshot) Empty() bool {
	return s.ItemCount == 0
}

// Compute prices lines at taxRatePercent (12 means 12%). discount may be nil
// when no coupon is applied.
//
// The discount is clamped into [0, subtotal], tax is charged on the
// discounted amount and rounded to cents. A negative tax rate is treated as
// zero.
func Compute(lines []Line, taxRatePercent decimal.Decimal, discount Discounter) Snapshot {
	subtotal := Subtotal(lines)

	d := decimal.Zero
	if discount != nil {
		d = Clamp(discount(subtotal), subtotal)
	}

	rate := floorAtZero(taxRatePercent)
	taxable := floorAtZero(subtotal.Sub(d))
	tax := Round2(taxable.Mul(rate).Div(hundred))

	return Snapshot{
		Subtotal:       subtotal,
		Discount:       d,
		TaxableAmount:  taxable,
		TaxRatePercent: rate,
		Tax:            tax,
		Total:          taxable.Add(tax),
		ItemCount:      Count(lines),
	}
}

// Subtotal sums the line subtotals.
func Subtotal(lines []Line) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(l.Subtotal())
	}
	return sum
}

// Count sums the line quantities.
func Count(lines []Line) int {
	n := 0
	for _, l := range lines {
		if l.Quantity > 0 {
			n += l.Quantity
		}
	}
	return n
}

// Clamp rounds d to cents and bounds it to [0, ceiling].
func Clamp(d, ceiling decimal.Decimal) decimal.Decimal {
	d = floorAtZero(Round2(d))
	if d.GreaterThan(ceiling) {
		return ceiling
	}
	return d
}

// Round2 rounds half away from zero to two decimal places.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

func floorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
