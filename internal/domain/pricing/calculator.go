package pricing

import (
	"github.com/shopspring/decimal"
)

var (
	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)
)

// PriceParams are the inputs of CalculatePrice. Zero values mean "no discount";
// a zero Quantity is treated as one seat.
type PriceParams struct {
	UnitPrice decimal.Decimal
	Quantity  int
	// FixedDiscount is a credit in major currency units subtracted first.
	FixedDiscount decimal.Decimal
	// PercentOfDiscount is a fraction applied after the credit.
	PercentOfDiscount decimal.Decimal
	// AmountDiscount is in minor currency units. When positive it replaces
	// PercentOfDiscount.
	AmountDiscount int64
}

// CalculatePrice applies the credit, then one of the amount or percentage
// discounts, clamps at zero and rounds to cents. Rounding is half away from
// zero, which is half-up for the non-negative results produced here.
func CalculatePrice(p PriceParams) decimal.Decimal {
	qty := p.Quantity
	if qty <= 0 {
		qty = 1
	}

	subtotal := p.UnitPrice.Mul(decimal.NewFromInt(int64(qty)))
	afterCredit := subtotal.Sub(p.FixedDiscount)

	var final decimal.Decimal
	if p.AmountDiscount > 0 {
		final = afterCredit.Sub(decimal.NewFromInt(p.AmountDiscount).Div(hundred))
	} else {
		final = afterCredit.Mul(one.Sub(p.PercentOfDiscount))
	}

	return floorAtZero(final).Round(2)
}

// floorAtZero clamps negative values to zero.
func floorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// toMinorUnits converts a major-unit amount to minor units, rounding half-up.
func toMinorUnits(d decimal.Decimal) int64 {
	return d.Mul(hundred).Round(0).IntPart()
}
