package coupon

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)
)

// DiscountKind distinguishes the two discount variants.
type DiscountKind uint8

const (
	// KindNone is the zero Discount.
	KindNone DiscountKind = iota
	// KindPercentage takes a fraction of the subtotal.
	KindPercentage
	// KindFixed takes a fixed amount in minor currency units per seat.
	KindFixed
)

func (k DiscountKind) String() string {
	switch k {
	case KindPercentage:
		return "percentage"
	case KindFixed:
		return "fixed"
	default:
		return "none"
	}
}

// Discount is either a percentage in (0,1] or a positive fixed amount in
// minor units. It can only be built through the constructors below, so a
// value carrying both is unrepresentable.
type Discount struct {
	kind    DiscountKind
	percent decimal.Decimal
	amount  int64
}

// Percentage builds a percentage discount. p is a fraction, 0.4 for 40%.
func Percentage(p decimal.Decimal) (Discount, error) {
	if !p.IsPositive() || p.GreaterThan(one) {
		return Discount{}, errors.Wrapf(ErrMalformedDiscount, "percentage %s out of range (0,1]", p)
	}
	return Discount{kind: KindPercentage, percent: p}, nil
}

// Fixed builds an amount-off discount in minor currency units.
func Fixed(amount int64) (Discount, error) {
	if amount <= 0 {
		return Discount{}, errors.Wrapf(ErrMalformedDiscount, "amount %d must be positive", amount)
	}
	return Discount{kind: KindFixed, amount: amount}, nil
}

// NewDiscount builds a Discount from the two nullable stored columns. A zero
// value counts as unset. Exactly one must be set.
func NewDiscount(percent *decimal.Decimal, amount *int64) (Discount, error) {
	hasPercent := percent != nil && !percent.IsZero()
	hasAmount := amount != nil && *amount != 0

	switch {
	case hasPercent && hasAmount:
		return Discount{}, errors.Wrap(ErrMalformedDiscount, "both percentage and amount set")
	case hasPercent:
		return Percentage(*percent)
	case hasAmount:
		return Fixed(*amount)
	default:
		return Discount{}, errors.Wrap(ErrMalformedDiscount, "neither percentage nor amount set")
	}
}

// Kind returns the variant.
func (d Discount) Kind() DiscountKind { return d.kind }

// IsZero reports whether d is the zero value.
func (d Discount) IsZero() bool { return d.kind == KindNone }

// Percent returns the fraction for percentage discounts and zero otherwise.
func (d Discount) Percent() decimal.Decimal {
	if d.kind != KindPercentage {
		return decimal.Zero
	}
	return d.percent
}

// AmountOff returns the minor-unit amount for fixed discounts and zero otherwise.
func (d Discount) AmountOff() int64 {
	if d.kind != KindFixed {
		return 0
	}
	return d.amount
}

// AmountOffMajor returns AmountOff in major currency units.
func (d Discount) AmountOffMajor() decimal.Decimal {
	return decimal.NewFromInt(d.AmountOff()).Div(hundred)
}

// Savings returns how much currency the discount takes off unitPrice*quantity.
// Fixed amounts apply per seat and are capped at the subtotal.
func (d Discount) Savings(unitPrice decimal.Decimal, quantity int) decimal.Decimal {
	subtotal := unitPrice.Mul(decimal.NewFromInt(int64(quantity)))
	switch d.kind {
	case KindPercentage:
		return subtotal.Mul(d.percent)
	case KindFixed:
		off := d.AmountOffMajor().Mul(decimal.NewFromInt(int64(quantity)))
		return decimal.Min(off, subtotal)
	default:
		return decimal.Zero
	}
}
