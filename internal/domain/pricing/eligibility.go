package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/course-pricing/internal/domain/coupon"
	"github.com/xenking/course-pricing/internal/domain/purchase"
)

// PPPInput carries what PPP eligibility depends on.
type PPPInput struct {
	ProductID string
	Quantity  int
	Percent   decimal.Decimal
	Purchases []purchase.Purchase
	// UpgradeFrom is the purchase being upgraded, if any.
	UpgradeFrom *purchase.Purchase
	// ExistingSeats are seats already held in a bulk purchase of ProductID.
	ExistingSeats int
}

// PPPEligible reports whether a regional discount may be offered. A single
// Valid purchase disqualifies the user for good, and PPP is never offered to
// team purchases or to buyers lifting the restriction on a PPP purchase.
func PPPEligible(in PPPInput) bool {
	if in.Quantity != 1 || in.ExistingSeats > 0 {
		return false
	}
	if !in.Percent.IsPositive() || in.Percent.GreaterThanOrEqual(one) {
		return false
	}
	if purchase.HasValid(in.Purchases) {
		return false
	}
	if up := in.UpgradeFrom; up != nil && up.Status == purchase.StatusRestricted && up.ProductID == in.ProductID {
		return false
	}
	return true
}

// BulkSeats returns the total seat count and whether the purchase counts as bulk.
func BulkSeats(quantity, existingSeats int) (seats int, bulk bool) {
	seats = quantity + existingSeats
	return seats, quantity > 1 || existingSeats > 0
}

// StackCandidates are the discounts that may enter a stack.
type StackCandidates struct {
	Credits []StackableDiscount
	// PPP is the applicable regional coupon, if any.
	PPP *coupon.MerchantCoupon
	// Coupon is the explicit or default special coupon, if any.
	Coupon       *coupon.MerchantCoupon
	CouponSource Source
	// CouponStackable is false only when the coupon opted out of stacking.
	CouponStackable bool
}

// BuildStack assembles the stacked discounts. A Default coupon never enters
// alongside PPP; PPP is kept.
func BuildStack(c StackCandidates) []StackableDiscount {
	var stack []StackableDiscount
	if c.PPP != nil {
		stack = append(stack, StackableDiscount{
			Source:           SourcePPP,
			MerchantCouponID: c.PPP.ID,
			Discount:         c.PPP.Discount,
		})
	}
	if c.Coupon != nil && c.CouponStackable && !(c.PPP != nil && c.CouponSource == SourceDefault) {
		stack = append(stack, StackableDiscount{
			Source:           c.CouponSource,
			MerchantCouponID: c.Coupon.ID,
			Discount:         c.Coupon.Discount,
		})
	}
	return append(stack, c.Credits...)
}

// StackedAmount reduces stacked discounts to one amount in minor units.
// Percentages apply to the subtotal left after credit, fixed amounts apply per
// seat, and the total is capped at that remainder.
func StackedAmount(stack []StackableDiscount, unitPrice decimal.Decimal, quantity int, credit decimal.Decimal) int64 {
	base := floorAtZero(unitPrice.Mul(decimal.NewFromInt(int64(quantity))).Sub(credit))
	seats := decimal.NewFromInt(int64(quantity))

	total := decimal.Zero
	for _, s := range stack {
		switch s.Discount.Kind() {
		case coupon.KindPercentage:
			total = total.Add(base.Mul(s.Discount.Percent()))
		case coupon.KindFixed:
			total = total.Add(s.Discount.AmountOffMajor().Mul(seats))
		case coupon.KindNone:
		}
	}
	return toMinorUnits(decimal.Min(total, base))
}
