package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/course-pricing/internal/domain/coupon"
)

// DiscountType is the kind of discount applied to a quote. A stacked quote
// reports DiscountTypeFixed since the stack is charged as one amount off;
// StackingPath tells it apart.
type DiscountType string

const (
	DiscountTypePPP        DiscountType = "ppp"
	DiscountTypeBulk       DiscountType = "bulk"
	DiscountTypeFixed      DiscountType = "fixed"
	DiscountTypePercentage DiscountType = "percentage"
	DiscountTypeNone       DiscountType = "none"
)

// Source says where a stacked discount came from.
type Source string

const (
	SourcePPP         Source = "ppp"
	SourceEntitlement Source = "entitlement"
	SourceUser        Source = "user"
	SourceDefault     Source = "default"
)

// StackingPath tells whether several discounts were combined.
type StackingPath string

const (
	StackingPathStack StackingPath = "stack"
	StackingPathNone  StackingPath = "none"
)

// StackableDiscount is one component of a stacked discount.
type StackableDiscount struct {
	Source           Source
	MerchantCouponID string
	Discount         coupon.Discount
}

// Resolution is the outcome of the coupon resolver.
type Resolution struct {
	AppliedMerchantCoupon *coupon.MerchantCoupon
	AppliedCouponType     coupon.Type
	AppliedDiscountType   DiscountType
	// AvailableCoupons are eligible but not applied, e.g. PPP the buyer may opt into.
	AvailableCoupons   []coupon.MerchantCoupon
	Bulk               bool
	Seats              int
	StackableDiscounts []StackableDiscount
	StackingPath       StackingPath
	// UsedCouponID is the site coupon the buyer supplied, when it was honoured.
	UsedCouponID string
}

// Quote is a complete price for one product purchase.
type Quote struct {
	ProductID         string
	MerchantProductID string
	Quantity          int
	UnitPrice         decimal.Decimal
	FullPrice         decimal.Decimal
	CalculatedPrice   decimal.Decimal

	FixedDiscountForUpgrade decimal.Decimal
	// AppliedFixedDiscount is the currency value of a fixed or stacked discount.
	AppliedFixedDiscount  decimal.Decimal
	AppliedMerchantCoupon *coupon.MerchantCoupon
	AppliedDiscountType   DiscountType
	AvailableCoupons      []coupon.MerchantCoupon

	Bulk                  bool
	Seats                 int
	UpgradeFromPurchaseID string
	UsedCouponID          string
	StackableDiscounts    []StackableDiscount
	StackingPath          StackingPath
}

// Discounted returns FullPrice minus CalculatedPrice.
func (q *Quote) Discounted() decimal.Decimal {
	return q.FullPrice.Sub(q.CalculatedPrice)
}

func discountTypeFor(mc *coupon.MerchantCoupon) DiscountType {
	if mc == nil {
		return DiscountTypeNone
	}
	switch mc.Type {
	case coupon.TypePPP:
		return DiscountTypePPP
	case coupon.TypeBulk:
		return DiscountTypeBulk
	case coupon.TypeStacked:
		return DiscountTypeFixed
	case coupon.TypeSpecial, coupon.TypeSpecialCredit:
		switch mc.Discount.Kind() {
		case coupon.KindFixed:
			return DiscountTypeFixed
		case coupon.KindPercentage:
			return DiscountTypePercentage
		}
	}
	return DiscountTypeNone
}
