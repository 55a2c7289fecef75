package checkout

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// CouponParams describes a discount object to create at the payment processor.
// Exactly one of AmountOff and PercentOff is set.
type CouponParams struct {
	Name string
	// AmountOff in minor currency units.
	AmountOff  int64
	PercentOff decimal.Decimal
	// ProductScope limits the coupon to one processor product when set.
	ProductScope   string
	MaxRedemptions int64
	RedeemBy       *time.Time
}

// PromotionCodeParams describes a redemption code for an existing coupon.
type PromotionCodeParams struct {
	CouponID       string
	MaxRedemptions int64
	ExpiresAt      time.Time
}

// PromotionCode is a customer-facing code created at the processor.
type PromotionCode struct {
	ID   string
	Code string
}

// Processor creates discount objects at the payment processor.
type Processor interface {
	// CreateCoupon returns the processor's coupon id.
	CreateCoupon(ctx context.Context, p CouponParams) (string, error)
	CreatePromotionCode(ctx context.Context, p PromotionCodeParams) (*PromotionCode, error)
}
