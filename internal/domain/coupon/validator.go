package coupon

import (
	"time"
)

// Validate checks that c can be redeemed for productID at now.
func (c *Coupon) Validate(productID string, now time.Time) error {
	if c.Status != StatusActive {
		return ErrInactive
	}
	if c.Expires != nil && now.After(*c.Expires) {
		return ErrCouponExpired
	}
	if c.MaxUses != UnlimitedUses && c.UsedCount >= c.MaxUses {
		return ErrUsageLimitReached
	}
	if c.RestrictedToProductID != "" && c.RestrictedToProductID != productID {
		return ErrRestrictedProduct
	}
	return nil
}

// Redeemable is Validate without the reason.
func (c *Coupon) Redeemable(productID string, now time.Time) bool {
	return c.Validate(productID, now) == nil
}

// RestrictedElsewhere reports whether c is pinned to a product other than productID.
func (c *Coupon) RestrictedElsewhere(productID string) bool {
	return c != nil && c.RestrictedToProductID != "" && c.RestrictedToProductID != productID
}

// SatisfiedBy reports whether the eligibility condition holds for a user.
// hasValidPurchase answers whether the user owns a Valid purchase of a product.
func (e *EligibilityCondition) SatisfiedBy(hasValidPurchase func(productID string) bool) bool {
	if e == nil {
		return true
	}
	switch e.Type {
	case ConditionHasValidProductPurchase:
		return hasValidPurchase(e.ProductID)
	default:
		return false
	}
}

// Eligible reports whether the coupon's eligibility condition holds. A nil
// coupon has no condition.
func (c *Coupon) Eligible(hasValidPurchase func(productID string) bool) bool {
	if c == nil {
		return true
	}
	return c.Fields.EligibilityCondition.SatisfiedBy(hasValidPurchase)
}
