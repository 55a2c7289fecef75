package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Type enumerates merchant coupon categories.
type Type string

const (
	// TypeSpecial is an administrator-issued sale or promo coupon.
	TypeSpecial Type = "special"
	// TypePPP is a purchasing-power-parity regional discount.
	TypePPP Type = "ppp"
	// TypeBulk is a seat-count tier discount.
	TypeBulk Type = "bulk"
	// TypeSpecialCredit backs entitlement-granted credits.
	TypeSpecialCredit Type = "special credit"
	// TypeStacked is synthesized at checkout from several combined discounts.
	TypeStacked Type = "stacked"
)

// ParseType converts a stored type string into a Type.
func ParseType(s string) (Type, error) {
	switch t := Type(s); t {
	case TypeSpecial, TypePPP, TypeBulk, TypeSpecialCredit, TypeStacked:
		return t, nil
	default:
		return "", errors.Wrapf(ErrUnknownType, "%q", s)
	}
}

// StatusActive marks a merchant coupon or coupon as usable.
const StatusActive = 1

// UnlimitedUses is the MaxUses value for coupons without a redemption cap.
const UnlimitedUses = -1

var (
	// ErrNotFound is returned when a coupon or merchant coupon does not exist.
	ErrNotFound = errors.New("coupon not found")
	// ErrMalformedDiscount is returned when a discount is neither a valid
	// percentage nor a valid fixed amount, or claims to be both.
	ErrMalformedDiscount = errors.New("malformed discount")
	// ErrUnknownType is returned for merchant coupon types outside the closed set.
	ErrUnknownType = errors.New("unknown coupon type")
	// ErrCouponExpired is returned when a coupon is past its expiry.
	ErrCouponExpired = errors.New("coupon expired")
	// ErrUsageLimitReached is returned when a coupon has exhausted its allowed uses.
	ErrUsageLimitReached = errors.New("coupon usage limit reached")
	// ErrRestrictedProduct is returned when a coupon is restricted to another product.
	ErrRestrictedProduct = errors.New("coupon restricted to another product")
	// ErrInactive is returned for coupons whose status is not active.
	ErrInactive = errors.New("coupon inactive")
)

// MerchantCoupon is the processor-facing discount definition.
type MerchantCoupon struct {
	ID       string
	Type     Type
	Discount Discount
	// Identifier is the payment processor's coupon id, if the coupon exists there.
	Identifier string
	Status     int
}

// Savings returns the currency value of the coupon for the given purchase.
func (m *MerchantCoupon) Savings(unitPrice decimal.Decimal, quantity int) decimal.Decimal {
	if m == nil {
		return decimal.Zero
	}
	return m.Discount.Savings(unitPrice, quantity)
}

// Coupon is the site-level wrapper users redeem by code or link.
type Coupon struct {
	ID                    string
	Code                  string
	MerchantCouponID      string
	Fields                Fields
	Default               bool
	MaxUses               int
	UsedCount             int
	Expires               *time.Time
	RestrictedToProductID string
	Status                int
}

// Fields holds the loosely structured coupon settings.
type Fields struct {
	// Stackable is unset for most coupons. Only an explicit false opts a
	// coupon out of stacking.
	Stackable            *bool
	EligibilityCondition *EligibilityCondition
}

// IsStackable reports whether the coupon may be combined with other discounts.
func (c *Coupon) IsStackable() bool {
	if c == nil || c.Fields.Stackable == nil {
		return true
	}
	return *c.Fields.Stackable
}

// ConditionType names a coupon eligibility rule.
type ConditionType string

// ConditionHasValidProductPurchase requires a Valid purchase of ProductID.
const ConditionHasValidProductPurchase ConditionType = "hasValidProductPurchase"

// EligibilityCondition restricts who may redeem a coupon.
type EligibilityCondition struct {
	Type      ConditionType
	ProductID string
}

// Repository provides coupon and merchant coupon persistence.
type Repository interface {
	GetMerchantCoupon(ctx context.Context, id string) (*MerchantCoupon, error)
	// GetCoupon looks a coupon up by id, falling back to code.
	GetCoupon(ctx context.Context, idOrCode string) (*Coupon, error)
	// GetDefaultCoupon returns the active site-wide default coupon applicable
	// to productID, or ErrNotFound.
	GetDefaultCoupon(ctx context.Context, productID string) (*Coupon, error)
	GetMerchantCouponsForTypeAndPercent(ctx context.Context, t Type, percent decimal.Decimal) ([]MerchantCoupon, error)
	GetMerchantCouponForTypeAndAmount(ctx context.Context, t Type, amount int64) (*MerchantCoupon, error)
	// CreateMerchantCoupon persists mc. For TypeStacked it is create-if-absent
	// keyed by amount and returns whichever row won.
	CreateMerchantCoupon(ctx context.Context, mc *MerchantCoupon) (*MerchantCoupon, error)
}
