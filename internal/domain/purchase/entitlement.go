package purchase

import (
	"time"

	"github.com/go-faster/errors"
)

// SourceTypeCoupon marks entitlements granted by redeeming a coupon.
const SourceTypeCoupon = "COUPON"

// EntitlementTypeSpecialCredit names the entitlement type that grants a
// stackable special credit.
const EntitlementTypeSpecialCredit = "apply_special_credit"

// ErrEntitlementTypeNotFound is returned when no entitlement type has the requested name.
var ErrEntitlementTypeNotFound = errors.New("entitlement type not found")

// EntitlementType is a named kind of entitlement.
type EntitlementType struct {
	ID   string
	Name string
}

// Entitlement is a right granted to a user by some other system.
type Entitlement struct {
	ID              string
	UserID          string
	EntitlementType string
	SourceType      string
	SourceID        string
	ExpiresAt       *time.Time
	DeletedAt       *time.Time
}

// Usable reports whether the entitlement is neither expired nor deleted at now.
func (e *Entitlement) Usable(now time.Time) bool {
	if e.DeletedAt != nil {
		return false
	}
	return e.ExpiresAt == nil || now.Before(*e.ExpiresAt)
}

// CouponCredits returns the usable coupon-sourced entitlements of typeID.
func CouponCredits(es []Entitlement, typeID string, now time.Time) []Entitlement {
	var out []Entitlement
	for i := range es {
		e := es[i]
		if e.EntitlementType == typeID && e.SourceType == SourceTypeCoupon && e.Usable(now) {
			out = append(out, e)
		}
	}
	return out
}
