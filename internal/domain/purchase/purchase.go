package purchase

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a purchase.
type Status string

const (
	StatusValid      Status = "Valid"
	StatusRestricted Status = "Restricted"
	StatusDisputed   Status = "Disputed"
	StatusBanned     Status = "Banned"
	StatusRefunded   Status = "Refunded"
)

// ErrNotFound is returned when a purchase does not exist.
var ErrNotFound = errors.New("purchase not found")

// Purchase is a completed order for one product.
type Purchase struct {
	ID          string
	UserID      string
	ProductID   string
	Status      Status
	TotalAmount decimal.Decimal
	// UpgradedFromID links to the purchase this one upgraded, forming a chain.
	UpgradedFromID string
	// BulkCouponID is set when the purchase bought seats for a team.
	BulkCouponID string
	Country      string
	CreatedAt    time.Time
}

// Active reports whether the purchase still grants access, restricted or not.
func (p *Purchase) Active() bool {
	return p.Status == StatusValid || p.Status == StatusRestricted
}

// IsBulk reports whether the purchase holds team seats.
func (p *Purchase) IsBulk() bool {
	return p.BulkCouponID != ""
}

// HasValid reports whether any purchase in ps is Valid.
func HasValid(ps []Purchase) bool {
	for i := range ps {
		if ps[i].Status == StatusValid {
			return true
		}
	}
	return false
}

// OwnsValid reports whether ps contains a Valid purchase of productID.
func OwnsValid(ps []Purchase, productID string) bool {
	for i := range ps {
		if ps[i].Status == StatusValid && ps[i].ProductID == productID {
			return true
		}
	}
	return false
}

// ActiveBulkFor returns the user's active bulk purchase of productID, if any.
func ActiveBulkFor(ps []Purchase, productID string) (*Purchase, bool) {
	for i := range ps {
		p := &ps[i]
		if p.ProductID == productID && p.IsBulk() && p.Active() {
			return p, true
		}
	}
	return nil, false
}

// Repository provides read access to purchases and entitlements.
type Repository interface {
	GetPurchase(ctx context.Context, id string) (*Purchase, error)
	GetPurchasesForUser(ctx context.Context, userID string) ([]Purchase, error)
	GetEntitlementsForUser(ctx context.Context, userID string) ([]Entitlement, error)
	GetEntitlementTypeByName(ctx context.Context, name string) (*EntitlementType, error)
}
