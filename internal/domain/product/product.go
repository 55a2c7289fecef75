package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/course-pricing/internal/domain/purchase"
)

var (
	// ErrNotFound is returned when a requested product does not exist.
	ErrNotFound = errors.New("product not found")
	// ErrPriceNotFound is returned when a product has no active price.
	ErrPriceNotFound = errors.New("price not found")
)

// Product is a sellable course, bundle, or workshop.
type Product struct {
	ID     string
	Name   string
	Type   string
	Status int
	// MerchantProductID is the payment processor's product id used to scope
	// minted coupons.
	MerchantProductID string
}

// Price is the unit amount of a product in major currency units.
type Price struct {
	ID         string
	ProductID  string
	UnitAmount decimal.Decimal
}

// Upgrade records that owners of UpgradableFromID may upgrade to UpgradableToID.
type Upgrade struct {
	UpgradableFromID string
	UpgradableToID   string
}

// Repository defines read operations for the product catalog.
type Repository interface {
	GetProduct(ctx context.Context, id string) (*Product, error)
	GetPriceForProduct(ctx context.Context, productID string) (*Price, error)
	GetUpgradableProducts(ctx context.Context, fromID, toID string) ([]Upgrade, error)
	// AvailableUpgradesForProduct returns the upgrades to productID reachable
	// from the products in purchases.
	AvailableUpgradesForProduct(ctx context.Context, purchases []purchase.Purchase, productID string) ([]Upgrade, error)
	// PricesOfPurchasesTowardOneBundle returns the prices of the user's
	// purchases whose products are upgradable into bundleID.
	PricesOfPurchasesTowardOneBundle(ctx context.Context, userID, bundleID string) ([]Price, error)
}
