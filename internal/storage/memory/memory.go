// Package memory implements the pricing repositories in process memory.
//
// It backs unit tests of the HTTP layer and local runs without a database.
package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/course-pricing/internal/domain/coupon"
	"github.com/xenking/course-pricing/internal/domain/pricing"
	"github.com/xenking/course-pricing/internal/domain/product"
	"github.com/xenking/course-pricing/internal/domain/purchase"
)

var _ pricing.Repository = (*Store)(nil)

// Store is a mutex-guarded in-memory catalog.
type Store struct {
	mu sync.RWMutex

	products        map[string]product.Product
	prices          map[string]product.Price // by product id
	upgrades        []product.Upgrade
	purchases       map[string]purchase.Purchase
	entitlements    []purchase.Entitlement
	entitlementType map[string]purchase.EntitlementType // by name
	merchantCoupons map[string]coupon.MerchantCoupon
	coupons         map[string]coupon.Coupon

	now func() time.Time
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		products:        make(map[string]product.Product),
		prices:          make(map[string]product.Price),
		purchases:       make(map[string]purchase.Purchase),
		entitlementType: make(map[string]purchase.EntitlementType),
		merchantCoupons: make(map[string]coupon.MerchantCoupon),
		coupons:         make(map[string]coupon.Coupon),
		now:             time.Now,
	}
}

// GetProduct returns a product by id.
func (s *Store) GetProduct(_ context.Context, id string) (*product.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

// GetPriceForProduct returns the price of a product.
func (s *Store) GetPriceForProduct(_ context.Context, productID string) (*product.Price, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.prices[productID]
	if !ok {
		return nil, product.ErrPriceNotFound
	}
	return &p, nil
}

func (s *Store) GetUpgradableProducts(_ context.Context, fromID, toID string) ([]product.Upgrade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []product.Upgrade
	for _, u := range s.upgrades {
		if u.UpgradableFromID == fromID && u.UpgradableToID == toID {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *Store) AvailableUpgradesForProduct(_ context.Context, ps []purchase.Purchase, productID string) ([]product.Upgrade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []product.Upgrade
	for _, u := range s.upgrades {
		if u.UpgradableToID == productID && purchase.OwnsValid(ps, u.UpgradableFromID) {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *Store) PricesOfPurchasesTowardOneBundle(_ context.Context, userID, bundleID string) ([]product.Price, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		out  []product.Price
		seen = make(map[string]bool)
	)
	for _, u := range s.upgrades {
		if u.UpgradableToID != bundleID || seen[u.UpgradableFromID] {
			continue
		}
		if !s.ownsValidLocked(userID, u.UpgradableFromID) {
			continue
		}
		if p, ok := s.prices[u.UpgradableFromID]; ok {
			seen[u.UpgradableFromID] = true
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Store) ownsValidLocked(userID, productID string) bool {
	for _, p := range s.purchases {
		if p.UserID == userID && p.ProductID == productID && p.Status == purchase.StatusValid {
			return true
		}
	}
	return false
}

// GetPurchase returns a purchase by id.
func (s *Store) GetPurchase(_ context.Context, id string) (*purchase.Purchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.purchases[id]
	if !ok {
		return nil, purchase.ErrNotFound
	}
	return &p, nil
}

// GetPurchasesForUser returns the user's purchases, oldest first.
func (s *Store) GetPurchasesForUser(_ context.Context, userID string) ([]purchase.Purchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []purchase.Purchase
	for _, p := range s.purchases {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b purchase.Purchase) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (s *Store) GetEntitlementsForUser(_ context.Context, userID string) ([]purchase.Entitlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []purchase.Entitlement
	for _, e := range s.entitlements {
		if e.UserID == userID && e.DeletedAt == nil {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *Store) GetEntitlementTypeByName(_ context.Context, name string) (*purchase.EntitlementType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	et, ok := s.entitlementType[name]
	if !ok {
		return nil, purchase.ErrEntitlementTypeNotFound
	}
	return &et, nil
}

func (s *Store) GetMerchantCoupon(_ context.Context, id string) (*coupon.MerchantCoupon, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	mc, ok := s.merchantCoupons[id]
	if !ok {
		return nil, coupon.ErrNotFound
	}
	return &mc, nil
}

// GetCoupon looks a coupon up by id, then by case-insensitive code.
func (s *Store) GetCoupon(_ context.Context, idOrCode string) (*coupon.Coupon, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if c, ok := s.coupons[idOrCode]; ok {
		return &c, nil
	}
	for _, c := range s.coupons {
		if c.Code != "" && strings.EqualFold(c.Code, idOrCode) {
			return &c, nil
		}
	}
	return nil, coupon.ErrNotFound
}

// GetDefaultCoupon returns the active default coupon for productID, preferring
// coupons restricted to that product.
func (s *Store) GetDefaultCoupon(_ context.Context, productID string) (*coupon.Coupon, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	var found *coupon.Coupon
	for _, c := range s.coupons {
		if !c.Default || c.Status != coupon.StatusActive {
			continue
		}
		if c.Expires != nil && !c.Expires.After(now) {
			continue
		}
		switch c.RestrictedToProductID {
		case productID:
			return &c, nil
		case "":
			if found == nil {
				found = &c
			}
		}
	}
	if found == nil {
		return nil, coupon.ErrNotFound
	}
	return found, nil
}

func (s *Store) GetMerchantCouponsForTypeAndPercent(_ context.Context, t coupon.Type, percent decimal.Decimal) ([]coupon.MerchantCoupon, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []coupon.MerchantCoupon
	for _, mc := range s.merchantCoupons {
		if mc.Type == t && mc.Status == coupon.StatusActive &&
			mc.Discount.Kind() == coupon.KindPercentage && mc.Discount.Percent().Equal(percent) {
			out = append(out, mc)
		}
	}
	slices.SortFunc(out, func(a, b coupon.MerchantCoupon) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

func (s *Store) GetMerchantCouponForTypeAndAmount(_ context.Context, t coupon.Type, amount int64) (*coupon.MerchantCoupon, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if mc, ok := s.findByAmountLocked(t, amount); ok {
		return &mc, nil
	}
	return nil, coupon.ErrNotFound
}

// CreateMerchantCoupon stores mc. Stacked coupons are unique per amount: when
// one already exists it is returned and mc is discarded.
func (s *Store) CreateMerchantCoupon(_ context.Context, mc *coupon.MerchantCoupon) (*coupon.MerchantCoupon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if mc.Type == coupon.TypeStacked {
		if existing, ok := s.findByAmountLocked(coupon.TypeStacked, mc.Discount.AmountOff()); ok {
			return &existing, nil
		}
	}
	stored := *mc
	s.merchantCoupons[stored.ID] = stored
	return &stored, nil
}

func (s *Store) findByAmountLocked(t coupon.Type, amount int64) (coupon.MerchantCoupon, bool) {
	for _, mc := range s.merchantCoupons {
		if mc.Type == t && mc.Status == coupon.StatusActive &&
			mc.Discount.Kind() == coupon.KindFixed && mc.Discount.AmountOff() == amount {
			return mc, true
		}
	}
	return coupon.MerchantCoupon{}, false
}
