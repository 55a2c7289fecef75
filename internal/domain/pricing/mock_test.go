package pricing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/course-pricing/internal/domain/coupon"
	"github.com/xenking/course-pricing/internal/domain/product"
	"github.com/xenking/course-pricing/internal/domain/purchase"
)

// --- Mock repository ---

type mockRepo struct {
	products        map[string]*product.Product
	prices          map[string]*product.Price
	upgrades        []product.Upgrade
	bundlePrices    []product.Price
	purchases       map[string]*purchase.Purchase
	merchantCoupons map[string]*coupon.MerchantCoupon
	coupons         map[string]*coupon.Coupon
	entitlements    []purchase.Entitlement
	creditType      *purchase.EntitlementType
	getPurchaseErr  error
}

var _ Repository = (*mockRepo)(nil)

func newMockRepo() *mockRepo {
	return &mockRepo{
		products:        map[string]*product.Product{},
		prices:          map[string]*product.Price{},
		purchases:       map[string]*purchase.Purchase{},
		merchantCoupons: map[string]*coupon.MerchantCoupon{},
		coupons:         map[string]*coupon.Coupon{},
		creditType:      &purchase.EntitlementType{ID: "et-credit", Name: purchase.EntitlementTypeSpecialCredit},
	}
}

func (m *mockRepo) withProduct(id, unitAmount string) *mockRepo {
	m.products[id] = &product.Product{ID: id, Name: id, MerchantProductID: "prod_" + id}
	m.prices[id] = &product.Price{ID: "price-" + id, ProductID: id, UnitAmount: decimal.RequireFromString(unitAmount)}
	return m
}

func (m *mockRepo) withMerchantCoupon(mc coupon.MerchantCoupon) *mockRepo {
	m.merchantCoupons[mc.ID] = &mc
	return m
}

func (m *mockRepo) withCoupon(c coupon.Coupon) *mockRepo {
	if c.Status == 0 {
		c.Status = coupon.StatusActive
	}
	if c.MaxUses == 0 {
		c.MaxUses = coupon.UnlimitedUses
	}
	m.coupons[c.ID] = &c
	return m
}

func (m *mockRepo) withPurchase(p purchase.Purchase) *mockRepo {
	m.purchases[p.ID] = &p
	return m
}

func (m *mockRepo) withCredit(userID, couponID string) *mockRepo {
	m.entitlements = append(m.entitlements, purchase.Entitlement{
		ID:              "ent-" + couponID,
		UserID:          userID,
		EntitlementType: m.creditType.ID,
		SourceType:      purchase.SourceTypeCoupon,
		SourceID:        couponID,
	})
	return m
}

func (m *mockRepo) GetProduct(_ context.Context, id string) (*product.Product, error) {
	p, ok := m.products[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return p, nil
}

func (m *mockRepo) GetPriceForProduct(_ context.Context, productID string) (*product.Price, error) {
	p, ok := m.prices[productID]
	if !ok {
		return nil, product.ErrPriceNotFound
	}
	return p, nil
}

func (m *mockRepo) GetUpgradableProducts(_ context.Context, fromID, toID string) ([]product.Upgrade, error) {
	var out []product.Upgrade
	for _, u := range m.upgrades {
		if u.UpgradableFromID == fromID && u.UpgradableToID == toID {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *mockRepo) AvailableUpgradesForProduct(_ context.Context, ps []purchase.Purchase, productID string) ([]product.Upgrade, error) {
	var out []product.Upgrade
	for _, u := range m.upgrades {
		if u.UpgradableToID == productID && purchase.OwnsValid(ps, u.UpgradableFromID) {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *mockRepo) PricesOfPurchasesTowardOneBundle(_ context.Context, _, _ string) ([]product.Price, error) {
	return m.bundlePrices, nil
}

func (m *mockRepo) GetPurchase(_ context.Context, id string) (*purchase.Purchase, error) {
	if m.getPurchaseErr != nil {
		return nil, m.getPurchaseErr
	}
	p, ok := m.purchases[id]
	if !ok {
		return nil, purchase.ErrNotFound
	}
	return p, nil
}

func (m *mockRepo) GetPurchasesForUser(_ context.Context, userID string) ([]purchase.Purchase, error) {
	var out []purchase.Purchase
	for _, p := range m.purchases {
		if p.UserID == userID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *mockRepo) GetEntitlementsForUser(_ context.Context, userID string) ([]purchase.Entitlement, error) {
	var out []purchase.Entitlement
	for _, e := range m.entitlements {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockRepo) GetEntitlementTypeByName(_ context.Context, name string) (*purchase.EntitlementType, error) {
	if m.creditType == nil || m.creditType.Name != name {
		return nil, purchase.ErrEntitlementTypeNotFound
	}
	return m.creditType, nil
}

func (m *mockRepo) GetMerchantCoupon(_ context.Context, id string) (*coupon.MerchantCoupon, error) {
	mc, ok := m.merchantCoupons[id]
	if !ok {
		return nil, coupon.ErrNotFound
	}
	return mc, nil
}

func (m *mockRepo) GetCoupon(_ context.Context, idOrCode string) (*coupon.Coupon, error) {
	if c, ok := m.coupons[idOrCode]; ok {
		return c, nil
	}
	for _, c := range m.coupons {
		if c.Code != "" && c.Code == idOrCode {
			return c, nil
		}
	}
	return nil, coupon.ErrNotFound
}

// GetDefaultCoupon prefers a default restricted to the product over a site-wide one.
func (m *mockRepo) GetDefaultCoupon(_ context.Context, productID string) (*coupon.Coupon, error) {
	var siteWide *coupon.Coupon
	for _, c := range m.coupons {
		switch {
		case !c.Default:
		case c.RestrictedToProductID == productID:
			return c, nil
		case c.RestrictedToProductID == "":
			siteWide = c
		}
	}
	if siteWide == nil {
		return nil, coupon.ErrNotFound
	}
	return siteWide, nil
}

func (m *mockRepo) GetMerchantCouponsForTypeAndPercent(_ context.Context, t coupon.Type, percent decimal.Decimal) ([]coupon.MerchantCoupon, error) {
	var out []coupon.MerchantCoupon
	for _, mc := range m.merchantCoupons {
		if mc.Type == t && mc.Discount.Percent().Equal(percent) {
			out = append(out, *mc)
		}
	}
	return out, nil
}

func (m *mockRepo) GetMerchantCouponForTypeAndAmount(_ context.Context, t coupon.Type, amount int64) (*coupon.MerchantCoupon, error) {
	for _, mc := range m.merchantCoupons {
		if mc.Type == t && mc.Discount.AmountOff() == amount {
			return mc, nil
		}
	}
	return nil, coupon.ErrNotFound
}

func (m *mockRepo) CreateMerchantCoupon(_ context.Context, mc *coupon.MerchantCoupon) (*coupon.MerchantCoupon, error) {
	m.merchantCoupons[mc.ID] = mc
	return mc, nil
}

// --- Helpers ---

func percentCoupon(id string, t coupon.Type, p string) coupon.MerchantCoupon {
	disc, err := coupon.Percentage(decimal.RequireFromString(p))
	if err != nil {
		panic(err)
	}
	return coupon.MerchantCoupon{ID: id, Type: t, Discount: disc, Identifier: "stripe_" + id, Status: coupon.StatusActive}
}

func fixedCoupon(id string, t coupon.Type, amount int64) coupon.MerchantCoupon {
	disc, err := coupon.Fixed(amount)
	if err != nil {
		panic(err)
	}
	return coupon.MerchantCoupon{ID: id, Type: t, Discount: disc, Identifier: "stripe_" + id, Status: coupon.StatusActive}
}

func fixedClock() func() time.Time {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return now }
}
