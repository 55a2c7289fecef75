// Package fixture holds the demo course catalog used by seed-db and by
// in-memory runs of the API server.
package fixture

import (
	"context"
	"sort"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/course-pricing/internal/domain/coupon"
	"github.com/xenking/course-pricing/internal/domain/pricing"
	"github.com/xenking/course-pricing/internal/domain/product"
	"github.com/xenking/course-pricing/internal/domain/purchase"
)

// Seeder is the write side of a catalog store.
type Seeder interface {
	UpsertProduct(ctx context.Context, p product.Product) error
	UpsertPrice(ctx context.Context, p product.Price) error
	UpsertUpgrade(ctx context.Context, u product.Upgrade) error
	UpsertMerchantCoupon(ctx context.Context, mc coupon.MerchantCoupon) error
	UpsertCoupon(ctx context.Context, c coupon.Coupon) error
	InsertPurchase(ctx context.Context, p purchase.Purchase) error
	UpsertEntitlementType(ctx context.Context, et purchase.EntitlementType) (*purchase.EntitlementType, error)
	InsertEntitlement(ctx context.Context, e purchase.Entitlement) error
}

// Catalog is a complete set of rows to seed.
type Catalog struct {
	Products        []product.Product
	Prices          []product.Price
	Upgrades        []product.Upgrade
	MerchantCoupons []coupon.MerchantCoupon
	Coupons         []coupon.Coupon
	Purchases       []purchase.Purchase
	// Credits are granted to users as apply_special_credit entitlements.
	Credits []purchase.Entitlement
}

// Demo user ids.
const (
	UserOwnsBasics = "user-basics"
	UserRestricted = "user-restricted"
	UserTeam       = "user-team"
	UserCredit     = "user-credit"
)

// Demo returns the demo catalog. One PPP merchant coupon is generated per
// distinct percentage in ppp and one bulk merchant coupon per tier.
func Demo(ppp pricing.PPPTable, tiers pricing.BulkTiers) (Catalog, error) {
	c := Catalog{
		Products: []product.Product{
			{ID: "basics", Name: "Go Basics", Type: "self-paced", Status: 1, MerchantProductID: "prod_basics"},
			{ID: "advanced", Name: "Advanced Go", Type: "self-paced", Status: 1, MerchantProductID: "prod_advanced"},
			{ID: "bundle", Name: "Go Complete Bundle", Type: "self-paced", Status: 1, MerchantProductID: "prod_bundle"},
		},
		Prices: []product.Price{
			{ID: "price-basics", ProductID: "basics", UnitAmount: decimal.NewFromInt(100)},
			{ID: "price-advanced", ProductID: "advanced", UnitAmount: decimal.NewFromInt(200)},
			{ID: "price-bundle", ProductID: "bundle", UnitAmount: decimal.NewFromInt(250)},
		},
		Upgrades: []product.Upgrade{
			{UpgradableFromID: "basics", UpgradableToID: "bundle"},
			{UpgradableFromID: "advanced", UpgradableToID: "bundle"},
		},
	}

	special := []struct {
		id       string
		percent  string
		amount   int64
		code     string
		def      bool
		restrict string
		typ      coupon.Type
	}{
		{id: "launch-20", percent: "0.2", code: "LAUNCH20", typ: coupon.TypeSpecial},
		{id: "fifty-off", amount: 5000, code: "FIFTY", typ: coupon.TypeSpecial},
		{id: "advanced-sale", percent: "0.25", def: true, restrict: "advanced", typ: coupon.TypeSpecial},
		{id: "credit-25", amount: 2500, typ: coupon.TypeSpecialCredit},
	}
	for _, s := range special {
		var (
			disc coupon.Discount
			err  error
		)
		if s.amount > 0 {
			disc, err = coupon.Fixed(s.amount)
		} else {
			disc, err = coupon.Percentage(decimal.RequireFromString(s.percent))
		}
		if err != nil {
			return Catalog{}, errors.Wrapf(err, "coupon %s", s.id)
		}
		c.MerchantCoupons = append(c.MerchantCoupons, coupon.MerchantCoupon{
			ID: "mc-" + s.id, Type: s.typ, Discount: disc, Identifier: s.id, Status: coupon.StatusActive,
		})
		c.Coupons = append(c.Coupons, coupon.Coupon{
			ID: s.id, Code: s.code, MerchantCouponID: "mc-" + s.id, Default: s.def,
			MaxUses: coupon.UnlimitedUses, RestrictedToProductID: s.restrict, Status: coupon.StatusActive,
		})
	}

	pppMCs, err := pppCoupons(ppp)
	if err != nil {
		return Catalog{}, err
	}
	c.MerchantCoupons = append(c.MerchantCoupons, pppMCs...)

	bulkMCs, err := bulkCoupons(tiers)
	if err != nil {
		return Catalog{}, err
	}
	c.MerchantCoupons = append(c.MerchantCoupons, bulkMCs...)

	// Seats of the demo team purchase live on its bulk coupon.
	if len(bulkMCs) > 0 {
		c.Coupons = append(c.Coupons, coupon.Coupon{
			ID: "team-seats", MerchantCouponID: bulkMCs[0].ID, MaxUses: 5,
			RestrictedToProductID: "advanced", Status: coupon.StatusActive,
		})
		c.Purchases = append(c.Purchases, purchase.Purchase{
			ID: "pur-team", UserID: UserTeam, ProductID: "advanced", Status: purchase.StatusValid,
			TotalAmount: decimal.NewFromInt(950), BulkCouponID: "team-seats",
		})
	}

	c.Purchases = append(c.Purchases,
		purchase.Purchase{
			ID: "pur-basics", UserID: UserOwnsBasics, ProductID: "basics",
			Status: purchase.StatusValid, TotalAmount: decimal.NewFromInt(100),
		},
		purchase.Purchase{
			ID: "pur-restricted", UserID: UserRestricted, ProductID: "basics",
			Status: purchase.StatusRestricted, TotalAmount: decimal.NewFromInt(40), Country: "IN",
		},
	)
	c.Credits = []purchase.Entitlement{{
		ID: "ent-credit", UserID: UserCredit, SourceType: purchase.SourceTypeCoupon, SourceID: "credit-25",
	}}

	return c, nil
}

func pppCoupons(ppp pricing.PPPTable) ([]coupon.MerchantCoupon, error) {
	seen := make(map[string]decimal.Decimal)
	for _, pct := range ppp {
		seen[pct.String()] = pct
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]coupon.MerchantCoupon, 0, len(keys))
	for _, k := range keys {
		disc, err := coupon.Percentage(seen[k])
		if err != nil {
			return nil, errors.Wrapf(err, "ppp coupon %s", k)
		}
		id := "ppp-" + strings.TrimPrefix(k, "0.")
		out = append(out, coupon.MerchantCoupon{
			ID: id, Type: coupon.TypePPP, Discount: disc, Identifier: id, Status: coupon.StatusActive,
		})
	}
	return out, nil
}

func bulkCoupons(tiers pricing.BulkTiers) ([]coupon.MerchantCoupon, error) {
	out := make([]coupon.MerchantCoupon, 0, len(tiers))
	for _, tier := range tiers {
		if tier.Percent.IsZero() {
			continue
		}
		disc, err := coupon.Percentage(tier.Percent)
		if err != nil {
			return nil, errors.Wrapf(err, "bulk tier %d", tier.MinSeats)
		}
		id := "bulk-" + strings.TrimPrefix(tier.Percent.String(), "0.")
		out = append(out, coupon.MerchantCoupon{
			ID: id, Type: coupon.TypeBulk, Discount: disc, Identifier: id, Status: coupon.StatusActive,
		})
	}
	return out, nil
}

// Load writes c into s in dependency order.
func Load(ctx context.Context, s Seeder, c Catalog) error {
	for _, p := range c.Products {
		if err := s.UpsertProduct(ctx, p); err != nil {
			return errors.Wrapf(err, "product %s", p.ID)
		}
	}
	for _, p := range c.Prices {
		if err := s.UpsertPrice(ctx, p); err != nil {
			return errors.Wrapf(err, "price %s", p.ID)
		}
	}
	for _, u := range c.Upgrades {
		if err := s.UpsertUpgrade(ctx, u); err != nil {
			return errors.Wrapf(err, "upgrade %s -> %s", u.UpgradableFromID, u.UpgradableToID)
		}
	}
	for _, mc := range c.MerchantCoupons {
		if err := s.UpsertMerchantCoupon(ctx, mc); err != nil {
			return errors.Wrapf(err, "merchant coupon %s", mc.ID)
		}
	}
	for _, cp := range c.Coupons {
		if err := s.UpsertCoupon(ctx, cp); err != nil {
			return errors.Wrapf(err, "coupon %s", cp.ID)
		}
	}
	for _, p := range c.Purchases {
		if err := s.InsertPurchase(ctx, p); err != nil {
			return errors.Wrapf(err, "purchase %s", p.ID)
		}
	}
	if len(c.Credits) == 0 {
		return nil
	}

	et, err := s.UpsertEntitlementType(ctx, purchase.EntitlementType{
		ID: "et-special-credit", Name: purchase.EntitlementTypeSpecialCredit,
	})
	if err != nil {
		return errors.Wrap(err, "entitlement type")
	}
	for _, e := range c.Credits {
		e.EntitlementType = et.ID
		if err := s.InsertEntitlement(ctx, e); err != nil {
			return errors.Wrapf(err, "entitlement %s", e.ID)
		}
	}
	return nil
}
