package pricing

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/course-pricing/internal/domain/coupon"
	"github.com/xenking/course-pricing/internal/domain/purchase"
)

// ResolveInput holds everything the resolver decides on.
type ResolveInput struct {
	ProductID string
	Quantity  int
	Country   string
	UserID    string
	// MerchantCouponID is an explicitly selected merchant coupon.
	MerchantCouponID string
	// UsedCouponID is a site coupon id or code, usually from a URL parameter.
	UsedCouponID   string
	UnitPrice      decimal.Decimal
	AutoApplyPPP   bool
	PreferStacking bool
	UpgradeFrom    *purchase.Purchase
	// Purchases of UserID. Loaded from the repository when nil.
	Purchases []purchase.Purchase
}

// Resolver picks the discount, or stack of discounts, for a purchase.
type Resolver struct {
	repo Repository
	opts options
}

// NewResolver creates a Resolver backed by repo.
func NewResolver(repo Repository, opts ...Option) *Resolver {
	return &Resolver{repo: repo, opts: newOptions(opts)}
}

// candidate is a special coupon competing with the automatic discounts.
type candidate struct {
	mc     *coupon.MerchantCoupon
	coupon *coupon.Coupon
	source Source
}

func (c *candidate) savings(unitPrice decimal.Decimal, qty int) decimal.Decimal {
	if c == nil {
		return decimal.Zero
	}
	return c.mc.Savings(unitPrice, qty)
}

func (c *candidate) stackable() bool {
	return c != nil && c.coupon.IsStackable()
}

func (c *candidate) usedCouponID() string {
	if c == nil || c.source != SourceUser || c.coupon == nil {
		return ""
	}
	return c.coupon.ID
}

// Resolve runs the discount decision for one purchase. Finding no discount is
// the ordinary DiscountTypeNone outcome, not an error.
func (r *Resolver) Resolve(ctx context.Context, in ResolveInput) (*Resolution, error) {
	ctx, span := r.opts.tracer.Start(ctx, "pricing.Resolve",
		trace.WithAttributes(
			attribute.String("product.id", in.ProductID),
			attribute.Int("quantity", in.Quantity),
		),
	)
	defer span.End()

	if in.ProductID == "" {
		return nil, validationError("product id is required")
	}
	qty := in.Quantity
	if qty <= 0 {
		qty = 1
	}
	pppPercent := r.opts.ppp.Percent(in.Country)

	var (
		explicit     *candidate
		fallback     *candidate
		purchases    = in.Purchases
		pppCoupons   []coupon.MerchantCoupon
		entitlements []purchase.Entitlement
		creditType   *purchase.EntitlementType
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		explicit, err = r.explicitCandidate(gctx, in)
		return err
	})
	g.Go(func() (err error) {
		fallback, err = r.defaultCandidate(gctx, in.ProductID)
		return err
	})
	if in.UserID != "" && purchases == nil {
		g.Go(func() (err error) {
			if purchases, err = r.repo.GetPurchasesForUser(gctx, in.UserID); err != nil {
				return errors.Wrap(err, "get purchases")
			}
			return nil
		})
	}
	if qty == 1 && pppPercent.IsPositive() {
		g.Go(func() (err error) {
			if pppCoupons, err = r.repo.GetMerchantCouponsForTypeAndPercent(gctx, coupon.TypePPP, pppPercent); err != nil {
				return errors.Wrap(err, "get ppp coupons")
			}
			return nil
		})
	}
	if in.UserID != "" {
		g.Go(func() (err error) {
			entitlements, creditType, err = r.loadEntitlements(gctx, in.UserID)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	hasValid := func(productID string) bool { return purchase.OwnsValid(purchases, productID) }
	userSelectedPPP := false
	if explicit != nil {
		switch explicit.mc.Type {
		case coupon.TypeSpecial:
			if !explicit.coupon.Eligible(hasValid) {
				explicit = nil
			}
		case coupon.TypePPP:
			userSelectedPPP = true
			explicit = nil
		case coupon.TypeBulk, coupon.TypeSpecialCredit, coupon.TypeStacked:
			explicit = nil
		}
	}
	if fallback != nil && (fallback.mc.Type != coupon.TypeSpecial || !fallback.coupon.Eligible(hasValid)) {
		fallback = nil
	}
	// An explicit merchant coupon that is the product default keeps the default source.
	if explicit != nil && fallback != nil && explicit.mc.ID == fallback.mc.ID {
		explicit = nil
	}

	special := explicit
	if special == nil || (fallback != nil && fallback.savings(in.UnitPrice, qty).GreaterThan(special.savings(in.UnitPrice, qty))) {
		special = fallback
	}

	existingSeats, err := r.existingSeats(ctx, purchases, in.ProductID)
	if err != nil {
		return nil, err
	}
	seats, bulk := BulkSeats(qty, existingSeats)

	var pppMC *coupon.MerchantCoupon
	if len(pppCoupons) > 0 {
		pppMC = &pppCoupons[0]
	}
	pppEligible := pppMC != nil && PPPEligible(PPPInput{
		ProductID:     in.ProductID,
		Quantity:      qty,
		Percent:       pppPercent,
		Purchases:     purchases,
		UpgradeFrom:   in.UpgradeFrom,
		ExistingSeats: existingSeats,
	})
	pppRequested := pppEligible && (in.AutoApplyPPP || userSelectedPPP)

	pppApplies := false
	if pppRequested {
		switch {
		case special == nil:
			pppApplies = true
		case special.source == SourceUser && special.mc.Discount.Kind() == coupon.KindPercentage:
		default:
			pppApplies = pppMC.Savings(in.UnitPrice, qty).GreaterThan(special.savings(in.UnitPrice, qty))
		}
	}

	var bulkMC *coupon.MerchantCoupon
	if bulk && !pppApplies {
		bulkMC, err = r.bulkCoupon(ctx, seats)
		if err != nil {
			return nil, err
		}
		if bulkMC != nil && special != nil && !bulkMC.Savings(in.UnitPrice, qty).GreaterThan(special.savings(in.UnitPrice, qty)) {
			bulkMC = nil
		}
	}

	var credits []StackableDiscount
	if !bulk && creditType != nil {
		credits, err = r.credits(ctx, entitlements, creditType.ID, in.ProductID)
		if err != nil {
			return nil, err
		}
	}

	res := &Resolution{
		Bulk:         bulk,
		Seats:        seats,
		StackingPath: StackingPathNone,
	}

	stackPreferred := in.PreferStacking && pppRequested && special != nil && special.source == SourceUser && special.stackable()
	if len(credits) > 0 || stackPreferred {
		c := StackCandidates{Credits: credits}
		if pppRequested {
			c.PPP = pppMC
		}
		if special != nil {
			c.Coupon = special.mc
			c.CouponSource = special.source
			c.CouponStackable = special.stackable()
		}
		res.StackableDiscounts = BuildStack(c)
		res.StackingPath = StackingPathStack
		res.AppliedDiscountType = DiscountTypeFixed
		res.AppliedCouponType = coupon.TypeStacked
		for _, s := range res.StackableDiscounts {
			if s.Source == SourceUser {
				res.UsedCouponID = special.usedCouponID()
				break
			}
		}
		if pppEligible && !pppRequested {
			res.AvailableCoupons = append(res.AvailableCoupons, *pppMC)
		}
		r.log(ctx, in, res)
		return res, nil
	}

	switch {
	case pppApplies:
		res.AppliedMerchantCoupon = pppMC
	case bulkMC != nil:
		res.AppliedMerchantCoupon = bulkMC
	case special != nil:
		res.AppliedMerchantCoupon = special.mc
		res.UsedCouponID = special.usedCouponID()
	}
	if pppEligible && !pppApplies {
		res.AvailableCoupons = append(res.AvailableCoupons, *pppMC)
	}
	if mc := res.AppliedMerchantCoupon; mc != nil {
		res.AppliedCouponType = mc.Type
	}
	res.AppliedDiscountType = discountTypeFor(res.AppliedMerchantCoupon)

	r.log(ctx, in, res)
	return res, nil
}

func (r *Resolver) log(ctx context.Context, in ResolveInput, res *Resolution) {
	zctx.From(ctx).Debug("Resolved discount",
		zap.String("product_id", in.ProductID),
		zap.Int("seats", res.Seats),
		zap.Bool("bulk", res.Bulk),
		zap.String("discount_type", string(res.AppliedDiscountType)),
		zap.String("stacking_path", string(res.StackingPath)),
		zap.Int("stacked", len(res.StackableDiscounts)),
	)
}

// explicitCandidate loads the coupon the buyer supplied, by site coupon first
// and merchant coupon second.
func (r *Resolver) explicitCandidate(ctx context.Context, in ResolveInput) (*candidate, error) {
	if in.UsedCouponID != "" {
		c, err := r.repo.GetCoupon(ctx, in.UsedCouponID)
		switch {
		case errors.Is(err, coupon.ErrNotFound):
		case err != nil:
			return nil, errors.Wrap(err, "get used coupon")
		case c.Redeemable(in.ProductID, r.opts.now()):
			mc, err := r.merchantCoupon(ctx, c.MerchantCouponID)
			if err != nil || mc != nil {
				return newCandidate(mc, c, SourceUser), err
			}
		}
	}
	if in.MerchantCouponID == "" {
		return nil, nil
	}
	mc, err := r.merchantCoupon(ctx, in.MerchantCouponID)
	if err != nil || mc == nil {
		return nil, err
	}
	return newCandidate(mc, nil, SourceUser), nil
}

func (r *Resolver) defaultCandidate(ctx context.Context, productID string) (*candidate, error) {
	c, err := r.repo.GetDefaultCoupon(ctx, productID)
	if errors.Is(err, coupon.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "get default coupon")
	}
	if !c.Redeemable(productID, r.opts.now()) {
		return nil, nil
	}
	mc, err := r.merchantCoupon(ctx, c.MerchantCouponID)
	if err != nil || mc == nil {
		return nil, err
	}
	return newCandidate(mc, c, SourceDefault), nil
}

// newCandidate labels a Default coupon as such however it was looked up.
func newCandidate(mc *coupon.MerchantCoupon, c *coupon.Coupon, src Source) *candidate {
	if mc == nil {
		return nil
	}
	if c != nil && c.Default {
		src = SourceDefault
	}
	return &candidate{mc: mc, coupon: c, source: src}
}

// merchantCoupon returns nil without error when the coupon does not exist.
func (r *Resolver) merchantCoupon(ctx context.Context, id string) (*coupon.MerchantCoupon, error) {
	mc, err := r.repo.GetMerchantCoupon(ctx, id)
	if errors.Is(err, coupon.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get merchant coupon %s", id)
	}
	if mc.Discount.IsZero() {
		return nil, errors.Wrapf(coupon.ErrMalformedDiscount, "merchant coupon %s", id)
	}
	return mc, nil
}

func (r *Resolver) loadEntitlements(ctx context.Context, userID string) ([]purchase.Entitlement, *purchase.EntitlementType, error) {
	et, err := r.repo.GetEntitlementTypeByName(ctx, purchase.EntitlementTypeSpecialCredit)
	if errors.Is(err, purchase.ErrEntitlementTypeNotFound) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, errors.Wrap(err, "get entitlement type")
	}
	es, err := r.repo.GetEntitlementsForUser(ctx, userID)
	if err != nil {
		return nil, nil, errors.Wrap(err, "get entitlements")
	}
	return es, et, nil
}

// existingSeats counts seats held in an active bulk purchase of productID.
func (r *Resolver) existingSeats(ctx context.Context, purchases []purchase.Purchase, productID string) (int, error) {
	p, ok := purchase.ActiveBulkFor(purchases, productID)
	if !ok {
		return 0, nil
	}
	c, err := r.repo.GetCoupon(ctx, p.BulkCouponID)
	if errors.Is(err, coupon.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "get bulk coupon")
	}
	return max(c.MaxUses, 0), nil
}

func (r *Resolver) bulkCoupon(ctx context.Context, seats int) (*coupon.MerchantCoupon, error) {
	percent := r.opts.tiers.Percent(seats)
	if !percent.IsPositive() {
		return nil, nil
	}
	mcs, err := r.repo.GetMerchantCouponsForTypeAndPercent(ctx, coupon.TypeBulk, percent)
	if err != nil {
		return nil, errors.Wrap(err, "get bulk coupons")
	}
	if len(mcs) == 0 {
		return nil, nil
	}
	return &mcs[0], nil
}

// credits resolves usable special-credit entitlements to stackable discounts.
func (r *Resolver) credits(ctx context.Context, es []purchase.Entitlement, typeID, productID string) ([]StackableDiscount, error) {
	var out []StackableDiscount
	for _, e := range purchase.CouponCredits(es, typeID, r.opts.now()) {
		c, err := r.repo.GetCoupon(ctx, e.SourceID)
		if errors.Is(err, coupon.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, errors.Wrapf(err, "get credit coupon %s", e.SourceID)
		}
		if c.RestrictedElsewhere(productID) {
			continue
		}
		mc, err := r.merchantCoupon(ctx, c.MerchantCouponID)
		if err != nil {
			return nil, err
		}
		if mc == nil {
			continue
		}
		out = append(out, StackableDiscount{
			Source:           SourceEntitlement,
			MerchantCouponID: mc.ID,
			Discount:         mc.Discount,
		})
	}
	return out, nil
}
