package pricing

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/course-pricing/internal/domain/coupon"
	"github.com/xenking/course-pricing/internal/domain/product"
	"github.com/xenking/course-pricing/internal/domain/purchase"
)

// FormatInput is a price request for one product.
type FormatInput struct {
	ProductID             string
	UserID                string
	Country               string
	MerchantCouponID      string
	UsedCouponID          string
	UpgradeFromPurchaseID string
	// Quantity defaults to 1 when zero.
	Quantity       int
	AutoApplyPPP   bool
	PreferStacking bool
}

// Formatter builds price quotes.
type Formatter struct {
	repo     Repository
	resolver *Resolver
	metrics  *metrics
	opts     options
}

// NewFormatter creates a Formatter and its Resolver from the same options.
func NewFormatter(repo Repository, opts ...Option) (*Formatter, error) {
	o := newOptions(opts)
	m, err := newMetrics(o.meter)
	if err != nil {
		return nil, errors.Wrap(err, "create metrics")
	}
	return &Formatter{
		repo:     repo,
		resolver: &Resolver{repo: repo, opts: o},
		metrics:  m,
		opts:     o,
	}, nil
}

// FormatPrices loads the product and its price, works out the upgrade credit,
// resolves the discount and calculates the final price.
func (f *Formatter) FormatPrices(ctx context.Context, in FormatInput) (*Quote, error) {
	ctx, span := f.opts.tracer.Start(ctx, "pricing.FormatPrices",
		trace.WithAttributes(attribute.String("product.id", in.ProductID)),
	)
	defer span.End()

	if strings.TrimSpace(in.ProductID) == "" {
		return nil, validationError("productId is required")
	}
	if in.Quantity < 0 {
		return nil, validationError("quantity %d must not be negative", in.Quantity)
	}
	qty := max(in.Quantity, 1)

	prod, err := f.repo.GetProduct(ctx, in.ProductID)
	if errors.Is(err, product.ErrNotFound) {
		return nil, &PriceFormattingError{Options: in, Err: err}
	}
	if err != nil {
		return nil, errors.Wrap(err, "get product")
	}
	price, err := f.repo.GetPriceForProduct(ctx, in.ProductID)
	if errors.Is(err, product.ErrPriceNotFound) {
		return nil, &PriceFormattingError{Options: in, Err: err}
	}
	if err != nil {
		return nil, errors.Wrap(err, "get price")
	}

	var purchases []purchase.Purchase
	if in.UserID != "" {
		if purchases, err = f.repo.GetPurchasesForUser(ctx, in.UserID); err != nil {
			return nil, errors.Wrap(err, "get purchases")
		}
	}
	upgradeFrom, err := f.upgradeFrom(ctx, in, purchases)
	if err != nil {
		return nil, err
	}

	res, err := f.resolver.Resolve(ctx, ResolveInput{
		ProductID:        in.ProductID,
		Quantity:         qty,
		Country:          in.Country,
		UserID:           in.UserID,
		MerchantCouponID: in.MerchantCouponID,
		UsedCouponID:     in.UsedCouponID,
		UnitPrice:        price.UnitAmount,
		AutoApplyPPP:     in.AutoApplyPPP,
		PreferStacking:   in.PreferStacking,
		UpgradeFrom:      upgradeFrom,
		Purchases:        purchases,
	})
	if err != nil {
		return nil, errors.Wrap(err, "resolve discount")
	}

	credit := decimal.Zero
	if upgradeFrom != nil && !res.Bulk {
		if credit, err = f.upgradeCredit(ctx, in.UserID, upgradeFrom, in.ProductID); err != nil {
			return nil, err
		}
	}

	q := &Quote{
		ProductID:             prod.ID,
		MerchantProductID:     prod.MerchantProductID,
		Quantity:              qty,
		UnitPrice:             price.UnitAmount,
		FullPrice:             price.UnitAmount.Mul(decimal.NewFromInt(int64(qty))),
		AppliedMerchantCoupon: res.AppliedMerchantCoupon,
		AppliedDiscountType:   res.AppliedDiscountType,
		AvailableCoupons:      res.AvailableCoupons,
		Bulk:                  res.Bulk,
		Seats:                 res.Seats,
		UsedCouponID:          res.UsedCouponID,
		StackableDiscounts:    res.StackableDiscounts,
		StackingPath:          res.StackingPath,
	}
	params := PriceParams{UnitPrice: price.UnitAmount, Quantity: qty}

	switch {
	case q.StackingPath == StackingPathStack:
		amount := StackedAmount(res.StackableDiscounts, price.UnitAmount, qty, credit)
		params.AmountDiscount = amount
		q.AppliedFixedDiscount = decimal.NewFromInt(amount).Div(hundred)
	case q.AppliedDiscountType == DiscountTypeFixed:
		off := res.AppliedMerchantCoupon.Discount.Savings(price.UnitAmount, qty)
		if off.GreaterThan(credit) {
			credit = decimal.Zero
			params.AmountDiscount = toMinorUnits(off)
			q.AppliedFixedDiscount = off
		} else {
			// The upgrade credit wins and the coupon is dropped.
			q.AppliedMerchantCoupon = nil
			q.AppliedDiscountType = DiscountTypeNone
			q.UsedCouponID = ""
		}
	case res.AppliedMerchantCoupon != nil:
		params.PercentOfDiscount = res.AppliedMerchantCoupon.Discount.Percent()
	}

	params.FixedDiscount = credit
	q.FixedDiscountForUpgrade = credit
	if upgradeFrom != nil && credit.IsPositive() {
		q.UpgradeFromPurchaseID = upgradeFrom.ID
	}
	q.CalculatedPrice = CalculatePrice(params)

	f.metrics.recordQuote(ctx, q)
	zctx.From(ctx).Debug("Formatted prices",
		zap.String("product_id", q.ProductID),
		zap.Int("quantity", q.Quantity),
		zap.String("full_price", q.FullPrice.StringFixed(2)),
		zap.String("calculated_price", q.CalculatedPrice.StringFixed(2)),
		zap.String("discount_type", string(q.AppliedDiscountType)),
	)
	return q, nil
}

// AppliedPercent is the percentage of the single applied coupon, or zero.
func (q *Quote) AppliedPercent() decimal.Decimal {
	if q.AppliedMerchantCoupon == nil || q.AppliedMerchantCoupon.Discount.Kind() != coupon.KindPercentage {
		return decimal.Zero
	}
	return q.AppliedMerchantCoupon.Discount.Percent()
}
