// Package stripe implements checkout.Processor on the Stripe API.
package stripe

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"

	"github.com/xenking/course-pricing/internal/domain/checkout"
)

type couponCreator interface {
	New(params *stripe.CouponParams) (*stripe.Coupon, error)
}

type promotionCodeCreator interface {
	New(params *stripe.PromotionCodeParams) (*stripe.PromotionCode, error)
}

// Processor creates coupons and promotion codes in Stripe.
type Processor struct {
	coupons  couponCreator
	codes    promotionCodeCreator
	currency stripe.Currency
}

var _ checkout.Processor = (*Processor)(nil)

// New creates a Processor for the given secret key. Amount-off coupons are
// created in currency.
func New(secretKey string, currency string, backends *stripe.Backends) *Processor {
	sc := client.New(secretKey, backends)
	return newProcessor(sc.Coupons, sc.PromotionCodes, currency)
}

func newProcessor(coupons couponCreator, codes promotionCodeCreator, currency string) *Processor {
	if currency == "" {
		currency = string(stripe.CurrencyUSD)
	}
	return &Processor{coupons: coupons, codes: codes, currency: stripe.Currency(currency)}
}

// CreateCoupon creates a one-time duration coupon.
func (p *Processor) CreateCoupon(ctx context.Context, cp checkout.CouponParams) (string, error) {
	params := &stripe.CouponParams{
		Duration: stripe.String(string(stripe.CouponDurationOnce)),
	}
	params.Context = ctx
	if cp.Name != "" {
		params.Name = stripe.String(cp.Name)
	}
	switch {
	case cp.AmountOff > 0 && cp.PercentOff.IsPositive():
		return "", errors.New("both amount and percent off set")
	case cp.AmountOff > 0:
		params.AmountOff = stripe.Int64(cp.AmountOff)
		params.Currency = stripe.String(string(p.currency))
	case cp.PercentOff.IsPositive():
		// Stripe expects 0-100.
		params.PercentOff = stripe.Float64(cp.PercentOff.Shift(2).InexactFloat64())
	default:
		return "", errors.New("no discount set")
	}
	if cp.ProductScope != "" {
		params.AppliesTo = &stripe.CouponAppliesToParams{
			Products: stripe.StringSlice([]string{cp.ProductScope}),
		}
	}
	if cp.MaxRedemptions > 0 {
		params.MaxRedemptions = stripe.Int64(cp.MaxRedemptions)
	}
	if cp.RedeemBy != nil {
		params.RedeemBy = stripe.Int64(cp.RedeemBy.Unix())
	}

	c, err := p.coupons.New(params)
	if err != nil {
		return "", errors.Wrap(err, "create stripe coupon")
	}
	return c.ID, nil
}

// CreatePromotionCode creates a redemption code for an existing coupon.
func (p *Processor) CreatePromotionCode(ctx context.Context, pp checkout.PromotionCodeParams) (*checkout.PromotionCode, error) {
	params := &stripe.PromotionCodeParams{
		Coupon: stripe.String(pp.CouponID),
	}
	params.Context = ctx
	if pp.MaxRedemptions > 0 {
		params.MaxRedemptions = stripe.Int64(pp.MaxRedemptions)
	}
	if !pp.ExpiresAt.IsZero() {
		params.ExpiresAt = stripe.Int64(pp.ExpiresAt.Unix())
	}

	pc, err := p.codes.New(params)
	if err != nil {
		return nil, errors.Wrap(err, "create stripe promotion code")
	}
	return &checkout.PromotionCode{ID: pc.ID, Code: pc.Code}, nil
}
