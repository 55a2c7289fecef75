package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/course-pricing/internal/domain/coupon"
	"github.com/xenking/course-pricing/internal/domain/pricing"
)

// DefaultCodeTTL is how long minted coupons and codes stay redeemable.
const DefaultCodeTTL = 24 * time.Hour

var hundred = decimal.NewFromInt(100)

// Kind is the shape of the artifact handed to the processor checkout.
type Kind string

const (
	KindNone       Kind = "none"
	KindFixed      Kind = "fixed"
	KindPercentage Kind = "percentage"
	KindStacked    Kind = "stacked"
)

// Artifact is the single redeemable discount for one checkout.
type Artifact struct {
	Kind Kind
	// CouponID is the processor coupon id.
	CouponID        string
	PromotionCodeID string
	PromotionCode   string
	// AmountOff in minor units, for fixed and stacked artifacts.
	AmountOff        int64
	MerchantCouponID string
}

// CheckoutError is returned when the payment processor rejects a request.
type CheckoutError struct {
	Op  string
	Err error
}

func (e *CheckoutError) Error() string {
	return fmt.Sprintf("checkout %s: %v", e.Op, e.Err)
}

func (e *CheckoutError) Unwrap() error {
	return e.Err
}

// Repository is the write path the materializer needs.
type Repository interface {
	GetMerchantCouponForTypeAndAmount(ctx context.Context, t coupon.Type, amount int64) (*coupon.MerchantCoupon, error)
	CreateMerchantCoupon(ctx context.Context, mc *coupon.MerchantCoupon) (*coupon.MerchantCoupon, error)
}

// Option configures a Materializer.
type Option func(*Materializer)

// WithCodeTTL sets the lifetime of minted coupons and codes.
func WithCodeTTL(ttl time.Duration) Option {
	return func(m *Materializer) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Materializer) { m.now = now }
}

// WithTracerProvider sets the tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(m *Materializer) { m.tracer = tp.Tracer("checkout") }
}

// WithMeterProvider sets the meter provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(m *Materializer) { m.meter = mp.Meter("checkout") }
}

// Materializer turns a priced quote into one processor-redeemable discount.
type Materializer struct {
	repo      Repository
	processor Processor
	ttl       time.Duration
	now       func() time.Time
	tracer    trace.Tracer
	meter     metric.Meter
	artifacts metric.Int64Counter
}

// NewMaterializer creates a Materializer.
func NewMaterializer(repo Repository, processor Processor, opts ...Option) (*Materializer, error) {
	m := &Materializer{
		repo:      repo,
		processor: processor,
		ttl:       DefaultCodeTTL,
		now:       time.Now,
		tracer:    tracenoop.NewTracerProvider().Tracer("checkout"),
		meter:     metricnoop.NewMeterProvider().Meter("checkout"),
	}
	for _, opt := range opts {
		opt(m)
	}
	var err error
	if m.artifacts, err = m.meter.Int64Counter("checkout.artifacts",
		metric.WithDescription("Discount artifacts created for checkouts"),
	); err != nil {
		return nil, errors.Wrap(err, "create counter")
	}
	return m, nil
}

// Materialize creates the processor objects for q. It never changes q.
func (m *Materializer) Materialize(ctx context.Context, q *pricing.Quote) (*Artifact, error) {
	ctx, span := m.tracer.Start(ctx, "checkout.Materialize",
		trace.WithAttributes(
			attribute.String("product.id", q.ProductID),
			attribute.String("discount_type", string(q.AppliedDiscountType)),
		),
	)
	defer span.End()

	var (
		a   *Artifact
		err error
	)
	credit := q.FixedDiscountForUpgrade.IsPositive()
	switch {
	case q.StackingPath == pricing.StackingPathStack,
		credit && q.AppliedPercent().IsPositive():
		a, err = m.stacked(ctx, minorUnits(q.Discounted()))
	case q.AppliedDiscountType == pricing.DiscountTypeFixed:
		a, err = m.fixed(ctx, q, minorUnits(q.AppliedFixedDiscount))
	case credit && q.AppliedDiscountType == pricing.DiscountTypeNone:
		a, err = m.fixed(ctx, q, minorUnits(decimal.Min(q.FixedDiscountForUpgrade, q.FullPrice)))
	case q.AppliedMerchantCoupon != nil && q.AppliedPercent().IsPositive():
		a, err = m.percentage(ctx, q.AppliedMerchantCoupon)
	default:
		a = &Artifact{Kind: KindNone}
	}
	if err != nil {
		return nil, err
	}

	m.artifacts.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", string(a.Kind))))
	zctx.From(ctx).Info("Materialized discount",
		zap.String("product_id", q.ProductID),
		zap.String("kind", string(a.Kind)),
		zap.String("coupon_id", a.CouponID),
		zap.Int64("amount_off", a.AmountOff),
	)
	return a, nil
}

// fixed mints a single-use amount-off coupon scoped to the product.
func (m *Materializer) fixed(ctx context.Context, q *pricing.Quote, amount int64) (*Artifact, error) {
	if amount <= 0 {
		return &Artifact{Kind: KindNone}, nil
	}
	redeemBy := m.now().Add(m.ttl)
	id, err := m.processor.CreateCoupon(ctx, CouponParams{
		Name:           fmt.Sprintf("%s off %s", formatMinor(amount), q.ProductID),
		AmountOff:      amount,
		ProductScope:   q.MerchantProductID,
		MaxRedemptions: 1,
		RedeemBy:       &redeemBy,
	})
	if err != nil {
		return nil, &CheckoutError{Op: "create fixed coupon", Err: err}
	}
	return &Artifact{Kind: KindFixed, CouponID: id, AmountOff: amount}, nil
}

// percentage reuses the merchant coupon and mints a one-time code for it.
func (m *Materializer) percentage(ctx context.Context, mc *coupon.MerchantCoupon) (*Artifact, error) {
	if mc.Identifier == "" {
		return nil, &CheckoutError{
			Op:  "create promotion code",
			Err: errors.Errorf("merchant coupon %s has no processor identifier", mc.ID),
		}
	}
	code, err := m.promotionCode(ctx, mc.Identifier)
	if err != nil {
		return nil, err
	}
	return &Artifact{
		Kind:             KindPercentage,
		CouponID:         mc.Identifier,
		PromotionCodeID:  code.ID,
		PromotionCode:    code.Code,
		MerchantCouponID: mc.ID,
	}, nil
}

// stacked finds or creates the reusable coupon for amount and mints a code.
func (m *Materializer) stacked(ctx context.Context, amount int64) (*Artifact, error) {
	if amount <= 0 {
		return &Artifact{Kind: KindNone}, nil
	}

	mc, err := m.repo.GetMerchantCouponForTypeAndAmount(ctx, coupon.TypeStacked, amount)
	switch {
	case errors.Is(err, coupon.ErrNotFound):
		if mc, err = m.createStacked(ctx, amount); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, errors.Wrap(err, "get stacked coupon")
	}

	code, err := m.promotionCode(ctx, mc.Identifier)
	if err != nil {
		return nil, err
	}
	return &Artifact{
		Kind:             KindStacked,
		CouponID:         mc.Identifier,
		PromotionCodeID:  code.ID,
		PromotionCode:    code.Code,
		AmountOff:        amount,
		MerchantCouponID: mc.ID,
	}, nil
}

func (m *Materializer) createStacked(ctx context.Context, amount int64) (*coupon.MerchantCoupon, error) {
	disc, err := coupon.Fixed(amount)
	if err != nil {
		return nil, err
	}
	id, err := m.processor.CreateCoupon(ctx, CouponParams{
		Name:      "Stacked " + formatMinor(amount),
		AmountOff: amount,
	})
	if err != nil {
		return nil, &CheckoutError{Op: "create stacked coupon", Err: err}
	}

	// A concurrent checkout may have stored the same amount first; the stored row wins.
	mc, err := m.repo.CreateMerchantCoupon(ctx, &coupon.MerchantCoupon{
		ID:         uuid.NewString(),
		Type:       coupon.TypeStacked,
		Discount:   disc,
		Identifier: id,
		Status:     coupon.StatusActive,
	})
	if err != nil {
		return nil, errors.Wrap(err, "save stacked coupon")
	}
	return mc, nil
}

func (m *Materializer) promotionCode(ctx context.Context, couponID string) (*PromotionCode, error) {
	code, err := m.processor.CreatePromotionCode(ctx, PromotionCodeParams{
		CouponID:       couponID,
		MaxRedemptions: 1,
		ExpiresAt:      m.now().Add(m.ttl),
	})
	if err != nil {
		return nil, &CheckoutError{Op: "create promotion code", Err: err}
	}
	return code, nil
}

func minorUnits(d decimal.Decimal) int64 {
	return d.Mul(hundred).Round(0).IntPart()
}

func formatMinor(amount int64) string {
	return "$" + decimal.New(amount, -2).StringFixed(2)
}
