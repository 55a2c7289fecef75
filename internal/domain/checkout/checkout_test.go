package checkout

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/course-pricing/internal/domain/coupon"
	"github.com/xenking/course-pricing/internal/domain/pricing"
)

// --- Mock implementations ---

type mockProcessor struct {
	coupons   []CouponParams
	codes     []PromotionCodeParams
	couponErr error
	codeErr   error
}

func (m *mockProcessor) CreateCoupon(_ context.Context, p CouponParams) (string, error) {
	if m.couponErr != nil {
		return "", m.couponErr
	}
	m.coupons = append(m.coupons, p)
	return "co_" + p.Name, nil
}

func (m *mockProcessor) CreatePromotionCode(_ context.Context, p PromotionCodeParams) (*PromotionCode, error) {
	if m.codeErr != nil {
		return nil, m.codeErr
	}
	m.codes = append(m.codes, p)
	return &PromotionCode{ID: "promo_1", Code: "ONE-TIME"}, nil
}

type mockRepo struct {
	stacked map[int64]*coupon.MerchantCoupon
	created []*coupon.MerchantCoupon
}

func (m *mockRepo) GetMerchantCouponForTypeAndAmount(_ context.Context, t coupon.Type, amount int64) (*coupon.MerchantCoupon, error) {
	if t != coupon.TypeStacked {
		return nil, coupon.ErrNotFound
	}
	mc, ok := m.stacked[amount]
	if !ok {
		return nil, coupon.ErrNotFound
	}
	return mc, nil
}

func (m *mockRepo) CreateMerchantCoupon(_ context.Context, mc *coupon.MerchantCoupon) (*coupon.MerchantCoupon, error) {
	if m.stacked == nil {
		m.stacked = map[int64]*coupon.MerchantCoupon{}
	}
	m.created = append(m.created, mc)
	m.stacked[mc.Discount.AmountOff()] = mc
	return mc, nil
}

// --- Helpers ---

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func newMaterializer(t *testing.T, repo *mockRepo, proc *mockProcessor) *Materializer {
	t.Helper()
	m, err := NewMaterializer(repo, proc, WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	return m
}

func percentMC(id, p string) *coupon.MerchantCoupon {
	disc, err := coupon.Percentage(d(p))
	if err != nil {
		panic(err)
	}
	return &coupon.MerchantCoupon{ID: id, Type: coupon.TypeSpecial, Discount: disc, Identifier: "co_" + id}
}

func quote(full, calculated string) *pricing.Quote {
	return &pricing.Quote{
		ProductID:           "course",
		MerchantProductID:   "prod_course",
		Quantity:            1,
		UnitPrice:           d(full),
		FullPrice:           d(full),
		CalculatedPrice:     d(calculated),
		AppliedDiscountType: pricing.DiscountTypeNone,
		StackingPath:        pricing.StackingPathNone,
	}
}

func TestMaterialize_None(t *testing.T) {
	proc := &mockProcessor{}
	a, err := newMaterializer(t, &mockRepo{}, proc).Materialize(context.Background(), quote("100", "100"))
	require.NoError(t, err)

	assert.Equal(t, KindNone, a.Kind)
	assert.Empty(t, proc.coupons)
	assert.Empty(t, proc.codes)
}

func TestMaterialize_Fixed(t *testing.T) {
	t.Run("fixed coupon", func(t *testing.T) {
		q := quote("200", "120")
		q.AppliedDiscountType = pricing.DiscountTypeFixed
		q.AppliedFixedDiscount = d("80")

		proc := &mockProcessor{}
		a, err := newMaterializer(t, &mockRepo{}, proc).Materialize(context.Background(), q)
		require.NoError(t, err)

		assert.Equal(t, KindFixed, a.Kind)
		assert.Equal(t, int64(8000), a.AmountOff)
		require.Len(t, proc.coupons, 1)
		c := proc.coupons[0]
		assert.Equal(t, int64(8000), c.AmountOff)
		assert.Equal(t, "prod_course", c.ProductScope)
		assert.Equal(t, int64(1), c.MaxRedemptions)
		require.NotNil(t, c.RedeemBy)
		assert.Equal(t, now.Add(24*time.Hour), *c.RedeemBy)
		assert.Empty(t, proc.codes)
	})

	t.Run("upgrade credit", func(t *testing.T) {
		q := quote("200", "150")
		q.FixedDiscountForUpgrade = d("50")

		proc := &mockProcessor{}
		a, err := newMaterializer(t, &mockRepo{}, proc).Materialize(context.Background(), q)
		require.NoError(t, err)

		assert.Equal(t, KindFixed, a.Kind)
		assert.Equal(t, int64(5000), a.AmountOff)
	})
}

func TestMaterialize_Percentage(t *testing.T) {
	q := quote("200", "160")
	q.AppliedDiscountType = pricing.DiscountTypePPP
	q.AppliedMerchantCoupon = percentMC("ppp-20", "0.2")

	proc := &mockProcessor{}
	a, err := newMaterializer(t, &mockRepo{}, proc).Materialize(context.Background(), q)
	require.NoError(t, err)

	assert.Equal(t, KindPercentage, a.Kind)
	assert.Equal(t, "co_ppp-20", a.CouponID)
	assert.Equal(t, "ONE-TIME", a.PromotionCode)
	assert.Empty(t, proc.coupons)
	require.Len(t, proc.codes, 1)
	assert.Equal(t, PromotionCodeParams{CouponID: "co_ppp-20", MaxRedemptions: 1, ExpiresAt: now.Add(24 * time.Hour)}, proc.codes[0])
}

func TestMaterialize_Stacked(t *testing.T) {
	stackedQuote := func() *pricing.Quote {
		q := quote("200", "70")
		q.AppliedDiscountType = pricing.DiscountTypeFixed
		q.StackingPath = pricing.StackingPathStack
		return q
	}

	t.Run("creates once then reuses by amount", func(t *testing.T) {
		repo := &mockRepo{}
		proc := &mockProcessor{}
		m := newMaterializer(t, repo, proc)

		first, err := m.Materialize(context.Background(), stackedQuote())
		require.NoError(t, err)
		second, err := m.Materialize(context.Background(), stackedQuote())
		require.NoError(t, err)

		assert.Equal(t, KindStacked, first.Kind)
		assert.Equal(t, int64(13000), first.AmountOff)
		assert.Equal(t, first.CouponID, second.CouponID)
		assert.Len(t, proc.coupons, 1)
		assert.Len(t, proc.codes, 2)
		require.Len(t, repo.created, 1)
		assert.Equal(t, coupon.TypeStacked, repo.created[0].Type)
		assert.Equal(t, int64(13000), repo.created[0].Discount.AmountOff())
	})

	t.Run("credit with percentage", func(t *testing.T) {
		q := quote("200", "135")
		q.FixedDiscountForUpgrade = d("50")
		q.AppliedDiscountType = pricing.DiscountTypePercentage
		q.AppliedMerchantCoupon = percentMC("pct-10", "0.1")

		repo := &mockRepo{}
		a, err := newMaterializer(t, repo, &mockProcessor{}).Materialize(context.Background(), q)
		require.NoError(t, err)

		assert.Equal(t, KindStacked, a.Kind)
		assert.Equal(t, int64(6500), a.AmountOff)
	})
}

func TestMaterialize_ProcessorFailure(t *testing.T) {
	q := quote("200", "120")
	q.AppliedDiscountType = pricing.DiscountTypeFixed
	q.AppliedFixedDiscount = d("80")

	proc := &mockProcessor{couponErr: errors.New("card_declined")}
	_, err := newMaterializer(t, &mockRepo{}, proc).Materialize(context.Background(), q)

	var ce *CheckoutError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "create fixed coupon", ce.Op)

	q = quote("200", "160")
	q.AppliedDiscountType = pricing.DiscountTypePercentage
	q.AppliedMerchantCoupon = percentMC("pct-20", "0.2")
	_, err = newMaterializer(t, &mockRepo{}, &mockProcessor{codeErr: errors.New("rate limited")}).Materialize(context.Background(), q)
	assert.True(t, errors.As(err, &ce))
}

func TestMaterialize_DoesNotMutateQuote(t *testing.T) {
	q := quote("200", "70")
	q.AppliedDiscountType = pricing.DiscountTypeFixed
	q.StackingPath = pricing.StackingPathStack
	before := *q

	_, err := newMaterializer(t, &mockRepo{}, &mockProcessor{}).Materialize(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, before, *q)
}
