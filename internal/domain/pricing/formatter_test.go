package pricing

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/course-pricing/internal/domain/coupon"
	"github.com/xenking/course-pricing/internal/domain/product"
	"github.com/xenking/course-pricing/internal/domain/purchase"
)

func format(t *testing.T, repo *mockRepo, in FormatInput, opts ...Option) *Quote {
	t.Helper()
	q, err := newFormatter(t, repo, opts...).FormatPrices(context.Background(), in)
	require.NoError(t, err)
	return q
}

func newFormatter(t *testing.T, repo *mockRepo, opts ...Option) *Formatter {
	t.Helper()
	f, err := NewFormatter(repo, append([]Option{WithClock(fixedClock())}, opts...)...)
	require.NoError(t, err)
	return f
}

func TestFormatPrices_Validation(t *testing.T) {
	f := newFormatter(t, newMockRepo().withProduct("course", "100"))

	t.Run("missing product id", func(t *testing.T) {
		_, err := f.FormatPrices(context.Background(), FormatInput{})
		assert.True(t, errors.Is(err, ErrValidation))
	})

	t.Run("negative quantity", func(t *testing.T) {
		_, err := f.FormatPrices(context.Background(), FormatInput{ProductID: "course", Quantity: -1})
		assert.True(t, errors.Is(err, ErrValidation))
	})

	t.Run("unknown product", func(t *testing.T) {
		_, err := f.FormatPrices(context.Background(), FormatInput{ProductID: "missing", Country: "IN"})
		var pfe *PriceFormattingError
		require.True(t, errors.As(err, &pfe))
		assert.Equal(t, "missing", pfe.Options.ProductID)
		assert.Equal(t, "IN", pfe.Options.Country)
		assert.True(t, errors.Is(err, product.ErrNotFound))
	})

	t.Run("product without price", func(t *testing.T) {
		repo := newMockRepo().withProduct("course", "100")
		delete(repo.prices, "course")
		_, err := newFormatter(t, repo).FormatPrices(context.Background(), FormatInput{ProductID: "course"})
		var pfe *PriceFormattingError
		require.True(t, errors.As(err, &pfe))
		assert.True(t, errors.Is(err, product.ErrPriceNotFound))
	})
}

func TestFormatPrices(t *testing.T) {
	q := format(t, newMockRepo().withProduct("course", "100"), FormatInput{ProductID: "course"})

	assert.Equal(t, 1, q.Quantity)
	assert.True(t, q.UnitPrice.Equal(d("100")))
	assert.True(t, q.FullPrice.Equal(d("100")))
	assert.True(t, q.CalculatedPrice.Equal(d("100")))
	assert.Equal(t, DiscountTypeNone, q.AppliedDiscountType)
	assert.Equal(t, "prod_course", q.MerchantProductID)
}

func TestFormatPrices_RoundTrip(t *testing.T) {
	repo := newMockRepo().
		withProduct("course", "150").
		withMerchantCoupon(percentCoupon("default-40", coupon.TypeSpecial, "0.4")).
		withMerchantCoupon(fixedCoupon("fixed-100", coupon.TypeSpecial, 10000)).
		withCoupon(coupon.Coupon{ID: "site-default", MerchantCouponID: "default-40", Default: true}).
		withCoupon(coupon.Coupon{ID: "c-100", Code: "HUNDRED", MerchantCouponID: "fixed-100"})

	without := format(t, repo, FormatInput{ProductID: "course"})
	assert.True(t, without.CalculatedPrice.Equal(d("90")), without.CalculatedPrice.String())

	with := format(t, repo, FormatInput{ProductID: "course", UsedCouponID: "HUNDRED"})
	assert.Equal(t, DiscountTypeFixed, with.AppliedDiscountType)
	assert.True(t, with.CalculatedPrice.Equal(d("50")), with.CalculatedPrice.String())
	assert.True(t, with.AppliedFixedDiscount.Equal(d("100")))
	assert.Equal(t, "c-100", with.UsedCouponID)
}

func TestFormatPrices_Bulk(t *testing.T) {
	repo := newMockRepo().
		withProduct("course", "100").
		withMerchantCoupon(percentCoupon("bulk-15", coupon.TypeBulk, "0.15")).
		withMerchantCoupon(fixedCoupon("fixed-20", coupon.TypeSpecial, 2000))

	q := format(t, repo, FormatInput{ProductID: "course", Quantity: 5})
	assert.Equal(t, DiscountTypeBulk, q.AppliedDiscountType)
	assert.True(t, q.FullPrice.Equal(d("500")))
	assert.True(t, q.CalculatedPrice.Equal(d("425")))

	q = format(t, repo, FormatInput{ProductID: "course", Quantity: 5, MerchantCouponID: "fixed-20"})
	assert.Equal(t, DiscountTypeFixed, q.AppliedDiscountType)
	assert.True(t, q.CalculatedPrice.Equal(d("400")))
}

func TestFormatPrices_PPP(t *testing.T) {
	repo := newMockRepo().
		withProduct("course", "200").
		withMerchantCoupon(percentCoupon("ppp-60", coupon.TypePPP, "0.6"))

	q := format(t, repo, FormatInput{ProductID: "course", Country: "in", AutoApplyPPP: true})
	assert.Equal(t, DiscountTypePPP, q.AppliedDiscountType)
	assert.True(t, q.CalculatedPrice.Equal(d("80")))

	q = format(t, repo, FormatInput{ProductID: "course", Country: "IN"})
	assert.Equal(t, DiscountTypeNone, q.AppliedDiscountType)
	assert.Len(t, q.AvailableCoupons, 1)
	assert.True(t, q.CalculatedPrice.Equal(d("200")))
}

func TestFormatPrices_UpgradeCredit(t *testing.T) {
	t.Run("restricted purchase of the same product", func(t *testing.T) {
		repo := newMockRepo().
			withProduct("course", "300").
			withPurchase(purchase.Purchase{ID: "p1", UserID: "u1", ProductID: "starter", Status: purchase.StatusValid, TotalAmount: d("40")}).
			withPurchase(purchase.Purchase{ID: "p2", UserID: "u1", ProductID: "course", Status: purchase.StatusRestricted, TotalAmount: d("60"), UpgradedFromID: "p1"})

		q := format(t, repo, FormatInput{ProductID: "course", UserID: "u1"})
		assert.True(t, q.FixedDiscountForUpgrade.Equal(d("100")))
		assert.True(t, q.CalculatedPrice.Equal(d("200")))
		assert.Equal(t, "p2", q.UpgradeFromPurchaseID)
	})

	t.Run("upgradable product", func(t *testing.T) {
		repo := newMockRepo().
			withProduct("bundle", "500").
			withPurchase(purchase.Purchase{ID: "p1", UserID: "u1", ProductID: "starter", Status: purchase.StatusValid})
		repo.upgrades = []product.Upgrade{{UpgradableFromID: "starter", UpgradableToID: "bundle"}}
		repo.bundlePrices = []product.Price{{ProductID: "starter", UnitAmount: d("120")}, {ProductID: "extra", UnitAmount: d("30")}}

		q := format(t, repo, FormatInput{ProductID: "bundle", UserID: "u1"})
		assert.True(t, q.FixedDiscountForUpgrade.Equal(d("150")))
		assert.True(t, q.CalculatedPrice.Equal(d("350")))
		assert.Equal(t, "p1", q.UpgradeFromPurchaseID)
	})

	t.Run("explicit purchase of another user", func(t *testing.T) {
		repo := newMockRepo().
			withProduct("course", "300").
			withPurchase(purchase.Purchase{ID: "p1", UserID: "u2", ProductID: "course", Status: purchase.StatusRestricted})

		_, err := newFormatter(t, repo).FormatPrices(context.Background(), FormatInput{
			ProductID: "course", UserID: "u1", UpgradeFromPurchaseID: "p1",
		})
		assert.True(t, errors.Is(err, ErrValidation))
	})

	t.Run("clamped at zero", func(t *testing.T) {
		repo := newMockRepo().
			withProduct("course", "50").
			withPurchase(purchase.Purchase{ID: "p1", UserID: "u1", ProductID: "course", Status: purchase.StatusRestricted, TotalAmount: d("100")})

		q := format(t, repo, FormatInput{ProductID: "course", UserID: "u1"})
		assert.True(t, q.CalculatedPrice.Equal(d("0")))
	})

	t.Run("not applied to bulk", func(t *testing.T) {
		repo := newMockRepo().
			withProduct("course", "100").
			withPurchase(purchase.Purchase{ID: "p1", UserID: "u1", ProductID: "course", Status: purchase.StatusRestricted, TotalAmount: d("40")})

		q := format(t, repo, FormatInput{ProductID: "course", UserID: "u1", Quantity: 3})
		assert.True(t, q.FixedDiscountForUpgrade.IsZero())
		assert.True(t, q.CalculatedPrice.Equal(d("300")))
	})
}

func TestFormatPrices_CreditAgainstCoupon(t *testing.T) {
	setup := func(mc coupon.MerchantCoupon) *mockRepo {
		return newMockRepo().
			withProduct("course", "200").
			withMerchantCoupon(mc).
			withCoupon(coupon.Coupon{ID: "c1", Code: "CODE", MerchantCouponID: mc.ID}).
			withPurchase(purchase.Purchase{ID: "p1", UserID: "u1", ProductID: "course", Status: purchase.StatusRestricted, TotalAmount: d("50")})
	}

	t.Run("larger fixed coupon replaces credit", func(t *testing.T) {
		q := format(t, setup(fixedCoupon("fixed-80", coupon.TypeSpecial, 8000)), FormatInput{ProductID: "course", UserID: "u1", UsedCouponID: "CODE"})

		assert.Equal(t, DiscountTypeFixed, q.AppliedDiscountType)
		assert.True(t, q.FixedDiscountForUpgrade.IsZero())
		assert.True(t, q.CalculatedPrice.Equal(d("120")))
	})

	t.Run("larger credit replaces fixed coupon", func(t *testing.T) {
		q := format(t, setup(fixedCoupon("fixed-30", coupon.TypeSpecial, 3000)), FormatInput{ProductID: "course", UserID: "u1", UsedCouponID: "CODE"})

		assert.Equal(t, DiscountTypeNone, q.AppliedDiscountType)
		assert.Nil(t, q.AppliedMerchantCoupon)
		assert.Empty(t, q.UsedCouponID)
		assert.True(t, q.FixedDiscountForUpgrade.Equal(d("50")))
		assert.True(t, q.CalculatedPrice.Equal(d("150")))
	})

	t.Run("tie keeps the credit", func(t *testing.T) {
		q := format(t, setup(fixedCoupon("fixed-50", coupon.TypeSpecial, 5000)), FormatInput{ProductID: "course", UserID: "u1", UsedCouponID: "CODE"})

		assert.Equal(t, DiscountTypeNone, q.AppliedDiscountType)
		assert.True(t, q.CalculatedPrice.Equal(d("150")))
	})

	t.Run("percentage stacks after credit", func(t *testing.T) {
		q := format(t, setup(percentCoupon("pct-10", coupon.TypeSpecial, "0.1")), FormatInput{ProductID: "course", UserID: "u1", UsedCouponID: "CODE"})

		assert.Equal(t, DiscountTypePercentage, q.AppliedDiscountType)
		assert.True(t, q.FixedDiscountForUpgrade.Equal(d("50")))
		// (200 - 50) * 0.9
		assert.True(t, q.CalculatedPrice.Equal(d("135")))
	})
}

func TestFormatPrices_Stacked(t *testing.T) {
	repo := newMockRepo().
		withProduct("course", "200").
		withMerchantCoupon(fixedCoupon("credit-30", coupon.TypeSpecialCredit, 3000)).
		withCoupon(coupon.Coupon{ID: "credit-coupon", MerchantCouponID: "credit-30"}).
		withCredit("u1", "credit-coupon").
		withMerchantCoupon(percentCoupon("ppp-50", coupon.TypePPP, "0.5"))

	q := format(t, repo, FormatInput{ProductID: "course", UserID: "u1", Country: "BR", AutoApplyPPP: true})

	assert.Equal(t, DiscountTypeFixed, q.AppliedDiscountType)
	assert.Equal(t, StackingPathStack, q.StackingPath)
	// 50% of 200 plus $30 credit.
	assert.True(t, q.AppliedFixedDiscount.Equal(d("130")), q.AppliedFixedDiscount.String())
	assert.True(t, q.CalculatedPrice.Equal(d("70")))
}

func TestFormatPrices_EntitlementExclusionUnderBulk(t *testing.T) {
	repo := newMockRepo().
		withProduct("course", "100").
		withMerchantCoupon(fixedCoupon("credit-30", coupon.TypeSpecialCredit, 3000)).
		withCoupon(coupon.Coupon{ID: "credit-coupon", MerchantCouponID: "credit-30"}).
		withCredit("u1", "credit-coupon")

	q := format(t, repo, FormatInput{ProductID: "course", UserID: "u1", Quantity: 5})

	assert.True(t, q.Bulk)
	assert.Empty(t, q.StackableDiscounts)
	assert.True(t, q.CalculatedPrice.Equal(d("500")))
}

func TestChainTotal(t *testing.T) {
	t.Run("cycle", func(t *testing.T) {
		repo := newMockRepo().
			withPurchase(purchase.Purchase{ID: "a", TotalAmount: d("10"), UpgradedFromID: "b"}).
			withPurchase(purchase.Purchase{ID: "b", TotalAmount: d("10"), UpgradedFromID: "a"})
		f := newFormatter(t, repo)

		_, err := f.chainTotal(context.Background(), repo.purchases["a"])
		assert.True(t, errors.Is(err, ErrUpgradeChain))
	})

	t.Run("depth guard", func(t *testing.T) {
		repo := newMockRepo().
			withPurchase(purchase.Purchase{ID: "a", TotalAmount: d("10"), UpgradedFromID: "b"}).
			withPurchase(purchase.Purchase{ID: "b", TotalAmount: d("10"), UpgradedFromID: "c"}).
			withPurchase(purchase.Purchase{ID: "c", TotalAmount: d("10")})

		_, err := newFormatter(t, repo, WithMaxChainDepth(2)).chainTotal(context.Background(), repo.purchases["a"])
		assert.True(t, errors.Is(err, ErrUpgradeChain))

		total, err := newFormatter(t, repo, WithMaxChainDepth(3)).chainTotal(context.Background(), repo.purchases["a"])
		require.NoError(t, err)
		assert.True(t, total.Equal(d("30")))
	})

	t.Run("missing link", func(t *testing.T) {
		repo := newMockRepo().withPurchase(purchase.Purchase{ID: "a", TotalAmount: d("10"), UpgradedFromID: "gone"})

		_, err := newFormatter(t, repo).chainTotal(context.Background(), repo.purchases["a"])
		assert.True(t, errors.Is(err, ErrUpgradeChain))
	})
}
