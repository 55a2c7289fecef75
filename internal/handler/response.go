package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/course-pricing/internal/domain/checkout"
	"github.com/xenking/course-pricing/internal/domain/coupon"
	"github.com/xenking/course-pricing/internal/domain/pricing"
)

func writeJSON(w http.ResponseWriter, status int, e *jx.Encoder) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func money(e *jx.Encoder, d decimal.Decimal) {
	e.Raw([]byte(d.StringFixed(2)))
}

// writeError maps domain errors to HTTP statuses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	message := "internal server error"

	var (
		reqErr *requestError
		pfErr  *pricing.PriceFormattingError
	)
	switch {
	case errors.As(err, &reqErr), errors.Is(err, pricing.ErrValidation), errors.Is(err, coupon.ErrMalformedDiscount):
		status, message = http.StatusBadRequest, err.Error()
	case errors.As(err, &pfErr):
		status, message = http.StatusNotFound, pfErr.Error()
	default:
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
	}

	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("code")
	e.Int(status)
	e.FieldStart("message")
	e.Str(message)
	e.ObjEnd()
	writeJSON(w, status, &e)
}

func encodeMerchantCoupon(e *jx.Encoder, mc *coupon.MerchantCoupon) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(mc.ID)
	e.FieldStart("type")
	e.Str(string(mc.Type))
	encodeDiscount(e, mc.Discount)
	e.ObjEnd()
}

// encodeDiscount writes the discount fields into an open object.
func encodeDiscount(e *jx.Encoder, d coupon.Discount) {
	switch d.Kind() {
	case coupon.KindPercentage:
		e.FieldStart("percentageDiscount")
		e.Raw([]byte(d.Percent().String()))
	case coupon.KindFixed:
		e.FieldStart("amountDiscount")
		e.Int64(d.AmountOff())
	case coupon.KindNone:
	}
}

// encodeStackAmount writes discountType and amount: a fraction for
// percentages, currency units for fixed amounts.
func encodeStackAmount(e *jx.Encoder, d coupon.Discount) {
	switch d.Kind() {
	case coupon.KindPercentage:
		e.FieldStart("discountType")
		e.Str(string(pricing.DiscountTypePercentage))
		e.FieldStart("amount")
		e.Raw([]byte(d.Percent().String()))
	case coupon.KindFixed:
		e.FieldStart("discountType")
		e.Str(string(pricing.DiscountTypeFixed))
		e.FieldStart("amount")
		money(e, d.AmountOffMajor())
	case coupon.KindNone:
	}
}

func encodeQuote(e *jx.Encoder, q *pricing.Quote) {
	e.ObjStart()
	e.FieldStart("productId")
	e.Str(q.ProductID)
	e.FieldStart("quantity")
	e.Int(q.Quantity)
	e.FieldStart("unitPrice")
	money(e, q.UnitPrice)
	e.FieldStart("fullPrice")
	money(e, q.FullPrice)
	e.FieldStart("calculatedPrice")
	money(e, q.CalculatedPrice)
	e.FieldStart("fixedDiscountForUpgrade")
	money(e, q.FixedDiscountForUpgrade)
	if !q.AppliedFixedDiscount.IsZero() {
		e.FieldStart("appliedFixedDiscount")
		money(e, q.AppliedFixedDiscount)
	}
	e.FieldStart("appliedDiscountType")
	e.Str(string(q.AppliedDiscountType))
	if q.AppliedMerchantCoupon != nil {
		e.FieldStart("appliedMerchantCoupon")
		encodeMerchantCoupon(e, q.AppliedMerchantCoupon)
	}
	e.FieldStart("availableCoupons")
	e.ArrStart()
	for i := range q.AvailableCoupons {
		encodeMerchantCoupon(e, &q.AvailableCoupons[i])
	}
	e.ArrEnd()
	e.FieldStart("bulk")
	e.Bool(q.Bulk)
	if q.UpgradeFromPurchaseID != "" {
		e.FieldStart("upgradeFromPurchaseId")
		e.Str(q.UpgradeFromPurchaseID)
	}
	if q.UsedCouponID != "" {
		e.FieldStart("usedCouponId")
		e.Str(q.UsedCouponID)
	}
	e.FieldStart("stackableDiscounts")
	e.ArrStart()
	for _, s := range q.StackableDiscounts {
		e.ObjStart()
		e.FieldStart("source")
		e.Str(string(s.Source))
		if s.MerchantCouponID != "" {
			e.FieldStart("couponId")
			e.Str(s.MerchantCouponID)
			e.FieldStart("merchantCouponId")
			e.Str(s.MerchantCouponID)
		}
		encodeStackAmount(e, s.Discount)
		encodeDiscount(e, s.Discount)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.FieldStart("stackingPath")
	e.Str(string(q.StackingPath))
	e.ObjEnd()
}

func encodeArtifact(e *jx.Encoder, a *checkout.Artifact) {
	e.ObjStart()
	e.FieldStart("kind")
	e.Str(string(a.Kind))
	if a.CouponID != "" {
		e.FieldStart("couponId")
		e.Str(a.CouponID)
	}
	if a.PromotionCode != "" {
		e.FieldStart("promotionCodeId")
		e.Str(a.PromotionCodeID)
		e.FieldStart("promotionCode")
		e.Str(a.PromotionCode)
	}
	if a.AmountOff > 0 {
		e.FieldStart("amountOff")
		e.Int64(a.AmountOff)
	}
	if a.MerchantCouponID != "" {
		e.FieldStart("merchantCouponId")
		e.Str(a.MerchantCouponID)
	}
	e.ObjEnd()
}
