package handler

import (
	"io"
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/course-pricing/internal/domain/pricing"
)

const maxBodyBytes = 64 << 10

// Headers set by the edge in front of the API.
const (
	HeaderUserID          = "X-User-ID"
	HeaderCFCountry       = "CF-IPCountry"
	HeaderVercelIPCountry = "X-Vercel-IP-Country"
)

// priceRequest is the body of both /api/prices and /api/checkout.
type priceRequest struct {
	ProductID             string `validate:"required,max=128"`
	Quantity              int    `validate:"gte=0,lte=1000"`
	CouponID              string `validate:"max=128"`
	Code                  string `validate:"max=128"`
	UpgradeFromPurchaseID string `validate:"max=128"`
	Country               string `validate:"omitempty,len=2,alpha"`
	AutoApplyPPP          bool
	PreferStacking        bool
}

func decodePriceRequest(r io.Reader) (priceRequest, error) {
	var req priceRequest
	data, err := io.ReadAll(io.LimitReader(r, maxBodyBytes))
	if err != nil {
		return req, errors.Wrap(err, "read body")
	}

	d := jx.DecodeBytes(data)
	err = d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "productId":
			req.ProductID, err = d.Str()
		case "quantity":
			req.Quantity, err = d.Int()
		case "couponId":
			req.CouponID, err = d.Str()
		case "code":
			req.Code, err = d.Str()
		case "upgradeFromPurchaseId":
			req.UpgradeFromPurchaseID, err = d.Str()
		case "country":
			req.Country, err = d.Str()
		case "autoApplyPPP":
			req.AutoApplyPPP, err = d.Bool()
		case "preferStacking":
			req.PreferStacking, err = d.Bool()
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "field %q", key)
		}
		return nil
	})
	return req, err
}

// formatInput merges the body with the identity and geo headers. A country
// in the body wins over the edge headers.
func (req priceRequest) formatInput(r *http.Request) pricing.FormatInput {
	country := req.Country
	if country == "" {
		country = r.Header.Get(HeaderCFCountry)
	}
	if country == "" {
		country = r.Header.Get(HeaderVercelIPCountry)
	}
	return pricing.FormatInput{
		ProductID:             req.ProductID,
		UserID:                strings.TrimSpace(r.Header.Get(HeaderUserID)),
		Country:               strings.ToUpper(country),
		MerchantCouponID:      req.CouponID,
		UsedCouponID:          req.Code,
		UpgradeFromPurchaseID: req.UpgradeFromPurchaseID,
		Quantity:              req.Quantity,
		AutoApplyPPP:          req.AutoApplyPPP,
		PreferStacking:        req.PreferStacking,
	}
}

// parsePriceRequest decodes and validates the body.
func (h *Handler) parsePriceRequest(r *http.Request) (pricing.FormatInput, error) {
	req, err := decodePriceRequest(r.Body)
	if err != nil {
		return pricing.FormatInput{}, &requestError{err: err}
	}
	if err := h.validate.Struct(req); err != nil {
		return pricing.FormatInput{}, &requestError{err: err}
	}
	return req.formatInput(r), nil
}

// requestError marks a malformed or invalid request body.
type requestError struct {
	err error
}

func (e *requestError) Error() string { return "invalid request: " + e.err.Error() }

func (e *requestError) Unwrap() error { return e.err }
