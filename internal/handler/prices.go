package handler

import (
	"net/http"
	"net/url"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/course-pricing/internal/domain/checkout"
)

// Prices handles POST /api/prices.
func (h *Handler) Prices(w http.ResponseWriter, r *http.Request) {
	in, err := h.parsePriceRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	q, err := h.quoter.FormatPrices(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var e jx.Encoder
	encodeQuote(&e, q)
	writeJSON(w, http.StatusOK, &e)
}

// Checkout handles POST /api/checkout. The quote is derived again from the
// request so the client cannot choose its own discount.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	in, err := h.parsePriceRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	q, err := h.quoter.FormatPrices(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}

	a, err := h.materializer.Materialize(r.Context(), q)
	var coErr *checkout.CheckoutError
	if errors.As(err, &coErr) {
		h.checkoutFailed(w, r, coErr)
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	var e jx.Encoder
	encodeArtifact(&e, a)
	writeJSON(w, http.StatusOK, &e)
}

func (h *Handler) checkoutFailed(w http.ResponseWriter, r *http.Request, err *checkout.CheckoutError) {
	zctx.From(r.Context()).Warn("Checkout rejected by processor",
		zap.String("op", err.Op),
		zap.Error(err.Err),
	)

	if h.cfg.CheckoutErrorURL == "" {
		var e jx.Encoder
		e.ObjStart()
		e.FieldStart("code")
		e.Int(http.StatusBadGateway)
		e.FieldStart("message")
		e.Str(err.Error())
		e.ObjEnd()
		writeJSON(w, http.StatusBadGateway, &e)
		return
	}

	target, perr := url.Parse(h.cfg.CheckoutErrorURL)
	if perr != nil {
		writeError(w, r, errors.Wrap(perr, "parse checkout error url"))
		return
	}
	query := target.Query()
	query.Set("error", err.Op)
	target.RawQuery = query.Encode()
	http.Redirect(w, r, target.String(), http.StatusSeeOther)
}
