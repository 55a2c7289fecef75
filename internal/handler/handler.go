// Package handler exposes the pricing engine over HTTP.
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/xenking/course-pricing/internal/domain/checkout"
	"github.com/xenking/course-pricing/internal/domain/pricing"
	"github.com/xenking/course-pricing/pkg/httpmiddleware"
)

// Quoter produces price quotes.
type Quoter interface {
	FormatPrices(ctx context.Context, in pricing.FormatInput) (*pricing.Quote, error)
}

// Materializer turns a quote into a redeemable processor artifact.
type Materializer interface {
	Materialize(ctx context.Context, q *pricing.Quote) (*checkout.Artifact, error)
}

var (
	_ Quoter       = (*pricing.Formatter)(nil)
	_ Materializer = (*checkout.Materializer)(nil)
)

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// CheckoutErrorURL receives a 303 redirect when the processor rejects a
	// checkout. When empty the failure is returned as a 502 JSON error.
	CheckoutErrorURL string
}

// Handler serves quote and checkout requests.
type Handler struct {
	quoter       Quoter
	materializer Materializer
	validate     *validator.Validate
	cfg          Config
}

// New constructs a Handler.
func New(cfg Config, quoter Quoter, materializer Materializer) *Handler {
	return &Handler{
		quoter:       quoter,
		materializer: materializer,
		validate:     validator.New(validator.WithRequiredStructEnabled()),
		cfg:          cfg,
	}
}

// Routes mounts the API under /api with the given middleware chain.
func (h *Handler) Routes(middlewares ...httpmiddleware.Middleware) http.Handler {
	r := chi.NewRouter()
	r.Use(middlewares...)
	r.Route("/api", func(r chi.Router) {
		r.Post("/prices", h.Prices)
		r.Post("/checkout", h.Checkout)
	})
	return r
}
