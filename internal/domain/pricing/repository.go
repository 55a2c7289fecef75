package pricing

import (
	"github.com/xenking/course-pricing/internal/domain/coupon"
	"github.com/xenking/course-pricing/internal/domain/product"
	"github.com/xenking/course-pricing/internal/domain/purchase"
)

// Repository is the data access the pricing engine depends on.
type Repository interface {
	product.Repository
	purchase.Repository
	coupon.Repository
}
