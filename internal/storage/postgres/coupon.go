package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/course-pricing/internal/domain/coupon"
)

const (
	merchantCouponColumns = `id, type, percentage_discount, amount_discount, identifier, status`

	getMerchantCouponSQL = `SELECT ` + merchantCouponColumns + ` FROM merchant_coupons WHERE id = $1`

	getMerchantCouponsForTypeAndPercentSQL = `SELECT ` + merchantCouponColumns + ` FROM merchant_coupons
		WHERE type = $1 AND percentage_discount = $2 AND status = 1
		ORDER BY created_at, id`

	getMerchantCouponForTypeAndAmountSQL = `SELECT ` + merchantCouponColumns + ` FROM merchant_coupons
		WHERE type = $1 AND amount_discount = $2 AND status = 1
		ORDER BY created_at, id LIMIT 1`

	// Stacked coupons are unique per amount; a concurrent insert returns the existing row.
	createMerchantCouponSQL = `INSERT INTO merchant_coupons
		(id, type, percentage_discount, amount_discount, identifier, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (amount_discount) WHERE type = 'stacked'
		DO UPDATE SET amount_discount = EXCLUDED.amount_discount
		RETURNING ` + merchantCouponColumns

	upsertMerchantCouponSQL = `INSERT INTO merchant_coupons
		(id, type, percentage_discount, amount_discount, identifier, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET type = EXCLUDED.type,
			percentage_discount = EXCLUDED.percentage_discount,
			amount_discount = EXCLUDED.amount_discount,
			identifier = EXCLUDED.identifier, status = EXCLUDED.status`

	couponColumns = `id, COALESCE(code, ''), merchant_coupon_id, fields, is_default, max_uses, used_count,
		expires, COALESCE(restricted_to_product_id, ''), status`

	getCouponSQL = `SELECT ` + couponColumns + ` FROM coupons
		WHERE id = $1 OR UPPER(code) = UPPER($1)
		ORDER BY (id = $1) DESC LIMIT 1`

	getDefaultCouponSQL = `SELECT ` + couponColumns + ` FROM coupons
		WHERE is_default AND status = 1
			AND (restricted_to_product_id IS NULL OR restricted_to_product_id = $1)
			AND (expires IS NULL OR expires > now())
		ORDER BY restricted_to_product_id NULLS LAST, created_at DESC LIMIT 1`

	upsertCouponSQL = `INSERT INTO coupons
		(id, code, merchant_coupon_id, fields, is_default, max_uses, used_count, expires, restricted_to_product_id, status)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8, NULLIF($9, ''), $10)
		ON CONFLICT (id) DO UPDATE SET code = EXCLUDED.code,
			merchant_coupon_id = EXCLUDED.merchant_coupon_id, fields = EXCLUDED.fields,
			is_default = EXCLUDED.is_default, max_uses = EXCLUDED.max_uses,
			expires = EXCLUDED.expires, restricted_to_product_id = EXCLUDED.restricted_to_product_id,
			status = EXCLUDED.status`

	insertCouponSQL = `INSERT INTO coupons
		(id, code, merchant_coupon_id, fields, is_default, max_uses, used_count, expires, restricted_to_product_id, status)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8, NULLIF($9, ''), $10)
		ON CONFLICT DO NOTHING`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// GetMerchantCoupon returns a merchant coupon by id.
func (r *CouponRepository) GetMerchantCoupon(ctx context.Context, id string) (*coupon.MerchantCoupon, error) {
	return r.oneMerchantCoupon(ctx, getMerchantCouponSQL, id)
}

// GetMerchantCouponsForTypeAndPercent returns active merchant coupons of a
// type with exactly the given percentage.
func (r *CouponRepository) GetMerchantCouponsForTypeAndPercent(ctx context.Context, t coupon.Type, percent decimal.Decimal) ([]coupon.MerchantCoupon, error) {
	rows, err := r.pool.Query(ctx, getMerchantCouponsForTypeAndPercentSQL, string(t), percent)
	if err != nil {
		return nil, fmt.Errorf("getting %s coupons for %s: %w", t, percent, err)
	}
	return pgx.CollectRows(rows, scanMerchantCoupon)
}

// GetMerchantCouponForTypeAndAmount returns the active merchant coupon of a
// type with exactly the given amount in minor units.
func (r *CouponRepository) GetMerchantCouponForTypeAndAmount(ctx context.Context, t coupon.Type, amount int64) (*coupon.MerchantCoupon, error) {
	return r.oneMerchantCoupon(ctx, getMerchantCouponForTypeAndAmountSQL, string(t), amount)
}

// CreateMerchantCoupon stores mc. For stacked coupons an existing coupon with
// the same amount is returned instead of a new one.
func (r *CouponRepository) CreateMerchantCoupon(ctx context.Context, mc *coupon.MerchantCoupon) (*coupon.MerchantCoupon, error) {
	return r.oneMerchantCoupon(ctx, createMerchantCouponSQL, merchantCouponArgs(mc)...)
}

// UpsertMerchantCoupon inserts or updates a merchant coupon by id.
func (r *CouponRepository) UpsertMerchantCoupon(ctx context.Context, mc coupon.MerchantCoupon) error {
	if _, err := r.pool.Exec(ctx, upsertMerchantCouponSQL, merchantCouponArgs(&mc)...); err != nil {
		return fmt.Errorf("upserting merchant coupon %q: %w", mc.ID, err)
	}
	return nil
}

// GetCoupon returns a coupon by id or by case-insensitive code.
func (r *CouponRepository) GetCoupon(ctx context.Context, idOrCode string) (*coupon.Coupon, error) {
	return r.oneCoupon(ctx, getCouponSQL, idOrCode)
}

// GetDefaultCoupon returns the active site-wide default coupon for a product.
// Coupons restricted to the product take precedence over unrestricted ones.
func (r *CouponRepository) GetDefaultCoupon(ctx context.Context, productID string) (*coupon.Coupon, error) {
	return r.oneCoupon(ctx, getDefaultCouponSQL, productID)
}

// UpsertCoupon inserts or updates a coupon by id.
func (r *CouponRepository) UpsertCoupon(ctx context.Context, c coupon.Coupon) error {
	if _, err := r.pool.Exec(ctx, upsertCouponSQL, couponArgs(&c)...); err != nil {
		return fmt.Errorf("upserting coupon %q: %w", c.ID, err)
	}
	return nil
}

// InsertCoupons stores coupons in one batch, skipping ids or codes that
// already exist. It returns the number of rows inserted.
func (r *CouponRepository) InsertCoupons(ctx context.Context, cs []coupon.Coupon) (int64, error) {
	batch := &pgx.Batch{}
	for i := range cs {
		batch.Queue(insertCouponSQL, couponArgs(&cs[i])...)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer func() { _ = br.Close() }()

	var inserted int64
	for i := range cs {
		tag, err := br.Exec()
		if err != nil {
			return inserted, fmt.Errorf("inserting coupon %q: %w", cs[i].Code, err)
		}
		inserted += tag.RowsAffected()
	}
	return inserted, nil
}

func (r *CouponRepository) oneMerchantCoupon(ctx context.Context, sql string, args ...any) (*coupon.MerchantCoupon, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("getting merchant coupon: %w", err)
	}

	mc, err := pgx.CollectExactlyOneRow(rows, scanMerchantCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, fmt.Errorf("getting merchant coupon: %w", err)
	}
	return &mc, nil
}

func (r *CouponRepository) oneCoupon(ctx context.Context, sql string, args ...any) (*coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("getting coupon: %w", err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, fmt.Errorf("getting coupon: %w", err)
	}
	return &c, nil
}

func merchantCouponArgs(mc *coupon.MerchantCoupon) []any {
	var (
		percent *decimal.Decimal
		amount  *int64
	)
	switch mc.Discount.Kind() {
	case coupon.KindPercentage:
		p := mc.Discount.Percent()
		percent = &p
	case coupon.KindFixed:
		a := mc.Discount.AmountOff()
		amount = &a
	case coupon.KindNone:
	}
	return []any{mc.ID, string(mc.Type), percent, amount, mc.Identifier, mc.Status}
}

func couponArgs(c *coupon.Coupon) []any {
	return []any{
		c.ID, c.Code, c.MerchantCouponID, encodeFields(c.Fields), c.Default,
		c.MaxUses, c.UsedCount, c.Expires, c.RestrictedToProductID, c.Status,
	}
}

func scanMerchantCoupon(row pgx.CollectableRow) (coupon.MerchantCoupon, error) {
	var (
		mc      coupon.MerchantCoupon
		typ     string
		percent decimal.NullDecimal
		amount  *int64
	)
	if err := row.Scan(&mc.ID, &typ, &percent, &amount, &mc.Identifier, &mc.Status); err != nil {
		return mc, err
	}

	t, err := coupon.ParseType(typ)
	if err != nil {
		return mc, err
	}
	mc.Type = t

	var pct *decimal.Decimal
	if percent.Valid {
		pct = &percent.Decimal
	}
	disc, err := coupon.NewDiscount(pct, amount)
	if err != nil {
		// Inactive coupons may carry no discount.
		if mc.Status != coupon.StatusActive {
			return mc, nil
		}
		return mc, errors.Wrapf(err, "merchant coupon %s", mc.ID)
	}
	mc.Discount = disc
	return mc, nil
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c       coupon.Coupon
		fields  []byte
		expires *time.Time
	)
	err := row.Scan(
		&c.ID, &c.Code, &c.MerchantCouponID, &fields, &c.Default, &c.MaxUses, &c.UsedCount,
		&expires, &c.RestrictedToProductID, &c.Status,
	)
	if err != nil {
		return c, err
	}
	c.Expires = expires
	if c.Fields, err = decodeFields(fields); err != nil {
		return c, errors.Wrapf(err, "coupon %s", c.ID)
	}
	return c, nil
}
