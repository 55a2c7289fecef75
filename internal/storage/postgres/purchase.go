package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/course-pricing/internal/domain/purchase"
)

const (
	purchaseColumns = `id, user_id, product_id, status, total_amount,
		COALESCE(upgraded_from_id, ''), COALESCE(bulk_coupon_id, ''), country, created_at`

	getPurchaseSQL = `SELECT ` + purchaseColumns + ` FROM purchases WHERE id = $1`

	getPurchasesForUserSQL = `SELECT ` + purchaseColumns + ` FROM purchases
		WHERE user_id = $1 ORDER BY created_at, id`

	getEntitlementsForUserSQL = `SELECT id, user_id, entitlement_type, source_type, source_id, expires_at, deleted_at
		FROM entitlements WHERE user_id = $1 AND deleted_at IS NULL
		ORDER BY created_at, id`

	getEntitlementTypeByNameSQL = `SELECT id, name FROM entitlement_types WHERE name = $1`

	insertPurchaseSQL = `INSERT INTO purchases
		(id, user_id, product_id, status, total_amount, upgraded_from_id, bulk_coupon_id, country)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), $8)
		ON CONFLICT (id) DO NOTHING`

	upsertEntitlementTypeSQL = `INSERT INTO entitlement_types (id, name) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id, name`

	insertEntitlementSQL = `INSERT INTO entitlements
		(id, user_id, entitlement_type, source_type, source_id, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING`
)

var _ purchase.Repository = (*PurchaseRepository)(nil)

// PurchaseRepository implements purchase.Repository backed by PostgreSQL.
type PurchaseRepository struct {
	pool *pgxpool.Pool
}

// NewPurchaseRepository returns a PurchaseRepository that uses the given pool.
func NewPurchaseRepository(pool *pgxpool.Pool) *PurchaseRepository {
	return &PurchaseRepository{pool: pool}
}

// GetPurchase returns a purchase by id.
func (r *PurchaseRepository) GetPurchase(ctx context.Context, id string) (*purchase.Purchase, error) {
	rows, err := r.pool.Query(ctx, getPurchaseSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting purchase %q: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanPurchase)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, purchase.ErrNotFound
		}
		return nil, fmt.Errorf("getting purchase %q: %w", id, err)
	}
	return &p, nil
}

// GetPurchasesForUser returns every purchase of a user, oldest first.
func (r *PurchaseRepository) GetPurchasesForUser(ctx context.Context, userID string) ([]purchase.Purchase, error) {
	rows, err := r.pool.Query(ctx, getPurchasesForUserSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("getting purchases for %q: %w", userID, err)
	}
	return pgx.CollectRows(rows, scanPurchase)
}

// GetEntitlementsForUser returns the user's entitlements that are not deleted.
func (r *PurchaseRepository) GetEntitlementsForUser(ctx context.Context, userID string) ([]purchase.Entitlement, error) {
	rows, err := r.pool.Query(ctx, getEntitlementsForUserSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("getting entitlements for %q: %w", userID, err)
	}
	return pgx.CollectRows(rows, scanEntitlement)
}

// GetEntitlementTypeByName looks up an entitlement type.
func (r *PurchaseRepository) GetEntitlementTypeByName(ctx context.Context, name string) (*purchase.EntitlementType, error) {
	rows, err := r.pool.Query(ctx, getEntitlementTypeByNameSQL, name)
	if err != nil {
		return nil, fmt.Errorf("getting entitlement type %q: %w", name, err)
	}

	et, err := pgx.CollectExactlyOneRow(rows, scanEntitlementType)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, purchase.ErrEntitlementTypeNotFound
		}
		return nil, fmt.Errorf("getting entitlement type %q: %w", name, err)
	}
	return &et, nil
}

// InsertPurchase stores a purchase unless one with the same id exists.
func (r *PurchaseRepository) InsertPurchase(ctx context.Context, p purchase.Purchase) error {
	_, err := r.pool.Exec(ctx, insertPurchaseSQL,
		p.ID, p.UserID, p.ProductID, string(p.Status), p.TotalAmount,
		p.UpgradedFromID, p.BulkCouponID, p.Country,
	)
	if err != nil {
		return fmt.Errorf("inserting purchase %q: %w", p.ID, err)
	}
	return nil
}

// UpsertEntitlementType creates the type when absent and returns the stored row.
func (r *PurchaseRepository) UpsertEntitlementType(ctx context.Context, et purchase.EntitlementType) (*purchase.EntitlementType, error) {
	rows, err := r.pool.Query(ctx, upsertEntitlementTypeSQL, et.ID, et.Name)
	if err != nil {
		return nil, fmt.Errorf("upserting entitlement type %q: %w", et.Name, err)
	}
	stored, err := pgx.CollectExactlyOneRow(rows, scanEntitlementType)
	if err != nil {
		return nil, fmt.Errorf("upserting entitlement type %q: %w", et.Name, err)
	}
	return &stored, nil
}

// InsertEntitlement stores an entitlement unless one with the same id exists.
func (r *PurchaseRepository) InsertEntitlement(ctx context.Context, e purchase.Entitlement) error {
	_, err := r.pool.Exec(ctx, insertEntitlementSQL,
		e.ID, e.UserID, e.EntitlementType, e.SourceType, e.SourceID, e.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("inserting entitlement %q: %w", e.ID, err)
	}
	return nil
}

func scanPurchase(row pgx.CollectableRow) (purchase.Purchase, error) {
	var (
		p      purchase.Purchase
		status string
	)
	err := row.Scan(
		&p.ID, &p.UserID, &p.ProductID, &status, &p.TotalAmount,
		&p.UpgradedFromID, &p.BulkCouponID, &p.Country, &p.CreatedAt,
	)
	p.Status = purchase.Status(status)
	return p, err
}

func scanEntitlement(row pgx.CollectableRow) (purchase.Entitlement, error) {
	var e purchase.Entitlement
	err := row.Scan(&e.ID, &e.UserID, &e.EntitlementType, &e.SourceType, &e.SourceID, &e.ExpiresAt, &e.DeletedAt)
	return e, err
}

func scanEntitlementType(row pgx.CollectableRow) (purchase.EntitlementType, error) {
	var et purchase.EntitlementType
	err := row.Scan(&et.ID, &et.Name)
	return et, err
}
