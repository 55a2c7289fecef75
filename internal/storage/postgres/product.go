package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/course-pricing/internal/domain/product"
	"github.com/xenking/course-pricing/internal/domain/purchase"
)

const (
	getProductSQL = `SELECT id, name, type, status, merchant_product_id FROM products WHERE id = $1`

	getPriceForProductSQL = `SELECT id, product_id, unit_amount FROM prices
		WHERE product_id = $1 AND status = 1
		ORDER BY created_at DESC LIMIT 1`

	getUpgradableProductsSQL = `SELECT upgradable_from_id, upgradable_to_id FROM upgradable_products
		WHERE upgradable_from_id = $1 AND upgradable_to_id = $2`

	availableUpgradesSQL = `SELECT upgradable_from_id, upgradable_to_id FROM upgradable_products
		WHERE upgradable_to_id = $1 AND upgradable_from_id = ANY($2)
		ORDER BY upgradable_from_id`

	pricesTowardBundleSQL = `SELECT DISTINCT ON (pr.product_id) pr.id, pr.product_id, pr.unit_amount
		FROM upgradable_products up
		JOIN purchases pu ON pu.product_id = up.upgradable_from_id
			AND pu.user_id = $1 AND pu.status = 'Valid'
		JOIN prices pr ON pr.product_id = up.upgradable_from_id AND pr.status = 1
		WHERE up.upgradable_to_id = $2
		ORDER BY pr.product_id, pr.created_at DESC`

	upsertProductSQL = `INSERT INTO products (id, name, type, status, merchant_product_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, type = EXCLUDED.type,
			status = EXCLUDED.status, merchant_product_id = EXCLUDED.merchant_product_id`

	upsertPriceSQL = `INSERT INTO prices (id, product_id, unit_amount) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET unit_amount = EXCLUDED.unit_amount`

	upsertUpgradeSQL = `INSERT INTO upgradable_products (upgradable_from_id, upgradable_to_id)
		VALUES ($1, $2) ON CONFLICT DO NOTHING`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// GetProduct returns a single product by its identifier.
func (r *ProductRepository) GetProduct(ctx context.Context, id string) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}
	return &p, nil
}

// GetPriceForProduct returns the newest active price of a product.
func (r *ProductRepository) GetPriceForProduct(ctx context.Context, productID string) (*product.Price, error) {
	rows, err := r.pool.Query(ctx, getPriceForProductSQL, productID)
	if err != nil {
		return nil, fmt.Errorf("getting price for %q: %w", productID, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanPrice)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrPriceNotFound
		}
		return nil, fmt.Errorf("getting price for %q: %w", productID, err)
	}
	return &p, nil
}

// GetUpgradableProducts returns the upgrade path from fromID to toID, if any.
func (r *ProductRepository) GetUpgradableProducts(ctx context.Context, fromID, toID string) ([]product.Upgrade, error) {
	rows, err := r.pool.Query(ctx, getUpgradableProductsSQL, fromID, toID)
	if err != nil {
		return nil, fmt.Errorf("getting upgrades %q -> %q: %w", fromID, toID, err)
	}
	return pgx.CollectRows(rows, scanUpgrade)
}

// AvailableUpgradesForProduct returns upgrades into productID from products
// the purchases validly own.
func (r *ProductRepository) AvailableUpgradesForProduct(ctx context.Context, purchases []purchase.Purchase, productID string) ([]product.Upgrade, error) {
	owned := make([]string, 0, len(purchases))
	for _, p := range purchases {
		if p.Status == purchase.StatusValid {
			owned = append(owned, p.ProductID)
		}
	}
	if len(owned) == 0 {
		return nil, nil
	}

	rows, err := r.pool.Query(ctx, availableUpgradesSQL, productID, owned)
	if err != nil {
		return nil, fmt.Errorf("getting available upgrades to %q: %w", productID, err)
	}
	return pgx.CollectRows(rows, scanUpgrade)
}

// PricesOfPurchasesTowardOneBundle returns the current price of every product
// the user validly owns that upgrades into bundleID.
func (r *ProductRepository) PricesOfPurchasesTowardOneBundle(ctx context.Context, userID, bundleID string) ([]product.Price, error) {
	rows, err := r.pool.Query(ctx, pricesTowardBundleSQL, userID, bundleID)
	if err != nil {
		return nil, fmt.Errorf("getting prices toward %q: %w", bundleID, err)
	}
	return pgx.CollectRows(rows, scanPrice)
}

// UpsertProduct inserts or updates a product.
func (r *ProductRepository) UpsertProduct(ctx context.Context, p product.Product) error {
	if _, err := r.pool.Exec(ctx, upsertProductSQL, p.ID, p.Name, p.Type, p.Status, p.MerchantProductID); err != nil {
		return fmt.Errorf("upserting product %q: %w", p.ID, err)
	}
	return nil
}

// UpsertPrice inserts or updates a price.
func (r *ProductRepository) UpsertPrice(ctx context.Context, p product.Price) error {
	if _, err := r.pool.Exec(ctx, upsertPriceSQL, p.ID, p.ProductID, p.UnitAmount); err != nil {
		return fmt.Errorf("upserting price %q: %w", p.ID, err)
	}
	return nil
}

// UpsertUpgrade records that one product upgrades into another.
func (r *ProductRepository) UpsertUpgrade(ctx context.Context, u product.Upgrade) error {
	if _, err := r.pool.Exec(ctx, upsertUpgradeSQL, u.UpgradableFromID, u.UpgradableToID); err != nil {
		return fmt.Errorf("upserting upgrade %q -> %q: %w", u.UpgradableFromID, u.UpgradableToID, err)
	}
	return nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var p product.Product
	err := row.Scan(&p.ID, &p.Name, &p.Type, &p.Status, &p.MerchantProductID)
	return p, err
}

func scanPrice(row pgx.CollectableRow) (product.Price, error) {
	var p product.Price
	err := row.Scan(&p.ID, &p.ProductID, &p.UnitAmount)
	return p, err
}

func scanUpgrade(row pgx.CollectableRow) (product.Upgrade, error) {
	var u product.Upgrade
	err := row.Scan(&u.UpgradableFromID, &u.UpgradableToID)
	return u, err
}
