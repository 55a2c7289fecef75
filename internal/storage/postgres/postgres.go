// Package postgres implements the pricing repositories on PostgreSQL.
package postgres

import (
	"context"
	"fmt"

	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/course-pricing/db"
	"github.com/xenking/course-pricing/internal/domain/pricing"
)

// NewPool creates a pgxpool.Pool configured with shopspring/decimal support
// for NUMERIC columns.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}

	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	return pool, nil
}

// RunMigrations executes the embedded DDL schema against the pool.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, db.Schema)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

// Store groups all repositories over one pool.
type Store struct {
	*ProductRepository
	*PurchaseRepository
	*CouponRepository
}

var _ pricing.Repository = (*Store)(nil)

// NewStore returns a Store that uses the given pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		ProductRepository:  NewProductRepository(pool),
		PurchaseRepository: NewPurchaseRepository(pool),
		CouponRepository:   NewCouponRepository(pool),
	}
}
