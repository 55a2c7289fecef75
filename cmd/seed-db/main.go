package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"

	"github.com/xenking/course-pricing/internal/domain/pricing"
	"github.com/xenking/course-pricing/internal/fixture"
	"github.com/xenking/course-pricing/internal/storage/postgres"
)

func main() {
	var (
		databaseURL string
		ppp         string
		bulkTiers   string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&ppp, "ppp", "", "regional discounts as CC:percent pairs, defaults to the built-in table")
	flag.StringVar(&bulkTiers, "bulk-tiers", "", "seat tiers as seats:percent pairs, defaults to the built-in tiers")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, ppp, bulkTiers); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, ppp, bulkTiers string) error {
	table := pricing.DefaultPPPTable()
	if ppp != "" {
		t, err := pricing.ParsePPPTable(ppp)
		if err != nil {
			return errors.Wrap(err, "parse ppp table")
		}
		table = t
	}
	tiers := pricing.DefaultBulkTiers()
	if bulkTiers != "" {
		t, err := pricing.ParseBulkTiers(bulkTiers)
		if err != nil {
			return errors.Wrap(err, "parse bulk tiers")
		}
		tiers = t
	}

	catalog, err := fixture.Demo(table, tiers)
	if err != nil {
		return errors.Wrap(err, "build catalog")
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	slog.Info("loading demo catalog",
		slog.Int("products", len(catalog.Products)),
		slog.Int("merchant_coupons", len(catalog.MerchantCoupons)),
		slog.Int("coupons", len(catalog.Coupons)),
		slog.Int("purchases", len(catalog.Purchases)),
	)

	if err := fixture.Load(ctx, postgres.NewStore(pool), catalog); err != nil {
		return errors.Wrap(err, "load catalog")
	}

	return nil
}
