// Command coupon-import loads single-use coupon codes from gzip-compressed
// text files (one code per line) and attaches them to a merchant coupon.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/course-pricing/internal/storage/postgres"
)

func main() {
	var (
		databaseURL string
		opts        importOptions
		expires     time.Duration
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&opts.MerchantCouponID, "merchant-coupon", "", "merchant coupon the imported codes redeem")
	flag.StringVar(&opts.RestrictedTo, "product", "", "restrict imported codes to this product id")
	flag.IntVar(&opts.MaxUses, "max-uses", 1, "redemptions allowed per code, -1 for unlimited")
	flag.DurationVar(&expires, "expires-in", 0, "code lifetime from now, 0 for no expiry")
	flag.IntVar(&opts.BatchSize, "batch-size", defaultBatchSize, "codes per insert batch")
	flag.UintVar(&opts.ExpectedCodes, "expected-codes", defaultExpectedCodes, "expected number of codes across all files")
	flag.Float64Var(&opts.FalsePositiveRate, "fpr", defaultFalsePositiveRate, "duplicate filter false positive rate")
	flag.Parse()

	opts.Files = flag.Args()
	if expires > 0 {
		at := time.Now().Add(expires)
		opts.Expires = &at
	}

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if opts.MerchantCouponID == "" || len(opts.Files) == 0 {
		slog.Error("usage: coupon-import --merchant-coupon ID [flags] FILE.gz...")
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, opts); err != nil {
		slog.Error("coupon import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("coupon import completed successfully")
}

func run(ctx context.Context, databaseURL string, opts importOptions) error {
	for _, f := range opts.Files {
		if _, err := os.Stat(f); err != nil {
			return errors.Wrapf(err, "check file %s", f)
		}
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	stats, err := importCodes(ctx, postgres.NewStore(pool), opts)
	if err != nil {
		return err
	}

	slog.Info("import summary",
		slog.String("merchant_coupon", opts.MerchantCouponID),
		slog.String("files", strings.Join(opts.Files, ",")),
		slog.Uint64("read", stats.Read),
		slog.Uint64("invalid", stats.Invalid),
		slog.Uint64("duplicates", stats.Duplicates),
		slog.Int64("inserted", stats.Inserted),
	)
	return nil
}
