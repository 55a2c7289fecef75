package main

import (
	"bufio"
	"context"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/google/uuid"
	pgzip "github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/course-pricing/internal/domain/coupon"
)

const (
	defaultBatchSize         = 1000
	defaultExpectedCodes     = 10_000_000
	defaultFalsePositiveRate = 1e-7
	progressEvery            = 1_000_000
	minCodeLen               = 4
	maxCodeLen               = 32
)

// couponStore is the storage the importer writes through.
type couponStore interface {
	GetMerchantCoupon(ctx context.Context, id string) (*coupon.MerchantCoupon, error)
	InsertCoupons(ctx context.Context, cs []coupon.Coupon) (int64, error)
}

type importOptions struct {
	Files             []string
	MerchantCouponID  string
	RestrictedTo      string
	MaxUses           int
	Expires           *time.Time
	BatchSize         int
	ExpectedCodes     uint
	FalsePositiveRate float64
}

type importStats struct {
	Read       uint64
	Invalid    uint64
	Duplicates uint64
	Inserted   int64
}

// importCodes streams every file concurrently into a single writer. Codes are
// upper-cased; a code already seen in this run is skipped. The filter is
// probabilistic, so at the configured false positive rate a fresh code may be
// reported as a duplicate. Codes already stored are skipped by the database.
func importCodes(ctx context.Context, store couponStore, opts importOptions) (importStats, error) {
	var stats importStats

	mc, err := store.GetMerchantCoupon(ctx, opts.MerchantCouponID)
	if err != nil {
		return stats, errors.Wrapf(err, "merchant coupon %s", opts.MerchantCouponID)
	}
	if mc.Status != coupon.StatusActive {
		return stats, errors.Errorf("merchant coupon %s is not active", mc.ID)
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.ExpectedCodes == 0 {
		opts.ExpectedCodes = defaultExpectedCodes
	}
	if opts.FalsePositiveRate <= 0 || opts.FalsePositiveRate >= 1 {
		opts.FalsePositiveRate = defaultFalsePositiveRate
	}

	codes := make(chan string, opts.BatchSize)
	invalid := make([]uint64, len(opts.Files))

	g, gctx := errgroup.WithContext(ctx)
	var readers errgroup.Group
	for i, f := range opts.Files {
		readers.Go(func() error {
			n, err := streamCodes(gctx, f, codes)
			invalid[i] = n
			return err
		})
	}
	g.Go(func() error {
		defer close(codes)
		return readers.Wait()
	})
	g.Go(func() error {
		seen := bloom.NewWithEstimates(opts.ExpectedCodes, opts.FalsePositiveRate)
		batch := make([]coupon.Coupon, 0, opts.BatchSize)

		flush := func() error {
			if len(batch) == 0 {
				return nil
			}
			n, err := store.InsertCoupons(gctx, batch)
			stats.Inserted += n
			if err != nil {
				return errors.Wrap(err, "insert batch")
			}
			batch = batch[:0]
			return nil
		}

		for code := range codes {
			stats.Read++
			if stats.Read%progressEvery == 0 {
				slog.Info("import progress",
					slog.Uint64("read", stats.Read),
					slog.Int64("inserted", stats.Inserted),
				)
			}
			if seen.TestAndAddString(code) {
				stats.Duplicates++
				continue
			}
			batch = append(batch, opts.coupon(code))
			if len(batch) == opts.BatchSize {
				if err := flush(); err != nil {
					return err
				}
			}
		}
		return flush()
	})

	err = g.Wait()
	for _, n := range invalid {
		stats.Invalid += n
	}
	return stats, err
}

func (o importOptions) coupon(code string) coupon.Coupon {
	maxUses := o.MaxUses
	if maxUses == 0 {
		maxUses = 1
	}
	return coupon.Coupon{
		ID:                    uuid.NewString(),
		Code:                  code,
		MerchantCouponID:      o.MerchantCouponID,
		MaxUses:               maxUses,
		Expires:               o.Expires,
		RestrictedToProductID: o.RestrictedTo,
		Status:                coupon.StatusActive,
	}
}

// streamCodes sends each valid code of a gzip file to out and returns the
// number of non-empty lines rejected.
func streamCodes(ctx context.Context, path string, out chan<- string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return 0, errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	var invalid uint64
	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		code, ok := normalizeCode(line)
		if !ok {
			invalid++
			continue
		}
		select {
		case out <- code:
		case <-ctx.Done():
			return invalid, ctx.Err()
		}
	}
	if err := scanner.Err(); err != nil {
		return invalid, errors.Wrapf(err, "scan %s", path)
	}
	return invalid, nil
}

// normalizeCode upper-cases s and accepts letters, digits, '-' and '_'.
func normalizeCode(s string) (string, bool) {
	if len(s) < minCodeLen || len(s) > maxCodeLen {
		return "", false
	}
	s = strings.ToUpper(s)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			return "", false
		}
	}
	return s, true
}
