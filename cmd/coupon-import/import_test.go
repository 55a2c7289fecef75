package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/course-pricing/internal/domain/coupon"
)

// --- Mock implementations ---

type mockStore struct {
	mu        sync.Mutex
	mc        *coupon.MerchantCoupon
	inserted  []coupon.Coupon
	batches   int
	insertErr error
}

func (m *mockStore) GetMerchantCoupon(_ context.Context, id string) (*coupon.MerchantCoupon, error) {
	if m.mc == nil || m.mc.ID != id {
		return nil, coupon.ErrNotFound
	}
	return m.mc, nil
}

func (m *mockStore) InsertCoupons(_ context.Context, cs []coupon.Coupon) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return 0, m.insertErr
	}
	m.batches++
	m.inserted = append(m.inserted, cs...)
	return int64(len(cs)), nil
}

// --- Helpers ---

func writeGz(t *testing.T, dir, name string, lines ...string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	gz := pgzip.NewWriter(f)
	_, err = gz.Write([]byte(strings.Join(lines, "\n") + "\n"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())
	return path
}

func activeMC() *coupon.MerchantCoupon {
	disc, err := coupon.Percentage(decimal.RequireFromString("0.5"))
	if err != nil {
		panic(err)
	}
	return &coupon.MerchantCoupon{ID: "mc-half", Type: coupon.TypeSpecial, Discount: disc, Status: coupon.StatusActive}
}

func TestNormalizeCode(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{in: "launch20", want: "LAUNCH20", ok: true},
		{in: "TEAM_2026-A", want: "TEAM_2026-A", ok: true},
		{in: "abc"},
		{in: strings.Repeat("A", maxCodeLen+1)},
		{in: "HAS SPACE"},
		{in: "emoji🙂x"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := normalizeCode(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestImportCodes(t *testing.T) {
	dir := t.TempDir()
	a := writeGz(t, dir, "a.gz", "code-0001", "CODE-0002", "bad", "", "code-0003")
	b := writeGz(t, dir, "b.gz", "code-0002", "code-0004", "no spaces here")

	store := &mockStore{mc: activeMC()}
	stats, err := importCodes(context.Background(), store, importOptions{
		Files:            []string{a, b},
		MerchantCouponID: "mc-half",
		RestrictedTo:     "basics",
		BatchSize:        2,
		ExpectedCodes:    1000,
	})
	require.NoError(t, err)

	assert.Equal(t, uint64(5), stats.Read)
	assert.Equal(t, uint64(2), stats.Invalid)
	assert.Equal(t, uint64(1), stats.Duplicates)
	assert.Equal(t, int64(4), stats.Inserted)
	assert.Equal(t, 2, store.batches)

	codes := make([]string, 0, len(store.inserted))
	for _, c := range store.inserted {
		codes = append(codes, c.Code)
		assert.Equal(t, "mc-half", c.MerchantCouponID)
		assert.Equal(t, "basics", c.RestrictedToProductID)
		assert.Equal(t, 1, c.MaxUses)
		assert.Equal(t, coupon.StatusActive, c.Status)
		assert.NotEmpty(t, c.ID)
	}
	assert.ElementsMatch(t, []string{"CODE-0001", "CODE-0002", "CODE-0003", "CODE-0004"}, codes)
}

func TestImportCodes_Errors(t *testing.T) {
	dir := t.TempDir()
	file := writeGz(t, dir, "a.gz", "code-0001")

	t.Run("unknown merchant coupon", func(t *testing.T) {
		_, err := importCodes(context.Background(), &mockStore{}, importOptions{Files: []string{file}, MerchantCouponID: "nope"})
		assert.ErrorIs(t, err, coupon.ErrNotFound)
	})

	t.Run("inactive merchant coupon", func(t *testing.T) {
		mc := activeMC()
		mc.Status = 0
		_, err := importCodes(context.Background(), &mockStore{mc: mc}, importOptions{Files: []string{file}, MerchantCouponID: mc.ID})
		assert.Error(t, err)
	})

	t.Run("insert failure", func(t *testing.T) {
		errBoom := errors.New("boom")
		_, err := importCodes(context.Background(), &mockStore{mc: activeMC(), insertErr: errBoom}, importOptions{Files: []string{file}, MerchantCouponID: "mc-half"})
		assert.ErrorIs(t, err, errBoom)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := importCodes(context.Background(), &mockStore{mc: activeMC()}, importOptions{
			Files: []string{filepath.Join(dir, "missing.gz")}, MerchantCouponID: "mc-half",
		})
		assert.Error(t, err)
	})
}
