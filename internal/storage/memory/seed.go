package memory

import (
	"context"

	"github.com/xenking/course-pricing/internal/domain/coupon"
	"github.com/xenking/course-pricing/internal/domain/product"
	"github.com/xenking/course-pricing/internal/domain/purchase"
)

func (s *Store) UpsertProduct(_ context.Context, p product.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = p
	return nil
}

func (s *Store) UpsertPrice(_ context.Context, p product.Price) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[p.ProductID] = p
	return nil
}

func (s *Store) UpsertUpgrade(_ context.Context, u product.Upgrade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.upgrades {
		if existing == u {
			return nil
		}
	}
	s.upgrades = append(s.upgrades, u)
	return nil
}

func (s *Store) UpsertMerchantCoupon(_ context.Context, mc coupon.MerchantCoupon) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.merchantCoupons[mc.ID] = mc
	return nil
}

func (s *Store) UpsertCoupon(_ context.Context, c coupon.Coupon) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.coupons[c.ID] = c
	return nil
}

func (s *Store) InsertPurchase(_ context.Context, p purchase.Purchase) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
	}
	s.purchases[p.ID] = p
	return nil
}

// UpsertEntitlementType creates the type when absent and returns the stored one.
func (s *Store) UpsertEntitlementType(_ context.Context, et purchase.EntitlementType) (*purchase.EntitlementType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.entitlementType[et.Name]; ok {
		return &existing, nil
	}
	s.entitlementType[et.Name] = et
	return &et, nil
}

func (s *Store) InsertEntitlement(_ context.Context, e purchase.Entitlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entitlements = append(s.entitlements, e)
	return nil
}
