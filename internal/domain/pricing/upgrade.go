package pricing

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/course-pricing/internal/domain/purchase"
)

// upgradeFrom returns the purchase the buyer upgrades from, or nil.
func (f *Formatter) upgradeFrom(ctx context.Context, in FormatInput, purchases []purchase.Purchase) (*purchase.Purchase, error) {
	if in.UpgradeFromPurchaseID != "" {
		p, err := f.repo.GetPurchase(ctx, in.UpgradeFromPurchaseID)
		if errors.Is(err, purchase.ErrNotFound) {
			return nil, validationError("upgrade purchase %s not found", in.UpgradeFromPurchaseID)
		}
		if err != nil {
			return nil, errors.Wrap(err, "get upgrade purchase")
		}
		if p.UserID != in.UserID || !p.Active() {
			return nil, validationError("purchase %s cannot be upgraded", p.ID)
		}
		return p, nil
	}
	if in.UserID == "" {
		return nil, nil
	}

	for i := range purchases {
		p := &purchases[i]
		if p.ProductID == in.ProductID && p.Status == purchase.StatusRestricted {
			return p, nil
		}
	}
	if purchase.OwnsValid(purchases, in.ProductID) {
		return nil, nil
	}

	ups, err := f.repo.AvailableUpgradesForProduct(ctx, purchases, in.ProductID)
	if err != nil {
		return nil, errors.Wrap(err, "available upgrades")
	}
	for _, u := range ups {
		for i := range purchases {
			p := &purchases[i]
			if p.ProductID == u.UpgradableFromID && p.Status == purchase.StatusValid {
				return p, nil
			}
		}
	}
	return nil, nil
}

// upgradeCredit is the currency credit earned by from toward productID.
func (f *Formatter) upgradeCredit(ctx context.Context, userID string, from *purchase.Purchase, productID string) (decimal.Decimal, error) {
	if from.Status == purchase.StatusRestricted && from.ProductID == productID {
		return f.chainTotal(ctx, from)
	}

	ups, err := f.repo.GetUpgradableProducts(ctx, from.ProductID, productID)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "get upgradable products")
	}
	if len(ups) == 0 {
		return decimal.Zero, nil
	}

	prices, err := f.repo.PricesOfPurchasesTowardOneBundle(ctx, userID, productID)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "prices toward bundle")
	}
	total := decimal.Zero
	for _, p := range prices {
		total = total.Add(p.UnitAmount)
	}
	return total, nil
}

// chainTotal sums TotalAmount along the UpgradedFromID links starting at from.
func (f *Formatter) chainTotal(ctx context.Context, from *purchase.Purchase) (decimal.Decimal, error) {
	total := decimal.Zero
	seen := make(map[string]struct{}, 4)
	for p := from; ; {
		if _, ok := seen[p.ID]; ok {
			return decimal.Zero, errors.Wrapf(ErrUpgradeChain, "cycle at purchase %s", p.ID)
		}
		if len(seen) >= f.opts.maxChainDepth {
			return decimal.Zero, errors.Wrapf(ErrUpgradeChain, "longer than %d purchases", f.opts.maxChainDepth)
		}
		seen[p.ID] = struct{}{}
		total = total.Add(p.TotalAmount)

		if p.UpgradedFromID == "" {
			return total, nil
		}
		next, err := f.repo.GetPurchase(ctx, p.UpgradedFromID)
		if errors.Is(err, purchase.ErrNotFound) {
			return decimal.Zero, errors.Wrapf(ErrUpgradeChain, "purchase %s missing", p.UpgradedFromID)
		}
		if err != nil {
			return decimal.Zero, errors.Wrap(err, "get chained purchase")
		}
		p = next
	}
}
