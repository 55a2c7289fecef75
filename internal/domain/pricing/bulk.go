package pricing

import (
	"sort"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// BulkTier grants Percent off once a team holds at least MinSeats seats.
type BulkTier struct {
	MinSeats int
	Percent  decimal.Decimal
}

// BulkTiers is a step function from seat count to discount, ordered by MinSeats.
type BulkTiers []BulkTier

// DefaultBulkTiers returns the built-in seat tiers.
func DefaultBulkTiers() BulkTiers {
	return BulkTiers{
		{MinSeats: 2, Percent: decimal.RequireFromString("0.05")},
		{MinSeats: 5, Percent: decimal.RequireFromString("0.15")},
		{MinSeats: 10, Percent: decimal.RequireFromString("0.2")},
		{MinSeats: 25, Percent: decimal.RequireFromString("0.25")},
		{MinSeats: 50, Percent: decimal.RequireFromString("0.3")},
		{MinSeats: 100, Percent: decimal.RequireFromString("0.4")},
	}
}

// Percent returns the discount for the highest tier seats reaches.
func (t BulkTiers) Percent(seats int) decimal.Decimal {
	pct := decimal.Zero
	for _, tier := range t {
		if seats < tier.MinSeats {
			break
		}
		pct = tier.Percent
	}
	return pct
}

// Validate checks that tiers are strictly ascending in seats, non-decreasing
// in percent, and that every percent lies in [0,1).
func (t BulkTiers) Validate() error {
	prev := BulkTier{MinSeats: 1, Percent: decimal.Zero}
	for i, tier := range t {
		if tier.MinSeats <= prev.MinSeats {
			return errors.Errorf("tier %d: min seats %d must exceed %d", i, tier.MinSeats, prev.MinSeats)
		}
		if tier.Percent.IsNegative() || tier.Percent.GreaterThanOrEqual(one) {
			return errors.Errorf("tier %d: percent %s out of range [0,1)", i, tier.Percent)
		}
		if tier.Percent.LessThan(prev.Percent) {
			return errors.Errorf("tier %d: percent %s decreases", i, tier.Percent)
		}
		prev = tier
	}
	return nil
}

// ParseBulkTiers parses "2:0.05,5:0.15" into validated tiers.
func ParseBulkTiers(s string) (BulkTiers, error) {
	var tiers BulkTiers
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		seatsStr, pctStr, ok := strings.Cut(part, ":")
		if !ok {
			return nil, errors.Errorf("bulk tier %q: want seats:percent", part)
		}
		seats, err := strconv.Atoi(strings.TrimSpace(seatsStr))
		if err != nil {
			return nil, errors.Wrapf(err, "bulk tier %q seats", part)
		}
		pct, err := decimal.NewFromString(strings.TrimSpace(pctStr))
		if err != nil {
			return nil, errors.Wrapf(err, "bulk tier %q percent", part)
		}
		tiers = append(tiers, BulkTier{MinSeats: seats, Percent: pct})
	}
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].MinSeats < tiers[j].MinSeats })
	if err := tiers.Validate(); err != nil {
		return nil, err
	}
	return tiers, nil
}
