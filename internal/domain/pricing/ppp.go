package pricing

import (
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// PPPTable maps ISO 3166-1 alpha-2 country codes to the regional discount
// fraction offered to single-seat buyers there.
type PPPTable map[string]decimal.Decimal

// Percent returns the discount for country, or zero when none applies.
func (t PPPTable) Percent(country string) decimal.Decimal {
	p, ok := t[strings.ToUpper(strings.TrimSpace(country))]
	if !ok {
		return decimal.Zero
	}
	return p
}

// DefaultPPPTable returns the built-in regional discount table.
func DefaultPPPTable() PPPTable {
	t := make(PPPTable, len(defaultPPP))
	for country, pct := range defaultPPP {
		t[country] = decimal.RequireFromString(pct)
	}
	return t
}

// ParsePPPTable parses "IN:0.6,BR:0.5" into a table. Percentages must lie
// strictly between 0 and 1.
func ParsePPPTable(s string) (PPPTable, error) {
	t := make(PPPTable)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		country, pctStr, ok := strings.Cut(part, ":")
		country = strings.ToUpper(strings.TrimSpace(country))
		if !ok || len(country) != 2 {
			return nil, errors.Errorf("ppp entry %q: want CC:percent", part)
		}
		pct, err := decimal.NewFromString(strings.TrimSpace(pctStr))
		if err != nil {
			return nil, errors.Wrapf(err, "ppp entry %q percent", part)
		}
		if !pct.IsPositive() || pct.GreaterThanOrEqual(one) {
			return nil, errors.Errorf("ppp entry %q: percent out of range (0,1)", part)
		}
		if _, dup := t[country]; dup {
			return nil, errors.Errorf("ppp entry %q: duplicate country", part)
		}
		t[country] = pct
	}
	return t, nil
}

var defaultPPP = map[string]string{
	"AR": "0.6", "BD": "0.75", "BR": "0.5", "CO": "0.6", "EG": "0.75",
	"ID": "0.65", "IN": "0.6", "KE": "0.7", "MX": "0.45", "NG": "0.75",
	"PH": "0.65", "PK": "0.75", "PL": "0.3", "TR": "0.6", "UA": "0.65",
	"VN": "0.7", "ZA": "0.5",
}
