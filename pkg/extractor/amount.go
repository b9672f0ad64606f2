package extractor

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// currencyPrefixes are stripped from amounts, longest first.
var currencyPrefixes = []string{"₹", "inr", "rs.", "rs"}

// ParseAmount converts a textual currency amount such as "₹1,234.50",
// "Rs. 280" or "-₹50.00" into a non-negative decimal. The currency symbol,
// thousands separators, whitespace and a leading minus sign are removed; any
// other non-numeric residue is an error.
func ParseAmount(s string) (decimal.Decimal, error) {
	v := strings.TrimSpace(s)
	v = strings.TrimPrefix(v, "-")
	v = strings.TrimSpace(v)

	lower := strings.ToLower(v)
	for _, prefix := range currencyPrefixes {
		if strings.HasPrefix(lower, prefix) {
			v = v[len(prefix):]
			break
		}
	}

	v = strings.Map(func(r rune) rune {
		switch r {
		case ',', ' ', '\t', '\u00a0':
			return -1
		}
		return r
	}, v)
	v = strings.TrimPrefix(v, "-")

	if v == "" {
		return decimal.Zero, errors.New("empty amount")
	}
	for _, r := range v {
		if (r < '0' || r > '9') && r != '.' {
			return decimal.Zero, fmt.Errorf("invalid amount %q", s)
		}
	}

	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return d, nil
}
