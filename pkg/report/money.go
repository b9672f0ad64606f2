package report

import (
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Money formats currency amounts for one locale.
type Money struct {
	printer *message.Printer
	symbol  string
}

// NewMoney returns a formatter for a BCP 47 locale such as "en-IN".
// The currency follows the locale's region and defaults to INR.
func NewMoney(locale string) (*Money, error) {
	tag, err := language.Parse(locale)
	if err != nil {
		return nil, fmt.Errorf("parsing locale %q: %w", locale, err)
	}

	unit, conf := currency.FromTag(tag)
	if conf == language.No {
		unit = currency.INR
	}

	printer := message.NewPrinter(tag)
	symbol := printer.Sprint(currency.Symbol(unit))
	if symbol == unit.String() {
		// No localized symbol, so the ISO code is used and needs a gap.
		symbol += " "
	}

	return &Money{printer: printer, symbol: symbol}, nil
}

// Format renders d with two decimals and locale digit grouping.
func (m *Money) Format(d decimal.Decimal) string {
	f := d.Round(2).InexactFloat64()
	sign := ""
	if f < 0 {
		sign, f = "-", -f
	}
	return sign + m.symbol + m.printer.Sprint(number.Decimal(f,
		number.MinFractionDigits(2), number.MaxFractionDigits(2)))
}

// Int renders n with locale digit grouping.
func (m *Money) Int(n int) string {
	return m.printer.Sprint(number.Decimal(n))
}
