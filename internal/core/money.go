// Money handling: amounts are decimal end-to-end in application code and
// cross the storage boundary as integer minor units, so balance increments
// stay exact under repeated addition.
package core

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount parses a user-supplied monetary amount. It accepts both dot
// (12.34) and comma (12,34) decimal separators, rounds half-up to two
// decimal places, and rejects zero or negative values.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", "."))
	if s == "" {
		return decimal.Zero, fmt.Errorf("%w: empty amount", ErrInvalid)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: amount %q", ErrInvalid, s)
	}
	d = d.Round(2)
	if !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: amount must be positive", ErrInvalid)
	}
	return d, nil
}

// Cents converts an amount to integer minor units. Amounts are rounded to
// two places first so the conversion never truncates.
func Cents(d decimal.Decimal) int64 {
	return d.Round(2).Shift(2).IntPart()
}

// FromCents converts integer minor units back to a decimal amount.
func FromCents(c int64) decimal.Decimal {
	return decimal.New(c, -2)
}
