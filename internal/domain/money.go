package domain

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

var (
	hundred  = decimal.NewFromInt(100)
	maxCents = decimal.NewFromInt(math.MaxInt64)
	minCents = decimal.NewFromInt(math.MinInt64)
)

// ParseDollars parses a decimal dollar string such as "100.5" into int64
// cents. More than 2 decimal places is an error.
func ParseDollars(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid monetary value %q", s)
	}
	return decimalToCents(d)
}

// DollarsToCents converts a float64 dollar amount to int64 cents.
// It validates that the input has at most 2 decimal places and returns
// an error if more precision is provided. The float is first rendered
// through its shortest decimal representation so values like 1.10 do not
// pick up binary artifacts.
func DollarsToCents(f float64) (int64, error) {
	return decimalToCents(decimal.NewFromFloat(f))
}

func decimalToCents(d decimal.Decimal) (int64, error) {
	cents := d.Mul(hundred)
	if !cents.Equal(cents.Truncate(0)) {
		return 0, fmt.Errorf("monetary values must have at most 2 decimal places")
	}
	if cents.GreaterThan(maxCents) || cents.LessThan(minCents) {
		return 0, fmt.Errorf("invalid monetary value %s: out of range", d.String())
	}
	return cents.IntPart(), nil
}

// mulCents returns price×volume and false when the product does not fit
// in an int64. Both operands are non-negative.
func mulCents(price, volume int64) (int64, bool) {
	if price < 0 || volume < 0 {
		return 0, false
	}
	if price != 0 && volume > math.MaxInt64/price {
		return 0, false
	}
	return price * volume, true
}

// addCents returns a+b and false on overflow. b is non-negative.
func addCents(a, b int64) (int64, bool) {
	if b < 0 || a > math.MaxInt64-b {
		return 0, false
	}
	return a + b, true
}

// headroom is how many units priced at price can be added to total
// before it overflows.
func headroom(total, price int64) int64 {
	if price <= 0 {
		return math.MaxInt64
	}
	return (math.MaxInt64 - max(total, 0)) / price
}

// CentsToDollars converts an int64 cents value to a float64 dollar amount.
func CentsToDollars(c int64) float64 {
	f, _ := decimal.New(c, -2).Float64()
	return f
}

// FormatCents renders cents as a fixed two-decimal dollar string.
func FormatCents(c int64) string {
	return decimal.New(c, -2).StringFixed(2)
}
