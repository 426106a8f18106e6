// Package types provides the monetary type shared by all ledgers.
package types

import (
	"github.com/shopspring/decimal"
)

// Money represents a monetary value with full precision.
// Uses decimal.Decimal to avoid floating-point errors.
type Money = decimal.Decimal

var hundred = decimal.NewFromInt(100)

// NewMoneyFromString creates a Money value from a string.
// This is the preferred method for monetary values.
func NewMoneyFromString(s string) (Money, error) {
	return decimal.NewFromString(s)
}

// NewMoneyFromInt creates a whole Money value.
func NewMoneyFromInt(v int64) Money {
	return decimal.NewFromInt(v)
}

// MustMoney creates a Money value from a string, panics on error.
// Use only for constants and tests.
func MustMoney(s string) Money {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Zero returns zero Money value.
func Zero() Money {
	return decimal.Zero
}

// LineAmount returns price * quantity.
func LineAmount(price Money, quantity int64) Money {
	return price.Mul(decimal.NewFromInt(quantity))
}

// ApplyDiscount reduces amount by a percentage in [0, 100].
func ApplyDiscount(amount, percent Money) Money {
	if percent.IsZero() {
		return amount
	}
	return amount.Mul(hundred.Sub(percent)).Div(hundred)
}

// ValidPercent reports whether p lies in [0, 100].
func ValidPercent(p Money) bool {
	return !p.IsNegative() && p.LessThanOrEqual(hundred)
}

// Min returns the smaller of a and b.
func Min(a, b Money) Money {
	return decimal.Min(a, b)
}
