// Package core provides the value types shared by the split resolver and the
// settlement engine.
//
// This file contains money parsing and formatting. Amounts are carried as
// integer minor units; decimals only appear at the boundary.
package core

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// Money is an amount in minor units of some currency. The currency travels
// alongside it (expense currency or the trip's home currency).
type Money struct {
	Minor int64
}

// MaxAmountMinor bounds a single expense or payment amount (10^15 minor
// units, ten trillion in a two-decimal currency).
const MaxAmountMinor int64 = 1_000_000_000_000_000

// Validate rejects zero, negative and out-of-range amounts.
func (m Money) Validate() error {
	if m.Minor <= 0 || m.Minor > MaxAmountMinor {
		return ErrInvalidAmount
	}
	return nil
}

// CheckedAdd returns m+o, or ErrBalanceOverflow when the sum does not fit in
// int64.
func (m Money) CheckedAdd(o Money) (Money, error) {
	if (o.Minor > 0 && m.Minor > math.MaxInt64-o.Minor) ||
		(o.Minor < 0 && m.Minor < math.MinInt64-o.Minor) {
		return Money{}, ErrBalanceOverflow
	}
	return Money{Minor: m.Minor + o.Minor}, nil
}

func (m Money) Add(o Money) Money { return Money{Minor: m.Minor + o.Minor} }
func (m Money) Sub(o Money) Money { return Money{Minor: m.Minor - o.Minor} }
func (m Money) Neg() Money        { return Money{Minor: -m.Minor} }
func (m Money) IsZero() bool      { return m.Minor == 0 }

// Abs returns the magnitude of m.
func (m Money) Abs() Money {
	if m.Minor < 0 {
		return Money{Minor: -m.Minor}
	}
	return m
}

// Decimal returns m in major units of c.
func (m Money) Decimal(c Currency) decimal.Decimal {
	return decimal.New(m.Minor, -c.Exponent())
}

// Format renders m with exactly the scale of c, e.g. "12.30" or "-5.00".
func (m Money) Format(c Currency) string {
	return m.Decimal(c).StringFixed(c.Exponent())
}

// ParseAmount converts a positive decimal string to minor units of c.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators. Digits
// beyond the currency scale are rounded half-up. Signs, zero and malformed
// input are rejected, as is anything above MaxAmountMinor.
//
// Examples (EUR):
//
//	ParseAmount("12.34", "EUR")  -> 1234
//	ParseAmount("12,345", "EUR") -> 1235
//	ParseAmount("500", "JPY")    -> 500
func ParseAmount(s string, c Currency) (Money, error) {
	m, err := ParseSignedAmount(s, c)
	if err != nil {
		return Money{}, err
	}
	if strings.HasPrefix(strings.TrimSpace(s), "+") {
		return Money{}, ErrInvalidAmount
	}
	if err := m.Validate(); err != nil {
		return Money{}, err
	}
	return m, nil
}

// ParseSignedAmount is ParseAmount without the sign and zero checks. It is
// used for balances read back from the wire.
func ParseSignedAmount(s string, c Currency) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Money{}, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	for _, r := range s {
		if (r < '0' || r > '9') && r != '.' && r != '-' && r != '+' {
			return Money{}, ErrInvalidAmount
		}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, ErrInvalidAmount
	}
	return FromDecimal(d, c)
}

// FromDecimal rounds a major-unit decimal half away from zero to minor units of c.
func FromDecimal(d decimal.Decimal, c Currency) (Money, error) {
	minor := d.Shift(c.Exponent()).Round(0)
	if !minor.BigInt().IsInt64() {
		return Money{}, ErrInvalidAmount
	}
	return Money{Minor: minor.IntPart()}, nil
}

// ToHome converts an amount in currency from to the home currency using a
// multiplicative rate (1 unit of from = rate units of home). A zero rate is
// treated as 1, matching expenses recorded without a conversion factor.
func ToHome(amount Money, from Currency, rate decimal.Decimal, home Currency) (Money, error) {
	if rate.IsZero() {
		rate = decimal.NewFromInt(1)
	}
	if rate.IsNegative() {
		return Money{}, ErrInvalidRate
	}
	converted, err := FromDecimal(amount.Decimal(from).Mul(rate), home)
	if err != nil {
		return Money{}, err
	}
	if err := converted.Validate(); err != nil {
		return Money{}, err
	}
	return converted, nil
}
