package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Currency is an ISO-4217 currency code.
type Currency string

// minorExponents lists currencies whose minor unit is not the usual hundredth.
var minorExponents = map[Currency]int32{
	"BIF": 0, "CLP": 0, "DJF": 0, "GNF": 0, "ISK": 0, "JPY": 0, "KMF": 0, "KRW": 0,
	"PYG": 0, "RWF": 0, "UGX": 0, "UYI": 0, "VND": 0, "VUV": 0, "XAF": 0, "XOF": 0, "XPF": 0,
	"BHD": 3, "IQD": 3, "JOD": 3, "KWD": 3, "LYD": 3, "OMR": 3, "TND": 3,
}

// NormalizeCurrency upper-cases and trims a currency code.
func NormalizeCurrency(s string) Currency {
	return Currency(strings.ToUpper(strings.TrimSpace(s)))
}

// Validate checks the code is three ASCII letters.
func (c Currency) Validate() error {
	if len(c) != 3 {
		return ErrInvalidCurrency
	}
	for _, r := range c {
		if r < 'A' || r > 'Z' {
			return ErrInvalidCurrency
		}
	}
	return nil
}

// Exponent returns the number of decimal digits of the currency's minor unit.
// Unknown codes use 2.
func (c Currency) Exponent() int32 {
	if e, ok := minorExponents[c]; ok {
		return e
	}
	return 2
}

// Unit returns one minor unit expressed in major units (0.01 for EUR).
func (c Currency) Unit() decimal.Decimal {
	return decimal.New(1, -c.Exponent())
}

func (c Currency) String() string {
	return string(c)
}
