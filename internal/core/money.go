// Package core provides money parsing and handling utilities.
//
// Amounts are carried as decimal.Decimal end to end. Uploaded amounts are
// rounded to AmountScale on ingest; computed values are rounded when they are
// written to the store or rendered.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

const (
	// AmountScale is the number of fractional digits of a stored amount.
	AmountScale int32 = 2

	// DivisionPrecision is the number of fractional digits kept by the
	// proportional split before the final rounding.
	DivisionPrecision int32 = 16
)

// Tolerance is one minor currency unit.
var Tolerance = decimal.New(1, -AmountScale)

// ParseAmount converts a user supplied amount into a decimal.
//
// It accepts a dot or a comma as decimal separator, thousands separators,
// currency symbols, surrounding whitespace and accounting style negatives
// written in parentheses. Negative values are allowed; callers that need a
// positive amount check the sign themselves.
//
// Examples:
//
//	ParseAmount("1,234.50") -> 1234.5
//	ParseAmount("12,5")     -> 12.5
//	ParseAmount("(40.00)")  -> -40
//	ParseAmount("€ 7")      -> 7
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	s = strings.Map(func(r rune) rune {
		switch r {
		case '$', '€', '£', ' ', '\u00a0', '\'':
			return -1
		}
		return r
	}, s)

	hasDot := strings.Contains(s, ".")
	commas := strings.Count(s, ",")
	switch {
	case commas == 0:
	case hasDot:
		s = strings.ReplaceAll(s, ",", "")
	case commas == 1 && len(s)-strings.Index(s, ",")-1 != 3:
		s = strings.Replace(s, ",", ".", 1)
	default:
		s = strings.ReplaceAll(s, ",", "")
	}

	if s == "" || s == "-" || s == "+" {
		return decimal.Zero, ErrInvalidAmount
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

// ParseAmountOrZero treats a blank value as zero and otherwise behaves like
// ParseAmount.
func ParseAmountOrZero(s string) (decimal.Decimal, error) {
	if strings.TrimSpace(s) == "" {
		return decimal.Zero, nil
	}
	return ParseAmount(s)
}

// RoundAmount rounds to AmountScale, half away from zero.
func RoundAmount(d decimal.Decimal) decimal.Decimal {
	return d.Round(AmountScale)
}

// FormatAmount renders an amount with exactly AmountScale decimals.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(AmountScale)
}

// Sum adds up a list of amounts.
func Sum(amounts ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}

// WithinTolerance reports whether a and b differ by at most Tolerance.
func WithinTolerance(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(Tolerance)
}
