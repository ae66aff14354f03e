package normalize

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotNumeric is returned when a non-empty cell cannot be read as a number.
	ErrNotNumeric = errors.New("not a number")
	// ErrNegative is returned for prices below zero.
	ErrNegative = errors.New("negative value")
)

// Cells made only of dashes, currency marks, commas and spaces are
// placeholders suppliers use for "no price".
var placeholderRe = regexp.MustCompile(`^[\s\-€$£,.]*$`)

var currencyRe = regexp.MustCompile(`(?i)[€$£]|\b(?:eur|euros?|usd|gbp)\b`)

// IsPlaceholder reports whether a raw cell carries no value.
func IsPlaceholder(raw string) bool {
	return placeholderRe.MatchString(raw)
}

// ParseDecimal coerces a locale-formatted cell ("1.234,56 €", "199,99",
// "199.99") into a decimal. Empty and placeholder cells yield an invalid
// NullDecimal and no error. Parsing is idempotent: the String() of a parsed
// value parses back to the same value.
func ParseDecimal(raw string) (decimal.NullDecimal, error) {
	s := Text(raw)
	if IsPlaceholder(s) {
		return decimal.NullDecimal{}, nil
	}

	s = currencyRe.ReplaceAllString(s, "")
	s = strings.Map(func(r rune) rune {
		if isSpace(r) || r == '\'' {
			return -1
		}
		return r
	}, s)
	if s == "" {
		return decimal.NullDecimal{}, nil
	}

	s = resolveSeparators(s)
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("%w: %q", ErrNotNumeric, raw)
	}
	if d.IsNegative() {
		return decimal.NullDecimal{}, fmt.Errorf("%w: %q", ErrNegative, raw)
	}
	return decimal.NewNullDecimal(d), nil
}

// resolveSeparators rewrites s so that "." is the only decimal mark and no
// thousands marker is left.
// When both marks appear, the last one is the decimal mark. A single comma is
// a decimal comma. Repeated commas or repeated dots are thousands markers.
func resolveSeparators(s string) string {
	commas := strings.Count(s, ",")
	dots := strings.Count(s, ".")

	switch {
	case commas > 0 && dots > 0:
		if strings.LastIndex(s, ",") > strings.LastIndex(s, ".") {
			s = strings.ReplaceAll(s, ".", "")
			return strings.Replace(s, ",", ".", 1)
		}
		return strings.ReplaceAll(s, ",", "")
	case commas == 1:
		return strings.Replace(s, ",", ".", 1)
	case commas > 1:
		return strings.ReplaceAll(s, ",", "")
	case dots > 1:
		return strings.ReplaceAll(s, ".", "")
	}
	return s
}
