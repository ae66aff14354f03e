// Package normalize holds the text and number coercions shared by the
// ingestion stages: whitespace cleanup, accent folding, locale-aware decimal
// parsing and the edit-distance similarity ratio.
package normalize

import (
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalizer transforms a string before comparison.
type Normalizer func(string) string

// A transform.Chain keeps state between calls, so each caller takes its own.
var stripAccents = sync.Pool{
	New: func() any {
		return transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	},
}

// Fold lowercases and strips accents (e.g. DESCRIPCIÓN -> descripcion).
// It is safe for concurrent use.
func Fold(s string) string {
	t := stripAccents.Get().(transform.Transformer)
	defer stripAccents.Put(t)
	result, _, _ := transform.String(t, strings.ToLower(s))
	return result
}

// Lower lowercases but preserves accents.
func Lower(s string) string {
	return strings.ToLower(s)
}

// None returns the string unchanged.
func None(s string) string {
	return s
}

// Get returns the normalizer for the given mode. Default is fold.
func Get(mode string) Normalizer {
	switch mode {
	case "fold":
		return Fold
	case "lower":
		return Lower
	case "none":
		return None
	default:
		return Fold
	}
}

// Text trims s and collapses every run of whitespace (NBSP included) into a
// single space.
func Text(s string) string {
	return strings.Join(strings.FieldsFunc(s, isSpace), " ")
}

// HeaderKey reduces a header cell to a comparable key: folded, with spaces
// and punctuation other than letters and digits removed.
// " P.V.P FINAL CLIENTE " and "pvp final cliente" share the same key.
func HeaderKey(s string) string {
	var b strings.Builder
	for _, r := range Fold(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isSpace(r rune) bool {
	return unicode.IsSpace(r)
}
