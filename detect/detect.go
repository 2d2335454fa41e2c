// Package detect contains the pure text checks of the pipeline: locating a
// BRL price in a message, rejecting posts that advertise several prices,
// and matching watched product names as whole words.
package detect

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// priceRe matches the R$ marker, optional whitespace, then one of two
// layouts: Brazilian "1.234,56" (comma decimals, dot thousands, exactly two
// fractional digits) or plain "1234" / "1234.56" (dot decimals, zero or two
// fractional digits).
var priceRe = regexp.MustCompile(`R\$\s*([\d.]+,\d{2}|\d+(?:\.\d{2})?)`)

// multiRe counts price mentions for the multi-item check. Slightly looser
// than priceRe on purpose: "R$ 1.234" with no decimals still reads as a
// price to a human scanning a multi-item post.
var multiRe = regexp.MustCompile(`R\$\s*[\d.]+(?:,\d{2})?`)

// ExtractPrice returns the first price found in text, normalized to a
// decimal with dot separator. The second return is false when no marker is
// present or the numeric token fits neither layout. Later prices in the
// same text are ignored.
func ExtractPrice(text string) (decimal.Decimal, bool) {
	m := priceRe.FindStringSubmatch(text)
	if m == nil {
		return decimal.Decimal{}, false
	}
	raw := m[1]
	if strings.Contains(raw, ",") {
		// Brazilian layout: drop thousands dots, comma becomes the point.
		raw = strings.ReplaceAll(raw, ".", "")
		raw = strings.Replace(raw, ",", ".", 1)
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

// CountPrices returns the number of price mentions in text.
func CountPrices(text string) int {
	return len(multiRe.FindAllString(text, -1))
}

// IsMultiItemPost reports whether text carries more than one price. Such a
// post cannot be reliably attributed to a single watched product, so the
// pipeline declines to guess.
func IsMultiItemPost(text string) bool {
	return CountPrices(text) > 1
}

// ContainsProduct reports whether name occurs in text as a case-insensitive
// whole word. "Echo Dot" matches "the Echo Dot 5" but not "EchoDots".
func ContainsProduct(text, name string) bool {
	re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(name) + `\b`)
	if err != nil {
		return false
	}
	return re.MatchString(text)
}
