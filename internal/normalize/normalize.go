// Package normalize canonicalizes raw catalog text into record fields.
//
// Every adapter goes through Price to decide what counts as a price, so the
// sanity threshold lives here and nowhere else.
package normalize

import (
	"math"
	"net/url"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// MinPrice is the sanity threshold: a parsed amount must be strictly greater
// than this to be a price. It keeps "Rs. 5 off" banners out of the results.
const MinPrice = 10

var (
	priceNoise  = regexp.MustCompile(`[₹$£€,\s]`)
	numberToken = regexp.MustCompile(`\d+(?:\.\d+)?`)
	leadRating  = regexp.MustCompile(`^([\d.]+)`)
	freeRating  = regexp.MustCompile(`\b([3-5]\.\d)\b`)
	hundred     = decimal.NewFromInt(100)
	maxPrice    = decimal.NewFromInt(math.MaxInt64)
)

// Price extracts an integer amount of minor currency units from raw text.
// It returns false when no number is present, the value is not above
// MinPrice, or it does not fit in an int64.
func Price(raw string) (int64, bool) {
	if raw == "" {
		return 0, false
	}
	tok := numberToken.FindString(priceNoise.ReplaceAllString(raw, ""))
	if tok == "" {
		return 0, false
	}
	d, err := decimal.NewFromString(tok)
	if err != nil || d.GreaterThan(maxPrice) {
		return 0, false
	}
	v := d.IntPart()
	if v <= MinPrice {
		return 0, false
	}
	return v, true
}

// PricePtr is Price for optional text, returning nil when absent or invalid.
func PricePtr(raw *string) *int64 {
	if raw == nil {
		return nil
	}
	v, ok := Price(*raw)
	if !ok {
		return nil
	}
	return &v
}

// Discount derives the percentage saved against listPrice. It is nil unless
// listPrice is strictly greater than price. Halves round to even.
func Discount(price int64, listPrice *int64) *int {
	if listPrice == nil || *listPrice <= price || *listPrice <= 0 {
		return nil
	}
	p := decimal.NewFromInt(price)
	l := decimal.NewFromInt(*listPrice)
	pct := decimal.NewFromInt(1).Sub(p.Div(l)).Mul(hundred).RoundBank(0)
	v := int(pct.IntPart())
	return &v
}

// Rating returns the leading decimal token of raw, e.g. "4.3 out of 5 stars".
func Rating(raw string) *string {
	m := leadRating.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil || strings.Trim(m[1], ".") == "" {
		return nil
	}
	return &m[1]
}

// RatingIn finds a standalone 3.0-5.9 rating anywhere in free text.
func RatingIn(text string) *string {
	m := freeRating.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	return &m[1]
}

// AbsURL resolves href against base. Empty input yields nil; absolute links
// are returned unchanged.
func AbsURL(base, href string) *string {
	href = strings.TrimSpace(href)
	if href == "" {
		return nil
	}
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return &href
	}
	b, err := url.Parse(base)
	if err != nil {
		return nil
	}
	ref, err := url.Parse(href)
	if err != nil {
		return nil
	}
	s := b.ResolveReference(ref).String()
	return &s
}

// Optional returns nil for blank strings.
func Optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// Text collapses runs of whitespace and trims.
func Text(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
