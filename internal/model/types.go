// Package model defines domain types used by the service.
package model

import (
	"strings"

	"github.com/priceradar/priceradar/internal/normalize"
)

// Source identifies one supported catalog.
type Source string

const (
	Amazon   Source = "amazon"
	Flipkart Source = "flipkart"
	Myntra   Source = "myntra"
	Meesho   Source = "meesho"
	Croma    Source = "croma"
	Nykaa    Source = "nykaa"
	Snapdeal Source = "snapdeal"
)

// AllSources lists every known source in declaration order. Merge tie-breaks
// follow this order.
var AllSources = []Source{Amazon, Flipkart, Myntra, Meesho, Croma, Nykaa, Snapdeal}

var labels = map[Source]string{
	Amazon:   "Amazon",
	Flipkart: "Flipkart",
	Myntra:   "Myntra",
	Meesho:   "Meesho",
	Croma:    "Croma",
	Nykaa:    "Nykaa",
	Snapdeal: "Snapdeal",
}

// Label returns the display name used in the platform field of records.
func (s Source) Label() string {
	if l, ok := labels[s]; ok {
		return l
	}
	return string(s)
}

// Known reports whether s is part of the fixed enumeration.
func (s Source) Known() bool {
	_, ok := labels[s]
	return ok
}

// ParseSources turns a comma-separated list into known sources. Unknown ids
// and duplicates are dropped; the result keeps declaration order. An empty
// result means the caller asked for nothing usable and should fall back to
// AllSources.
func ParseSources(csv string) []Source {
	want := make(map[Source]bool)
	for _, part := range strings.Split(csv, ",") {
		s := Source(strings.ToLower(strings.TrimSpace(part)))
		if s.Known() {
			want[s] = true
		}
	}
	return filterKnown(want)
}

// ResolveSources filters ids against the enumeration, defaulting to
// AllSources when nothing known remains.
func ResolveSources(ids []Source) []Source {
	want := make(map[Source]bool, len(ids))
	for _, s := range ids {
		if s.Known() {
			want[s] = true
		}
	}
	out := filterKnown(want)
	if len(out) == 0 {
		return append([]Source(nil), AllSources...)
	}
	return out
}

func filterKnown(want map[Source]bool) []Source {
	out := make([]Source, 0, len(want))
	for _, s := range AllSources {
		if want[s] {
			out = append(out, s)
		}
	}
	return out
}

// ProductRecord is one matched product from one source. Optional fields are
// nil when the catalog did not expose them and serialize as null.
type ProductRecord struct {
	Platform string  `json:"platform"`
	Name     string  `json:"name"`
	Price    int64   `json:"price"`
	MRP      *int64  `json:"mrp"`
	Discount *int    `json:"discount"`
	Rating   *string `json:"rating"`
	URL      *string `json:"url"`
	Img      *string `json:"img"`
}

// AggregatedResponse is the unit cached and returned by the search mode.
type AggregatedResponse struct {
	Query      string                     `json:"query"`
	Sources    []Source                   `json:"sources"`
	Total      int                        `json:"total"`
	Elapsed    float64                    `json:"elapsed"`
	ByPlatform map[Source][]ProductRecord `json:"by_platform"`
	All        []ProductRecord            `json:"all"`
}

// CompareResponse is the payload of the best-single-result mode.
type CompareResponse struct {
	Query   string          `json:"query"`
	Results []ProductRecord `json:"results"`
	Best    *ProductRecord  `json:"best"`
}

// NewProductRecord builds a record from already-normalized values. It refuses
// a blank name or a price at or below normalize.MinPrice, so an invalid record
// cannot exist. A list price is kept only when it is not below price, and the
// discount is always derived here rather than read from markup.
func NewProductRecord(src Source, name string, price int64, listPrice *int64) (ProductRecord, bool) {
	name = normalize.Text(name)
	if name == "" || price <= normalize.MinPrice {
		return ProductRecord{}, false
	}
	if listPrice != nil && *listPrice < price {
		listPrice = nil
	}
	return ProductRecord{
		Platform: src.Label(),
		Name:     name,
		Price:    price,
		MRP:      listPrice,
		Discount: normalize.Discount(price, listPrice),
	}, true
}
