package source

import (
	"net/url"

	"github.com/PuerkitoBio/goquery"

	"github.com/priceradar/priceradar/internal/fetch"
	"github.com/priceradar/priceradar/internal/model"
	"github.com/priceradar/priceradar/internal/normalize"
)

// NewAmazon returns the amazon.in adapter. Sponsored cards are skipped.
func NewAmazon(g fetch.Getter) Adapter {
	return &cardAdapter{
		src:   model.Amazon,
		base:  "https://www.amazon.in",
		g:     g,
		url:   func(q string) string { return "https://www.amazon.in/s?k=" + url.QueryEscape(q) },
		items: "div[data-component-type='s-search-result']",
		name:  textOf("h2 a span", "h2 span"),
		price: []string{"span.a-price:not(.a-text-price) span.a-offscreen"},
		mrp:   []string{"span.a-price.a-text-price span.a-offscreen"},
		link:  []string{"h2 a[href]", "a.a-link-normal[href]"},
		img:   []string{"img.s-image"},
		rating: func(card *goquery.Selection) *string {
			return normalize.Rating(firstText(card, "span.a-icon-alt"))
		},
		skip: func(card *goquery.Selection) bool {
			return card.Find("span.s-label-popover-default").Length() > 0
		},
	}
}
