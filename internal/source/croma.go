package source

import (
	"net/url"

	"github.com/priceradar/priceradar/internal/fetch"
	"github.com/priceradar/priceradar/internal/model"
)

// NewCroma returns the croma.com adapter.
func NewCroma(g fetch.Getter) Adapter {
	return &cardAdapter{
		src:  model.Croma,
		base: "https://www.croma.com",
		g:    g,
		url: func(q string) string {
			e := url.QueryEscape(q)
			return "https://www.croma.com/searchB?q=" + e + "%3Arelevance&text=" + e
		},
		items: "li.product-item, div[class*='product-item']",
		name:  textOf("h3.product-title, a.product-title, [class*='title']"),
		price: []string{"span.amount, [class*='price'] span, span[class*='discount-price']"},
		mrp:   []string{"span.pdpScratchPrice, [class*='old-price'], s"},
		link:  []string{"a[href]"},
		img:   []string{"img"},
	}
}
