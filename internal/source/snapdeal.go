package source

import (
	"net/url"

	"github.com/priceradar/priceradar/internal/fetch"
	"github.com/priceradar/priceradar/internal/model"
)

// NewSnapdeal returns the snapdeal.com adapter. Lazy-loaded images keep a
// placeholder in src, so an absolute http image is preferred.
func NewSnapdeal(g fetch.Getter) Adapter {
	return &cardAdapter{
		src:  model.Snapdeal,
		base: "https://www.snapdeal.com",
		g:    g,
		url: func(q string) string {
			e := url.QueryEscape(q)
			return "https://www.snapdeal.com/search?keyword=" + e + "&santizedKeyword=" + e
		},
		items: "div.product-tuple-listing, div[class*='product-tuple']",
		name:  textOf("p.product-title, [class*='product-title']"),
		price: []string{"span.lfloat.product-price, [class*='product-price']"},
		mrp:   []string{"span.product-desc-price, s"},
		link:  []string{"a[href]"},
		img:   []string{"img[src*='http']", "img"},
	}
}
