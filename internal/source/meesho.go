package source

import (
	"net/url"

	"github.com/priceradar/priceradar/internal/fetch"
	"github.com/priceradar/priceradar/internal/model"
)

// NewMeesho returns the meesho.com adapter. Meesho cards carry no list
// price, so records from it never have a discount.
func NewMeesho(g fetch.Getter) Adapter {
	return &cardAdapter{
		src:   model.Meesho,
		base:  "https://www.meesho.com",
		g:     g,
		url:   func(q string) string { return "https://www.meesho.com/search?q=" + url.QueryEscape(q) },
		items: "div[class*='ProductCard'], div[class*='product-card']",
		name:  textOf("p[class*='name'], span[class*='name'], h5"),
		price: []string{"h5[class*='price'], span[class*='price'], p[class*='price']"},
		link:  []string{"a[href]"},
		img:   []string{"img"},
	}
}
