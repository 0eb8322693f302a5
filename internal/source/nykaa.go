package source

import (
	"net/url"

	"github.com/priceradar/priceradar/internal/fetch"
	"github.com/priceradar/priceradar/internal/model"
)

func NewNykaa(g fetch.Getter) Adapter {
	return &cardAdapter{
		src:   model.Nykaa,
		base:  "https://www.nykaa.com",
		g:     g,
		url:   func(q string) string { return "https://www.nykaa.com/search/result/?q=" + url.QueryEscape(q) + "&root=search" },
		items: "div[class*='product-list'] div[class*='product'], div.product-container",
		name:  textOf("[class*='product-name'], [class*='productName'], h3"),
		price: []string{"[class*='price-offer'], [class*='offer-price'], [class*='discounted']"},
		mrp:   []string{"[class*='price-mrp'], [class*='mrp'], s"},
		link:  []string{"a[href]"},
		img:   []string{"img"},
	}
}
