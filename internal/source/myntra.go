package source

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/priceradar/priceradar/internal/fetch"
	"github.com/priceradar/priceradar/internal/model"
)

// NewMyntra returns the myntra.com adapter. Names combine brand and product
// line; Myntra exposes no ratings on listing cards.
func NewMyntra(g fetch.Getter) Adapter {
	return &cardAdapter{
		src:  model.Myntra,
		base: "https://www.myntra.com/",
		g:    g,
		url: func(q string) string {
			e := url.QueryEscape(q)
			return "https://www.myntra.com/" + e + "?rawQuery=" + e
		},
		items: "li.product-base",
		name: func(card *goquery.Selection) string {
			brand := firstText(card, "h3.product-brand")
			line := firstText(card, "h4.product-product")
			return strings.TrimSpace(brand + " " + line)
		},
		price: []string{"span.product-discountedPrice", "div.product-price span"},
		mrp:   []string{"span.product-strike"},
		link:  []string{"a[href]"},
		img:   []string{"img.img-responsive", "picture img"},
	}
}
