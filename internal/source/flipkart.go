package source

import (
	"context"
	"net/url"
	"regexp"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/priceradar/priceradar/internal/fetch"
	"github.com/priceradar/priceradar/internal/model"
	"github.com/priceradar/priceradar/internal/normalize"
)

const (
	flipkartBase      = "https://www.flipkart.com"
	flipkartLinks     = "a[href*='/p/']"
	flipkartScanLinks = 25
	flipkartClimb     = 6
	flipkartMinName   = 5
	flipkartMinPrice  = 50
	flipkartMaxPrice  = 10_000_000
)

var rupeeAmount = regexp.MustCompile(`₹[\d,]+`)

// Flipkart obfuscates its class names, so records are found from product
// links outward instead of from card containers.
type flipkart struct {
	g fetch.Getter
}

// NewFlipkart returns the flipkart.com adapter.
func NewFlipkart(g fetch.Getter) Adapter { return &flipkart{g: g} }

func (f *flipkart) Source() model.Source { return model.Flipkart }

func (f *flipkart) Search(ctx context.Context, query string) ([]model.ProductRecord, error) {
	target := flipkartBase + "/search?q=" + url.QueryEscape(query) + "&otracker=search"
	doc, err := fetchDoc(ctx, f.g, model.Flipkart, target)
	if err != nil {
		return nil, err
	}
	return f.extract(doc), nil
}

func (f *flipkart) extract(doc *goquery.Document) []model.ProductRecord {
	var out []model.ProductRecord
	seen := make(map[string]bool)
	take(doc.Find(flipkartLinks), flipkartScanLinks).EachWithBreak(func(_ int, link *goquery.Selection) bool {
		href, _ := link.Attr("href")
		if href == "" || seen[href] {
			return true
		}
		seen[href] = true
		if rec, ok := f.record(link, href); ok {
			out = append(out, rec)
		}
		return len(out) < cardLimit
	})
	return out
}

func (f *flipkart) record(link *goquery.Selection, href string) (model.ProductRecord, bool) {
	img := link.Find("img").First()
	name := normalize.Text(link.Text())
	if utf8.RuneCountInString(name) < flipkartMinName {
		name = normalize.Text(img.AttrOr("alt", ""))
	}
	if utf8.RuneCountInString(name) < flipkartMinName {
		return model.ProductRecord{}, false
	}

	text := spacedText(container(link))
	var lo, hi int64
	for _, tok := range rupeeAmount.FindAllString(text, -1) {
		v, ok := normalize.Price(tok)
		if !ok || v <= flipkartMinPrice || v >= flipkartMaxPrice {
			continue
		}
		if lo == 0 || v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if lo == 0 {
		return model.ProductRecord{}, false
	}
	var mrp *int64
	if hi != lo {
		mrp = &hi
	}
	rec, ok := model.NewProductRecord(model.Flipkart, name, lo, mrp)
	if !ok {
		return model.ProductRecord{}, false
	}
	rec.Rating = normalize.RatingIn(text)
	rec.URL = normalize.AbsURL(flipkartBase, href)
	rec.Img = normalize.Optional(img.AttrOr("src", ""))
	return rec, true
}

// container climbs div ancestors of link until one holds exactly one product
// link, giving up after flipkartClimb levels.
func container(link *goquery.Selection) *goquery.Selection {
	c := link
	for i := 0; i < flipkartClimb; i++ {
		p := c.ParentsFiltered("div").First()
		if p.Length() == 0 {
			break
		}
		c = p
		if c.Find(flipkartLinks).Length() == 1 {
			break
		}
	}
	return c
}
