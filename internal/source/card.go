package source

import (
	"context"

	"github.com/PuerkitoBio/goquery"

	"github.com/priceradar/priceradar/internal/fetch"
	"github.com/priceradar/priceradar/internal/model"
	"github.com/priceradar/priceradar/internal/normalize"
)

// cardLimit caps candidates taken from a listing page.
const cardLimit = 8

// cardAdapter covers catalogs that render one self-contained card per
// product. Each catalog supplies its URL builder and selectors.
type cardAdapter struct {
	src    model.Source
	base   string
	g      fetch.Getter
	url    func(query string) string
	items  string
	name   func(card *goquery.Selection) string
	price  []string
	mrp    []string
	link   []string
	img    []string
	rating func(card *goquery.Selection) *string
	skip   func(card *goquery.Selection) bool
}

func (a *cardAdapter) Source() model.Source { return a.src }

// Search fetches the listing page and extracts up to cardLimit records.
// Cards that do not yield a valid record are skipped.
func (a *cardAdapter) Search(ctx context.Context, query string) ([]model.ProductRecord, error) {
	doc, err := fetchDoc(ctx, a.g, a.src, a.url(query))
	if err != nil {
		return nil, err
	}
	return a.extract(doc), nil
}

func (a *cardAdapter) extract(doc *goquery.Document) []model.ProductRecord {
	var out []model.ProductRecord
	take(doc.Find(a.items), cardLimit).Each(func(_ int, card *goquery.Selection) {
		if rec, ok := a.card(card); ok {
			out = append(out, rec)
		}
	})
	return out
}

func (a *cardAdapter) card(card *goquery.Selection) (model.ProductRecord, bool) {
	if a.skip != nil && a.skip(card) {
		return model.ProductRecord{}, false
	}
	price, ok := normalize.Price(firstText(card, a.price...))
	if !ok {
		return model.ProductRecord{}, false
	}
	var mrp *int64
	if len(a.mrp) > 0 {
		if v, ok := normalize.Price(firstText(card, a.mrp...)); ok {
			mrp = &v
		}
	}
	rec, ok := model.NewProductRecord(a.src, a.name(card), price, mrp)
	if !ok {
		return model.ProductRecord{}, false
	}
	rec.URL = normalize.AbsURL(a.base, firstAttr(card, "href", a.link...))
	rec.Img = normalize.Optional(firstAttr(card, "src", a.img...))
	if a.rating != nil {
		rec.Rating = a.rating(card)
	}
	return rec, true
}

// textOf returns a name extractor reading the first matching selector.
func textOf(selectors ...string) func(*goquery.Selection) string {
	return func(card *goquery.Selection) string {
		return firstText(card, selectors...)
	}
}
