// Package source holds one adapter per catalog. An adapter turns a query
// into normalized product records for its catalog and is otherwise opaque to
// the aggregation engine.
package source

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/priceradar/priceradar/internal/fetch"
	"github.com/priceradar/priceradar/internal/model"
	"github.com/priceradar/priceradar/internal/normalize"
)

// Adapter searches one catalog. Implementations are stateless and must
// return either records or an error, never both.
type Adapter interface {
	Source() model.Source
	Search(ctx context.Context, query string) ([]model.ProductRecord, error)
}

// Func adapts a plain function to Adapter. Tests use it for fakes.
type Func struct {
	ID model.Source
	Fn func(ctx context.Context, query string) ([]model.ProductRecord, error)
}

func (f Func) Source() model.Source { return f.ID }

func (f Func) Search(ctx context.Context, query string) ([]model.ProductRecord, error) {
	return f.Fn(ctx, query)
}

// Registry maps source ids to adapters in registration order. IDs, Resolve
// and therefore the engine's tie-break between equal prices follow the order
// adapters were passed to NewRegistry, not model.AllSources. Default
// registers in model.AllSources order.
type Registry struct {
	order    []model.Source
	adapters map[model.Source]Adapter
}

// NewRegistry builds a Registry. Later adapters with a repeated id replace
// earlier ones without changing the order.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[model.Source]Adapter, len(adapters))}
	for _, a := range adapters {
		id := a.Source()
		if _, dup := r.adapters[id]; !dup {
			r.order = append(r.order, id)
		}
		r.adapters[id] = a
	}
	return r
}

// Default registers every known catalog backed by g.
func Default(g fetch.Getter) *Registry {
	return NewRegistry(
		NewAmazon(g),
		NewFlipkart(g),
		NewMyntra(g),
		NewMeesho(g),
		NewCroma(g),
		NewNykaa(g),
		NewSnapdeal(g),
	)
}

// Get returns the adapter for id.
func (r *Registry) Get(id model.Source) (Adapter, bool) {
	a, ok := r.adapters[id]
	return a, ok
}

// Known reports whether id has an adapter.
func (r *Registry) Known(id model.Source) bool {
	_, ok := r.adapters[id]
	return ok
}

// IDs returns registered ids in declaration order.
func (r *Registry) IDs() []model.Source {
	return append([]model.Source(nil), r.order...)
}

// Resolve filters requested ids to registered ones, keeping declaration
// order. Nothing usable means every registered source.
func (r *Registry) Resolve(requested []model.Source) []model.Source {
	want := make(map[model.Source]bool, len(requested))
	for _, id := range requested {
		want[id] = true
	}
	out := make([]model.Source, 0, len(requested))
	for _, id := range r.order {
		if want[id] {
			out = append(out, id)
		}
	}
	if len(out) == 0 {
		return r.IDs()
	}
	return out
}

func fetchDoc(ctx context.Context, g fetch.Getter, src model.Source, target string) (*goquery.Document, error) {
	body, err := g.Get(ctx, string(src), target)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", src, err)
	}
	return doc, nil
}

// firstText returns the trimmed text of the first node matching any of the
// selectors, tried in order.
func firstText(s *goquery.Selection, selectors ...string) string {
	for _, sel := range selectors {
		if m := s.Find(sel).First(); m.Length() > 0 {
			if t := normalize.Text(m.Text()); t != "" {
				return t
			}
		}
	}
	return ""
}

// firstAttr returns attr of the first node matching any selector.
func firstAttr(s *goquery.Selection, attr string, selectors ...string) string {
	for _, sel := range selectors {
		if m := s.Find(sel).First(); m.Length() > 0 {
			if v, ok := m.Attr(attr); ok {
				return strings.TrimSpace(v)
			}
		}
	}
	return ""
}

// spacedText joins every text node under s with single spaces, so adjacent
// inline elements do not run together.
func spacedText(s *goquery.Selection) string {
	var parts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				parts = append(parts, t)
			}
			return
		}
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range s.Nodes {
		walk(n)
	}
	return strings.Join(parts, " ")
}

// take yields at most limit items of sel.
func take(sel *goquery.Selection, limit int) *goquery.Selection {
	if sel.Length() > limit {
		return sel.Slice(0, limit)
	}
	return sel
}
