package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseSourcesFiltersAndOrders(t *testing.T) {
	got := ParseSources(" Flipkart,bogus,amazon,,flipkart ")
	assert.Equal(t, []Source{Amazon, Flipkart}, got)
}

func TestParseSourcesEmpty(t *testing.T) {
	assert.Empty(t, ParseSources(""))
	assert.Empty(t, ParseSources("nope,zilch"))
}

func TestResolveSourcesDefaultsToAll(t *testing.T) {
	assert.Equal(t, AllSources, ResolveSources(nil))
	assert.Equal(t, AllSources, ResolveSources([]Source{"unknown"}))
	assert.Equal(t, []Source{Myntra, Snapdeal}, ResolveSources([]Source{Snapdeal, Myntra}))
}

func TestSourceLabel(t *testing.T) {
	assert.Equal(t, "Amazon", Amazon.Label())
	assert.Equal(t, "weird", Source("weird").Label())
	assert.False(t, Source("weird").Known())
}

func TestNewProductRecord(t *testing.T) {
	mrp := int64(1000)
	r, ok := NewProductRecord(Croma, "  Wireless   Mouse ", 800, &mrp)
	assert.True(t, ok)
	assert.Equal(t, "Croma", r.Platform)
	assert.Equal(t, "Wireless Mouse", r.Name)
	if assert.NotNil(t, r.Discount) {
		assert.Equal(t, 20, *r.Discount)
	}

	low := int64(500)
	r, ok = NewProductRecord(Croma, "Mouse", 800, &low)
	assert.True(t, ok)
	assert.Nil(t, r.MRP)
	assert.Nil(t, r.Discount)

	_, ok = NewProductRecord(Croma, "Mouse", 10, nil)
	assert.False(t, ok)
	_, ok = NewProductRecord(Croma, "   ", 500, nil)
	assert.False(t, ok)
}
