// Package engine fans a query out to every requested source, collects what
// comes back before a global deadline and merges it into one price-ordered
// response. Responses with at least one record are cached for a short while
// so repeated identical queries do not reach the catalogs again.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/priceradar/priceradar/internal/apperr"
	"github.com/priceradar/priceradar/internal/cache"
	"github.com/priceradar/priceradar/internal/model"
	"github.com/priceradar/priceradar/internal/obs"
	"github.com/priceradar/priceradar/internal/source"
)

// ErrEmptyQuery is returned when the query is blank after trimming.
var ErrEmptyQuery = apperr.BadRequest("query required")

// DefaultDeadline bounds a whole fan-out.
const DefaultDeadline = 30 * time.Second

const (
	modeSearch  = "search"
	modeCompare = "compare"
)

// Cache and flight key namespaces. Every key starts with one of these as its
// own part, so no query text can make a search key equal a compare key.
const (
	searchPrefix = "search"
	cmpPrefix    = "cmp"
)

// Pool runs submitted work with bounded concurrency. queue.Manager is the
// production implementation.
type Pool interface {
	Submit(ctx context.Context, source string, run func(ctx context.Context)) bool
}

// Stats is a snapshot of engine counters.
type Stats struct {
	Searches  uint64      `json:"searches"`
	Compares  uint64      `json:"compares"`
	Deadlines uint64      `json:"deadline_hits"`
	Collapsed uint64      `json:"collapsed_requests"`
	Cache     cache.Stats `json:"cache"`
}

// Engine aggregates product records across sources.
type Engine struct {
	reg      *source.Registry
	pool     Pool
	cache    *cache.Cache[any]
	deadline time.Duration
	group    singleflight.Group

	searches  atomic.Uint64
	compares  atomic.Uint64
	deadlines atomic.Uint64
	collapsed atomic.Uint64
}

// New creates an Engine. A non-positive deadline means DefaultDeadline.
func New(reg *source.Registry, pool Pool, c *cache.Cache[any], deadline time.Duration) *Engine {
	if deadline <= 0 {
		deadline = DefaultDeadline
	}
	return &Engine{reg: reg, pool: pool, cache: c, deadline: deadline}
}

// Sources returns the ids of every registered source in declaration order.
func (e *Engine) Sources() []model.Source { return e.reg.IDs() }

// Stats returns current counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Searches:  e.searches.Load(),
		Compares:  e.compares.Load(),
		Deadlines: e.deadlines.Load(),
		Collapsed: e.collapsed.Load(),
		Cache:     e.cache.Stats(),
	}
}

// sourceResult is what one job reports back. A non-nil Err means the source
// failed and Records is ignored.
type sourceResult struct {
	Source  model.Source
	Records []model.ProductRecord
	Err     error
	Elapsed time.Duration
}

// Search queries the requested sources, or all of them when requested holds
// nothing registered, and returns the merged response.
func (e *Engine) Search(ctx context.Context, query string, requested []model.Source) (model.AggregatedResponse, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return model.AggregatedResponse{}, ErrEmptyQuery
	}
	e.searches.Add(1)
	ids := e.reg.Resolve(requested)
	key := searchKey(q, ids)

	v, err := e.cached(ctx, key, func(ctx context.Context) (any, bool) {
		resp := e.search(ctx, q, ids)
		return resp, resp.Total > 0
	})
	if err != nil {
		return model.AggregatedResponse{}, err
	}
	resp, ok := v.(model.AggregatedResponse)
	if !ok {
		return model.AggregatedResponse{}, fmt.Errorf("engine: search key %s holds %T", key, v)
	}
	return resp, nil
}

// Compare queries every source and keeps each source's first record, cheapest
// first.
func (e *Engine) Compare(ctx context.Context, query string) (model.CompareResponse, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return model.CompareResponse{}, ErrEmptyQuery
	}
	e.compares.Add(1)
	key := cache.Key(cmpPrefix, q)

	v, err := e.cached(ctx, key, func(ctx context.Context) (any, bool) {
		resp := e.compare(ctx, q)
		return resp, len(resp.Results) > 0
	})
	if err != nil {
		return model.CompareResponse{}, err
	}
	resp, ok := v.(model.CompareResponse)
	if !ok {
		return model.CompareResponse{}, fmt.Errorf("engine: compare key %s holds %T", key, v)
	}
	return resp, nil
}

// cached serves key from the cache or runs build once for every concurrent
// caller of the same key. build is detached from the first caller's
// cancellation so one impatient client cannot fail the others; each caller
// still stops waiting when its own ctx ends. Only values build marks as
// keepable are stored.
func (e *Engine) cached(ctx context.Context, key string, build func(ctx context.Context) (any, bool)) (any, error) {
	if v, ok := e.cache.Get(key); ok {
		obs.CacheLookup(true)
		obs.Logger.Debug().Str("key", key).Msg("cache_hit")
		return v, nil
	}
	obs.CacheLookup(false)

	ch := e.group.DoChan(key, func() (any, error) {
		v, keep := build(context.WithoutCancel(ctx))
		if keep {
			e.cache.Put(key, v)
		}
		return v, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Shared {
			e.collapsed.Add(1)
		}
		return r.Val, r.Err
	}
}

func (e *Engine) search(ctx context.Context, q string, ids []model.Source) model.AggregatedResponse {
	agg := newTrace(modeSearch, q)
	start := time.Now()
	bySource := e.gather(ctx, agg, q, ids)

	all := make([]model.ProductRecord, 0)
	for _, id := range ids {
		all = append(all, bySource[id]...)
	}
	sortByPrice(all)

	elapsed := time.Since(start)
	obs.ObserveAggregation(modeSearch, elapsed.Seconds())
	resp := model.AggregatedResponse{
		Query:      q,
		Sources:    ids,
		Total:      len(all),
		Elapsed:    roundSeconds(elapsed),
		ByPlatform: bySource,
		All:        all,
	}
	agg.finish(resp.Total, elapsed)
	return resp
}

func (e *Engine) compare(ctx context.Context, q string) model.CompareResponse {
	agg := newTrace(modeCompare, q)
	start := time.Now()
	ids := e.reg.IDs()
	bySource := e.gather(ctx, agg, q, ids)

	results := make([]model.ProductRecord, 0, len(ids))
	for _, id := range ids {
		if recs := bySource[id]; len(recs) > 0 {
			results = append(results, recs[0])
		}
	}
	sortByPrice(results)

	elapsed := time.Since(start)
	obs.ObserveAggregation(modeCompare, elapsed.Seconds())
	resp := model.CompareResponse{Query: q, Results: results}
	if len(results) > 0 {
		best := results[0]
		resp.Best = &best
	}
	agg.finish(len(results), elapsed)
	return resp
}

// gather submits one job per source and waits for results until every
// source has reported or the deadline passes. The returned map has exactly
// one non-nil entry per id; sources that failed or did not report in time
// map to an empty slice. Only this goroutine writes the map.
func (e *Engine) gather(parent context.Context, agg *trace, q string, ids []model.Source) map[model.Source][]model.ProductRecord {
	ctx, cancel := context.WithTimeout(parent, e.deadline)
	defer cancel()

	bySource := make(map[model.Source][]model.ProductRecord, len(ids))
	// Sized so a job never blocks on send, even after nobody is reading.
	results := make(chan sourceResult, len(ids))
	pending := make(map[model.Source]bool, len(ids))
	for _, id := range ids {
		bySource[id] = []model.ProductRecord{}
		a, ok := e.reg.Get(id)
		if !ok {
			continue
		}
		if !e.pool.Submit(ctx, string(id), job(a, q, results)) {
			obs.Logger.Warn().Str("agg_id", agg.id).Str("source", string(id)).Msg("source_rejected")
			obs.ObserveSource(string(id), obs.OutcomeError, 0)
			continue
		}
		pending[id] = true
	}
	agg.state("pending")

	for len(pending) > 0 {
		select {
		case r := <-results:
			delete(pending, r.Source)
			e.accept(agg, r, bySource)
			if len(pending) > 0 {
				agg.state("partial")
			}
		case <-ctx.Done():
			e.deadlines.Add(1)
			late := make([]string, 0, len(pending))
			for _, id := range ids {
				if pending[id] {
					late = append(late, string(id))
					obs.ObserveSource(string(id), obs.OutcomeTimeout, e.deadline.Seconds())
				}
			}
			obs.Logger.Info().Str("agg_id", agg.id).Strs("outstanding", late).Dur("deadline", e.deadline).Msg("aggregation_deadline")
			return bySource
		}
	}
	return bySource
}

func (e *Engine) accept(agg *trace, r sourceResult, bySource map[model.Source][]model.ProductRecord) {
	secs := r.Elapsed.Seconds()
	switch {
	case r.Err != nil:
		outcome := obs.OutcomeError
		if errors.Is(r.Err, context.DeadlineExceeded) {
			outcome = obs.OutcomeTimeout
		}
		obs.ObserveSource(string(r.Source), outcome, secs)
		obs.Logger.Warn().Str("agg_id", agg.id).Str("source", string(r.Source)).Dur("elapsed", r.Elapsed).Err(r.Err).Msg("source_failed")
	case len(r.Records) == 0:
		obs.ObserveSource(string(r.Source), obs.OutcomeEmpty, secs)
		obs.Logger.Debug().Str("agg_id", agg.id).Str("source", string(r.Source)).Dur("elapsed", r.Elapsed).Msg("source_empty")
	default:
		obs.ObserveSource(string(r.Source), obs.OutcomeOK, secs)
		bySource[r.Source] = r.Records
		obs.Logger.Debug().Str("agg_id", agg.id).Str("source", string(r.Source)).Int("records", len(r.Records)).Dur("elapsed", r.Elapsed).Msg("source_done")
	}
}

// job wraps one adapter call. It always reports exactly once, turning a
// panic into an error so the worker survives.
func job(a source.Adapter, q string, out chan<- sourceResult) func(context.Context) {
	return func(ctx context.Context) {
		start := time.Now()
		res := sourceResult{Source: a.Source()}
		defer func() {
			if p := recover(); p != nil {
				res.Records = nil
				res.Err = fmt.Errorf("%s: panic: %v", a.Source(), p)
			}
			res.Elapsed = time.Since(start)
			out <- res
		}()
		recs, err := a.Search(ctx, q)
		if err != nil {
			res.Err = fmt.Errorf("%s: %w", a.Source(), err)
			return
		}
		res.Records = recs
	}
}

func searchKey(q string, ids []model.Source) string {
	sorted := make([]string, len(ids))
	for i, id := range ids {
		sorted[i] = string(id)
	}
	sort.Strings(sorted)
	return cache.Key(searchPrefix, q, strings.Join(sorted, ","))
}

func sortByPrice(recs []model.ProductRecord) {
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].Price < recs[j].Price })
}

func roundSeconds(d time.Duration) float64 {
	return math.Round(d.Seconds()*100) / 100
}

// trace logs the lifecycle of one aggregation under a single id.
type trace struct {
	id   string
	mode string
}

func newTrace(mode, q string) *trace {
	t := &trace{id: uuid.NewString(), mode: mode}
	obs.Logger.Debug().Str("agg_id", t.id).Str("mode", mode).Str("query", q).Msg("aggregation_start")
	return t
}

func (t *trace) state(s string) {
	obs.Logger.Debug().Str("agg_id", t.id).Str("mode", t.mode).Str("state", s).Msg("aggregation_state")
}

func (t *trace) finish(total int, elapsed time.Duration) {
	t.state("complete")
	next := "discarded"
	if total > 0 {
		next = "cached"
	}
	obs.Logger.Info().Str("agg_id", t.id).Str("mode", t.mode).Int("total", total).Dur("elapsed", elapsed).Str("state", next).Msg("aggregation_complete")
}
