package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/priceradar/priceradar/internal/cache"
	"github.com/priceradar/priceradar/internal/config"
	"github.com/priceradar/priceradar/internal/model"
	"github.com/priceradar/priceradar/internal/obs"
	"github.com/priceradar/priceradar/internal/queue"
	"github.com/priceradar/priceradar/internal/source"
)

func TestMain(m *testing.M) {
	obs.Logger = zerolog.Nop()
	os.Exit(m.Run())
}

// goPool runs every job on its own goroutine.
type goPool struct{}

func (goPool) Submit(ctx context.Context, _ string, run func(context.Context)) bool {
	go run(ctx)
	return true
}

type closedPool struct{}

func (closedPool) Submit(context.Context, string, func(context.Context)) bool { return false }

func rec(src model.Source, price int64) model.ProductRecord {
	r, ok := model.NewProductRecord(src, fmt.Sprintf("%s item %d", src, price), price, nil)
	if !ok {
		panic("invalid fixture record")
	}
	return r
}

// counted returns an adapter that serves recs and counts invocations.
func counted(id model.Source, calls *atomic.Int64, recs ...model.ProductRecord) source.Adapter {
	return source.Func{ID: id, Fn: func(context.Context, string) ([]model.ProductRecord, error) {
		calls.Add(1)
		return recs, nil
	}}
}

func failing(id model.Source, calls *atomic.Int64) source.Adapter {
	return source.Func{ID: id, Fn: func(context.Context, string) ([]model.ProductRecord, error) {
		calls.Add(1)
		return nil, errors.New("connection reset")
	}}
}

func newEngine(pool Pool, deadline time.Duration, adapters ...source.Adapter) *Engine {
	return New(source.NewRegistry(adapters...), pool, cache.New[any](cache.Options{}), deadline)
}

func prices(recs []model.ProductRecord) []int64 {
	out := make([]int64, len(recs))
	for i, r := range recs {
		out[i] = r.Price
	}
	return out
}

func TestSearchMergesAndIsolatesFailures(t *testing.T) {
	var a, b, c atomic.Int64
	e := newEngine(goPool{}, time.Second,
		counted(model.Amazon, &a, rec(model.Amazon, 499), rec(model.Amazon, 799)),
		failing(model.Flipkart, &b),
		counted(model.Myntra, &c, rec(model.Myntra, 650)),
	)

	resp, err := e.Search(context.Background(), "  shoes ", nil)
	require.NoError(t, err)
	assert.Equal(t, "shoes", resp.Query)
	assert.Equal(t, 3, resp.Total)
	assert.Equal(t, []int64{499, 650, 799}, prices(resp.All))
	assert.Equal(t, []model.Source{model.Amazon, model.Flipkart, model.Myntra}, resp.Sources)
	require.Len(t, resp.ByPlatform, 3)
	assert.NotNil(t, resp.ByPlatform[model.Flipkart])
	assert.Empty(t, resp.ByPlatform[model.Flipkart])
	assert.Len(t, resp.ByPlatform[model.Amazon], 2)

	body, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"flipkart":[]`)
}

func TestSearchTotalMatchesByPlatform(t *testing.T) {
	var n atomic.Int64
	e := newEngine(goPool{}, time.Second,
		counted(model.Croma, &n, rec(model.Croma, 300), rec(model.Croma, 100), rec(model.Croma, 200)),
		counted(model.Nykaa, &n, rec(model.Nykaa, 100)),
	)
	resp, err := e.Search(context.Background(), "x", nil)
	require.NoError(t, err)

	sum := 0
	for _, recs := range resp.ByPlatform {
		sum += len(recs)
	}
	assert.Equal(t, resp.Total, sum)
	assert.Equal(t, resp.Total, len(resp.All))
	assert.Equal(t, []int64{100, 100, 200, 300}, prices(resp.All))
	// Equal prices keep source declaration order.
	assert.Equal(t, "Croma", resp.All[0].Platform)
	assert.Equal(t, "Nykaa", resp.All[1].Platform)
}

func TestSearchIsIdempotentWithinTTL(t *testing.T) {
	var calls atomic.Int64
	e := newEngine(goPool{}, time.Second, counted(model.Amazon, &calls, rec(model.Amazon, 999)))

	first, err := e.Search(context.Background(), "mouse", nil)
	require.NoError(t, err)
	second, err := e.Search(context.Background(), "mouse", nil)
	require.NoError(t, err)

	assert.EqualValues(t, 1, calls.Load())
	b1, _ := json.Marshal(first)
	b2, _ := json.Marshal(second)
	assert.Equal(t, string(b1), string(b2))
	assert.EqualValues(t, 1, e.Stats().Cache.Hits)
}

func TestCacheKeyIgnoresSourceOrder(t *testing.T) {
	var a, c atomic.Int64
	e := newEngine(goPool{}, time.Second,
		counted(model.Amazon, &a, rec(model.Amazon, 100)),
		counted(model.Myntra, &c, rec(model.Myntra, 200)),
	)
	_, err := e.Search(context.Background(), "q", []model.Source{model.Myntra, model.Amazon})
	require.NoError(t, err)
	_, err = e.Search(context.Background(), "q", []model.Source{model.Amazon, model.Myntra})
	require.NoError(t, err)
	assert.EqualValues(t, 1, a.Load())
	assert.EqualValues(t, 1, c.Load())

	// A different subset is a different key.
	_, err = e.Search(context.Background(), "q", []model.Source{model.Amazon})
	require.NoError(t, err)
	assert.EqualValues(t, 2, a.Load())
}

func TestTotalFailureIsNotCached(t *testing.T) {
	var calls atomic.Int64
	e := newEngine(goPool{}, time.Second, failing(model.Snapdeal, &calls))

	for i := 0; i < 2; i++ {
		resp, err := e.Search(context.Background(), "q", nil)
		require.NoError(t, err)
		assert.Zero(t, resp.Total)
		assert.NotNil(t, resp.All)
	}
	assert.EqualValues(t, 2, calls.Load())
	assert.Zero(t, e.Stats().Cache.Entries)
}

func TestDeadlineReturnsPartialResults(t *testing.T) {
	var fast atomic.Int64
	release := make(chan struct{})
	defer close(release)
	slow := source.Func{ID: model.Meesho, Fn: func(context.Context, string) ([]model.ProductRecord, error) {
		// Ignores its context: the engine must not wait for it anyway.
		<-release
		return []model.ProductRecord{rec(model.Meesho, 50)}, nil
	}}
	e := newEngine(goPool{}, 100*time.Millisecond, counted(model.Amazon, &fast, rec(model.Amazon, 700)), slow)

	start := time.Now()
	resp, err := e.Search(context.Background(), "q", nil)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 1, resp.Total)
	assert.Empty(t, resp.ByPlatform[model.Meesho])
	assert.EqualValues(t, 1, e.Stats().Deadlines)
}

func TestPanickingAdapterIsIsolated(t *testing.T) {
	var ok atomic.Int64
	boom := source.Func{ID: model.Croma, Fn: func(context.Context, string) ([]model.ProductRecord, error) {
		panic("selector exploded")
	}}
	e := newEngine(goPool{}, time.Second, boom, counted(model.Nykaa, &ok, rec(model.Nykaa, 120)))

	resp, err := e.Search(context.Background(), "q", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Total)
	assert.Empty(t, resp.ByPlatform[model.Croma])
}

func TestEmptyQueryIsRejected(t *testing.T) {
	var calls atomic.Int64
	e := newEngine(goPool{}, time.Second, counted(model.Amazon, &calls, rec(model.Amazon, 100)))

	_, err := e.Search(context.Background(), "   ", nil)
	assert.ErrorIs(t, err, ErrEmptyQuery)
	_, err = e.Compare(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyQuery)
	assert.Zero(t, calls.Load())
}

func TestUnknownSourcesFallBackToAll(t *testing.T) {
	var a, b atomic.Int64
	e := newEngine(goPool{}, time.Second,
		counted(model.Amazon, &a, rec(model.Amazon, 100)),
		counted(model.Flipkart, &b, rec(model.Flipkart, 200)),
	)
	resp, err := e.Search(context.Background(), "q", []model.Source{"ebay"})
	require.NoError(t, err)
	assert.Equal(t, []model.Source{model.Amazon, model.Flipkart}, resp.Sources)
	assert.Equal(t, 2, resp.Total)
}

func TestRejectedSubmissionsYieldEmpty(t *testing.T) {
	var calls atomic.Int64
	e := newEngine(closedPool{}, time.Second, counted(model.Amazon, &calls, rec(model.Amazon, 100)))
	resp, err := e.Search(context.Background(), "q", nil)
	require.NoError(t, err)
	assert.Zero(t, resp.Total)
	assert.Zero(t, calls.Load())
}

func TestCompareKeepsFirstPerSource(t *testing.T) {
	var n atomic.Int64
	e := newEngine(goPool{}, time.Second,
		counted(model.Amazon, &n, rec(model.Amazon, 900), rec(model.Amazon, 100)),
		counted(model.Flipkart, &n, rec(model.Flipkart, 500)),
		failing(model.Myntra, &n),
	)
	resp, err := e.Compare(context.Background(), "tv")
	require.NoError(t, err)
	assert.Equal(t, []int64{500, 900}, prices(resp.Results))
	require.NotNil(t, resp.Best)
	assert.Equal(t, "Flipkart", resp.Best.Platform)

	calls := n.Load()
	_, err = e.Compare(context.Background(), "tv")
	require.NoError(t, err)
	assert.Equal(t, calls, n.Load(), "second compare should be served from cache")

	// Search for the same text uses a separate key.
	_, err = e.Search(context.Background(), "tv", nil)
	require.NoError(t, err)
	assert.Greater(t, n.Load(), calls)
}

func TestCompareWithNothingHasNilBest(t *testing.T) {
	var n atomic.Int64
	e := newEngine(goPool{}, time.Second, failing(model.Amazon, &n))
	resp, err := e.Compare(context.Background(), "tv")
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
	assert.Nil(t, resp.Best)

	body, _ := json.Marshal(resp)
	assert.JSONEq(t, `{"query":"tv","results":[],"best":null}`, string(body))
}

func TestSearchAndCompareUseSeparateCacheKeys(t *testing.T) {
	var a, f atomic.Int64
	e := newEngine(goPool{}, time.Second,
		counted(model.Amazon, &a, rec(model.Amazon, 900), rec(model.Amazon, 300)),
		counted(model.Flipkart, &f, rec(model.Flipkart, 500)),
	)
	ctx := context.Background()

	// A search for "cmp" over amazon,flipkart joins the same parts a
	// compare for "amazon,flipkart" would.
	found, err := e.Search(ctx, "cmp", nil)
	require.NoError(t, err)
	require.Equal(t, 3, found.Total)

	var resp model.CompareResponse
	require.NotPanics(t, func() {
		resp, err = e.Compare(ctx, "amazon,flipkart")
	})
	require.NoError(t, err)
	assert.Equal(t, "amazon,flipkart", resp.Query)
	assert.Equal(t, []int64{500, 900}, prices(resp.Results))
	require.NotNil(t, resp.Best)
	assert.EqualValues(t, 500, resp.Best.Price)
	assert.EqualValues(t, 2, a.Load())
	assert.EqualValues(t, 2, f.Load())

	again, err := e.Search(ctx, "cmp", nil)
	require.NoError(t, err)
	assert.Equal(t, found, again)
	assert.EqualValues(t, 2, a.Load())
}

func TestConcurrentMissesShareOneFanOut(t *testing.T) {
	var calls atomic.Int64
	gate := make(chan struct{})
	slow := source.Func{ID: model.Amazon, Fn: func(context.Context, string) ([]model.ProductRecord, error) {
		calls.Add(1)
		<-gate
		return []model.ProductRecord{rec(model.Amazon, 100)}, nil
	}}
	e := newEngine(goPool{}, 5*time.Second, slow)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := e.Search(context.Background(), "q", nil)
			assert.NoError(t, err)
			assert.Equal(t, 1, resp.Total)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(gate)
	wg.Wait()
	assert.EqualValues(t, 1, calls.Load())
}

func TestCallerCancellationDoesNotPoisonFlight(t *testing.T) {
	var calls atomic.Int64
	gate := make(chan struct{})
	slow := source.Func{ID: model.Amazon, Fn: func(ctx context.Context, _ string) ([]model.ProductRecord, error) {
		calls.Add(1)
		<-gate
		return []model.ProductRecord{rec(model.Amazon, 100)}, ctx.Err()
	}}
	e := newEngine(goPool{}, 5*time.Second, slow)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := e.Search(ctx, "q", nil)
		errc <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)

	close(gate)
	resp, err := e.Search(context.Background(), "q", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Total)
}

func TestSearchThroughWorkerPool(t *testing.T) {
	q := queue.New(8)
	mgr := queue.NewManager(config.Workers{
		InitialWorkerCount:      1,
		WorkerMin:               1,
		WorkerMax:               2,
		ScaleInterval:           10 * time.Millisecond,
		ScaleUpBacklogPerWorker: 1,
		ScaleDownIdleTicks:      100,
	}, q)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mgr.Start(ctx)
	defer mgr.Stop()

	var running, peak atomic.Int64
	adapter := func(id model.Source, price int64) source.Adapter {
		return source.Func{ID: id, Fn: func(context.Context, string) ([]model.ProductRecord, error) {
			cur := running.Add(1)
			defer running.Add(-1)
			for {
				p := peak.Load()
				if cur <= p || peak.CompareAndSwap(p, cur) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			return []model.ProductRecord{rec(id, price)}, nil
		}}
	}
	e := newEngine(mgr, 2*time.Second,
		adapter(model.Amazon, 400), adapter(model.Flipkart, 300), adapter(model.Myntra, 200),
		adapter(model.Meesho, 100), adapter(model.Croma, 500),
	)
	resp, err := e.Search(context.Background(), "q", nil)
	require.NoError(t, err)
	assert.Equal(t, 5, resp.Total)
	assert.Equal(t, []int64{100, 200, 300, 400, 500}, prices(resp.All))
	assert.LessOrEqual(t, peak.Load(), int64(2))
}

func TestSourcesAndElapsedRounding(t *testing.T) {
	e := newEngine(goPool{}, time.Second, source.Func{ID: model.Nykaa}, source.Func{ID: model.Amazon})
	assert.Equal(t, []model.Source{model.Nykaa, model.Amazon}, e.Sources())
	assert.Equal(t, 1.23, roundSeconds(1234*time.Millisecond))
	assert.Equal(t, 0.01, roundSeconds(5*time.Millisecond))
}
