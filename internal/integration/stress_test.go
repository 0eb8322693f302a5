package integration

import (
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/priceradar/priceradar/internal/config"
	"github.com/priceradar/priceradar/internal/model"
)

// Identical concurrent searches must reach each catalog at most once.
func TestIntegration_ConcurrentIdenticalSearchesCollapse(t *testing.T) {
	cat := newCatalog()
	cat.pages["www.amazon.in"] = amazonCard("Router", 1899)
	cat.delay["www.amazon.in"] = 100 * time.Millisecond
	srv, _ := startStack(t, cat, nil)

	const concurrency = 30
	var wg sync.WaitGroup
	errCh := make(chan error, concurrency)
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func() {
			defer wg.Done()
			var resp model.AggregatedResponse
			code, err := fetchJSON(srv.URL+"/search?q=router", &resp)
			if err != nil {
				errCh <- err
				return
			}
			if code != http.StatusOK {
				errCh <- fmt.Errorf("expected 200, got %d", code)
				return
			}
			if resp.Total != 1 {
				errCh <- fmt.Errorf("expected 1 record, got %d", resp.Total)
			}
		}()
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Fatal(err)
	}
	if got := cat.hitsFor("www.amazon.in"); got != 1 {
		t.Fatalf("expected a single amazon fetch, got %d", got)
	}
}

// Distinct searches share the worker pool and never exceed its capacity.
func TestIntegration_PoolCapacityBoundsFetches(t *testing.T) {
	cat := newCatalog()
	for _, host := range []string{"www.amazon.in", "www.flipkart.com", "www.myntra.com", "www.meesho.com", "www.croma.com", "www.nykaa.com", "www.snapdeal.com"} {
		cat.delay[host] = 20 * time.Millisecond
	}
	srv, _ := startStack(t, cat, func(c *config.Config) {
		c.Workers.WorkerMin = 1
		c.Workers.WorkerMax = 3
		c.Engine.Deadline = 10 * time.Second
	})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = fetchJSON(fmt.Sprintf("%s/search?q=item-%d", srv.URL, i), nil)
		}(i)
	}
	wg.Wait()
	if got := cat.totalHits(); got != 5*len(model.AllSources) {
		t.Fatalf("expected every source fetched once per query, got %d", got)
	}
	if peak := cat.peak.Load(); peak > 3 {
		t.Fatalf("concurrent fetches %d exceeded pool capacity 3", peak)
	}
}
