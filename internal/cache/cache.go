// Package cache implements the short-lived in-memory result cache.
package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Key digests parts into a fixed-width cache key. Callers sort any
// order-insensitive part before passing it in.
func Key(parts ...string) string {
	sum := md5.Sum([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

type entry[V any] struct {
	v          V
	insertedAt time.Time
}

// Options configures a Cache.
type Options struct {
	TTL           time.Duration
	MaxEntries    int
	EvictFraction float64
	Now           func() time.Time
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Entries   int    `json:"entries"`
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
}

// Cache is a TTL-bounded map safe for concurrent use. Entries are replaced,
// never mutated. Eviction is a coarse batch of the oldest entries once the
// high-water mark is passed.
type Cache[V any] struct {
	mu  sync.RWMutex
	m   map[string]entry[V]
	opt Options

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

// New creates a Cache. Zero option values fall back to 90s TTL, 100 entries
// and a 30% eviction batch.
func New[V any](opt Options) *Cache[V] {
	if opt.TTL <= 0 {
		opt.TTL = 90 * time.Second
	}
	if opt.MaxEntries <= 0 {
		opt.MaxEntries = 100
	}
	if opt.EvictFraction <= 0 || opt.EvictFraction > 1 {
		opt.EvictFraction = 0.3
	}
	if opt.Now == nil {
		opt.Now = time.Now
	}
	return &Cache[V]{m: make(map[string]entry[V]), opt: opt}
}

// Get returns the value stored under key if it is younger than the TTL.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	e, ok := c.m[key]
	c.mu.RUnlock()
	if !ok || c.opt.Now().Sub(e.insertedAt) >= c.opt.TTL {
		c.misses.Add(1)
		var zero V
		return zero, false
	}
	c.hits.Add(1)
	return e.v, true
}

// Put stores v under key unconditionally. When the map is over the
// high-water mark, the oldest entries are evicted first.
func (c *Cache[V]) Put(key string, v V) {
	now := c.opt.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.m[key]; !exists && len(c.m) >= c.opt.MaxEntries {
		c.evictOldestLocked()
	}
	c.m[key] = entry[V]{v: v, insertedAt: now}
}

func (c *Cache[V]) evictOldestLocked() {
	n := int(float64(c.opt.MaxEntries) * c.opt.EvictFraction)
	if n < 1 {
		n = 1
	}
	type aged struct {
		key string
		at  time.Time
	}
	all := make([]aged, 0, len(c.m))
	for k, e := range c.m {
		all = append(all, aged{k, e.insertedAt})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].at.Before(all[j].at) })
	if n > len(all) {
		n = len(all)
	}
	for _, a := range all[:n] {
		delete(c.m, a.key)
	}
	c.evictions.Add(uint64(n))
}

// Sweep drops expired entries and returns how many were removed.
func (c *Cache[V]) Sweep() int {
	now := c.opt.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k, e := range c.m {
		if now.Sub(e.insertedAt) >= c.opt.TTL {
			delete(c.m, k)
			n++
		}
	}
	return n
}

// StartJanitor sweeps expired entries every interval until ctx is done.
// Expiry is already enforced by Get; the janitor only bounds memory.
func (c *Cache[V]) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				c.Sweep()
			}
		}
	}()
}

// Len returns the number of stored entries, expired or not.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}

// Stats returns current counters.
func (c *Cache[V]) Stats() Stats {
	return Stats{
		Entries:   c.Len(),
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
	}
}
