// Package fetch retrieves catalog pages through the scraping proxy.
//
// Every source gets its own token bucket and circuit breaker so a noisy or
// broken catalog cannot starve the proxy quota of the others. A call is made
// at most once; nothing here retries.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/priceradar/priceradar/internal/config"
	"github.com/priceradar/priceradar/internal/obs"
)

var (
	// ErrStatus is returned for non-2xx upstream responses.
	ErrStatus = errors.New("unexpected upstream status")
	// ErrBreakerOpen is returned while a source's breaker rejects calls.
	ErrBreakerOpen = errors.New("source circuit open")
)

// Getter is what source adapters need from the transport.
type Getter interface {
	Get(ctx context.Context, source, target string) ([]byte, error)
}

// Config configures the fetcher.
type Config struct {
	APIKey   string
	ProxyURL string // empty fetches targets directly
	Country  string
	Timeout  time.Duration // per call. Default: 25s.
	MaxBytes int64         // response body cap. Default: 8MB.

	RatePerSec float64 // per source; <= 0 disables limiting
	Burst      int

	BreakerFailures uint32        // consecutive failures to open; 0 disables
	BreakerOpenFor  time.Duration // Default: 60s.

	UserAgent string
}

func (c *Config) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 25 * time.Second
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 8 << 20
	}
	if c.Burst <= 0 {
		c.Burst = 1
	}
	if c.BreakerOpenFor <= 0 {
		c.BreakerOpenFor = 60 * time.Second
	}
	if c.UserAgent == "" {
		c.UserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	}
}

// FromConfig maps the service configuration onto a fetcher Config.
func FromConfig(c config.Fetch) Config {
	return Config{
		APIKey:          c.APIKey,
		ProxyURL:        c.ProxyURL,
		Country:         c.Country,
		Timeout:         c.Timeout,
		MaxBytes:        c.MaxBytes,
		RatePerSec:      c.RatePerSec,
		Burst:           c.Burst,
		BreakerFailures: c.BreakerFailures,
		BreakerOpenFor:  c.BreakerOpenFor,
	}
}

// Fetcher performs proxied GET requests.
type Fetcher struct {
	client *http.Client
	cfg    Config

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	breakers map[string]*gobreaker.CircuitBreaker
}

// New creates a Fetcher.
func New(cfg Config) *Fetcher {
	cfg.defaults()
	return &Fetcher{
		client:   &http.Client{Timeout: cfg.Timeout},
		cfg:      cfg,
		limiters: make(map[string]*rate.Limiter),
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// ProxyURL wraps target in the proxy request URL, or returns it unchanged
// when no proxy is configured.
func (f *Fetcher) ProxyURL(target string) string {
	if f.cfg.ProxyURL == "" {
		return target
	}
	q := url.Values{}
	q.Set("api_key", f.cfg.APIKey)
	q.Set("url", target)
	if f.cfg.Country != "" {
		q.Set("country_code", f.cfg.Country)
	}
	return f.cfg.ProxyURL + "?" + q.Encode()
}

// Get fetches target on behalf of source and returns the body.
func (f *Fetcher) Get(ctx context.Context, source, target string) ([]byte, error) {
	if lim := f.limiter(source); lim != nil {
		if err := lim.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}
	cb := f.breaker(source)
	if cb == nil {
		return f.do(ctx, target)
	}
	v, err := cb.Execute(func() (interface{}, error) {
		return f.do(ctx, target)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %v", ErrBreakerOpen, err)
	}
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (f *Fetcher) do(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.ProxyURL(target), nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("Accept-Language", "en-IN,en;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w %d", ErrStatus, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

func (f *Fetcher) limiter(source string) *rate.Limiter {
	if f.cfg.RatePerSec <= 0 {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	lim, ok := f.limiters[source]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(f.cfg.RatePerSec), f.cfg.Burst)
		f.limiters[source] = lim
	}
	return lim
}

func (f *Fetcher) breaker(source string) *gobreaker.CircuitBreaker {
	if f.cfg.BreakerFailures == 0 {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	cb, ok := f.breakers[source]
	if !ok {
		threshold := f.cfg.BreakerFailures
		cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        source,
			MaxRequests: 1,
			Timeout:     f.cfg.BreakerOpenFor,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= threshold
			},
			// The caller going away says nothing about the source's health.
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, context.Canceled)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				obs.Logger.Warn().Str("source", name).Str("from", from.String()).Str("to", to.String()).Msg("source_breaker_state")
			},
		})
		f.breakers[source] = cb
	}
	return cb
}

// BreakerState reports the breaker state for source ("closed" when breaking
// is disabled or the source was never called).
func (f *Fetcher) BreakerState(source string) string {
	f.mu.Lock()
	cb, ok := f.breakers[source]
	f.mu.Unlock()
	if !ok {
		return gobreaker.StateClosed.String()
	}
	return cb.State().String()
}
