// Package config provides runtime configuration values for the service.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// DefaultScraperAPIKey is a shared placeholder credential. Any real deployment
// must set SCRAPER_API_KEY.
const DefaultScraperAPIKey = "05d7109e210bc7a8f84d87dd873f117e"

// Config holds configuration knobs for the HTTP server, the fetch proxy, the
// aggregation engine, its cache, and the worker pool.
type Config struct {
	Env             string        `envconfig:"APP_ENV" default:"development"`
	HTTPAddr        string        `envconfig:"HTTP_ADDR" default:":5000"`
	Port            string        `envconfig:"PORT"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"15s"`

	Fetch   Fetch
	Engine  Engine
	Cache   Cache
	Workers Workers
}

// Fetch configures the proxy-backed page fetcher.
type Fetch struct {
	APIKey          string        `envconfig:"SCRAPER_API_KEY" default:"05d7109e210bc7a8f84d87dd873f117e"`
	ProxyURL        string        `envconfig:"SCRAPER_PROXY_URL" default:"https://api.scraperapi.com"`
	Country         string        `envconfig:"SCRAPER_COUNTRY" default:"in"`
	Timeout         time.Duration `envconfig:"FETCH_TIMEOUT" default:"25s"`
	MaxBytes        int64         `envconfig:"FETCH_MAX_BYTES" default:"8388608"`
	RatePerSec      float64       `envconfig:"FETCH_RATE_PER_SEC" default:"2"`
	Burst           int           `envconfig:"FETCH_BURST" default:"8"`
	BreakerFailures uint32        `envconfig:"BREAKER_FAILURES" default:"5"`
	BreakerOpenFor  time.Duration `envconfig:"BREAKER_OPEN_FOR" default:"60s"`
}

// Engine configures the aggregation deadline.
type Engine struct {
	Deadline time.Duration `envconfig:"AGGREGATE_DEADLINE" default:"30s"`
}

// Cache configures the result cache.
type Cache struct {
	TTL           time.Duration `envconfig:"CACHE_TTL" default:"90s"`
	MaxEntries    int           `envconfig:"CACHE_MAX_ENTRIES" default:"100"`
	EvictFraction float64       `envconfig:"CACHE_EVICT_FRACTION" default:"0.3"`
	SweepInterval time.Duration `envconfig:"CACHE_SWEEP_INTERVAL" default:"60s"`
}

// Workers configures the fetch worker pool. WorkerMax is the fixed capacity
// for concurrent source fetches.
type Workers struct {
	InitialWorkerCount      int           `envconfig:"WORKER_COUNT"`
	WorkerMin               int           `envconfig:"WORKER_MIN" default:"2"`
	WorkerMax               int           `envconfig:"WORKER_MAX" default:"8"`
	ScaleInterval           time.Duration `envconfig:"SCALE_INTERVAL" default:"250ms"`
	ScaleUpBacklogPerWorker int           `envconfig:"SCALE_UP_BACKLOG_PER_WORKER" default:"1"`
	ScaleDownIdleTicks      int           `envconfig:"SCALE_DOWN_IDLE_TICKS" default:"8"`
	QueueHighWatermark      int           `envconfig:"QUEUE_HIGH_WATERMARK" default:"500"`
}

// Parse reads an optional .env file and the process environment.
func Parse() (Config, error) {
	_ = godotenv.Load(".env")
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return Config{}, fmt.Errorf("process env: %w", err)
	}
	c.fix()
	return c, nil
}

// Load collects configuration from environment with defaults. Invalid values
// are reported on stderr and the defaults are used instead.
func Load() Config {
	c, err := Parse()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v; using defaults\n", err)
		return Default()
	}
	return c
}

// Default returns the built-in configuration without reading the environment.
func Default() Config {
	c := Config{
		Env:             "development",
		HTTPAddr:        ":5000",
		ShutdownTimeout: 15 * time.Second,
		Fetch: Fetch{
			APIKey:          DefaultScraperAPIKey,
			ProxyURL:        "https://api.scraperapi.com",
			Country:         "in",
			Timeout:         25 * time.Second,
			MaxBytes:        8 << 20,
			RatePerSec:      2,
			Burst:           8,
			BreakerFailures: 5,
			BreakerOpenFor:  60 * time.Second,
		},
		Engine: Engine{Deadline: 30 * time.Second},
		Cache: Cache{
			TTL:           90 * time.Second,
			MaxEntries:    100,
			EvictFraction: 0.3,
			SweepInterval: 60 * time.Second,
		},
		Workers: Workers{
			WorkerMin:               2,
			WorkerMax:               8,
			ScaleInterval:           250 * time.Millisecond,
			ScaleUpBacklogPerWorker: 1,
			ScaleDownIdleTicks:      8,
			QueueHighWatermark:      500,
		},
	}
	c.fix()
	return c
}

// InsecureAPIKey reports whether the fetch credential is still the shared
// placeholder.
func (c Config) InsecureAPIKey() bool {
	return c.Fetch.APIKey == DefaultScraperAPIKey
}

func (c *Config) fix() {
	if c.Port != "" {
		c.HTTPAddr = ":" + c.Port
	}
	w := &c.Workers
	if w.WorkerMin < 1 {
		w.WorkerMin = 1
	}
	if w.WorkerMax < w.WorkerMin {
		w.WorkerMax = w.WorkerMin
	}
	if w.InitialWorkerCount == 0 {
		w.InitialWorkerCount = w.WorkerMin
	}
	if w.InitialWorkerCount < w.WorkerMin {
		w.InitialWorkerCount = w.WorkerMin
	}
	if w.InitialWorkerCount > w.WorkerMax {
		w.InitialWorkerCount = w.WorkerMax
	}
}
