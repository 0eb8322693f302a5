// Package main boots the PriceRadar HTTP server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/priceradar/priceradar/internal/cache"
	"github.com/priceradar/priceradar/internal/config"
	"github.com/priceradar/priceradar/internal/engine"
	"github.com/priceradar/priceradar/internal/fetch"
	httpapi "github.com/priceradar/priceradar/internal/http"
	"github.com/priceradar/priceradar/internal/obs"
	"github.com/priceradar/priceradar/internal/queue"
	"github.com/priceradar/priceradar/internal/source"
)

func main() {
	cfg := config.Load()
	obs.InitLogger(cfg.Env)
	obs.Logger.Info().Str("env", cfg.Env).Str("version", httpapi.Version).Msg("service_starting")
	if cfg.InsecureAPIKey() {
		obs.Logger.Warn().Msg("scraper_api_key_default: set SCRAPER_API_KEY for any real deployment")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := queue.New(128)
	mgr := queue.NewManager(cfg.Workers, q)
	mgr.Start(ctx)

	results := cache.New[any](cache.Options{
		TTL:           cfg.Cache.TTL,
		MaxEntries:    cfg.Cache.MaxEntries,
		EvictFraction: cfg.Cache.EvictFraction,
	})
	results.StartJanitor(ctx, cfg.Cache.SweepInterval)

	fetcher := fetch.New(fetch.FromConfig(cfg.Fetch))
	eng := engine.New(source.Default(fetcher), mgr, results, cfg.Engine.Deadline)

	app := httpapi.NewApp(cfg, eng, mgr)
	mux := httpapi.NewRouter(app)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.Engine.Deadline + 10*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		obs.Logger.Info().Str("addr", cfg.HTTPAddr).Strs("sources", sourceNames(eng)).Msg("http_listen")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			obs.Logger.Error().Err(err).Msg("http_server_error")
			os.Exit(1)
		}
	}()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	s := <-sigc
	obs.Logger.Info().Str("signal", s.String()).Msg("shutdown_signal")

	app.StartShutdown()
	obs.Logger.Info().Int("backlog_size", mgr.BacklogSize()).Int("worker_count", mgr.WorkerCount()).Msg("shutdown_drain_begin")

	ctxDrain, cancelDrain := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelDrain()
	if drained := mgr.DrainUntil(ctxDrain); !drained {
		obs.Logger.Warn().Msg("shutdown_drain_timeout")
	} else {
		obs.Logger.Info().Msg("shutdown_drain_complete")
	}

	ctxSrv, cancelSrv := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelSrv()
	if err := srv.Shutdown(ctxSrv); err != nil {
		obs.Logger.Error().Err(err).Msg("http_shutdown_error")
	}
	mgr.Stop()
	obs.Logger.Info().Msg("service_stopped")
}

func sourceNames(e *engine.Engine) []string {
	ids := e.Sources()
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}
