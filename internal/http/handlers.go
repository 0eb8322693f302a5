package httpapi

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/priceradar/priceradar/internal/config"
	"github.com/priceradar/priceradar/internal/engine"
	httpopenapi "github.com/priceradar/priceradar/internal/http/openapi"
	"github.com/priceradar/priceradar/internal/model"
	"github.com/priceradar/priceradar/internal/queue"
)

// Version is reported by the health endpoint.
const Version = "7.0"

type App struct {
	Cfg     config.Config
	Engine  *engine.Engine
	Manager *queue.Manager
	closing atomic.Bool
	started time.Time
}

type healthResp struct {
	Status    string         `json:"status"`
	Version   string         `json:"version"`
	Platforms []model.Source `json:"platforms"`
}

type platformsResp struct {
	Platforms []model.Source `json:"platforms"`
}

type pingResp struct {
	Pong bool    `json:"pong"`
	TS   float64 `json:"ts"`
}

type metricsResp struct {
	Engine      engine.Stats  `json:"engine"`
	Queue       queue.Metrics `json:"queue"`
	WorkerCount int           `json:"worker_count"`
	Capacity    int           `json:"worker_capacity"`
	UptimeSec   float64       `json:"uptime_sec"`
}

func NewApp(cfg config.Config, e *engine.Engine, m *queue.Manager) *App {
	return &App{Cfg: cfg, Engine: e, Manager: m, started: time.Now()}
}

// StartShutdown stops accepting query work. In-flight requests finish.
func (a *App) StartShutdown() {
	a.closing.Store(true)
	a.Manager.CloseIntake()
}

func (a *App) shuttingDown(w http.ResponseWriter) bool {
	if a.closing.Load() || a.Manager.IsShuttingDown() {
		WriteJSONError(w, http.StatusServiceUnavailable, "shutting_down", "")
		return true
	}
	return false
}

func (a *App) searchHandler(w http.ResponseWriter, r *http.Request) {
	if a.shuttingDown(w) {
		return
	}
	qs := r.URL.Query()
	resp, err := a.Engine.Search(r.Context(), qs.Get("q"), model.ParseSources(qs.Get("platforms")))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *App) compareHandler(w http.ResponseWriter, r *http.Request) {
	if a.shuttingDown(w) {
		return
	}
	resp, err := a.Engine.Compare(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResp{Status: "ok", Version: Version, Platforms: a.Engine.Sources()})
}

func (a *App) platformsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, platformsResp{Platforms: a.Engine.Sources()})
}

func (a *App) pingHandler(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	writeJSON(w, http.StatusOK, pingResp{Pong: true, TS: float64(now.UnixNano()) / 1e9})
}

func (a *App) metricsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, metricsResp{
		Engine:      a.Engine.Stats(),
		Queue:       a.Manager.QueueMetrics(),
		WorkerCount: a.Manager.WorkerCount(),
		Capacity:    a.Manager.Capacity(),
		UptimeSec:   time.Since(a.started).Seconds(),
	})
}

func (a *App) openapiHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(httpopenapi.YAML)
}

func (a *App) docsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	html := `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>PriceRadar API</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/openapi.yaml',
        dom_id: '#swagger-ui'
      });
    </script>
  </body>
</html>`
	_, _ = w.Write([]byte(html))
}
