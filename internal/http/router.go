package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/priceradar/priceradar/internal/obs"
)

// NewRouter registers HTTP routes and returns the handler with middleware.
// The query routes are served both at the root and under /api.
func NewRouter(app *App) http.Handler {
	r := chi.NewRouter()
	r.Use(WithCORS, WithRequestID, WithLogging)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		WriteJSONError(w, http.StatusNotFound, "not_found", "")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		WriteJSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
	})

	api := func(r chi.Router) {
		r.Get("/search", app.searchHandler)
		r.Get("/compare", app.compareHandler)
		r.Get("/health", app.healthHandler)
		r.Get("/platforms", app.platformsHandler)
		r.Get("/ping", app.pingHandler)
	}
	api(r)
	r.Route("/api", api)

	r.Method(http.MethodGet, "/metrics", obs.MetricsHandler())
	r.Get("/debug/metrics", app.metricsHandler)
	r.Get("/openapi.yaml", app.openapiHandler)
	r.Get("/docs", app.docsHandler)
	return r
}
