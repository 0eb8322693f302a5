package obs

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitLoggerProductionWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	InitLoggerTo("production", &buf)
	t.Cleanup(func() { InitLoggerTo("testing", &bytes.Buffer{}) })

	Logger.Debug().Msg("hidden")
	Logger.Info().Str("source", "amazon").Msg("source_ok")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var ev map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &ev))
	assert.Equal(t, "source_ok", ev["message"])
	assert.Equal(t, "amazon", ev["source"])
}

func TestObserveSourceCounts(t *testing.T) {
	before := testutil.ToFloat64(sourceRequests.WithLabelValues("croma", OutcomeError))
	ObserveSource("croma", OutcomeError, 0.2)
	after := testutil.ToFloat64(sourceRequests.WithLabelValues("croma", OutcomeError))
	assert.Equal(t, before+1, after)
}

func TestMetricsHandlerServesRegistry(t *testing.T) {
	CacheLookup(true)
	SetWorkers(3)
	rr := httptest.NewRecorder()
	MetricsHandler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "priceradar_cache_lookups_total")
	assert.Contains(t, body, "priceradar_pool_workers 3")
}
