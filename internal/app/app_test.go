package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/hdd-momentum-service/internal/config"
	"github.com/couchcryptid/hdd-momentum-service/internal/domain"
	"github.com/couchcryptid/hdd-momentum-service/internal/market"
	"github.com/couchcryptid/hdd-momentum-service/internal/observability"
	"github.com/couchcryptid/hdd-momentum-service/internal/pipeline"
)

// upstreams serves Open-Meteo style forecasts (every day 40/20 °F) and CPC
// style index files (latest value -2.5 on 2024-01-10).
func upstreams(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var forecastCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, ".csv") {
			_, _ = io.WriteString(w, "year,month,day,value\n")
			for d := 1; d <= 10; d++ {
				v := -0.25 * float64(d)
				fmt.Fprintf(w, "2024,1,%d,%.2f\n", d, v)
			}
			return
		}
		forecastCalls.Add(1)
		maxs := strings.TrimSuffix(strings.Repeat("40,", domain.Horizon), ",")
		mins := strings.TrimSuffix(strings.Repeat("20,", domain.Horizon), ",")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"daily":{"temperature_2m_max":[%s],"temperature_2m_min":[%s]}}`, maxs, mins)
	}))
	t.Cleanup(srv.Close)
	return srv, &forecastCalls
}

func testConfig(t *testing.T, baseURL string) *config.Config {
	t.Helper()
	return &config.Config{
		Baseline:            domain.DefaultBaseline,
		Horizon:             domain.Horizon,
		CycleSchedule:       domain.DefaultCycleSchedule(),
		ForecastBaseURL:     baseURL + "/v1/forecast",
		ForecastTimeout:     5 * time.Second,
		ForecastConcurrency: 4,
		ForecastCacheTTL:    30 * time.Minute,
		CacheBackend:        "memory",
		CacheSize:           16,
		ArchiveBackend:      "file",
		ArchivePath:         filepath.Join(t.TempDir(), "archive.json.gz"),
		IndexBaseURL:        baseURL + "/cwlinks",
		IndexTimeout:        5 * time.Second,
		StorageBcf:          3200,
		StorageFiveYearBcf:  3300,
		ManagedMoneyLong:    100,
		ManagedMoneyShort:   300,
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNew_RefreshEndToEnd(t *testing.T) {
	srv, forecastCalls := upstreams(t)
	cfg := testConfig(t, srv.URL)
	cfg.ForecastCacheTTL = 24 * time.Hour
	clock := clockwork.NewFakeClockAt(time.Date(2024, 1, 10, 8, 0, 0, 0, time.UTC))

	a, err := New(context.Background(), cfg, Options{Clock: clock}, discardLogger(), observability.NewMetricsForTesting())
	require.NoError(t, err)
	t.Cleanup(func() { a.Close(discardLogger()) })

	assert.Equal(t, 8, a.Registry.Len())

	first, err := a.Engine.Refresh(context.Background(), pipeline.RefreshOptions{})
	require.NoError(t, err)
	assert.Equal(t, "2024-01-10/00z", first.Key.String())
	assert.False(t, first.Incomplete)
	assert.InDelta(t, 35.0*domain.Horizon, first.Snapshot.Total, 1e-6)
	assert.False(t, first.Delta.HasReference)
	assert.Equal(t, int32(8), forecastCalls.Load())

	require.Len(t, first.Indices, 3)
	for _, ir := range first.Indices {
		require.NotNil(t, ir.Reading, ir.Indicator)
		assert.InDelta(t, -2.5, ir.Reading.Latest, 1e-9)
		assert.False(t, ir.Reading.Stale)
	}
	assert.Equal(t, domain.SentimentExtreme, first.Indices[0].Sentiment) // AO

	require.NotNil(t, first.Market)
	assert.True(t, first.Market.Storage.Deficit())
	assert.Equal(t, market.ConvergenceFragmented, first.Market.Convergence, "no HDD rise on a cold start")
	require.NotNil(t, first.Market.Positioning)
	assert.True(t, first.Market.Positioning.Stale)

	// Same cycle: forecasts come from cache.
	clock.Advance(time.Hour)
	again, err := a.Engine.Refresh(context.Background(), pipeline.RefreshOptions{})
	require.NoError(t, err)
	assert.Equal(t, first.Key, again.Key)
	assert.Equal(t, int32(8), forecastCalls.Load(), "served from the forecast cache")

	// Next cycle: a new model run is fetched and the first run is the reference.
	clock.Advance(11 * time.Hour)
	second, err := a.Engine.Refresh(context.Background(), pipeline.RefreshOptions{})
	require.NoError(t, err)
	assert.Equal(t, "2024-01-10/12z", second.Key.String())
	require.NotNil(t, second.Reference)
	assert.Equal(t, first.Key, second.Reference.Key)
	assert.Zero(t, second.Delta.Total)
	assert.Equal(t, int32(16), forecastCalls.Load(), "new cycle bypasses the cache")
}

func TestNew_InvalidRegistryPath(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:0")
	cfg.RegistryPath = filepath.Join(t.TempDir(), "missing.yaml")

	_, err := New(context.Background(), cfg, Options{}, discardLogger(), observability.NewMetricsForTesting())
	require.Error(t, err)
}

func TestNew_SQLiteArchive(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:0")
	cfg.ArchiveBackend = "sqlite"
	cfg.ArchivePath = filepath.Join(t.TempDir(), "archive.db")

	a, err := New(context.Background(), cfg, Options{}, discardLogger(), observability.NewMetricsForTesting())
	require.NoError(t, err)
	defer a.Close(discardLogger())

	assert.Equal(t, "sqlite", a.Archive.Status().Backend)
	assert.False(t, a.Archive.Status().Corrupt)
}

func TestNew_GeocodesRegistry(t *testing.T) {
	srv, _ := upstreams(t)
	var geocodes atomic.Int32
	geo := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		geocodes.Add(1)
		assert.Equal(t, "/Boston, United States.json", r.URL.Path)
		assert.Equal(t, "pk.test", r.URL.Query().Get("access_token"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"features":[{"center":[-71.06,42.36],"place_name":"Boston, Massachusetts, United States","text":"Boston","relevance":1}]}`)
	}))
	t.Cleanup(geo.Close)

	cfg := testConfig(t, srv.URL)
	cfg.RegistryPath = filepath.Join(t.TempDir(), "registry.yaml")
	require.NoError(t, os.WriteFile(cfg.RegistryPath, []byte(`
version: two-city
region: United States
locations:
  - {id: chicago, name: Chicago, lat: 41.87, lon: -87.62, weight: 0.5}
  - {id: boston, name: Boston, weight: 0.5}
`), 0o600))
	cfg.MapboxEnabled = true
	cfg.MapboxBaseURL = geo.URL
	cfg.MapboxToken = "pk.test"
	cfg.MapboxTimeout = 5 * time.Second

	a, err := New(context.Background(), cfg, Options{}, discardLogger(), observability.NewMetricsForTesting())
	require.NoError(t, err)
	defer a.Close(discardLogger())

	assert.Equal(t, int32(1), geocodes.Load())
	boston, ok := a.Registry.Location("boston")
	require.True(t, ok)
	assert.InDelta(t, 42.36, boston.Lat, 1e-9)
	assert.InDelta(t, -71.06, boston.Lon, 1e-9)
}

func TestNew_UngeocodedRegistryWithoutMapbox(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:0")
	cfg.RegistryPath = filepath.Join(t.TempDir(), "registry.yaml")
	require.NoError(t, os.WriteFile(cfg.RegistryPath, []byte(`
locations:
  - {id: boston, name: Boston, weight: 1}
`), 0o600))

	_, err := New(context.Background(), cfg, Options{}, discardLogger(), observability.NewMetricsForTesting())
	assert.ErrorIs(t, err, domain.ErrInvalidRegistry)
}
