package app

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ndewijer/portfolio-valuation/internal/config"
	"github.com/ndewijer/portfolio-valuation/internal/scheduler"
	"github.com/ndewijer/portfolio-valuation/internal/testutil"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load()
	require.NoError(t, err)
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	a, err := New(cfg, testutil.SetupTestDB(t), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

func TestNew_CacheBackends(t *testing.T) {
	for _, backend := range []string{"memory", "sqlite"} {
		t.Run(backend, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.Cache.Backend = backend
			a := newTestApp(t, cfg)
			assert.NotNil(t, a.expirer)
			assert.Equal(t, cfg.Cache.TTL, a.Cache.TTL())
		})
	}

	t.Run("unknown backend", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Cache.Backend = "redis"
		_, err := New(cfg, testutil.SetupTestDB(t), zerolog.Nop())
		assert.Error(t, err)
	})
}

func TestNew_SnapshotMaxAgeFollowsCacheTTL(t *testing.T) {
	cfg := testConfig(t)
	cfg.Cache.TTL = 5 * time.Minute
	a := newTestApp(t, cfg)

	assert.Equal(t, 5*time.Minute, a.Snapshot.Config().MaxAge)
}

func TestApp_ProviderChains(t *testing.T) {
	a := newTestApp(t, testConfig(t))

	names := func(b *testutil.InstrumentBuilder) []string {
		var out []string
		for _, p := range a.Resolver.Chain(b.Instrument()) {
			out = append(out, p.Name())
		}
		return out
	}

	assert.Equal(t, []string{"binance", "yahoo"}, names(testutil.NewInstrument().WithTicker("BTC")))
	assert.Equal(t, []string{"tradegate", "yahoo", "alphavantage"}, names(testutil.NewInstrument().WithISIN("DE0007164600")))
	assert.Equal(t, []string{"yahoo", "alphavantage"}, names(testutil.NewInstrument().WithTicker("AAPL")))
}

func TestApp_Schedule(t *testing.T) {
	cfg := testConfig(t)
	a := newTestApp(t, cfg)
	s := scheduler.New(zerolog.Nop())
	t.Cleanup(s.Stop)

	require.NoError(t, a.Schedule(s))
	assert.Equal(t, 2, s.Entries())

	cfg.Snapshot.Enabled = false
	s2 := scheduler.New(zerolog.Nop())
	t.Cleanup(s2.Stop)
	require.NoError(t, a.Schedule(s2))
	assert.Equal(t, 1, s2.Entries())
}

func TestApp_Router(t *testing.T) {
	a := newTestApp(t, testConfig(t))
	router := a.Router()

	serve := func(req *http.Request) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	t.Run("health", func(t *testing.T) {
		w := serve(httptest.NewRequest(http.MethodGet, "/api/system/health", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.NotEmpty(t, w.Header().Get("Content-Type"))
	})

	t.Run("validates the portfolio id", func(t *testing.T) {
		w := serve(httptest.NewRequest(http.MethodGet, "/api/portfolios/not-a-uuid/positions", nil))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("malformed trade body", func(t *testing.T) {
		path := "/api/portfolios/" + testutil.MakeID() + "/trades"
		w := serve(httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{"executedAt":"bad"}`)))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown route", func(t *testing.T) {
		w := serve(httptest.NewRequest(http.MethodGet, "/api/funds", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("snapshot job runs on an empty ledger", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/jobs/snapshot", nil)
		start := time.Now()
		w := serve(req)
		assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Less(t, time.Since(start), 10*time.Second)
	})
}
