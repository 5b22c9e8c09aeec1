package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ndewijer/portfolio-valuation/internal/accounting"
	"github.com/ndewijer/portfolio-valuation/internal/apperrors"
	"github.com/ndewijer/portfolio-valuation/internal/model"
	"github.com/ndewijer/portfolio-valuation/internal/service"
	"github.com/ndewijer/portfolio-valuation/internal/testutil"
)

func TestSystemHandler(t *testing.T) {
	d := setupDeps(t)
	handler := NewSystemHandler(service.NewSystemService(d.db))

	t.Run("returns healthy status when database is connected", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.Health(w, httptest.NewRequest(http.MethodGet, "/api/system/health", nil))

		if w.Code != http.StatusOK {
			t.Errorf("Expected 200, got %d: %s", w.Code, w.Body.String())
		}
		var response HealthResponse
		if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if response.Status != "healthy" {
			t.Errorf("Expected status 'healthy', got '%s'", response.Status)
		}
	})

	t.Run("reports the schema version", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.Version(w, httptest.NewRequest(http.MethodGet, "/api/system/version", nil))

		if w.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
		}
		var info model.VersionInfo
		if err := json.NewDecoder(w.Body).Decode(&info); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if info.SchemaVersion < 1 {
			t.Errorf("Expected an applied schema version, got %d", info.SchemaVersion)
		}
	})

	t.Run("returns 503 when database is disconnected", func(t *testing.T) {
		d := setupDeps(t)
		h := NewSystemHandler(service.NewSystemService(d.db))
		d.db.Close()

		w := httptest.NewRecorder()
		h.Health(w, httptest.NewRequest(http.MethodGet, "/api/system/health", nil))

		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("Expected 503, got %d: %s", w.Code, w.Body.String())
		}
	})
}

func TestPriceHandler_Prices(t *testing.T) {
	d := setupDeps(t)
	handler := NewPriceHandler(d.quotes)

	good := testutil.NewInstrument().Build(t, d.db)
	bad := testutil.NewInstrument().Build(t, d.db)
	d.provider.WithPrice(good.ID, "42.5").WithInstrumentError(bad.ID, apperrors.ErrProviderUnavailable)

	t.Run("returns prices and per-instrument errors", func(t *testing.T) {
		req := testutil.NewRequestWithQueryParams(http.MethodGet, "/api/prices", map[string]string{
			"ids": good.ID + "," + bad.ID,
		})
		w := httptest.NewRecorder()
		handler.Prices(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
		}
		var resp PricesResponse
		if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if got := resp.Prices[good.ID].Quote.Price.String(); got != "42.5" {
			t.Errorf("Expected price 42.5, got %s", got)
		}
		if len(resp.Errors) != 1 || resp.Errors[0].InstrumentID != bad.ID {
			t.Errorf("Expected one error for %s, got %+v", bad.ID, resp.Errors)
		}
		if resp.Metrics.Total != 2 || resp.Metrics.Failed != 1 {
			t.Errorf("Expected total 2 failed 1, got %+v", resp.Metrics)
		}
	})

	t.Run("returns 400 without ids", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.Prices(w, httptest.NewRequest(http.MethodGet, "/api/prices", nil))

		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", w.Code)
		}
	})
}

func TestPositionHandler_Positions(t *testing.T) {
	d := setupDeps(t)
	handler := NewPositionHandler(d.pos)

	portfolioID := testutil.MakeID()
	open := testutil.NewInstrument().Build(t, d.db)
	closed := testutil.NewInstrument().Build(t, d.db)
	base := time.Now().UTC().Add(-48 * time.Hour)
	testutil.NewTrade(portfolioID, open.ID).Buy("10", "100").ExecutedAt(base).Build(t, d.db)
	testutil.NewTrade(portfolioID, closed.ID).Buy("5", "20").ExecutedAt(base).Build(t, d.db)
	testutil.NewTrade(portfolioID, closed.ID).Sell("5", "25").ExecutedAt(base.Add(time.Hour)).Build(t, d.db)
	d.provider.WithPrice(open.ID, "120")

	get := func(view string) (*httptest.ResponseRecorder, []accounting.Position) {
		req := testutil.NewRequestWithURLParams(http.MethodGet, "/api/portfolios/"+portfolioID+"/positions?view="+view,
			map[string]string{"portfolioId": portfolioID})
		w := httptest.NewRecorder()
		handler.Positions(w, req)
		var positions []accounting.Position
		if w.Code == http.StatusOK {
			if err := json.NewDecoder(w.Body).Decode(&positions); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}
		}
		return w, positions
	}

	t.Run("lists open positions by default", func(t *testing.T) {
		w, positions := get("")
		if w.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
		}
		if len(positions) != 1 {
			t.Fatalf("Expected 1 open position, got %d", len(positions))
		}
		if got := positions[0].UnrealizedPnL.String(); got != "200" {
			t.Errorf("Expected unrealized 200, got %s", got)
		}
	})

	t.Run("includes closed positions with view=all", func(t *testing.T) {
		_, positions := get("all")
		if len(positions) != 2 {
			t.Errorf("Expected 2 positions, got %d", len(positions))
		}
	})

	t.Run("rejects an unknown view", func(t *testing.T) {
		w, _ := get("closed")
		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", w.Code)
		}
	})

	t.Run("returns 404 for an empty portfolio", func(t *testing.T) {
		other := testutil.MakeID()
		req := testutil.NewRequestWithURLParams(http.MethodGet, "/api/portfolios/"+other+"/positions",
			map[string]string{"portfolioId": other})
		w := httptest.NewRecorder()
		handler.Positions(w, req)
		if w.Code != http.StatusNotFound {
			t.Errorf("Expected 404, got %d", w.Code)
		}
	})
}

func TestTradeHandler_CreateTrade(t *testing.T) {
	d := setupDeps(t)
	handler := NewTradeHandler(d.trades)

	inst := testutil.NewInstrument().Build(t, d.db)
	portfolioID := testutil.MakeID()
	params := map[string]string{"portfolioId": portfolioID}
	path := "/api/portfolios/" + portfolioID + "/trades"

	post := func(body any) *httptest.ResponseRecorder {
		req := testutil.NewJSONRequestWithURLParams(t, http.MethodPost, path, body, params)
		w := httptest.NewRecorder()
		handler.CreateTrade(w, req)
		return w
	}

	t.Run("records a buy", func(t *testing.T) {
		w := post(map[string]any{
			"instrumentId": inst.ID,
			"side":         "BUY",
			"quantity":     "10",
			"price":        "100",
			"fees":         "2",
			"currency":     "USD",
			"executedAt":   "2024-01-02",
		})
		if w.Code != http.StatusCreated {
			t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
		}
		var trade model.Trade
		if err := json.NewDecoder(w.Body).Decode(&trade); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if trade.ID == "" {
			t.Error("Expected an assigned trade ID")
		}
	})

	t.Run("rejects an oversell with 409", func(t *testing.T) {
		w := post(map[string]any{
			"instrumentId": inst.ID,
			"side":         "SELL",
			"quantity":     "11",
			"price":        "100",
			"currency":     "USD",
			"executedAt":   "2024-01-03",
		})
		if w.Code != http.StatusConflict {
			t.Errorf("Expected 409, got %d: %s", w.Code, w.Body.String())
		}
	})

	t.Run("rejects a non-positive quantity with 400", func(t *testing.T) {
		w := post(map[string]any{
			"instrumentId": inst.ID,
			"side":         "BUY",
			"quantity":     "0",
			"price":        "100",
			"currency":     "USD",
			"executedAt":   "2024-01-03",
		})
		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d: %s", w.Code, w.Body.String())
		}
	})

	t.Run("rejects unknown fields", func(t *testing.T) {
		w := post(map[string]any{"instrumentId": inst.ID, "shares": "1"})
		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", w.Code)
		}
	})

	t.Run("returns 404 for an unknown instrument", func(t *testing.T) {
		w := post(map[string]any{
			"instrumentId": testutil.MakeID(),
			"side":         "BUY",
			"quantity":     "1",
			"price":        "1",
			"currency":     "USD",
			"executedAt":   "2024-01-03",
		})
		if w.Code != http.StatusNotFound {
			t.Errorf("Expected 404, got %d: %s", w.Code, w.Body.String())
		}
	})
}

func TestSnapshotHandler_Snapshots(t *testing.T) {
	d := setupDeps(t)
	handler := NewSnapshotHandler(d.history)

	inst := testutil.NewInstrument().Build(t, d.db)
	testutil.InsertSnapshot(t, d.db, inst.ID, "10", time.Date(2024, 1, 5, 12, 0, 0, 0, time.UTC))
	testutil.InsertSnapshot(t, d.db, inst.ID, "11", time.Date(2024, 2, 5, 12, 0, 0, 0, time.UTC))

	get := func(id, query string) *httptest.ResponseRecorder {
		req := testutil.NewRequestWithURLParams(http.MethodGet, "/api/instruments/"+id+"/snapshots"+query,
			map[string]string{"instrumentId": id})
		w := httptest.NewRecorder()
		handler.Snapshots(w, req)
		return w
	}

	t.Run("filters by date range", func(t *testing.T) {
		w := get(inst.ID, "?from=2024-01-01&to=2024-01-31")
		if w.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
		}
		var snaps []model.PriceSnapshot
		if err := json.NewDecoder(w.Body).Decode(&snaps); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if len(snaps) != 1 || snaps[0].Price.String() != "10" {
			t.Errorf("Expected the January snapshot only, got %+v", snaps)
		}
	})

	t.Run("rejects an inverted range", func(t *testing.T) {
		if w := get(inst.ID, "?from=2024-02-01&to=2024-01-01"); w.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", w.Code)
		}
	})

	t.Run("returns 404 for an unknown instrument", func(t *testing.T) {
		if w := get(testutil.MakeID(), ""); w.Code != http.StatusNotFound {
			t.Errorf("Expected 404, got %d", w.Code)
		}
	})
}

func TestBenchmarkHandler_Benchmarks(t *testing.T) {
	primary := testutil.NewMockProvider("yahoo")
	secondary := testutil.NewMockProvider("alphavantage").WithError(apperrors.ErrRateLimited)
	handler := NewBenchmarkHandler(service.NewBenchmarkService(primary, secondary, zerolog.Nop()))

	w := httptest.NewRecorder()
	handler.Benchmarks(w, httptest.NewRequest(http.MethodGet, "/api/benchmarks", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var benchmarks []model.Benchmark
	if err := json.NewDecoder(w.Body).Decode(&benchmarks); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	for _, b := range benchmarks {
		if !b.Available || b.Source != "yahoo" {
			t.Errorf("Expected %s from yahoo, got %+v", b.Symbol, b)
		}
	}
}

type blockingRunner struct {
	started chan struct{}
	release chan struct{}
	mu      sync.Mutex
	running bool
}

func (b *blockingRunner) Run(context.Context) (model.SnapshotJobMetrics, error) {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return model.SnapshotJobMetrics{}, service.ErrSnapshotRunning
	}
	b.running = true
	b.mu.Unlock()

	close(b.started)
	<-b.release
	return model.SnapshotJobMetrics{Success: true}, nil
}

func TestJobHandler_RunSnapshot(t *testing.T) {
	t.Run("runs the job and returns its metrics", func(t *testing.T) {
		d := setupDeps(t)
		inst := testutil.NewInstrument().Build(t, d.db)
		testutil.NewTrade(testutil.MakeID(), inst.ID).Buy("1", "10").Build(t, d.db)

		handler := NewJobHandler(d.job)
		w := httptest.NewRecorder()
		handler.RunSnapshot(w, httptest.NewRequest(http.MethodPost, "/api/jobs/snapshot", nil))

		if w.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
		}
		var m model.SnapshotJobMetrics
		if err := json.NewDecoder(w.Body).Decode(&m); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if !m.Success || m.Persisted != 1 {
			t.Errorf("Expected a successful run persisting 1 snapshot, got %+v", m)
		}
	})

	t.Run("returns 409 while a run is in progress", func(t *testing.T) {
		runner := &blockingRunner{started: make(chan struct{}), release: make(chan struct{})}
		handler := NewJobHandler(runner)

		done := make(chan struct{})
		go func() {
			defer close(done)
			handler.RunSnapshot(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/jobs/snapshot", nil))
		}()
		<-runner.started

		w := httptest.NewRecorder()
		handler.RunSnapshot(w, httptest.NewRequest(http.MethodPost, "/api/jobs/snapshot", nil))
		close(runner.release)
		<-done

		if w.Code != http.StatusConflict {
			t.Errorf("Expected 409, got %d", w.Code)
		}
	})
}
