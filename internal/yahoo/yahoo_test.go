package yahoo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ndewijer/portfolio-valuation/internal/apperrors"
	"github.com/ndewijer/portfolio-valuation/internal/model"
)

const chartJSON = `{
  "chart": {
    "result": [{
      "meta": {
        "currency": "USD",
        "symbol": "AAPL",
        "regularMarketPrice": 190.5,
        "regularMarketTime": 1717430400,
        "chartPreviousClose": 188.0
      },
      "timestamp": [1717344000, 1717430400],
      "indicators": {"quote": [{
        "open": [187.0, 189.0],
        "close": [188.0, 190.5],
        "high": [189.0, 191.0],
        "low": [186.5, 188.5],
        "volume": [1000, 2000]
      }]}
    }],
    "error": null
  }
}`

const closeOnlyJSON = `{
  "chart": {
    "result": [{
      "meta": {"currency": "EUR", "symbol": "SAP.DE"},
      "timestamp": [1717344000, 1717430400],
      "indicators": {"quote": [{
        "open": [170.0, null],
        "close": [171.2, null],
        "high": [172.0, null],
        "low": [169.0, null],
        "volume": [10, null]
      }]}
    }],
    "error": null
  }
}`

func newTestServer(t *testing.T, status int, body string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.True(t, strings.HasPrefix(r.URL.Path, "/v8/finance/chart/"))
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestFinanceClient_GetQuote(t *testing.T) {
	ctx := context.Background()
	inst := model.Instrument{ID: "i1", Ticker: "AAPL", Currency: "USD"}

	t.Run("uses regular market price and time", func(t *testing.T) {
		srv, _ := newTestServer(t, http.StatusOK, chartJSON)
		c := NewFinanceClient(srv.URL, srv.Client())

		q, err := c.GetQuote(ctx, inst)
		require.NoError(t, err)
		assert.Equal(t, "190.5", q.Price.String())
		assert.Equal(t, "USD", q.Currency)
		assert.Equal(t, Name, q.Source)
		assert.True(t, q.AsOf.Equal(time.Unix(1717430400, 0)))
		require.NotNil(t, q.PreviousClose)
		assert.Equal(t, "188", q.PreviousClose.String())
		require.NotNil(t, q.ChangePercent)
		assert.Equal(t, "1.3298", q.ChangePercent.String())
		require.NotNil(t, q.Open)
		assert.Equal(t, "189", q.Open.String())
	})

	t.Run("falls back to last non-null close", func(t *testing.T) {
		srv, _ := newTestServer(t, http.StatusOK, closeOnlyJSON)
		c := NewFinanceClient(srv.URL, srv.Client())

		q, err := c.GetQuote(ctx, model.Instrument{ID: "i2", Ticker: "SAP.DE"})
		require.NoError(t, err)
		assert.Equal(t, "171.2", q.Price.String())
		assert.Equal(t, "EUR", q.Currency)
		assert.True(t, q.AsOf.Equal(time.Unix(1717344000, 0)))
	})

	t.Run("yahoo error object", func(t *testing.T) {
		srv, _ := newTestServer(t, http.StatusNotFound, `{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found, symbol may be delisted"}}}`)
		c := NewFinanceClient(srv.URL, srv.Client())

		_, err := c.GetQuote(ctx, inst)
		assert.ErrorIs(t, err, apperrors.ErrProviderUnavailable)
	})

	t.Run("rate limited", func(t *testing.T) {
		srv, _ := newTestServer(t, http.StatusTooManyRequests, `Too Many Requests`)
		c := NewFinanceClient(srv.URL, srv.Client())

		_, err := c.GetQuote(ctx, inst)
		assert.ErrorIs(t, err, apperrors.ErrRateLimited)
	})

	t.Run("zero price is invalid", func(t *testing.T) {
		body := strings.Replace(chartJSON, `"regularMarketPrice": 190.5`, `"regularMarketPrice": 0`, 1)
		body = strings.Replace(body, `"close": [188.0, 190.5]`, `"close": [0, 0]`, 1)
		srv, _ := newTestServer(t, http.StatusOK, body)
		c := NewFinanceClient(srv.URL, srv.Client())

		_, err := c.GetQuote(ctx, inst)
		assert.ErrorIs(t, err, apperrors.ErrInvalidQuote)
	})

	t.Run("instrument without ticker is unsupported", func(t *testing.T) {
		c := NewFinanceClient("http://127.0.0.1:0", nil)
		_, err := c.GetQuote(ctx, model.Instrument{ID: "x", ISIN: "DE0007164600"})
		assert.ErrorIs(t, err, apperrors.ErrUnsupportedInstrument)
	})
}

func TestFinanceClient_GetQuotes(t *testing.T) {
	srv, hits := newTestServer(t, http.StatusOK, chartJSON)
	c := NewFinanceClient(srv.URL, srv.Client())

	quotes, err := c.GetQuotes(context.Background(), []model.Instrument{
		{ID: "a", Ticker: "AAPL"},
		{ID: "b", Ticker: "MSFT"},
		{ID: "c"},
	})
	require.NoError(t, err)
	assert.Len(t, quotes, 2)
	assert.Contains(t, quotes, "a")
	assert.Contains(t, quotes, "b")
	assert.Equal(t, int32(2), hits.Load())
}
