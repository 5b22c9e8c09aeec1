package pricing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ndewijer/portfolio-valuation/internal/apperrors"
	"github.com/ndewijer/portfolio-valuation/internal/model"
	"github.com/ndewijer/portfolio-valuation/internal/quote"
	"github.com/ndewijer/portfolio-valuation/internal/testutil"
)

func TestClassify(t *testing.T) {
	c := NewClassifier([]string{"DE"}, nil)

	tests := []struct {
		name string
		inst model.Instrument
		want Class
	}{
		{"bare crypto ticker", model.Instrument{Ticker: "BTC"}, ClassCrypto},
		{"dash pair", model.Instrument{Ticker: "eth-usd"}, ClassCrypto},
		{"exchange pair", model.Instrument{Ticker: "SOLUSDT"}, ClassCrypto},
		{"directory kind", model.Instrument{Ticker: "PEPE", Kind: model.KindCrypto}, ClassCrypto},
		{"german isin", model.Instrument{ISIN: "DE0007164600", Ticker: "SAP.DE"}, ClassDomestic},
		{"german isin without ticker", model.Instrument{ISIN: "DE0007164600"}, ClassDomestic},
		{"german isin on foreign venue", model.Instrument{ISIN: "DE0007164600", Ticker: "SAP.L"}, ClassGeneric},
		{"bad check digit", model.Instrument{ISIN: "DE0007164601"}, ClassGeneric},
		{"us isin", model.Instrument{ISIN: "US0378331005", Ticker: "AAPL"}, ClassGeneric},
		{"ticker only", model.Instrument{Ticker: "MSFT"}, ClassGeneric},
		{"unknown pair base", model.Instrument{Ticker: "FOO-USD"}, ClassGeneric},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Classify(tt.inst))
		})
	}
}

func newTestResolver(clock *testutil.FakeClock, chains Chains) *Resolver {
	return NewResolver(NewClassifier([]string{"DE"}, nil), chains, Options{
		Timeout: 50 * time.Millisecond,
		Now:     clock.Now,
	}, zerolog.Nop())
}

func TestResolver_FallsThroughToThirdProvider(t *testing.T) {
	clock := testutil.NewFakeClock(time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC))
	inst := testutil.NewInstrument().WithISIN("DE0007164600").Instrument()

	tradegate := testutil.NewMockProvider("tradegate").WithClock(clock.Now).
		WithError(apperrors.ErrProviderUnavailable)
	yahoo := testutil.NewMockProvider("yahoo").WithClock(clock.Now).WithPrice(inst.ID, "0")
	av := testutil.NewMockProvider("alphavantage").WithClock(clock.Now).WithPrice(inst.ID, "123.45")

	r := newTestResolver(clock, Chains{ClassDomestic: {tradegate, yahoo, av}})

	q, err := r.Resolve(context.Background(), inst)
	require.NoError(t, err)
	assert.Equal(t, "alphavantage", q.Source)
	assert.Equal(t, "123.45", q.Price.String())
	assert.Equal(t, 1, tradegate.Calls(inst.ID))
	assert.Equal(t, 1, yahoo.Calls(inst.ID))
	assert.Equal(t, 1, av.Calls(inst.ID))
}

func TestResolver_StopsAtFirstAcceptableQuote(t *testing.T) {
	clock := testutil.NewFakeClock(time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC))
	inst := testutil.NewInstrument().WithTicker("BTC").Instrument()

	binance := testutil.NewMockProvider("binance").WithClock(clock.Now).WithPrice(inst.ID, "64000")
	yahoo := testutil.NewMockProvider("yahoo").WithClock(clock.Now)

	r := newTestResolver(clock, Chains{ClassCrypto: {binance, yahoo}})

	q, err := r.Resolve(context.Background(), inst)
	require.NoError(t, err)
	assert.Equal(t, "binance", q.Source)
	assert.Equal(t, 0, yahoo.TotalCalls())
}

func TestResolver_AllProvidersFail(t *testing.T) {
	clock := testutil.NewFakeClock(time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC))
	inst := testutil.NewInstrument().WithTicker("MSFT").Instrument()

	yahoo := testutil.NewMockProvider("yahoo").WithClock(clock.Now).
		WithAsOf(clock.Now().Add(-200 * time.Hour))
	av := testutil.NewMockProvider("alphavantage").WithClock(clock.Now).
		WithError(apperrors.ErrRateLimited)

	r := newTestResolver(clock, Chains{ClassGeneric: {yahoo, av}})

	_, err := r.Resolve(context.Background(), inst)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrAllProvidersFailed)
	assert.ErrorIs(t, err, apperrors.ErrStaleQuote)
	assert.ErrorIs(t, err, apperrors.ErrRateLimited)

	var rerr *apperrors.ResolveError
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, inst.ID, rerr.InstrumentID)
	require.Len(t, rerr.Attempts, 2)
	assert.Equal(t, "yahoo", rerr.Attempts[0].Provider)
	assert.Equal(t, "alphavantage", rerr.Attempts[1].Provider)
}

func TestResolver_ProviderTimeoutFallsThrough(t *testing.T) {
	clock := testutil.NewFakeClock(time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC))
	inst := testutil.NewInstrument().WithTicker("MSFT").Instrument()

	slow := testutil.NewMockProvider("yahoo").WithClock(clock.Now).WithDelay(time.Second)
	av := testutil.NewMockProvider("alphavantage").WithClock(clock.Now).WithPrice(inst.ID, "410")

	r := newTestResolver(clock, Chains{ClassGeneric: {slow, av}})

	start := time.Now()
	q, err := r.Resolve(context.Background(), inst)
	require.NoError(t, err)
	assert.Equal(t, "alphavantage", q.Source)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestResolver_NoChainForClass(t *testing.T) {
	clock := testutil.NewFakeClock(time.Now())
	r := newTestResolver(clock, Chains{})

	_, err := r.Resolve(context.Background(), testutil.NewInstrument().Instrument())
	assert.ErrorIs(t, err, apperrors.ErrUnsupportedInstrument)
	assert.ErrorIs(t, err, apperrors.ErrAllProvidersFailed)
}

type panicProvider struct{}

func (panicProvider) Name() string { return "broken" }
func (panicProvider) GetQuote(context.Context, model.Instrument) (model.Quote, error) {
	panic("unexpected payload")
}

func TestResolver_RecoversProviderPanic(t *testing.T) {
	clock := testutil.NewFakeClock(time.Now())
	inst := testutil.NewInstrument().WithTicker("MSFT").Instrument()
	yahoo := testutil.NewMockProvider("yahoo").WithClock(clock.Now)

	r := newTestResolver(clock, Chains{ClassGeneric: {panicProvider{}, yahoo}})

	q, err := r.Resolve(context.Background(), inst)
	require.NoError(t, err)
	assert.Equal(t, "yahoo", q.Source)
}

func TestResolver_Accept(t *testing.T) {
	now := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)
	r := NewResolver(NewClassifier(nil, nil), nil, Options{Now: func() time.Time { return now }}, zerolog.Nop())

	tests := []struct {
		name    string
		quote   model.Quote
		wantErr error
	}{
		{"fresh", model.Quote{Price: testutil.D("1"), AsOf: now}, nil},
		{"weekend close", model.Quote{Price: testutil.D("1"), AsOf: now.Add(-72 * time.Hour)}, nil},
		{"small skew", model.Quote{Price: testutil.D("1"), AsOf: now.Add(4 * time.Minute)}, nil},
		{"zero price", model.Quote{Price: testutil.D("0"), AsOf: now}, apperrors.ErrInvalidQuote},
		{"negative price", model.Quote{Price: testutil.D("-3"), AsOf: now}, apperrors.ErrInvalidQuote},
		{"missing timestamp", model.Quote{Price: testutil.D("1")}, apperrors.ErrStaleQuote},
		{"future", model.Quote{Price: testutil.D("1"), AsOf: now.Add(time.Hour)}, apperrors.ErrStaleQuote},
		{"too old", model.Quote{Price: testutil.D("1"), AsOf: now.Add(-97 * time.Hour)}, apperrors.ErrStaleQuote},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.Accept(tt.quote)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestResolver_Chain(t *testing.T) {
	yahoo := testutil.NewMockProvider("yahoo")
	binance := testutil.NewMockProvider("binance")
	r := NewResolver(NewClassifier([]string{"DE"}, nil), Chains{
		ClassCrypto:  {binance, yahoo},
		ClassGeneric: {yahoo},
	}, Options{}, zerolog.Nop())

	assert.Equal(t, []quote.Provider{binance, yahoo}, r.Chain(model.Instrument{Ticker: "ETH"}))
	assert.Equal(t, []quote.Provider{yahoo}, r.Chain(model.Instrument{Ticker: "AAPL"}))
}

func TestMergeBenchmarks(t *testing.T) {
	primary := map[string]model.Quote{
		"^GSPC":  {Price: testutil.D("5100.5"), Currency: "USD", Source: "yahoo"},
		"^GDAXI": {Price: testutil.D("0"), Source: "yahoo"},
		"^XYZ":   {Price: testutil.D("1"), Source: "yahoo"},
	}
	secondary := map[string]model.Quote{
		"^GSPC":  {Price: testutil.D("5099"), Currency: "USD", Source: "alphavantage"},
		"^GDAXI": {Price: testutil.D("17700"), Currency: "EUR", Source: "alphavantage"},
	}

	got := MergeBenchmarks(primary, secondary)
	require.Len(t, got, len(DefaultBenchmarks))
	for i, idx := range DefaultBenchmarks {
		assert.Equal(t, idx.Symbol, got[i].Symbol)
	}

	bySymbol := map[string]model.Benchmark{}
	for _, b := range got {
		bySymbol[b.Symbol] = b
	}
	assert.Equal(t, "yahoo", bySymbol["^GSPC"].Source)
	assert.Equal(t, "5100.5", bySymbol["^GSPC"].Price.String())
	assert.Equal(t, "alphavantage", bySymbol["^GDAXI"].Source)
	assert.False(t, bySymbol["^N225"].Available)
	assert.NotContains(t, bySymbol, "^XYZ")

	assert.Equal(t, got, MergeBenchmarks(primary, secondary))
}
