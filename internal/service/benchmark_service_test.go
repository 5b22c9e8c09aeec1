package service_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ndewijer/portfolio-valuation/internal/apperrors"
	"github.com/ndewijer/portfolio-valuation/internal/pricing"
	"github.com/ndewijer/portfolio-valuation/internal/service"
	"github.com/ndewijer/portfolio-valuation/internal/testutil"
)

func TestBenchmarkService_Benchmarks(t *testing.T) {
	primary := testutil.NewMockProvider("yahoo").
		WithPrice("^GSPC", "5100").
		WithInstrumentError("^GDAXI", apperrors.ErrRateLimited)
	secondary := testutil.NewMockProvider("alphavantage").
		WithPrice("^GSPC", "4900").
		WithPrice("^GDAXI", "17800").
		WithError(apperrors.ErrRateLimited).
		WithInstrumentError("^GSPC", nil).
		WithInstrumentError("^GDAXI", nil)

	svc := service.NewBenchmarkService(primary, secondary, zerolog.Nop())
	got := svc.Benchmarks(context.Background())

	require.Len(t, got, len(pricing.DefaultBenchmarks))
	bySymbol := map[string]int{}
	for i, b := range got {
		assert.Equal(t, pricing.DefaultBenchmarks[i].Symbol, b.Symbol)
		bySymbol[b.Symbol] = i
	}

	sp := got[bySymbol["^GSPC"]]
	assert.Equal(t, "yahoo", sp.Source)
	assert.Equal(t, "5100", sp.Price.String())

	dax := got[bySymbol["^GDAXI"]]
	assert.True(t, dax.Available)
	assert.Equal(t, "alphavantage", dax.Source)

	nikkei := got[bySymbol["^N225"]]
	assert.True(t, nikkei.Available)
	assert.Equal(t, "yahoo", nikkei.Source)
}
