package service_test

import (
	"database/sql"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ndewijer/portfolio-valuation/internal/cache"
	"github.com/ndewijer/portfolio-valuation/internal/pricing"
	"github.com/ndewijer/portfolio-valuation/internal/quote"
	"github.com/ndewijer/portfolio-valuation/internal/repository"
	"github.com/ndewijer/portfolio-valuation/internal/service"
	"github.com/ndewijer/portfolio-valuation/internal/testutil"
)

// testStack wires the services over an in-memory database and one mock
// provider serving every instrument class.
type testStack struct {
	db          *sql.DB
	now         quote.Clock
	provider    *testutil.MockProvider
	cache       *cache.PriceCache
	instruments *repository.InstrumentRepository
	trades      *repository.TradeRepository
	snapshots   *repository.SnapshotRepository
	prices      *service.PriceService
	fetcher     *service.BatchFetcher
	quotes      *service.QuoteService
	positions   *service.PositionService
	recorder    *service.TradeService
}

func newTestStack(t *testing.T, now quote.Clock) *testStack {
	t.Helper()
	if now == nil {
		now = quote.SystemClock
	}
	log := zerolog.Nop()
	db := testutil.SetupTestDB(t)

	s := &testStack{
		db:          db,
		now:         now,
		provider:    testutil.NewMockProvider("mock").WithClock(now),
		instruments: repository.NewInstrumentRepository(db),
		trades:      repository.NewTradeRepository(db),
		snapshots:   repository.NewSnapshotRepository(db),
	}
	s.cache = cache.NewPriceCache(cache.NewMemoryStore(now), time.Minute, now, log)
	t.Cleanup(s.cache.Flush)

	chain := []quote.Provider{s.provider}
	resolver := pricing.NewResolver(pricing.NewClassifier([]string{"DE"}, nil), pricing.Chains{
		pricing.ClassCrypto:   chain,
		pricing.ClassDomestic: chain,
		pricing.ClassGeneric:  chain,
	}, pricing.Options{Timeout: 2 * time.Second, Now: now}, log)

	s.prices = service.NewPriceService(s.cache, s.snapshots, resolver, now, log)
	s.fetcher = service.NewBatchFetcher(s.prices, log)
	s.quotes = service.NewQuoteService(s.instruments, s.fetcher, 10)
	s.positions = service.NewPositionService(s.trades, s.quotes, log)
	s.recorder = service.NewTradeService(db, s.trades, s.instruments, log)
	return s
}

func (s *testStack) snapshotJob(cfg service.SnapshotJobConfig) *service.SnapshotJob {
	return service.NewSnapshotJob(s.trades, s.instruments, s.snapshots, s.fetcher, cfg, s.now, zerolog.Nop())
}
