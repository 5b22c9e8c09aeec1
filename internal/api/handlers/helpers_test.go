package handlers

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

type handlerDeps struct {
	db       *sql.DB
	provider *testutil.MockProvider
	quotes   *service.QuoteService
	pos      *service.PositionService
	trades   *service.TradeService
	history  *service.HistoryService
	job      *service.SnapshotJob
}

func setupDeps(t *testing.T) *handlerDeps {
	t.Helper()
	log := zerolog.Nop()
	now := quote.SystemClock
	db := testutil.SetupTestDB(t)

	instruments := repository.NewInstrumentRepository(db)
	trades := repository.NewTradeRepository(db)
	snapshots := repository.NewSnapshotRepository(db)

	provider := testutil.NewMockProvider("mock")
	chain := []quote.Provider{provider}
	resolver := pricing.NewResolver(pricing.NewClassifier([]string{"DE"}, nil), pricing.Chains{
		pricing.ClassCrypto:   chain,
		pricing.ClassDomestic: chain,
		pricing.ClassGeneric:  chain,
	}, pricing.Options{Timeout: 2 * time.Second}, log)

	pc := cache.NewPriceCache(cache.NewMemoryStore(now), time.Minute, now, log)
	t.Cleanup(pc.Flush)

	prices := service.NewPriceService(pc, snapshots, resolver, now, log)
	fetcher := service.NewBatchFetcher(prices, log)
	quotes := service.NewQuoteService(instruments, fetcher, 10)

	return &handlerDeps{
		db:       db,
		provider: provider,
		quotes:   quotes,
		pos:      service.NewPositionService(trades, quotes, log),
		trades:   service.NewTradeService(db, trades, instruments, log),
		history:  service.NewHistoryService(instruments, snapshots),
		job: service.NewSnapshotJob(trades, instruments, snapshots, fetcher, service.SnapshotJobConfig{
			BatchSize:  5,
			BatchDelay: time.Millisecond,
			Deadline:   time.Minute,
		}, now, log),
	}
}
