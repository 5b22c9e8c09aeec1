// Package app wires configuration, storage, providers and services into the
// components shared by the HTTP server and the operator CLI.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/ndewijer/portfolio-valuation/internal/alphavantage"
	"github.com/ndewijer/portfolio-valuation/internal/api"
	"github.com/ndewijer/portfolio-valuation/internal/binance"
	"github.com/ndewijer/portfolio-valuation/internal/cache"
	"github.com/ndewijer/portfolio-valuation/internal/config"
	"github.com/ndewijer/portfolio-valuation/internal/pricing"
	"github.com/ndewijer/portfolio-valuation/internal/quote"
	"github.com/ndewijer/portfolio-valuation/internal/repository"
	"github.com/ndewijer/portfolio-valuation/internal/scheduler"
	"github.com/ndewijer/portfolio-valuation/internal/service"
	"github.com/ndewijer/portfolio-valuation/internal/tradegate"
	"github.com/ndewijer/portfolio-valuation/internal/yahoo"
)

// App holds the wired services.
type App struct {
	Instruments *repository.InstrumentRepository
	Trades      *repository.TradeRepository
	Snapshots   *repository.SnapshotRepository

	Cache    *cache.PriceCache
	Resolver *pricing.Resolver

	System     *service.SystemService
	Prices     *service.PriceService
	Fetcher    *service.BatchFetcher
	Quotes     *service.QuoteService
	Positions  *service.PositionService
	Recorder   *service.TradeService
	History    *service.HistoryService
	Benchmarks *service.BenchmarkService
	Snapshot   *service.SnapshotJob

	expirer cache.Expirer
	cfg     *config.Config
	log     zerolog.Logger
}

// New builds every component over an opened and migrated database.
//
// Provider chains, tried in order:
//   - crypto: binance, yahoo
//   - domestic: tradegate, yahoo, alphavantage
//   - generic: yahoo, alphavantage
//
// Returns an error if the cache backend is unknown.
func New(cfg *config.Config, db *sql.DB, log zerolog.Logger) (*App, error) {
	now := quote.SystemClock
	a := &App{
		Instruments: repository.NewInstrumentRepository(db),
		Trades:      repository.NewTradeRepository(db),
		Snapshots:   repository.NewSnapshotRepository(db),
		cfg:         cfg,
		log:         log,
	}

	var store cache.Store
	switch cfg.Cache.Backend {
	case "memory":
		m := cache.NewMemoryStore(now)
		store, a.expirer = m, m
	case "sqlite":
		s := cache.NewSQLStore(db, now)
		store, a.expirer = s, s
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}
	a.Cache = cache.NewPriceCache(store, cfg.Cache.TTL, now, log)

	p := cfg.Providers
	httpClient := &http.Client{Timeout: p.Timeout * 2}
	yh := yahoo.NewFinanceClient(p.YahooBaseURL, httpClient)
	av := alphavantage.NewClient(p.AlphaVantageURL, p.AlphaVantageKey, httpClient)
	bn := binance.NewClient(p.BinanceBaseURL, p.BinanceAPIKey, p.BinanceQuoteAsset, httpClient)
	tg := tradegate.NewClient(p.TradegateBaseURL, httpClient, now)

	a.Resolver = pricing.NewResolver(
		pricing.NewClassifier(p.DomesticPrefixes, nil),
		pricing.Chains{
			pricing.ClassCrypto:   {bn, yh},
			pricing.ClassDomestic: {tg, yh, av},
			pricing.ClassGeneric:  {yh, av},
		},
		pricing.Options{
			Timeout:      p.Timeout,
			MaxQuoteAge:  p.MaxQuoteAge,
			MaxClockSkew: p.MaxClockSkew,
			Now:          now,
		},
		log,
	)

	a.System = service.NewSystemService(db)
	a.Prices = service.NewPriceService(a.Cache, a.Snapshots, a.Resolver, now, log)
	a.Fetcher = service.NewBatchFetcher(a.Prices, log)
	a.Quotes = service.NewQuoteService(a.Instruments, a.Fetcher, cfg.Batch.MaxConcurrent)
	a.Positions = service.NewPositionService(a.Trades, a.Quotes, log)
	a.Recorder = service.NewTradeService(db, a.Trades, a.Instruments, log)
	a.History = service.NewHistoryService(a.Instruments, a.Snapshots)
	a.Benchmarks = service.NewBenchmarkService(yh, av, log)

	sc := cfg.Snapshot
	a.Snapshot = service.NewSnapshotJob(a.Trades, a.Instruments, a.Snapshots, a.Fetcher, service.SnapshotJobConfig{
		BatchSize:       sc.BatchSize,
		BatchDelay:      sc.BatchDelay,
		MaxBatchDelay:   sc.MaxBatchDelay,
		Deadline:        sc.Deadline,
		RecentWindow:    sc.RecentWindow,
		FallbackLimit:   sc.FallbackLimit,
		FreshnessWindow: sc.FreshnessWindow,
		MaxAge:          cfg.Cache.TTL,
		MaxConcurrent:   cfg.Batch.MaxConcurrent,
	}, now, log)

	return a, nil
}

// Router returns the HTTP handler serving the API.
func (a *App) Router() http.Handler {
	return api.NewRouter(api.Services{
		System:     a.System,
		Quotes:     a.Quotes,
		Positions:  a.Positions,
		Trades:     a.Recorder,
		History:    a.History,
		Benchmarks: a.Benchmarks,
		Snapshot:   a.Snapshot,
	}, a.cfg, a.log)
}

// SnapshotTask adapts the snapshot job to the scheduler. A run that ends
// with failures or a hit deadline still returns nil; only a run that could
// not start is an error.
func (a *App) SnapshotTask() scheduler.Job {
	return scheduler.JobFunc{
		JobName: a.Snapshot.Name(),
		Fn: func(ctx context.Context) error {
			_, err := a.Snapshot.Run(ctx)
			return err
		},
	}
}

// Schedule registers the periodic jobs.
func (a *App) Schedule(s *scheduler.Scheduler) error {
	if a.cfg.Snapshot.Enabled {
		if err := s.AddJob(a.cfg.Snapshot.Schedule, a.SnapshotTask()); err != nil {
			return err
		}
	}
	if a.expirer != nil {
		if err := s.AddJob(a.cfg.Snapshot.CleanupSchedule, cache.NewCleanupJob(a.expirer, a.log)); err != nil {
			return err
		}
	}
	return nil
}

// Close waits for pending cache writes.
func (a *App) Close() {
	a.Cache.Flush()
}
