package service

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ndewijer/portfolio-valuation/internal/model"
	"github.com/ndewijer/portfolio-valuation/internal/pricing"
	"github.com/ndewijer/portfolio-valuation/internal/quote"
)

// benchmarkFanOut bounds concurrent index requests against a provider
// without a batch endpoint.
const benchmarkFanOut = 4

// BenchmarkService reports the fixed list of market indices.
type BenchmarkService struct {
	primary   quote.Provider
	secondary quote.Provider
	indices   []model.BenchmarkIndex
	log       zerolog.Logger
}

// NewBenchmarkService creates a new BenchmarkService. The primary provider's
// quotes take precedence over the secondary's.
func NewBenchmarkService(primary, secondary quote.Provider, log zerolog.Logger) *BenchmarkService {
	return &BenchmarkService{
		primary:   primary,
		secondary: secondary,
		indices:   pricing.DefaultBenchmarks,
		log:       log.With().Str("component", "benchmark_service").Logger(),
	}
}

// Benchmarks queries both providers concurrently and merges their answers.
// Provider failures make indices unavailable; they never fail the call.
func (s *BenchmarkService) Benchmarks(ctx context.Context) []model.Benchmark {
	insts := make([]model.Instrument, len(s.indices))
	for i, idx := range s.indices {
		insts[i] = model.Instrument{ID: idx.Symbol, Name: idx.Name, Ticker: idx.Symbol, Kind: model.KindIndex}
	}

	var primary, secondary map[string]model.Quote
	var g errgroup.Group
	g.Go(func() error {
		primary = s.fetch(ctx, s.primary, insts)
		return nil
	})
	g.Go(func() error {
		secondary = s.fetch(ctx, s.secondary, insts)
		return nil
	})
	_ = g.Wait()

	return pricing.MergeBenchmarks(primary, secondary)
}

// fetch returns index quotes keyed by symbol, using the batch endpoint
// when the provider has one.
func (s *BenchmarkService) fetch(ctx context.Context, p quote.Provider, insts []model.Instrument) map[string]model.Quote {
	if p == nil {
		return nil
	}
	if bp, ok := p.(quote.BatchProvider); ok {
		quotes, err := bp.GetQuotes(ctx, insts)
		if err != nil {
			s.log.Warn().Err(err).Str("provider", p.Name()).Msg("Benchmark batch fetch failed")
		}
		return quotes
	}

	var mu sync.Mutex
	quotes := make(map[string]model.Quote, len(insts))
	var g errgroup.Group
	g.SetLimit(benchmarkFanOut)
	for _, inst := range insts {
		inst := inst
		g.Go(func() error {
			q, err := p.GetQuote(ctx, inst)
			if err != nil {
				s.log.Debug().Err(err).Str("provider", p.Name()).Str("symbol", inst.Ticker).Msg("Benchmark quote failed")
				return nil
			}
			mu.Lock()
			quotes[inst.ID] = q
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return quotes
}
