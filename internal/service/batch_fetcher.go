package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/ndewijer/portfolio-valuation/internal/apperrors"
	"github.com/ndewijer/portfolio-valuation/internal/model"
)

// DefaultMaxConcurrent bounds in-flight resolutions when BatchOptions leaves it unset.
const DefaultMaxConcurrent = 10

// BatchOptions controls one batch fetch.
type BatchOptions struct {
	MaxConcurrent int
	MaxAge        time.Duration
	ForceFresh    bool

	// OnStart and OnFinish, when set, are called around every resolution
	// with the number of resolutions in flight at that moment.
	OnStart  func(inFlight int)
	OnFinish func(inFlight int)
}

// BatchResult is the outcome of FetchBatch. Prices is keyed by instrument
// ID; Errors is sorted by instrument ID.
type BatchResult struct {
	Prices  map[string]model.PriceResult `json:"prices"`
	Errors  []model.InstrumentError      `json:"errors"`
	Metrics model.BatchMetrics           `json:"metrics"`
}

// BatchFetcher resolves many prices with a bounded number of concurrent
// lookups. A failure of one instrument never aborts the others.
type BatchFetcher struct {
	prices *PriceService
	log    zerolog.Logger
}

// NewBatchFetcher creates a new BatchFetcher.
func NewBatchFetcher(prices *PriceService, log zerolog.Logger) *BatchFetcher {
	return &BatchFetcher{
		prices: prices,
		log:    log.With().Str("component", "batch_fetcher").Logger(),
	}
}

// FetchBatch resolves the price of every instrument.
//
// At most opts.MaxConcurrent lookups run at once. Instruments not started
// before ctx is done are reported as skipped.
func (f *BatchFetcher) FetchBatch(ctx context.Context, insts []model.Instrument, opts BatchOptions) BatchResult {
	start := time.Now()
	limit := opts.MaxConcurrent
	if limit <= 0 {
		limit = DefaultMaxConcurrent
	}

	var (
		mu        sync.Mutex
		inFlight  atomic.Int64
		latencies = make([]float64, 0, len(insts))
		result    = BatchResult{Prices: make(map[string]model.PriceResult, len(insts))}
	)
	result.Metrics.Total = len(insts)

	var g errgroup.Group
	g.SetLimit(limit)

	for _, inst := range insts {
		inst := inst
		g.Go(func() error {
			if ctx.Err() != nil {
				mu.Lock()
				result.Errors = append(result.Errors, model.InstrumentError{
					InstrumentID: inst.ID,
					Error:        apperrors.ErrDeadlineExceeded.Error(),
					Skipped:      true,
				})
				mu.Unlock()
				return nil
			}

			n := int(inFlight.Add(1))
			if opts.OnStart != nil {
				opts.OnStart(n)
			}
			res, err := f.prices.GetPrice(ctx, inst, PriceOptions{MaxAge: opts.MaxAge, ForceFresh: opts.ForceFresh})
			n = int(inFlight.Add(-1))
			if opts.OnFinish != nil {
				opts.OnFinish(n)
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				skipped := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
				result.Errors = append(result.Errors, model.InstrumentError{
					InstrumentID: inst.ID,
					Error:        err.Error(),
					Skipped:      skipped,
				})
				f.log.Warn().Err(err).Str("instrument", inst.ID).Msg("Price resolution failed")
				return nil
			}
			result.Prices[inst.ID] = res
			latencies = append(latencies, float64(res.Latency))
			switch res.Origin {
			case model.OriginCache:
				result.Metrics.CacheHits++
			case model.OriginSnapshot:
				result.Metrics.SnapshotHits++
			case model.OriginProvider:
				result.Metrics.ProviderCalls++
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(result.Errors, func(i, j int) bool {
		return result.Errors[i].InstrumentID < result.Errors[j].InstrumentID
	})
	result.Metrics.Success = len(result.Prices)
	result.Metrics.Failed = len(result.Errors)
	fillLatency(&result.Metrics, latencies)
	result.Metrics.Duration = time.Since(start)

	f.log.Debug().
		Int("total", result.Metrics.Total).
		Int("success", result.Metrics.Success).
		Int("failed", result.Metrics.Failed).
		Int("cache_hits", result.Metrics.CacheHits).
		Int("provider_calls", result.Metrics.ProviderCalls).
		Dur("duration", result.Metrics.Duration).
		Msg("Batch fetch finished")

	return result
}

// fillLatency computes latency statistics over successful lookups, in nanoseconds.
func fillLatency(m *model.BatchMetrics, latencies []float64) {
	if len(latencies) == 0 {
		return
	}
	sort.Float64s(latencies)
	m.AvgLatency = time.Duration(stat.Mean(latencies, nil))
	m.MinLatency = time.Duration(floats.Min(latencies))
	m.MaxLatency = time.Duration(floats.Max(latencies))
	m.P95Latency = time.Duration(stat.Quantile(0.95, stat.Empirical, latencies, nil))
}
