package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/ndewijer/portfolio-valuation/internal/apperrors"
	"github.com/ndewijer/portfolio-valuation/internal/model"
	"github.com/ndewijer/portfolio-valuation/internal/quote"
)

// PriceOptions controls one price lookup.
type PriceOptions struct {
	// MaxAge is the oldest cached or snapshot price accepted. Zero uses the
	// hot cache TTL.
	MaxAge time.Duration
	// ForceFresh skips both cache tiers and always asks the providers.
	ForceFresh bool
}

// PriceService resolves current prices through the tiers: hot cache, latest
// durable snapshot, then the provider waterfall.
type PriceService struct {
	cache     HotCache
	snapshots SnapshotStore
	resolver  QuoteResolver
	now       quote.Clock
	log       zerolog.Logger

	inflight singleflight.Group
}

// NewPriceService creates a new PriceService. snapshots may be nil to
// disable the durable tier.
func NewPriceService(cache HotCache, snapshots SnapshotStore, resolver QuoteResolver, now quote.Clock, log zerolog.Logger) *PriceService {
	if now == nil {
		now = quote.SystemClock
	}
	return &PriceService{
		cache:     cache,
		snapshots: snapshots,
		resolver:  resolver,
		now:       now,
		log:       log.With().Str("component", "price_service").Logger(),
	}
}

// GetPrice returns the price of one instrument and where it came from.
//
// A provider result is written back to the hot cache asynchronously before
// it is returned; the caller never waits on the cache write. Concurrent
// lookups that miss for the same instrument share one provider call.
//
// Returns:
//   - model.PriceResult: quote, origin and wall-clock latency
//   - error: *apperrors.ResolveError when every provider failed, or the
//     context error
func (s *PriceService) GetPrice(ctx context.Context, inst model.Instrument, opts PriceOptions) (model.PriceResult, error) {
	start := time.Now()
	maxAge := opts.MaxAge
	if maxAge <= 0 {
		maxAge = s.cache.TTL()
	}

	if !opts.ForceFresh {
		if cp, ok := s.cache.Get(ctx, inst.ID, maxAge); ok {
			return model.PriceResult{InstrumentID: inst.ID, Quote: cp.Quote, Origin: model.OriginCache, Latency: time.Since(start)}, nil
		}
		if q, ok := s.fromSnapshot(ctx, inst, maxAge); ok {
			return model.PriceResult{InstrumentID: inst.ID, Quote: q, Origin: model.OriginSnapshot, Latency: time.Since(start)}, nil
		}
	}

	ch := s.inflight.DoChan(inst.ID, func() (any, error) {
		q, err := s.resolver.Resolve(context.WithoutCancel(ctx), inst)
		if err != nil {
			return nil, err
		}
		s.cache.PutAsync(model.CachedPrice{InstrumentID: inst.ID, Quote: q, FetchedAt: s.now()})
		return q, nil
	})

	select {
	case <-ctx.Done():
		return model.PriceResult{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return model.PriceResult{}, res.Err
		}
		return model.PriceResult{
			InstrumentID: inst.ID,
			Quote:        res.Val.(model.Quote),
			Origin:       model.OriginProvider,
			Latency:      time.Since(start),
		}, nil
	}
}

// fromSnapshot returns the latest durable snapshot if it is within maxAge.
// A hit is promoted into the hot cache.
func (s *PriceService) fromSnapshot(ctx context.Context, inst model.Instrument, maxAge time.Duration) (model.Quote, bool) {
	if s.snapshots == nil {
		return model.Quote{}, false
	}
	snap, err := s.snapshots.GetLatestSnapshot(ctx, inst.ID)
	if err != nil {
		if !errors.Is(err, apperrors.ErrSnapshotNotFound) {
			s.log.Warn().Err(err).Str("instrument", inst.ID).Msg("Snapshot lookup failed, skipping tier")
		}
		return model.Quote{}, false
	}
	if s.now().Sub(snap.SnapshotAt) > maxAge || !snap.Price.IsPositive() {
		return model.Quote{}, false
	}

	q := model.Quote{
		Symbol:   inst.Ticker,
		Price:    snap.Price,
		Currency: snap.Currency,
		AsOf:     snap.SnapshotAt,
		Source:   snap.Source,
	}
	s.cache.PutAsync(model.CachedPrice{InstrumentID: inst.ID, Quote: q, FetchedAt: snap.SnapshotAt})
	return q, true
}
