package service

import (
	"context"
	"time"

	"github.com/ndewijer/portfolio-valuation/internal/model"
)

// The interfaces below are the collaborators the services depend on. The
// repository package satisfies the storage ones; the pricing and cache
// packages satisfy the rest.

// InstrumentDirectory maps instrument IDs to the identifiers providers understand.
type InstrumentDirectory interface {
	GetInstrument(ctx context.Context, id string) (model.Instrument, error)
	GetInstruments(ctx context.Context, ids []string) (map[string]model.Instrument, error)
	ListInstruments(ctx context.Context, limit int) ([]model.Instrument, error)
}

// TradeLedger is the read side of the append-only trade ledger.
type TradeLedger interface {
	GetTradesByPortfolio(ctx context.Context, portfolioID string) ([]model.Trade, error)
	GetAllTrades(ctx context.Context) ([]model.Trade, error)
	GetInstrumentsTradedSince(ctx context.Context, since time.Time) ([]string, error)
}

// SnapshotStore is the durable, append-only price history.
type SnapshotStore interface {
	AppendSnapshots(ctx context.Context, snapshots []model.PriceSnapshot) error
	GetLatestSnapshot(ctx context.Context, instrumentID string) (model.PriceSnapshot, error)
	GetLatestSnapshotTimes(ctx context.Context, instrumentIDs []string) (map[string]time.Time, error)
	GetSnapshots(ctx context.Context, instrumentID string, from, to time.Time) ([]model.PriceSnapshot, error)
}

// HotCache is the short-lived price cache checked before anything else.
type HotCache interface {
	Get(ctx context.Context, instrumentID string, maxAge time.Duration) (model.CachedPrice, bool)
	PutAsync(cp model.CachedPrice)
	TTL() time.Duration
}

// QuoteResolver produces a fresh quote by walking the provider chain.
type QuoteResolver interface {
	Resolve(ctx context.Context, inst model.Instrument) (model.Quote, error)
}
