package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Quote is a price observation returned by a quote provider.
type Quote struct {
	Symbol        string           `json:"symbol"`
	Price         decimal.Decimal  `json:"price"`
	Currency      string           `json:"currency"`
	AsOf          time.Time        `json:"asOf"`
	Source        string           `json:"source"`
	Open          *decimal.Decimal `json:"open,omitempty"`
	High          *decimal.Decimal `json:"high,omitempty"`
	Low           *decimal.Decimal `json:"low,omitempty"`
	PreviousClose *decimal.Decimal `json:"previousClose,omitempty"`
	ChangePercent *decimal.Decimal `json:"changePercent,omitempty"`
}

// Origin tells where a resolved price came from.
type Origin string

const (
	OriginCache    Origin = "cache"
	OriginSnapshot Origin = "snapshot"
	OriginProvider Origin = "provider"
)

// CachedPrice is a quote held by the hot cache, keyed by instrument.
//
// FetchedAt is when this process obtained the quote and is what cache age is
// measured against. Quote.AsOf stays the market timestamp reported by the
// provider, which for end-of-day sources can be hours older.
type CachedPrice struct {
	InstrumentID string    `json:"instrumentId"`
	Quote        Quote     `json:"quote"`
	FetchedAt    time.Time `json:"fetchedAt"`
}

// PriceResult is the outcome of resolving one instrument's price.
type PriceResult struct {
	InstrumentID string        `json:"instrumentId"`
	Quote        Quote         `json:"quote"`
	Origin       Origin        `json:"origin"`
	Latency      time.Duration `json:"-"`
}

// InstrumentError reports a per-instrument failure inside a batch.
type InstrumentError struct {
	InstrumentID string `json:"instrumentId"`
	Error        string `json:"error"`
	Skipped      bool   `json:"skipped,omitempty"`
}
