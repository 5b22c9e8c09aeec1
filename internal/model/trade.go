package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeSide is either BUY or SELL.
type TradeSide string

const (
	SideBuy  TradeSide = "BUY"
	SideSell TradeSide = "SELL"
)

// Trade is an immutable ledger entry. Trades are never updated; a correction
// is recorded as a new trade.
//
// ISIN and Ticker are copied from the instrument directory when trades are
// read from the ledger so the accounting engine can group by the stable
// security identifier without a second lookup.
type Trade struct {
	ID           string          `json:"id"`
	PortfolioID  string          `json:"portfolioId"`
	InstrumentID string          `json:"instrumentId"`
	ISIN         string          `json:"isin,omitempty"`
	Ticker       string          `json:"ticker,omitempty"`
	Side         TradeSide       `json:"side"`
	Quantity     decimal.Decimal `json:"quantity"`
	Price        decimal.Decimal `json:"price"`
	Fees         decimal.Decimal `json:"fees"`
	Currency     string          `json:"currency"`
	ExecutedAt   time.Time       `json:"executedAt"`
	CreatedAt    time.Time       `json:"createdAt,omitempty"`
}

// GroupKey returns the identifier trades are grouped under: ISIN first,
// then instrument ID, then ticker.
func (t Trade) GroupKey() string {
	switch {
	case t.ISIN != "":
		return t.ISIN
	case t.InstrumentID != "":
		return t.InstrumentID
	default:
		return t.Ticker
	}
}
