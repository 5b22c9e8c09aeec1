package testutil

import (
	"database/sql"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ndewijer/portfolio-valuation/internal/model"
	"github.com/ndewijer/portfolio-valuation/internal/repository"
)

var tickerSeq atomic.Int64

// MakeID returns a fresh UUID string.
func MakeID() string {
	return uuid.New().String()
}

// MakeTicker returns a unique ticker-like symbol.
func MakeTicker(prefix string) string {
	return fmt.Sprintf("%s%d", prefix, tickerSeq.Add(1))
}

// D parses a decimal literal and panics on malformed input. Test-only.
func D(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// InstrumentBuilder provides a fluent interface for creating test instruments.
//
// Example usage:
//
//	inst := testutil.NewInstrument().
//	    WithISIN("DE0007164600").
//	    WithTicker("SAP.DE").
//	    Build(t, db)
type InstrumentBuilder struct {
	inst model.Instrument
}

// NewInstrument creates an InstrumentBuilder with sensible defaults.
func NewInstrument() *InstrumentBuilder {
	ticker := MakeTicker("TST")
	return &InstrumentBuilder{inst: model.Instrument{
		ID:        MakeID(),
		Name:      "Test Instrument " + ticker,
		Ticker:    ticker,
		Currency:  "USD",
		Kind:      model.KindEquity,
		CreatedAt: time.Now().UTC(),
	}}
}

// WithID sets a custom ID.
func (b *InstrumentBuilder) WithID(id string) *InstrumentBuilder {
	b.inst.ID = id
	return b
}

// WithISIN sets the ISIN.
func (b *InstrumentBuilder) WithISIN(isin string) *InstrumentBuilder {
	b.inst.ISIN = isin
	return b
}

// WithTicker sets the ticker.
func (b *InstrumentBuilder) WithTicker(ticker string) *InstrumentBuilder {
	b.inst.Ticker = ticker
	return b
}

// WithCurrency sets the currency.
func (b *InstrumentBuilder) WithCurrency(currency string) *InstrumentBuilder {
	b.inst.Currency = currency
	return b
}

// WithKind sets the instrument kind.
func (b *InstrumentBuilder) WithKind(kind model.InstrumentKind) *InstrumentBuilder {
	b.inst.Kind = kind
	return b
}

// WithCreatedAt sets the creation time, which orders the directory listing.
func (b *InstrumentBuilder) WithCreatedAt(ts time.Time) *InstrumentBuilder {
	b.inst.CreatedAt = ts
	return b
}

// Instrument returns the instrument without persisting it.
func (b *InstrumentBuilder) Instrument() model.Instrument {
	return b.inst
}

// Build inserts the instrument into the database and returns it.
func (b *InstrumentBuilder) Build(t *testing.T, db *sql.DB) model.Instrument {
	t.Helper()

	_, err := db.Exec(`
		INSERT INTO instrument (id, name, isin, ticker, currency, kind, exchange, created_at)
		VALUES (?, ?, NULLIF(?, ''), NULLIF(?, ''), ?, ?, NULLIF(?, ''), ?)`,
		b.inst.ID, b.inst.Name, b.inst.ISIN, b.inst.Ticker, b.inst.Currency,
		string(b.inst.Kind), b.inst.Exchange, repository.FormatTime(b.inst.CreatedAt),
	)
	if err != nil {
		t.Fatalf("Failed to create test instrument: %v", err)
	}
	return b.inst
}

// TradeBuilder provides a fluent interface for creating test trades.
//
// Example usage:
//
//	testutil.NewTrade(portfolioID, inst.ID).Buy("10", "100").Build(t, db)
//	testutil.NewTrade(portfolioID, inst.ID).Sell("5", "150").WithFees("1.5").Build(t, db)
type TradeBuilder struct {
	trade model.Trade
}

// NewTrade creates a TradeBuilder for a BUY of 1 unit at 100 executed now.
func NewTrade(portfolioID, instrumentID string) *TradeBuilder {
	return &TradeBuilder{trade: model.Trade{
		ID:           MakeID(),
		PortfolioID:  portfolioID,
		InstrumentID: instrumentID,
		Side:         model.SideBuy,
		Quantity:     decimal.NewFromInt(1),
		Price:        decimal.NewFromInt(100),
		Fees:         decimal.Zero,
		Currency:     "USD",
		ExecutedAt:   time.Now().UTC(),
	}}
}

// Buy sets the trade to a BUY of qty at price.
func (b *TradeBuilder) Buy(qty, price string) *TradeBuilder {
	b.trade.Side = model.SideBuy
	b.trade.Quantity = D(qty)
	b.trade.Price = D(price)
	return b
}

// Sell sets the trade to a SELL of qty at price.
func (b *TradeBuilder) Sell(qty, price string) *TradeBuilder {
	b.trade.Side = model.SideSell
	b.trade.Quantity = D(qty)
	b.trade.Price = D(price)
	return b
}

// WithFees sets the trade fees.
func (b *TradeBuilder) WithFees(fees string) *TradeBuilder {
	b.trade.Fees = D(fees)
	return b
}

// WithISIN sets the ISIN carried on the trade.
func (b *TradeBuilder) WithISIN(isin string) *TradeBuilder {
	b.trade.ISIN = isin
	return b
}

// ExecutedAt sets the execution time.
func (b *TradeBuilder) ExecutedAt(ts time.Time) *TradeBuilder {
	b.trade.ExecutedAt = ts
	return b
}

// Trade returns the trade without persisting it.
func (b *TradeBuilder) Trade() model.Trade {
	return b.trade
}

// Build inserts the trade into the ledger and returns it.
func (b *TradeBuilder) Build(t *testing.T, db *sql.DB) model.Trade {
	t.Helper()

	tr := b.trade
	_, err := db.Exec(`
		INSERT INTO trade (id, portfolio_id, instrument_id, side, quantity, price, fees, currency, executed_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tr.ID, tr.PortfolioID, tr.InstrumentID, string(tr.Side),
		tr.Quantity.String(), tr.Price.String(), tr.Fees.String(), tr.Currency,
		repository.FormatTime(tr.ExecutedAt), repository.FormatTime(time.Now()),
	)
	if err != nil {
		t.Fatalf("Failed to create test trade: %v", err)
	}
	return tr
}

// InsertSnapshot appends a price snapshot directly.
func InsertSnapshot(t *testing.T, db *sql.DB, instrumentID, price string, at time.Time) model.PriceSnapshot {
	t.Helper()

	s := model.PriceSnapshot{
		ID:           MakeID(),
		InstrumentID: instrumentID,
		Price:        D(price),
		Currency:     "USD",
		Source:       "test",
		SnapshotAt:   at.UTC(),
	}
	_, err := db.Exec(`
		INSERT INTO price_snapshot (id, instrument_id, price, currency, source, snapshot_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		s.ID, s.InstrumentID, s.Price.String(), s.Currency, s.Source, repository.FormatTime(s.SnapshotAt),
	)
	if err != nil {
		t.Fatalf("Failed to create test snapshot: %v", err)
	}
	return s
}
