package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ndewijer/portfolio-valuation/internal/model"
)

// TradeRepository provides data access methods for the trade table, the
// append-only ledger the accounting engine replays.
type TradeRepository struct {
	db *sql.DB
	tx *sql.Tx
}

// NewTradeRepository creates a new TradeRepository with the provided database connection.
func NewTradeRepository(db *sql.DB) *TradeRepository {
	return &TradeRepository{db: db}
}

// WithTx returns a copy of the repository that runs every statement inside tx.
func (r *TradeRepository) WithTx(tx *sql.Tx) *TradeRepository {
	return &TradeRepository{
		db: r.db,
		tx: tx,
	}
}

func (r *TradeRepository) getQuerier() querier {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

const tradeSelect = `
		SELECT t.id, t.portfolio_id, t.instrument_id, COALESCE(i.isin, ''), COALESCE(i.ticker, ''),
			t.side, t.quantity, t.price, t.fees, t.currency, t.executed_at, t.created_at
		FROM trade t
		JOIN instrument i ON i.id = t.instrument_id
`

// tradeOrder sorts by execution time, then insertion order for identical timestamps.
const tradeOrder = ` ORDER BY t.executed_at ASC, t.rowid ASC`

// GetTradesByPortfolio retrieves every trade of a portfolio ordered by execution time.
//
// Parameters:
//   - ctx: request context
//   - portfolioID: the owning portfolio
//
// Returns an empty slice if the portfolio has no trades.
func (r *TradeRepository) GetTradesByPortfolio(ctx context.Context, portfolioID string) ([]model.Trade, error) {
	return r.queryTrades(ctx, tradeSelect+` WHERE t.portfolio_id = ?`+tradeOrder, portfolioID)
}

// GetAllTrades retrieves the complete ledger across all portfolios.
// The snapshot job replays it to find instruments with open positions.
func (r *TradeRepository) GetAllTrades(ctx context.Context) ([]model.Trade, error) {
	return r.queryTrades(ctx, tradeSelect+tradeOrder)
}

// GetInstrumentsTradedSince returns the distinct instrument IDs with at least
// one trade executed at or after since, most recently traded first.
func (r *TradeRepository) GetInstrumentsTradedSince(ctx context.Context, since time.Time) ([]string, error) {
	rows, err := r.getQuerier().QueryContext(ctx, `
		SELECT instrument_id, MAX(executed_at) AS last_trade
		FROM trade
		WHERE executed_at >= ?
		GROUP BY instrument_id
		ORDER BY last_trade DESC, instrument_id ASC
	`, FormatTime(since))
	if err != nil {
		return nil, fmt.Errorf("failed to query trade table: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id, last string
		if err := rows.Scan(&id, &last); err != nil {
			return nil, fmt.Errorf("failed to scan trade table results: %w", err)
		}
		ids = append(ids, id)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trade table: %w", err)
	}
	return ids, nil
}

// InsertTrade appends a trade to the ledger. Trades are never updated.
func (r *TradeRepository) InsertTrade(ctx context.Context, t model.Trade) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = timeNow()
	}
	_, err := r.getQuerier().ExecContext(ctx, `
		INSERT INTO trade (id, portfolio_id, instrument_id, side, quantity, price, fees, currency, executed_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID,
		t.PortfolioID,
		t.InstrumentID,
		string(t.Side),
		t.Quantity.String(),
		t.Price.String(),
		t.Fees.String(),
		t.Currency,
		FormatTime(t.ExecutedAt),
		FormatTime(t.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert trade: %w", err)
	}
	return nil
}

func (r *TradeRepository) queryTrades(ctx context.Context, query string, args ...any) ([]model.Trade, error) {
	rows, err := r.getQuerier().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trade table: %w", err)
	}
	defer rows.Close()

	trades := []model.Trade{}
	for rows.Next() {
		var t model.Trade
		var side, executedAt, createdAt string

		err := rows.Scan(
			&t.ID,
			&t.PortfolioID,
			&t.InstrumentID,
			&t.ISIN,
			&t.Ticker,
			&side,
			&t.Quantity,
			&t.Price,
			&t.Fees,
			&t.Currency,
			&executedAt,
			&createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade table results: %w", err)
		}
		t.Side = model.TradeSide(side)

		t.ExecutedAt, err = ParseTime(executedAt)
		if err != nil {
			return nil, err
		}
		t.CreatedAt, err = ParseTime(createdAt)
		if err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trade table: %w", err)
	}
	return trades, nil
}
