package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ndewijer/portfolio-valuation/internal/accounting"
	"github.com/ndewijer/portfolio-valuation/internal/model"
	"github.com/ndewijer/portfolio-valuation/internal/repository"
	"github.com/ndewijer/portfolio-valuation/internal/validation"
)

// TradeService appends trades to the ledger. It is the only write the
// accounting side performs.
type TradeService struct {
	db        *sql.DB
	tradeRepo *repository.TradeRepository
	directory InstrumentDirectory
	log       zerolog.Logger
}

// NewTradeService creates a new TradeService with the provided repository dependencies.
func NewTradeService(db *sql.DB, tradeRepo *repository.TradeRepository, directory InstrumentDirectory, log zerolog.Logger) *TradeService {
	return &TradeService{
		db:        db,
		tradeRepo: tradeRepo,
		directory: directory,
		log:       log.With().Str("component", "trade_service").Logger(),
	}
}

// RecordTrade validates a trade and appends it to the ledger.
//
// The portfolio's ledger is replayed with the new trade inside the same
// transaction, so a SELL beyond the open quantity at its execution time is
// rejected, including back-dated sells that would break a later one.
//
// Returns:
//   - model.Trade: the stored trade with ID and CreatedAt set
//   - error: a validation error wrapping ErrInvalidTrade,
//     ErrInstrumentNotFound, *apperrors.InsufficientQuantityError, or a
//     database error
func (s *TradeService) RecordTrade(ctx context.Context, t model.Trade) (model.Trade, error) {
	t.Currency = strings.ToUpper(strings.TrimSpace(t.Currency))
	if err := validation.ValidateTrade(t); err != nil {
		return model.Trade{}, err
	}

	inst, err := s.directory.GetInstrument(ctx, t.InstrumentID)
	if err != nil {
		return model.Trade{}, err
	}
	t.ISIN = inst.ISIN
	t.Ticker = inst.Ticker
	t.ExecutedAt = t.ExecutedAt.UTC()
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	t.CreatedAt = time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Trade{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	repo := s.tradeRepo.WithTx(tx)
	existing, err := repo.GetTradesByPortfolio(ctx, t.PortfolioID)
	if err != nil {
		return model.Trade{}, err
	}
	if _, err := accounting.Replay(append(existing, t)); err != nil {
		return model.Trade{}, err
	}

	if err := repo.InsertTrade(ctx, t); err != nil {
		return model.Trade{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.Trade{}, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.log.Info().
		Str("trade", t.ID).
		Str("portfolio", t.PortfolioID).
		Str("instrument", t.InstrumentID).
		Str("side", string(t.Side)).
		Str("quantity", t.Quantity.String()).
		Msg("Trade recorded")
	return t, nil
}
