package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/ndewijer/portfolio-valuation/internal/accounting"
	"github.com/ndewijer/portfolio-valuation/internal/apperrors"
	"github.com/ndewijer/portfolio-valuation/internal/validation"
)

// PositionOptions controls ComputePositions.
type PositionOptions struct {
	// IncludeClosed also returns positions whose open quantity is zero, for
	// realized profit history.
	IncludeClosed bool
	MaxAge        time.Duration
	ForceFresh    bool
}

// PositionService values a portfolio from its trade ledger.
type PositionService struct {
	ledger TradeLedger
	quotes *QuoteService
	log    zerolog.Logger
}

// NewPositionService creates a new PositionService.
func NewPositionService(ledger TradeLedger, quotes *QuoteService, log zerolog.Logger) *PositionService {
	return &PositionService{
		ledger: ledger,
		quotes: quotes,
		log:    log.With().Str("component", "position_service").Logger(),
	}
}

// ComputePositions replays the portfolio's trades and values the open
// positions at current prices. Instruments whose price cannot be resolved
// are valued at average cost and flagged PriceAvailable=false.
//
// Parameters:
//   - ctx: request context
//   - portfolioID: UUID of the portfolio
//   - opts: closed-position inclusion and price freshness
//
// Returns:
//   - []*accounting.Position: sorted by position key
//   - error: ErrInvalidPortfolioID, ErrPortfolioNotFound when the portfolio
//     has no trades, or a ledger error
func (s *PositionService) ComputePositions(ctx context.Context, portfolioID string, opts PositionOptions) ([]*accounting.Position, error) {
	if err := validation.ValidatePortfolioID(portfolioID); err != nil {
		return nil, err
	}

	trades, err := s.ledger.GetTradesByPortfolio(ctx, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to load trades: %w", err)
	}
	if len(trades) == 0 {
		return nil, apperrors.ErrPortfolioNotFound
	}

	replayed, err := accounting.Replay(trades)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, pos := range accounting.OpenPositions(replayed) {
		ids = append(ids, pos.InstrumentID)
	}

	prices := map[string]decimal.Decimal{}
	if len(ids) > 0 {
		res, err := s.quotes.ResolvePrices(ctx, ids, ResolveOptions{MaxAge: opts.MaxAge, ForceFresh: opts.ForceFresh})
		if err != nil {
			s.log.Warn().Err(err).Str("portfolio", portfolioID).Msg("Price resolution failed, valuing at cost")
		}
		for id, p := range res.Prices {
			prices[id] = p.Quote.Price
		}
		for _, e := range res.Errors {
			s.log.Debug().Str("instrument", e.InstrumentID).Str("error", e.Error).Msg("No current price, valuing at cost")
		}
	}

	positions, err := accounting.Aggregate(trades, func(id string) (decimal.Decimal, bool) {
		p, ok := prices[id]
		return p, ok
	})
	if err != nil {
		return nil, err
	}

	if opts.IncludeClosed {
		return accounting.AllPositions(positions), nil
	}
	return accounting.OpenPositions(positions), nil
}
