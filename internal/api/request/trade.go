package request

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ndewijer/portfolio-valuation/internal/model"
)

// CreateTradeRequest is the body of POST /api/portfolios/{portfolioId}/trades.
// Amounts are decimal strings (numbers are accepted too).
type CreateTradeRequest struct {
	InstrumentID string           `json:"instrumentId"`
	Side         string           `json:"side"`
	Quantity     decimal.Decimal  `json:"quantity"`
	Price        decimal.Decimal  `json:"price"`
	Fees         *decimal.Decimal `json:"fees,omitempty"`
	Currency     string           `json:"currency"`
	ExecutedAt   string           `json:"executedAt"`
}

// ToTrade converts the request into a ledger trade for portfolioID.
// Field-level validation is left to the trade service.
func (r CreateTradeRequest) ToTrade(portfolioID string) (model.Trade, error) {
	executedAt, err := parseTime(strings.TrimSpace(r.ExecutedAt))
	if err != nil {
		return model.Trade{}, fmt.Errorf("invalid executedAt: %w", err)
	}
	fees := decimal.Zero
	if r.Fees != nil {
		fees = *r.Fees
	}
	return model.Trade{
		PortfolioID:  portfolioID,
		InstrumentID: strings.TrimSpace(r.InstrumentID),
		Side:         model.TradeSide(strings.ToUpper(strings.TrimSpace(r.Side))),
		Quantity:     r.Quantity,
		Price:        r.Price,
		Fees:         fees,
		Currency:     r.Currency,
		ExecutedAt:   executedAt,
	}, nil
}
