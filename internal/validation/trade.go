package validation

import (
	"strings"

	"github.com/ndewijer/portfolio-valuation/internal/apperrors"
	"github.com/ndewijer/portfolio-valuation/internal/model"
)

// ValidateTrade checks a trade before it is appended to the ledger.
//
// Required fields:
//   - portfolioId, instrumentId: valid UUIDs
//   - side: BUY or SELL
//   - quantity, price: strictly positive
//   - fees: zero or positive
//   - executedAt: set
//   - currency: three letters
//
// Returns a validation Error wrapping apperrors.ErrInvalidTrade.
func ValidateTrade(t model.Trade) error {
	errors := make(map[string]string)

	if err := ValidatePortfolioID(t.PortfolioID); err != nil {
		errors["portfolioId"] = err.Error()
	}
	if err := ValidateInstrumentID(t.InstrumentID); err != nil {
		errors["instrumentId"] = err.Error()
	}

	switch t.Side {
	case model.SideBuy, model.SideSell:
	case "":
		errors["side"] = "side is required"
	default:
		errors["side"] = "side must be BUY or SELL"
	}

	if !t.Quantity.IsPositive() {
		errors["quantity"] = "quantity must be positive"
	}
	if !t.Price.IsPositive() {
		errors["price"] = "price must be positive"
	}
	if t.Fees.IsNegative() {
		errors["fees"] = "fees cannot be negative"
	}
	if t.ExecutedAt.IsZero() {
		errors["executedAt"] = "executedAt is required"
	}
	if c := strings.TrimSpace(t.Currency); len(c) != 3 {
		errors["currency"] = "currency must be a three letter code"
	}

	if len(errors) > 0 {
		return &Error{Fields: errors, Err: apperrors.ErrInvalidTrade}
	}
	return nil
}
