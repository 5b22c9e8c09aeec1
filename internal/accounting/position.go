// Package accounting derives positions and profit and loss from the trade
// ledger using the average-cost method.
//
// Positions are never stored. They are rebuilt by replaying trades in
// execution order, so the same ledger and price map always produce the same
// result.
package accounting

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ndewijer/portfolio-valuation/internal/apperrors"
	"github.com/ndewijer/portfolio-valuation/internal/model"
)

// quantityPlaces is the precision at which an open quantity counts as zero.
const quantityPlaces = 8

// Lot is the quantity acquired by one BUY. Lots are consumed first in,
// first out when selling, purely to record which purchase a sale drew on;
// cost basis stays the position's average cost.
type Lot struct {
	TradeID    string          `json:"tradeId"`
	AcquiredAt time.Time       `json:"acquiredAt"`
	Quantity   decimal.Decimal `json:"quantity"`
	Remaining  decimal.Decimal `json:"remaining"`
	Price      decimal.Decimal `json:"price"`
	Fees       decimal.Decimal `json:"fees"`
	Sales      []PartialSale   `json:"sales,omitempty"`
}

// PartialSale is the part of a SELL drawn from a single lot.
type PartialSale struct {
	TradeID     string          `json:"tradeId"`
	LotTradeID  string          `json:"lotTradeId"`
	SoldAt      time.Time       `json:"soldAt"`
	Quantity    decimal.Decimal `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	Proceeds    decimal.Decimal `json:"proceeds"`
	Fees        decimal.Decimal `json:"fees"`
	RealizedPnL decimal.Decimal `json:"realizedPnl"`
}

// Position is the derived state of one instrument within one portfolio.
type Position struct {
	Key          string `json:"key"`
	InstrumentID string `json:"instrumentId"`
	ISIN         string `json:"isin,omitempty"`
	Ticker       string `json:"ticker,omitempty"`
	Currency     string `json:"currency"`

	OpenQuantity    decimal.Decimal `json:"openQuantity"`
	AverageCost     decimal.Decimal `json:"averageCost"`
	InvestedCapital decimal.Decimal `json:"investedCapital"`
	RealizedPnL     decimal.Decimal `json:"realizedPnl"`

	CurrentPrice      decimal.Decimal `json:"currentPrice"`
	PriceAvailable    bool            `json:"priceAvailable"`
	MarketValue       decimal.Decimal `json:"marketValue"`
	UnrealizedPnL     decimal.Decimal `json:"unrealizedPnl"`
	TotalPnL          decimal.Decimal `json:"totalPnl"`
	UnrealizedPercent decimal.Decimal `json:"unrealizedPercent"`
	TotalPercent      decimal.Decimal `json:"totalPercent"`

	Lots         []*Lot        `json:"lots,omitempty"`
	PartialSales []PartialSale `json:"partialSales,omitempty"`
	OpenTrades   []model.Trade `json:"openTrades,omitempty"`
	ClosedTrades []model.Trade `json:"closedTrades,omitempty"`

	FirstTradeAt time.Time `json:"firstTradeAt"`
	LastTradeAt  time.Time `json:"lastTradeAt"`
	Closed       bool      `json:"closed"`
}

// NewPosition creates an empty position for the group of t.
func NewPosition(t model.Trade) *Position {
	return &Position{
		Key:          t.GroupKey(),
		InstrumentID: t.InstrumentID,
		ISIN:         t.ISIN,
		Ticker:       t.Ticker,
		Currency:     t.Currency,
	}
}

// Apply folds one trade into the position. A SELL larger than the open
// quantity returns *apperrors.InsufficientQuantityError and leaves the
// position unchanged. A trade with a non-positive quantity or price, or
// negative fees, is rejected with an error wrapping apperrors.ErrInvalidTrade.
func (p *Position) Apply(t model.Trade) error {
	if err := checkTrade(t); err != nil {
		return err
	}

	switch t.Side {
	case model.SideBuy:
		p.buy(t)
	case model.SideSell:
		if err := CheckSell(p, t.Quantity); err != nil {
			return err
		}
		p.sell(t)
	default:
		return apperrors.ErrInvalidTrade
	}

	if p.FirstTradeAt.IsZero() {
		p.FirstTradeAt = t.ExecutedAt
	}
	p.LastTradeAt = t.ExecutedAt
	return nil
}

func checkTrade(t model.Trade) error {
	switch {
	case !t.Quantity.IsPositive():
		return fmt.Errorf("%w: quantity %s must be positive", apperrors.ErrInvalidTrade, t.Quantity)
	case !t.Price.IsPositive():
		return fmt.Errorf("%w: price %s must be positive", apperrors.ErrInvalidTrade, t.Price)
	case t.Fees.IsNegative():
		return fmt.Errorf("%w: fees %s must not be negative", apperrors.ErrInvalidTrade, t.Fees)
	}
	return nil
}

func (p *Position) buy(t model.Trade) {
	if p.Closed {
		p.Closed = false
	}
	cost := t.Price.Mul(t.Quantity).Add(t.Fees)
	newQty := p.OpenQuantity.Add(t.Quantity)

	p.AverageCost = p.AverageCost.Mul(p.OpenQuantity).Add(cost).Div(newQty)
	p.OpenQuantity = newQty
	p.InvestedCapital = p.InvestedCapital.Add(cost)
	p.OpenTrades = append(p.OpenTrades, t)
	p.Lots = append(p.Lots, &Lot{
		TradeID:    t.ID,
		AcquiredAt: t.ExecutedAt,
		Quantity:   t.Quantity,
		Remaining:  t.Quantity,
		Price:      t.Price,
		Fees:       t.Fees,
	})
}

func (p *Position) sell(t model.Trade) {
	basis := p.AverageCost.Mul(t.Quantity)
	if t.Quantity.Equal(p.OpenQuantity) {
		// Closing sale: use the exact remaining basis instead of the
		// rounded average.
		basis = p.InvestedCapital
	}
	realized := t.Price.Mul(t.Quantity).Sub(basis).Sub(t.Fees)
	p.RealizedPnL = p.RealizedPnL.Add(realized)
	p.OpenQuantity = p.OpenQuantity.Sub(t.Quantity)
	p.InvestedCapital = p.InvestedCapital.Sub(basis)
	p.OpenTrades = append(p.OpenTrades, t)
	p.consumeLots(t, realized)

	if p.OpenQuantity.Round(quantityPlaces).IsZero() {
		p.close()
	}
}

// consumeLots draws the sold quantity from open lots oldest first. The fee
// share and realized amount of the final slice absorb rounding so the slices
// sum to the trade's totals.
func (p *Position) consumeLots(t model.Trade, realized decimal.Decimal) {
	left := t.Quantity
	feesLeft := t.Fees
	realizedLeft := realized

	for _, lot := range p.Lots {
		if !left.IsPositive() {
			break
		}
		if !lot.Remaining.IsPositive() {
			continue
		}

		qty := decimal.Min(lot.Remaining, left)
		left = left.Sub(qty)

		fees, pnl := feesLeft, realizedLeft
		if left.IsPositive() {
			fees = t.Fees.Mul(qty).Div(t.Quantity)
			pnl = t.Price.Sub(p.AverageCost).Mul(qty).Sub(fees)
		}
		feesLeft = feesLeft.Sub(fees)
		realizedLeft = realizedLeft.Sub(pnl)

		sale := PartialSale{
			TradeID:     t.ID,
			LotTradeID:  lot.TradeID,
			SoldAt:      t.ExecutedAt,
			Quantity:    qty,
			Price:       t.Price,
			Proceeds:    t.Price.Mul(qty),
			Fees:        fees,
			RealizedPnL: pnl,
		}
		lot.Remaining = lot.Remaining.Sub(qty)
		lot.Sales = append(lot.Sales, sale)
		p.PartialSales = append(p.PartialSales, sale)
	}
}

// close ends the current holding cycle. The next BUY starts from a zero
// average cost.
func (p *Position) close() {
	p.OpenQuantity = decimal.Zero
	p.AverageCost = decimal.Zero
	p.InvestedCapital = decimal.Zero
	p.ClosedTrades = append(p.ClosedTrades, p.OpenTrades...)
	p.OpenTrades = nil
	p.Lots = nil
	p.Closed = true
}

// CheckSell reports whether qty can be sold from p. p may be nil when the
// portfolio holds nothing of the instrument.
func CheckSell(p *Position, qty decimal.Decimal) error {
	open := decimal.Zero
	id := ""
	if p != nil {
		open = p.OpenQuantity
		id = p.InstrumentID
	}
	if qty.GreaterThan(open) {
		return &apperrors.InsufficientQuantityError{InstrumentID: id, Requested: qty, Open: open}
	}
	return nil
}

// Value sets the market fields of the position. Without a price the average
// cost stands in, so unrealized profit is zero rather than the whole
// aggregation failing.
func (p *Position) Value(price decimal.Decimal, ok bool) {
	if !ok || !price.IsPositive() {
		price = p.AverageCost
		ok = false
	}
	p.CurrentPrice = price
	p.PriceAvailable = ok
	p.MarketValue = price.Mul(p.OpenQuantity)
	p.UnrealizedPnL = price.Sub(p.AverageCost).Mul(p.OpenQuantity)
	p.TotalPnL = p.RealizedPnL.Add(p.UnrealizedPnL)
	p.UnrealizedPercent = percentOf(p.UnrealizedPnL, p.InvestedCapital)
	p.TotalPercent = percentOf(p.TotalPnL, p.InvestedCapital)
}

func percentOf(amount, base decimal.Decimal) decimal.Decimal {
	if base.IsZero() {
		return decimal.Zero
	}
	return amount.Div(base).Mul(decimal.NewFromInt(100)).Round(4)
}
