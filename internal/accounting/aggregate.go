package accounting

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/ndewijer/portfolio-valuation/internal/model"
)

// PriceFunc returns the current price of an instrument and whether one is
// known.
type PriceFunc func(instrumentID string) (decimal.Decimal, bool)

// Replay rebuilds positions from a ledger without valuing them. Trades are
// grouped by Trade.GroupKey and applied in execution order; trades with the
// same timestamp keep their ledger order.
//
// Groups are replayed in key order, so the error returned for a ledger with
// several rejected trades is always the one in the lowest group key, e.g. a
// SELL beyond the open quantity.
func Replay(trades []model.Trade) (map[string]*Position, error) {
	groups := make(map[string][]model.Trade)
	for _, t := range trades {
		k := t.GroupKey()
		groups[k] = append(groups[k], t)
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	positions := make(map[string]*Position, len(groups))
	for _, key := range keys {
		group := groups[key]
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].ExecutedAt.Before(group[j].ExecutedAt)
		})

		pos := NewPosition(group[0])
		for _, t := range group {
			if err := pos.Apply(t); err != nil {
				return nil, fmt.Errorf("trade %s: %w", t.ID, err)
			}
		}
		positions[key] = pos
	}
	return positions, nil
}

// Aggregate replays the ledger and values every position with price.
// A nil price values everything at average cost.
func Aggregate(trades []model.Trade, price PriceFunc) (map[string]*Position, error) {
	positions, err := Replay(trades)
	if err != nil {
		return nil, err
	}
	for _, pos := range positions {
		var (
			p  decimal.Decimal
			ok bool
		)
		if price != nil && !pos.Closed {
			p, ok = price(pos.InstrumentID)
		}
		pos.Value(p, ok)
	}
	return positions, nil
}

// OpenPositions returns the positions with a non-zero open quantity, sorted
// by key.
func OpenPositions(positions map[string]*Position) []*Position {
	return filterSorted(positions, func(p *Position) bool { return !p.Closed })
}

// AllPositions returns every position, open and closed, sorted by key.
func AllPositions(positions map[string]*Position) []*Position {
	return filterSorted(positions, func(*Position) bool { return true })
}

func filterSorted(positions map[string]*Position, keep func(*Position) bool) []*Position {
	out := make([]*Position, 0, len(positions))
	for _, p := range positions {
		if keep(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
