package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceSnapshot is a durable, append-only price record written by the
// snapshot job and read for historical charts.
type PriceSnapshot struct {
	ID           string          `json:"id"`
	InstrumentID string          `json:"instrumentId"`
	Price        decimal.Decimal `json:"price"`
	Currency     string          `json:"currency"`
	Source       string          `json:"source"`
	SnapshotAt   time.Time       `json:"snapshotAt"`
	RunID        string          `json:"runId,omitempty"`
}
