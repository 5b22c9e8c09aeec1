package model

import "time"

// InstrumentKind describes what sort of security an instrument is.
type InstrumentKind string

const (
	KindEquity InstrumentKind = "equity"
	KindETF    InstrumentKind = "etf"
	KindFund   InstrumentKind = "fund"
	KindCrypto InstrumentKind = "crypto"
	KindIndex  InstrumentKind = "index"
)

// Instrument is an entry of the instrument directory. It maps the internal
// identifier to the display identifiers the quote providers understand.
type Instrument struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	ISIN      string         `json:"isin,omitempty"`
	Ticker    string         `json:"ticker,omitempty"`
	Currency  string         `json:"currency"`
	Kind      InstrumentKind `json:"kind"`
	Exchange  string         `json:"exchange,omitempty"`
	CreatedAt time.Time      `json:"createdAt,omitempty"`
}

// Key returns the stable identifier used to group trades and cache prices:
// the ISIN when known, otherwise the instrument ID.
func (i Instrument) Key() string {
	if i.ISIN != "" {
		return i.ISIN
	}
	return i.ID
}
