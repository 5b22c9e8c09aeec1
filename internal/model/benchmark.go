package model

import "github.com/shopspring/decimal"

// BenchmarkIndex is an entry of the fixed named-index list.
type BenchmarkIndex struct {
	Name   string
	Symbol string
	Region string
}

// Benchmark is the merged quote for one named index.
type Benchmark struct {
	Name          string           `json:"name"`
	Symbol        string           `json:"symbol"`
	Region        string           `json:"region"`
	Available     bool             `json:"available"`
	Price         decimal.Decimal  `json:"price"`
	Currency      string           `json:"currency,omitempty"`
	ChangePercent *decimal.Decimal `json:"changePercent,omitempty"`
	Source        string           `json:"source,omitempty"`
}
