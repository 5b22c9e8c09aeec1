package pricing

import "github.com/ndewijer/portfolio-valuation/internal/model"

// DefaultBenchmarks is the fixed list of named indices reported by the
// benchmark endpoint. It decides both membership and output order.
var DefaultBenchmarks = []model.BenchmarkIndex{
	{Name: "S&P 500", Symbol: "^GSPC", Region: "US"},
	{Name: "NASDAQ Composite", Symbol: "^IXIC", Region: "US"},
	{Name: "Dow Jones", Symbol: "^DJI", Region: "US"},
	{Name: "Euro Stoxx 50", Symbol: "^STOXX50E", Region: "EU"},
	{Name: "DAX", Symbol: "^GDAXI", Region: "DE"},
	{Name: "FTSE 100", Symbol: "^FTSE", Region: "GB"},
	{Name: "Nikkei 225", Symbol: "^N225", Region: "JP"},
	{Name: "FTSE MIB", Symbol: "FTSEMIB.MI", Region: "IT"},
}

// MergeBenchmarks merges index quotes over DefaultBenchmarks.
func MergeBenchmarks(primary, secondary map[string]model.Quote) []model.Benchmark {
	return MergeIndices(DefaultBenchmarks, primary, secondary)
}

// MergeIndices combines index quotes from two providers, both keyed by
// index symbol. For every index in the list the primary quote wins when its
// price is positive, then the secondary's; otherwise the index is reported
// unavailable. Quotes for symbols outside the list are ignored.
func MergeIndices(indices []model.BenchmarkIndex, primary, secondary map[string]model.Quote) []model.Benchmark {
	out := make([]model.Benchmark, 0, len(indices))
	for _, idx := range indices {
		b := model.Benchmark{Name: idx.Name, Symbol: idx.Symbol, Region: idx.Region}
		q, ok := pick(idx.Symbol, primary, secondary)
		if ok {
			b.Available = true
			b.Price = q.Price
			b.Currency = q.Currency
			b.ChangePercent = q.ChangePercent
			b.Source = q.Source
		}
		out = append(out, b)
	}
	return out
}

func pick(symbol string, sources ...map[string]model.Quote) (model.Quote, bool) {
	for _, src := range sources {
		if q, ok := src[symbol]; ok && q.Price.IsPositive() {
			return q, true
		}
	}
	return model.Quote{}, false
}
