// Package quote defines the adapter contract every external price source
// implements. Classification and fallback logic only ever see these
// interfaces, never a provider's response shape.
package quote

import (
	"context"
	"time"

	"github.com/ndewijer/portfolio-valuation/internal/model"
)

// Provider fetches a single quote from one external source.
type Provider interface {
	Name() string
	GetQuote(ctx context.Context, inst model.Instrument) (model.Quote, error)
}

// BatchProvider is implemented by providers able to fetch several symbols
// in one request. The returned map is keyed by instrument ID; instruments the
// provider could not price are absent.
type BatchProvider interface {
	Provider
	GetQuotes(ctx context.Context, insts []model.Instrument) (map[string]model.Quote, error)
}

// Clock returns the current time. Providers and the cache take one so tests
// can control quote ages.
type Clock func() time.Time

// SystemClock is the wall clock in UTC.
func SystemClock() time.Time {
	return time.Now().UTC()
}
