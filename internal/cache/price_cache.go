package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/ndewijer/portfolio-valuation/internal/apperrors"
	"github.com/ndewijer/portfolio-valuation/internal/model"
	"github.com/ndewijer/portfolio-valuation/internal/quote"
)

// DefaultTTL is the lifetime of a hot cache entry, sized for live dashboard polling.
const DefaultTTL = 60 * time.Second

const (
	keyPrefix         = "price:"
	asyncWriteTimeout = 2 * time.Second
)

// entry is the msgpack encoding of a CachedPrice. Decimals travel as strings.
type entry struct {
	InstrumentID  string    `msgpack:"id"`
	Symbol        string    `msgpack:"sym"`
	Price         string    `msgpack:"p"`
	Currency      string    `msgpack:"ccy"`
	AsOf          time.Time `msgpack:"asof"`
	Source        string    `msgpack:"src"`
	FetchedAt     time.Time `msgpack:"at"`
	Open          *string   `msgpack:"o,omitempty"`
	High          *string   `msgpack:"h,omitempty"`
	Low           *string   `msgpack:"l,omitempty"`
	PreviousClose *string   `msgpack:"pc,omitempty"`
	ChangePercent *string   `msgpack:"chg,omitempty"`
}

// PriceCache is the typed hot cache of instrument prices. All operations are
// best-effort: store failures are logged and reported to callers as misses.
type PriceCache struct {
	store Store
	ttl   time.Duration
	now   quote.Clock
	log   zerolog.Logger

	pending sync.WaitGroup
}

// NewPriceCache creates a cache over store. A ttl of zero uses DefaultTTL and
// a nil clock uses the wall clock.
func NewPriceCache(store Store, ttl time.Duration, now quote.Clock, log zerolog.Logger) *PriceCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if now == nil {
		now = quote.SystemClock
	}
	return &PriceCache{
		store: store,
		ttl:   ttl,
		now:   now,
		log:   log.With().Str("component", "price_cache").Logger(),
	}
}

// TTL returns the lifetime given to every written entry.
func (c *PriceCache) TTL() time.Duration {
	return c.ttl
}

// Get returns the cached price for an instrument if it was fetched no more
// than maxAge ago. An entry older than maxAge is a miss even if the store
// still holds it.
func (c *PriceCache) Get(ctx context.Context, instrumentID string, maxAge time.Duration) (model.CachedPrice, bool) {
	raw, err := c.store.Get(ctx, keyPrefix+instrumentID)
	if err != nil {
		if !errors.Is(err, apperrors.ErrCacheMiss) {
			c.log.Warn().Err(err).Str("instrument", instrumentID).Msg("Cache read failed, treating as miss")
		}
		return model.CachedPrice{}, false
	}

	var e entry
	if err := msgpack.Unmarshal(raw, &e); err != nil {
		c.log.Warn().Err(err).Str("instrument", instrumentID).Msg("Discarding undecodable cache entry")
		return model.CachedPrice{}, false
	}

	cp, err := e.toCachedPrice()
	if err != nil {
		c.log.Warn().Err(err).Str("instrument", instrumentID).Msg("Discarding malformed cache entry")
		return model.CachedPrice{}, false
	}

	if c.now().Sub(cp.FetchedAt) > maxAge {
		return model.CachedPrice{}, false
	}
	return cp, true
}

// Put writes a price synchronously. Failures are logged, never returned.
func (c *PriceCache) Put(ctx context.Context, cp model.CachedPrice) {
	if cp.FetchedAt.IsZero() {
		cp.FetchedAt = c.now()
	}
	raw, err := msgpack.Marshal(newEntry(cp))
	if err != nil {
		c.log.Warn().Err(err).Str("instrument", cp.InstrumentID).Msg("Failed to encode cache entry")
		return
	}
	if err := c.store.Set(ctx, keyPrefix+cp.InstrumentID, raw, c.ttl); err != nil {
		c.log.Warn().Err(err).Str("instrument", cp.InstrumentID).Msg("Cache write failed")
	}
}

// PutAsync writes a price on a detached goroutine with its own timeout. The
// caller never waits for or observes the outcome; failures are only logged.
func (c *PriceCache) PutAsync(cp model.CachedPrice) {
	if cp.FetchedAt.IsZero() {
		cp.FetchedAt = c.now()
	}
	c.pending.Add(1)
	go func() {
		defer c.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), asyncWriteTimeout)
		defer cancel()
		c.Put(ctx, cp)
	}()
}

// Invalidate removes an instrument's entry.
func (c *PriceCache) Invalidate(ctx context.Context, instrumentID string) {
	if err := c.store.Delete(ctx, keyPrefix+instrumentID); err != nil {
		c.log.Warn().Err(err).Str("instrument", instrumentID).Msg("Cache delete failed")
	}
}

// Flush blocks until every pending asynchronous write has finished.
// Used at shutdown and in tests.
func (c *PriceCache) Flush() {
	c.pending.Wait()
}

func newEntry(cp model.CachedPrice) entry {
	q := cp.Quote
	return entry{
		InstrumentID:  cp.InstrumentID,
		Symbol:        q.Symbol,
		Price:         q.Price.String(),
		Currency:      q.Currency,
		AsOf:          q.AsOf.UTC(),
		Source:        q.Source,
		FetchedAt:     cp.FetchedAt.UTC(),
		Open:          decimalString(q.Open),
		High:          decimalString(q.High),
		Low:           decimalString(q.Low),
		PreviousClose: decimalString(q.PreviousClose),
		ChangePercent: decimalString(q.ChangePercent),
	}
}

func (e entry) toCachedPrice() (model.CachedPrice, error) {
	price, err := decimal.NewFromString(e.Price)
	if err != nil {
		return model.CachedPrice{}, err
	}
	q := model.Quote{
		Symbol:   e.Symbol,
		Price:    price,
		Currency: e.Currency,
		AsOf:     e.AsOf.UTC(),
		Source:   e.Source,
	}
	for _, f := range []struct {
		src *string
		dst **decimal.Decimal
	}{
		{e.Open, &q.Open},
		{e.High, &q.High},
		{e.Low, &q.Low},
		{e.PreviousClose, &q.PreviousClose},
		{e.ChangePercent, &q.ChangePercent},
	} {
		if f.src == nil {
			continue
		}
		d, err := decimal.NewFromString(*f.src)
		if err != nil {
			return model.CachedPrice{}, err
		}
		*f.dst = &d
	}
	return model.CachedPrice{
		InstrumentID: e.InstrumentID,
		Quote:        q,
		FetchedAt:    e.FetchedAt.UTC(),
	}, nil
}

func decimalString(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}
