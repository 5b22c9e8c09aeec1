package testutil

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ndewijer/portfolio-valuation/internal/apperrors"
	"github.com/ndewijer/portfolio-valuation/internal/model"
)

// MockProvider is a configurable quote.Provider for tests. By default it
// quotes every instrument at 100 USD as of the clock's current time.
type MockProvider struct {
	name  string
	clock func() time.Time

	mu       sync.Mutex
	prices   map[string]decimal.Decimal
	errs     map[string]error
	err      error
	delay    time.Duration
	asOf     time.Time
	calls    map[string]int
	total    atomic.Int64
	inFlight atomic.Int64
	peak     atomic.Int64
}

// NewMockProvider creates a provider named name using the wall clock.
func NewMockProvider(name string) *MockProvider {
	return &MockProvider{
		name:   name,
		clock:  func() time.Time { return time.Now().UTC() },
		prices: map[string]decimal.Decimal{},
		errs:   map[string]error{},
		calls:  map[string]int{},
	}
}

// WithClock sets the clock used to stamp quotes.
func (m *MockProvider) WithClock(clock func() time.Time) *MockProvider {
	m.clock = clock
	return m
}

// WithPrice sets the price quoted for an instrument ID.
func (m *MockProvider) WithPrice(instrumentID, price string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices[instrumentID] = D(price)
	return m
}

// WithInstrumentError makes the provider fail for one instrument.
func (m *MockProvider) WithInstrumentError(instrumentID string, err error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[instrumentID] = err
	return m
}

// WithError makes every call fail with err.
func (m *MockProvider) WithError(err error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithDelay makes every call wait d, or until the context is done.
func (m *MockProvider) WithDelay(d time.Duration) *MockProvider {
	m.delay = d
	return m
}

// WithAsOf stamps every quote with a fixed time instead of the clock.
func (m *MockProvider) WithAsOf(ts time.Time) *MockProvider {
	m.asOf = ts
	return m
}

// Name implements quote.Provider.
func (m *MockProvider) Name() string { return m.name }

// GetQuote implements quote.Provider.
func (m *MockProvider) GetQuote(ctx context.Context, inst model.Instrument) (model.Quote, error) {
	m.total.Add(1)
	n := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		peak := m.peak.Load()
		if n <= peak || m.peak.CompareAndSwap(peak, n) {
			break
		}
	}

	m.mu.Lock()
	m.calls[inst.ID]++
	err := m.err
	if e, ok := m.errs[inst.ID]; ok {
		err = e
	}
	price, ok := m.prices[inst.ID]
	m.mu.Unlock()

	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return model.Quote{}, apperrors.ErrProviderUnavailable
		}
	}

	if err != nil {
		return model.Quote{}, err
	}
	if !ok {
		price = decimal.NewFromInt(100)
	}

	asOf := m.asOf
	if asOf.IsZero() {
		asOf = m.clock()
	}
	return model.Quote{
		Symbol:   inst.Ticker,
		Price:    price,
		Currency: inst.Currency,
		AsOf:     asOf,
		Source:   m.name,
	}, nil
}

// Calls returns how many times GetQuote was called for an instrument.
func (m *MockProvider) Calls(instrumentID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[instrumentID]
}

// TotalCalls returns the number of GetQuote calls across all instruments.
func (m *MockProvider) TotalCalls() int {
	return int(m.total.Load())
}

// PeakInFlight returns the highest number of concurrent GetQuote calls observed.
func (m *MockProvider) PeakInFlight() int {
	return int(m.peak.Load())
}

// FakeClock is a manually advanced clock.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeClock creates a clock frozen at start.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start.UTC()}
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
