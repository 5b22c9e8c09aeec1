package pricing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ndewijer/portfolio-valuation/internal/apperrors"
	"github.com/ndewijer/portfolio-valuation/internal/model"
	"github.com/ndewijer/portfolio-valuation/internal/quote"
)

// Defaults for Options fields left at zero.
const (
	DefaultProviderTimeout = 5 * time.Second
	DefaultMaxQuoteAge     = 96 * time.Hour
	DefaultMaxClockSkew    = 5 * time.Minute
)

// Chains maps each class to its providers in priority order.
type Chains map[Class][]quote.Provider

// Options tunes the resolver.
type Options struct {
	// Timeout bounds each provider call.
	Timeout time.Duration
	// MaxQuoteAge rejects quotes whose market timestamp is older than this.
	// It is generous by default so end-of-day sources survive weekends.
	MaxQuoteAge time.Duration
	// MaxClockSkew rejects quotes stamped further than this in the future.
	MaxClockSkew time.Duration
	Now          quote.Clock
}

// Resolver walks the provider chain of an instrument's class strictly in
// order and returns the first acceptable quote.
type Resolver struct {
	classifier *Classifier
	chains     Chains
	opts       Options
	log        zerolog.Logger
}

// NewResolver creates a resolver.
func NewResolver(classifier *Classifier, chains Chains, opts Options, log zerolog.Logger) *Resolver {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultProviderTimeout
	}
	if opts.MaxQuoteAge <= 0 {
		opts.MaxQuoteAge = DefaultMaxQuoteAge
	}
	if opts.MaxClockSkew <= 0 {
		opts.MaxClockSkew = DefaultMaxClockSkew
	}
	if opts.Now == nil {
		opts.Now = quote.SystemClock
	}
	return &Resolver{
		classifier: classifier,
		chains:     chains,
		opts:       opts,
		log:        log.With().Str("component", "resolver").Logger(),
	}
}

// Classify exposes the classification used to pick a chain.
func (r *Resolver) Classify(inst model.Instrument) Class {
	return r.classifier.Classify(inst)
}

// Chain returns the providers tried for an instrument, in order.
func (r *Resolver) Chain(inst model.Instrument) []quote.Provider {
	return r.chains[r.Classify(inst)]
}

// Resolve returns the first quote with a strictly positive price and an
// acceptable timestamp. Provider errors, timeouts and invalid quotes fall
// through to the next provider.
//
// Returns:
//   - model.Quote: the accepted quote, Source naming the provider
//   - error: *apperrors.ResolveError listing every attempt when all fail
func (r *Resolver) Resolve(ctx context.Context, inst model.Instrument) (model.Quote, error) {
	class := r.Classify(inst)
	chain := r.chains[class]
	rerr := &apperrors.ResolveError{InstrumentID: inst.ID}

	if len(chain) == 0 {
		rerr.Attempts = append(rerr.Attempts, &apperrors.ProviderError{
			Provider: "none",
			Err:      fmt.Errorf("%w: no providers for class %s", apperrors.ErrUnsupportedInstrument, class),
		})
		return model.Quote{}, rerr
	}

	for _, p := range chain {
		if err := ctx.Err(); err != nil {
			rerr.Attempts = append(rerr.Attempts, &apperrors.ProviderError{Provider: p.Name(), Err: err})
			break
		}

		q, err := r.attempt(ctx, p, inst)
		if err == nil {
			return q, nil
		}

		r.log.Debug().
			Err(err).
			Str("instrument", inst.ID).
			Str("class", string(class)).
			Str("provider", p.Name()).
			Msg("Provider failed, falling through")
		rerr.Attempts = append(rerr.Attempts, &apperrors.ProviderError{Provider: p.Name(), Err: err})
	}

	return model.Quote{}, rerr
}

func (r *Resolver) attempt(ctx context.Context, p quote.Provider, inst model.Instrument) (q model.Quote, err error) {
	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: provider panic: %v", apperrors.ErrProviderUnavailable, rec)
		}
	}()

	q, err = p.GetQuote(ctx, inst)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return model.Quote{}, fmt.Errorf("%w: timed out after %s", apperrors.ErrProviderUnavailable, r.opts.Timeout)
		}
		return model.Quote{}, err
	}
	if q.Source == "" {
		q.Source = p.Name()
	}
	if q.Currency == "" {
		q.Currency = inst.Currency
	}
	if err := r.Accept(q); err != nil {
		return model.Quote{}, err
	}
	return q, nil
}

// Accept checks that a quote has a strictly positive price and a timestamp
// that is neither missing, too far in the future nor older than MaxQuoteAge.
func (r *Resolver) Accept(q model.Quote) error {
	if !q.Price.IsPositive() {
		return fmt.Errorf("%w: price %s", apperrors.ErrInvalidQuote, q.Price.String())
	}
	if q.AsOf.IsZero() {
		return fmt.Errorf("%w: missing timestamp", apperrors.ErrStaleQuote)
	}
	now := r.opts.Now()
	if q.AsOf.After(now.Add(r.opts.MaxClockSkew)) {
		return fmt.Errorf("%w: timestamp %s is in the future", apperrors.ErrStaleQuote, q.AsOf.Format(time.RFC3339))
	}
	if now.Sub(q.AsOf) > r.opts.MaxQuoteAge {
		return fmt.Errorf("%w: timestamp %s older than %s", apperrors.ErrStaleQuote, q.AsOf.Format(time.RFC3339), r.opts.MaxQuoteAge)
	}
	return nil
}
