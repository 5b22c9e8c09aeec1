package apperrors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Domain entity errors represent missing entities in the system.
var (
	// ErrInstrumentNotFound indicates that an instrument with the given ID is not in the directory.
	ErrInstrumentNotFound = errors.New("instrument not found")

	// ErrPortfolioNotFound indicates that no trades exist for the given portfolio.
	ErrPortfolioNotFound = errors.New("portfolio not found")

	// ErrSnapshotNotFound indicates that no price snapshot exists for an instrument.
	ErrSnapshotNotFound = errors.New("price snapshot not found")
)

// Validation errors are rejected locally and never silently corrected.
var (
	// ErrInsufficientQuantity indicates that a sell exceeds the open quantity of a position.
	ErrInsufficientQuantity = errors.New("insufficient open quantity for sale")

	// ErrInvalidTrade indicates a malformed trade (non-positive quantity or price, negative fees, unknown side).
	ErrInvalidTrade = errors.New("invalid trade")

	// ErrInvalidInstrumentID indicates a malformed or empty instrument identifier.
	ErrInvalidInstrumentID = errors.New("invalid instrument identifier")

	// ErrInvalidPortfolioID indicates a malformed or empty portfolio identifier.
	ErrInvalidPortfolioID = errors.New("invalid portfolio identifier")

	// ErrInvalidDateRange indicates that the provided date range is invalid
	// (e.g., start date is after end date).
	ErrInvalidDateRange = errors.New("invalid date range")

	ErrInvalidUUID = errors.New("invalid UUID format")
	ErrEmptyID     = errors.New("ID cannot be empty")
)

// Provider errors are recovered by falling through the waterfall and only
// surface per instrument once every provider in the chain has failed.
var (
	// ErrProviderUnavailable indicates a network failure, timeout or non-2xx response.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrInvalidQuote indicates a zero, negative or unparsable price.
	ErrInvalidQuote = errors.New("invalid quote")

	// ErrStaleQuote indicates a quote whose timestamp is too old or too far in the future.
	ErrStaleQuote = errors.New("stale quote")

	// ErrRateLimited indicates that the provider refused the request because of its quota.
	ErrRateLimited = errors.New("provider rate limited")

	// ErrUnsupportedInstrument indicates that a provider cannot serve the instrument at all.
	ErrUnsupportedInstrument = errors.New("instrument not supported by provider")

	// ErrAllProvidersFailed indicates that every provider in the chain failed.
	ErrAllProvidersFailed = errors.New("all providers failed")
)

// Job and cache errors.
var (
	// ErrDeadlineExceeded marks work that was skipped because the job deadline passed.
	ErrDeadlineExceeded = errors.New("job deadline exceeded")

	// ErrCacheMiss indicates that a key is absent or expired in the hot cache.
	ErrCacheMiss = errors.New("cache miss")
)

// InsufficientQuantityError carries the details of a rejected sell.
type InsufficientQuantityError struct {
	InstrumentID string
	Requested    decimal.Decimal
	Open         decimal.Decimal
}

func (e *InsufficientQuantityError) Error() string {
	return fmt.Sprintf("cannot sell %s of %s: only %s open", e.Requested.String(), e.InstrumentID, e.Open.String())
}

func (e *InsufficientQuantityError) Unwrap() error {
	return ErrInsufficientQuantity
}

// ProviderError records a single failed provider attempt.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// ResolveError is returned when no provider produced an acceptable quote.
// Attempts lists every provider tried, in order.
type ResolveError struct {
	InstrumentID string
	Attempts     []*ProviderError
}

func (e *ResolveError) Error() string {
	parts := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		parts[i] = a.Error()
	}
	return fmt.Sprintf("no price for %s: %s", e.InstrumentID, strings.Join(parts, "; "))
}

// Unwrap exposes ErrAllProvidersFailed together with each attempt's error.
func (e *ResolveError) Unwrap() []error {
	errs := make([]error, 0, len(e.Attempts)+1)
	errs = append(errs, ErrAllProvidersFailed)
	for _, a := range e.Attempts {
		errs = append(errs, a)
	}
	return errs
}
