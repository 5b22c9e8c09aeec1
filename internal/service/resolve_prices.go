package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ndewijer/portfolio-valuation/internal/apperrors"
	"github.com/ndewijer/portfolio-valuation/internal/model"
	"github.com/ndewijer/portfolio-valuation/internal/validation"
)

// ResolveOptions controls ResolvePrices.
type ResolveOptions struct {
	MaxAge     time.Duration
	ForceFresh bool
}

// QuoteService answers "what is the price of these instruments now". It
// performs no durable writes.
type QuoteService struct {
	directory     InstrumentDirectory
	fetcher       *BatchFetcher
	maxConcurrent int
}

// NewQuoteService creates a new QuoteService.
func NewQuoteService(directory InstrumentDirectory, fetcher *BatchFetcher, maxConcurrent int) *QuoteService {
	return &QuoteService{
		directory:     directory,
		fetcher:       fetcher,
		maxConcurrent: maxConcurrent,
	}
}

// ResolvePrices looks up every ID in the instrument directory and fetches the
// known ones as one batch. Malformed or unknown IDs become per-instrument
// errors; duplicates are resolved once.
//
// Returns an error only when the directory itself cannot be read.
func (s *QuoteService) ResolvePrices(ctx context.Context, ids []string, opts ResolveOptions) (BatchResult, error) {
	var (
		invalid []model.InstrumentError
		valid   []string
		seen    = make(map[string]bool, len(ids))
	)
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if err := validation.ValidateInstrumentID(id); err != nil {
			invalid = append(invalid, model.InstrumentError{InstrumentID: id, Error: err.Error()})
			continue
		}
		valid = append(valid, id)
	}

	var known map[string]model.Instrument
	if len(valid) > 0 {
		var err error
		known, err = s.directory.GetInstruments(ctx, valid)
		if err != nil {
			return BatchResult{}, fmt.Errorf("failed to load instruments: %w", err)
		}
	}

	insts := make([]model.Instrument, 0, len(valid))
	for _, id := range valid {
		inst, ok := known[id]
		if !ok {
			invalid = append(invalid, model.InstrumentError{InstrumentID: id, Error: apperrors.ErrInstrumentNotFound.Error()})
			continue
		}
		insts = append(insts, inst)
	}

	result := s.fetcher.FetchBatch(ctx, insts, BatchOptions{
		MaxConcurrent: s.maxConcurrent,
		MaxAge:        opts.MaxAge,
		ForceFresh:    opts.ForceFresh,
	})

	if len(invalid) > 0 {
		result.Errors = append(result.Errors, invalid...)
		sort.Slice(result.Errors, func(i, j int) bool {
			return result.Errors[i].InstrumentID < result.Errors[j].InstrumentID
		})
		result.Metrics.Total += len(invalid)
		result.Metrics.Failed += len(invalid)
	}
	return result, nil
}
