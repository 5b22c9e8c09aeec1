package service

import (
	"context"
	"time"

	"github.com/ndewijer/portfolio-valuation/internal/apperrors"
	"github.com/ndewijer/portfolio-valuation/internal/model"
	"github.com/ndewijer/portfolio-valuation/internal/validation"
)

// HistoryService reads the durable price history written by the snapshot job.
type HistoryService struct {
	directory InstrumentDirectory
	snapshots SnapshotStore
}

// NewHistoryService creates a new HistoryService.
func NewHistoryService(directory InstrumentDirectory, snapshots SnapshotStore) *HistoryService {
	return &HistoryService{
		directory: directory,
		snapshots: snapshots,
	}
}

// GetSnapshots returns an instrument's snapshots within [from, to], oldest
// first. Either bound may be zero to leave the range open on that side.
//
// Returns ErrInvalidInstrumentID, ErrInvalidDateRange when from is after to,
// or ErrInstrumentNotFound.
func (s *HistoryService) GetSnapshots(ctx context.Context, instrumentID string, from, to time.Time) ([]model.PriceSnapshot, error) {
	if err := validation.ValidateInstrumentID(instrumentID); err != nil {
		return nil, err
	}
	if !from.IsZero() && !to.IsZero() && from.After(to) {
		return nil, apperrors.ErrInvalidDateRange
	}
	if _, err := s.directory.GetInstrument(ctx, instrumentID); err != nil {
		return nil, err
	}
	return s.snapshots.GetSnapshots(ctx, instrumentID, from, to)
}
