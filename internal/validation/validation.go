package validation

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/ndewijer/portfolio-valuation/internal/apperrors"
)

// Common validation errors
var (
	ErrInvalidUUID = apperrors.ErrInvalidUUID
	ErrEmptySlice  = fmt.Errorf("slice cannot be empty")
)

// ValidateUUID checks if a string is a valid UUID
func ValidateUUID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidUUID, id)
	}
	return nil
}

// ValidateUUIDs validates a slice of UUIDs
func ValidateUUIDs(ids []string) error {
	if len(ids) == 0 {
		return ErrEmptySlice
	}
	for _, id := range ids {
		if err := ValidateUUID(id); err != nil {
			return err
		}
	}
	return nil
}

// ValidateInstrumentID checks that an instrument identifier is a UUID.
// The returned error wraps apperrors.ErrInvalidInstrumentID.
func ValidateInstrumentID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: %w", apperrors.ErrInvalidInstrumentID, apperrors.ErrEmptyID)
	}
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: %q", apperrors.ErrInvalidInstrumentID, id)
	}
	return nil
}

// ValidatePortfolioID checks that a portfolio identifier is a UUID.
func ValidatePortfolioID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: %w", apperrors.ErrInvalidPortfolioID, apperrors.ErrEmptyID)
	}
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: %q", apperrors.ErrInvalidPortfolioID, id)
	}
	return nil
}
