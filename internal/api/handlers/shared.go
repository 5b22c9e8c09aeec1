package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/ndewijer/portfolio-valuation/internal/api/response"
	"github.com/ndewijer/portfolio-valuation/internal/apperrors"
	"github.com/ndewijer/portfolio-valuation/internal/service"
	"github.com/ndewijer/portfolio-valuation/internal/validation"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// parseJSON decodes the request body into T, rejecting unknown fields and
// trailing data.
func parseJSON[T any](r *http.Request) (T, error) {
	var v T
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		return v, fmt.Errorf("invalid request body: %w", err)
	}
	if dec.More() {
		return v, errors.New("invalid request body: unexpected trailing data")
	}
	return v, nil
}

// respondServiceError maps a service error onto an HTTP status.
//
// Mapping:
//   - validation failures and malformed identifiers: 400
//   - unknown instrument or portfolio: 404
//   - oversell or a job already running: 409
//   - anything else: 500
func respondServiceError(w http.ResponseWriter, message string, err error) {
	var verr *validation.Error
	switch {
	case errors.As(err, &verr),
		errors.Is(err, apperrors.ErrInvalidTrade),
		errors.Is(err, apperrors.ErrInvalidInstrumentID),
		errors.Is(err, apperrors.ErrInvalidPortfolioID),
		errors.Is(err, apperrors.ErrInvalidDateRange),
		errors.Is(err, apperrors.ErrInvalidUUID):
		response.RespondError(w, http.StatusBadRequest, message, err.Error())
	case errors.Is(err, apperrors.ErrInstrumentNotFound),
		errors.Is(err, apperrors.ErrPortfolioNotFound):
		response.RespondError(w, http.StatusNotFound, message, err.Error())
	case errors.Is(err, apperrors.ErrInsufficientQuantity),
		errors.Is(err, service.ErrSnapshotRunning):
		response.RespondError(w, http.StatusConflict, message, err.Error())
	default:
		response.RespondError(w, http.StatusInternalServerError, message, err.Error())
	}
}
