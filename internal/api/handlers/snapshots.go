package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ndewijer/portfolio-valuation/internal/api/request"
	"github.com/ndewijer/portfolio-valuation/internal/api/response"
	"github.com/ndewijer/portfolio-valuation/internal/model"
	"github.com/ndewijer/portfolio-valuation/internal/service"
)

// SnapshotHandler serves stored price history.
type SnapshotHandler struct {
	history *service.HistoryService
}

// NewSnapshotHandler creates a new SnapshotHandler.
func NewSnapshotHandler(history *service.HistoryService) *SnapshotHandler {
	return &SnapshotHandler{history: history}
}

// Snapshots returns the price snapshots of one instrument, oldest first.
//
// Endpoint: GET /api/instruments/{instrumentId}/snapshots?from=YYYY-MM-DD&to=YYYY-MM-DD
// Response: 200 OK with array of model.PriceSnapshot
// Error: 400 Bad Request if the dates are malformed or from is after to
// Error: 404 Not Found if the instrument is unknown
func (h *SnapshotHandler) Snapshots(w http.ResponseWriter, r *http.Request) {
	instrumentID := chi.URLParam(r, "instrumentId")

	from, to, err := request.ParseDateRange(r.URL.Query().Get("from"), r.URL.Query().Get("to"))
	if err != nil {
		response.RespondError(w, http.StatusBadRequest, "invalid date range", err.Error())
		return
	}

	snaps, err := h.history.GetSnapshots(r.Context(), instrumentID, from, to)
	if err != nil {
		respondServiceError(w, "failed to retrieve snapshots", err)
		return
	}
	if snaps == nil {
		snaps = []model.PriceSnapshot{}
	}
	response.RespondJSON(w, http.StatusOK, snaps)
}
