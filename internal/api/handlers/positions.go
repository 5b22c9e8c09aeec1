package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ndewijer/portfolio-valuation/internal/accounting"
	"github.com/ndewijer/portfolio-valuation/internal/api/request"
	"github.com/ndewijer/portfolio-valuation/internal/api/response"
	"github.com/ndewijer/portfolio-valuation/internal/service"
)

// PositionHandler serves derived positions.
type PositionHandler struct {
	positions *service.PositionService
}

// NewPositionHandler creates a new PositionHandler.
func NewPositionHandler(positions *service.PositionService) *PositionHandler {
	return &PositionHandler{positions: positions}
}

// Positions returns the positions of a portfolio valued at current prices.
// view=open (default) lists open positions, view=all includes closed ones.
//
// Endpoint: GET /api/portfolios/{portfolioId}/positions?view=open|all&maxAge=<seconds>&fresh=<bool>
// Response: 200 OK with array of accounting.Position
// Error: 400 Bad Request if the portfolio ID or query is invalid
// Error: 404 Not Found if the portfolio has no trades
// Error: 500 Internal Server Error if the ledger cannot be replayed
func (h *PositionHandler) Positions(w http.ResponseWriter, r *http.Request) {
	portfolioID := chi.URLParam(r, "portfolioId")
	q := r.URL.Query()

	var opts service.PositionOptions
	switch q.Get("view") {
	case "", "open":
	case "all":
		opts.IncludeClosed = true
	default:
		response.RespondError(w, http.StatusBadRequest, "invalid view", "view must be open or all")
		return
	}

	maxAge, err := request.ParseMaxAge(q.Get("maxAge"))
	if err != nil {
		response.RespondError(w, http.StatusBadRequest, "invalid position query", err.Error())
		return
	}
	opts.MaxAge = maxAge
	opts.ForceFresh = q.Get("fresh") == "true"

	positions, err := h.positions.ComputePositions(r.Context(), portfolioID, opts)
	if err != nil {
		respondServiceError(w, "failed to compute positions", err)
		return
	}
	if positions == nil {
		positions = []*accounting.Position{}
	}
	response.RespondJSON(w, http.StatusOK, positions)
}
