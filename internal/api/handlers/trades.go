package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ndewijer/portfolio-valuation/internal/api/request"
	"github.com/ndewijer/portfolio-valuation/internal/api/response"
	"github.com/ndewijer/portfolio-valuation/internal/service"
)

// TradeHandler records ledger entries.
type TradeHandler struct {
	trades *service.TradeService
}

// NewTradeHandler creates a new TradeHandler.
func NewTradeHandler(trades *service.TradeService) *TradeHandler {
	return &TradeHandler{trades: trades}
}

// CreateTrade appends a trade to the portfolio ledger.
//
// Endpoint: POST /api/portfolios/{portfolioId}/trades
// Request Body: request.CreateTradeRequest
// Response: 201 Created with model.Trade
// Error: 400 Bad Request if the body or a field is invalid
// Error: 404 Not Found if the instrument is unknown
// Error: 409 Conflict if a sell exceeds the open quantity
func (h *TradeHandler) CreateTrade(w http.ResponseWriter, r *http.Request) {
	portfolioID := chi.URLParam(r, "portfolioId")

	req, err := parseJSON[request.CreateTradeRequest](r)
	if err != nil {
		response.RespondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	t, err := req.ToTrade(portfolioID)
	if err != nil {
		response.RespondError(w, http.StatusBadRequest, "invalid trade", err.Error())
		return
	}

	recorded, err := h.trades.RecordTrade(r.Context(), t)
	if err != nil {
		respondServiceError(w, "failed to record trade", err)
		return
	}
	response.RespondJSON(w, http.StatusCreated, recorded)
}
