package handlers

import (
	"net/http"

	"github.com/ndewijer/portfolio-valuation/internal/api/request"
	"github.com/ndewijer/portfolio-valuation/internal/api/response"
	"github.com/ndewijer/portfolio-valuation/internal/model"
	"github.com/ndewijer/portfolio-valuation/internal/service"
)

// PriceHandler serves current prices.
type PriceHandler struct {
	quotes *service.QuoteService
}

// NewPriceHandler creates a new PriceHandler.
func NewPriceHandler(quotes *service.QuoteService) *PriceHandler {
	return &PriceHandler{quotes: quotes}
}

// PricesResponse is the body of GET /api/prices.
type PricesResponse struct {
	Prices  map[string]model.PriceResult `json:"prices"`
	Errors  []model.InstrumentError      `json:"errors"`
	Metrics model.BatchMetrics           `json:"metrics"`
}

// Prices resolves the current price of each requested instrument.
// Instruments that could not be priced are listed in errors; the request as
// a whole still succeeds.
//
// Endpoint: GET /api/prices?ids=<id,id,...>&maxAge=<seconds>&fresh=<bool>
// Response: 200 OK with PricesResponse
// Error: 400 Bad Request if the query is malformed
func (h *PriceHandler) Prices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	pq, err := request.ParsePriceQuery(q.Get("ids"), q.Get("maxAge"), q.Get("fresh"))
	if err != nil {
		response.RespondError(w, http.StatusBadRequest, "invalid price query", err.Error())
		return
	}

	res, err := h.quotes.ResolvePrices(r.Context(), pq.IDs, service.ResolveOptions{
		MaxAge:     pq.MaxAge,
		ForceFresh: pq.ForceFresh,
	})
	if err != nil {
		respondServiceError(w, "failed to resolve prices", err)
		return
	}

	errs := res.Errors
	if errs == nil {
		errs = []model.InstrumentError{}
	}
	response.RespondJSON(w, http.StatusOK, PricesResponse{
		Prices:  res.Prices,
		Errors:  errs,
		Metrics: res.Metrics,
	})
}
