package handlers

import (
	"net/http"

	"github.com/ndewijer/portfolio-valuation/internal/api/response"
	"github.com/ndewijer/portfolio-valuation/internal/service"
)

// BenchmarkHandler serves the named market indices.
type BenchmarkHandler struct {
	benchmarks *service.BenchmarkService
}

// NewBenchmarkHandler creates a new BenchmarkHandler.
func NewBenchmarkHandler(benchmarks *service.BenchmarkService) *BenchmarkHandler {
	return &BenchmarkHandler{benchmarks: benchmarks}
}

// Benchmarks returns every configured index. Indices no provider could
// price are listed with available=false.
//
// Endpoint: GET /api/benchmarks
// Response: 200 OK with array of model.Benchmark
func (h *BenchmarkHandler) Benchmarks(w http.ResponseWriter, r *http.Request) {
	response.RespondJSON(w, http.StatusOK, h.benchmarks.Benchmarks(r.Context()))
}
