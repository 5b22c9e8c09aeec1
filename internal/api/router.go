package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/ndewijer/portfolio-valuation/internal/api/handlers"
	custommiddleware "github.com/ndewijer/portfolio-valuation/internal/api/middleware"
	"github.com/ndewijer/portfolio-valuation/internal/config"
	"github.com/ndewijer/portfolio-valuation/internal/service"
)

// Services groups what the HTTP layer delegates to.
type Services struct {
	System     *service.SystemService
	Quotes     *service.QuoteService
	Positions  *service.PositionService
	Trades     *service.TradeService
	History    *service.HistoryService
	Benchmarks *service.BenchmarkService
	Snapshot   handlers.SnapshotRunner
}

// NewRouter creates and configures the HTTP router
func NewRouter(svc Services, cfg *config.Config, log zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(custommiddleware.Logger(log))
	r.Use(middleware.Recoverer)

	// CORS middleware
	corsMiddleware := custommiddleware.NewCORS(cfg.CORS.AllowedOrigins)
	r.Use(corsMiddleware.Handler)

	r.Route("/api", func(r chi.Router) {
		r.Route("/system", func(r chi.Router) {
			systemHandler := handlers.NewSystemHandler(svc.System)
			r.Get("/health", systemHandler.Health)
			r.Get("/version", systemHandler.Version)
		})

		r.Get("/prices", handlers.NewPriceHandler(svc.Quotes).Prices)
		r.Get("/benchmarks", handlers.NewBenchmarkHandler(svc.Benchmarks).Benchmarks)

		r.Route("/portfolios/{portfolioId}", func(r chi.Router) {
			r.Use(custommiddleware.ValidateUUIDParam("portfolioId"))
			r.Get("/positions", handlers.NewPositionHandler(svc.Positions).Positions)
			r.Post("/trades", handlers.NewTradeHandler(svc.Trades).CreateTrade)
		})

		r.Route("/instruments/{instrumentId}", func(r chi.Router) {
			r.Use(custommiddleware.ValidateUUIDParam("instrumentId"))
			r.Get("/snapshots", handlers.NewSnapshotHandler(svc.History).Snapshots)
		})

		r.Post("/jobs/snapshot", handlers.NewJobHandler(svc.Snapshot).RunSnapshot)
	})

	return r
}
