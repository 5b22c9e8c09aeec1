// Package middleware provides HTTP middleware for request validation and processing.
package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ndewijer/portfolio-valuation/internal/api/response"
	"github.com/ndewijer/portfolio-valuation/internal/validation"
)

// ValidateUUIDParam returns a middleware that checks the named URL parameter
// is present and is a valid UUID. Returns 400 Bad Request otherwise.
//
// Example usage in router:
//
//	r.Route("/portfolios/{portfolioId}", func(r chi.Router) {
//	    r.Use(middleware.ValidateUUIDParam("portfolioId"))
//	    r.Get("/positions", handler.Positions)
//	})
func ValidateUUIDParam(name string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := chi.URLParam(r, name)

			if id == "" {
				response.RespondError(w, http.StatusBadRequest, "valid "+name+" is required", "")
				return
			}

			if err := validation.ValidateUUID(id); err != nil {
				response.RespondError(w, http.StatusBadRequest, "invalid "+name+" format", err.Error())
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
