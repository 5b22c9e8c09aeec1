package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/ndewijer/portfolio-valuation/internal/api/middleware"
)

func TestValidateUUIDParam(t *testing.T) {
	serve := func(params map[string]string) (*httptest.ResponseRecorder, bool) {
		handlerCalled := false
		next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			handlerCalled = true
			w.WriteHeader(http.StatusOK)
		})

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		rctx := chi.NewRouteContext()
		for k, v := range params {
			rctx.URLParams.Add(k, v)
		}
		req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

		w := httptest.NewRecorder()
		middleware.ValidateUUIDParam("portfolioId")(next).ServeHTTP(w, req)
		return w, handlerCalled
	}

	t.Run("passes through valid UUID", func(t *testing.T) {
		w, called := serve(map[string]string{"portfolioId": "550e8400-e29b-41d4-a716-446655440000"})
		if !called {
			t.Error("Expected next handler to be called")
		}
		if w.Code != http.StatusOK {
			t.Errorf("Expected 200, got %d", w.Code)
		}
	})

	t.Run("returns 400 for invalid UUID", func(t *testing.T) {
		w, called := serve(map[string]string{"portfolioId": "invalid-id"})
		if called {
			t.Error("Expected next handler NOT to be called")
		}
		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", w.Code)
		}
	})

	t.Run("returns 400 when the parameter is missing", func(t *testing.T) {
		w, called := serve(map[string]string{"instrumentId": "550e8400-e29b-41d4-a716-446655440000"})
		if called {
			t.Error("Expected next handler NOT to be called")
		}
		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", w.Code)
		}
	})
}
