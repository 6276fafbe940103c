package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Handler interface {
	RegisterRoutes(router chi.Router)
}

// NewRouter assembles the API router with request tracing middleware and
// a liveness endpoint. Handlers register their own route groups.
func NewRouter(handlers ...Handler) chi.Router {
	router := chi.NewRouter()

	router.Use(middleware.Recoverer)
	router.Use(RequestID)
	router.Use(RequestLogger)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	router.Route("/api/v1", func(api chi.Router) {
		for _, h := range handlers {
			h.RegisterRoutes(api)
		}
	})

	return router
}
