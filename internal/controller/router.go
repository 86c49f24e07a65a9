package controller

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func (c *controller) GetMux() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(c.requestIDMw)
	r.Use(c.requestLoggingMw)
	r.Use(c.corsHandler())

	r.Get("/healthz", c.healthz)
	r.Get("/me", c.me)
	r.Get("/ws", c.serveWS)

	return r
}

func (c *controller) corsHandler() func(http.Handler) http.Handler {
	if c.clientOrigin == "" || c.clientOrigin == "*" {
		return cors.AllowAll().Handler
	}

	return cors.Handler(cors.Options{
		AllowedOrigins:   []string{c.clientOrigin},
		AllowedMethods:   []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})
}
