package admin

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

// NewRouter builds the chi router for the admin API
func NewRouter(handlers *AdminHandlers) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(AuthMiddleware)

	r.Get("/status", handlers.handleStatus)
	r.Get("/events", handlers.handleEvents)

	r.Route("/files", func(r chi.Router) {
		r.Get("/", handlers.handleListFiles)
		r.Put("/", handlers.handlePutFile)
		r.Delete("/", handlers.handleDeleteFile)
		r.Get("/count", handlers.handleCountFiles)
		r.Get("/entry", handlers.handleGetFile)
	})

	r.Route("/scan", func(r chi.Router) {
		r.Post("/begin", handlers.handleBeginScan)
		r.Post("/end", handlers.handleEndScan)
	})

	r.Post("/integrity", handlers.handleIntegrity)

	return r
}

// RegisterRoutes mounts the admin API under /admin on mux
func RegisterRoutes(mux *http.ServeMux, handlers *AdminHandlers) {
	mux.Handle("/admin", http.RedirectHandler("/admin/", http.StatusMovedPermanently))
	mux.Handle("/admin/", http.StripPrefix("/admin", NewRouter(handlers)))

	log.Info().Msg("Admin endpoints enabled at /admin/*")
}
