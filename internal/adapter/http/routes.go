package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Strob0t/collectibles/internal/middleware"
)

// MountRoutes registers the health check, the WebSocket endpoint and the
// catalog API. Mutating routes go through limiter when it is non-nil.
func MountRoutes(r chi.Router, h *Handlers, limiter *middleware.RateLimiter, wsPath string, ws http.HandlerFunc) {
	r.Get("/health", h.Health)
	r.Get(wsPath, ws)

	// The bundled price-updates client filters here.
	r.Get("/filter", h.FilterItems)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"1.0.0"}`))
		})

		r.Get("/items", h.ListItems)
		r.Get("/items/filter", h.FilterItems)
		r.Get("/items/{id}", h.GetItem)
		r.Options("/items/{id}", h.ItemExists)

		r.Group(func(r chi.Router) {
			if limiter != nil {
				r.Use(limiter.Handler)
			}
			r.Post("/items", h.CreateItem)
			r.Put("/items/{id}", h.UpdateItem)
			r.Delete("/items/{id}", h.DeleteItem)
		})
	})
}
