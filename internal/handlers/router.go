package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	appMiddleware "github.com/matrimony/backend/internal/middleware"
	"github.com/matrimony/backend/internal/models"
)

type RouterConfig struct {
	JWTSecret      string
	AllowedOrigins []string
	// Ping reports store health for /health. Nil means always healthy.
	Ping func(ctx context.Context) error
}

func NewRouter(h *MatchingHandler, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if cfg.Ping != nil {
			if err := cfg.Ping(r.Context()); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, models.NewErrorResponse("Store unavailable"))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(appMiddleware.JWTAuth(cfg.JWTSecret))

		r.Route("/matching", func(r chi.Router) {
			r.Post("/priority", h.RequestPriority)
			r.Get("/requests/{requestId}", h.GetRequest)
			r.Post("/requests/{requestId}/cancel", h.CancelRequest)
		})

		r.Get("/matches", h.ListMatches)
		r.Post("/matches/{matchId}/respond", h.RespondToMatch)

		r.Route("/admin", func(r chi.Router) {
			r.With(appMiddleware.RequireRole(models.RoleAdmin)).Post("/matching/nightly", h.RunNightly)

			r.Group(func(r chi.Router) {
				r.Use(appMiddleware.RequireRole(models.RoleAdmin, models.RoleMatchmaker))
				r.Post("/matching/vip/{userId}", h.RunVIP)
				r.Post("/matches/{matchId}/introduce", h.IntroduceMatch)
			})
		})
	})

	return r
}
