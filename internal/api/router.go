// Package api exposes the recommendation engine and preference profiles
// over HTTP using the chi router.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cinemind/cinemind/internal/config"
)

// requestIDHeader carries a generated id through logs and responses.
const requestIDHeader = "X-Request-ID"

// NewRouter assembles the full route tree around a handler set.
func NewRouter(h *Handler, cfg *config.ServerConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(requestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Get("/api/v1/health", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(httprate.LimitByIP(cfg.RateLimit, time.Minute))

		r.Get("/movies/{movieID}/recommendations", h.Recommendations)
		r.Get("/model", h.ModelInfo)

		r.Route("/users/{userID}", func(r chi.Router) {
			r.Get("/profile", h.ProfileStats)
			r.Post("/ratings", h.SubmitRating)
			r.Post("/watchlist", h.WatchlistAdd)
			r.Delete("/watchlist/{movieID}", h.WatchlistRemove)
			r.Post("/views", h.RecordView)
			r.Post("/searches", h.RecordSearch)
			r.Post("/trailer-clicks", h.RecordTrailerClick)
			r.Post("/likes", h.MarkLiked)
			r.Post("/not-interested", h.MarkNotInterested)
		})
	})

	return r
}

// requestID attaches a UUID to every request and response. Upstream ids
// are not trusted; a fresh one is always generated.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}
