package api

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/cinemind/cinemind/internal/logging"
	"github.com/cinemind/cinemind/internal/metrics"
	"github.com/cinemind/cinemind/internal/movie"
	"github.com/cinemind/cinemind/internal/personalize"
	"github.com/cinemind/cinemind/internal/recommend"
	"github.com/cinemind/cinemind/internal/recommend/cf"
)

// Recommender runs the scoring pipeline.
type Recommender interface {
	Recommend(ctx context.Context, req recommend.Request) (*recommend.Response, error)
}

// ProfileStore reads and mutates user preference profiles.
type ProfileStore interface {
	Get(userID string) (*personalize.Profile, error)
	Update(userID string, fn func(*personalize.Profile) error) (*personalize.Profile, error)
}

// Handler holds the API's collaborators.
type Handler struct {
	engine   Recommender
	profiles ProfileStore
	provider movie.MetadataProvider
	cfSource *cf.Source
	validate *validator.Validate
	logger   zerolog.Logger
}

// NewHandler wires the handler set.
func NewHandler(engine Recommender, profiles ProfileStore, provider movie.MetadataProvider, cfSource *cf.Source) *Handler {
	return &Handler{
		engine:   engine,
		profiles: profiles,
		provider: provider,
		cfSource: cfSource,
		validate: validator.New(),
		logger:   logging.Component("api"),
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) respond(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error().Err(err).Msg("encoding response")
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, msg string) {
	h.respond(w, status, errorResponse{Error: msg})
}

// decode parses and validates a JSON request body.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func pathInt(r *http.Request, name string) (int, bool) {
	v, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Recommendations serves GET /api/v1/movies/{movieID}/recommendations.
// Optional query parameters: user_id for personalization, k for the
// result cap.
func (h *Handler) Recommendations(w http.ResponseWriter, r *http.Request) {
	movieID, ok := pathInt(r, "movieID")
	if !ok {
		h.respondError(w, http.StatusBadRequest, "invalid movie id")
		return
	}

	req := recommend.Request{
		MovieID: movieID,
		UserID:  r.URL.Query().Get("user_id"),
	}
	if raw := r.URL.Query().Get("k"); raw != "" {
		k, err := strconv.Atoi(raw)
		if err != nil || k <= 0 {
			h.respondError(w, http.StatusBadRequest, "invalid k")
			return
		}
		req.K = k
	}

	resp, err := h.engine.Recommend(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, movie.ErrNotFound):
			h.respondError(w, http.StatusNotFound, "movie not found")
		case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
			h.respondError(w, http.StatusGatewayTimeout, "request timed out")
		default:
			h.logger.Error().Err(err).Int("movie_id", movieID).Msg("recommendation failed")
			h.respondError(w, http.StatusBadGateway, "recommendation unavailable")
		}
		return
	}
	h.respond(w, http.StatusOK, resp)
}

// ModelInfo serves GET /api/v1/model: the active CF model's build
// metadata.
func (h *Handler) ModelInfo(w http.ResponseWriter, r *http.Request) {
	model, err := h.cfSource.Model(r.Context())
	if err != nil {
		if errors.Is(err, cf.ErrModelNotFound) {
			h.respondError(w, http.StatusNotFound, "no CF model built yet")
			return
		}
		h.logger.Error().Err(err).Msg("model info failed")
		h.respondError(w, http.StatusInternalServerError, "model unavailable")
		return
	}
	h.respond(w, http.StatusOK, map[string]any{
		"items": len(model.Items),
		"meta":  model.Meta,
	})
}

type ratingRequest struct {
	MovieID int     `json:"movie_id" validate:"required,gt=0"`
	Rating  float64 `json:"rating" validate:"required,gte=1,lte=5"`
}

// SubmitRating serves POST /api/v1/users/{userID}/ratings. The rated
// movie's metadata reinforces the profile, so the movie must resolve.
func (h *Handler) SubmitRating(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	var req ratingRequest
	if !h.decode(w, r, &req) {
		return
	}

	rec, err := h.provider.GetMovie(r.Context(), req.MovieID)
	if err != nil {
		if errors.Is(err, movie.ErrNotFound) {
			h.respondError(w, http.StatusNotFound, "movie not found")
			return
		}
		h.logger.Error().Err(err).Int("movie_id", req.MovieID).Msg("rating movie fetch failed")
		h.respondError(w, http.StatusBadGateway, "metadata unavailable")
		return
	}

	profile, err := h.profiles.Update(userID, func(p *personalize.Profile) error {
		p.ApplyRating(rec, req.Rating, time.Now().UTC())
		return nil
	})
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("rating update failed")
		h.respondError(w, http.StatusInternalServerError, "profile update failed")
		return
	}

	metrics.ProfileUpdates.WithLabelValues("rating").Inc()
	h.respond(w, http.StatusOK, map[string]any{
		"movie_id": req.MovieID,
		"rating":   req.Rating,
		"ratings":  len(profile.Ratings),
	})
}

type watchlistRequest struct {
	MovieID int `json:"movie_id" validate:"required,gt=0"`
}

// WatchlistAdd serves POST /api/v1/users/{userID}/watchlist.
func (h *Handler) WatchlistAdd(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	var req watchlistRequest
	if !h.decode(w, r, &req) {
		return
	}

	if _, err := h.profiles.Update(userID, func(p *personalize.Profile) error {
		p.AddToWatchlist(req.MovieID, time.Now().UTC())
		return nil
	}); err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("watchlist add failed")
		h.respondError(w, http.StatusInternalServerError, "profile update failed")
		return
	}
	metrics.ProfileUpdates.WithLabelValues("watchlist_add").Inc()
	h.respond(w, http.StatusOK, map[string]int{"movie_id": req.MovieID})
}

// WatchlistRemove serves DELETE /api/v1/users/{userID}/watchlist/{movieID}.
func (h *Handler) WatchlistRemove(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	movieID, ok := pathInt(r, "movieID")
	if !ok {
		h.respondError(w, http.StatusBadRequest, "invalid movie id")
		return
	}

	if _, err := h.profiles.Update(userID, func(p *personalize.Profile) error {
		p.RemoveFromWatchlist(movieID, time.Now().UTC())
		return nil
	}); err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("watchlist remove failed")
		h.respondError(w, http.StatusInternalServerError, "profile update failed")
		return
	}
	metrics.ProfileUpdates.WithLabelValues("watchlist_remove").Inc()
	w.WriteHeader(http.StatusNoContent)
}

// RecordView serves POST /api/v1/users/{userID}/views.
func (h *Handler) RecordView(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	var req watchlistRequest
	if !h.decode(w, r, &req) {
		return
	}

	if _, err := h.profiles.Update(userID, func(p *personalize.Profile) error {
		p.RecordView(req.MovieID, time.Now().UTC())
		return nil
	}); err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("view record failed")
		h.respondError(w, http.StatusInternalServerError, "profile update failed")
		return
	}
	metrics.ProfileUpdates.WithLabelValues("view").Inc()
	w.WriteHeader(http.StatusNoContent)
}

type searchRequest struct {
	Query string `json:"query" validate:"required,min=1,max=256"`
}

// RecordSearch serves POST /api/v1/users/{userID}/searches.
func (h *Handler) RecordSearch(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	var req searchRequest
	if !h.decode(w, r, &req) {
		return
	}

	if _, err := h.profiles.Update(userID, func(p *personalize.Profile) error {
		p.RecordSearch(req.Query, time.Now().UTC())
		return nil
	}); err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("search record failed")
		h.respondError(w, http.StatusInternalServerError, "profile update failed")
		return
	}
	metrics.ProfileUpdates.WithLabelValues("search").Inc()
	w.WriteHeader(http.StatusNoContent)
}

// RecordTrailerClick serves POST /api/v1/users/{userID}/trailer-clicks.
func (h *Handler) RecordTrailerClick(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	var req watchlistRequest
	if !h.decode(w, r, &req) {
		return
	}

	if _, err := h.profiles.Update(userID, func(p *personalize.Profile) error {
		p.RecordTrailerClick(req.MovieID, time.Now().UTC())
		return nil
	}); err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("trailer click record failed")
		h.respondError(w, http.StatusInternalServerError, "profile update failed")
		return
	}
	metrics.ProfileUpdates.WithLabelValues("trailer_click").Inc()
	w.WriteHeader(http.StatusNoContent)
}

// MarkLiked serves POST /api/v1/users/{userID}/likes: an explicit "more
// like this" signal. Reinforcement needs the movie's metadata, so the
// movie must resolve.
func (h *Handler) MarkLiked(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	var req watchlistRequest
	if !h.decode(w, r, &req) {
		return
	}

	rec, err := h.provider.GetMovie(r.Context(), req.MovieID)
	if err != nil {
		if errors.Is(err, movie.ErrNotFound) {
			h.respondError(w, http.StatusNotFound, "movie not found")
			return
		}
		h.logger.Error().Err(err).Int("movie_id", req.MovieID).Msg("like movie fetch failed")
		h.respondError(w, http.StatusBadGateway, "metadata unavailable")
		return
	}

	if _, err := h.profiles.Update(userID, func(p *personalize.Profile) error {
		p.MarkLiked(rec, time.Now().UTC())
		return nil
	}); err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("like update failed")
		h.respondError(w, http.StatusInternalServerError, "profile update failed")
		return
	}
	metrics.ProfileUpdates.WithLabelValues("like").Inc()
	h.respond(w, http.StatusOK, map[string]int{"movie_id": req.MovieID})
}

// MarkNotInterested serves POST /api/v1/users/{userID}/not-interested.
// Disliked movies are excluded from this user's results from then on.
func (h *Handler) MarkNotInterested(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	var req watchlistRequest
	if !h.decode(w, r, &req) {
		return
	}

	if _, err := h.profiles.Update(userID, func(p *personalize.Profile) error {
		p.MarkNotInterested(req.MovieID, time.Now().UTC())
		return nil
	}); err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("not-interested update failed")
		h.respondError(w, http.StatusInternalServerError, "profile update failed")
		return
	}
	metrics.ProfileUpdates.WithLabelValues("not_interested").Inc()
	w.WriteHeader(http.StatusNoContent)
}

// ProfileStats serves GET /api/v1/users/{userID}/profile: a summary of
// the learned profile, not the raw unbounded score maps.
func (h *Handler) ProfileStats(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	profile, err := h.profiles.Get(userID)
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("profile load failed")
		h.respondError(w, http.StatusInternalServerError, "profile unavailable")
		return
	}

	h.respond(w, http.StatusOK, map[string]any{
		"user_id":        profile.UserID,
		"ratings":        len(profile.Ratings),
		"watchlist":      len(profile.Watchlist),
		"liked":          len(profile.Liked),
		"disliked":       len(profile.Disliked),
		"views":          len(profile.Views),
		"searches":       len(profile.Searches),
		"top_genres":     topScores(profile.Genres, 5),
		"top_directors":  topScores(profile.Directors, 3),
		"top_actors":     topScores(profile.Actors, 5),
		"updated_at":     profile.UpdatedAt,
		"personalized":   len(profile.Genres) > 0 || len(profile.Directors) > 0,
	})
}

type scoreEntry struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

func topScores(m map[string]float64, n int) []scoreEntry {
	entries := make([]scoreEntry, 0, len(m))
	for name, score := range m {
		entries = append(entries, scoreEntry{Name: name, Score: score})
	}
	// Score descending, name ascending for stable output.
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].Name < entries[j].Name
	})
	if len(entries) > n {
		entries = entries[:n]
	}
	return entries
}
