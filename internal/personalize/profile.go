// Package personalize maintains per-user preference profiles and applies
// a bounded re-ranking boost derived from them.
//
// Profiles accumulate "liked" signal only: ratings of 4 and above
// reinforce the movie's genres, director, cast and keywords; lower
// ratings are recorded in the history but never shape preferences.
// Stored scores grow without bound; only the applied boost is capped.
package personalize

import (
	"slices"
	"time"

	"github.com/cinemind/cinemind/internal/movie"
)

// Bounded activity log sizes.
const (
	maxViewLog    = 100
	maxSearchLog  = 50
	maxTrailerLog = 50
)

// likedBase is the reinforcement applied by an explicit "more like
// this"; half the weakest rating reinforcement.
const likedBase = 0.5

// Boost application caps. Product constants: stored preference scores
// are unbounded, the applied boost never is.
const (
	genreFactor  = 0.03
	genreCap     = 0.15
	directorRate = 0.05
	directorCap  = 0.10
	actorFactor  = 0.01
	actorCap     = 0.05
	totalCap     = 0.30
)

// RatingEvent is one entry of a user's rating history.
type RatingEvent struct {
	Rating  float64   `json:"rating"`
	RatedAt time.Time `json:"rated_at"`
}

// ViewEvent records a movie detail view.
type ViewEvent struct {
	MovieID  int       `json:"movie_id"`
	ViewedAt time.Time `json:"viewed_at"`
}

// SearchEvent records a search query.
type SearchEvent struct {
	Query      string    `json:"query"`
	SearchedAt time.Time `json:"searched_at"`
}

// Profile is one user's learned taste. Mutated only by explicit rating,
// watchlist, view and search events.
type Profile struct {
	UserID string `json:"user_id"`

	Genres    map[string]float64 `json:"genres"`
	Directors map[string]float64 `json:"directors"`
	Actors    map[string]float64 `json:"actors"`
	Keywords  map[string]float64 `json:"keywords"`

	Ratings   map[int]RatingEvent `json:"ratings"`
	Watchlist map[int]time.Time   `json:"watchlist"`

	// Liked holds explicit "more like this" movie ids; Disliked holds
	// "not interested" ids, which are excluded from results entirely.
	Liked    []int `json:"liked"`
	Disliked []int `json:"disliked"`

	Views    []ViewEvent   `json:"views"`
	Searches []SearchEvent `json:"searches"`
	Trailers []ViewEvent   `json:"trailers"`

	UpdatedAt time.Time `json:"updated_at"`
}

// NewProfile returns an empty profile for a user.
func NewProfile(userID string) *Profile {
	return &Profile{
		UserID:    userID,
		Genres:    make(map[string]float64),
		Directors: make(map[string]float64),
		Actors:    make(map[string]float64),
		Keywords:  make(map[string]float64),
		Ratings:   make(map[int]RatingEvent),
		Watchlist: make(map[int]time.Time),
	}
}

// ensureMaps guards profiles decoded from storage, where empty maps may
// come back nil.
func (p *Profile) ensureMaps() {
	if p.Genres == nil {
		p.Genres = make(map[string]float64)
	}
	if p.Directors == nil {
		p.Directors = make(map[string]float64)
	}
	if p.Actors == nil {
		p.Actors = make(map[string]float64)
	}
	if p.Keywords == nil {
		p.Keywords = make(map[string]float64)
	}
	if p.Ratings == nil {
		p.Ratings = make(map[int]RatingEvent)
	}
	if p.Watchlist == nil {
		p.Watchlist = make(map[int]time.Time)
	}
}

// ApplyRating records a 1-5 star rating and, for ratings of 4 and above,
// reinforces the movie's attributes. base is linear in the rating:
// 3.0 at 4 stars, 5.0 at 5 stars. Genres and director gain the full
// base, cast half, keywords 0.3x.
func (p *Profile) ApplyRating(rec *movie.Record, rating float64, at time.Time) {
	p.ensureMaps()
	p.Ratings[rec.ID] = RatingEvent{Rating: rating, RatedAt: at}
	p.UpdatedAt = at

	if rating < 4 {
		return
	}
	p.reinforce(rec, 2*rating-5)
}

// reinforce bumps the attribute scores for one movie. Genres and
// director gain the full base, cast half, keywords 0.3x.
func (p *Profile) reinforce(rec *movie.Record, base float64) {
	for _, g := range rec.Genres {
		p.Genres[g] += base
	}
	if rec.Director != "" {
		p.Directors[rec.Director] += base
	}
	cast := rec.Cast
	if len(cast) > movie.TopCast {
		cast = cast[:movie.TopCast]
	}
	for _, a := range cast {
		p.Actors[a] += 0.5 * base
	}
	for _, kw := range rec.Keywords {
		p.Keywords[kw] += 0.3 * base
	}
}

// HasRated reports whether the user already rated a movie.
func (p *Profile) HasRated(movieID int) bool {
	_, ok := p.Ratings[movieID]
	return ok
}

// AddToWatchlist records a watchlist addition.
func (p *Profile) AddToWatchlist(movieID int, at time.Time) {
	p.ensureMaps()
	p.Watchlist[movieID] = at
	p.UpdatedAt = at
}

// RemoveFromWatchlist drops a movie from the watchlist. Removing an
// absent entry is a no-op.
func (p *Profile) RemoveFromWatchlist(movieID int, at time.Time) {
	p.ensureMaps()
	delete(p.Watchlist, movieID)
	p.UpdatedAt = at
}

// MarkLiked records an explicit "more like this" and modestly
// reinforces the movie's attributes. Idempotent per movie for the list;
// reinforcement applies once per call.
func (p *Profile) MarkLiked(rec *movie.Record, at time.Time) {
	p.ensureMaps()
	if !slices.Contains(p.Liked, rec.ID) {
		p.Liked = append(p.Liked, rec.ID)
	}
	p.reinforce(rec, likedBase)
	p.UpdatedAt = at
}

// MarkNotInterested adds a movie to the disliked list. Disliked movies
// never appear in this user's recommendations again.
func (p *Profile) MarkNotInterested(movieID int, at time.Time) {
	if !slices.Contains(p.Disliked, movieID) {
		p.Disliked = append(p.Disliked, movieID)
	}
	p.UpdatedAt = at
}

// IsDisliked reports whether the user marked a movie not interested.
func (p *Profile) IsDisliked(movieID int) bool {
	return slices.Contains(p.Disliked, movieID)
}

// RecordTrailerClick appends to the bounded trailer click log.
func (p *Profile) RecordTrailerClick(movieID int, at time.Time) {
	p.Trailers = append(p.Trailers, ViewEvent{MovieID: movieID, ViewedAt: at})
	if len(p.Trailers) > maxTrailerLog {
		p.Trailers = p.Trailers[len(p.Trailers)-maxTrailerLog:]
	}
	p.UpdatedAt = at
}

// RecordView appends to the bounded view log.
func (p *Profile) RecordView(movieID int, at time.Time) {
	p.Views = append(p.Views, ViewEvent{MovieID: movieID, ViewedAt: at})
	if len(p.Views) > maxViewLog {
		p.Views = p.Views[len(p.Views)-maxViewLog:]
	}
	p.UpdatedAt = at
}

// RecordSearch appends to the bounded search log.
func (p *Profile) RecordSearch(query string, at time.Time) {
	p.Searches = append(p.Searches, SearchEvent{Query: query, SearchedAt: at})
	if len(p.Searches) > maxSearchLog {
		p.Searches = p.Searches[len(p.Searches)-maxSearchLog:]
	}
	p.UpdatedAt = at
}

// Boost is the personalization adjustment for one candidate, with the
// matches exposed so callers can explain the recommendation.
type Boost struct {
	Genre    float64
	Director float64
	Actor    float64
	Total    float64

	MatchedGenres   []string
	MatchedDirector string
	MatchedCast     []string
}

// BoostFor computes the capped personalization boost for a candidate.
// An empty profile yields a zero boost for every candidate.
func (p *Profile) BoostFor(rec *movie.Record) Boost {
	var b Boost

	for _, g := range rec.Genres {
		score, ok := p.Genres[g]
		if !ok || score <= 0 {
			continue
		}
		b.Genre += score * genreFactor
		b.MatchedGenres = append(b.MatchedGenres, g)
	}
	if b.Genre > genreCap {
		b.Genre = genreCap
	}

	if rec.Director != "" {
		if score, ok := p.Directors[rec.Director]; ok && score > 0 {
			b.Director = score * directorRate
			if b.Director > directorCap {
				b.Director = directorCap
			}
			b.MatchedDirector = rec.Director
		}
	}

	cast := rec.Cast
	if len(cast) > movie.TopCast {
		cast = cast[:movie.TopCast]
	}
	for _, a := range cast {
		score, ok := p.Actors[a]
		if !ok || score <= 0 {
			continue
		}
		b.Actor += score * actorFactor
		b.MatchedCast = append(b.MatchedCast, a)
	}
	if b.Actor > actorCap {
		b.Actor = actorCap
	}

	b.Total = b.Genre + b.Director + b.Actor
	if b.Total > totalCap {
		b.Total = totalCap
	}
	return b
}
