// Package recommend assembles the hybrid recommendation pipeline:
// content similarity, CF neighbor boosting and per-user personalization,
// blended into an explainable ranked list.
package recommend

import (
	"github.com/cinemind/cinemind/internal/personalize"
)

// Mode names how a response was scored.
type Mode string

const (
	// ModeHybrid is the normal path: content plus CF boost.
	ModeHybrid Mode = "hybrid"

	// ModeCFOnly is the fallback when the candidate batch could not be
	// vectorized; ranking uses raw CF neighbor similarity.
	ModeCFOnly Mode = "cf-only"

	// ModeContentOnly is the fallback when no CF model exists.
	ModeContentOnly Mode = "content-only"
)

// Reasons carries the human-readable justification for one
// recommendation. Every score component stays attributed; the final
// scalar is never the only thing exposed.
type Reasons struct {
	ContentPercent         int      `json:"content_percent"`
	PersonalizationPercent int      `json:"personalization_percent"`
	CFNeighbor             bool     `json:"cf_neighbor"`
	MatchedGenres          []string `json:"matched_genres,omitempty"`
	MatchedDirector        string   `json:"matched_director,omitempty"`
	MatchedCast            []string `json:"matched_cast,omitempty"`
}

// Recommendation is one ranked result with its full score breakdown.
type Recommendation struct {
	MovieID    int      `json:"movie_id"`
	Title      string   `json:"title"`
	Year       int      `json:"year,omitempty"`
	Genres     []string `json:"genres,omitempty"`
	Director   string   `json:"director,omitempty"`
	Rating     float64  `json:"rating"`
	Popularity float64  `json:"popularity"`

	ContentScore         float64 `json:"content_score"`
	QualityBoost         float64 `json:"quality_boost"`
	CFBoost              float64 `json:"cf_boost"`
	CFSimilarity         float64 `json:"cf_similarity,omitempty"`
	PersonalizationBoost float64 `json:"personalization_boost"`
	FinalScore           float64 `json:"final_score"`

	Reasons Reasons `json:"reasons"`
}

// Request asks for recommendations similar to one movie, optionally
// personalized for a user.
type Request struct {
	MovieID int

	// UserID selects the preference profile. Empty means anonymous: no
	// personalization and no already-seen filtering.
	UserID string

	// K is the result cap. Zero means the configured default.
	K int
}

// Response is the ordered result list. Items may be empty; an empty
// list is an explicit "no recommendations" outcome, not a failure.
type Response struct {
	QueryID    int              `json:"query_id"`
	QueryTitle string           `json:"query_title"`
	Mode       Mode             `json:"mode"`
	Items      []Recommendation `json:"items"`

	// Candidates is how many candidate movies were scored before
	// filtering.
	Candidates int `json:"candidates"`
}

// ProfileSource supplies user preference profiles. The engine only
// reads profiles; mutation happens through the profile store's own API.
type ProfileSource interface {
	Get(userID string) (*personalize.Profile, error)
}
