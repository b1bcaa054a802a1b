// Package movie defines the movie metadata model and the collaborator
// interfaces the recommendation engine depends on. The engine is agnostic to
// how metadata is fetched; internal/tmdb provides the production
// implementation.
package movie

import (
	"context"
	"errors"
)

// TopCast is the number of leading cast members carried in a Record.
const TopCast = 5

// ErrNotFound indicates the provider has no metadata for the requested movie.
// Candidates resolving to ErrNotFound are excluded from scoring silently.
var ErrNotFound = errors.New("movie: not found")

// Record holds the metadata for one movie as used by the engine.
// A Record is immutable once fetched for a request.
type Record struct {
	// ID is the external (TMDB) movie identifier.
	ID int `json:"id"`

	// Title is the display title.
	Title string `json:"title"`

	// Year is the release year, zero when unknown.
	Year int `json:"year"`

	// Genres is the set of genre names.
	Genres []string `json:"genres"`

	// Director is the credited director, empty when unknown.
	Director string `json:"director"`

	// Cast holds up to TopCast leading actors in billing order.
	Cast []string `json:"cast"`

	// Keywords is the set of plot keywords.
	Keywords []string `json:"keywords"`

	// Crew holds writers and producers.
	Crew []string `json:"crew"`

	// Overview is the plot summary text.
	Overview string `json:"overview"`

	// Rating is the aggregate critic rating on a 0-10 scale.
	Rating float64 `json:"rating"`

	// Popularity is the provider-defined popularity score.
	Popularity float64 `json:"popularity"`
}

// MetadataProvider supplies movie metadata. Implementations must return
// ErrNotFound (possibly wrapped) for unknown identifiers.
type MetadataProvider interface {
	GetMovie(ctx context.Context, id int) (*Record, error)
}

// CandidateSupplier gathers candidate movie ids for a query: a mix of
// provider-similar titles and currently popular ones. The returned slice is
// deduplicated and never contains the query id.
type CandidateSupplier interface {
	Candidates(ctx context.Context, queryID, limit int) ([]int, error)
}
