// Package content implements the content-based half of the recommendation
// pipeline: feature composition, TF-IDF vectorization over a request's
// candidate batch, and quality-adjusted similarity scoring.
package content

import (
	"strings"

	"github.com/cinemind/cinemind/internal/movie"
)

// Field importance weights. These are product constants: genre and
// director dominate, keywords and cast matter, overview and remaining
// crew provide texture.
const (
	WeightGenre    = 3.0
	WeightDirector = 3.0
	WeightKeyword  = 2.0
	WeightCast     = 2.0
	WeightOverview = 1.0
	WeightCrew     = 1.0
)

// Segment is one field's contribution to a feature document: an ordered
// token sequence with a uniform weight. Bigrams are formed within a
// segment, never across segment boundaries.
type Segment struct {
	Field  string
	Tokens []string
	Weight float64
}

// Document is the weighted token corpus derived from one movie record.
// Derived and request-scoped; rebuilt on every request, never persisted.
type Document struct {
	ID       int
	Segments []Segment
}

// Empty reports whether the document carries no tokens at all.
func (d Document) Empty() bool {
	for _, s := range d.Segments {
		if len(s.Tokens) > 0 {
			return false
		}
	}
	return true
}

// Compose builds a feature document from a movie record. Name fields are
// namespaced so a director cannot collide with an identically named actor.
// Missing fields contribute no tokens.
func Compose(rec *movie.Record) Document {
	doc := Document{ID: rec.ID}

	if len(rec.Genres) > 0 {
		doc.Segments = append(doc.Segments, Segment{
			Field:  "genres",
			Tokens: nameTokens("genre:", rec.Genres),
			Weight: WeightGenre,
		})
	}
	if rec.Director != "" {
		doc.Segments = append(doc.Segments, Segment{
			Field:  "director",
			Tokens: nameTokens("director:", []string{rec.Director}),
			Weight: WeightDirector,
		})
	}
	if len(rec.Keywords) > 0 {
		doc.Segments = append(doc.Segments, Segment{
			Field:  "keywords",
			Tokens: nameTokens("keyword:", rec.Keywords),
			Weight: WeightKeyword,
		})
	}
	if len(rec.Cast) > 0 {
		cast := rec.Cast
		if len(cast) > movie.TopCast {
			cast = cast[:movie.TopCast]
		}
		doc.Segments = append(doc.Segments, Segment{
			Field:  "cast",
			Tokens: nameTokens("actor:", cast),
			Weight: WeightCast,
		})
	}
	if rec.Overview != "" {
		if tokens := textTokens(rec.Overview); len(tokens) > 0 {
			doc.Segments = append(doc.Segments, Segment{
				Field:  "overview",
				Tokens: tokens,
				Weight: WeightOverview,
			})
		}
	}
	if len(rec.Crew) > 0 {
		doc.Segments = append(doc.Segments, Segment{
			Field:  "crew",
			Tokens: nameTokens("crew:", rec.Crew),
			Weight: WeightCrew,
		})
	}
	return doc
}

// nameTokens normalizes each name to a single namespaced token so that
// multi-word names stay atomic ("director:christopher_nolan").
func nameTokens(prefix string, names []string) []string {
	tokens := make([]string, 0, len(names))
	for _, name := range names {
		n := normalizeName(name)
		if n == "" {
			continue
		}
		tokens = append(tokens, prefix+n)
	}
	return tokens
}

func normalizeName(name string) string {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(name)))
	return strings.Join(fields, "_")
}

// stopwords excluded from overview text. Short list: TF-IDF already
// downweights ubiquitous terms, this only strips the worst offenders.
var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "but": true, "by": true, "for": true, "from": true,
	"has": true, "he": true, "her": true, "his": true, "in": true,
	"is": true, "it": true, "its": true, "of": true, "on": true,
	"she": true, "that": true, "the": true, "their": true, "they": true,
	"this": true, "to": true, "was": true, "when": true, "who": true,
	"will": true, "with": true,
}

// textTokens lowercases free text and splits on non-alphanumeric runs,
// dropping stopwords and single characters.
func textTokens(text string) []string {
	var tokens []string
	var sb strings.Builder
	flush := func() {
		if sb.Len() == 0 {
			return
		}
		w := sb.String()
		sb.Reset()
		if len(w) < 2 || stopwords[w] {
			return
		}
		tokens = append(tokens, w)
	}
	for _, r := range strings.ToLower(text) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			sb.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return tokens
}
