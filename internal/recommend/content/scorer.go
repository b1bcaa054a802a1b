package content

import (
	"time"

	"github.com/cinemind/cinemind/internal/movie"
)

// ScorerConfig holds the quality adjustment constants.
type ScorerConfig struct {
	// PopularityCap normalizes the provider popularity scale.
	PopularityCap float64

	// MaxAgeYears is the age beyond which low-rated titles are penalized.
	MaxAgeYears int

	// MinScore drops candidates whose boosted score falls below it.
	// Hard product contract: the engine never varies it per request.
	MinScore float64

	// Now overrides the clock in tests. Nil means time.Now.
	Now func() time.Time
}

// Scorer turns raw cosine similarity into a bounded content score.
type Scorer struct {
	cfg ScorerConfig
}

// NewScorer returns a scorer with the given adjustment constants.
func NewScorer(cfg ScorerConfig) *Scorer {
	if cfg.PopularityCap <= 0 {
		cfg.PopularityCap = 1000
	}
	if cfg.MaxAgeYears <= 0 {
		cfg.MaxAgeYears = 25
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Scorer{cfg: cfg}
}

// QualityBoost computes the additive adjustment for one movie: a capped
// rating bonus above 8, a capped popularity bonus, and an age penalty for
// poorly rated old titles. Each term is capped independently.
func (s *Scorer) QualityBoost(rec *movie.Record) float64 {
	var boost float64

	if rec.Rating >= 8 {
		b := 0.08 * (rec.Rating - 8) / 2
		if b > 0.08 {
			b = 0.08
		}
		boost += b
	}

	p := rec.Popularity / s.cfg.PopularityCap * 0.02
	if p > 0.02 {
		p = 0.02
	}
	if p > 0 {
		boost += p
	}

	if rec.Rating < 6 && rec.Year > 0 {
		if s.cfg.Now().Year()-rec.Year > s.cfg.MaxAgeYears {
			boost -= 0.05
		}
	}
	return boost
}

// Score applies the quality boost to a raw similarity and clamps the
// result to [0,1].
func (s *Scorer) Score(similarity float64, rec *movie.Record) float64 {
	score := similarity + s.QualityBoost(rec)
	switch {
	case score < 0:
		return 0
	case score > 1:
		return 1
	}
	return score
}

// MinScore exposes the pruning threshold to the blender.
func (s *Scorer) MinScore() float64 {
	return s.cfg.MinScore
}
