package recommend

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/cinemind/cinemind/internal/config"
	"github.com/cinemind/cinemind/internal/logging"
	"github.com/cinemind/cinemind/internal/metrics"
	"github.com/cinemind/cinemind/internal/movie"
	"github.com/cinemind/cinemind/internal/personalize"
	"github.com/cinemind/cinemind/internal/recommend/cf"
	"github.com/cinemind/cinemind/internal/recommend/content"
)

// Engine runs the scoring pipeline for one request at a time per call.
// It carries no per-request state; the CF model snapshot is the only
// shared data and it is read-only.
type Engine struct {
	provider   movie.MetadataProvider
	candidates movie.CandidateSupplier
	profiles   ProfileSource
	cfSource   *cf.Source
	vectorizer *content.Vectorizer
	scorer     *content.Scorer
	reranker   *Reranker
	cfg        config.EngineConfig
	logger     zerolog.Logger
}

// NewEngine wires the pipeline. profiles may be nil to disable
// personalization entirely.
func NewEngine(provider movie.MetadataProvider, candidates movie.CandidateSupplier, profiles ProfileSource, cfSource *cf.Source, cfg config.EngineConfig) *Engine {
	e := &Engine{
		provider:   provider,
		candidates: candidates,
		profiles:   profiles,
		cfSource:   cfSource,
		vectorizer: content.NewVectorizer(cfg.MaxVocabulary),
		scorer: content.NewScorer(content.ScorerConfig{
			PopularityCap: cfg.PopularityCap,
			MaxAgeYears:   cfg.MaxMovieAgeYears,
			MinScore:      cfg.MinContentScore,
		}),
		cfg:    cfg,
		logger: logging.Component("engine"),
	}
	if cfg.MMREnabled {
		e.reranker = NewReranker(cfg.MMRLambda)
	}
	return e
}

// Recommend produces the ranked list for one query movie. An empty
// Items slice is a valid "no recommendations" result; errors are
// reserved for the query itself being unfetchable or the request being
// cancelled.
func (e *Engine) Recommend(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	resp, err := e.recommend(ctx, req)
	metrics.RecommendationLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.RecommendationRequests.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.RecommendationRequests.WithLabelValues(string(resp.Mode)).Inc()
	metrics.RecommendationResults.Observe(float64(len(resp.Items)))
	return resp, nil
}

func (e *Engine) recommend(ctx context.Context, req Request) (*Response, error) {
	k := req.K
	if k <= 0 {
		k = e.cfg.DefaultK
	}
	if k > e.cfg.MaxK {
		k = e.cfg.MaxK
	}

	query, err := e.provider.GetMovie(ctx, req.MovieID)
	if err != nil {
		return nil, fmt.Errorf("recommend: fetching query movie %d: %w", req.MovieID, err)
	}

	ids, err := e.candidates.Candidates(ctx, req.MovieID, e.cfg.MaxCandidates)
	if err != nil {
		return nil, fmt.Errorf("recommend: gathering candidates for %d: %w", req.MovieID, err)
	}

	records, err := e.fetchCandidates(ctx, ids)
	if err != nil {
		return nil, err
	}

	// Deadline boundary: once scoring starts the request runs to
	// completion, so bail here rather than mid-vectorization.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var profile *personalize.Profile
	if req.UserID != "" && e.profiles != nil {
		profile, err = e.profiles.Get(req.UserID)
		if err != nil {
			// Personalization is additive; a profile read failure
			// downgrades to anonymous rather than failing the request.
			e.logger.Warn().Err(err).Str("user_id", req.UserID).
				Msg("profile load failed, serving unpersonalized")
			profile = nil
		}
	}

	mode := ModeHybrid

	docs := make([]content.Document, 0, len(records))
	for _, rec := range records {
		docs = append(docs, content.Compose(rec))
	}
	space, err := e.vectorizer.Vectorize(content.Compose(query), docs)
	if err != nil {
		if !errors.Is(err, content.ErrVectorizationUnavailable) {
			return nil, fmt.Errorf("recommend: vectorizing: %w", err)
		}
		metrics.VectorizerFallbacks.Inc()
		e.logger.Warn().Int("movie_id", req.MovieID).
			Msg("vectorization unavailable, falling back to CF-only")
		mode = ModeCFOnly
		space = nil
	}

	neighborSims := e.queryNeighbors(ctx, req.MovieID)
	if neighborSims == nil && mode == ModeHybrid {
		mode = ModeContentOnly
	}
	if mode == ModeCFOnly {
		if len(neighborSims) == 0 {
			// Neither signal available: explicit empty result.
			return &Response{
				QueryID:    req.MovieID,
				QueryTitle: query.Title,
				Mode:       ModeCFOnly,
				Items:      []Recommendation{},
				Candidates: len(records),
			}, nil
		}
		// Only neighbors are rankable in this mode; pull in the ones
		// the supplier didn't surface so the list never comes back
		// empty while the query still has neighbors.
		records, err = e.supplementNeighbors(ctx, records, neighborSims)
		if err != nil {
			return nil, err
		}
	}

	items := e.scoreCandidates(records, space, neighborSims, profile, mode)

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].FinalScore != items[j].FinalScore {
			return items[i].FinalScore > items[j].FinalScore
		}
		if items[i].ContentScore != items[j].ContentScore {
			return items[i].ContentScore > items[j].ContentScore
		}
		if items[i].Popularity != items[j].Popularity {
			return items[i].Popularity > items[j].Popularity
		}
		return items[i].MovieID < items[j].MovieID
	})
	if len(items) > k {
		items = items[:k]
	}
	if e.reranker != nil {
		items = e.reranker.Rerank(items, k)
	}
	if items == nil {
		items = []Recommendation{}
	}

	return &Response{
		QueryID:    req.MovieID,
		QueryTitle: query.Title,
		Mode:       mode,
		Items:      items,
		Candidates: len(records),
	}, nil
}

// fetchCandidates retrieves candidate metadata with bounded parallelism.
// Candidates without feature data are skipped silently; only context
// cancellation aborts the batch.
func (e *Engine) fetchCandidates(ctx context.Context, ids []int) ([]*movie.Record, error) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.FetchParallelism)

	var mu sync.Mutex
	byID := make(map[int]*movie.Record, len(ids))

	for _, id := range ids {
		g.Go(func() error {
			rec, err := e.provider.GetMovie(ctx, id)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				kind := "other"
				if errors.Is(err, movie.ErrNotFound) {
					kind = "not_found"
				}
				metrics.CandidateFetchErrors.WithLabelValues(kind).Inc()
				e.logger.Debug().Err(err).Int("movie_id", id).Msg("candidate skipped")
				return nil
			}
			mu.Lock()
			byID[id] = rec
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Preserve supplier order: similar titles come before popular ones.
	records := make([]*movie.Record, 0, len(byID))
	for _, id := range ids {
		if rec, ok := byID[id]; ok {
			records = append(records, rec)
		}
	}
	return records, nil
}

// supplementNeighbors fetches metadata for CF neighbors missing from
// the candidate pool. Unresolvable neighbors are skipped like any other
// candidate.
func (e *Engine) supplementNeighbors(ctx context.Context, records []*movie.Record, neighborSims map[int]float64) ([]*movie.Record, error) {
	have := make(map[int]bool, len(records))
	for _, rec := range records {
		have[rec.ID] = true
	}

	missing := make([]int, 0, len(neighborSims))
	for id := range neighborSims {
		if !have[id] {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return records, nil
	}
	sort.Ints(missing)

	fetched, err := e.fetchCandidates(ctx, missing)
	if err != nil {
		return nil, err
	}
	return append(records, fetched...), nil
}

// queryNeighbors returns the query movie's strongest CF neighbors keyed
// by TMDB id, or nil when no model is available.
func (e *Engine) queryNeighbors(ctx context.Context, movieID int) map[int]float64 {
	model, err := e.cfSource.Model(ctx)
	if err != nil {
		if !errors.Is(err, cf.ErrModelNotFound) {
			e.logger.Error().Err(err).Msg("CF model load failed, serving content-only")
		}
		return nil
	}

	neighbors := model.NeighborsByTMDB(movieID)
	if len(neighbors) > e.cfg.CFNeighborTopN {
		neighbors = neighbors[:e.cfg.CFNeighborTopN]
	}
	sims := make(map[int]float64, len(neighbors))
	for _, n := range neighbors {
		if n.TMDBID != 0 {
			sims[n.TMDBID] = n.Score
		}
	}
	return sims
}

func (e *Engine) scoreCandidates(records []*movie.Record, space *content.VectorSpace, neighborSims map[int]float64, profile *personalize.Profile, mode Mode) []Recommendation {
	items := make([]Recommendation, 0, len(records))
	for _, rec := range records {
		if profile != nil && (profile.HasRated(rec.ID) || profile.IsDisliked(rec.ID)) {
			continue
		}

		item := Recommendation{
			MovieID:    rec.ID,
			Title:      rec.Title,
			Year:       rec.Year,
			Genres:     rec.Genres,
			Director:   rec.Director,
			Rating:     rec.Rating,
			Popularity: rec.Popularity,
		}

		cfSim, isNeighbor := neighborSims[rec.ID]

		switch mode {
		case ModeCFOnly:
			// CFSimilarity is the sole score component here; the flat
			// neighbor boost only applies on top of a content score.
			if !isNeighbor {
				continue
			}
			item.CFSimilarity = cfSim
			item.FinalScore = cfSim

		default:
			sim := space.Similarity(rec.ID)
			item.QualityBoost = e.scorer.QualityBoost(rec)
			item.ContentScore = e.scorer.Score(sim, rec)
			if item.ContentScore < e.scorer.MinScore() {
				continue
			}
			if isNeighbor && mode == ModeHybrid {
				item.CFBoost = e.cfg.CFNeighborBoost
				item.CFSimilarity = cfSim
			}
			item.FinalScore = item.ContentScore + item.CFBoost
		}

		if profile != nil {
			boost := profile.BoostFor(rec)
			item.PersonalizationBoost = boost.Total
			item.FinalScore += boost.Total
			item.Reasons.MatchedGenres = boost.MatchedGenres
			item.Reasons.MatchedDirector = boost.MatchedDirector
			item.Reasons.MatchedCast = boost.MatchedCast
		}

		item.Reasons.CFNeighbor = isNeighbor
		item.Reasons.ContentPercent = int(math.Round(item.ContentScore * 100))
		item.Reasons.PersonalizationPercent = int(math.Round(item.PersonalizationBoost * 100))

		items = append(items, item)
	}
	return items
}
