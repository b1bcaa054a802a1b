package cf

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cinemind/cinemind/internal/logging"
)

// Rating is one (user, item, rating) observation.
type Rating struct {
	UserID  int
	MovieID int
	Rating  float64
}

// BuilderConfig controls the offline build.
type BuilderConfig struct {
	// TopK is the number of neighbors retained per item.
	TopK int

	// MinItemRatings prunes items rated fewer times than this.
	MinItemRatings int

	// BlockSize is the number of item rows processed per block. The
	// peak working set is O(BlockSize x item count) rather than the
	// full pairwise O(item count squared).
	BlockSize int

	// Workers is the parallelism within a block. Zero means NumCPU.
	Workers int
}

// DefaultBuilderConfig returns the standard build parameters.
func DefaultBuilderConfig() BuilderConfig {
	return BuilderConfig{
		TopK:           75,
		MinItemRatings: 10,
		BlockSize:      1000,
		Workers:        0,
	}
}

func (c *BuilderConfig) normalize() {
	if c.TopK <= 0 {
		c.TopK = 75
	}
	if c.MinItemRatings <= 0 {
		c.MinItemRatings = 10
	}
	if c.BlockSize <= 0 {
		c.BlockSize = 1000
	}
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
}

// itemRow is one item's rating vector: parallel slices sorted by user id.
// The fixed user order fixes the float accumulation order, which makes
// the build reproducible bit for bit.
type itemRow struct {
	users   []int
	ratings []float64
	norm    float64
}

// posting locates one rating inside a user's posting list.
type posting struct {
	itemIdx int
	rating  float64
}

// Build computes the top-K item-item cosine neighbor table from a
// ratings dataset. links maps dataset movie id to external TMDB id;
// items without a link are pruned before the matrix build, the same as
// under-rated ones, so they never occupy neighbor slots the serving
// path cannot use.
//
// The build is deterministic: the same ratings and parameters produce
// the same model regardless of worker count.
func Build(ctx context.Context, ratings []Rating, links map[int]int, cfg BuilderConfig) (*Model, error) {
	cfg.normalize()
	logger := logging.Component("cf-builder")
	start := time.Now()

	rows, items, userCount := buildMatrix(ratings, links, cfg.MinItemRatings)
	if len(items) == 0 {
		return nil, fmt.Errorf("cf: no linked items passed the %d-rating minimum", cfg.MinItemRatings)
	}

	itemIndex := make(map[int]int, len(items))
	for idx, id := range items {
		itemIndex[id] = idx
	}

	postings := buildPostings(rows)

	logger.Info().
		Int("items", len(items)).
		Int("users", userCount).
		Int("ratings", len(ratings)).
		Int("block_size", cfg.BlockSize).
		Int("top_k", cfg.TopK).
		Msg("starting block-wise similarity pass")

	neighbors := make([][]Neighbor, len(items))
	for blockStart := 0; blockStart < len(items); blockStart += cfg.BlockSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		blockEnd := blockStart + cfg.BlockSize
		if blockEnd > len(items) {
			blockEnd = len(items)
		}
		if err := computeBlock(ctx, rows, postings, items, links, neighbors, blockStart, blockEnd, cfg); err != nil {
			return nil, err
		}
		logger.Debug().
			Int("block_start", blockStart).
			Int("block_end", blockEnd).
			Msg("block complete")
	}

	movieToTMDB := make(map[int]int, len(items))
	tmdbToMovie := make(map[int]int, len(items))
	for _, id := range items {
		if tmdbID, ok := links[id]; ok && tmdbID > 0 {
			movieToTMDB[id] = tmdbID
			tmdbToMovie[tmdbID] = id
		}
	}

	model := &Model{
		Items:       items,
		ItemIndex:   itemIndex,
		Neighbors:   neighbors,
		TMDBToMovie: tmdbToMovie,
		MovieToTMDB: movieToTMDB,
		Meta: BuildMeta{
			BuiltAt:        time.Now().UTC(),
			TopK:           cfg.TopK,
			MinItemRatings: cfg.MinItemRatings,
			BlockSize:      cfg.BlockSize,
			RatingCount:    len(ratings),
			UserCount:      userCount,
		},
	}

	logger.Info().
		Dur("elapsed", time.Since(start)).
		Int("items", len(items)).
		Msg("model build complete")
	return model, nil
}

// buildMatrix assembles pruned item rows with users sorted ascending.
// Items are indexed in ascending movie id order. Items below the rating
// minimum or without a TMDB link are dropped.
func buildMatrix(ratings []Rating, links map[int]int, minItemRatings int) (rows []itemRow, items []int, userCount int) {
	counts := make(map[int]int)
	for _, r := range ratings {
		counts[r.MovieID]++
	}

	for id, n := range counts {
		if n >= minItemRatings && links[id] > 0 {
			items = append(items, id)
		}
	}
	sort.Ints(items)

	itemIndex := make(map[int]int, len(items))
	for idx, id := range items {
		itemIndex[id] = idx
	}

	type entry struct {
		user   int
		rating float64
	}
	byItem := make([][]entry, len(items))
	users := make(map[int]struct{})
	for _, r := range ratings {
		users[r.UserID] = struct{}{}
		idx, ok := itemIndex[r.MovieID]
		if !ok {
			continue
		}
		byItem[idx] = append(byItem[idx], entry{user: r.UserID, rating: r.Rating})
	}

	rows = make([]itemRow, len(items))
	for idx, entries := range byItem {
		sort.Slice(entries, func(i, j int) bool { return entries[i].user < entries[j].user })
		row := itemRow{
			users:   make([]int, len(entries)),
			ratings: make([]float64, len(entries)),
		}
		var sq float64
		for i, e := range entries {
			row.users[i] = e.user
			row.ratings[i] = e.rating
			sq += e.rating * e.rating
		}
		row.norm = math.Sqrt(sq)
		rows[idx] = row
	}
	return rows, items, len(users)
}

// buildPostings inverts the item rows into per-user posting lists sorted
// by item index.
func buildPostings(rows []itemRow) map[int][]posting {
	postings := make(map[int][]posting)
	// Iterating items in index order keeps each posting list sorted by
	// item index without an explicit sort.
	for idx, row := range rows {
		for i, user := range row.users {
			postings[user] = append(postings[user], posting{itemIdx: idx, rating: row.ratings[i]})
		}
	}
	return postings
}

// computeBlock fills neighbors[blockStart:blockEnd]. Items within the
// block are split across workers; each item's accumulation is
// self-contained, so parallelism does not affect the result.
func computeBlock(ctx context.Context, rows []itemRow, postings map[int][]posting, items []int, links map[int]int, neighbors [][]Neighbor, blockStart, blockEnd int, cfg BuilderConfig) error {
	g, ctx := errgroup.WithContext(ctx)

	blockLen := blockEnd - blockStart
	chunk := (blockLen + cfg.Workers - 1) / cfg.Workers
	for w := 0; w < cfg.Workers; w++ {
		first := blockStart + w*chunk
		last := first + chunk
		if last > blockEnd {
			last = blockEnd
		}
		if first >= last {
			break
		}
		g.Go(func() error {
			scores := make([]float64, len(rows))
			touched := make([]int, 0, 4096)
			for i := first; i < last; i++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				neighbors[i] = topNeighbors(i, rows, postings, items, links, scores, &touched, cfg.TopK)
			}
			return nil
		})
	}
	return g.Wait()
}

// topNeighbors computes item i's cosine similarity against every
// co-rated item and keeps the K strongest. scores and touched are
// worker-local scratch reused across items.
func topNeighbors(i int, rows []itemRow, postings map[int][]posting, items []int, links map[int]int, scores []float64, touched *[]int, topK int) []Neighbor {
	row := rows[i]
	*touched = (*touched)[:0]

	for u, user := range row.users {
		r := row.ratings[u]
		for _, p := range postings[user] {
			if p.itemIdx == i {
				continue
			}
			if scores[p.itemIdx] == 0 {
				*touched = append(*touched, p.itemIdx)
			}
			scores[p.itemIdx] += r * p.rating
		}
	}

	candidates := make([]Neighbor, 0, len(*touched))
	for _, j := range *touched {
		dot := scores[j]
		scores[j] = 0
		if dot <= 0 {
			continue
		}
		sim := dot / (row.norm * rows[j].norm)
		if sim > 1 {
			sim = 1
		}
		candidates = append(candidates, Neighbor{
			MovieID: items[j],
			TMDBID:  links[items[j]],
			Score:   sim,
		})
	}

	// Similarity descending, ties by movie id ascending.
	sort.Slice(candidates, func(a, b int) bool {
		if candidates[a].Score != candidates[b].Score {
			return candidates[a].Score > candidates[b].Score
		}
		return candidates[a].MovieID < candidates[b].MovieID
	})
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}
	return candidates
}
