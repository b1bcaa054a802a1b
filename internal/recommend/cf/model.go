// Package cf implements item-item collaborative filtering: an offline
// block-wise model builder and a read-only lookup over the persisted
// neighbor table.
package cf

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/cinemind/cinemind/internal/logging"
	"github.com/cinemind/cinemind/internal/metrics"
	"github.com/cinemind/cinemind/internal/recommend/storage"
)

// ArtifactName is the model's name in the artifact store.
const ArtifactName = "cf_neighbors"

// ErrModelNotFound signals that no persisted model exists. Callers
// disable the CF boost and serve pure content scoring.
var ErrModelNotFound = errors.New("cf: model not found")

// Neighbor is one entry of an item's neighbor list, ordered by
// similarity descending.
type Neighbor struct {
	// MovieID is the dataset-internal item id.
	MovieID int

	// TMDBID is the external id. The builder drops items without one,
	// so entries in a built model always carry it.
	TMDBID int

	// Score is the cosine similarity in [0,1].
	Score float64
}

// BuildMeta records the parameters a model was built with.
type BuildMeta struct {
	BuiltAt        time.Time
	TopK           int
	MinItemRatings int
	BlockSize      int
	RatingCount    int
	UserCount      int
}

// Model is the persisted CF artifact. Immutable once built; shared
// read-only by all requests.
type Model struct {
	// Items lists dataset item ids in index order.
	Items []int

	// ItemIndex maps dataset item id to its index in Items and Neighbors.
	ItemIndex map[int]int

	// Neighbors holds the top-K neighbor list per item index.
	Neighbors [][]Neighbor

	// TMDBToMovie and MovieToTMDB cross-reference external ids.
	TMDBToMovie map[int]int
	MovieToTMDB map[int]int

	Meta BuildMeta
}

// NeighborsByMovie returns the neighbor list for a dataset item id.
// Unknown or pruned items get an empty list, never an error.
func (m *Model) NeighborsByMovie(movieID int) []Neighbor {
	idx, ok := m.ItemIndex[movieID]
	if !ok {
		return nil
	}
	return m.Neighbors[idx]
}

// NeighborsByTMDB returns the neighbor list for an external movie id.
func (m *Model) NeighborsByTMDB(tmdbID int) []Neighbor {
	movieID, ok := m.TMDBToMovie[tmdbID]
	if !ok {
		return nil
	}
	return m.NeighborsByMovie(movieID)
}

// Source provides lazy, process-wide access to the persisted model.
// The model loads on first use and is swapped wholesale on reload, so
// readers never observe partial state and the read path takes no locks
// after the initial load.
type Source struct {
	store  *storage.Store
	logger zerolog.Logger

	current atomic.Pointer[Model]
	version atomic.Int64

	// loadMu serializes the initial load and reloads.
	loadMu sync.Mutex
}

// NewSource wraps an artifact store.
func NewSource(store *storage.Store) *Source {
	return &Source{
		store:  store,
		logger: logging.Component("cf"),
	}
}

// Model returns the active model, loading it on first use. Returns
// ErrModelNotFound when no artifact has ever been built.
func (s *Source) Model(ctx context.Context) (*Model, error) {
	if m := s.current.Load(); m != nil {
		return m, nil
	}

	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	if m := s.current.Load(); m != nil {
		return m, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.load(0)
}

// Reload checks the store for a version newer than the active one and
// swaps it in. Returns true when a swap happened. Safe to call
// concurrently with readers.
func (s *Source) Reload() (bool, error) {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()

	latest, ok := s.store.LatestVersion(ArtifactName)
	if !ok {
		if s.current.Load() == nil {
			return false, ErrModelNotFound
		}
		return false, nil
	}
	if int64(latest) <= s.version.Load() {
		return false, nil
	}
	if _, err := s.load(latest); err != nil {
		return false, err
	}
	return true, nil
}

// load must be called with loadMu held.
func (s *Source) load(version int) (*Model, error) {
	var m Model
	meta, err := s.store.Load(ArtifactName, version, &m)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrModelNotFound
		}
		metrics.CFModelLoadErrors.Inc()
		return nil, fmt.Errorf("cf: loading model: %w", err)
	}

	s.current.Store(&m)
	s.version.Store(int64(meta.Version))

	metrics.CFModelInfo.Reset()
	metrics.CFModelInfo.WithLabelValues(strconv.Itoa(meta.Version)).Set(1)
	metrics.CFModelItems.Set(float64(len(m.Items)))

	s.logger.Info().
		Int("version", meta.Version).
		Int("items", len(m.Items)).
		Int("top_k", m.Meta.TopK).
		Msg("CF model loaded")
	return &m, nil
}
