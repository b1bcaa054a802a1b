package recommend

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/cinemind/cinemind/internal/config"
	"github.com/cinemind/cinemind/internal/movie"
	"github.com/cinemind/cinemind/internal/personalize"
	"github.com/cinemind/cinemind/internal/recommend/cf"
	"github.com/cinemind/cinemind/internal/recommend/storage"
)

type fakeProvider struct {
	records map[int]*movie.Record
}

func (f *fakeProvider) GetMovie(_ context.Context, id int) (*movie.Record, error) {
	rec, ok := f.records[id]
	if !ok {
		return nil, movie.ErrNotFound
	}
	return rec, nil
}

type fakeSupplier struct {
	ids []int
}

func (f *fakeSupplier) Candidates(_ context.Context, _ int, limit int) ([]int, error) {
	if len(f.ids) > limit {
		return f.ids[:limit], nil
	}
	return f.ids, nil
}

type fakeProfiles struct {
	profiles map[string]*personalize.Profile
	err      error
}

func (f *fakeProfiles) Get(userID string) (*personalize.Profile, error) {
	if f.err != nil {
		return nil, f.err
	}
	if p, ok := f.profiles[userID]; ok {
		return p, nil
	}
	return personalize.NewProfile(userID), nil
}

func testEngineConfig() config.EngineConfig {
	return config.EngineConfig{
		MinContentScore:  0,
		CFNeighborBoost:  0.05,
		CFNeighborTopN:   50,
		PopularityCap:    1000,
		MaxMovieAgeYears: 25,
		MaxCandidates:    50,
		FetchParallelism: 4,
		DefaultK:         12,
		MaxK:             50,
		MaxVocabulary:    5000,
	}
}

func interstellar() *movie.Record {
	return &movie.Record{
		ID:       100,
		Title:    "Interstellar",
		Year:     2014,
		Genres:   []string{"Science Fiction", "Drama"},
		Director: "Christopher Nolan",
		Cast:     []string{"Matthew McConaughey", "Anne Hathaway"},
		Keywords: []string{"wormhole", "space"},
		Overview: "Explorers travel through a wormhole in space.",
		Rating:   8.4,
	}
}

func inception() *movie.Record {
	return &movie.Record{
		ID:       200,
		Title:    "Inception",
		Year:     2010,
		Genres:   []string{"Science Fiction", "Action"},
		Director: "Christopher Nolan",
		Cast:     []string{"Leonardo DiCaprio"},
		Keywords: []string{"dream"},
		Overview: "A thief steals secrets through dream sharing.",
		Rating:   8.3,
	}
}

func notebook() *movie.Record {
	return &movie.Record{
		ID:       300,
		Title:    "The Notebook",
		Year:     2004,
		Genres:   []string{"Romance", "Drama"},
		Director: "Nick Cassavetes",
		Cast:     []string{"Ryan Gosling"},
		Keywords: []string{"love"},
		Overview: "A young man falls in love with a rich young woman.",
		Rating:   7.8,
	}
}

// emptySource returns a cf.Source over an empty store: no model exists.
func emptySource(t *testing.T) *cf.Source {
	t.Helper()
	store, err := storage.NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return cf.NewSource(store)
}

// sourceWithNeighbors persists a hand-built model where the query TMDB id
// has the given neighbors.
func sourceWithNeighbors(t *testing.T, queryTMDB int, neighbors map[int]float64) *cf.Source {
	t.Helper()
	store, err := storage.NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	model := &cf.Model{
		Items:       []int{1},
		ItemIndex:   map[int]int{1: 0},
		TMDBToMovie: map[int]int{queryTMDB: 1},
		MovieToTMDB: map[int]int{1: queryTMDB},
		Meta:        cf.BuildMeta{BuiltAt: time.Now(), TopK: 75},
	}
	var list []cf.Neighbor
	i := 2
	for tmdbID, score := range neighbors {
		list = append(list, cf.Neighbor{MovieID: i, TMDBID: tmdbID, Score: score})
		i++
	}
	model.Neighbors = [][]cf.Neighbor{list}

	if _, err := store.Save(cf.ArtifactName, model); err != nil {
		t.Fatal(err)
	}
	return cf.NewSource(store)
}

func TestRecommendHybrid(t *testing.T) {
	provider := &fakeProvider{records: map[int]*movie.Record{
		100: interstellar(),
		200: inception(),
		300: notebook(),
	}}
	// Candidate 999 has no metadata and must be skipped silently.
	supplier := &fakeSupplier{ids: []int{200, 300, 999}}
	src := sourceWithNeighbors(t, 100, map[int]float64{200: 0.8})

	e := NewEngine(provider, supplier, nil, src, testEngineConfig())
	resp, err := e.Recommend(context.Background(), Request{MovieID: 100})
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}

	if resp.Mode != ModeHybrid {
		t.Errorf("Mode = %q, want hybrid", resp.Mode)
	}
	if resp.Candidates != 2 {
		t.Errorf("Candidates = %d, want 2", resp.Candidates)
	}
	if len(resp.Items) != 2 {
		t.Fatalf("len(Items) = %d, want 2", len(resp.Items))
	}
	if resp.Items[0].MovieID != 200 {
		t.Errorf("top item = %d, want Inception (200)", resp.Items[0].MovieID)
	}
	if resp.Items[0].CFBoost != 0.05 {
		t.Errorf("Inception CFBoost = %v, want 0.05", resp.Items[0].CFBoost)
	}
	if !resp.Items[0].Reasons.CFNeighbor {
		t.Error("Inception not flagged as CF neighbor")
	}
	if resp.Items[1].CFBoost != 0 {
		t.Errorf("Notebook CFBoost = %v, want 0", resp.Items[1].CFBoost)
	}

	for _, item := range resp.Items {
		if item.ContentScore < 0 || item.ContentScore > 1 {
			t.Errorf("%s content score %v out of [0,1]", item.Title, item.ContentScore)
		}
		max := 1 + 0.05 + 0.30
		if item.FinalScore < 0 || item.FinalScore > max {
			t.Errorf("%s final score %v out of [0,%v]", item.Title, item.FinalScore, max)
		}
	}
}

func TestRecommendThresholdPrunes(t *testing.T) {
	query := interstellar()
	twin := interstellar()
	twin.ID = 201
	twin.Title = "Interstellar IMAX"

	provider := &fakeProvider{records: map[int]*movie.Record{
		100: query, 201: twin, 300: notebook(),
	}}
	cfg := testEngineConfig()
	cfg.MinContentScore = 0.9

	e := NewEngine(provider, &fakeSupplier{ids: []int{201, 300}}, nil, emptySource(t), cfg)
	resp, err := e.Recommend(context.Background(), Request{MovieID: 100})
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}

	// Only the identical twin clears a 0.9 threshold.
	if len(resp.Items) != 1 || resp.Items[0].MovieID != 201 {
		t.Fatalf("Items = %+v, want only the twin", resp.Items)
	}
}

func TestRecommendCFOnlyFallback(t *testing.T) {
	// Featureless records make the corpus degenerate.
	bare := func(id int, pop float64) *movie.Record {
		return &movie.Record{ID: id, Title: fmt.Sprintf("Movie %d", id), Popularity: pop}
	}
	provider := &fakeProvider{records: map[int]*movie.Record{
		100: bare(100, 0), 200: bare(200, 1), 300: bare(300, 2), 400: bare(400, 3),
	}}
	src := sourceWithNeighbors(t, 100, map[int]float64{200: 0.9, 300: 0.6})

	e := NewEngine(provider, &fakeSupplier{ids: []int{200, 300, 400}}, nil, src, testEngineConfig())
	resp, err := e.Recommend(context.Background(), Request{MovieID: 100})
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}

	if resp.Mode != ModeCFOnly {
		t.Fatalf("Mode = %q, want cf-only", resp.Mode)
	}
	// Only CF neighbors rank; 400 is not a neighbor.
	if len(resp.Items) != 2 {
		t.Fatalf("len(Items) = %d, want 2", len(resp.Items))
	}
	if resp.Items[0].MovieID != 200 || resp.Items[1].MovieID != 300 {
		t.Errorf("order = %d, %d; want 200, 300", resp.Items[0].MovieID, resp.Items[1].MovieID)
	}
	if resp.Items[0].CFSimilarity != 0.9 {
		t.Errorf("CFSimilarity = %v, want 0.9", resp.Items[0].CFSimilarity)
	}
	if resp.Items[0].ContentScore != 0 {
		t.Errorf("ContentScore = %v, want 0 in cf-only mode", resp.Items[0].ContentScore)
	}
	// CFSimilarity is the only component: no flat boost, and the
	// exposed components still sum to the final score.
	for _, item := range resp.Items {
		if item.CFBoost != 0 {
			t.Errorf("movie %d CFBoost = %v, want 0 in cf-only mode", item.MovieID, item.CFBoost)
		}
		sum := item.ContentScore + item.CFBoost + item.CFSimilarity + item.PersonalizationBoost
		if item.FinalScore != sum {
			t.Errorf("movie %d FinalScore = %v, component sum = %v", item.MovieID, item.FinalScore, sum)
		}
	}
}

func TestRecommendCFOnlyFillsFromNeighbors(t *testing.T) {
	// The supplier surfaces only a non-neighbor; the query's neighbors
	// must be fetched as candidates so the result is not empty.
	bare := func(id int) *movie.Record {
		return &movie.Record{ID: id, Title: fmt.Sprintf("Movie %d", id)}
	}
	provider := &fakeProvider{records: map[int]*movie.Record{
		100: bare(100), 400: bare(400), 500: bare(500),
	}}
	src := sourceWithNeighbors(t, 100, map[int]float64{500: 0.7})

	e := NewEngine(provider, &fakeSupplier{ids: []int{400}}, nil, src, testEngineConfig())
	resp, err := e.Recommend(context.Background(), Request{MovieID: 100})
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}

	if resp.Mode != ModeCFOnly {
		t.Fatalf("Mode = %q, want cf-only", resp.Mode)
	}
	if len(resp.Items) != 1 || resp.Items[0].MovieID != 500 {
		t.Fatalf("Items = %+v, want the neighbor 500", resp.Items)
	}
	if resp.Items[0].CFSimilarity != 0.7 {
		t.Errorf("CFSimilarity = %v, want 0.7", resp.Items[0].CFSimilarity)
	}
}

func TestRecommendCFOnlyNoNeighborsIsEmpty(t *testing.T) {
	bare := &movie.Record{ID: 100, Title: "Bare"}
	other := &movie.Record{ID: 200, Title: "Other"}
	provider := &fakeProvider{records: map[int]*movie.Record{100: bare, 200: other}}

	e := NewEngine(provider, &fakeSupplier{ids: []int{200}}, nil, emptySource(t), testEngineConfig())
	resp, err := e.Recommend(context.Background(), Request{MovieID: 100})
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	if len(resp.Items) != 0 {
		t.Errorf("Items = %+v, want explicit empty result", resp.Items)
	}
}

func TestRecommendContentOnlyWithoutModel(t *testing.T) {
	provider := &fakeProvider{records: map[int]*movie.Record{
		100: interstellar(), 200: inception(),
	}}
	e := NewEngine(provider, &fakeSupplier{ids: []int{200}}, nil, emptySource(t), testEngineConfig())

	resp, err := e.Recommend(context.Background(), Request{MovieID: 100})
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	if resp.Mode != ModeContentOnly {
		t.Errorf("Mode = %q, want content-only", resp.Mode)
	}
	if len(resp.Items) != 1 {
		t.Fatalf("len(Items) = %d, want 1", len(resp.Items))
	}
	if resp.Items[0].CFBoost != 0 {
		t.Errorf("CFBoost = %v, want 0 without a model", resp.Items[0].CFBoost)
	}
}

func TestRecommendExcludesAlreadyRated(t *testing.T) {
	provider := &fakeProvider{records: map[int]*movie.Record{
		100: interstellar(), 200: inception(), 300: notebook(),
	}}
	profile := personalize.NewProfile("u1")
	profile.ApplyRating(inception(), 5, time.Now())
	profiles := &fakeProfiles{profiles: map[string]*personalize.Profile{"u1": profile}}

	e := NewEngine(provider, &fakeSupplier{ids: []int{200, 300}}, profiles, emptySource(t), testEngineConfig())
	resp, err := e.Recommend(context.Background(), Request{MovieID: 100, UserID: "u1"})
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}

	for _, item := range resp.Items {
		if item.MovieID == 200 {
			t.Error("already-rated Inception present in personalized result")
		}
	}
}

func TestRecommendExcludesNotInterested(t *testing.T) {
	provider := &fakeProvider{records: map[int]*movie.Record{
		100: interstellar(), 200: inception(), 300: notebook(),
	}}
	profile := personalize.NewProfile("u1")
	profile.MarkNotInterested(200, time.Now())
	profiles := &fakeProfiles{profiles: map[string]*personalize.Profile{"u1": profile}}

	e := NewEngine(provider, &fakeSupplier{ids: []int{200, 300}}, profiles, emptySource(t), testEngineConfig())
	resp, err := e.Recommend(context.Background(), Request{MovieID: 100, UserID: "u1"})
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}

	for _, item := range resp.Items {
		if item.MovieID == 200 {
			t.Error("not-interested Inception present in personalized result")
		}
	}
}

func TestRecommendPersonalizationBoost(t *testing.T) {
	provider := &fakeProvider{records: map[int]*movie.Record{
		100: interstellar(), 200: inception(), 300: notebook(),
	}}
	// A Nolan fan: rated a different Nolan film 5 stars.
	profile := personalize.NewProfile("fan")
	profile.ApplyRating(&movie.Record{
		ID:       999,
		Genres:   []string{"Science Fiction"},
		Director: "Christopher Nolan",
	}, 5, time.Now())
	profiles := &fakeProfiles{profiles: map[string]*personalize.Profile{"fan": profile}}

	e := NewEngine(provider, &fakeSupplier{ids: []int{200, 300}}, profiles, emptySource(t), testEngineConfig())
	resp, err := e.Recommend(context.Background(), Request{MovieID: 100, UserID: "fan"})
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}

	var inceptionItem *Recommendation
	for i := range resp.Items {
		if resp.Items[i].MovieID == 200 {
			inceptionItem = &resp.Items[i]
		}
	}
	if inceptionItem == nil {
		t.Fatal("Inception missing from results")
	}
	if inceptionItem.PersonalizationBoost <= 0 {
		t.Error("Nolan fan got no personalization boost on a Nolan film")
	}
	if inceptionItem.PersonalizationBoost > 0.30 {
		t.Errorf("personalization boost %v exceeds 0.30 cap", inceptionItem.PersonalizationBoost)
	}
	if inceptionItem.Reasons.MatchedDirector != "Christopher Nolan" {
		t.Errorf("MatchedDirector = %q", inceptionItem.Reasons.MatchedDirector)
	}
}

func TestRecommendAnonymousHasZeroPersonalization(t *testing.T) {
	provider := &fakeProvider{records: map[int]*movie.Record{
		100: interstellar(), 200: inception(),
	}}
	e := NewEngine(provider, &fakeSupplier{ids: []int{200}}, &fakeProfiles{}, emptySource(t), testEngineConfig())

	resp, err := e.Recommend(context.Background(), Request{MovieID: 100})
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	for _, item := range resp.Items {
		if item.PersonalizationBoost != 0 {
			t.Errorf("anonymous request got personalization boost %v", item.PersonalizationBoost)
		}
	}
}

func TestRecommendProfileFailureDowngrades(t *testing.T) {
	provider := &fakeProvider{records: map[int]*movie.Record{
		100: interstellar(), 200: inception(),
	}}
	profiles := &fakeProfiles{err: errors.New("store offline")}

	e := NewEngine(provider, &fakeSupplier{ids: []int{200}}, profiles, emptySource(t), testEngineConfig())
	resp, err := e.Recommend(context.Background(), Request{MovieID: 100, UserID: "u1"})
	if err != nil {
		t.Fatalf("Recommend with failing profile store: %v", err)
	}
	if len(resp.Items) != 1 {
		t.Fatalf("len(Items) = %d, want 1", len(resp.Items))
	}
}

func TestRecommendTieBreaksByID(t *testing.T) {
	// Two candidates identical in every scoring dimension must order by
	// movie id ascending.
	a := notebook()
	a.ID = 301
	b := notebook()
	b.ID = 302

	provider := &fakeProvider{records: map[int]*movie.Record{
		100: interstellar(), 301: a, 302: b,
	}}
	e := NewEngine(provider, &fakeSupplier{ids: []int{302, 301}}, nil, emptySource(t), testEngineConfig())

	resp, err := e.Recommend(context.Background(), Request{MovieID: 100})
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	if len(resp.Items) != 2 {
		t.Fatalf("len(Items) = %d, want 2", len(resp.Items))
	}
	if resp.Items[0].MovieID != 301 || resp.Items[1].MovieID != 302 {
		t.Errorf("order = %d, %d; want 301, 302", resp.Items[0].MovieID, resp.Items[1].MovieID)
	}
}

func TestRecommendCapsK(t *testing.T) {
	records := map[int]*movie.Record{100: interstellar()}
	var ids []int
	for i := 0; i < 30; i++ {
		twin := interstellar()
		twin.ID = 1000 + i
		twin.Title = fmt.Sprintf("Twin %d", i)
		records[twin.ID] = twin
		ids = append(ids, twin.ID)
	}
	provider := &fakeProvider{records: records}

	e := NewEngine(provider, &fakeSupplier{ids: ids}, nil, emptySource(t), testEngineConfig())
	resp, err := e.Recommend(context.Background(), Request{MovieID: 100})
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	if len(resp.Items) != 12 {
		t.Errorf("len(Items) = %d, want default cap 12", len(resp.Items))
	}

	resp, err = e.Recommend(context.Background(), Request{MovieID: 100, K: 5})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Items) != 5 {
		t.Errorf("len(Items) = %d, want 5", len(resp.Items))
	}
}

func TestRecommendUnknownQueryFails(t *testing.T) {
	e := NewEngine(&fakeProvider{}, &fakeSupplier{}, nil, emptySource(t), testEngineConfig())
	if _, err := e.Recommend(context.Background(), Request{MovieID: 42}); !errors.Is(err, movie.ErrNotFound) {
		t.Fatalf("err = %v, want movie.ErrNotFound", err)
	}
}

func TestRerankerKeepsCount(t *testing.T) {
	items := []Recommendation{
		{MovieID: 1, FinalScore: 0.9, Genres: []string{"Action"}},
		{MovieID: 2, FinalScore: 0.8, Genres: []string{"Action"}},
		{MovieID: 3, FinalScore: 0.7, Genres: []string{"Drama"}},
	}
	got := NewReranker(0.5).Rerank(items, 3)
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].MovieID != 1 {
		t.Errorf("first pick = %d, want highest relevance 1", got[0].MovieID)
	}
	// With heavy genre overlap between 1 and 2, diversity pulls 3 up.
	if got[1].MovieID != 3 {
		t.Errorf("second pick = %d, want diverse 3", got[1].MovieID)
	}
}

func TestRerankerPureRelevance(t *testing.T) {
	items := []Recommendation{
		{MovieID: 1, FinalScore: 0.9},
		{MovieID: 2, FinalScore: 0.8},
	}
	got := NewReranker(1).Rerank(items, 1)
	if len(got) != 1 || got[0].MovieID != 1 {
		t.Errorf("got %+v", got)
	}
}
