package tmdb

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cinemind/cinemind/internal/config"
	"github.com/cinemind/cinemind/internal/movie"
)

func testConfig(baseURL string) *config.TMDBConfig {
	return &config.TMDBConfig{
		BaseURL:           baseURL,
		APIKey:            "test-key",
		Timeout:           5 * time.Second,
		RequestsPerSecond: 1000,
		Burst:             1000,
		BreakerFailures:   3,
		BreakerCooldown:   time.Minute,
	}
}

const movieDetailJSON = `{
	"id": 157336,
	"title": "Interstellar",
	"release_date": "2014-11-05",
	"overview": "A team of explorers travel through a wormhole in space.",
	"vote_average": 8.4,
	"popularity": 140.5,
	"genres": [{"name": "Adventure"}, {"name": "Drama"}, {"name": "Science Fiction"}],
	"credits": {
		"cast": [
			{"name": "Matthew McConaughey", "order": 0},
			{"name": "Anne Hathaway", "order": 1},
			{"name": "Jessica Chastain", "order": 2},
			{"name": "Michael Caine", "order": 3},
			{"name": "Casey Affleck", "order": 4},
			{"name": "Wes Bentley", "order": 5}
		],
		"crew": [
			{"name": "Christopher Nolan", "job": "Director"},
			{"name": "Jonathan Nolan", "job": "Screenplay"},
			{"name": "Emma Thomas", "job": "Producer"},
			{"name": "Hans Zimmer", "job": "Original Music Composer"}
		]
	},
	"keywords": {"keywords": [{"name": "wormhole"}, {"name": "space travel"}]}
}`

func TestGetMovie(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/movie/157336" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("api_key") != "test-key" {
			t.Error("missing api_key")
		}
		if r.URL.Query().Get("append_to_response") != "credits,keywords" {
			t.Error("missing append_to_response")
		}
		fmt.Fprint(w, movieDetailJSON)
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL))
	rec, err := c.GetMovie(context.Background(), 157336)
	if err != nil {
		t.Fatalf("GetMovie: %v", err)
	}

	if rec.Title != "Interstellar" {
		t.Errorf("Title = %q", rec.Title)
	}
	if rec.Year != 2014 {
		t.Errorf("Year = %d, want 2014", rec.Year)
	}
	if rec.Director != "Christopher Nolan" {
		t.Errorf("Director = %q", rec.Director)
	}
	if len(rec.Cast) != movie.TopCast {
		t.Errorf("len(Cast) = %d, want %d", len(rec.Cast), movie.TopCast)
	}
	if rec.Cast[0] != "Matthew McConaughey" {
		t.Errorf("Cast[0] = %q", rec.Cast[0])
	}
	wantCrew := []string{"Jonathan Nolan", "Emma Thomas"}
	if len(rec.Crew) != len(wantCrew) {
		t.Fatalf("Crew = %v, want %v", rec.Crew, wantCrew)
	}
	for i, name := range wantCrew {
		if rec.Crew[i] != name {
			t.Errorf("Crew[%d] = %q, want %q", i, rec.Crew[i], name)
		}
	}
	if len(rec.Genres) != 3 || rec.Genres[2] != "Science Fiction" {
		t.Errorf("Genres = %v", rec.Genres)
	}
	if len(rec.Keywords) != 2 {
		t.Errorf("Keywords = %v", rec.Keywords)
	}
	if rec.Rating != 8.4 {
		t.Errorf("Rating = %v", rec.Rating)
	}
}

func TestGetMovieNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"status_code":34}`, http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL))
	if _, err := c.GetMovie(context.Background(), 999999); !errors.Is(err, movie.ErrNotFound) {
		t.Fatalf("err = %v, want movie.ErrNotFound", err)
	}
}

func listJSON(ids ...int) string {
	var sb strings.Builder
	sb.WriteString(`{"results":[`)
	for i, id := range ids {
		if i > 0 {
			sb.WriteString(",")
		}
		fmt.Fprintf(&sb, `{"id":%d}`, id)
	}
	sb.WriteString("]}")
	return sb.String()
}

func TestCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/movie/100/similar" && r.URL.Query().Get("page") == "1":
			// 16 ids; only 15 should be taken, and 100 (the query) dropped.
			fmt.Fprint(w, listJSON(100, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16))
		case r.URL.Path == "/movie/100/similar" && r.URL.Query().Get("page") == "2":
			// Overlaps page one; dupes must be skipped.
			fmt.Fprint(w, listJSON(15, 16, 17, 18, 19, 20, 21, 22, 23, 24, 25, 26))
		case r.URL.Path == "/movie/popular":
			fmt.Fprint(w, listJSON(1, 2, 30, 31, 32, 33, 34, 35, 36, 37, 38, 39))
		default:
			t.Errorf("unexpected request %s?%s", r.URL.Path, r.URL.RawQuery)
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL))
	ids, err := c.Candidates(context.Background(), 100, 50)
	if err != nil {
		t.Fatalf("Candidates: %v", err)
	}

	if len(ids) != 35 {
		t.Fatalf("len(ids) = %d, want 35", len(ids))
	}
	if ids[0] != 1 || ids[14] != 15 {
		t.Errorf("similar page one not taken in order: %v", ids[:15])
	}
	seen := map[int]bool{}
	for _, id := range ids {
		if id == 100 {
			t.Error("query movie present in candidates")
		}
		if seen[id] {
			t.Errorf("duplicate candidate %d", id)
		}
		seen[id] = true
	}
}

func TestCandidatesRespectsLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, listJSON(1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12))
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL))
	ids, err := c.Candidates(context.Background(), 100, 5)
	if err != nil {
		t.Fatalf("Candidates: %v", err)
	}
	if len(ids) != 5 {
		t.Errorf("len(ids) = %d, want 5", len(ids))
	}
}

func TestCandidatesPartialPool(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			fmt.Fprint(w, listJSON(1, 2, 3))
			return
		}
		http.Error(w, "upstream error", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL))
	ids, err := c.Candidates(context.Background(), 100, 50)
	if err != nil {
		t.Fatalf("Candidates with partial pool: %v", err)
	}
	if len(ids) != 3 {
		t.Errorf("len(ids) = %d, want 3", len(ids))
	}
}
