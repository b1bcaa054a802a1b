// Package movielens reads the MovieLens ratings dataset for the offline
// CF model build. The CSV files are queried through an in-memory DuckDB
// instance: read_csv_auto handles the parsing and the pruning join runs
// as SQL, so the Go side only streams already-filtered triples.
//
// Structural problems with the dataset (missing files, missing columns)
// are fatal to the build; they never reach a live scoring request.
package movielens

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/cinemind/cinemind/internal/logging"
	"github.com/cinemind/cinemind/internal/recommend/cf"
)

// Dataset wraps a MovieLens directory containing ratings.csv and
// links.csv.
type Dataset struct {
	dir string
	db  *sql.DB
}

// Open validates the dataset directory and opens the DuckDB session.
func Open(dir string) (*Dataset, error) {
	for _, name := range []string{"ratings.csv", "links.csv"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			return nil, fmt.Errorf("movielens: dataset file %s: %w", name, err)
		}
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("movielens: opening duckdb: %w", err)
	}
	return &Dataset{dir: dir, db: db}, nil
}

// Close releases the DuckDB session.
func (d *Dataset) Close() error {
	return d.db.Close()
}

// Ratings streams (user, movie, rating) triples for items with at least
// minItemRatings ratings. Rows come back ordered by movie id then user
// id so the downstream build is reproducible.
func (d *Dataset) Ratings(ctx context.Context, minItemRatings int) ([]cf.Rating, error) {
	query := `
		WITH kept AS (
			SELECT movieId
			FROM read_csv_auto(?)
			GROUP BY movieId
			HAVING count(*) >= ?
		)
		SELECT r.userId, r.movieId, r.rating
		FROM read_csv_auto(?) r
		JOIN kept k ON k.movieId = r.movieId
		ORDER BY r.movieId, r.userId`

	path := filepath.Join(d.dir, "ratings.csv")
	rows, err := d.db.QueryContext(ctx, query, path, minItemRatings, path)
	if err != nil {
		return nil, fmt.Errorf("movielens: querying ratings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ratings []cf.Rating
	for rows.Next() {
		var r cf.Rating
		if err := rows.Scan(&r.UserID, &r.MovieID, &r.Rating); err != nil {
			return nil, fmt.Errorf("movielens: scanning rating row: %w", err)
		}
		ratings = append(ratings, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("movielens: reading ratings: %w", err)
	}

	logger := logging.Component("movielens")
	logger.Info().
		Int("ratings", len(ratings)).
		Int("min_item_ratings", minItemRatings).
		Msg("ratings loaded")
	return ratings, nil
}

// Links returns the MovieLens movie id to TMDB id cross-reference.
// Rows without a TMDB id are dropped.
func (d *Dataset) Links(ctx context.Context) (map[int]int, error) {
	query := `
		SELECT movieId, tmdbId
		FROM read_csv_auto(?)
		WHERE tmdbId IS NOT NULL`

	rows, err := d.db.QueryContext(ctx, query, filepath.Join(d.dir, "links.csv"))
	if err != nil {
		return nil, fmt.Errorf("movielens: querying links: %w", err)
	}
	defer func() { _ = rows.Close() }()

	links := make(map[int]int)
	for rows.Next() {
		var movieID, tmdbID int
		if err := rows.Scan(&movieID, &tmdbID); err != nil {
			return nil, fmt.Errorf("movielens: scanning link row: %w", err)
		}
		links[movieID] = tmdbID
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("movielens: reading links: %w", err)
	}
	return links, nil
}
