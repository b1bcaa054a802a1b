// Package tmdb implements the movie metadata provider and candidate
// supplier against The Movie Database API v3.
//
// The client carries its own rate limiter and circuit breaker. The
// breaker uses real time for its recovery window; tests exercise the
// wrapped transport through httptest servers rather than the breaker.
package tmdb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/cinemind/cinemind/internal/config"
	"github.com/cinemind/cinemind/internal/logging"
	"github.com/cinemind/cinemind/internal/metrics"
	"github.com/cinemind/cinemind/internal/movie"
)

// ErrUnavailable is returned when the circuit breaker is open or the
// client-side rate limit cannot be satisfied within the request context.
var ErrUnavailable = errors.New("tmdb: provider unavailable")

// Client calls the TMDB API. It implements movie.MetadataProvider and
// movie.CandidateSupplier.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	cb         *gobreaker.CircuitBreaker[[]byte]
	logger     zerolog.Logger
}

var (
	_ movie.MetadataProvider  = (*Client)(nil)
	_ movie.CandidateSupplier = (*Client)(nil)
)

// NewClient builds a Client from configuration.
func NewClient(cfg *config.TMDBConfig) *Client {
	logger := logging.Component("tmdb")

	cb := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:    "tmdb-api",
		Timeout: cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(cfg.BreakerFailures)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state change")
		},
	})

	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		cb:         cb,
		logger:     logger,
	}
}

// statusError distinguishes HTTP status failures from transport failures.
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("tmdb: unexpected status %d", e.code)
}

// get performs a rate-limited, breaker-protected GET and returns the body.
func (c *Client) get(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	start := time.Now()
	body, err := c.cb.Execute(func() ([]byte, error) {
		return c.doGet(ctx, endpoint, params)
	})
	metrics.TMDBRequestLatency.WithLabelValues(endpointLabel(endpoint)).
		Observe(time.Since(start).Seconds())

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return nil, err
	}
	return body, nil
}

func (c *Client) doGet(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	if params == nil {
		params = url.Values{}
	}
	params.Set("api_key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("tmdb: building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tmdb: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &statusError{code: resp.StatusCode}
	}
	return io.ReadAll(resp.Body)
}

// endpointLabel collapses endpoint paths to a bounded metric label set.
func endpointLabel(endpoint string) string {
	switch {
	case strings.HasSuffix(endpoint, "/similar"):
		return "similar"
	case strings.HasSuffix(endpoint, "/popular"):
		return "popular"
	default:
		return "movie"
	}
}

// movieResponse is the detail payload with credits and keywords appended.
type movieResponse struct {
	ID          int     `json:"id"`
	Title       string  `json:"title"`
	ReleaseDate string  `json:"release_date"`
	Overview    string  `json:"overview"`
	VoteAverage float64 `json:"vote_average"`
	Popularity  float64 `json:"popularity"`
	Genres      []struct {
		Name string `json:"name"`
	} `json:"genres"`
	Credits struct {
		Cast []struct {
			Name  string `json:"name"`
			Order int    `json:"order"`
		} `json:"cast"`
		Crew []struct {
			Name string `json:"name"`
			Job  string `json:"job"`
		} `json:"crew"`
	} `json:"credits"`
	Keywords struct {
		Keywords []struct {
			Name string `json:"name"`
		} `json:"keywords"`
	} `json:"keywords"`
}

// GetMovie fetches full metadata for one movie. A 404 maps to
// movie.ErrNotFound so callers can skip missing candidates.
func (c *Client) GetMovie(ctx context.Context, id int) (*movie.Record, error) {
	params := url.Values{}
	params.Set("append_to_response", "credits,keywords")

	body, err := c.get(ctx, "/movie/"+strconv.Itoa(id), params)
	if err != nil {
		var se *statusError
		if errors.As(err, &se) && se.code == http.StatusNotFound {
			return nil, movie.ErrNotFound
		}
		return nil, err
	}

	var mr movieResponse
	if err := json.Unmarshal(body, &mr); err != nil {
		return nil, fmt.Errorf("tmdb: decoding movie %d: %w", id, err)
	}
	return recordFromResponse(&mr), nil
}

// recordFromResponse flattens the API payload into the internal Record.
// Cast keeps the first movie.TopCast members in billing order; Crew keeps
// writers and producers, and the first crew member with job Director
// becomes the director.
func recordFromResponse(mr *movieResponse) *movie.Record {
	rec := &movie.Record{
		ID:         mr.ID,
		Title:      mr.Title,
		Overview:   mr.Overview,
		Rating:     mr.VoteAverage,
		Popularity: mr.Popularity,
	}

	if len(mr.ReleaseDate) >= 4 {
		if y, err := strconv.Atoi(mr.ReleaseDate[:4]); err == nil {
			rec.Year = y
		}
	}

	for _, g := range mr.Genres {
		rec.Genres = append(rec.Genres, g.Name)
	}

	for _, cm := range mr.Credits.Cast {
		if cm.Order < movie.TopCast {
			rec.Cast = append(rec.Cast, cm.Name)
		}
	}

	for _, cw := range mr.Credits.Crew {
		switch cw.Job {
		case "Director":
			if rec.Director == "" {
				rec.Director = cw.Name
			}
		case "Writer", "Screenplay", "Producer":
			rec.Crew = append(rec.Crew, cw.Name)
		}
	}

	for _, kw := range mr.Keywords.Keywords {
		rec.Keywords = append(rec.Keywords, kw.Name)
	}
	return rec
}

// listResponse is the shared payload shape of /similar and /popular.
type listResponse struct {
	Results []struct {
		ID int `json:"id"`
	} `json:"results"`
}

// Candidates assembles the candidate pool for a query movie: two pages
// of similar titles plus a slice of currently popular ones, deduplicated,
// with the query itself removed. Order is preserved: similar first.
func (c *Client) Candidates(ctx context.Context, queryID, limit int) ([]int, error) {
	type page struct {
		endpoint string
		pageNum  int
		take     int
	}
	pages := []page{
		{"/movie/" + strconv.Itoa(queryID) + "/similar", 1, 15},
		{"/movie/" + strconv.Itoa(queryID) + "/similar", 2, 10},
		{"/movie/popular", 1, 10},
	}

	seen := map[int]bool{queryID: true}
	var ids []int
	for _, p := range pages {
		params := url.Values{}
		params.Set("page", strconv.Itoa(p.pageNum))

		body, err := c.get(ctx, p.endpoint, params)
		if err != nil {
			var se *statusError
			if errors.As(err, &se) && se.code == http.StatusNotFound {
				continue
			}
			// A partial pool is still usable if earlier pages landed.
			if len(ids) > 0 {
				c.logger.Warn().Err(err).
					Str("endpoint", p.endpoint).
					Msg("candidate page failed, continuing with partial pool")
				continue
			}
			return nil, err
		}

		var lr listResponse
		if err := json.Unmarshal(body, &lr); err != nil {
			return nil, fmt.Errorf("tmdb: decoding candidate page: %w", err)
		}

		taken := 0
		for _, r := range lr.Results {
			if taken >= p.take || len(ids) >= limit {
				break
			}
			if seen[r.ID] {
				continue
			}
			seen[r.ID] = true
			ids = append(ids, r.ID)
			taken++
		}
		if len(ids) >= limit {
			break
		}
	}
	return ids, nil
}
