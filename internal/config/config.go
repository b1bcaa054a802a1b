// Package config loads and validates the cinemind configuration.
//
// Configuration is merged from three layers, lowest priority first:
//
//  1. compiled-in defaults (defaultConfig)
//  2. an optional YAML file (config.yaml, or CINEMIND_CONFIG path)
//  3. CINEMIND_* environment variables (CINEMIND_SERVER_ADDR etc.)
package config

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the root configuration for the cinemind server and builder.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Log      LogConfig      `koanf:"log"`
	TMDB     TMDBConfig     `koanf:"tmdb"`
	Engine   EngineConfig   `koanf:"engine"`
	Model    ModelConfig    `koanf:"model"`
	Profiles ProfilesConfig `koanf:"profiles"`
	Builder  BuilderConfig  `koanf:"builder"`
}

// ServerConfig configures the HTTP API surface.
type ServerConfig struct {
	// Addr is the listen address.
	Addr string `koanf:"addr" validate:"required"`

	// ReadTimeout bounds request header+body reads.
	ReadTimeout time.Duration `koanf:"read_timeout" validate:"gt=0"`

	// WriteTimeout bounds response writes. Must cover a full scoring pass.
	WriteTimeout time.Duration `koanf:"write_timeout" validate:"gt=0"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`

	// RateLimit is requests per minute per client IP.
	RateLimit int `koanf:"rate_limit" validate:"gt=0"`

	// CORSOrigins lists allowed origins. Empty disables CORS headers.
	CORSOrigins []string `koanf:"cors_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json console"`
}

// TMDBConfig configures the movie metadata provider client.
type TMDBConfig struct {
	// BaseURL is the API root.
	BaseURL string `koanf:"base_url" validate:"required,url"`

	// APIKey authenticates requests. Required to serve.
	APIKey string `koanf:"api_key"`

	// Timeout bounds a single metadata request.
	Timeout time.Duration `koanf:"timeout" validate:"gt=0"`

	// RequestsPerSecond is the client-side rate limit.
	RequestsPerSecond float64 `koanf:"requests_per_second" validate:"gt=0"`

	// Burst is the rate limiter burst size.
	Burst int `koanf:"burst" validate:"gt=0"`

	// BreakerFailures trips the circuit breaker after this many
	// consecutive failures.
	BreakerFailures int `koanf:"breaker_failures" validate:"gt=0"`

	// BreakerCooldown is how long the breaker stays open.
	BreakerCooldown time.Duration `koanf:"breaker_cooldown" validate:"gt=0"`
}

// EngineConfig holds the scoring constants. The caps and thresholds are
// product constants; they are configurable but never varied per request.
type EngineConfig struct {
	// MinContentScore drops candidates whose boosted content score falls
	// below it. Hard product contract, default 0.30.
	MinContentScore float64 `koanf:"min_content_score" validate:"gte=0,lte=1"`

	// CFNeighborBoost is added when a candidate is a CF neighbor of the query.
	CFNeighborBoost float64 `koanf:"cf_neighbor_boost" validate:"gte=0,lte=1"`

	// CFNeighborTopN bounds how many CF neighbors of the query are considered.
	CFNeighborTopN int `koanf:"cf_neighbor_top_n" validate:"gt=0"`

	// PopularityCap normalizes the provider popularity scale for the
	// popularity boost.
	PopularityCap float64 `koanf:"popularity_cap" validate:"gt=0"`

	// MaxMovieAgeYears is the age beyond which low-rated movies are penalized.
	MaxMovieAgeYears int `koanf:"max_movie_age_years" validate:"gt=0"`

	// MaxCandidates caps the candidate set per request.
	MaxCandidates int `koanf:"max_candidates" validate:"gt=1,lte=100"`

	// FetchParallelism bounds concurrent metadata fetches.
	FetchParallelism int `koanf:"fetch_parallelism" validate:"gt=0"`

	// DefaultK is the result count when the request does not specify one.
	DefaultK int `koanf:"default_k" validate:"gt=0"`

	// MaxK bounds the requested result count.
	MaxK int `koanf:"max_k" validate:"gt=0"`

	// MaxVocabulary caps the TF-IDF vocabulary per request batch.
	MaxVocabulary int `koanf:"max_vocabulary" validate:"gt=0"`

	// MMREnabled turns on diversity reranking of the final list.
	// Disabled by default: it reorders the deterministic ranking contract.
	MMREnabled bool `koanf:"mmr_enabled"`

	// MMRLambda balances relevance vs. diversity when MMR is enabled.
	MMRLambda float64 `koanf:"mmr_lambda" validate:"gte=0,lte=1"`
}

// ModelConfig configures the CF model store.
type ModelConfig struct {
	// Dir is the model artifact directory.
	Dir string `koanf:"dir" validate:"required"`

	// ReloadInterval is how often the reload service checks for a newer
	// artifact version. Zero disables hot reload.
	ReloadInterval time.Duration `koanf:"reload_interval"`
}

// ProfilesConfig configures the user preference store.
type ProfilesConfig struct {
	// Dir is the Badger database directory.
	Dir string `koanf:"dir" validate:"required"`
}

// BuilderConfig holds the offline CF build defaults. CLI flags override them.
type BuilderConfig struct {
	// TopK is the number of neighbors retained per item.
	TopK int `koanf:"top_k" validate:"gt=0,lte=500"`

	// MinItemRatings prunes items with fewer ratings.
	MinItemRatings int `koanf:"min_item_ratings" validate:"gt=0"`

	// BlockSize is the number of item rows per similarity block.
	BlockSize int `koanf:"block_size" validate:"gte=100,lte=10000"`

	// Workers is the number of parallel workers within a block.
	// Zero means runtime.NumCPU().
	Workers int `koanf:"workers" validate:"gte=0"`
}

// defaultConfig returns the compiled-in defaults. These match the product
// constants documented for the engine; overriding the scoring constants
// changes ranking contracts and should be done deliberately.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8640",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			RateLimit:       120,
			CORSOrigins:     nil,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		TMDB: TMDBConfig{
			BaseURL:           "https://api.themoviedb.org/3",
			Timeout:           10 * time.Second,
			RequestsPerSecond: 20,
			Burst:             40,
			BreakerFailures:   5,
			BreakerCooldown:   30 * time.Second,
		},
		Engine: EngineConfig{
			MinContentScore:  0.30,
			CFNeighborBoost:  0.05,
			CFNeighborTopN:   50,
			PopularityCap:    1000,
			MaxMovieAgeYears: 25,
			MaxCandidates:    50,
			FetchParallelism: 8,
			DefaultK:         12,
			MaxK:             50,
			MaxVocabulary:    5000,
			MMREnabled:       false,
			MMRLambda:        0.7,
		},
		Model: ModelConfig{
			Dir:            "/data/models",
			ReloadInterval: 5 * time.Minute,
		},
		Profiles: ProfilesConfig{
			Dir: "/data/profiles",
		},
		Builder: BuilderConfig{
			TopK:           75,
			MinItemRatings: 10,
			BlockSize:      1000,
			Workers:        0,
		},
	}
}

// Validate checks structural constraints beyond what tags express.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}
	return c.validateRelations()
}
