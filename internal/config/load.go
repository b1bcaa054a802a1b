package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "CINEMIND_"

// Load builds the configuration from defaults, an optional YAML file and
// CINEMIND_* environment variables, then validates the merged result.
//
// path may be empty; the file is then only read if it exists at the
// default location. A non-empty path that cannot be read is an error.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("config: loading defaults: %w", err)
	}

	explicit := path != ""
	if !explicit {
		path = "config.yaml"
	}
	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: loading %s: %w", path, err)
		}
	} else if explicit {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("config: loading environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshaling: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation: %w", err)
	}
	return &cfg, nil
}

// envKey maps CINEMIND_SERVER_READ_TIMEOUT to server.read_timeout.
// Only the first underscore separates the section from the key; the
// rest of the name is the key itself.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
	section, key, ok := strings.Cut(s, "_")
	if !ok {
		return s
	}
	return section + "." + key
}

// validateRelations checks cross-field constraints.
func (c *Config) validateRelations() error {
	if c.Engine.DefaultK > c.Engine.MaxK {
		return fmt.Errorf("config: engine.default_k %d exceeds engine.max_k %d",
			c.Engine.DefaultK, c.Engine.MaxK)
	}
	if c.Engine.MaxK > c.Engine.MaxCandidates {
		return fmt.Errorf("config: engine.max_k %d exceeds engine.max_candidates %d",
			c.Engine.MaxK, c.Engine.MaxCandidates)
	}
	return nil
}
