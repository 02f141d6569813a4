// Package config loads the YAML configuration file shared by all
// subcommands.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/open-aviation/skyrebuild/internal/airports"
	"github.com/open-aviation/skyrebuild/internal/ingest"
	"github.com/open-aviation/skyrebuild/internal/source"
)

// Config is the top-level configuration.
type Config struct {
	ClickHouse source.ClickHouseConfig `yaml:"clickhouse"`
	Postgres   airports.Config         `yaml:"postgres"`
	Ingest     ingest.Config           `yaml:"ingest"`
	Cache      CacheConfig             `yaml:"cache"`
}

// CacheConfig controls the local query cache.
type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	Path    string        `yaml:"path"`
	MaxAge  time.Duration `yaml:"max_age"`
}

// UnmarshalYAML accepts max_age as a duration string ("2160h").
// Fields absent from the document keep their current values.
func (c *CacheConfig) UnmarshalYAML(value *yaml.Node) error {
	type plain struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
		MaxAge  string `yaml:"max_age"`
	}
	p := plain{Enabled: c.Enabled, Path: c.Path}
	if c.MaxAge > 0 {
		p.MaxAge = c.MaxAge.String()
	}
	if err := value.Decode(&p); err != nil {
		return err
	}
	c.Enabled = p.Enabled
	c.Path = p.Path
	if p.MaxAge != "" {
		d, err := time.ParseDuration(p.MaxAge)
		if err != nil {
			return fmt.Errorf("parse max_age: %w", err)
		}
		c.MaxAge = d
	}
	return nil
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		ClickHouse: source.ClickHouseConfig{
			Host:     "localhost",
			Port:     9000,
			Database: "default",
			User:     "default",
		},
		Postgres: airports.Config{
			Host:     "localhost",
			Port:     5432,
			Database: "skyrebuild",
			User:     "skyrebuild",
		},
		Ingest: ingest.Config{
			URL:           "nats://localhost:4222",
			Subject:       "modes.raw",
			Queue:         "skyrebuild",
			BatchSize:     1000,
			FlushInterval: 2 * time.Second,
		},
		Cache: CacheConfig{
			Enabled: true,
			Path:    "skyrebuild-cache.db",
		},
	}
}

// Load reads a YAML configuration file on top of the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
