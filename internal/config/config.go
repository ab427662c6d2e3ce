// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all application configuration
type Config struct {
	Port        string `env:"PORT" envDefault:"8080"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	RedisAddr   string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	DatabaseURL string `env:"DATABASE_URL"`

	// APIKey, when set, is required on every non-internal request.
	APIKey string `env:"PTGEN_APIKEY"`
	// InternalToken marks trusted internal traffic that bypasses auth.
	InternalToken string `env:"PTGEN_INTERNAL_TOKEN"`
	Author        string `env:"PTGEN_AUTHOR" envDefault:"PT-Gen"`

	Cache CacheConfig `envPrefix:"CACHE_"`
	TMDB  TMDBConfig  `envPrefix:"TMDB_"`
	IGDB  IGDBConfig  `envPrefix:"IGDB_"`
}

// CacheConfig controls the two-tier cache.
type CacheConfig struct {
	Enabled bool `env:"ENABLED" envDefault:"true"`
	// BypassSources lists sources that are never cached even when the
	// tiers are up (volatile data, or upstream terms that disfavor caching).
	BypassSources []string      `env:"BYPASS_SOURCES" envSeparator:","`
	RefreshAfter  time.Duration `env:"REFRESH_AFTER" envDefault:"72h"`
	// ObjectTTL bounds the fast tier; the durable tier never expires and
	// ages out through background refresh instead.
	ObjectTTL time.Duration `env:"OBJECT_TTL" envDefault:"24h"`
	// SingleFlight deduplicates concurrent misses for the same key.
	SingleFlight bool `env:"SINGLE_FLIGHT" envDefault:"false"`
}

// TMDBConfig holds TMDB API credentials.
type TMDBConfig struct {
	APIKey string `env:"APIKEY"`
}

// IGDBConfig holds the Twitch client credentials IGDB authenticates with.
type IGDBConfig struct {
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// HasTMDB returns true if TMDB configuration is complete
func (c *Config) HasTMDB() bool {
	return c.TMDB.APIKey != ""
}

// HasIGDB returns true if IGDB configuration is complete
func (c *Config) HasIGDB() bool {
	return c.IGDB.ClientID != "" && c.IGDB.ClientSecret != ""
}

// CacheBypassed reports whether caching is disabled for the given source.
func (c *Config) CacheBypassed(source string) bool {
	if !c.Cache.Enabled {
		return true
	}
	for _, s := range c.Cache.BypassSources {
		if s == source {
			return true
		}
	}
	return false
}
