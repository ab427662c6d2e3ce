package providers

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/xwell/ptgen/internal/config"
)

func TestBuildRegistryBaseSources(t *testing.T) {
	reg := BuildRegistry(&config.Config{}, zerolog.Nop())

	for _, name := range []string{"douban", "imdb", "bangumi", "steam"} {
		_, ok := reg.Get(name)
		assert.True(t, ok, "source %s must always register", name)
	}
	_, ok := reg.Get("tmdb")
	assert.False(t, ok, "tmdb requires an api key")
	_, ok = reg.Get("igdb")
	assert.False(t, ok, "igdb requires twitch credentials")
}

func TestBuildRegistryCredentialedSources(t *testing.T) {
	cfg := &config.Config{
		TMDB: config.TMDBConfig{APIKey: "k"},
		IGDB: config.IGDBConfig{ClientID: "id", ClientSecret: "secret"},
	}
	reg := BuildRegistry(cfg, zerolog.Nop())

	_, ok := reg.Get("tmdb")
	assert.True(t, ok)
	_, ok = reg.Get("igdb")
	assert.True(t, ok)
}
