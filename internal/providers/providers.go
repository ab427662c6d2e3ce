// Package providers assembles the source registry from deployment
// configuration. Sources without credentials are always on; credentialed
// sources register only when their config is complete.
package providers

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/xwell/ptgen/bangumi"
	"github.com/xwell/ptgen/douban"
	"github.com/xwell/ptgen/igdb"
	"github.com/xwell/ptgen/imdb"
	"github.com/xwell/ptgen/internal/config"
	"github.com/xwell/ptgen/internal/upstream"
	"github.com/xwell/ptgen/provider"
	"github.com/xwell/ptgen/steam"
	"github.com/xwell/ptgen/tmdb"
)

// upstreamTimeout is the outer bound per upstream call; providers apply
// tighter per-stage deadlines inside their fallback chains.
const upstreamTimeout = 30 * time.Second

// BuildRegistry registers every available source. Registration order is
// URL-match precedence.
func BuildRegistry(cfg *config.Config, log zerolog.Logger) *provider.Registry {
	client := upstream.New(upstreamTimeout)

	reg := provider.NewRegistry()
	reg.Register(douban.New(client, log).Descriptor())
	reg.Register(imdb.New(client, log).Descriptor())
	reg.Register(bangumi.New(client, log).Descriptor())
	reg.Register(steam.New(client, log).Descriptor())
	if cfg.HasTMDB() {
		reg.Register(tmdb.New(client, cfg.TMDB.APIKey, log).Descriptor())
	}
	if cfg.HasIGDB() {
		reg.Register(igdb.New(cfg.IGDB.ClientID, cfg.IGDB.ClientSecret, log).Descriptor())
	}
	return reg
}
