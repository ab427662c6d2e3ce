// Package imdb fetches title metadata from IMDb. The primary stage pulls
// the JSON-LD block embedded in the title page; when IMDb blocks the
// page, the public suggestion endpoint supplies a minimal record.
package imdb

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/xwell/ptgen/internal/fallback"
	"github.com/xwell/ptgen/internal/mediainfo"
	"github.com/xwell/ptgen/internal/upstream"
	"github.com/xwell/ptgen/provider"
)

const (
	defaultWebBase     = "https://www.imdb.com"
	defaultSuggestBase = "https://v2.sg.media-imdb.com"

	pageTimeout    = 15 * time.Second
	suggestTimeout = 5 * time.Second
)

type Provider struct {
	client      *upstream.Client
	log         zerolog.Logger
	webBase     string
	suggestBase string
}

type Option func(*Provider)

// WithBaseURLs overrides both upstream hosts, used by tests.
func WithBaseURLs(web, suggest string) Option {
	return func(p *Provider) { p.webBase, p.suggestBase = web, suggest }
}

func New(client *upstream.Client, log zerolog.Logger, opts ...Option) *Provider {
	p := &Provider{
		client:      client,
		log:         log.With().Str("provider", "imdb").Logger(),
		webBase:     defaultWebBase,
		suggestBase: defaultSuggestBase,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *Provider) Descriptor() *provider.Descriptor {
	return &provider.Descriptor{
		Provider:  p,
		Domains:   []string{"imdb.com"},
		IDPattern: regexp.MustCompile(`/title/(tt\d+)`),
	}
}

func (p *Provider) Name() string { return "imdb" }

func (p *Provider) Fetch(ctx context.Context, sid string) (*mediainfo.Record, error) {
	if !strings.HasPrefix(sid, "tt") {
		sid = "tt" + sid
	}
	stages := []fallback.Stage[*mediainfo.Record]{
		fallback.One("jsonld", pageTimeout, func(ctx context.Context) (*mediainfo.Record, error) {
			return p.fetchPage(ctx, sid)
		}),
		fallback.One("suggest", suggestTimeout, func(ctx context.Context) (*mediainfo.Record, error) {
			return p.fetchSuggest(ctx, sid)
		}),
	}
	return fallback.ResolveOne(ctx, p.log, stages)
}

// titleLD is the subset of the title page's JSON-LD block we map.
type titleLD struct {
	Type          string `json:"@type"`
	Name          string `json:"name"`
	AlternateName string `json:"alternateName"`
	Image         string `json:"image"`
	Description   string `json:"description"`
	DatePublished string `json:"datePublished"`
	Genre         any    `json:"genre"`
	Duration      string `json:"duration"`
	AggregateRating struct {
		RatingValue float64 `json:"ratingValue"`
		RatingCount int     `json:"ratingCount"`
	} `json:"aggregateRating"`
	Director []creditLD `json:"director"`
	Actor    []creditLD `json:"actor"`
}

type creditLD struct {
	Name string `json:"name"`
}

var ldBlock = regexp.MustCompile(`(?s)<script type="application/ld\+json">(.*?)</script>`)

func (p *Provider) fetchPage(ctx context.Context, sid string) (*mediainfo.Record, error) {
	body, err := p.client.GetBody(ctx, fmt.Sprintf("%s/title/%s/", p.webBase, sid), nil)
	if err != nil {
		return nil, err
	}
	m := ldBlock.FindSubmatch(body)
	if m == nil {
		return nil, mediainfo.Upstreamf("imdb page has no structured data block")
	}
	var ld titleLD
	if err := json.Unmarshal(m[1], &ld); err != nil {
		return nil, mediainfo.UpstreamWrap(err, "malformed imdb structured data")
	}
	if ld.Name == "" {
		return nil, nil
	}

	rec := mediainfo.New("imdb", sid)
	rec.Set("name", ld.Name)
	rec.Set("aka", ld.AlternateName)
	rec.Set("poster", ld.Image)
	rec.Set("details", ld.Description)
	rec.Set("year", yearOf(ld.DatePublished))
	rec.Set("genre", genreList(ld.Genre))
	rec.Set("duration", ld.Duration)
	if ld.AggregateRating.RatingValue > 0 {
		rec.Set("imdb_rating", fmt.Sprintf("%.1f/10 from %d users", ld.AggregateRating.RatingValue, ld.AggregateRating.RatingCount))
	}
	rec.Set("director", creditNames(ld.Director))
	rec.Set("cast", creditNames(ld.Actor))
	rec.Set("imdb_link", fmt.Sprintf("https://www.imdb.com/title/%s/", sid))
	return rec, nil
}

type suggestResponse struct {
	D []suggestItem `json:"d"`
}

type suggestItem struct {
	ID    string `json:"id"`
	Label string `json:"l"`
	Year  int    `json:"y"`
	Kind  string `json:"q"`
	Stars string `json:"s"`
	Image struct {
		URL string `json:"imageUrl"`
	} `json:"i"`
}

func (p *Provider) fetchSuggest(ctx context.Context, sid string) (*mediainfo.Record, error) {
	items, err := p.suggest(ctx, sid)
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		if item.ID != sid {
			continue
		}
		rec := mediainfo.New("imdb", sid)
		rec.Set("name", item.Label)
		if item.Year > 0 {
			rec.Set("year", fmt.Sprintf("%d", item.Year))
		}
		rec.Set("poster", item.Image.URL)
		if item.Stars != "" {
			rec.Set("cast", strings.Split(item.Stars, ", "))
		}
		rec.Set("imdb_link", fmt.Sprintf("https://www.imdb.com/title/%s/", sid))
		return rec, nil
	}
	return nil, nil
}

func (p *Provider) suggest(ctx context.Context, q string) ([]suggestItem, error) {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return nil, nil
	}
	var resp suggestResponse
	u := fmt.Sprintf("%s/suggestion/%s/%s.json", p.suggestBase, q[:1], url.PathEscape(q))
	if err := p.client.GetJSON(ctx, u, nil, &resp); err != nil {
		return nil, err
	}
	return resp.D, nil
}

// Search implements provider.Searcher.
func (p *Provider) Search(ctx context.Context, query string) ([]mediainfo.SearchResult, error) {
	items, err := p.suggest(ctx, query)
	if err != nil {
		return nil, err
	}
	results := make([]mediainfo.SearchResult, 0, len(items))
	for _, item := range items {
		if !strings.HasPrefix(item.ID, "tt") {
			continue
		}
		year := ""
		if item.Year > 0 {
			year = fmt.Sprintf("%d", item.Year)
		}
		results = append(results, mediainfo.SearchResult{
			Source:   "imdb",
			SID:      item.ID,
			Title:    item.Label,
			Subtitle: item.Stars,
			Year:     year,
			Subtype:  item.Kind,
			Link:     fmt.Sprintf("https://www.imdb.com/title/%s/", item.ID),
		})
	}
	return results, nil
}

func yearOf(date string) string {
	if len(date) >= 4 {
		return date[:4]
	}
	return ""
}

// genreList tolerates JSON-LD's habit of using either a string or a list.
func genreList(v any) []string {
	switch g := v.(type) {
	case string:
		return []string{g}
	case []any:
		out := make([]string, 0, len(g))
		for _, e := range g {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func creditNames(credits []creditLD) []string {
	out := make([]string, 0, len(credits))
	for _, c := range credits {
		if c.Name != "" {
			out = append(out, c.Name)
		}
	}
	return out
}
