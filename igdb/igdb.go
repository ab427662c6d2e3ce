// Package igdb fetches game metadata from IGDB's v4 API, which
// authenticates with Twitch OAuth2 client credentials.
package igdb

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/xwell/ptgen/internal/mediainfo"
	"github.com/xwell/ptgen/internal/upstream"
	"github.com/xwell/ptgen/provider"
)

const (
	defaultAPIBase = "https://api.igdb.com/v4"
	twitchTokenURL = "https://id.twitch.tv/oauth2/token"
	fetchTimeout   = 10 * time.Second
)

type Provider struct {
	client   *upstream.Client
	log      zerolog.Logger
	clientID string
	apiBase  string
}

type Option func(*Provider)

// WithBaseURL overrides the API host, used by tests.
func WithBaseURL(base string) Option {
	return func(p *Provider) { p.apiBase = base }
}

// WithHTTPClient bypasses the OAuth2 transport, used by tests.
func WithHTTPClient(h *http.Client) Option {
	return func(p *Provider) {
		p.client = upstream.New(fetchTimeout, upstream.WithHTTPClient(h))
	}
}

// New builds the provider with a token-refreshing OAuth2 transport; the
// clientcredentials flow fetches and renews the app token on demand.
func New(clientID, clientSecret string, log zerolog.Logger, opts ...Option) *Provider {
	cc := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     twitchTokenURL,
	}
	httpClient := cc.Client(context.Background())
	httpClient.Timeout = fetchTimeout

	p := &Provider{
		client:   upstream.New(fetchTimeout, upstream.WithHTTPClient(httpClient)),
		log:      log.With().Str("provider", "igdb").Logger(),
		clientID: clientID,
		apiBase:  defaultAPIBase,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *Provider) Descriptor() *provider.Descriptor {
	return &provider.Descriptor{
		Provider:  p,
		Domains:   []string{"igdb.com"},
		IDPattern: regexp.MustCompile(`/games/([a-z0-9][a-z0-9-]*)`),
	}
}

func (p *Provider) Name() string { return "igdb" }

type game struct {
	Name             string  `json:"name"`
	Slug             string  `json:"slug"`
	Summary          string  `json:"summary"`
	FirstReleaseDate int64   `json:"first_release_date"`
	Rating           float64 `json:"rating"`
	RatingCount      int     `json:"rating_count"`
	URL              string  `json:"url"`
	Cover            struct {
		URL string `json:"url"`
	} `json:"cover"`
	Genres []struct {
		Name string `json:"name"`
	} `json:"genres"`
	Platforms []struct {
		Name string `json:"name"`
	} `json:"platforms"`
	InvolvedCompanies []struct {
		Developer bool `json:"developer"`
		Company   struct {
			Name string `json:"name"`
		} `json:"company"`
	} `json:"involved_companies"`
}

const gameFields = "fields name,summary,first_release_date,rating,rating_count,url," +
	"cover.url,genres.name,platforms.name,involved_companies.developer,involved_companies.company.name;"

var numeric = regexp.MustCompile(`^\d+$`)

// Fetch accepts either a numeric IGDB id or a URL slug.
func (p *Provider) Fetch(ctx context.Context, sid string) (*mediainfo.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	where := fmt.Sprintf(`where slug = "%s";`, strings.ReplaceAll(sid, `"`, ""))
	if numeric.MatchString(sid) {
		where = fmt.Sprintf("where id = %s;", sid)
	}

	games, err := p.query(ctx, gameFields+" "+where)
	if err != nil {
		return nil, err
	}
	if len(games) == 0 {
		return nil, mediainfo.NotFoundf("igdb game %s not found", sid)
	}
	g := games[0]

	rec := mediainfo.New("igdb", sid)
	rec.Set("name", g.Name)
	rec.Set("details", g.Summary)
	if g.FirstReleaseDate > 0 {
		rec.Set("playdate", time.Unix(g.FirstReleaseDate, 0).UTC().Format("2006-01-02"))
	}
	if g.Rating > 0 {
		rec.Set("igdb_rating", fmt.Sprintf("%.0f/100 from %d users", g.Rating, g.RatingCount))
	}
	if g.Cover.URL != "" {
		// IGDB returns protocol-relative thumbnail URLs.
		cover := strings.Replace(g.Cover.URL, "t_thumb", "t_cover_big", 1)
		if strings.HasPrefix(cover, "//") {
			cover = "https:" + cover
		}
		rec.Set("poster", cover)
	}
	var genres, platforms, developers []string
	for _, ge := range g.Genres {
		genres = append(genres, ge.Name)
	}
	for _, pl := range g.Platforms {
		platforms = append(platforms, pl.Name)
	}
	for _, ic := range g.InvolvedCompanies {
		if ic.Developer {
			developers = append(developers, ic.Company.Name)
		}
	}
	rec.Set("genre", genres)
	rec.Set("platform", platforms)
	rec.Set("developer", developers)
	rec.Set("igdb_link", g.URL)
	return rec, nil
}

// Search implements provider.Searcher with IGDB's search clause.
func (p *Provider) Search(ctx context.Context, query string) ([]mediainfo.SearchResult, error) {
	q := strings.ReplaceAll(query, `"`, "")
	games, err := p.query(ctx, fmt.Sprintf(`fields name,first_release_date,url,slug; search "%s"; limit 15;`, q))
	if err != nil {
		return nil, err
	}
	results := make([]mediainfo.SearchResult, 0, len(games))
	for _, g := range games {
		year := ""
		if g.FirstReleaseDate > 0 {
			year = time.Unix(g.FirstReleaseDate, 0).UTC().Format("2006")
		}
		results = append(results, mediainfo.SearchResult{
			Source:  "igdb",
			SID:     g.Slug,
			Title:   g.Name,
			Year:    year,
			Subtype: "game",
			Link:    g.URL,
		})
	}
	return results, nil
}

func (p *Provider) query(ctx context.Context, body string) ([]game, error) {
	var games []game
	headers := map[string]string{"Client-ID": p.clientID}
	if err := p.client.PostJSON(ctx, p.apiBase+"/games", "text/plain", []byte(body), headers, &games); err != nil {
		return nil, err
	}
	return games, nil
}

// Format renders the description for an IGDB record.
func (p *Provider) Format(rec *mediainfo.Record) string {
	var b strings.Builder

	if poster := rec.Str("poster"); poster != "" {
		b.WriteString("[img]" + poster + "[/img]\n\n")
	}

	line(&b, "Name", rec.Str("name"))
	line(&b, "Release Date", rec.Str("playdate"))
	line(&b, "Developer", strings.Join(rec.StrSlice("developer"), " / "))
	line(&b, "Genre", strings.Join(rec.StrSlice("genre"), " / "))
	line(&b, "Platforms", strings.Join(rec.StrSlice("platform"), " / "))
	line(&b, "IGDB Rating", rec.Str("igdb_rating"))
	line(&b, "IGDB Link", rec.Str("igdb_link"))

	if details := rec.Str("details"); details != "" {
		b.WriteString("\nSummary\n\n" + details + "\n")
	}

	return strings.TrimRight(b.String(), "\n")
}

func line(b *strings.Builder, label, value string) {
	if value == "" {
		return
	}
	b.WriteString(label + ": " + value + "\n")
}
