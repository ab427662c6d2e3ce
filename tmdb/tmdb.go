// Package tmdb fetches movie and TV metadata from the TMDB v3 API. TMDB
// ids live in two parallel numeric spaces, so every fetch carries a
// movie/tv namespace; the router guarantees it is present.
package tmdb

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/xwell/ptgen/internal/mediainfo"
	"github.com/xwell/ptgen/internal/upstream"
	"github.com/xwell/ptgen/provider"
)

const (
	defaultAPIBase = "https://api.themoviedb.org/3"
	fetchTimeout   = 10 * time.Second
)

type Provider struct {
	client  *upstream.Client
	log     zerolog.Logger
	apiKey  string
	apiBase string
}

type Option func(*Provider)

// WithBaseURL overrides the API host, used by tests.
func WithBaseURL(base string) Option {
	return func(p *Provider) { p.apiBase = base }
}

func New(client *upstream.Client, apiKey string, log zerolog.Logger, opts ...Option) *Provider {
	p := &Provider{
		client:  client,
		log:     log.With().Str("provider", "tmdb").Logger(),
		apiKey:  apiKey,
		apiBase: defaultAPIBase,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *Provider) Descriptor() *provider.Descriptor {
	return &provider.Descriptor{
		Provider:  p,
		Domains:   []string{"themoviedb.org"},
		IDPattern: regexp.MustCompile(`/(movie|tv)/(\d+)`),
		// The URL encodes the id space positionally; rebuild the
		// composite id the fetcher expects.
		ReshapeID: func(m []string) string { return m[1] + "/" + m[2] },
	}
}

func (p *Provider) Name() string { return "tmdb" }

type detailResponse struct {
	Title         string  `json:"title"`
	Name          string  `json:"name"` // tv uses name, movie uses title
	OriginalTitle string  `json:"original_title"`
	OriginalName  string  `json:"original_name"`
	Overview      string  `json:"overview"`
	ReleaseDate   string  `json:"release_date"`
	FirstAirDate  string  `json:"first_air_date"`
	PosterPath    string  `json:"poster_path"`
	VoteAverage   float64 `json:"vote_average"`
	VoteCount     int     `json:"vote_count"`
	Runtime       int     `json:"runtime"`
	NumEpisodes   int     `json:"number_of_episodes"`
	Genres        []struct {
		Name string `json:"name"`
	} `json:"genres"`
	ExternalIDs struct {
		IMDBID string `json:"imdb_id"`
	} `json:"external_ids"`
	Credits struct {
		Cast []struct {
			Name string `json:"name"`
		} `json:"cast"`
		Crew []struct {
			Name string `json:"name"`
			Job  string `json:"job"`
		} `json:"crew"`
	} `json:"credits"`
}

// Fetch expects a composite "movie/603" or "tv/1396" sid.
func (p *Provider) Fetch(ctx context.Context, sid string) (*mediainfo.Record, error) {
	ns, id, ok := strings.Cut(sid, "/")
	if !ok || (ns != "movie" && ns != "tv") {
		return nil, mediainfo.Validationf("tmdb id %q is missing its movie/tv namespace", sid)
	}
	if p.apiKey == "" {
		return nil, mediainfo.Upstreamf("tmdb api key not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	var resp detailResponse
	u := fmt.Sprintf("%s/%s/%s?api_key=%s&append_to_response=credits,external_ids",
		p.apiBase, ns, url.PathEscape(id), url.QueryEscape(p.apiKey))
	if err := p.client.GetJSON(ctx, u, nil, &resp); err != nil {
		return nil, err
	}

	rec := mediainfo.New("tmdb", sid)
	rec.Set("type", ns)
	rec.Set("name", firstOf(resp.Title, resp.Name))
	rec.Set("original_name", firstOf(resp.OriginalTitle, resp.OriginalName))
	rec.Set("details", resp.Overview)
	rec.Set("year", yearOf(firstOf(resp.ReleaseDate, resp.FirstAirDate)))
	if resp.PosterPath != "" {
		rec.Set("poster", "https://image.tmdb.org/t/p/original"+resp.PosterPath)
	}
	if resp.VoteAverage > 0 {
		rec.Set("tmdb_rating", fmt.Sprintf("%.1f/10 from %d users", resp.VoteAverage, resp.VoteCount))
	}
	if resp.Runtime > 0 {
		rec.Set("duration", fmt.Sprintf("%d min", resp.Runtime))
	}
	if resp.NumEpisodes > 0 {
		rec.Set("episodes", fmt.Sprintf("%d", resp.NumEpisodes))
	}
	genres := make([]string, 0, len(resp.Genres))
	for _, g := range resp.Genres {
		genres = append(genres, g.Name)
	}
	rec.Set("genre", genres)
	var directors, cast []string
	for _, c := range resp.Credits.Crew {
		if c.Job == "Director" {
			directors = append(directors, c.Name)
		}
	}
	for i, c := range resp.Credits.Cast {
		if i >= 10 {
			break
		}
		cast = append(cast, c.Name)
	}
	rec.Set("director", directors)
	rec.Set("cast", cast)
	if resp.ExternalIDs.IMDBID != "" {
		rec.Set("imdb_id", resp.ExternalIDs.IMDBID)
		rec.Set("imdb_link", fmt.Sprintf("https://www.imdb.com/title/%s/", resp.ExternalIDs.IMDBID))
	}
	rec.Set("tmdb_link", fmt.Sprintf("https://www.themoviedb.org/%s/%s", ns, id))
	return rec, nil
}

func firstOf(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func yearOf(date string) string {
	if len(date) >= 4 {
		return date[:4]
	}
	return ""
}
