// Package douban fetches and renders movie/series metadata from Douban.
// Douban blocks aggressively, so the fetch degrades through three stages:
// the subject-abstract endpoint, the mobile rendering API, and finally
// the suggest endpoint, which yields a minimal record.
package douban

import (
	"context"
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
	defaultWebBase    = "https://movie.douban.com"
	defaultMobileBase = "https://m.douban.com"

	abstractTimeout = 10 * time.Second
	mobileTimeout   = 10 * time.Second
	suggestTimeout  = 5 * time.Second
)

type Provider struct {
	client     *upstream.Client
	log        zerolog.Logger
	webBase    string
	mobileBase string
}

type Option func(*Provider)

// WithBaseURLs overrides both upstream hosts, used by tests.
func WithBaseURLs(web, mobile string) Option {
	return func(p *Provider) { p.webBase, p.mobileBase = web, mobile }
}

func New(client *upstream.Client, log zerolog.Logger, opts ...Option) *Provider {
	p := &Provider{
		client:     client,
		log:        log.With().Str("provider", "douban").Logger(),
		webBase:    defaultWebBase,
		mobileBase: defaultMobileBase,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Descriptor returns the registry entry for URL-mode dispatch.
func (p *Provider) Descriptor() *provider.Descriptor {
	return &provider.Descriptor{
		Provider:  p,
		Domains:   []string{"douban.com"},
		IDPattern: regexp.MustCompile(`/subject/(\d+)`),
	}
}

func (p *Provider) Name() string { return "douban" }

// Fetch runs the degradation chain for one subject id.
func (p *Provider) Fetch(ctx context.Context, sid string) (*mediainfo.Record, error) {
	stages := []fallback.Stage[*mediainfo.Record]{
		fallback.One("abstract", abstractTimeout, func(ctx context.Context) (*mediainfo.Record, error) {
			return p.fetchAbstract(ctx, sid)
		}),
		fallback.One("mobile", mobileTimeout, func(ctx context.Context) (*mediainfo.Record, error) {
			return p.fetchMobile(ctx, sid)
		}),
		fallback.One("suggest", suggestTimeout, func(ctx context.Context) (*mediainfo.Record, error) {
			return p.fetchSuggest(ctx, sid)
		}),
	}
	return fallback.ResolveOne(ctx, p.log, stages)
}

type abstractResponse struct {
	Subject struct {
		Title       string   `json:"title"`
		Rate        string   `json:"rate"`
		ReleaseYear string   `json:"release_year"`
		Region      string   `json:"region"`
		Types       []string `json:"types"`
		Duration    string   `json:"duration"`
		Directors   []string `json:"directors"`
		Actors      []string `json:"actors"`
		Cover       string   `json:"cover"`
		EpisodesCnt int      `json:"episodes_count"`
		ShortIntro  string   `json:"short_comment,omitempty"`
	} `json:"subject"`
}

func (p *Provider) fetchAbstract(ctx context.Context, sid string) (*mediainfo.Record, error) {
	var resp abstractResponse
	u := fmt.Sprintf("%s/j/subject_abstract?subject_id=%s", p.webBase, url.QueryEscape(sid))
	if err := p.client.GetJSON(ctx, u, p.headers(), &resp); err != nil {
		return nil, err
	}
	if resp.Subject.Title == "" {
		return nil, nil
	}

	rec := mediainfo.New("douban", sid)
	rec.Set("chinese_title", resp.Subject.Title)
	rec.Set("year", resp.Subject.ReleaseYear)
	rec.Set("region", resp.Subject.Region)
	rec.Set("genre", resp.Subject.Types)
	rec.Set("duration", resp.Subject.Duration)
	rec.Set("director", resp.Subject.Directors)
	rec.Set("cast", resp.Subject.Actors)
	rec.Set("poster", resp.Subject.Cover)
	rec.Set("douban_rating", resp.Subject.Rate)
	if resp.Subject.EpisodesCnt > 0 {
		rec.Set("episodes", fmt.Sprintf("%d", resp.Subject.EpisodesCnt))
	}
	rec.Set("douban_link", fmt.Sprintf("https://movie.douban.com/subject/%s/", sid))
	return rec, nil
}

type mobileResponse struct {
	Title    string `json:"title"`
	Intro    string `json:"intro"`
	Year     string `json:"year"`
	Subtype  string `json:"subtype"`
	Rating   struct {
		Value float64 `json:"value"`
		Count int     `json:"count"`
	} `json:"rating"`
	Pic struct {
		Large string `json:"large"`
	} `json:"pic"`
	Genres    []string `json:"genres"`
	Countries []string `json:"countries"`
	Languages []string `json:"languages"`
	Pubdate   []string `json:"pubdate"`
	Directors []person `json:"directors"`
	Actors    []person `json:"actors"`
}

type person struct {
	Name string `json:"name"`
}

func (p *Provider) fetchMobile(ctx context.Context, sid string) (*mediainfo.Record, error) {
	var resp mobileResponse
	u := fmt.Sprintf("%s/rexxar/api/v2/movie/%s?for_mobile=1", p.mobileBase, url.PathEscape(sid))
	headers := p.headers()
	headers["Referer"] = fmt.Sprintf("https://m.douban.com/movie/subject/%s/", sid)
	if err := p.client.GetJSON(ctx, u, headers, &resp); err != nil {
		return nil, err
	}
	if resp.Title == "" {
		return nil, nil
	}

	rec := mediainfo.New("douban", sid)
	rec.Set("chinese_title", resp.Title)
	rec.Set("year", resp.Year)
	rec.Set("introduction", resp.Intro)
	rec.Set("genre", resp.Genres)
	rec.Set("region", strings.Join(resp.Countries, " / "))
	rec.Set("language", strings.Join(resp.Languages, " / "))
	rec.Set("playdate", resp.Pubdate)
	rec.Set("poster", resp.Pic.Large)
	if resp.Rating.Value > 0 {
		rec.Set("douban_rating", fmt.Sprintf("%.1f/10 from %d users", resp.Rating.Value, resp.Rating.Count))
	}
	rec.Set("director", names(resp.Directors))
	rec.Set("cast", names(resp.Actors))
	rec.Set("douban_link", fmt.Sprintf("https://movie.douban.com/subject/%s/", sid))
	return rec, nil
}

func names(people []person) []string {
	out := make([]string, 0, len(people))
	for _, p := range people {
		out = append(out, p.Name)
	}
	return out
}

type suggestItem struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	SubTitle string `json:"sub_title"`
	Year     string `json:"year"`
	Type     string `json:"type"`
	Img      string `json:"img"`
	URL      string `json:"url"`
}

// fetchSuggest is the minimal last resort: title, year, poster only.
func (p *Provider) fetchSuggest(ctx context.Context, sid string) (*mediainfo.Record, error) {
	items, err := p.suggest(ctx, sid)
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		if item.ID != sid {
			continue
		}
		rec := mediainfo.New("douban", sid)
		rec.Set("chinese_title", item.Title)
		rec.Set("foreign_title", item.SubTitle)
		rec.Set("year", item.Year)
		rec.Set("poster", item.Img)
		rec.Set("douban_link", fmt.Sprintf("https://movie.douban.com/subject/%s/", sid))
		return rec, nil
	}
	return nil, nil
}

func (p *Provider) suggest(ctx context.Context, q string) ([]suggestItem, error) {
	var items []suggestItem
	u := fmt.Sprintf("%s/j/subject_suggest?q=%s", p.webBase, url.QueryEscape(q))
	if err := p.client.GetJSON(ctx, u, p.headers(), &items); err != nil {
		return nil, err
	}
	return items, nil
}

// Search implements provider.Searcher via the suggest endpoint.
func (p *Provider) Search(ctx context.Context, query string) ([]mediainfo.SearchResult, error) {
	items, err := p.suggest(ctx, query)
	if err != nil {
		return nil, err
	}
	results := make([]mediainfo.SearchResult, 0, len(items))
	for _, item := range items {
		if item.ID == "" {
			continue
		}
		results = append(results, mediainfo.SearchResult{
			Source:   "douban",
			SID:      item.ID,
			Title:    item.Title,
			Subtitle: item.SubTitle,
			Year:     item.Year,
			Subtype:  item.Type,
			Link:     fmt.Sprintf("https://movie.douban.com/subject/%s/", item.ID),
		})
	}
	return results, nil
}

func (p *Provider) headers() map[string]string {
	return map[string]string{
		"Accept-Language": "zh-CN,zh;q=0.9,en;q=0.8",
	}
}
