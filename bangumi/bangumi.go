// Package bangumi fetches anime/game subject metadata from bgm.tv via
// its public v0 API. Also serves as the secondary CJK search provider.
package bangumi

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
	defaultAPIBase = "https://api.bgm.tv"
	fetchTimeout   = 10 * time.Second
)

// subjectTypes maps the API's numeric subject type.
var subjectTypes = map[int]string{
	1: "book",
	2: "anime",
	3: "music",
	4: "game",
	6: "real",
}

type Provider struct {
	client  *upstream.Client
	log     zerolog.Logger
	apiBase string
}

type Option func(*Provider)

// WithBaseURL overrides the API host, used by tests.
func WithBaseURL(base string) Option {
	return func(p *Provider) { p.apiBase = base }
}

func New(client *upstream.Client, log zerolog.Logger, opts ...Option) *Provider {
	p := &Provider{
		client:  client,
		log:     log.With().Str("provider", "bangumi").Logger(),
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
		Domains:   []string{"bgm.tv", "bangumi.tv", "chii.in"},
		IDPattern: regexp.MustCompile(`/subject/(\d+)`),
	}
}

func (p *Provider) Name() string { return "bangumi" }

type subjectResponse struct {
	Name     string `json:"name"`
	NameCN   string `json:"name_cn"`
	Summary  string `json:"summary"`
	Date     string `json:"date"`
	Type     int    `json:"type"`
	Eps      int    `json:"eps"`
	Platform string `json:"platform"`
	Images   struct {
		Large string `json:"large"`
	} `json:"images"`
	Rating struct {
		Score float64 `json:"score"`
		Total int     `json:"total"`
	} `json:"rating"`
	Infobox []struct {
		Key   string `json:"key"`
		Value any    `json:"value"`
	} `json:"infobox"`
}

func (p *Provider) Fetch(ctx context.Context, sid string) (*mediainfo.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	var resp subjectResponse
	u := fmt.Sprintf("%s/v0/subjects/%s", p.apiBase, url.PathEscape(sid))
	if err := p.client.GetJSON(ctx, u, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Name == "" && resp.NameCN == "" {
		return nil, mediainfo.NotFoundf("bangumi subject %s not found", sid)
	}

	rec := mediainfo.New("bangumi", sid)
	rec.Set("name", resp.Name)
	rec.Set("name_cn", resp.NameCN)
	rec.Set("introduction", resp.Summary)
	rec.Set("playdate", resp.Date)
	rec.Set("subtype", subjectTypes[resp.Type])
	rec.Set("platform", resp.Platform)
	rec.Set("poster", resp.Images.Large)
	if resp.Eps > 0 {
		rec.Set("episodes", fmt.Sprintf("%d", resp.Eps))
	}
	if resp.Rating.Score > 0 {
		rec.Set("bangumi_rating", fmt.Sprintf("%.1f/10 from %d users", resp.Rating.Score, resp.Rating.Total))
	}
	// Flatten the infobox's string entries (staff, studio, aliases).
	info := make(map[string]string)
	for _, box := range resp.Infobox {
		if s, ok := box.Value.(string); ok {
			info[box.Key] = s
		}
	}
	rec.Set("staff", info)
	rec.Set("bangumi_link", fmt.Sprintf("https://bgm.tv/subject/%s", sid))
	return rec, nil
}

type searchResponse struct {
	List []struct {
		ID      int    `json:"id"`
		Name    string `json:"name"`
		NameCN  string `json:"name_cn"`
		AirDate string `json:"air_date"`
		Type    int    `json:"type"`
		URL     string `json:"url"`
	} `json:"list"`
}

// Search implements provider.Searcher.
func (p *Provider) Search(ctx context.Context, query string) ([]mediainfo.SearchResult, error) {
	var resp searchResponse
	u := fmt.Sprintf("%s/search/subject/%s?responseGroup=small&max_results=15", p.apiBase, url.PathEscape(query))
	if err := p.client.GetJSON(ctx, u, nil, &resp); err != nil {
		return nil, err
	}
	results := make([]mediainfo.SearchResult, 0, len(resp.List))
	for _, item := range resp.List {
		if item.ID == 0 {
			continue
		}
		results = append(results, mediainfo.SearchResult{
			Source:   "bangumi",
			SID:      fmt.Sprintf("%d", item.ID),
			Title:    item.NameCN,
			Subtitle: item.Name,
			Year:     yearOf(item.AirDate),
			Subtype:  subjectTypes[item.Type],
			Link:     fmt.Sprintf("https://bgm.tv/subject/%d", item.ID),
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

// Format renders the description for a bangumi record.
func (p *Provider) Format(rec *mediainfo.Record) string {
	var b strings.Builder

	if poster := rec.Str("poster"); poster != "" {
		b.WriteString("[img]" + poster + "[/img]\n\n")
	}

	line(&b, "中文名", rec.Str("name_cn"))
	line(&b, "原  名", rec.Str("name"))
	line(&b, "类  型", rec.Str("subtype"))
	line(&b, "平  台", rec.Str("platform"))
	line(&b, "放送日期", rec.Str("playdate"))
	line(&b, "话  数", rec.Str("episodes"))
	line(&b, "Bangumi评分", rec.Str("bangumi_rating"))
	line(&b, "Bangumi链接", rec.Str("bangumi_link"))

	if intro := rec.Str("introduction"); intro != "" {
		b.WriteString("\n◎简  介\n\n　　" + strings.TrimSpace(intro) + "\n")
	}

	return strings.TrimRight(b.String(), "\n")
}

func line(b *strings.Builder, label, value string) {
	if value == "" {
		return
	}
	b.WriteString("◎" + label + "　" + value + "\n")
}
