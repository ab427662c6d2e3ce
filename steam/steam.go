// Package steam fetches game metadata from the Steam storefront API.
package steam

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
	defaultStoreBase = "https://store.steampowered.com"
	fetchTimeout     = 10 * time.Second
)

type Provider struct {
	client    *upstream.Client
	log       zerolog.Logger
	storeBase string
}

type Option func(*Provider)

// WithBaseURL overrides the storefront host, used by tests.
func WithBaseURL(base string) Option {
	return func(p *Provider) { p.storeBase = base }
}

func New(client *upstream.Client, log zerolog.Logger, opts ...Option) *Provider {
	p := &Provider{
		client:    client,
		log:       log.With().Str("provider", "steam").Logger(),
		storeBase: defaultStoreBase,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *Provider) Descriptor() *provider.Descriptor {
	return &provider.Descriptor{
		Provider:  p,
		Domains:   []string{"steampowered.com"},
		IDPattern: regexp.MustCompile(`/app/(\d+)`),
	}
}

func (p *Provider) Name() string { return "steam" }

type appDetails struct {
	Success bool `json:"success"`
	Data    struct {
		Name             string `json:"name"`
		ShortDescription string `json:"short_description"`
		HeaderImage      string `json:"header_image"`
		Website          string `json:"website"`
		ReleaseDate      struct {
			Date string `json:"date"`
		} `json:"release_date"`
		Developers []string `json:"developers"`
		Publishers []string `json:"publishers"`
		Genres     []struct {
			Description string `json:"description"`
		} `json:"genres"`
		SupportedLanguages string `json:"supported_languages"`
	} `json:"data"`
}

func (p *Provider) Fetch(ctx context.Context, sid string) (*mediainfo.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	// appdetails keys its response by the requested appid.
	var resp map[string]appDetails
	u := fmt.Sprintf("%s/api/appdetails?appids=%s&l=english", p.storeBase, url.QueryEscape(sid))
	if err := p.client.GetJSON(ctx, u, nil, &resp); err != nil {
		return nil, err
	}
	details, ok := resp[sid]
	if !ok || !details.Success {
		return nil, mediainfo.NotFoundf("steam app %s not found", sid)
	}

	rec := mediainfo.New("steam", sid)
	rec.Set("name", details.Data.Name)
	rec.Set("details", details.Data.ShortDescription)
	rec.Set("poster", details.Data.HeaderImage)
	rec.Set("website", details.Data.Website)
	rec.Set("playdate", details.Data.ReleaseDate.Date)
	rec.Set("developer", details.Data.Developers)
	rec.Set("publisher", details.Data.Publishers)
	genres := make([]string, 0, len(details.Data.Genres))
	for _, g := range details.Data.Genres {
		genres = append(genres, g.Description)
	}
	rec.Set("genre", genres)
	rec.Set("language", stripTags(details.Data.SupportedLanguages))
	rec.Set("steam_link", fmt.Sprintf("https://store.steampowered.com/app/%s/", sid))
	return rec, nil
}

// Format renders the description for a steam record.
func (p *Provider) Format(rec *mediainfo.Record) string {
	var b strings.Builder

	if poster := rec.Str("poster"); poster != "" {
		b.WriteString("[img]" + poster + "[/img]\n\n")
	}

	line(&b, "Name", rec.Str("name"))
	line(&b, "Release Date", rec.Str("playdate"))
	line(&b, "Developer", strings.Join(rec.StrSlice("developer"), " / "))
	line(&b, "Publisher", strings.Join(rec.StrSlice("publisher"), " / "))
	line(&b, "Genre", strings.Join(rec.StrSlice("genre"), " / "))
	line(&b, "Languages", rec.Str("language"))
	line(&b, "Website", rec.Str("website"))
	line(&b, "Steam Link", rec.Str("steam_link"))

	if details := rec.Str("details"); details != "" {
		b.WriteString("\nAbout\n\n" + details + "\n")
	}

	return strings.TrimRight(b.String(), "\n")
}

func line(b *strings.Builder, label, value string) {
	if value == "" {
		return
	}
	b.WriteString(label + ": " + value + "\n")
}

var tag = regexp.MustCompile(`<[^>]*>|\*`)

// stripTags drops the markup Steam embeds in its language list.
func stripTags(s string) string {
	return strings.TrimSpace(tag.ReplaceAllString(s, ""))
}
