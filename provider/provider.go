// Package provider defines the common capability bundle for content
// sources and the registry the router dispatches against.
package provider

import (
	"context"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/xwell/ptgen/internal/mediainfo"
)

// Provider is the minimal capability bundle every content source
// implements: fetch a normalized record by source-specific id, and render
// a record into the human-readable description. Format must be pure.
type Provider interface {
	// Name returns the stable source name (e.g. "douban", "tmdb")
	Name() string

	// Fetch retrieves and normalizes the resource with the given id
	Fetch(ctx context.Context, sid string) (*mediainfo.Record, error)

	// Format renders the description text from a normalized record
	Format(rec *mediainfo.Record) string
}

// Searcher is the optional free-text search capability.
type Searcher interface {
	Search(ctx context.Context, query string) ([]mediainfo.SearchResult, error)
}

// Descriptor is an immutable registry entry: the provider plus its URL
// dispatch rule. Created at startup, never mutated.
type Descriptor struct {
	Provider Provider

	// Domains the provider claims for URL-mode dispatch. Matched against
	// the request URL's host by suffix, so "douban.com" also claims
	// "movie.douban.com".
	Domains []string

	// IDPattern confirms applicability and extracts the id from the URL
	// path. Submatch 1 is the id unless ReshapeID is set.
	IDPattern *regexp.Regexp

	// ReshapeID rebuilds a composite id from the pattern's submatches,
	// for sources that encode the id positionally (TMDB's /movie/603 →
	// "movie/603").
	ReshapeID func(matches []string) string
}

// Registry maps source names to descriptors. Registration order decides
// URL-match precedence.
type Registry struct {
	byName  map[string]*Descriptor
	ordered []*Descriptor
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Descriptor)}
}

// Register adds a descriptor to the registry
func (r *Registry) Register(d *Descriptor) {
	r.byName[d.Provider.Name()] = d
	r.ordered = append(r.ordered, d)
}

// Get retrieves a descriptor by source name
func (r *Registry) Get(name string) (*Descriptor, bool) {
	d, ok := r.byName[name]
	return d, ok
}

// List returns all registered source names, sorted.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MatchURL resolves a URL to (descriptor, sid). A URL whose host no
// provider claims is an "unsupported URL" validation error; a claimed
// host whose path does not fit the provider's pattern gets the
// finer-grained "invalid URL for <name>" error.
func (r *Registry) MatchURL(u *url.URL) (*Descriptor, string, error) {
	host := strings.ToLower(u.Hostname())
	for _, d := range r.ordered {
		if !d.claimsHost(host) {
			continue
		}
		if d.IDPattern == nil {
			return nil, "", mediainfo.Validationf("invalid URL for %s: no id rule", d.Provider.Name())
		}
		matches := d.IDPattern.FindStringSubmatch(u.Path)
		if matches == nil {
			return nil, "", mediainfo.Validationf("invalid URL for %s: %s", d.Provider.Name(), u.String())
		}
		sid := matches[1]
		if d.ReshapeID != nil {
			sid = d.ReshapeID(matches)
		}
		return d, sid, nil
	}
	return nil, "", mediainfo.Validationf("unsupported URL: %s", u.String())
}

func (d *Descriptor) claimsHost(host string) bool {
	for _, domain := range d.Domains {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}
