// Package route decides which provider(s) an incoming request targets
// and with what resource id or query.
package route

import (
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"github.com/xwell/ptgen/internal/mediainfo"
	"github.com/xwell/ptgen/provider"
)

// Request carries the recognized request parameters after body/query
// merging. Exactly one routing mode applies, tried in priority order:
// URL, explicit source+query, free-text auto, explicit source+sid.
type Request struct {
	URL    string
	Source string
	Query  string
	SID    string
	TMDBID string
	Type   string
}

// Mode says whether the target is a resource fetch or a search.
type Mode int

const (
	ModeFetch Mode = iota
	ModeSearch
)

// Target is a resolved routing decision.
type Target struct {
	Mode       Mode
	Descriptor *provider.Descriptor

	// Fetch mode
	SID       string
	Namespace string // TMDB movie/tv id-space; empty elsewhere

	// Search mode: descriptors tried in order until one yields results
	Query       string
	SearchChain []*provider.Descriptor
}

// Router resolves requests against the registry. The native/secondary
// source names drive free-text auto routing per script class.
type Router struct {
	reg *provider.Registry

	nativeCJK      string
	secondaryCJK   string
	nativeLatin    string
	secondaryLatin string
}

// New creates a router with the deployed search routing: douban is the
// CJK-native searcher with bangumi as secondary; imdb is Latin-native
// with douban as secondary.
func New(reg *provider.Registry) *Router {
	return &Router{
		reg:            reg,
		nativeCJK:      "douban",
		secondaryCJK:   "bangumi",
		nativeLatin:    "imdb",
		secondaryLatin: "douban",
	}
}

var numericID = regexp.MustCompile(`^\d+$`)

// Resolve picks the routing mode and target for a request.
func (r *Router) Resolve(req Request) (*Target, error) {
	if req.URL != "" {
		return r.resolveURL(req.URL)
	}
	if req.TMDBID != "" && req.Source == "" {
		req.Source, req.SID = "tmdb", req.TMDBID
	}
	if req.Source != "" && req.Query != "" {
		return r.resolveExplicitSearch(req.Source, req.Query)
	}
	if req.Query != "" {
		return r.resolveAutoSearch(req.Query)
	}
	if req.Source != "" && req.SID != "" {
		return r.resolveFetch(req.Source, req.SID, req.Type)
	}
	return nil, mediainfo.Validationf("missing parameters: supply url, query, or source+sid")
}

func (r *Router) resolveURL(raw string) (*Target, error) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return nil, mediainfo.Validationf("unparseable url: %s", raw)
	}
	d, sid, err := r.reg.MatchURL(u)
	if err != nil {
		return nil, err
	}
	ns, bare := splitNamespace(sid)
	return &Target{Mode: ModeFetch, Descriptor: d, SID: bare, Namespace: ns}, nil
}

func (r *Router) resolveExplicitSearch(source, query string) (*Target, error) {
	d, ok := r.reg.Get(source)
	if !ok {
		return nil, mediainfo.Validationf("unknown source: %s", source)
	}
	if _, ok := d.Provider.(provider.Searcher); !ok {
		return nil, mediainfo.Validationf("source %s does not support search", source)
	}
	return &Target{
		Mode:        ModeSearch,
		Descriptor:  d,
		Query:       query,
		SearchChain: []*provider.Descriptor{d},
	}, nil
}

func (r *Router) resolveAutoSearch(query string) (*Target, error) {
	native, secondary := r.nativeLatin, r.secondaryLatin
	if IsCJK(query) {
		native, secondary = r.nativeCJK, r.secondaryCJK
	}
	var chain []*provider.Descriptor
	for _, name := range []string{native, secondary} {
		if d, ok := r.reg.Get(name); ok {
			if _, ok := d.Provider.(provider.Searcher); ok {
				chain = append(chain, d)
			}
		}
	}
	if len(chain) == 0 {
		return nil, mediainfo.Internalf("no search providers registered")
	}
	return &Target{
		Mode:        ModeSearch,
		Descriptor:  chain[0],
		Query:       query,
		SearchChain: chain,
	}, nil
}

func (r *Router) resolveFetch(source, sid, subType string) (*Target, error) {
	d, ok := r.reg.Get(source)
	if !ok {
		return nil, mediainfo.Validationf("unknown source: %s", source)
	}

	if source == "tmdb" {
		return r.resolveTMDB(d, sid, subType)
	}
	return &Target{Mode: ModeFetch, Descriptor: d, SID: sid}, nil
}

// resolveTMDB handles the one provider whose ids live in two parallel
// namespaces. A bare numeric id is ambiguous between movie and tv, so
// type is mandatory there; guessing is a hard validation error.
func (r *Router) resolveTMDB(d *provider.Descriptor, sid, subType string) (*Target, error) {
	if ns, bare := splitNamespace(sid); ns != "" {
		return &Target{Mode: ModeFetch, Descriptor: d, SID: bare, Namespace: ns}, nil
	}
	if !numericID.MatchString(sid) {
		return nil, mediainfo.Validationf("invalid tmdb id: %s", sid)
	}
	switch subType {
	case "movie", "tv":
		return &Target{Mode: ModeFetch, Descriptor: d, SID: sid, Namespace: subType}, nil
	case "":
		return nil, mediainfo.Validationf("type parameter is required for tmdb ids (movie or tv)")
	default:
		return nil, mediainfo.Validationf("invalid type %q: must be movie or tv", subType)
	}
}

// splitNamespace splits composite ids of the "movie/603" form.
func splitNamespace(sid string) (namespace, bare string) {
	if ns, rest, ok := strings.Cut(sid, "/"); ok && (ns == "movie" || ns == "tv") {
		return ns, rest
	}
	return "", sid
}

// IsCJK classifies a query as primarily CJK. A query counts as CJK when
// it contains any CJK characters and either is short enough that a few
// CJK characters dominate, or has more CJK than Latin characters.
func IsCJK(query string) bool {
	var cjk, latin int
	for _, r := range query {
		switch {
		case unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul):
			cjk++
		case unicode.In(r, unicode.Latin):
			latin++
		}
	}
	if cjk == 0 {
		return false
	}
	if cjk+latin < 6 {
		return true
	}
	return cjk > latin
}
